package types

type EmotionalImpact string

const (
	EmotionPositive EmotionalImpact = "positive"
	EmotionNegative EmotionalImpact = "negative"
	EmotionMixed    EmotionalImpact = "mixed"
	EmotionNeutral  EmotionalImpact = "neutral"
)

type ResourceRequirement string

const (
	ResourceLow    ResourceRequirement = "low"
	ResourceMedium ResourceRequirement = "medium"
	ResourceHigh   ResourceRequirement = "high"
)

type Reversibility string

const (
	Reversible   Reversibility = "reversible"
	Difficult    Reversibility = "difficult"
	Irreversible Reversibility = "permanent"
)

type DecisionPath struct {
	ID                  string              `json:"id"`
	DecisionID          string              `json:"decision_id"`
	Title               string              `json:"title"`
	Description         string              `json:"description"`
	ProbabilitySuccess  int                 `json:"probability_success"`
	EmotionalImpact     EmotionalImpact     `json:"emotional_impact"`
	ResourceRequirement ResourceRequirement `json:"resource_requirement"`
	Reversibility       Reversibility       `json:"reversibility"`
	RiskFactors         []string            `json:"risk_factors"`
	SuccessEnablers     []string            `json:"success_enablers"`
	CreatedAt           string              `json:"created_at"`
}

func (e EmotionalImpact) Valid() bool {
	switch e {
	case EmotionPositive, EmotionNegative, EmotionMixed, EmotionNeutral:
		return true
	}
	return false
}

func (r ResourceRequirement) Valid() bool {
	switch r {
	case ResourceLow, ResourceMedium, ResourceHigh:
		return true
	}
	return false
}

func (r Reversibility) Valid() bool {
	switch r {
	case Reversible, Difficult, Irreversible:
		return true
	}
	return false
}
