package types

import "encoding/json"

type DecisionStatus string

const (
	StatusDraft      DecisionStatus = "draft"
	StatusInProgress DecisionStatus = "in_progress"
	StatusCompleted  DecisionStatus = "completed"
)

// Valid reports whether s is one of the persisted decision states.
func (s DecisionStatus) Valid() bool {
	switch s {
	case StatusDraft, StatusInProgress, StatusCompleted:
		return true
	default:
		return false
	}
}

// AnalysisSource records whether an analysis came from the model or from the
// built-in fallback payload.
type AnalysisSource string

const (
	SourceModel    AnalysisSource = "model"
	SourceFallback AnalysisSource = "fallback"
)

type Constraints struct {
	Temporal  string `json:"temporal"`
	Financial string `json:"financial"`
	Social    string `json:"social"`
	Personal  string `json:"personal"`
}

type Decision struct {
	ID                      string         `json:"id"`
	UserID                  string         `json:"user_id"`
	Title                   string         `json:"title"`
	Description             string         `json:"description"`
	CoreQuestion            string         `json:"core_question"`
	ComplexityScore         int            `json:"complexity_score"`
	Status                  DecisionStatus `json:"status"`
	Stakeholders            []string       `json:"stakeholders"`
	Constraints             Constraints    `json:"constraints"`
	MissingInformation      []string       `json:"missing_information"`
	CognitiveBiasesDetected []string       `json:"cognitive_biases_detected"`
	ChunkingRecommendation  string         `json:"chunking_recommendation,omitempty"`
	AnalysisSource          AnalysisSource `json:"analysis_source,omitempty"`
	CreatedAt               string         `json:"created_at"`
	UpdatedAt               string         `json:"updated_at"`
}

// DecisionDetail is a decision with every record that hangs off it.
type DecisionDetail struct {
	Decision          Decision           `json:"decision"`
	Paths             []DecisionPath     `json:"decision_paths"`
	Workflow          *Workflow          `json:"workflow,omitempty"`
	PredictedOutcomes []PredictedOutcome `json:"predicted_outcomes"`
	ActualOutcomes    []ActualOutcome    `json:"actual_outcomes"`
}

// DashboardStats backs the dashboard quick-stats row.
type DashboardStats struct {
	Total             int     `json:"total"`
	Draft             int     `json:"draft"`
	InProgress        int     `json:"in_progress"`
	Completed         int     `json:"completed"`
	AverageComplexity float64 `json:"average_complexity"`
}

// RawOrEmpty returns raw, or an empty JSON object when raw is unset.
func RawOrEmpty(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage(`{}`)
	}
	return raw
}
