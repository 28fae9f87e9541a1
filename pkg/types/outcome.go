package types

import "encoding/json"

// PredictedOutcome holds the model's estimate for a path. The impact fields
// are free-form JSON exactly as the model produced them.
type PredictedOutcome struct {
	ID                 string          `json:"id"`
	PathID             string          `json:"path_id"`
	FinancialImpact    json.RawMessage `json:"financial_impact"`
	EmotionalImpact    json.RawMessage `json:"emotional_impact"`
	RelationshipImpact json.RawMessage `json:"relationship_impact"`
	PersonalGrowth     json.RawMessage `json:"personal_growth"`
	TimeHorizon        json.RawMessage `json:"time_horizon"`
	ConfidenceScore    float64         `json:"confidence_score"`
	CreatedAt          string          `json:"created_at"`
}

type ActualOutcome struct {
	ID                   string          `json:"id"`
	PathID               string          `json:"path_id"`
	FinancialResult      json.RawMessage `json:"financial_result"`
	EmotionalResult      json.RawMessage `json:"emotional_result"`
	RelationshipResult   json.RawMessage `json:"relationship_result"`
	PersonalGrowthResult json.RawMessage `json:"personal_growth_result"`
	SatisfactionScore    float64         `json:"satisfaction_score"`
	LessonsLearned       []string        `json:"lessons_learned"`
	RecordedAt           string          `json:"recorded_at"`
}
