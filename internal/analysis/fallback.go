package analysis

import (
	"encoding/json"

	"github.com/davidahmann/neuroflow/pkg/types"
)

const fallbackMessage = "Mock response - API key not configured"

// fallbackDecision is returned whenever the decision analyzer has no model
// answer to offer.
var fallbackDecision = decisionWire{
	DecisionTitle:   "Career Transition Decision",
	ComplexityScore: 8,
	CoreQuestion:    "Should I transition from my current career to a new field?",
	Stakeholders:    []string{"Family", "Current Colleagues", "Future Self", "Financial Dependents"},
	Constraints: types.Constraints{
		Temporal:  "Need to decide within 6 months due to contract renewal",
		Financial: "Must maintain current income level for family obligations",
		Social:    "Leaving established professional network and relationships",
		Personal:  "Need to acquire new skills and overcome imposter syndrome",
	},
	MissingInformation: []string{
		"Market demand in target field",
		"Realistic salary expectations",
		"Required skill development timeline",
		"Industry growth projections",
	},
	CognitiveBiasesDetected: []string{
		"Optimism bias - may be overestimating success probability",
		"Sunk cost fallacy - considering years invested in current career",
	},
	ChunkingRecommendation: "Break into phases: skill assessment, market research, transition planning, execution",
}

func fallbackPayload(kind PromptKind) json.RawMessage {
	var v any = map[string]string{"message": fallbackMessage}
	if kind == PromptDecisionAnalyzer {
		v = fallbackDecision
	}
	raw, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return raw
}
