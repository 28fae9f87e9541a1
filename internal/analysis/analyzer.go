package analysis

import (
	"context"
	"encoding/json"
	"fmt"
	"math"

	"go.uber.org/zap"

	"github.com/davidahmann/neuroflow/pkg/types"
)

// DecisionAnalysis is the structured read of a free-text decision.
type DecisionAnalysis struct {
	DecisionTitle           string               `json:"decision_title"`
	ComplexityScore         int                  `json:"complexity_score"`
	CoreQuestion            string               `json:"core_question"`
	Stakeholders            []string             `json:"stakeholders"`
	Constraints             types.Constraints    `json:"constraints"`
	MissingInformation      []string             `json:"missing_information"`
	CognitiveBiasesDetected []string             `json:"cognitive_biases_detected"`
	ChunkingRecommendation  string               `json:"chunking_recommendation,omitempty"`
	Source                  types.AnalysisSource `json:"source"`
}

// decisionWire accepts fractional complexity scores from the model.
type decisionWire struct {
	DecisionTitle           string            `json:"decision_title"`
	ComplexityScore         float64           `json:"complexity_score"`
	CoreQuestion            string            `json:"core_question"`
	Stakeholders            []string          `json:"stakeholders"`
	Constraints             types.Constraints `json:"constraints"`
	MissingInformation      []string          `json:"missing_information"`
	CognitiveBiasesDetected []string          `json:"cognitive_biases_detected"`
	ChunkingRecommendation  string            `json:"chunking_recommendation,omitempty"`
}

type OutcomeBags struct {
	Financial      json.RawMessage `json:"financial,omitempty"`
	Emotional      json.RawMessage `json:"emotional,omitempty"`
	Relationships  json.RawMessage `json:"relationships,omitempty"`
	PersonalGrowth json.RawMessage `json:"personal_growth,omitempty"`
	TimeHorizon    json.RawMessage `json:"time_horizon,omitempty"`
}

type PathOutcome struct {
	PathID            string      `json:"path_id"`
	PathTitle         string      `json:"path_title,omitempty"`
	PredictedOutcomes OutcomeBags `json:"predicted_outcomes"`
}

type OutcomePrediction struct {
	PathOutcomes []PathOutcome        `json:"path_outcomes"`
	Source       types.AnalysisSource `json:"source"`
}

// Result carries the free-form answers of the emotion, risk and values
// analyzers.
type Result struct {
	Kind    PromptKind           `json:"kind"`
	Source  types.AnalysisSource `json:"source"`
	Payload json.RawMessage      `json:"payload"`
}

// Analyzer runs the five analysis prompts. A nil generator, a failed call or
// an unparseable reply all yield the fallback payload for the prompt; callers
// never see an error from the model.
type Analyzer struct {
	gen     Generator
	prompts Prompts
	logger  *zap.Logger
}

func NewAnalyzer(gen Generator, prompts Prompts, logger *zap.Logger) *Analyzer {
	if prompts == nil {
		prompts = DefaultPrompts()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Analyzer{gen: gen, prompts: prompts, logger: logger}
}

// Mode reports whether analyses are expected to come from the model.
func (a *Analyzer) Mode() types.AnalysisSource {
	if a.gen == nil {
		return types.SourceFallback
	}
	return types.SourceModel
}

func (a *Analyzer) run(ctx context.Context, kind PromptKind, input string) (json.RawMessage, types.AnalysisSource) {
	if a.gen == nil {
		return fallbackPayload(kind), types.SourceFallback
	}

	text, err := a.gen.Generate(ctx, Compose(a.prompts[kind], input))
	if err != nil {
		a.logger.Warn("analysis request failed", zap.String("prompt", string(kind)), zap.Error(err))
		return fallbackPayload(kind), types.SourceFallback
	}
	raw, err := ExtractJSON(text)
	if err != nil {
		a.logger.Warn("analysis reply unparseable", zap.String("prompt", string(kind)), zap.Error(err))
		return fallbackPayload(kind), types.SourceFallback
	}
	return raw, types.SourceModel
}

func (a *Analyzer) AnalyzeDecision(ctx context.Context, input string) DecisionAnalysis {
	raw, source := a.run(ctx, PromptDecisionAnalyzer, input)

	var wire decisionWire
	if err := json.Unmarshal(raw, &wire); err != nil {
		a.logger.Warn("decision analysis has unexpected shape", zap.Error(err))
		wire, source = fallbackDecision, types.SourceFallback
	}
	return DecisionAnalysis{
		DecisionTitle:           wire.DecisionTitle,
		ComplexityScore:         int(math.Round(wire.ComplexityScore)),
		CoreQuestion:            wire.CoreQuestion,
		Stakeholders:            orEmpty(wire.Stakeholders),
		Constraints:             wire.Constraints,
		MissingInformation:      orEmpty(wire.MissingInformation),
		CognitiveBiasesDetected: orEmpty(wire.CognitiveBiasesDetected),
		ChunkingRecommendation:  wire.ChunkingRecommendation,
		Source:                  source,
	}
}

func (a *Analyzer) PredictOutcomes(ctx context.Context, decision types.Decision, paths []types.DecisionPath) OutcomePrediction {
	raw, source := a.run(ctx, PromptOutcomePredictor, pathsInput(decision, paths))

	var out OutcomePrediction
	if err := json.Unmarshal(raw, &out); err != nil {
		a.logger.Warn("outcome prediction has unexpected shape", zap.Error(err))
		out, source = OutcomePrediction{}, types.SourceFallback
	}
	if out.PathOutcomes == nil {
		out.PathOutcomes = []PathOutcome{}
	}
	out.Source = source
	return out
}

func (a *Analyzer) AnalyzeRisks(ctx context.Context, decision types.Decision, paths []types.DecisionPath) Result {
	raw, source := a.run(ctx, PromptRiskAnalyzer, pathsInput(decision, paths))
	return Result{Kind: PromptRiskAnalyzer, Source: source, Payload: raw}
}

func (a *Analyzer) AnalyzeEmotions(ctx context.Context, input string, decisionContext any) Result {
	in := fmt.Sprintf("User Input: %s\nDecision Context: %s", input, mustJSON(decisionContext))
	raw, source := a.run(ctx, PromptEmotionAnalyzer, in)
	return Result{Kind: PromptEmotionAnalyzer, Source: source, Payload: raw}
}

func (a *Analyzer) MapValues(ctx context.Context, input string, decision types.Decision) Result {
	in := fmt.Sprintf("User Input: %s\nDecision: %s", input, mustJSON(decision))
	raw, source := a.run(ctx, PromptValuesMapper, in)
	return Result{Kind: PromptValuesMapper, Source: source, Payload: raw}
}

func pathsInput(decision types.Decision, paths []types.DecisionPath) string {
	return fmt.Sprintf("Decision: %s\nPaths: %s", decision.Title, mustJSON(paths))
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func orEmpty(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
