package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/neuroflow/internal/analysis"
	"github.com/davidahmann/neuroflow/internal/gamification"
	"github.com/davidahmann/neuroflow/internal/realtime"
	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/internal/workflow"
	"github.com/davidahmann/neuroflow/pkg/types"
)

// PathInput describes one candidate path. Empty enum fields take their
// defaults: neutral, medium and reversible.
type PathInput struct {
	Title               string                    `json:"title"`
	Description         string                    `json:"description"`
	ProbabilitySuccess  int                       `json:"probability_success"`
	EmotionalImpact     types.EmotionalImpact     `json:"emotional_impact"`
	ResourceRequirement types.ResourceRequirement `json:"resource_requirement"`
	Reversibility       types.Reversibility       `json:"reversibility"`
	RiskFactors         []string                  `json:"risk_factors"`
	SuccessEnablers     []string                  `json:"success_enablers"`
}

func (p *PathInput) normalize() error {
	p.Title = strings.TrimSpace(p.Title)
	if p.Title == "" {
		return fmt.Errorf("%w: path title is required", ErrInvalid)
	}
	if p.ProbabilitySuccess < 0 || p.ProbabilitySuccess > 100 {
		return fmt.Errorf("%w: probability_success must be between 0 and 100", ErrInvalid)
	}
	if p.EmotionalImpact == "" {
		p.EmotionalImpact = types.EmotionNeutral
	}
	if p.ResourceRequirement == "" {
		p.ResourceRequirement = types.ResourceMedium
	}
	if p.Reversibility == "" {
		p.Reversibility = types.Reversible
	}
	if !p.EmotionalImpact.Valid() {
		return fmt.Errorf("%w: unknown emotional_impact %q", ErrInvalid, p.EmotionalImpact)
	}
	if !p.ResourceRequirement.Valid() {
		return fmt.Errorf("%w: unknown resource_requirement %q", ErrInvalid, p.ResourceRequirement)
	}
	if !p.Reversibility.Valid() {
		return fmt.Errorf("%w: unknown reversibility %q", ErrInvalid, p.Reversibility)
	}
	return nil
}

type PathAnalysis struct {
	Paths             []types.DecisionPath     `json:"paths"`
	PredictedOutcomes []types.PredictedOutcome `json:"predicted_outcomes"`
	Workflow          types.Workflow           `json:"workflow"`
	Risks             analysis.Result          `json:"risks"`
	Source            types.AnalysisSource     `json:"source"`
}

// AnalyzePaths stores new paths for a decision, asks the model for outcome
// predictions and risks, stores the predictions and rebuilds the workflow.
func (s *Service) AnalyzePaths(ctx context.Context, userID, decisionID string, inputs []PathInput) (PathAnalysis, error) {
	if len(inputs) == 0 {
		return PathAnalysis{}, fmt.Errorf("%w: at least one path is required", ErrInvalid)
	}
	for i := range inputs {
		if err := inputs[i].normalize(); err != nil {
			return PathAnalysis{}, err
		}
	}
	decision, err := s.owned(userID, decisionID)
	if err != nil {
		return PathAnalysis{}, err
	}

	now := s.timestamp()
	paths := make([]types.DecisionPath, 0, len(inputs))
	for _, in := range inputs {
		paths = append(paths, types.DecisionPath{
			ID:                  s.newID(),
			DecisionID:          decisionID,
			Title:               in.Title,
			Description:         in.Description,
			ProbabilitySuccess:  in.ProbabilitySuccess,
			EmotionalImpact:     in.EmotionalImpact,
			ResourceRequirement: in.ResourceRequirement,
			Reversibility:       in.Reversibility,
			RiskFactors:         nonNil(in.RiskFactors),
			SuccessEnablers:     nonNil(in.SuccessEnablers),
			CreatedAt:           now,
		})
	}
	if err := s.store.WithTx(func(tx store.Tx) error {
		for _, p := range paths {
			if err := tx.PutDecisionPath(p); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return PathAnalysis{}, fmt.Errorf("store paths: %w", err)
	}

	var (
		prediction analysis.OutcomePrediction
		risks      analysis.Result
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		prediction = s.analyzer.PredictOutcomes(gctx, decision, paths)
		return nil
	})
	g.Go(func() error {
		risks = s.analyzer.AnalyzeRisks(gctx, decision, paths)
		return nil
	})
	if err := g.Wait(); err != nil {
		return PathAnalysis{}, err
	}

	predicted := s.mapPredictions(prediction.PathOutcomes, paths)

	if err := s.store.WithTx(func(tx store.Tx) error {
		for _, o := range predicted {
			if err := tx.PutPredictedOutcome(o); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		return PathAnalysis{}, fmt.Errorf("store predictions: %w", err)
	}

	wf, err := s.rebuildWorkflow(decision)
	if err != nil {
		return PathAnalysis{}, fmt.Errorf("rebuild workflow: %w", err)
	}

	s.logger.Info("paths analyzed",
		zap.String("decision_id", decisionID),
		zap.Int("paths", len(paths)),
		zap.Int("predictions", len(predicted)),
		zap.String("analysis_source", string(prediction.Source)),
	)
	s.publish(realtime.DecisionTopic(decisionID), realtime.EventPathsAnalyzed, map[string]any{
		"paths":              paths,
		"predicted_outcomes": predicted,
	})
	s.publish(realtime.WorkflowTopic(decisionID), realtime.EventWorkflowUpdated, wf)

	return PathAnalysis{
		Paths:             paths,
		PredictedOutcomes: predicted,
		Workflow:          wf,
		Risks:             risks,
		Source:            prediction.Source,
	}, nil
}

// mapPredictions assigns each model outcome to one of the new paths. Outcomes
// naming a path by id or title claim it first; the rest take the path at
// their own position, or the next free one after it. A path receives at most
// one prediction.
func (s *Service) mapPredictions(outcomes []analysis.PathOutcome, paths []types.DecisionPath) []types.PredictedOutcome {
	byID := map[string]int{}
	byTitle := map[string]int{}
	for i, p := range paths {
		byID[p.ID] = i
		key := strings.ToLower(p.Title)
		if _, ok := byTitle[key]; !ok {
			byTitle[key] = i
		}
	}

	assigned := make([]int, len(outcomes))
	taken := map[int]bool{}
	pending := []int{}
	for pos, o := range outcomes {
		assigned[pos] = -1
		idx, ok := byID[strings.TrimSpace(o.PathID)]
		if !ok {
			idx, ok = byTitle[strings.ToLower(strings.TrimSpace(o.PathTitle))]
		}
		if !ok {
			pending = append(pending, pos)
			continue
		}
		if taken[idx] {
			continue
		}
		taken[idx] = true
		assigned[pos] = idx
	}
	for _, pos := range pending {
		for step := 0; step < len(paths); step++ {
			idx := (pos + step) % len(paths)
			if !taken[idx] {
				taken[idx] = true
				assigned[pos] = idx
				break
			}
		}
	}

	now := s.timestamp()
	out := []types.PredictedOutcome{}
	for pos, o := range outcomes {
		idx := assigned[pos]
		if idx < 0 {
			s.logger.Debug("unmatched outcome prediction", zap.String("path_id", o.PathID), zap.String("path_title", o.PathTitle))
			continue
		}

		bags := o.PredictedOutcomes
		out = append(out, types.PredictedOutcome{
			ID:                 s.newID(),
			PathID:             paths[idx].ID,
			FinancialImpact:    types.RawOrEmpty(bags.Financial),
			EmotionalImpact:    types.RawOrEmpty(bags.Emotional),
			RelationshipImpact: types.RawOrEmpty(bags.Relationships),
			PersonalGrowth:     types.RawOrEmpty(bags.PersonalGrowth),
			TimeHorizon:        types.RawOrEmpty(bags.TimeHorizon),
			ConfidenceScore:    predictionConfidence,
			CreatedAt:          now,
		})
	}
	return out
}

// ActualOutcomeInput is what the user records once a path has played out.
type ActualOutcomeInput struct {
	FinancialResult      json.RawMessage `json:"financial_result"`
	EmotionalResult      json.RawMessage `json:"emotional_result"`
	RelationshipResult   json.RawMessage `json:"relationship_result"`
	PersonalGrowthResult json.RawMessage `json:"personal_growth_result"`
	SatisfactionScore    float64         `json:"satisfaction_score"`
	LessonsLearned       []string        `json:"lessons_learned"`
}

func (in ActualOutcomeInput) Validate() error {
	if in.SatisfactionScore < 0 || in.SatisfactionScore > 10 {
		return fmt.Errorf("%w: satisfaction_score must be between 0 and 10", ErrInvalid)
	}
	for name, raw := range map[string]json.RawMessage{
		"financial_result":       in.FinancialResult,
		"emotional_result":       in.EmotionalResult,
		"relationship_result":    in.RelationshipResult,
		"personal_growth_result": in.PersonalGrowthResult,
	} {
		if len(raw) > 0 && !json.Valid(raw) {
			return fmt.Errorf("%w: %s is not valid JSON", ErrInvalid, name)
		}
	}
	return nil
}

func (s *Service) RecordOutcome(userID, pathID string, in ActualOutcomeInput) (types.ActualOutcome, error) {
	if err := in.Validate(); err != nil {
		return types.ActualOutcome{}, err
	}
	path, ok := s.store.GetDecisionPath(pathID)
	if !ok {
		return types.ActualOutcome{}, ErrNotFound
	}
	if _, err := s.owned(userID, path.DecisionID); err != nil {
		return types.ActualOutcome{}, err
	}

	outcome := types.ActualOutcome{
		ID:                   s.newID(),
		PathID:               pathID,
		FinancialResult:      types.RawOrEmpty(in.FinancialResult),
		EmotionalResult:      types.RawOrEmpty(in.EmotionalResult),
		RelationshipResult:   types.RawOrEmpty(in.RelationshipResult),
		PersonalGrowthResult: types.RawOrEmpty(in.PersonalGrowthResult),
		SatisfactionScore:    in.SatisfactionScore,
		LessonsLearned:       nonNil(in.LessonsLearned),
		RecordedAt:           s.timestamp(),
	}
	if err := s.store.PutActualOutcome(outcome); err != nil {
		return types.ActualOutcome{}, fmt.Errorf("store outcome: %w", err)
	}

	s.logger.Info("outcome recorded", zap.String("path_id", pathID), zap.Float64("satisfaction", in.SatisfactionScore))
	s.award(userID, gamification.ActionOutcomeTracked, gamification.PointsOutcomeTracked, "Tracked outcome for: "+path.Title)
	s.publish(realtime.DecisionTopic(path.DecisionID), realtime.EventOutcomeRecorded, outcome)
	return outcome, nil
}

// rebuildWorkflow regenerates the graph from the stored paths and predictions.
// The stored layout data is kept.
func (s *Service) rebuildWorkflow(decision types.Decision) (types.Workflow, error) {
	nodes, edges, err := s.buildGraph(decision)
	if err != nil {
		return types.Workflow{}, err
	}
	now := s.timestamp()
	wf := types.Workflow{
		ID:         s.newID(),
		DecisionID: decision.ID,
		Nodes:      nodes,
		Edges:      edges,
		LayoutData: json.RawMessage(`{}`),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if existing, ok := s.store.GetWorkflow(decision.ID); ok {
		wf.ID = existing.ID
		wf.CreatedAt = existing.CreatedAt
		wf.LayoutData = types.RawOrEmpty(existing.LayoutData)
	}
	if err := s.store.PutWorkflow(wf); err != nil {
		return types.Workflow{}, err
	}
	return wf, nil
}

func (s *Service) buildGraph(decision types.Decision) ([]types.WorkflowNode, []types.WorkflowEdge, error) {
	paths, err := s.store.ListDecisionPaths(decision.ID)
	if err != nil {
		return nil, nil, err
	}
	predicted := []types.PredictedOutcome{}
	for _, p := range paths {
		outs, err := s.store.ListPredictedOutcomes(p.ID)
		if err != nil {
			return nil, nil, err
		}
		predicted = append(predicted, outs...)
	}
	nodes, edges := workflow.Build(decision, paths, predicted)
	return nodes, edges, nil
}
