// Package decision owns the decision lifecycle: creation with model analysis,
// listing, whole-record updates, path analysis and outcome tracking.
package decision

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/neuroflow/internal/analysis"
	"github.com/davidahmann/neuroflow/internal/digest"
	"github.com/davidahmann/neuroflow/internal/gamification"
	"github.com/davidahmann/neuroflow/internal/realtime"
	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/pkg/types"
)

const (
	defaultComplexity = 5
	// predictionConfidence is stored on every model-predicted outcome.
	predictionConfidence = 0.7
)

type Analyzer interface {
	AnalyzeDecision(ctx context.Context, input string) analysis.DecisionAnalysis
	PredictOutcomes(ctx context.Context, decision types.Decision, paths []types.DecisionPath) analysis.OutcomePrediction
	AnalyzeRisks(ctx context.Context, decision types.Decision, paths []types.DecisionPath) analysis.Result
	AnalyzeEmotions(ctx context.Context, input string, decisionContext any) analysis.Result
	MapValues(ctx context.Context, input string, decision types.Decision) analysis.Result
}

type PointsAwarder interface {
	AddPoints(userID, action string, points int, description string) (types.GamificationEvent, types.Profile, error)
}

type Publisher interface {
	Publish(topic string, ev realtime.Event) int
}

type Service struct {
	store    store.Store
	analyzer Analyzer
	points   PointsAwarder
	hub      Publisher
	logger   *zap.Logger
	now      func() time.Time
	newID    func() string
}

type NewServiceInput struct {
	Store    store.Store
	Analyzer Analyzer
	Points   PointsAwarder
	Hub      Publisher
	Logger   *zap.Logger
	Now      func() time.Time
	NewID    func() string
}

func NewService(in NewServiceInput) (*Service, error) {
	if in.Store == nil {
		return nil, errors.New("store is required")
	}
	if in.Analyzer == nil {
		return nil, errors.New("analyzer is required")
	}
	s := &Service{
		store:    in.Store,
		analyzer: in.Analyzer,
		points:   in.Points,
		hub:      in.Hub,
		logger:   in.Logger,
		now:      in.Now,
		newID:    in.NewID,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.newID == nil {
		s.newID = uuid.NewString
	}
	return s, nil
}

// CreateRequest mirrors the decision creation form. Stakeholders is a
// comma-separated list.
type CreateRequest struct {
	Title                string `json:"title"`
	Description          string `json:"description"`
	CoreQuestion         string `json:"core_question"`
	Stakeholders         string `json:"stakeholders"`
	TemporalConstraints  string `json:"temporal_constraints"`
	FinancialConstraints string `json:"financial_constraints"`
	SocialConstraints    string `json:"social_constraints"`
	PersonalConstraints  string `json:"personal_constraints"`
}

// AnalysisInput is the text sent to the decision analyzer for a form.
func (r CreateRequest) AnalysisInput() string {
	return fmt.Sprintf("%s: %s. Core question: %s", r.Title, r.Description, r.CoreQuestion)
}

// NewDraft returns the record for r before any analysis has run: a fresh id,
// draft status and the default complexity.
func (s *Service) NewDraft(userID string, r CreateRequest) types.Decision {
	now := s.timestamp()
	return types.Decision{
		ID:              s.newID(),
		UserID:          userID,
		Title:           strings.TrimSpace(r.Title),
		Description:     r.Description,
		CoreQuestion:    r.CoreQuestion,
		ComplexityScore: defaultComplexity,
		Status:          types.StatusDraft,
		Stakeholders:    splitList(r.Stakeholders),
		Constraints: types.Constraints{
			Temporal:  r.TemporalConstraints,
			Financial: r.FinancialConstraints,
			Social:    r.SocialConstraints,
			Personal:  r.PersonalConstraints,
		},
		MissingInformation:      []string{},
		CognitiveBiasesDetected: []string{},
		CreatedAt:               now,
		UpdatedAt:               now,
	}
}

func (s *Service) Create(ctx context.Context, userID string, r CreateRequest) (types.Decision, error) {
	if strings.TrimSpace(r.Title) == "" {
		return types.Decision{}, fmt.Errorf("%w: title is required", ErrInvalid)
	}

	decision := s.NewDraft(userID, r)
	result := s.analyzer.AnalyzeDecision(ctx, r.AnalysisInput())
	applyAnalysis(&decision, result)

	if err := s.store.PutDecision(decision); err != nil {
		return types.Decision{}, fmt.Errorf("store decision: %w", err)
	}
	s.logger.Info("decision created",
		zap.String("decision_id", decision.ID),
		zap.String("user_id", userID),
		zap.Int("complexity", decision.ComplexityScore),
		zap.String("analysis_source", string(decision.AnalysisSource)),
	)

	s.award(userID, gamification.ActionDecisionCreated, gamification.PointsDecisionCreated, "Created decision: "+decision.Title)
	s.publish(realtime.DecisionTopic(decision.ID), realtime.EventDecisionCreated, decision)
	return decision, nil
}

func applyAnalysis(d *types.Decision, a analysis.DecisionAnalysis) {
	if a.ComplexityScore >= 1 && a.ComplexityScore <= 10 {
		d.ComplexityScore = a.ComplexityScore
	}
	d.MissingInformation = nonNil(a.MissingInformation)
	d.CognitiveBiasesDetected = nonNil(a.CognitiveBiasesDetected)
	d.ChunkingRecommendation = a.ChunkingRecommendation
	d.AnalysisSource = a.Source
}

// Preview runs the decision analyzer without storing anything.
func (s *Service) Preview(ctx context.Context, r CreateRequest) (analysis.DecisionAnalysis, error) {
	if strings.TrimSpace(r.Title) == "" && strings.TrimSpace(r.Description) == "" {
		return analysis.DecisionAnalysis{}, fmt.Errorf("%w: title or description is required", ErrInvalid)
	}
	return s.analyzer.AnalyzeDecision(ctx, r.AnalysisInput()), nil
}

func (s *Service) List(userID string, f Filter) ([]types.Decision, error) {
	if err := f.Validate(); err != nil {
		return nil, err
	}
	all, err := s.store.ListDecisionsByUser(userID)
	if err != nil {
		return nil, fmt.Errorf("list decisions: %w", err)
	}
	return f.Apply(all), nil
}

func (s *Service) Get(userID, decisionID string) (types.DecisionDetail, error) {
	detail, ok, err := store.LoadDetail(s.store, decisionID)
	if err != nil {
		return types.DecisionDetail{}, fmt.Errorf("load decision: %w", err)
	}
	if !ok || detail.Decision.UserID != userID {
		return types.DecisionDetail{}, ErrNotFound
	}
	return detail, nil
}

// ETag is the digest a client echoes in If-Match to guard an update.
func ETag(d types.Decision) (string, error) {
	return digest.Of(d)
}

// UpdateRequest replaces every mutable field of a decision.
type UpdateRequest struct {
	Title                   string               `json:"title"`
	Description             string               `json:"description"`
	CoreQuestion            string               `json:"core_question"`
	ComplexityScore         int                  `json:"complexity_score"`
	Status                  types.DecisionStatus `json:"status"`
	Stakeholders            []string             `json:"stakeholders"`
	Constraints             types.Constraints    `json:"constraints"`
	MissingInformation      []string             `json:"missing_information"`
	CognitiveBiasesDetected []string             `json:"cognitive_biases_detected"`
	ChunkingRecommendation  string               `json:"chunking_recommendation"`
}

func (r UpdateRequest) Validate() error {
	if strings.TrimSpace(r.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if r.ComplexityScore < 1 || r.ComplexityScore > 10 {
		return fmt.Errorf("%w: complexity_score must be between 1 and 10", ErrInvalid)
	}
	if !r.Status.Valid() {
		return fmt.Errorf("%w: unknown status %q", ErrInvalid, r.Status)
	}
	return nil
}

// Update replaces the decision's mutable fields. A non-empty ifMatch must
// equal the current ETag.
func (s *Service) Update(userID, decisionID string, r UpdateRequest, ifMatch string) (types.Decision, error) {
	if err := r.Validate(); err != nil {
		return types.Decision{}, err
	}

	var out types.Decision
	err := s.store.WithTx(func(tx store.Tx) error {
		current, ok := tx.GetDecision(decisionID)
		if !ok || current.UserID != userID {
			return ErrNotFound
		}
		if want := normalizeETag(ifMatch); want != "" && want != "*" {
			tag, err := ETag(current)
			if err != nil {
				return err
			}
			if tag != want {
				return ErrConflict
			}
		}

		current.Title = strings.TrimSpace(r.Title)
		current.Description = r.Description
		current.CoreQuestion = r.CoreQuestion
		current.ComplexityScore = r.ComplexityScore
		current.Status = r.Status
		current.Stakeholders = nonNil(r.Stakeholders)
		current.Constraints = r.Constraints
		current.MissingInformation = nonNil(r.MissingInformation)
		current.CognitiveBiasesDetected = nonNil(r.CognitiveBiasesDetected)
		current.ChunkingRecommendation = r.ChunkingRecommendation
		current.UpdatedAt = s.timestamp()

		if err := tx.PutDecision(current); err != nil {
			return fmt.Errorf("store decision: %w", err)
		}
		out = current
		return nil
	})
	if err != nil {
		return types.Decision{}, err
	}

	s.logger.Info("decision updated", zap.String("decision_id", decisionID), zap.String("status", string(out.Status)))
	s.publish(realtime.DecisionTopic(decisionID), realtime.EventDecisionUpdated, out)
	return out, nil
}

func normalizeETag(v string) string {
	v = strings.TrimSpace(v)
	v = strings.TrimPrefix(v, "W/")
	return strings.Trim(v, `"`)
}

func (s *Service) Stats(userID string) (types.DashboardStats, error) {
	all, err := s.store.ListDecisionsByUser(userID)
	if err != nil {
		return types.DashboardStats{}, fmt.Errorf("list decisions: %w", err)
	}
	var out types.DashboardStats
	total := 0
	for _, d := range all {
		out.Total++
		total += d.ComplexityScore
		switch d.Status {
		case types.StatusDraft:
			out.Draft++
		case types.StatusInProgress:
			out.InProgress++
		case types.StatusCompleted:
			out.Completed++
		}
	}
	if out.Total > 0 {
		out.AverageComplexity = float64(total) / float64(out.Total)
	}
	return out, nil
}

func (s *Service) owned(userID, decisionID string) (types.Decision, error) {
	d, ok := s.store.GetDecision(decisionID)
	if !ok || d.UserID != userID {
		return types.Decision{}, ErrNotFound
	}
	return d, nil
}

func (s *Service) AnalyzeEmotions(ctx context.Context, userID, decisionID, input string) (analysis.Result, error) {
	d, err := s.owned(userID, decisionID)
	if err != nil {
		return analysis.Result{}, err
	}
	return s.analyzer.AnalyzeEmotions(ctx, input, d), nil
}

func (s *Service) MapValues(ctx context.Context, userID, decisionID, input string) (analysis.Result, error) {
	d, err := s.owned(userID, decisionID)
	if err != nil {
		return analysis.Result{}, err
	}
	return s.analyzer.MapValues(ctx, input, d), nil
}

// AnalyzeRisks runs the risk analyzer over the decision's stored paths.
func (s *Service) AnalyzeRisks(ctx context.Context, userID, decisionID string) (analysis.Result, error) {
	d, err := s.owned(userID, decisionID)
	if err != nil {
		return analysis.Result{}, err
	}
	paths, err := s.store.ListDecisionPaths(decisionID)
	if err != nil {
		return analysis.Result{}, fmt.Errorf("list paths: %w", err)
	}
	return s.analyzer.AnalyzeRisks(ctx, d, paths), nil
}

func (s *Service) award(userID, action string, points int, description string) {
	if s.points == nil {
		return
	}
	if _, _, err := s.points.AddPoints(userID, action, points, description); err != nil {
		s.logger.Warn("award points failed", zap.String("user_id", userID), zap.String("action", action), zap.Error(err))
	}
}

func (s *Service) publish(topic, eventType string, payload any) {
	if s.hub == nil {
		return
	}
	s.hub.Publish(topic, realtime.Event{Type: eventType, Payload: payload})
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

// splitList splits a comma-separated form field, trimming entries and
// dropping empty ones.
func splitList(raw string) []string {
	out := []string{}
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
