package store

import (
	"errors"

	"github.com/davidahmann/neuroflow/pkg/types"
)

var ErrNotFound = errors.New("record not found")

// Tx is the set of single-record operations that may run inside WithTx.
// Put* calls are upserts: a record is created by its first Put and replaced
// whole by later ones.
type Tx interface {
	PutDecision(decision types.Decision) error
	GetDecision(decisionID string) (types.Decision, bool)

	PutDecisionPath(path types.DecisionPath) error
	GetDecisionPath(pathID string) (types.DecisionPath, bool)

	PutWorkflow(workflow types.Workflow) error
	GetWorkflow(decisionID string) (types.Workflow, bool)

	PutPredictedOutcome(outcome types.PredictedOutcome) error
	PutActualOutcome(outcome types.ActualOutcome) error

	PutProfile(profile types.Profile) error
	GetProfile(userID string) (types.Profile, bool)
	// CreateProfile inserts profile unless the user already has one and
	// returns the stored row. An existing profile is never overwritten.
	CreateProfile(profile types.Profile) (types.Profile, error)

	PutGamificationEvent(event types.GamificationEvent) error
	// IncrementUserPoints adds points to the user's profile and recomputes its
	// level. It returns ErrNotFound when the user has no profile.
	IncrementUserPoints(userID string, points int) (types.Profile, error)
}

type Store interface {
	Tx

	WithTx(fn func(Tx) error) error

	// ListDecisionsByUser returns the user's decisions, newest first.
	ListDecisionsByUser(userID string) ([]types.Decision, error)
	ListDecisionPaths(decisionID string) ([]types.DecisionPath, error)
	ListPredictedOutcomes(pathID string) ([]types.PredictedOutcome, error)
	ListActualOutcomes(pathID string) ([]types.ActualOutcome, error)
	ListGamificationEvents(userID string) ([]types.GamificationEvent, error)
}

// LoadDetail assembles a decision with its paths, workflow and outcomes.
func LoadDetail(s Store, decisionID string) (types.DecisionDetail, bool, error) {
	decision, ok := s.GetDecision(decisionID)
	if !ok {
		return types.DecisionDetail{}, false, nil
	}
	paths, err := s.ListDecisionPaths(decisionID)
	if err != nil {
		return types.DecisionDetail{}, false, err
	}

	detail := types.DecisionDetail{
		Decision:          decision,
		Paths:             paths,
		PredictedOutcomes: []types.PredictedOutcome{},
		ActualOutcomes:    []types.ActualOutcome{},
	}
	if wf, ok := s.GetWorkflow(decisionID); ok {
		detail.Workflow = &wf
	}
	for _, path := range paths {
		predicted, err := s.ListPredictedOutcomes(path.ID)
		if err != nil {
			return types.DecisionDetail{}, false, err
		}
		detail.PredictedOutcomes = append(detail.PredictedOutcomes, predicted...)

		actual, err := s.ListActualOutcomes(path.ID)
		if err != nil {
			return types.DecisionDetail{}, false, err
		}
		detail.ActualOutcomes = append(detail.ActualOutcomes, actual...)
	}
	return detail, true, nil
}
