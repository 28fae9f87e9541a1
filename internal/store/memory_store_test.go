package store

import (
	"errors"
	"testing"

	"github.com/davidahmann/neuroflow/pkg/types"
)

func TestInMemoryStoreDecisions(t *testing.T) {
	s := NewInMemoryStore()

	older := types.Decision{ID: "d1", UserID: "u1", Title: "Older", Status: types.StatusDraft, ComplexityScore: 5, CreatedAt: "2025-01-01T00:00:00Z"}
	newer := types.Decision{ID: "d2", UserID: "u1", Title: "Newer", Status: types.StatusDraft, ComplexityScore: 5, CreatedAt: "2025-01-02T00:00:00Z"}
	other := types.Decision{ID: "d3", UserID: "u2", Title: "Other", Status: types.StatusDraft, ComplexityScore: 5, CreatedAt: "2025-01-03T00:00:00Z"}
	for _, d := range []types.Decision{older, newer, other} {
		if err := s.PutDecision(d); err != nil {
			t.Fatalf("put decision: %v", err)
		}
	}

	got, err := s.ListDecisionsByUser("u1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "d2" || got[1].ID != "d1" {
		t.Fatalf("unexpected order: %+v", got)
	}

	older.Title = "Renamed"
	if err := s.PutDecision(older); err != nil {
		t.Fatalf("update decision: %v", err)
	}
	if rec, ok := s.GetDecision("d1"); !ok || rec.Title != "Renamed" {
		t.Fatalf("expected upsert, got ok=%v rec=%+v", ok, rec)
	}
	if _, ok := s.GetDecision("missing"); ok {
		t.Fatalf("expected missing decision")
	}
}

func TestInMemoryStoreSameTimestampNewestInsertFirst(t *testing.T) {
	s := NewInMemoryStore()
	for _, id := range []string{"a", "b", "c"} {
		if err := s.PutDecision(types.Decision{ID: id, UserID: "u", CreatedAt: "2025-01-01T00:00:00Z"}); err != nil {
			t.Fatalf("put: %v", err)
		}
	}
	got, _ := s.ListDecisionsByUser("u")
	if got[0].ID != "c" || got[2].ID != "a" {
		t.Fatalf("unexpected order: %+v", got)
	}
}

func TestInMemoryStorePathsKeepInsertionOrder(t *testing.T) {
	s := NewInMemoryStore()
	for _, id := range []string{"p2", "p1", "p3"} {
		if err := s.PutDecisionPath(types.DecisionPath{ID: id, DecisionID: "d1"}); err != nil {
			t.Fatalf("put path: %v", err)
		}
	}
	// Re-putting an existing path keeps its position.
	if err := s.PutDecisionPath(types.DecisionPath{ID: "p2", DecisionID: "d1", Title: "updated"}); err != nil {
		t.Fatalf("update path: %v", err)
	}
	got, _ := s.ListDecisionPaths("d1")
	if len(got) != 3 || got[0].ID != "p2" || got[0].Title != "updated" || got[1].ID != "p1" {
		t.Fatalf("unexpected paths: %+v", got)
	}
}

func TestInMemoryStoreWorkflowUpsertKeepsIdentity(t *testing.T) {
	s := NewInMemoryStore()
	if err := s.PutWorkflow(types.Workflow{ID: "w1", DecisionID: "d1", CreatedAt: "2025-01-01T00:00:00Z"}); err != nil {
		t.Fatalf("put workflow: %v", err)
	}
	if err := s.PutWorkflow(types.Workflow{ID: "w2", DecisionID: "d1", CreatedAt: "2025-02-01T00:00:00Z", UpdatedAt: "2025-02-01T00:00:00Z"}); err != nil {
		t.Fatalf("update workflow: %v", err)
	}
	wf, ok := s.GetWorkflow("d1")
	if !ok || wf.ID != "w1" || wf.CreatedAt != "2025-01-01T00:00:00Z" || wf.UpdatedAt != "2025-02-01T00:00:00Z" {
		t.Fatalf("unexpected workflow: ok=%v wf=%+v", ok, wf)
	}
}

func TestInMemoryStoreWithTxRollsBack(t *testing.T) {
	s := NewInMemoryStore()
	boom := errors.New("boom")
	err := s.WithTx(func(tx Tx) error {
		if err := tx.PutDecision(types.Decision{ID: "d1", UserID: "u"}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, ok := s.GetDecision("d1"); ok {
		t.Fatalf("expected rollback to discard decision")
	}

	if err := s.WithTx(func(tx Tx) error {
		return tx.PutDecision(types.Decision{ID: "d2", UserID: "u"})
	}); err != nil {
		t.Fatalf("withtx: %v", err)
	}
	if _, ok := s.GetDecision("d2"); !ok {
		t.Fatalf("expected committed decision")
	}
}

func TestInMemoryStoreIncrementUserPoints(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.IncrementUserPoints("nobody", 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	if err := s.PutProfile(types.Profile{ID: "p", UserID: "u", Points: 480, Level: 1}); err != nil {
		t.Fatalf("put profile: %v", err)
	}
	profile, err := s.IncrementUserPoints("u", 25)
	if err != nil {
		t.Fatalf("increment: %v", err)
	}
	if profile.Points != 505 || profile.Level != 2 {
		t.Fatalf("unexpected profile: %+v", profile)
	}
}

func TestInMemoryStoreCreateProfileKeepsExisting(t *testing.T) {
	s := NewInMemoryStore()
	if _, err := s.CreateProfile(types.Profile{ID: "p1", UserID: "u", Level: 1}); err != nil {
		t.Fatalf("create profile: %v", err)
	}
	if _, err := s.IncrementUserPoints("u", 50); err != nil {
		t.Fatalf("increment: %v", err)
	}
	got, err := s.CreateProfile(types.Profile{ID: "p2", UserID: "u", Level: 1})
	if err != nil {
		t.Fatalf("create profile again: %v", err)
	}
	if got.ID != "p1" || got.Points != 50 {
		t.Fatalf("existing profile should be kept, got %+v", got)
	}
}

func TestInMemoryStoreEventsNewestFirst(t *testing.T) {
	s := NewInMemoryStore()
	for _, id := range []string{"e1", "e2"} {
		if err := s.PutGamificationEvent(types.GamificationEvent{ID: id, UserID: "u", PointsEarned: 50}); err != nil {
			t.Fatalf("put event: %v", err)
		}
	}
	got, _ := s.ListGamificationEvents("u")
	if len(got) != 2 || got[0].ID != "e2" {
		t.Fatalf("unexpected events: %+v", got)
	}
}

func TestLoadDetail(t *testing.T) {
	s := NewInMemoryStore()
	if _, ok, err := LoadDetail(s, "missing"); ok || err != nil {
		t.Fatalf("expected missing detail, ok=%v err=%v", ok, err)
	}

	_ = s.PutDecision(types.Decision{ID: "d1", UserID: "u"})
	_ = s.PutDecisionPath(types.DecisionPath{ID: "p1", DecisionID: "d1"})
	_ = s.PutDecisionPath(types.DecisionPath{ID: "p2", DecisionID: "d1"})
	_ = s.PutPredictedOutcome(types.PredictedOutcome{ID: "o1", PathID: "p1"})
	_ = s.PutPredictedOutcome(types.PredictedOutcome{ID: "o2", PathID: "p2"})
	_ = s.PutActualOutcome(types.ActualOutcome{ID: "a1", PathID: "p2", SatisfactionScore: 7})
	_ = s.PutWorkflow(types.Workflow{ID: "w1", DecisionID: "d1"})

	detail, ok, err := LoadDetail(s, "d1")
	if err != nil || !ok {
		t.Fatalf("load detail: ok=%v err=%v", ok, err)
	}
	if len(detail.Paths) != 2 || len(detail.PredictedOutcomes) != 2 || len(detail.ActualOutcomes) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if detail.Workflow == nil || detail.Workflow.ID != "w1" {
		t.Fatalf("expected workflow in detail")
	}
}
