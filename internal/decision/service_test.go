package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/davidahmann/neuroflow/internal/analysis"
	"github.com/davidahmann/neuroflow/internal/gamification"
	"github.com/davidahmann/neuroflow/internal/realtime"
	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/pkg/types"
)

type stubGenerator struct {
	mu      sync.Mutex
	replies map[analysis.PromptKind]string
}

func (g *stubGenerator) Generate(_ context.Context, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	prompts := analysis.DefaultPrompts()
	for kind, reply := range g.replies {
		if len(prompt) >= len(prompts[kind]) && prompt[:len(prompts[kind])] == prompts[kind] {
			return reply, nil
		}
	}
	return "", errors.New("no reply configured")
}

type fixture struct {
	svc   *Service
	store *store.InMemoryStore
	hub   *realtime.Hub
	games *gamification.Service
}

func newFixture(t *testing.T, gen analysis.Generator) fixture {
	t.Helper()
	mem := store.NewInMemoryStore()
	n := 0
	var mu sync.Mutex
	newID := func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%03d", n)
	}
	clock := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	now := func() time.Time { return clock }

	games, err := gamification.NewService(gamification.NewServiceInput{Store: mem, Now: now, NewID: newID})
	if err != nil {
		t.Fatalf("gamification: %v", err)
	}
	hub := realtime.NewHub(nil)
	t.Cleanup(hub.Close)

	svc, err := NewService(NewServiceInput{
		Store:    mem,
		Analyzer: analysis.NewAnalyzer(gen, nil, nil),
		Points:   games,
		Hub:      hub,
		Now:      now,
		NewID:    newID,
	})
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return fixture{svc: svc, store: mem, hub: hub, games: games}
}

func TestNewServiceRequiresDeps(t *testing.T) {
	if _, err := NewService(NewServiceInput{}); err == nil {
		t.Fatalf("expected error without store")
	}
	if _, err := NewService(NewServiceInput{Store: store.NewInMemoryStore()}); err == nil {
		t.Fatalf("expected error without analyzer")
	}
}

func TestCreateCareerChangeWithoutKeyUsesFallback(t *testing.T) {
	f := newFixture(t, nil)

	got, err := f.svc.Create(context.Background(), "u1", CreateRequest{
		Title:        "Career Change",
		Description:  "...",
		CoreQuestion: "Should I switch fields?",
		Stakeholders: " Partner, ,Team ",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.ComplexityScore != 8 {
		t.Fatalf("expected complexity 8, got %d", got.ComplexityScore)
	}
	if len(got.CognitiveBiasesDetected) != 2 {
		t.Fatalf("expected two biases, got %v", got.CognitiveBiasesDetected)
	}
	if got.Status != types.StatusDraft || got.ID == "" || got.UserID != "u1" {
		t.Fatalf("unexpected decision: %+v", got)
	}
	if got.AnalysisSource != types.SourceFallback {
		t.Fatalf("expected fallback source, got %s", got.AnalysisSource)
	}
	if len(got.Stakeholders) != 2 || got.Stakeholders[0] != "Partner" || got.Stakeholders[1] != "Team" {
		t.Fatalf("unexpected stakeholders: %v", got.Stakeholders)
	}
	if got.Title != "Career Change" || got.CoreQuestion != "Should I switch fields?" {
		t.Fatalf("form fields should not be replaced by analysis: %+v", got)
	}

	stored, ok := f.store.GetDecision(got.ID)
	if !ok || stored.ComplexityScore != 8 {
		t.Fatalf("expected stored decision, ok=%v %+v", ok, stored)
	}

	profile, _ := f.store.GetProfile("u1")
	if profile.Points != gamification.PointsDecisionCreated {
		t.Fatalf("expected 50 points, got %d", profile.Points)
	}
}

func TestCreateAssignsFreshIDs(t *testing.T) {
	f := newFixture(t, nil)
	seen := map[string]bool{}
	for i := 0; i < 5; i++ {
		d, err := f.svc.Create(context.Background(), "u1", CreateRequest{Title: fmt.Sprintf("D%d", i)})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		if seen[d.ID] {
			t.Fatalf("duplicate id %s", d.ID)
		}
		seen[d.ID] = true
	}
}

func TestNewDraftPrecedesAnalysis(t *testing.T) {
	f := newFixture(t, nil)
	d := f.svc.NewDraft("u1", CreateRequest{Title: "Move"})
	if d.ID == "" || d.Status != types.StatusDraft || d.ComplexityScore != 5 {
		t.Fatalf("unexpected draft: %+v", d)
	}
	if d.AnalysisSource != "" {
		t.Fatalf("draft should carry no analysis source")
	}
}

func TestCreateComplexityOutOfRangeDefaultsToFive(t *testing.T) {
	gen := &stubGenerator{replies: map[analysis.PromptKind]string{
		analysis.PromptDecisionAnalyzer: `{"complexity_score": 42, "cognitive_biases_detected": ["Anchoring"]}`,
	}}
	f := newFixture(t, gen)

	d, err := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "Buy a house"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.ComplexityScore != 5 || d.AnalysisSource != types.SourceModel || d.CognitiveBiasesDetected[0] != "Anchoring" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestCreateRejectsEmptyTitle(t *testing.T) {
	f := newFixture(t, nil)
	if _, err := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "  "}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestCreatePublishesEvent(t *testing.T) {
	f := newFixture(t, nil)
	// Ids are sequential in the fixture, so the new decision gets the first.
	next := "id-001"
	sub := f.hub.Subscribe(realtime.DecisionTopic(next), 4)
	defer sub.Close()

	d, err := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "Career Change"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if d.ID != next {
		t.Fatalf("expected id %s, got %s", next, d.ID)
	}
	select {
	case ev := <-sub.C:
		if ev.Type != realtime.EventDecisionCreated {
			t.Fatalf("unexpected event: %+v", ev)
		}
	default:
		t.Fatalf("expected decision.created event")
	}
}

func TestListFiltersAndValidatesStatus(t *testing.T) {
	f := newFixture(t, nil)
	for _, title := range []string{"Career Change", "Buy a house", "Move abroad"} {
		if _, err := f.svc.Create(context.Background(), "u1", CreateRequest{Title: title, Description: "about " + title}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	if _, err := f.svc.Create(context.Background(), "u2", CreateRequest{Title: "Career elsewhere"}); err != nil {
		t.Fatalf("create: %v", err)
	}

	all, err := f.svc.List("u1", Filter{Status: StatusAll})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 decisions, got %d", len(all))
	}
	for _, d := range all {
		if !d.Status.Valid() {
			t.Fatalf("invalid status in listing: %s", d.Status)
		}
	}

	got, err := f.svc.List("u1", Filter{Search: "CAREER"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 1 || got[0].Title != "Career Change" {
		t.Fatalf("unexpected search result: %+v", got)
	}

	if _, err := f.svc.List("u1", Filter{Status: "archived"}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestGetHidesOtherUsersDecisions(t *testing.T) {
	f := newFixture(t, nil)
	d, _ := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "Mine"})

	if _, err := f.svc.Get("u2", d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	detail, err := f.svc.Get("u1", d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if detail.Decision.ID != d.ID || detail.Paths == nil {
		t.Fatalf("unexpected detail: %+v", detail)
	}
}

func validUpdate(d types.Decision) UpdateRequest {
	return UpdateRequest{
		Title:           d.Title,
		Description:     d.Description,
		CoreQuestion:    d.CoreQuestion,
		ComplexityScore: d.ComplexityScore,
		Status:          types.StatusInProgress,
	}
}

func TestUpdateReplacesRecordAndChecksIfMatch(t *testing.T) {
	f := newFixture(t, nil)
	d, _ := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "Career Change"})

	tag, err := ETag(d)
	if err != nil {
		t.Fatalf("etag: %v", err)
	}

	updated, err := f.svc.Update("u1", d.ID, validUpdate(d), `"`+tag+`"`)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Status != types.StatusInProgress || len(updated.CognitiveBiasesDetected) != 0 {
		t.Fatalf("expected whole-record replacement, got %+v", updated)
	}

	// The old tag is now stale.
	if _, err := f.svc.Update("u1", d.ID, validUpdate(d), tag); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	// No tag means no precondition.
	if _, err := f.svc.Update("u1", d.ID, validUpdate(d), ""); err != nil {
		t.Fatalf("update without if-match: %v", err)
	}
	if _, err := f.svc.Update("u2", d.ID, validUpdate(d), ""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	bad := validUpdate(d)
	bad.Status = "archived"
	if _, err := f.svc.Update("u1", d.ID, bad, ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
	bad = validUpdate(d)
	bad.ComplexityScore = 0
	if _, err := f.svc.Update("u1", d.ID, bad, ""); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}

func TestStats(t *testing.T) {
	f := newFixture(t, nil)
	a, _ := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "A"})
	_, _ = f.svc.Create(context.Background(), "u1", CreateRequest{Title: "B"})
	up := validUpdate(a)
	up.Status = types.StatusCompleted
	up.ComplexityScore = 4
	if _, err := f.svc.Update("u1", a.ID, up, ""); err != nil {
		t.Fatalf("update: %v", err)
	}

	stats, err := f.svc.Stats("u1")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	want := types.DashboardStats{Total: 2, Draft: 1, Completed: 1, AverageComplexity: 6}
	if stats != want {
		t.Fatalf("unexpected stats: %+v want %+v", stats, want)
	}
}

func TestScopedAnalyzers(t *testing.T) {
	f := newFixture(t, nil)
	d, _ := f.svc.Create(context.Background(), "u1", CreateRequest{Title: "A"})
	ctx := context.Background()

	if res, err := f.svc.AnalyzeEmotions(ctx, "u1", d.ID, "nervous"); err != nil || res.Source != types.SourceFallback {
		t.Fatalf("emotions: %+v %v", res, err)
	}
	if res, err := f.svc.MapValues(ctx, "u1", d.ID, "family"); err != nil || res.Kind != analysis.PromptValuesMapper {
		t.Fatalf("values: %+v %v", res, err)
	}
	if res, err := f.svc.AnalyzeRisks(ctx, "u1", d.ID); err != nil || res.Kind != analysis.PromptRiskAnalyzer {
		t.Fatalf("risks: %+v %v", res, err)
	}
	if _, err := f.svc.AnalyzeEmotions(ctx, "u2", d.ID, "x"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPreview(t *testing.T) {
	f := newFixture(t, nil)
	got, err := f.svc.Preview(context.Background(), CreateRequest{Title: "Career Change"})
	if err != nil {
		t.Fatalf("preview: %v", err)
	}
	if got.ComplexityScore != 8 {
		t.Fatalf("unexpected preview: %+v", got)
	}
	if list, _ := f.svc.List("", Filter{}); len(list) != 0 {
		t.Fatalf("preview must not store anything")
	}
	if _, err := f.svc.Preview(context.Background(), CreateRequest{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
