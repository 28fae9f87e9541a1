package store

import (
	"sort"
	"sync"

	"github.com/davidahmann/neuroflow/pkg/types"
)

// InMemoryStore keeps every table in maps. Rows remember their insertion
// sequence so listings are stable for records sharing a timestamp.
type InMemoryStore struct {
	mu  sync.Mutex
	seq int

	decisions map[string]seqDecision
	paths     map[string]seqPath
	workflows map[string]types.Workflow
	predicted map[string]seqPredicted
	actual    map[string]seqActual
	profiles  map[string]types.Profile
	events    map[string]seqEvent
}

type seqDecision struct {
	seq int
	rec types.Decision
}

type seqPath struct {
	seq int
	rec types.DecisionPath
}

type seqPredicted struct {
	seq int
	rec types.PredictedOutcome
}

type seqActual struct {
	seq int
	rec types.ActualOutcome
}

type seqEvent struct {
	seq int
	rec types.GamificationEvent
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		decisions: make(map[string]seqDecision),
		paths:     make(map[string]seqPath),
		workflows: make(map[string]types.Workflow),
		predicted: make(map[string]seqPredicted),
		actual:    make(map[string]seqActual),
		profiles:  make(map[string]types.Profile),
		events:    make(map[string]seqEvent),
	}
}

func (s *InMemoryStore) WithTx(fn func(Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Work on a copy so a failing fn leaves the store untouched.
	scratch := s.clone()
	if err := fn((*memTx)(scratch)); err != nil {
		return err
	}
	s.seq = scratch.seq
	s.decisions = scratch.decisions
	s.paths = scratch.paths
	s.workflows = scratch.workflows
	s.predicted = scratch.predicted
	s.actual = scratch.actual
	s.profiles = scratch.profiles
	s.events = scratch.events
	return nil
}

func (s *InMemoryStore) clone() *InMemoryStore {
	out := &InMemoryStore{seq: s.seq}
	out.decisions = make(map[string]seqDecision, len(s.decisions))
	for k, v := range s.decisions {
		out.decisions[k] = v
	}
	out.paths = make(map[string]seqPath, len(s.paths))
	for k, v := range s.paths {
		out.paths[k] = v
	}
	out.workflows = make(map[string]types.Workflow, len(s.workflows))
	for k, v := range s.workflows {
		out.workflows[k] = v
	}
	out.predicted = make(map[string]seqPredicted, len(s.predicted))
	for k, v := range s.predicted {
		out.predicted[k] = v
	}
	out.actual = make(map[string]seqActual, len(s.actual))
	for k, v := range s.actual {
		out.actual[k] = v
	}
	out.profiles = make(map[string]types.Profile, len(s.profiles))
	for k, v := range s.profiles {
		out.profiles[k] = v
	}
	out.events = make(map[string]seqEvent, len(s.events))
	for k, v := range s.events {
		out.events[k] = v
	}
	return out
}

func (s *InMemoryStore) PutDecision(decision types.Decision) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutDecision(decision)
}

func (s *InMemoryStore) GetDecision(decisionID string) (types.Decision, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetDecision(decisionID)
}

func (s *InMemoryStore) ListDecisionsByUser(userID string) ([]types.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []seqDecision{}
	for _, row := range s.decisions {
		if row.rec.UserID == userID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].rec.CreatedAt != rows[j].rec.CreatedAt {
			return rows[i].rec.CreatedAt > rows[j].rec.CreatedAt
		}
		return rows[i].seq > rows[j].seq
	})
	out := make([]types.Decision, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rec)
	}
	return out, nil
}

func (s *InMemoryStore) PutDecisionPath(path types.DecisionPath) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutDecisionPath(path)
}

func (s *InMemoryStore) GetDecisionPath(pathID string) (types.DecisionPath, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetDecisionPath(pathID)
}

func (s *InMemoryStore) ListDecisionPaths(decisionID string) ([]types.DecisionPath, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []seqPath{}
	for _, row := range s.paths {
		if row.rec.DecisionID == decisionID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]types.DecisionPath, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rec)
	}
	return out, nil
}

func (s *InMemoryStore) PutWorkflow(workflow types.Workflow) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutWorkflow(workflow)
}

func (s *InMemoryStore) GetWorkflow(decisionID string) (types.Workflow, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetWorkflow(decisionID)
}

func (s *InMemoryStore) PutPredictedOutcome(outcome types.PredictedOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutPredictedOutcome(outcome)
}

func (s *InMemoryStore) ListPredictedOutcomes(pathID string) ([]types.PredictedOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []seqPredicted{}
	for _, row := range s.predicted {
		if row.rec.PathID == pathID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]types.PredictedOutcome, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rec)
	}
	return out, nil
}

func (s *InMemoryStore) PutActualOutcome(outcome types.ActualOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutActualOutcome(outcome)
}

func (s *InMemoryStore) ListActualOutcomes(pathID string) ([]types.ActualOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []seqActual{}
	for _, row := range s.actual {
		if row.rec.PathID == pathID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq < rows[j].seq })
	out := make([]types.ActualOutcome, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rec)
	}
	return out, nil
}

func (s *InMemoryStore) PutProfile(profile types.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutProfile(profile)
}

func (s *InMemoryStore) GetProfile(userID string) (types.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).GetProfile(userID)
}

func (s *InMemoryStore) CreateProfile(profile types.Profile) (types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).CreateProfile(profile)
}

func (s *InMemoryStore) PutGamificationEvent(event types.GamificationEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).PutGamificationEvent(event)
}

func (s *InMemoryStore) ListGamificationEvents(userID string) ([]types.GamificationEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := []seqEvent{}
	for _, row := range s.events {
		if row.rec.UserID == userID {
			rows = append(rows, row)
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].seq > rows[j].seq })
	out := make([]types.GamificationEvent, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.rec)
	}
	return out, nil
}

func (s *InMemoryStore) IncrementUserPoints(userID string, points int) (types.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return (*memTx)(s).IncrementUserPoints(userID, points)
}

type memTx InMemoryStore

func (t *memTx) next() int {
	t.seq++
	return t.seq
}

func (t *memTx) PutDecision(decision types.Decision) error {
	seq := t.next()
	if existing, ok := t.decisions[decision.ID]; ok {
		seq = existing.seq
	}
	t.decisions[decision.ID] = seqDecision{seq: seq, rec: decision}
	return nil
}

func (t *memTx) GetDecision(decisionID string) (types.Decision, bool) {
	row, ok := t.decisions[decisionID]
	return row.rec, ok
}

func (t *memTx) PutDecisionPath(path types.DecisionPath) error {
	seq := t.next()
	if existing, ok := t.paths[path.ID]; ok {
		seq = existing.seq
	}
	t.paths[path.ID] = seqPath{seq: seq, rec: path}
	return nil
}

func (t *memTx) GetDecisionPath(pathID string) (types.DecisionPath, bool) {
	row, ok := t.paths[pathID]
	return row.rec, ok
}

func (t *memTx) PutWorkflow(workflow types.Workflow) error {
	if existing, ok := t.workflows[workflow.DecisionID]; ok {
		workflow.ID = existing.ID
		workflow.CreatedAt = existing.CreatedAt
	}
	t.workflows[workflow.DecisionID] = workflow
	return nil
}

func (t *memTx) GetWorkflow(decisionID string) (types.Workflow, bool) {
	wf, ok := t.workflows[decisionID]
	return wf, ok
}

func (t *memTx) PutPredictedOutcome(outcome types.PredictedOutcome) error {
	t.predicted[outcome.ID] = seqPredicted{seq: t.next(), rec: outcome}
	return nil
}

func (t *memTx) PutActualOutcome(outcome types.ActualOutcome) error {
	t.actual[outcome.ID] = seqActual{seq: t.next(), rec: outcome}
	return nil
}

func (t *memTx) PutProfile(profile types.Profile) error {
	t.profiles[profile.UserID] = profile
	return nil
}

func (t *memTx) GetProfile(userID string) (types.Profile, bool) {
	profile, ok := t.profiles[userID]
	return profile, ok
}

func (t *memTx) CreateProfile(profile types.Profile) (types.Profile, error) {
	if existing, ok := t.profiles[profile.UserID]; ok {
		return existing, nil
	}
	t.profiles[profile.UserID] = profile
	return profile, nil
}

func (t *memTx) PutGamificationEvent(event types.GamificationEvent) error {
	t.events[event.ID] = seqEvent{seq: t.next(), rec: event}
	return nil
}

func (t *memTx) IncrementUserPoints(userID string, points int) (types.Profile, error) {
	profile, ok := t.profiles[userID]
	if !ok {
		return types.Profile{}, ErrNotFound
	}
	profile.Points += points
	profile.Level = types.LevelForPoints(profile.Points)
	t.profiles[userID] = profile
	return profile, nil
}
