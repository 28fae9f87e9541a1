package pgstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/lib/pq"

	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/pkg/types"
)

type Store struct {
	db *sql.DB
}

func OpenPostgres(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) WithTx(fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	if err := fn(&Tx{q: tx, lock: true}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) reader() *Tx { return &Tx{q: s.db} }

func (s *Store) PutDecision(decision types.Decision) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutDecision(decision) })
}

func (s *Store) GetDecision(decisionID string) (types.Decision, bool) {
	return s.reader().GetDecision(decisionID)
}

func (s *Store) ListDecisionsByUser(userID string) ([]types.Decision, error) {
	rows, err := s.db.Query(`SELECT `+decisionColumns+` FROM decisions WHERE user_id = $1 ORDER BY created_at DESC, seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Decision{}
	for rows.Next() {
		rec, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutDecisionPath(path types.DecisionPath) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutDecisionPath(path) })
}

func (s *Store) GetDecisionPath(pathID string) (types.DecisionPath, bool) {
	return s.reader().GetDecisionPath(pathID)
}

func (s *Store) ListDecisionPaths(decisionID string) ([]types.DecisionPath, error) {
	rows, err := s.db.Query(`SELECT `+pathColumns+` FROM decision_paths WHERE decision_id = $1 ORDER BY seq ASC`, decisionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.DecisionPath{}
	for rows.Next() {
		rec, err := scanPath(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutWorkflow(workflow types.Workflow) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutWorkflow(workflow) })
}

func (s *Store) GetWorkflow(decisionID string) (types.Workflow, bool) {
	return s.reader().GetWorkflow(decisionID)
}

func (s *Store) PutPredictedOutcome(outcome types.PredictedOutcome) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutPredictedOutcome(outcome) })
}

func (s *Store) ListPredictedOutcomes(pathID string) ([]types.PredictedOutcome, error) {
	rows, err := s.db.Query(`SELECT id, path_id, financial_impact::text, emotional_impact::text, relationship_impact::text, personal_growth::text, time_horizon::text, confidence_score, created_at
FROM predicted_outcomes WHERE path_id = $1 ORDER BY seq ASC`, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.PredictedOutcome{}
	for rows.Next() {
		var rec types.PredictedOutcome
		var fin, emo, rel, growth, horizon string
		var created time.Time
		if err := rows.Scan(&rec.ID, &rec.PathID, &fin, &emo, &rel, &growth, &horizon, &rec.ConfidenceScore, &created); err != nil {
			return nil, err
		}
		rec.FinancialImpact = json.RawMessage(fin)
		rec.EmotionalImpact = json.RawMessage(emo)
		rec.RelationshipImpact = json.RawMessage(rel)
		rec.PersonalGrowth = json.RawMessage(growth)
		rec.TimeHorizon = json.RawMessage(horizon)
		rec.CreatedAt = formatTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutActualOutcome(outcome types.ActualOutcome) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutActualOutcome(outcome) })
}

func (s *Store) ListActualOutcomes(pathID string) ([]types.ActualOutcome, error) {
	rows, err := s.db.Query(`SELECT id, path_id, financial_result::text, emotional_result::text, relationship_result::text, personal_growth_result::text, satisfaction_score, lessons_learned, recorded_at
FROM actual_outcomes WHERE path_id = $1 ORDER BY seq ASC`, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.ActualOutcome{}
	for rows.Next() {
		var rec types.ActualOutcome
		var fin, emo, rel, growth string
		var recorded time.Time
		if err := rows.Scan(&rec.ID, &rec.PathID, &fin, &emo, &rel, &growth, &rec.SatisfactionScore, pq.Array(&rec.LessonsLearned), &recorded); err != nil {
			return nil, err
		}
		rec.FinancialResult = json.RawMessage(fin)
		rec.EmotionalResult = json.RawMessage(emo)
		rec.RelationshipResult = json.RawMessage(rel)
		rec.PersonalGrowthResult = json.RawMessage(growth)
		rec.LessonsLearned = nonNil(rec.LessonsLearned)
		rec.RecordedAt = formatTime(recorded)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutProfile(profile types.Profile) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutProfile(profile) })
}

func (s *Store) GetProfile(userID string) (types.Profile, bool) {
	return s.reader().GetProfile(userID)
}

func (s *Store) CreateProfile(profile types.Profile) (types.Profile, error) {
	var out types.Profile
	err := s.WithTx(func(tx store.Tx) error {
		var err error
		out, err = tx.CreateProfile(profile)
		return err
	})
	return out, err
}

func (s *Store) PutGamificationEvent(event types.GamificationEvent) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutGamificationEvent(event) })
}

func (s *Store) ListGamificationEvents(userID string) ([]types.GamificationEvent, error) {
	rows, err := s.db.Query(`SELECT id, user_id, action_type, points_earned, badge_earned, description, created_at
FROM gamification WHERE user_id = $1 ORDER BY seq DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.GamificationEvent{}
	for rows.Next() {
		var rec types.GamificationEvent
		var desc sql.NullString
		var created time.Time
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ActionType, &rec.PointsEarned, &rec.BadgeEarned, &desc, &created); err != nil {
			return nil, err
		}
		rec.Description = desc.String
		rec.CreatedAt = formatTime(created)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) IncrementUserPoints(userID string, points int) (types.Profile, error) {
	var out types.Profile
	err := s.WithTx(func(tx store.Tx) error {
		var err error
		out, err = tx.IncrementUserPoints(userID, points)
		return err
	})
	return out, err
}

type queryer interface {
	Exec(query string, args ...any) (sql.Result, error)
	QueryRow(query string, args ...any) *sql.Row
}

// Tx runs statements on q. Inside WithTx, lock is set and single-row reads
// take row locks so read-check-write sequences cannot interleave.
type Tx struct {
	q    queryer
	lock bool
}

func (t *Tx) forUpdate() string {
	if t.lock {
		return " FOR UPDATE"
	}
	return ""
}

type rowScanner interface {
	Scan(dest ...any) error
}

const decisionColumns = `id, user_id, title, description, core_question, complexity_score, status, stakeholders, constraints, missing_information, cognitive_biases_detected, chunking_recommendation, analysis_source, created_at, updated_at`

func scanDecision(row rowScanner) (types.Decision, error) {
	var rec types.Decision
	var desc, question, chunking, source sql.NullString
	var constraints []byte
	var status string
	var created, updated time.Time
	if err := row.Scan(
		&rec.ID,
		&rec.UserID,
		&rec.Title,
		&desc,
		&question,
		&rec.ComplexityScore,
		&status,
		pq.Array(&rec.Stakeholders),
		&constraints,
		pq.Array(&rec.MissingInformation),
		pq.Array(&rec.CognitiveBiasesDetected),
		&chunking,
		&source,
		&created,
		&updated,
	); err != nil {
		return types.Decision{}, err
	}
	rec.Description = desc.String
	rec.CoreQuestion = question.String
	rec.ChunkingRecommendation = chunking.String
	rec.AnalysisSource = types.AnalysisSource(source.String)
	rec.Status = types.DecisionStatus(status)
	rec.Stakeholders = nonNil(rec.Stakeholders)
	rec.MissingInformation = nonNil(rec.MissingInformation)
	rec.CognitiveBiasesDetected = nonNil(rec.CognitiveBiasesDetected)
	if len(constraints) > 0 {
		if err := json.Unmarshal(constraints, &rec.Constraints); err != nil {
			return types.Decision{}, err
		}
	}
	rec.CreatedAt = formatTime(created)
	rec.UpdatedAt = formatTime(updated)
	return rec, nil
}

const pathColumns = `id, decision_id, title, description, probability_success, emotional_impact, resource_requirement, reversibility, risk_factors, success_enablers, created_at`

func scanPath(row rowScanner) (types.DecisionPath, error) {
	var rec types.DecisionPath
	var desc sql.NullString
	var emotional, resource, reversibility string
	var created time.Time
	if err := row.Scan(
		&rec.ID,
		&rec.DecisionID,
		&rec.Title,
		&desc,
		&rec.ProbabilitySuccess,
		&emotional,
		&resource,
		&reversibility,
		pq.Array(&rec.RiskFactors),
		pq.Array(&rec.SuccessEnablers),
		&created,
	); err != nil {
		return types.DecisionPath{}, err
	}
	rec.Description = desc.String
	rec.EmotionalImpact = types.EmotionalImpact(emotional)
	rec.ResourceRequirement = types.ResourceRequirement(resource)
	rec.Reversibility = types.Reversibility(reversibility)
	rec.RiskFactors = nonNil(rec.RiskFactors)
	rec.SuccessEnablers = nonNil(rec.SuccessEnablers)
	rec.CreatedAt = formatTime(created)
	return rec, nil
}

func (t *Tx) PutDecision(decision types.Decision) error {
	constraints, err := json.Marshal(decision.Constraints)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(
		`INSERT INTO decisions(`+decisionColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10,$11,$12,$13,$14::timestamptz,$15::timestamptz)
ON CONFLICT(id) DO UPDATE SET
  title=excluded.title,
  description=excluded.description,
  core_question=excluded.core_question,
  complexity_score=excluded.complexity_score,
  status=excluded.status,
  stakeholders=excluded.stakeholders,
  constraints=excluded.constraints,
  missing_information=excluded.missing_information,
  cognitive_biases_detected=excluded.cognitive_biases_detected,
  chunking_recommendation=excluded.chunking_recommendation,
  analysis_source=excluded.analysis_source,
  updated_at=excluded.updated_at`,
		decision.ID,
		decision.UserID,
		decision.Title,
		decision.Description,
		decision.CoreQuestion,
		decision.ComplexityScore,
		string(decision.Status),
		pq.Array(nonNil(decision.Stakeholders)),
		string(constraints),
		pq.Array(nonNil(decision.MissingInformation)),
		pq.Array(nonNil(decision.CognitiveBiasesDetected)),
		decision.ChunkingRecommendation,
		string(decision.AnalysisSource),
		decision.CreatedAt,
		decision.UpdatedAt,
	)
	return err
}

func (t *Tx) GetDecision(decisionID string) (types.Decision, bool) {
	row := t.q.QueryRow(`SELECT `+decisionColumns+` FROM decisions WHERE id = $1`+t.forUpdate(), decisionID)
	rec, err := scanDecision(row)
	if err != nil {
		return types.Decision{}, false
	}
	return rec, true
}

func (t *Tx) PutDecisionPath(path types.DecisionPath) error {
	_, err := t.q.Exec(
		`INSERT INTO decision_paths(`+pathColumns+`)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11::timestamptz)
ON CONFLICT(id) DO UPDATE SET
  title=excluded.title,
  description=excluded.description,
  probability_success=excluded.probability_success,
  emotional_impact=excluded.emotional_impact,
  resource_requirement=excluded.resource_requirement,
  reversibility=excluded.reversibility,
  risk_factors=excluded.risk_factors,
  success_enablers=excluded.success_enablers`,
		path.ID,
		path.DecisionID,
		path.Title,
		path.Description,
		path.ProbabilitySuccess,
		string(path.EmotionalImpact),
		string(path.ResourceRequirement),
		string(path.Reversibility),
		pq.Array(nonNil(path.RiskFactors)),
		pq.Array(nonNil(path.SuccessEnablers)),
		path.CreatedAt,
	)
	return err
}

func (t *Tx) GetDecisionPath(pathID string) (types.DecisionPath, bool) {
	row := t.q.QueryRow(`SELECT `+pathColumns+` FROM decision_paths WHERE id = $1`, pathID)
	rec, err := scanPath(row)
	if err != nil {
		return types.DecisionPath{}, false
	}
	return rec, true
}

func (t *Tx) PutWorkflow(workflow types.Workflow) error {
	nodes, err := json.Marshal(workflow.Nodes)
	if err != nil {
		return err
	}
	edges, err := json.Marshal(workflow.Edges)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(
		`INSERT INTO workflows(id, decision_id, nodes, edges, layout_data, created_at, updated_at)
VALUES($1,$2,$3::jsonb,$4::jsonb,$5::jsonb,$6::timestamptz,$7::timestamptz)
ON CONFLICT(decision_id) DO UPDATE SET
  nodes=excluded.nodes,
  edges=excluded.edges,
  layout_data=excluded.layout_data,
  updated_at=excluded.updated_at`,
		workflow.ID,
		workflow.DecisionID,
		string(nodes),
		string(edges),
		string(types.RawOrEmpty(workflow.LayoutData)),
		workflow.CreatedAt,
		workflow.UpdatedAt,
	)
	return err
}

func (t *Tx) GetWorkflow(decisionID string) (types.Workflow, bool) {
	var rec types.Workflow
	var nodes, edges, layout string
	var created, updated time.Time
	row := t.q.QueryRow(`SELECT id, decision_id, nodes::text, edges::text, layout_data::text, created_at, updated_at FROM workflows WHERE decision_id = $1`, decisionID)
	if err := row.Scan(&rec.ID, &rec.DecisionID, &nodes, &edges, &layout, &created, &updated); err != nil {
		return types.Workflow{}, false
	}
	if err := json.Unmarshal([]byte(nodes), &rec.Nodes); err != nil {
		return types.Workflow{}, false
	}
	if err := json.Unmarshal([]byte(edges), &rec.Edges); err != nil {
		return types.Workflow{}, false
	}
	rec.LayoutData = json.RawMessage(layout)
	rec.CreatedAt = formatTime(created)
	rec.UpdatedAt = formatTime(updated)
	return rec, true
}

func (t *Tx) PutPredictedOutcome(outcome types.PredictedOutcome) error {
	_, err := t.q.Exec(
		`INSERT INTO predicted_outcomes(id, path_id, financial_impact, emotional_impact, relationship_impact, personal_growth, time_horizon, confidence_score, created_at)
VALUES($1,$2,$3::jsonb,$4::jsonb,$5::jsonb,$6::jsonb,$7::jsonb,$8,$9::timestamptz)`,
		outcome.ID,
		outcome.PathID,
		string(types.RawOrEmpty(outcome.FinancialImpact)),
		string(types.RawOrEmpty(outcome.EmotionalImpact)),
		string(types.RawOrEmpty(outcome.RelationshipImpact)),
		string(types.RawOrEmpty(outcome.PersonalGrowth)),
		string(types.RawOrEmpty(outcome.TimeHorizon)),
		outcome.ConfidenceScore,
		outcome.CreatedAt,
	)
	return err
}

func (t *Tx) PutActualOutcome(outcome types.ActualOutcome) error {
	_, err := t.q.Exec(
		`INSERT INTO actual_outcomes(id, path_id, financial_result, emotional_result, relationship_result, personal_growth_result, satisfaction_score, lessons_learned, recorded_at)
VALUES($1,$2,$3::jsonb,$4::jsonb,$5::jsonb,$6::jsonb,$7,$8,$9::timestamptz)`,
		outcome.ID,
		outcome.PathID,
		string(types.RawOrEmpty(outcome.FinancialResult)),
		string(types.RawOrEmpty(outcome.EmotionalResult)),
		string(types.RawOrEmpty(outcome.RelationshipResult)),
		string(types.RawOrEmpty(outcome.PersonalGrowthResult)),
		outcome.SatisfactionScore,
		pq.Array(nonNil(outcome.LessonsLearned)),
		outcome.RecordedAt,
	)
	return err
}

const profileColumns = `id, user_id, email, full_name, avatar_url, points, level, badges, preferences::text, created_at, updated_at`

func scanProfile(row rowScanner) (types.Profile, error) {
	var rec types.Profile
	var email, name, avatar sql.NullString
	var prefs string
	var created, updated time.Time
	if err := row.Scan(&rec.ID, &rec.UserID, &email, &name, &avatar, &rec.Points, &rec.Level, pq.Array(&rec.Badges), &prefs, &created, &updated); err != nil {
		return types.Profile{}, err
	}
	rec.Email = email.String
	rec.FullName = name.String
	rec.AvatarURL = avatar.String
	rec.Badges = nonNil(rec.Badges)
	rec.Preferences = json.RawMessage(prefs)
	rec.CreatedAt = formatTime(created)
	rec.UpdatedAt = formatTime(updated)
	return rec, nil
}

func (t *Tx) PutProfile(profile types.Profile) error {
	_, err := t.q.Exec(
		`INSERT INTO profiles(id, user_id, email, full_name, avatar_url, points, level, badges, preferences, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::timestamptz,$11::timestamptz)
ON CONFLICT(user_id) DO UPDATE SET
  email=excluded.email,
  full_name=excluded.full_name,
  avatar_url=excluded.avatar_url,
  points=excluded.points,
  level=excluded.level,
  badges=excluded.badges,
  preferences=excluded.preferences,
  updated_at=excluded.updated_at`,
		profile.ID,
		profile.UserID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		profile.Points,
		profile.Level,
		pq.Array(nonNil(profile.Badges)),
		string(types.RawOrEmpty(profile.Preferences)),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return err
}

func (t *Tx) GetProfile(userID string) (types.Profile, bool) {
	row := t.q.QueryRow(`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`+t.forUpdate(), userID)
	rec, err := scanProfile(row)
	if err != nil {
		return types.Profile{}, false
	}
	return rec, true
}

func (t *Tx) CreateProfile(profile types.Profile) (types.Profile, error) {
	_, err := t.q.Exec(
		`INSERT INTO profiles(id, user_id, email, full_name, avatar_url, points, level, badges, preferences, created_at, updated_at)
VALUES($1,$2,$3,$4,$5,$6,$7,$8,$9::jsonb,$10::timestamptz,$11::timestamptz)
ON CONFLICT(user_id) DO NOTHING`,
		profile.ID,
		profile.UserID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		profile.Points,
		profile.Level,
		pq.Array(nonNil(profile.Badges)),
		string(types.RawOrEmpty(profile.Preferences)),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	if err != nil {
		return types.Profile{}, err
	}
	stored, ok := t.GetProfile(profile.UserID)
	if !ok {
		return types.Profile{}, errors.New("profile missing after insert")
	}
	return stored, nil
}

func (t *Tx) PutGamificationEvent(event types.GamificationEvent) error {
	_, err := t.q.Exec(
		`INSERT INTO gamification(id, user_id, action_type, points_earned, badge_earned, description, created_at)
VALUES($1,$2,$3,$4,$5,$6,$7::timestamptz)`,
		event.ID,
		event.UserID,
		event.ActionType,
		event.PointsEarned,
		event.BadgeEarned,
		event.Description,
		event.CreatedAt,
	)
	return err
}

// IncrementUserPoints calls the increment_user_points SQL function, which
// returns the updated profile row or no row when the user has no profile.
func (t *Tx) IncrementUserPoints(userID string, points int) (types.Profile, error) {
	row := t.q.QueryRow(`SELECT `+profileColumns+` FROM increment_user_points($1, $2)`, userID, points)
	rec, err := scanProfile(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Profile{}, store.ErrNotFound
	}
	if err != nil {
		return types.Profile{}, err
	}
	return rec, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func nonNil(values []string) []string {
	if values == nil {
		return []string{}
	}
	return values
}
