package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	_ "modernc.org/sqlite"

	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/pkg/types"
)

type Store struct {
	db *sql.DB
}

func OpenSQLite(dsn string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = db.Close()
		return nil, err
	}
	return New(db), nil
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

func (s *Store) WithTx(fn func(store.Tx) error) error {
	tx, err := s.db.BeginTx(context.Background(), &sql.TxOptions{})
	if err != nil {
		return err
	}
	if _, err := tx.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := fn(&Tx{q: tx}); err != nil {
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
	rows, err := s.db.Query(`SELECT `+decisionColumns+` FROM decisions WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
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
	rows, err := s.db.Query(`SELECT `+pathColumns+` FROM decision_paths WHERE decision_id = ? ORDER BY seq ASC`, decisionID)
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
	rows, err := s.db.Query(`SELECT id, path_id, financial_impact, emotional_impact, relationship_impact, personal_growth, time_horizon, confidence_score, created_at
FROM predicted_outcomes WHERE path_id = ? ORDER BY rowid ASC`, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.PredictedOutcome{}
	for rows.Next() {
		var rec types.PredictedOutcome
		var fin, emo, rel, growth, horizon string
		if err := rows.Scan(&rec.ID, &rec.PathID, &fin, &emo, &rel, &growth, &horizon, &rec.ConfidenceScore, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.FinancialImpact = json.RawMessage(fin)
		rec.EmotionalImpact = json.RawMessage(emo)
		rec.RelationshipImpact = json.RawMessage(rel)
		rec.PersonalGrowth = json.RawMessage(growth)
		rec.TimeHorizon = json.RawMessage(horizon)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) PutActualOutcome(outcome types.ActualOutcome) error {
	return s.WithTx(func(tx store.Tx) error { return tx.PutActualOutcome(outcome) })
}

func (s *Store) ListActualOutcomes(pathID string) ([]types.ActualOutcome, error) {
	rows, err := s.db.Query(`SELECT id, path_id, financial_result, emotional_result, relationship_result, personal_growth_result, satisfaction_score, lessons_learned, recorded_at
FROM actual_outcomes WHERE path_id = ? ORDER BY rowid ASC`, pathID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.ActualOutcome{}
	for rows.Next() {
		var rec types.ActualOutcome
		var fin, emo, rel, growth, lessons string
		if err := rows.Scan(&rec.ID, &rec.PathID, &fin, &emo, &rel, &growth, &rec.SatisfactionScore, &lessons, &rec.RecordedAt); err != nil {
			return nil, err
		}
		rec.FinancialResult = json.RawMessage(fin)
		rec.EmotionalResult = json.RawMessage(emo)
		rec.RelationshipResult = json.RawMessage(rel)
		rec.PersonalGrowthResult = json.RawMessage(growth)
		if err := decodeStrings(lessons, &rec.LessonsLearned); err != nil {
			return nil, err
		}
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
FROM gamification WHERE user_id = ? ORDER BY created_at DESC, rowid DESC`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.GamificationEvent{}
	for rows.Next() {
		var rec types.GamificationEvent
		var desc sql.NullString
		if err := rows.Scan(&rec.ID, &rec.UserID, &rec.ActionType, &rec.PointsEarned, &rec.BadgeEarned, &desc, &rec.CreatedAt); err != nil {
			return nil, err
		}
		rec.Description = desc.String
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

type Tx struct {
	q queryer
}

type rowScanner interface {
	Scan(dest ...any) error
}

const decisionColumns = `id, user_id, title, description, core_question, complexity_score, status, stakeholders, constraints, missing_information, cognitive_biases_detected, chunking_recommendation, analysis_source, created_at, updated_at`

func scanDecision(row rowScanner) (types.Decision, error) {
	var rec types.Decision
	var desc, question, chunking, source sql.NullString
	var stakeholders, constraints, missing, biases string
	var status string
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.Title, &desc, &question, &rec.ComplexityScore, &status, &stakeholders, &constraints, &missing, &biases, &chunking, &source, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return types.Decision{}, err
	}
	rec.Description = desc.String
	rec.CoreQuestion = question.String
	rec.ChunkingRecommendation = chunking.String
	rec.AnalysisSource = types.AnalysisSource(source.String)
	rec.Status = types.DecisionStatus(status)
	if err := decodeStrings(stakeholders, &rec.Stakeholders); err != nil {
		return types.Decision{}, err
	}
	if err := json.Unmarshal([]byte(constraints), &rec.Constraints); err != nil {
		return types.Decision{}, err
	}
	if err := decodeStrings(missing, &rec.MissingInformation); err != nil {
		return types.Decision{}, err
	}
	if err := decodeStrings(biases, &rec.CognitiveBiasesDetected); err != nil {
		return types.Decision{}, err
	}
	return rec, nil
}

const pathColumns = `id, decision_id, title, description, probability_success, emotional_impact, resource_requirement, reversibility, risk_factors, success_enablers, created_at`

func scanPath(row rowScanner) (types.DecisionPath, error) {
	var rec types.DecisionPath
	var desc sql.NullString
	var emotional, resource, reversibility, risks, enablers string
	if err := row.Scan(&rec.ID, &rec.DecisionID, &rec.Title, &desc, &rec.ProbabilitySuccess, &emotional, &resource, &reversibility, &risks, &enablers, &rec.CreatedAt); err != nil {
		return types.DecisionPath{}, err
	}
	rec.Description = desc.String
	rec.EmotionalImpact = types.EmotionalImpact(emotional)
	rec.ResourceRequirement = types.ResourceRequirement(resource)
	rec.Reversibility = types.Reversibility(reversibility)
	if err := decodeStrings(risks, &rec.RiskFactors); err != nil {
		return types.DecisionPath{}, err
	}
	if err := decodeStrings(enablers, &rec.SuccessEnablers); err != nil {
		return types.DecisionPath{}, err
	}
	return rec, nil
}

func (t *Tx) PutDecision(decision types.Decision) error {
	stakeholders, err := encodeStrings(decision.Stakeholders)
	if err != nil {
		return err
	}
	constraints, err := json.Marshal(decision.Constraints)
	if err != nil {
		return err
	}
	missing, err := encodeStrings(decision.MissingInformation)
	if err != nil {
		return err
	}
	biases, err := encodeStrings(decision.CognitiveBiasesDetected)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(
		`INSERT INTO decisions(`+decisionColumns+`)
VALUES(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)
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
		stakeholders,
		string(constraints),
		missing,
		biases,
		decision.ChunkingRecommendation,
		string(decision.AnalysisSource),
		decision.CreatedAt,
		decision.UpdatedAt,
	)
	return err
}

func (t *Tx) GetDecision(decisionID string) (types.Decision, bool) {
	row := t.q.QueryRow(`SELECT `+decisionColumns+` FROM decisions WHERE id = ?`, decisionID)
	rec, err := scanDecision(row)
	if err != nil {
		return types.Decision{}, false
	}
	return rec, true
}

func (t *Tx) PutDecisionPath(path types.DecisionPath) error {
	risks, err := encodeStrings(path.RiskFactors)
	if err != nil {
		return err
	}
	enablers, err := encodeStrings(path.SuccessEnablers)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(
		`INSERT INTO decision_paths(`+pathColumns+`, seq)
VALUES(?,?,?,?,?,?,?,?,?,?,?,(SELECT COALESCE(MAX(seq), 0) + 1 FROM decision_paths))
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
		risks,
		enablers,
		path.CreatedAt,
	)
	return err
}

func (t *Tx) GetDecisionPath(pathID string) (types.DecisionPath, bool) {
	row := t.q.QueryRow(`SELECT `+pathColumns+` FROM decision_paths WHERE id = ?`, pathID)
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
VALUES(?,?,?,?,?,?,?)
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
	row := t.q.QueryRow(`SELECT id, decision_id, nodes, edges, layout_data, created_at, updated_at FROM workflows WHERE decision_id = ?`, decisionID)
	if err := row.Scan(&rec.ID, &rec.DecisionID, &nodes, &edges, &layout, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return types.Workflow{}, false
	}
	if err := json.Unmarshal([]byte(nodes), &rec.Nodes); err != nil {
		return types.Workflow{}, false
	}
	if err := json.Unmarshal([]byte(edges), &rec.Edges); err != nil {
		return types.Workflow{}, false
	}
	rec.LayoutData = json.RawMessage(layout)
	return rec, true
}

func (t *Tx) PutPredictedOutcome(outcome types.PredictedOutcome) error {
	_, err := t.q.Exec(
		`INSERT INTO predicted_outcomes(id, path_id, financial_impact, emotional_impact, relationship_impact, personal_growth, time_horizon, confidence_score, created_at)
VALUES(?,?,?,?,?,?,?,?,?)`,
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
	lessons, err := encodeStrings(outcome.LessonsLearned)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(
		`INSERT INTO actual_outcomes(id, path_id, financial_result, emotional_result, relationship_result, personal_growth_result, satisfaction_score, lessons_learned, recorded_at)
VALUES(?,?,?,?,?,?,?,?,?)`,
		outcome.ID,
		outcome.PathID,
		string(types.RawOrEmpty(outcome.FinancialResult)),
		string(types.RawOrEmpty(outcome.EmotionalResult)),
		string(types.RawOrEmpty(outcome.RelationshipResult)),
		string(types.RawOrEmpty(outcome.PersonalGrowthResult)),
		outcome.SatisfactionScore,
		lessons,
		outcome.RecordedAt,
	)
	return err
}

func (t *Tx) PutProfile(profile types.Profile) error {
	badges, err := encodeStrings(profile.Badges)
	if err != nil {
		return err
	}
	_, err = t.q.Exec(
		`INSERT INTO profiles(id, user_id, email, full_name, avatar_url, points, level, badges, preferences, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
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
		badges,
		string(types.RawOrEmpty(profile.Preferences)),
		profile.CreatedAt,
		profile.UpdatedAt,
	)
	return err
}

func (t *Tx) GetProfile(userID string) (types.Profile, bool) {
	var rec types.Profile
	var email, name, avatar sql.NullString
	var badges, prefs string
	row := t.q.QueryRow(`SELECT id, user_id, email, full_name, avatar_url, points, level, badges, preferences, created_at, updated_at FROM profiles WHERE user_id = ?`, userID)
	if err := row.Scan(&rec.ID, &rec.UserID, &email, &name, &avatar, &rec.Points, &rec.Level, &badges, &prefs, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return types.Profile{}, false
	}
	rec.Email = email.String
	rec.FullName = name.String
	rec.AvatarURL = avatar.String
	rec.Preferences = json.RawMessage(prefs)
	if err := decodeStrings(badges, &rec.Badges); err != nil {
		return types.Profile{}, false
	}
	return rec, true
}

func (t *Tx) CreateProfile(profile types.Profile) (types.Profile, error) {
	badges, err := encodeStrings(profile.Badges)
	if err != nil {
		return types.Profile{}, err
	}
	_, err = t.q.Exec(
		`INSERT INTO profiles(id, user_id, email, full_name, avatar_url, points, level, badges, preferences, created_at, updated_at)
VALUES(?,?,?,?,?,?,?,?,?,?,?)
ON CONFLICT(user_id) DO NOTHING`,
		profile.ID,
		profile.UserID,
		profile.Email,
		profile.FullName,
		profile.AvatarURL,
		profile.Points,
		profile.Level,
		badges,
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
VALUES(?,?,?,?,?,?,?)`,
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

func (t *Tx) IncrementUserPoints(userID string, points int) (types.Profile, error) {
	res, err := t.q.Exec(
		`UPDATE profiles SET points = points + ?, level = MAX(points + ?, 0) / 500 + 1, updated_at = ? WHERE user_id = ?`,
		points,
		points,
		time.Now().UTC().Format(time.RFC3339),
		userID,
	)
	if err != nil {
		return types.Profile{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return types.Profile{}, err
	}
	if affected == 0 {
		return types.Profile{}, store.ErrNotFound
	}
	profile, ok := t.GetProfile(userID)
	if !ok {
		return types.Profile{}, errors.New("profile vanished after update")
	}
	return profile, nil
}

func encodeStrings(values []string) (string, error) {
	if values == nil {
		values = []string{}
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func decodeStrings(raw string, out *[]string) error {
	*out = []string{}
	if raw == "" {
		return nil
	}
	return json.Unmarshal([]byte(raw), out)
}
