// Package gamification tracks profile points, levels and badges.
package gamification

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidahmann/neuroflow/internal/store"
	"github.com/davidahmann/neuroflow/pkg/types"
)

const (
	ActionDecisionCreated = "decision_created"
	ActionOutcomeTracked  = "outcome_tracked"

	PointsDecisionCreated = 50
	PointsOutcomeTracked  = 25
)

// Badge is awarded once when a profile's points first reach Threshold.
type Badge struct {
	Name      string
	Threshold int
}

var Badges = []Badge{
	{Name: "First Steps", Threshold: 50},
	{Name: "Decision Explorer", Threshold: 250},
	{Name: "Thoughtful Planner", Threshold: 500},
	{Name: "Strategic Thinker", Threshold: 1000},
	{Name: "Decision Master", Threshold: 2500},
}

var ErrInvalidPreferences = errors.New("preferences must be valid JSON")

type ProfileUpdate struct {
	FullName    *string         `json:"full_name,omitempty"`
	AvatarURL   *string         `json:"avatar_url,omitempty"`
	Email       *string         `json:"email,omitempty"`
	Preferences json.RawMessage `json:"preferences,omitempty"`
}

type Service struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
	newID  func() string
}

type NewServiceInput struct {
	Store  store.Store
	Logger *zap.Logger
	Now    func() time.Time
	NewID  func() string
}

func NewService(in NewServiceInput) (*Service, error) {
	if in.Store == nil {
		return nil, errors.New("store is required")
	}
	s := &Service{store: in.Store, logger: in.Logger, now: in.Now, newID: in.NewID}
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

// EnsureProfile returns the user's profile, creating an empty one on first use.
func (s *Service) EnsureProfile(userID, email string) (types.Profile, error) {
	var out types.Profile
	err := s.store.WithTx(func(tx store.Tx) error {
		var err error
		out, err = s.ensure(tx, userID, email)
		return err
	})
	return out, err
}

func (s *Service) ensure(tx store.Tx, userID, email string) (types.Profile, error) {
	if profile, ok := tx.GetProfile(userID); ok {
		return profile, nil
	}
	now := s.timestamp()
	profile := types.Profile{
		ID:          s.newID(),
		UserID:      userID,
		Email:       email,
		Points:      0,
		Level:       types.LevelForPoints(0),
		Badges:      []string{},
		Preferences: json.RawMessage(`{}`),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	stored, err := tx.CreateProfile(profile)
	if err != nil {
		return types.Profile{}, fmt.Errorf("create profile: %w", err)
	}
	if stored.ID == profile.ID {
		s.logger.Info("profile created", zap.String("user_id", userID))
	}
	return stored, nil
}

// UpdateProfile replaces the display fields present in update.
func (s *Service) UpdateProfile(userID string, update ProfileUpdate) (types.Profile, error) {
	if len(update.Preferences) > 0 && !json.Valid(update.Preferences) {
		return types.Profile{}, ErrInvalidPreferences
	}
	var out types.Profile
	err := s.store.WithTx(func(tx store.Tx) error {
		profile, err := s.ensure(tx, userID, "")
		if err != nil {
			return err
		}
		if update.FullName != nil {
			profile.FullName = *update.FullName
		}
		if update.AvatarURL != nil {
			profile.AvatarURL = *update.AvatarURL
		}
		if update.Email != nil {
			profile.Email = *update.Email
		}
		if len(update.Preferences) > 0 {
			profile.Preferences = update.Preferences
		}
		profile.UpdatedAt = s.timestamp()
		if err := tx.PutProfile(profile); err != nil {
			return err
		}
		out = profile
		return nil
	})
	return out, err
}

// AddPoints records a gamification event and credits its points in one
// transaction. A profile is created for users who do not have one yet.
func (s *Service) AddPoints(userID, action string, points int, description string) (types.GamificationEvent, types.Profile, error) {
	var (
		event   types.GamificationEvent
		profile types.Profile
	)
	err := s.store.WithTx(func(tx store.Tx) error {
		before, err := s.ensure(tx, userID, "")
		if err != nil {
			return err
		}
		after, err := tx.IncrementUserPoints(userID, points)
		if err != nil {
			return fmt.Errorf("increment points: %w", err)
		}

		event = types.GamificationEvent{
			ID:           s.newID(),
			UserID:       userID,
			ActionType:   action,
			PointsEarned: points,
			Description:  description,
			CreatedAt:    s.timestamp(),
		}

		earned := newBadges(before.Points, after.Points, after.Badges)
		if len(earned) > 0 {
			after.Badges = append(append([]string{}, after.Badges...), earned...)
			after.UpdatedAt = event.CreatedAt
			if err := tx.PutProfile(after); err != nil {
				return err
			}
			badge := earned[len(earned)-1]
			event.BadgeEarned = &badge
		}

		if err := tx.PutGamificationEvent(event); err != nil {
			return err
		}
		profile = after
		return nil
	})
	if err != nil {
		return types.GamificationEvent{}, types.Profile{}, err
	}
	s.logger.Info("points awarded",
		zap.String("user_id", userID),
		zap.String("action", action),
		zap.Int("points", points),
		zap.Int("total", profile.Points),
	)
	return event, profile, nil
}

func (s *Service) Events(userID string) ([]types.GamificationEvent, error) {
	return s.store.ListGamificationEvents(userID)
}

// newBadges lists the badges whose threshold lies in (before, after] and that
// the profile does not hold yet, lowest threshold first.
func newBadges(before, after int, held []string) []string {
	have := map[string]bool{}
	for _, b := range held {
		have[b] = true
	}
	out := []string{}
	for _, badge := range Badges {
		if before < badge.Threshold && after >= badge.Threshold && !have[badge.Name] {
			out = append(out, badge.Name)
		}
	}
	return out
}

func (s *Service) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}
