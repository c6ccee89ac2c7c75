package convo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"shopbot/internal/store"
)

type stateRecord struct {
	Step      string    `json:"step"`
	Draft     Draft     `json:"draft"`
	UpdatedAt time.Time `json:"updated_at"`
}

// StateStore persists conversation state under users/<id>/state.
type StateStore struct {
	store  store.Store
	ttl    time.Duration
	logger *slog.Logger
	now    func() time.Time
}

// NewStateStore creates a StateStore. A positive ttl expires steps that have
// not advanced within it.
func NewStateStore(s store.Store, ttl time.Duration, logger *slog.Logger) *StateStore {
	return &StateStore{
		store:  s,
		ttl:    ttl,
		logger: logger.With("component", "convo_state"),
		now:    time.Now,
	}
}

func stateKey(userID int64) string {
	return fmt.Sprintf("users/%d/state", userID)
}

// Load returns the user's state, or Idle when none is stored.
func (s *StateStore) Load(ctx context.Context, userID int64) (State, error) {
	raw, err := s.store.Read(ctx, stateKey(userID))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Idle(), nil
		}
		return State{}, fmt.Errorf("load state: %w", err)
	}
	var rec stateRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.logger.Warn("discarding unreadable state", "user_id", userID, "error", err)
		return Idle(), nil
	}
	step, ok := ParseStep(rec.Step)
	if !ok {
		s.logger.Warn("discarding unknown step", "user_id", userID, "step", rec.Step)
		return Idle(), nil
	}
	st := State{Step: step, Draft: rec.Draft, UpdatedAt: rec.UpdatedAt}
	if s.ttl > 0 && step != StepNone && !rec.UpdatedAt.IsZero() && s.now().Sub(rec.UpdatedAt) > s.ttl {
		s.logger.Info("step expired", "user_id", userID, "step", step.String(), "updated_at", rec.UpdatedAt)
		return Idle(), nil
	}
	return st, nil
}

// Save replaces the user's state.
func (s *StateStore) Save(ctx context.Context, userID int64, st State) error {
	rec := stateRecord{
		Step:      st.Step.String(),
		UpdatedAt: s.now().UTC(),
	}
	if st.Step != StepNone {
		rec.Draft = st.Draft
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	if err := s.store.Write(ctx, stateKey(userID), data); err != nil {
		return fmt.Errorf("save state: %w", err)
	}
	return nil
}
