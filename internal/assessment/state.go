package assessment

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// StateManager keeps in-flight session state (sparse answer maps, the
// submitted flag) in Redis. Answers live here until the attempt is persisted;
// only the sanitized result ever reaches the document store.
type StateManager struct {
	redis  *redis.Client
	ttl    time.Duration
	logger zerolog.Logger
}

// NewStateManager creates a state manager backed by Redis. ttl bounds how
// long abandoned session state lingers.
func NewStateManager(client *redis.Client, ttl time.Duration, logger zerolog.Logger) *StateManager {
	if ttl <= 0 {
		ttl = 6 * time.Hour
	}
	return &StateManager{
		redis:  client,
		ttl:    ttl,
		logger: logger.With().Str("component", "assessment_state").Logger(),
	}
}

func answersKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:answers:%s", assessmentID.String())
}

func submittedKey(assessmentID uuid.UUID) string {
	return fmt.Sprintf("assessment:submitted:%s", assessmentID.String())
}

// SaveAnswer records one answer selection. Re-selecting overwrites.
func (s *StateManager) SaveAnswer(ctx context.Context, assessmentID uuid.UUID, questionID, option string) error {
	key := answersKey(assessmentID)
	pipe := s.redis.TxPipeline()
	pipe.HSet(ctx, key, questionID, option)
	pipe.Expire(ctx, key, s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save answer: %w", err)
	}
	return nil
}

// Answers returns the sparse answer map for a session.
func (s *StateManager) Answers(ctx context.Context, assessmentID uuid.UUID) (map[string]string, error) {
	answers, err := s.redis.HGetAll(ctx, answersKey(assessmentID)).Result()
	if err != nil {
		return nil, fmt.Errorf("load answers: %w", err)
	}
	return answers, nil
}

// ClearAnswers drops the in-flight answer map after the attempt is persisted.
func (s *StateManager) ClearAnswers(ctx context.Context, assessmentID uuid.UUID) error {
	return s.redis.Del(ctx, answersKey(assessmentID)).Err()
}

// AcquireSubmit atomically claims the one allowed submission for this
// assessment. Expiry-triggered and manual submission both pass through here;
// whichever arrives first wins and the loser must no-op.
func (s *StateManager) AcquireSubmit(ctx context.Context, assessmentID uuid.UUID) (bool, error) {
	acquired, err := s.redis.SetNX(ctx, submittedKey(assessmentID), "1", s.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("acquire submit flag: %w", err)
	}
	return acquired, nil
}

// ReleaseSubmit returns the submission claim after a failed persist so the
// user can retry without re-answering.
func (s *StateManager) ReleaseSubmit(ctx context.Context, assessmentID uuid.UUID) error {
	return s.redis.Del(ctx, submittedKey(assessmentID)).Err()
}
