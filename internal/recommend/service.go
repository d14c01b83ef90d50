package recommend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/assessment"
	"github.com/edupath/guidance-backend/internal/genai"
)

var (
	ErrIdentityRequired = errors.New("user identity required")
	ErrNotFound         = errors.New("no recommendations found")
)

// Record is the persisted recommendation document for one attempt. AIPayload
// is a diagnostic snapshot of the sanitized parse result; raw generator text
// is never persisted.
type Record struct {
	ID              uuid.UUID              `json:"id"`
	AssessmentID    uuid.UUID              `json:"assessmentId"`
	UserID          string                 `json:"user_id"`
	AIPayload       json.RawMessage        `json:"aiPayload"`
	Recommendations []CareerRecommendation `json:"recommendations"`
	Flags           []string               `json:"flags"`
	CreatedAt       time.Time              `json:"createdAt"`
}

// Store persists recommendation documents (create/read only). Implementations
// return nil, nil when a record is absent.
type Store interface {
	CreateRecommendation(ctx context.Context, rec Record) error
	LatestRecommendationByUser(ctx context.Context, userID string) (*Record, error)
	RecommendationByAssessment(ctx context.Context, assessmentID uuid.UUID) (*Record, error)
}

// PreferenceSource reads the user's stored survey choices.
type PreferenceSource interface {
	SurveyProfile(ctx context.Context, userID string) (careerGoals, studyTracks []string, err error)
}

// Service generates, persists, and ranks career recommendations.
type Service struct {
	store     Store
	prefs     PreferenceSource
	generator genai.Generator
	logger    zerolog.Logger
}

func NewService(store Store, prefs PreferenceSource, generator genai.Generator, logger zerolog.Logger) *Service {
	return &Service{
		store:     store,
		prefs:     prefs,
		generator: generator,
		logger:    logger.With().Str("component", "recommend_service").Logger(),
	}
}

// GenerateForAttempt builds the recommendation prompt from the scored
// attempt, calls the generator, sanitizes the payload, and persists the
// result. Satisfies the assessment service's Recommender contract.
func (s *Service) GenerateForAttempt(ctx context.Context, attempt assessment.Attempt, choices assessment.SurveyChoices, documentSummary string) error {
	prompt := genai.BuildRecommendationPrompt(genai.RecommendationPromptInput{
		Score:           attempt.Score,
		CorrectCount:    attempt.CorrectCount,
		TotalQuestions:  len(attempt.Questions),
		TopicBreakdown:  assessment.TopicBreakdown(attempt.Questions, attempt.Answers),
		CareerGoals:     choices.CareerGoals,
		StudyTracks:     choices.StudyTracks,
		DocumentSummary: documentSummary,
	})

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return fmt.Errorf("generate recommendations: %w", err)
	}

	set, err := ParseRecommendationPayload(raw)
	if err != nil {
		return fmt.Errorf("parse recommendations: %w", err)
	}

	snapshot, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("snapshot recommendations: %w", err)
	}

	rec := Record{
		ID:              uuid.New(),
		AssessmentID:    attempt.AssessmentID,
		UserID:          attempt.UserID,
		AIPayload:       snapshot,
		Recommendations: set.Recommendations,
		Flags:           set.Flags,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.store.CreateRecommendation(ctx, rec); err != nil {
		return fmt.Errorf("persist recommendations: %w", err)
	}

	s.logger.Info().
		Str("assessment_id", attempt.AssessmentID.String()).
		Str("user_id", attempt.UserID).
		Int("recommendations", len(set.Recommendations)).
		Msg("recommendations generated")

	return nil
}

// Latest returns the caller's most recent recommendation set.
func (s *Service) Latest(ctx context.Context, userID string) (*Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrIdentityRequired
	}
	rec, err := s.store.LatestRecommendationByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

// UserRanking merges the caller's stored survey picks with their latest AI
// top pick into a provenance-tagged ranking plus verdict.
func (s *Service) UserRanking(ctx context.Context, userID string) (Ranking, Verdict, error) {
	if strings.TrimSpace(userID) == "" {
		return Ranking{}, Verdict{}, ErrIdentityRequired
	}

	careerGoals, _, err := s.prefs.SurveyProfile(ctx, userID)
	if err != nil {
		return Ranking{}, Verdict{}, fmt.Errorf("load survey profile: %w", err)
	}

	aiTopPick := ""
	rationale := ""
	if rec, err := s.store.LatestRecommendationByUser(ctx, userID); err == nil && rec != nil && len(rec.Recommendations) > 0 {
		aiTopPick = rec.Recommendations[0].CareerName
		rationale = rec.Recommendations[0].Why
	}

	ranking := BuildRanking(careerGoals, aiTopPick)
	verdict := BuildVerdict(ranking.Status, rationale)
	return ranking, verdict, nil
}
