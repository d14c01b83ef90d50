package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edupath/guidance-backend/internal/assessment"
	"github.com/edupath/guidance-backend/internal/recommend"
)

// Postgres is the document-store collaborator realized over Postgres. Every
// domain record is persisted as a JSONB document; access is create/read only.
type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// CreateAssessment persists a generated assessment. Questions are immutable
// after this write.
func (p *Postgres) CreateAssessment(ctx context.Context, rec assessment.Record) error {
	choices, err := json.Marshal(rec.SourceSurveyChoices)
	if err != nil {
		return fmt.Errorf("marshal survey choices: %w", err)
	}
	questions, err := json.Marshal(rec.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO assessments (id, user_id, generated_by_ai, survey_choices, document_summary, questions, total_seconds, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		rec.ID, rec.UserID, rec.GeneratedByAI, choices, rec.DocumentSummary, questions, rec.TotalSeconds, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert assessment: %w", err)
	}
	return nil
}

// GetAssessment loads one assessment, nil when absent.
func (p *Postgres) GetAssessment(ctx context.Context, id uuid.UUID) (*assessment.Record, error) {
	var rec assessment.Record
	var choices, questions []byte

	err := p.pool.QueryRow(ctx,
		`SELECT id, user_id, generated_by_ai, survey_choices, document_summary, questions, total_seconds, created_at
		 FROM assessments
		 WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.UserID, &rec.GeneratedByAI, &choices, &rec.DocumentSummary, &questions, &rec.TotalSeconds, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get assessment: %w", err)
	}

	if err := json.Unmarshal(choices, &rec.SourceSurveyChoices); err != nil {
		return nil, fmt.Errorf("unmarshal survey choices: %w", err)
	}
	if err := json.Unmarshal(questions, &rec.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	return &rec, nil
}

// CreateAttempt persists the terminal attempt for an assessment. The unique
// constraint on assessment_id backstops the submit flag: a second write for
// the same assessment fails instead of double-recording.
func (p *Postgres) CreateAttempt(ctx context.Context, attempt assessment.Attempt) error {
	questions, err := json.Marshal(attempt.Questions)
	if err != nil {
		return fmt.Errorf("marshal questions: %w", err)
	}
	answers, err := json.Marshal(attempt.Answers)
	if err != nil {
		return fmt.Errorf("marshal answers: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO assessment_attempts (id, assessment_id, user_id, score, correct_count, questions, answers, total_seconds, time_taken_seconds, iq_points, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		attempt.ID, attempt.AssessmentID, attempt.UserID, attempt.Score, attempt.CorrectCount,
		questions, answers, attempt.TotalSeconds, attempt.TimeTakenSeconds, attempt.IQPoints, attempt.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}
	return nil
}

// AttemptByAssessment loads the attempt for an assessment, nil when absent.
func (p *Postgres) AttemptByAssessment(ctx context.Context, assessmentID uuid.UUID) (*assessment.Attempt, error) {
	var attempt assessment.Attempt
	var questions, answers []byte

	err := p.pool.QueryRow(ctx,
		`SELECT id, assessment_id, user_id, score, correct_count, questions, answers, total_seconds, time_taken_seconds, iq_points, created_at
		 FROM assessment_attempts
		 WHERE assessment_id = $1`, assessmentID,
	).Scan(&attempt.ID, &attempt.AssessmentID, &attempt.UserID, &attempt.Score, &attempt.CorrectCount,
		&questions, &answers, &attempt.TotalSeconds, &attempt.TimeTakenSeconds, &attempt.IQPoints, &attempt.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get attempt: %w", err)
	}

	if err := json.Unmarshal(questions, &attempt.Questions); err != nil {
		return nil, fmt.Errorf("unmarshal questions: %w", err)
	}
	if err := json.Unmarshal(answers, &attempt.Answers); err != nil {
		return nil, fmt.Errorf("unmarshal answers: %w", err)
	}
	return &attempt, nil
}

// CreateRecommendation persists one recommendation document.
func (p *Postgres) CreateRecommendation(ctx context.Context, rec recommend.Record) error {
	recommendations, err := json.Marshal(rec.Recommendations)
	if err != nil {
		return fmt.Errorf("marshal recommendations: %w", err)
	}
	flags, err := json.Marshal(rec.Flags)
	if err != nil {
		return fmt.Errorf("marshal flags: %w", err)
	}

	_, err = p.pool.Exec(ctx,
		`INSERT INTO recommendations (id, assessment_id, user_id, ai_payload, recommendations, flags, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.AssessmentID, rec.UserID, []byte(rec.AIPayload), recommendations, flags, rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert recommendation: %w", err)
	}
	return nil
}

// LatestRecommendationByUser returns the caller's newest recommendation set,
// nil when absent.
func (p *Postgres) LatestRecommendationByUser(ctx context.Context, userID string) (*recommend.Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, assessment_id, user_id, ai_payload, recommendations, flags, created_at
		 FROM recommendations
		 WHERE user_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, userID)
	return scanRecommendation(row)
}

// RecommendationByAssessment returns the recommendation set for an
// assessment, nil when absent.
func (p *Postgres) RecommendationByAssessment(ctx context.Context, assessmentID uuid.UUID) (*recommend.Record, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT id, assessment_id, user_id, ai_payload, recommendations, flags, created_at
		 FROM recommendations
		 WHERE assessment_id = $1
		 ORDER BY created_at DESC
		 LIMIT 1`, assessmentID)
	return scanRecommendation(row)
}

func scanRecommendation(row pgx.Row) (*recommend.Record, error) {
	var rec recommend.Record
	var payload, recommendations, flags []byte

	err := row.Scan(&rec.ID, &rec.AssessmentID, &rec.UserID, &payload, &recommendations, &flags, &rec.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get recommendation: %w", err)
	}

	rec.AIPayload = json.RawMessage(payload)
	if err := json.Unmarshal(recommendations, &rec.Recommendations); err != nil {
		return nil, fmt.Errorf("unmarshal recommendations: %w", err)
	}
	if err := json.Unmarshal(flags, &rec.Flags); err != nil {
		return nil, fmt.Errorf("unmarshal flags: %w", err)
	}
	return &rec, nil
}

// SurveyProfile reads the collaborator-owned preference survey. Absence is
// not an error: a user may take an assessment before the survey.
func (p *Postgres) SurveyProfile(ctx context.Context, userID string) ([]string, []string, error) {
	var goals, tracks []byte

	err := p.pool.QueryRow(ctx,
		`SELECT career_goals, study_tracks
		 FROM survey_profiles
		 WHERE user_id = $1`, userID,
	).Scan(&goals, &tracks)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("get survey profile: %w", err)
	}

	var careerGoals, studyTracks []string
	if err := json.Unmarshal(goals, &careerGoals); err != nil {
		return nil, nil, fmt.Errorf("unmarshal career goals: %w", err)
	}
	if err := json.Unmarshal(tracks, &studyTracks); err != nil {
		return nil, nil, fmt.Errorf("unmarshal study tracks: %w", err)
	}
	return careerGoals, studyTracks, nil
}

// DocumentSummary reads the collaborator-produced free-text summary block,
// empty when absent.
func (p *Postgres) DocumentSummary(ctx context.Context, userID string) (string, error) {
	var summary string
	err := p.pool.QueryRow(ctx,
		`SELECT summary FROM document_summaries WHERE user_id = $1`, userID,
	).Scan(&summary)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get document summary: %w", err)
	}
	return summary, nil
}
