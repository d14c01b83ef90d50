package assessment

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/assessment/timer"
	"github.com/edupath/guidance-backend/internal/genai"
)

// Submission triggers.
const (
	TriggerManual = "manual"
	TriggerExpiry = "expiry"
)

var (
	// ErrIdentityRequired blocks any operation without a user id, before any
	// generator call is made.
	ErrIdentityRequired = errors.New("user identity required")
	ErrNotFound         = errors.New("assessment not found")
	ErrAlreadySubmitted = errors.New("assessment already submitted")
	ErrTerminated       = errors.New("assessment session already terminated")
	ErrInvalidAnswer    = errors.New("answer does not match any option")
	ErrGeneration       = errors.New("assessment generation failed")
	ErrPersistence      = errors.New("persistence failed")
	ErrRecommendation   = errors.New("recommendation generation failed")
)

// Store persists assessment and attempt documents (create/read only).
// Implementations return nil, nil when a record is absent.
type Store interface {
	CreateAssessment(ctx context.Context, rec Record) error
	GetAssessment(ctx context.Context, id uuid.UUID) (*Record, error)
	CreateAttempt(ctx context.Context, attempt Attempt) error
	AttemptByAssessment(ctx context.Context, assessmentID uuid.UUID) (*Attempt, error)
}

// ProfileStore reads collaborator-owned user context: the preference survey
// and the document-derived summary block.
type ProfileStore interface {
	SurveyProfile(ctx context.Context, userID string) (careerGoals, studyTracks []string, err error)
	DocumentSummary(ctx context.Context, userID string) (string, error)
}

// SessionState holds in-flight answers and the atomic submitted flag
// (implemented by the Redis StateManager).
type SessionState interface {
	SaveAnswer(ctx context.Context, assessmentID uuid.UUID, questionID, option string) error
	Answers(ctx context.Context, assessmentID uuid.UUID) (map[string]string, error)
	ClearAnswers(ctx context.Context, assessmentID uuid.UUID) error
	AcquireSubmit(ctx context.Context, assessmentID uuid.UUID) (bool, error)
	ReleaseSubmit(ctx context.Context, assessmentID uuid.UUID) error
}

// Recommender turns a finished attempt into a persisted recommendation set.
type Recommender interface {
	GenerateForAttempt(ctx context.Context, attempt Attempt, choices SurveyChoices, documentSummary string) error
}

// Config groups assessment session defaults.
type Config struct {
	QuestionCount      int
	SecondsPerQuestion int
}

// Service orchestrates the assessment pipeline: generation, the countdown
// session, answer recording, and the single guarded submission.
type Service struct {
	store       Store
	profiles    ProfileStore
	state       SessionState
	arena       *timer.Arena
	generator   genai.Generator
	recommender Recommender
	cfg         Config
	logger      zerolog.Logger
}

func NewService(
	store Store,
	profiles ProfileStore,
	state SessionState,
	arena *timer.Arena,
	generator genai.Generator,
	recommender Recommender,
	cfg Config,
	logger zerolog.Logger,
) *Service {
	if cfg.QuestionCount <= 0 {
		cfg.QuestionCount = MaxQuestions
	}
	if cfg.SecondsPerQuestion <= 0 {
		cfg.SecondsPerQuestion = 60
	}
	return &Service{
		store:       store,
		profiles:    profiles,
		state:       state,
		arena:       arena,
		generator:   generator,
		recommender: recommender,
		cfg:         cfg,
		logger:      logger.With().Str("component", "assessment_service").Logger(),
	}
}

// GenerateOutput is the result of a successful generation.
type GenerateOutput struct {
	Assessment *Record
	// Advisory is set when fewer valid questions than requested were
	// recovered. Partial generation is a success, not an error.
	Advisory string
	Repaired int
}

// Generate builds the prompt from stored user context, calls the generator,
// sanitizes the payload, persists the assessment, and starts its countdown.
// On any failure nothing is left half-persisted.
func (s *Service) Generate(ctx context.Context, userID string) (*GenerateOutput, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrIdentityRequired
	}

	careerGoals, studyTracks, err := s.profiles.SurveyProfile(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("survey profile unavailable, proceeding without it")
	}
	docSummary, err := s.profiles.DocumentSummary(ctx, userID)
	if err != nil {
		s.logger.Warn().Err(err).Str("user_id", userID).Msg("document summary unavailable, proceeding without it")
	}

	prompt := genai.BuildAssessmentPrompt(genai.AssessmentPromptInput{
		CareerGoals:     careerGoals,
		StudyTracks:     studyTracks,
		DocumentSummary: docSummary,
		QuestionCount:   s.cfg.QuestionCount,
	})

	raw, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	parsed, err := ParseAssessmentPayload(raw, s.cfg.QuestionCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrGeneration, err)
	}

	rec := Record{
		ID:            uuid.New(),
		UserID:        userID,
		GeneratedByAI: true,
		SourceSurveyChoices: SurveyChoices{
			CareerGoals: careerGoals,
			StudyTracks: studyTracks,
		},
		DocumentSummary: docSummary,
		Questions:       parsed.Questions,
		TotalSeconds:    s.cfg.SecondsPerQuestion * len(parsed.Questions),
		CreatedAt:       time.Now().UTC(),
	}

	if err := s.store.CreateAssessment(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	if _, err := s.arena.Start(ctx, sessionKey(rec.ID), rec.TotalSeconds); err != nil {
		s.logger.Warn().Err(err).Str("assessment_id", rec.ID.String()).Msg("countdown start degraded")
	}

	out := &GenerateOutput{Assessment: &rec, Repaired: parsed.Repaired}
	if len(parsed.Questions) < s.cfg.QuestionCount {
		out.Advisory = fmt.Sprintf("recovered %d of %d questions; proceeding with the recovered set",
			len(parsed.Questions), s.cfg.QuestionCount)
	}

	s.logger.Info().
		Str("user_id", userID).
		Str("assessment_id", rec.ID.String()).
		Int("questions", len(parsed.Questions)).
		Int("dropped", parsed.Dropped).
		Int("repaired", parsed.Repaired).
		Msg("assessment generated")

	return out, nil
}

// SessionView is the resume-screen snapshot: questions, recorded answers, and
// the live countdown state.
type SessionView struct {
	Assessment       *Record
	Answers          map[string]string
	RemainingSeconds int
	Expired          bool
	Attempt          *Attempt
}

// View returns the current session state for an assessment, suitable for
// resuming after a page reload.
func (s *Service) View(ctx context.Context, userID string, assessmentID uuid.UUID) (*SessionView, error) {
	rec, err := s.owned(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}

	view := &SessionView{Assessment: rec, RemainingSeconds: rec.TotalSeconds}

	if attempt, err := s.store.AttemptByAssessment(ctx, assessmentID); err == nil && attempt != nil {
		view.Attempt = attempt
		view.Answers = attempt.Answers
		view.RemainingSeconds = 0
		view.Expired = true
		return view, nil
	}

	answers, err := s.state.Answers(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	view.Answers = answers

	if snap, err := s.arena.Snapshot(ctx, sessionKey(assessmentID)); err == nil && snap != nil {
		view.RemainingSeconds = snap.RemainingSeconds
		view.Expired = snap.Expired
	}
	return view, nil
}

// Resume resumes the countdown for an unterminated assessment, e.g. when the
// screen reloads and reattaches. An expired session is never restarted: if
// the expiry submit has not landed yet (worker lag, failed persist), Resume
// drives it through the guarded submit path and returns the terminal view.
func (s *Service) Resume(ctx context.Context, userID string, assessmentID uuid.UUID) (*SessionView, error) {
	view, err := s.View(ctx, userID, assessmentID)
	if err != nil {
		return nil, err
	}
	if view.Attempt != nil {
		return view, nil
	}

	if view.Expired {
		if _, err := s.Submit(ctx, userID, assessmentID, TriggerExpiry); err != nil && !errors.Is(err, ErrAlreadySubmitted) {
			s.logger.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("expiry submit on resume failed")
		}
		return s.View(ctx, userID, assessmentID)
	}

	cd, err := s.arena.Start(ctx, sessionKey(assessmentID), view.Assessment.TotalSeconds)
	if err != nil {
		return nil, err
	}
	state := cd.State()
	view.RemainingSeconds = state.RemainingSeconds
	view.Expired = state.Expired
	return view, nil
}

// Answer records one answer selection. Rejected once the session is terminal.
func (s *Service) Answer(ctx context.Context, userID string, assessmentID uuid.UUID, questionID, option string) error {
	rec, err := s.owned(ctx, userID, assessmentID)
	if err != nil {
		return err
	}

	if attempt, err := s.store.AttemptByAssessment(ctx, assessmentID); err == nil && attempt != nil {
		return ErrTerminated
	}
	if snap, err := s.arena.Snapshot(ctx, sessionKey(assessmentID)); err == nil && snap != nil && snap.Expired {
		return ErrTerminated
	}

	valid := false
	for _, q := range rec.Questions {
		if q.ID != questionID {
			continue
		}
		for _, opt := range q.Options {
			if opt == option {
				valid = true
				break
			}
		}
		break
	}
	if !valid {
		return ErrInvalidAnswer
	}

	return s.state.SaveAnswer(ctx, assessmentID, questionID, option)
}

// Submit terminates the session exactly once: stop the clock, score, persist
// the attempt, then derive and persist the recommendation set. Both the
// expiry event and a manual submit funnel through here; the Redis SetNX flag
// decides the winner and the loser returns ErrAlreadySubmitted with no side
// effects.
func (s *Service) Submit(ctx context.Context, userID string, assessmentID uuid.UUID, trigger string) (*Attempt, error) {
	var rec *Record
	var err error
	if trigger == TriggerExpiry {
		rec, err = s.store.GetAssessment(ctx, assessmentID)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
		}
		if rec == nil {
			return nil, ErrNotFound
		}
		userID = rec.UserID
	} else {
		rec, err = s.owned(ctx, userID, assessmentID)
		if err != nil {
			return nil, err
		}
	}

	if attempt, err := s.store.AttemptByAssessment(ctx, assessmentID); err == nil && attempt != nil {
		return nil, ErrAlreadySubmitted
	}

	acquired, err := s.state.AcquireSubmit(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if !acquired {
		return nil, ErrAlreadySubmitted
	}

	// The flag freezes the session logically; the countdown itself is torn
	// down only after the attempt write succeeds so a failed persist keeps
	// remaining time intact for a retry.
	timeTaken := rec.TotalSeconds
	if snap, err := s.arena.Snapshot(ctx, sessionKey(assessmentID)); err == nil && snap != nil {
		timeTaken = snap.ElapsedSeconds()
	}

	answers, err := s.state.Answers(ctx, assessmentID)
	if err != nil {
		s.releaseSubmit(ctx, assessmentID)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	summary := Score(rec.Questions, answers)
	attempt := Attempt{
		ID:               uuid.New(),
		AssessmentID:     rec.ID,
		UserID:           userID,
		Score:            summary.Percentage,
		CorrectCount:     summary.Correct,
		Questions:        rec.Questions,
		Answers:          answers,
		TotalSeconds:     rec.TotalSeconds,
		TimeTakenSeconds: timeTaken,
		IQPoints:         IQPoints(summary.Percentage),
		CreatedAt:        time.Now().UTC(),
	}

	if err := s.store.CreateAttempt(ctx, attempt); err != nil {
		s.releaseSubmit(ctx, assessmentID)
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}

	// Attempt write is the commit point: the session is terminal from here.
	if err := s.arena.Stop(ctx, sessionKey(assessmentID)); err != nil {
		s.logger.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("countdown teardown failed")
	}
	if err := s.state.ClearAnswers(ctx, assessmentID); err != nil {
		s.logger.Warn().Err(err).Str("assessment_id", assessmentID.String()).Msg("answer cleanup failed")
	}

	s.logger.Info().
		Str("assessment_id", assessmentID.String()).
		Str("user_id", userID).
		Str("trigger", trigger).
		Int("score", attempt.Score).
		Int("correct", attempt.CorrectCount).
		Msg("assessment submitted")

	if s.recommender != nil {
		if err := s.recommender.GenerateForAttempt(ctx, attempt, rec.SourceSurveyChoices, rec.DocumentSummary); err != nil {
			// The attempt is saved; only the recommendation step is retryable.
			return &attempt, fmt.Errorf("%w: %v", ErrRecommendation, err)
		}
	}

	return &attempt, nil
}

// RetryRecommendation re-runs the recommendation step for an already
// submitted assessment whose recommendation write failed.
func (s *Service) RetryRecommendation(ctx context.Context, userID string, assessmentID uuid.UUID) error {
	rec, err := s.owned(ctx, userID, assessmentID)
	if err != nil {
		return err
	}
	attempt, err := s.store.AttemptByAssessment(ctx, assessmentID)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if attempt == nil {
		return ErrNotFound
	}
	if s.recommender == nil {
		return ErrRecommendation
	}
	if err := s.recommender.GenerateForAttempt(ctx, *attempt, rec.SourceSurveyChoices, rec.DocumentSummary); err != nil {
		return fmt.Errorf("%w: %v", ErrRecommendation, err)
	}
	return nil
}

// Attempt returns the terminal attempt record.
func (s *Service) Attempt(ctx context.Context, userID string, assessmentID uuid.UUID) (*Attempt, error) {
	if _, err := s.owned(ctx, userID, assessmentID); err != nil {
		return nil, err
	}
	attempt, err := s.store.AttemptByAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if attempt == nil {
		return nil, ErrNotFound
	}
	return attempt, nil
}

// RunExpiryWorker consumes countdown expiry events and routes them into the
// guarded submit path. Blocks until the context is cancelled.
func (s *Service) RunExpiryWorker(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case key := <-s.arena.Expiries():
			assessmentID, err := uuid.Parse(key)
			if err != nil {
				s.logger.Error().Str("session_key", key).Msg("unparseable expiry key")
				continue
			}
			if _, err := s.Submit(ctx, "", assessmentID, TriggerExpiry); err != nil {
				if errors.Is(err, ErrAlreadySubmitted) {
					continue // manual submit won the race
				}
				s.logger.Error().Err(err).Str("assessment_id", assessmentID.String()).Msg("expiry submit failed")
			}
		}
	}
}

func (s *Service) owned(ctx context.Context, userID string, assessmentID uuid.UUID) (*Record, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrIdentityRequired
	}
	rec, err := s.store.GetAssessment(ctx, assessmentID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPersistence, err)
	}
	if rec == nil || rec.UserID != userID {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Service) releaseSubmit(ctx context.Context, assessmentID uuid.UUID) {
	if err := s.state.ReleaseSubmit(ctx, assessmentID); err != nil {
		s.logger.Error().Err(err).Str("assessment_id", assessmentID.String()).Msg("release submit flag failed")
	}
}

func sessionKey(assessmentID uuid.UUID) string {
	return assessmentID.String()
}
