package assessment

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/edupath/guidance-backend/internal/assessment/timer"
)

type stubStore struct {
	mu          sync.Mutex
	assessments map[uuid.UUID]Record
	attempts    map[uuid.UUID]Attempt
	attemptErr  error
}

func newStubStore() *stubStore {
	return &stubStore{
		assessments: map[uuid.UUID]Record{},
		attempts:    map[uuid.UUID]Attempt{},
	}
}

func (s *stubStore) CreateAssessment(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.assessments[rec.ID] = rec
	return nil
}

func (s *stubStore) GetAssessment(_ context.Context, id uuid.UUID) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.assessments[id]; ok {
		return &rec, nil
	}
	return nil, nil
}

func (s *stubStore) CreateAttempt(_ context.Context, attempt Attempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.attemptErr != nil {
		return s.attemptErr
	}
	s.attempts[attempt.AssessmentID] = attempt
	return nil
}

func (s *stubStore) AttemptByAssessment(_ context.Context, assessmentID uuid.UUID) (*Attempt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if attempt, ok := s.attempts[assessmentID]; ok {
		return &attempt, nil
	}
	return nil, nil
}

type stubProfiles struct {
	careerGoals []string
	studyTracks []string
	summary     string
}

func (s *stubProfiles) SurveyProfile(_ context.Context, _ string) ([]string, []string, error) {
	return s.careerGoals, s.studyTracks, nil
}

func (s *stubProfiles) DocumentSummary(_ context.Context, _ string) (string, error) {
	return s.summary, nil
}

type stubState struct {
	mu        sync.Mutex
	answers   map[uuid.UUID]map[string]string
	submitted map[uuid.UUID]bool
	saveErr   error
}

func newStubState() *stubState {
	return &stubState{
		answers:   map[uuid.UUID]map[string]string{},
		submitted: map[uuid.UUID]bool{},
	}
}

func (s *stubState) SaveAnswer(_ context.Context, assessmentID uuid.UUID, questionID, option string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	if s.answers[assessmentID] == nil {
		s.answers[assessmentID] = map[string]string{}
	}
	s.answers[assessmentID][questionID] = option
	return nil
}

func (s *stubState) Answers(_ context.Context, assessmentID uuid.UUID) (map[string]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := map[string]string{}
	for k, v := range s.answers[assessmentID] {
		out[k] = v
	}
	return out, nil
}

func (s *stubState) ClearAnswers(_ context.Context, assessmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.answers, assessmentID)
	return nil
}

func (s *stubState) AcquireSubmit(_ context.Context, assessmentID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.submitted[assessmentID] {
		return false, nil
	}
	s.submitted[assessmentID] = true
	return true, nil
}

func (s *stubState) ReleaseSubmit(_ context.Context, assessmentID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.submitted, assessmentID)
	return nil
}

type stubGenerator struct {
	mu     sync.Mutex
	output string
	err    error
	calls  int
}

func (g *stubGenerator) Generate(_ context.Context, _ string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	if g.err != nil {
		return "", g.err
	}
	return g.output, nil
}

func (g *stubGenerator) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.calls
}

type stubRecommender struct {
	mu    sync.Mutex
	err   error
	calls int
}

func (r *stubRecommender) GenerateForAttempt(_ context.Context, _ Attempt, _ SurveyChoices, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.err
}

func (r *stubRecommender) callCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type memoryTimerStore struct {
	mu     sync.Mutex
	states map[string]timer.State
}

func newMemoryTimerStore() *memoryTimerStore {
	return &memoryTimerStore{states: map[string]timer.State{}}
}

func (m *memoryTimerStore) Load(_ context.Context, key string) (*timer.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if state, ok := m.states[key]; ok {
		copied := state
		return &copied, nil
	}
	return nil, nil
}

func (m *memoryTimerStore) Save(_ context.Context, key string, state timer.State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = state
	return nil
}

func (m *memoryTimerStore) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}

func generatorOutput(count int) string {
	out := `{"questions": [`
	for i := 0; i < count; i++ {
		if i > 0 {
			out += ","
		}
		out += fmt.Sprintf(`{
			"id": "q%d",
			"question": "Question %d?",
			"options": ["a", "b", "c", "d"],
			"correctAnswer": "a",
			"topic": "math"
		}`, i+1, i+1)
	}
	return out + `]}`
}

type serviceFixture struct {
	svc         *Service
	store       *stubStore
	state       *stubState
	arena       *timer.Arena
	generator   *stubGenerator
	recommender *stubRecommender
}

func newServiceFixture(questionCount int) *serviceFixture {
	store := newStubStore()
	state := newStubState()
	arena := timer.NewArena(newMemoryTimerStore(), zerolog.Nop())
	generator := &stubGenerator{output: generatorOutput(questionCount)}
	recommender := &stubRecommender{}

	svc := NewService(
		store,
		&stubProfiles{careerGoals: []string{"Engineer"}, studyTracks: []string{"Science"}},
		state,
		arena,
		generator,
		recommender,
		Config{QuestionCount: questionCount, SecondsPerQuestion: 60},
		zerolog.Nop(),
	)
	return &serviceFixture{
		svc:         svc,
		store:       store,
		state:       state,
		arena:       arena,
		generator:   generator,
		recommender: recommender,
	}
}

func TestGenerateRequiresIdentity(t *testing.T) {
	f := newServiceFixture(4)

	_, err := f.svc.Generate(context.Background(), "  ")
	assert.True(t, errors.Is(err, ErrIdentityRequired))
	assert.Zero(t, f.generator.callCount(), "generator must not be called without an identity")
}

func TestGeneratePersistsAndStartsCountdown(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()

	out, err := f.svc.Generate(ctx, "user-1")
	assert.NoError(t, err)
	assert.Len(t, out.Assessment.Questions, 4)
	assert.Equal(t, 240, out.Assessment.TotalSeconds)
	assert.Empty(t, out.Advisory)
	assert.Equal(t, []string{"Engineer"}, out.Assessment.SourceSurveyChoices.CareerGoals)

	stored, err := f.store.GetAssessment(ctx, out.Assessment.ID)
	assert.NoError(t, err)
	assert.NotNil(t, stored)

	cd, ok := f.arena.Get(out.Assessment.ID.String())
	assert.True(t, ok)
	assert.Equal(t, 240, cd.Remaining())
}

func TestGenerateShortfallIsAdvisory(t *testing.T) {
	f := newServiceFixture(4)
	f.svc.cfg.QuestionCount = 10

	out, err := f.svc.Generate(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Len(t, out.Assessment.Questions, 4)
	assert.NotEmpty(t, out.Advisory)
	assert.Equal(t, 240, out.Assessment.TotalSeconds, "duration scales with recovered questions")
}

func TestGenerateUnparsableOutputFails(t *testing.T) {
	f := newServiceFixture(4)
	f.generator.output = "I am unable to produce questions."

	_, err := f.svc.Generate(context.Background(), "user-1")
	assert.True(t, errors.Is(err, ErrGeneration))
}

func TestAnswerValidatesOptionMembership(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q1", "a"))
	assert.True(t, errors.Is(f.svc.Answer(ctx, "user-1", id, "q1", "z"), ErrInvalidAnswer))
	assert.True(t, errors.Is(f.svc.Answer(ctx, "user-1", id, "missing", "a"), ErrInvalidAnswer))
}

func TestAnswerRejectedForWrongUser(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")

	err := f.svc.Answer(ctx, "user-2", out.Assessment.ID, "q1", "a")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestAnswerRejectedAfterExpiry(t *testing.T) {
	f := newServiceFixture(1)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	cd, _ := f.arena.Get(id.String())
	for i := 0; i < 60; i++ {
		cd.Tick(ctx)
	}
	assert.True(t, cd.IsExpired())

	err := f.svc.Answer(ctx, "user-1", id, "q1", "a")
	assert.True(t, errors.Is(err, ErrTerminated))
}

func TestSubmitScoresAndPersists(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q1", "a"))
	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q2", "a"))
	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q3", "a"))
	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q4", "b"))

	cd, _ := f.arena.Get(id.String())
	for i := 0; i < 30; i++ {
		cd.Tick(ctx)
	}

	attempt, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.NoError(t, err)
	assert.Equal(t, 75, attempt.Score)
	assert.Equal(t, 3, attempt.CorrectCount)
	assert.Equal(t, 8, attempt.IQPoints)
	assert.Equal(t, 240, attempt.TotalSeconds)
	assert.Equal(t, 30, attempt.TimeTakenSeconds)
	assert.Equal(t, 1, f.recommender.callCount())

	// Session state is torn down after the commit point.
	answers, _ := f.state.Answers(ctx, id)
	assert.Empty(t, answers)
	_, ok := f.arena.Get(id.String())
	assert.False(t, ok)
}

func TestSubmitTwiceReturnsAlreadySubmitted(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	_, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.NoError(t, err)

	_, err = f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.True(t, errors.Is(err, ErrAlreadySubmitted))
	assert.Equal(t, 1, f.recommender.callCount())
}

func TestExpirySubmitLosesToManual(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	_, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.NoError(t, err)

	// The expiry path carries no identity; it adopts the record's owner but
	// still loses the submitted-flag race.
	_, err = f.svc.Submit(ctx, "", id, TriggerExpiry)
	assert.True(t, errors.Is(err, ErrAlreadySubmitted))
}

func TestExpirySubmitAdoptsOwner(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q1", "a"))

	attempt, err := f.svc.Submit(ctx, "", id, TriggerExpiry)
	assert.NoError(t, err)
	assert.Equal(t, "user-1", attempt.UserID)
	assert.Equal(t, 25, attempt.Score)
}

func TestSubmitPersistFailureKeepsSessionRetryable(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q1", "a"))

	f.store.attemptErr = errors.New("db down")
	_, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.True(t, errors.Is(err, ErrPersistence))

	// The submit flag must be released and answers preserved for a retry.
	answers, _ := f.state.Answers(ctx, id)
	assert.Equal(t, "a", answers["q1"])
	_, ok := f.arena.Get(id.String())
	assert.True(t, ok, "countdown must survive a failed persist")

	f.store.attemptErr = nil
	attempt, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.NoError(t, err)
	assert.Equal(t, 25, attempt.Score)
}

func TestSubmitRecommendationFailureStillCommitsAttempt(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	f.recommender.err = errors.New("generator down")
	attempt, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.True(t, errors.Is(err, ErrRecommendation))
	assert.NotNil(t, attempt, "attempt is committed even when recommendations fail")

	stored, _ := f.store.AttemptByAssessment(ctx, id)
	assert.NotNil(t, stored)

	f.recommender.err = nil
	assert.NoError(t, f.svc.RetryRecommendation(ctx, "user-1", id))
	assert.Equal(t, 2, f.recommender.callCount())
}

func TestResumeAfterExpiryDoesNotRestart(t *testing.T) {
	f := newServiceFixture(1)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q1", "a"))

	cd, _ := f.arena.Get(id.String())
	for i := 0; i < 60; i++ {
		cd.Tick(ctx)
	}
	assert.True(t, cd.IsExpired())

	// A reload must surface the terminal state, never a fresh countdown. The
	// expiry submit had not landed yet, so Resume drives it to completion.
	view, err := f.svc.Resume(ctx, "user-1", id)
	assert.NoError(t, err)
	assert.True(t, view.Expired)
	assert.Zero(t, view.RemainingSeconds)
	assert.NotNil(t, view.Attempt)
	assert.Equal(t, 100, view.Attempt.Score)

	err = f.svc.Answer(ctx, "user-1", id, "q1", "b")
	assert.True(t, errors.Is(err, ErrTerminated))
}

func TestResumeAfterExpiryStaysTerminalWhenPersistFails(t *testing.T) {
	f := newServiceFixture(1)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	cd, _ := f.arena.Get(id.String())
	for i := 0; i < 60; i++ {
		cd.Tick(ctx)
	}

	f.store.attemptErr = errors.New("db down")
	view, err := f.svc.Resume(ctx, "user-1", id)
	assert.NoError(t, err)
	assert.True(t, view.Expired, "a failed expiry submit must not resurrect the session")
	assert.Zero(t, view.RemainingSeconds)
	assert.Nil(t, view.Attempt)

	err = f.svc.Answer(ctx, "user-1", id, "q1", "a")
	assert.True(t, errors.Is(err, ErrTerminated))

	// Once the store recovers, the next resume completes the submission.
	f.store.attemptErr = nil
	view, err = f.svc.Resume(ctx, "user-1", id)
	assert.NoError(t, err)
	assert.NotNil(t, view.Attempt)
}

func TestViewReturnsResumableSnapshot(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	assert.NoError(t, f.svc.Answer(ctx, "user-1", id, "q2", "c"))
	cd, _ := f.arena.Get(id.String())
	for i := 0; i < 10; i++ {
		cd.Tick(ctx)
	}

	view, err := f.svc.View(ctx, "user-1", id)
	assert.NoError(t, err)
	assert.Equal(t, "c", view.Answers["q2"])
	assert.Equal(t, 230, view.RemainingSeconds)
	assert.False(t, view.Expired)
	assert.Nil(t, view.Attempt)
}

func TestViewAfterSubmitShowsAttempt(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")
	id := out.Assessment.ID

	_, err := f.svc.Submit(ctx, "user-1", id, TriggerManual)
	assert.NoError(t, err)

	view, err := f.svc.View(ctx, "user-1", id)
	assert.NoError(t, err)
	assert.NotNil(t, view.Attempt)
	assert.True(t, view.Expired)
	assert.Zero(t, view.RemainingSeconds)
}

func TestAttemptNotFoundBeforeSubmit(t *testing.T) {
	f := newServiceFixture(4)
	ctx := context.Background()
	out, _ := f.svc.Generate(ctx, "user-1")

	_, err := f.svc.Attempt(ctx, "user-1", out.Assessment.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
}
