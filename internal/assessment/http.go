package assessment

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/auth"
	httperrors "github.com/edupath/guidance-backend/pkg/http/errors"
)

// HTTPHandler exposes the REST surface of the assessment pipeline.
type HTTPHandler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHTTPHandler(svc *Service, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		logger: logger.With().Str("component", "assessment_http").Logger(),
	}
}

// questionView is the client-facing question shape. The correct answer never
// leaves the server while a session is live; it surfaces only inside the
// terminal attempt record.
type questionView struct {
	ID         string   `json:"id"`
	Question   string   `json:"question"`
	Options    []string `json:"options"`
	Topic      string   `json:"topic,omitempty"`
	Difficulty string   `json:"difficulty,omitempty"`
}

type assessmentResponse struct {
	ID              string         `json:"id"`
	GeneratedByAI   bool           `json:"generatedByAI"`
	SurveyChoices   SurveyChoices  `json:"sourceSurveyChoices"`
	DocumentSummary string         `json:"documentSummary,omitempty"`
	Questions       []questionView `json:"questions"`
	TotalSeconds    int            `json:"totalSeconds"`
	CreatedAt       string         `json:"createdAt"`
}

func toAssessmentResponse(rec *Record) assessmentResponse {
	questions := make([]questionView, 0, len(rec.Questions))
	for _, q := range rec.Questions {
		questions = append(questions, questionView{
			ID:         q.ID,
			Question:   q.Question,
			Options:    q.Options,
			Topic:      q.Topic,
			Difficulty: q.Difficulty,
		})
	}
	return assessmentResponse{
		ID:              rec.ID.String(),
		GeneratedByAI:   rec.GeneratedByAI,
		SurveyChoices:   rec.SourceSurveyChoices,
		DocumentSummary: rec.DocumentSummary,
		Questions:       questions,
		TotalSeconds:    rec.TotalSeconds,
		CreatedAt:       rec.CreatedAt.Format("2006-01-02T15:04:05Z07:00"),
	}
}

// HandleCreate generates a fresh assessment for the caller.
// Route: POST /v1/assessments
func (h *HTTPHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	out, err := h.svc.Generate(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"assessment": toAssessmentResponse(out.Assessment),
	}
	if out.Advisory != "" {
		resp["advisory"] = out.Advisory
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleView returns the resumable session snapshot for an assessment.
// Route: GET /v1/assessments/{id}
func (h *HTTPHandler) HandleView(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	assessmentID, ok := parseAssessmentID(w, r)
	if !ok {
		return
	}

	view, err := h.svc.Resume(r.Context(), userID, assessmentID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{
		"assessment":       toAssessmentResponse(view.Assessment),
		"answers":          view.Answers,
		"remainingSeconds": view.RemainingSeconds,
		"expired":          view.Expired,
	}
	if view.Attempt != nil {
		resp["attempt"] = view.Attempt
	}
	writeJSON(w, http.StatusOK, resp)
}

type answerRequest struct {
	QuestionID string `json:"questionId"`
	Option     string `json:"option"`
}

// HandleAnswer records one answer selection.
// Route: POST /v1/assessments/{id}/answers
func (h *HTTPHandler) HandleAnswer(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	assessmentID, ok := parseAssessmentID(w, r)
	if !ok {
		return
	}

	var req answerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidRequest, "Invalid request body")
		return
	}
	if strings.TrimSpace(req.QuestionID) == "" {
		httperrors.RespondValidationError(w, httperrors.ErrCodeMissingField, "questionId is required", "questionId")
		return
	}

	if err := h.svc.Answer(r.Context(), userID, assessmentID, req.QuestionID, req.Option); err != nil {
		h.respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"recorded": true})
}

// HandleSubmit performs the manual submission path.
// Route: POST /v1/assessments/{id}/submit
func (h *HTTPHandler) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	assessmentID, ok := parseAssessmentID(w, r)
	if !ok {
		return
	}

	attempt, err := h.svc.Submit(r.Context(), userID, assessmentID, TriggerManual)
	if err != nil && !errors.Is(err, ErrRecommendation) {
		h.respondServiceError(w, err)
		return
	}

	resp := map[string]interface{}{"attempt": attempt}
	if errors.Is(err, ErrRecommendation) {
		// The attempt is committed; surface the retryable step separately.
		resp["recommendationPending"] = true
	}
	writeJSON(w, http.StatusCreated, resp)
}

// HandleAttempt returns the terminal attempt for an assessment.
// Route: GET /v1/assessments/{id}/attempt
func (h *HTTPHandler) HandleAttempt(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	assessmentID, ok := parseAssessmentID(w, r)
	if !ok {
		return
	}

	attempt, err := h.svc.Attempt(r.Context(), userID, assessmentID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"attempt": attempt})
}

// HandleRetryRecommendation re-runs the recommendation step after a failed
// submit-time generation.
// Route: POST /v1/assessments/{id}/recommendation/retry
func (h *HTTPHandler) HandleRetryRecommendation(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	assessmentID, ok := parseAssessmentID(w, r)
	if !ok {
		return
	}

	if err := h.svc.RetryRecommendation(r.Context(), userID, assessmentID); err != nil {
		h.respondServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"generated": true})
}

func (h *HTTPHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIdentityRequired):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeAssessmentNotFound, "Assessment not found")
	case errors.Is(err, ErrAlreadySubmitted):
		httperrors.RespondConflict(w, httperrors.ErrCodeAlreadySubmitted, "Assessment already submitted")
	case errors.Is(err, ErrTerminated):
		httperrors.RespondConflict(w, httperrors.ErrCodeSessionTerminated, "Assessment session already terminated")
	case errors.Is(err, ErrInvalidAnswer):
		httperrors.RespondBadRequest(w, httperrors.ErrCodeAnswerRejected, "Answer does not match any option")
	case errors.Is(err, ErrPersistence):
		h.logger.Error().Err(err).Msg("persistence failed")
		httperrors.RespondError(w, http.StatusInternalServerError, httperrors.ErrCodePersistenceFailed, "Failed to persist assessment state")
	case errors.Is(err, ErrGeneration):
		h.logger.Error().Err(err).Msg("generation failed")
		httperrors.RespondBadGateway(w, httperrors.ErrCodeGenerationFailed, "Assessment generation failed")
	case errors.Is(err, ErrRecommendation):
		h.logger.Error().Err(err).Msg("recommendation failed")
		httperrors.RespondBadGateway(w, httperrors.ErrCodeRecommendationFailed, "Recommendation generation failed")
	default:
		h.logger.Error().Err(err).Msg("assessment request failed")
		httperrors.RespondInternalError(w, "Internal server error")
	}
}

func parseAssessmentID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httperrors.RespondBadRequest(w, httperrors.ErrCodeInvalidAssessmentID, "Invalid assessment id")
		return uuid.Nil, false
	}
	return id, true
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		httperrors.RespondInternalError(w, "failed to encode response")
	}
}
