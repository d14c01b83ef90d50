package recommend

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/edupath/guidance-backend/internal/auth"
	httperrors "github.com/edupath/guidance-backend/pkg/http/errors"
)

// HTTPHandler exposes recommendation and ranking queries.
type HTTPHandler struct {
	svc    *Service
	logger zerolog.Logger
}

func NewHTTPHandler(svc *Service, logger zerolog.Logger) *HTTPHandler {
	return &HTTPHandler{
		svc:    svc,
		logger: logger.With().Str("component", "recommend_http").Logger(),
	}
}

// HandleLatest returns the caller's most recent recommendation set.
// Route: GET /v1/recommendations
func (h *HTTPHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	rec, err := h.svc.Latest(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":              rec.ID.String(),
		"assessmentId":    rec.AssessmentID.String(),
		"recommendations": rec.Recommendations,
		"flags":           rec.Flags,
		"createdAt":       rec.CreatedAt,
	})
}

// HandleRanking returns the merged preference ranking and its verdict.
// Route: GET /v1/recommendations/ranking
func (h *HTTPHandler) HandleRanking(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())

	ranking, verdict, err := h.svc.UserRanking(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ranking": ranking,
		"verdict": verdict,
	})
}

func (h *HTTPHandler) respondServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrIdentityRequired):
		httperrors.RespondUnauthorized(w, httperrors.ErrCodeAuthenticationRequired, "Authentication required")
	case errors.Is(err, ErrNotFound):
		httperrors.RespondNotFound(w, httperrors.ErrCodeRecommendationNotFound, "No recommendations found")
	default:
		h.logger.Error().Err(err).Msg("recommendation request failed")
		httperrors.RespondInternalError(w, "Internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		httperrors.RespondInternalError(w, "failed to encode response")
	}
}
