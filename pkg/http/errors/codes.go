package errors

// Error codes for standardized error responses
const (
	// Authentication errors
	ErrCodeInvalidToken           = "invalid_token"
	ErrCodeTokenExpired           = "token_expired"
	ErrCodeAuthenticationRequired = "authentication_required"

	// Validation errors
	ErrCodeInvalidRequest = "invalid_request"
	ErrCodeMissingField   = "missing_field"

	// Assessment pipeline errors
	ErrCodeGenerationFailed    = "generation_failed"
	ErrCodeAssessmentNotFound  = "assessment_not_found"
	ErrCodeSessionTerminated   = "session_terminated"
	ErrCodeAlreadySubmitted    = "already_submitted"
	ErrCodePersistenceFailed   = "persistence_failed"
	ErrCodeAnswerRejected      = "answer_rejected"
	ErrCodeInvalidAssessmentID = "invalid_assessment_id"

	// Recommendation errors
	ErrCodeRecommendationFailed   = "recommendation_failed"
	ErrCodeRecommendationNotFound = "recommendation_not_found"

	// WebSocket errors
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeUnknownMessageType = "unknown_message_type"

	// Server errors
	ErrCodeInternalError = "internal_error"
)
