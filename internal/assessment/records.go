package assessment

import (
	"time"

	"github.com/google/uuid"
)

// SurveyChoices is the user's self-reported preference survey data. Persisted
// elsewhere; read-only to this core.
type SurveyChoices struct {
	CareerGoals []string `json:"careerGoals"`
	StudyTracks []string `json:"studyTracks"`
}

// Record is a persisted assessment document. Questions are immutable once
// generated.
type Record struct {
	ID                  uuid.UUID     `json:"id"`
	UserID              string        `json:"user_id"`
	GeneratedByAI       bool          `json:"generatedByAI"`
	SourceSurveyChoices SurveyChoices `json:"sourceSurveyChoices"`
	DocumentSummary     string        `json:"documentSummary"`
	Questions           []Question    `json:"questions"`
	TotalSeconds        int           `json:"totalSeconds"`
	CreatedAt           time.Time     `json:"createdAt"`
}

// Attempt is the persisted terminal record of one assessment run. Its
// existence makes the assessment read-only.
type Attempt struct {
	ID               uuid.UUID         `json:"id"`
	AssessmentID     uuid.UUID         `json:"assessmentId"`
	UserID           string            `json:"user_id"`
	Score            int               `json:"score"`
	CorrectCount     int               `json:"correctCount"`
	Questions        []Question        `json:"questions"`
	Answers          map[string]string `json:"answers"`
	TotalSeconds     int               `json:"totalSeconds"`
	TimeTakenSeconds int               `json:"timeTakenSeconds"`
	IQPoints         int               `json:"iqPoints"`
	CreatedAt        time.Time         `json:"createdAt"`
}
