package assessment

// Difficulty constants for readability.
const (
	DifficultyEasy   = "easy"
	DifficultyMedium = "medium"
	DifficultyHard   = "hard"
)

// OptionCount is the fixed number of answer choices per question.
const OptionCount = 4

// MaxQuestions caps how many sanitized questions one assessment keeps.
const MaxQuestions = 40

// Question is a sanitized assessment question, safe to persist and display.
// CorrectAnswer always equals one of Options exactly.
type Question struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correctAnswer"`
	Topic         string   `json:"topic,omitempty"`
	Difficulty    string   `json:"difficulty,omitempty"`
}

// ScoreSummary is the result of scoring an answer map against a question set.
type ScoreSummary struct {
	Correct    int `json:"correct"`
	Total      int `json:"total"`
	Percentage int `json:"percentage"`
}
