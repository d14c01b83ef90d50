package genai

import (
	"fmt"
	"strings"
)

// AssessmentPromptInput carries the user context folded into the question
// generation prompt. DocumentSummary is an opaque free-text block produced by
// the document collaborator.
type AssessmentPromptInput struct {
	CareerGoals     []string
	StudyTracks     []string
	DocumentSummary string
	QuestionCount   int
}

// BuildAssessmentPrompt renders the question-generation prompt.
func BuildAssessmentPrompt(in AssessmentPromptInput) string {
	b := strings.Builder{}

	b.WriteString("Return ONLY valid JSON. No text. No markdown. No explanations.\n")
	b.WriteString(`{"questions":[{"id":"string","question":"string","options":["a","b","c","d"],"correctAnswer":"string","topic":"string","difficulty":"easy|medium|hard"}]}`)
	b.WriteString("\nRules:\n")
	fmt.Fprintf(&b, "- Generate exactly %d aptitude questions.\n", in.QuestionCount)
	b.WriteString("- Each question has exactly 4 distinct options.\n")
	b.WriteString("- Ensure 'correctAnswer' appears inside 'options'.\n")
	b.WriteString("- Keep question text short. No markdown. No commentary.\n")

	if len(in.CareerGoals) > 0 {
		fmt.Fprintf(&b, "- Weight topics toward these career goals: %s.\n", strings.Join(in.CareerGoals, ", "))
	}
	if len(in.StudyTracks) > 0 {
		fmt.Fprintf(&b, "- The student is following these study tracks: %s.\n", strings.Join(in.StudyTracks, ", "))
	}
	if in.DocumentSummary != "" {
		b.WriteString("- Context extracted from the student's uploaded documents:\n")
		b.WriteString(in.DocumentSummary)
		b.WriteString("\n")
	}

	return b.String()
}

// RecommendationPromptInput carries the scored attempt and user context for
// career recommendation generation.
type RecommendationPromptInput struct {
	Score           int
	CorrectCount    int
	TotalQuestions  int
	TopicBreakdown  map[string]int // topic -> correct answers in that topic
	CareerGoals     []string
	StudyTracks     []string
	DocumentSummary string
}

// BuildRecommendationPrompt renders the career-recommendation prompt.
func BuildRecommendationPrompt(in RecommendationPromptInput) string {
	b := strings.Builder{}

	b.WriteString("Return ONLY valid JSON. No text. No markdown. No explanations.\n")
	b.WriteString(`{"recommendations":[{"careerName":"string","confidenceScore":0,"why":"string","recommendedSubjectsToStudy":["..."],"actionPlan":["..."]}],"flags":["..."]}`)
	b.WriteString("\nRules:\n")
	b.WriteString("- Provide 3 to 5 career recommendations ordered best first.\n")
	b.WriteString("- 'confidenceScore' is an integer 0-100.\n")
	b.WriteString("- 'flags' lists short advisory notes, may be empty.\n")

	fmt.Fprintf(&b, "Assessment result: %d of %d correct, score %d%%.\n", in.CorrectCount, in.TotalQuestions, in.Score)
	if len(in.TopicBreakdown) > 0 {
		b.WriteString("Correct answers by topic:\n")
		for topic, correct := range in.TopicBreakdown {
			fmt.Fprintf(&b, "- %s: %d\n", topic, correct)
		}
	}
	if len(in.CareerGoals) > 0 {
		fmt.Fprintf(&b, "Self-reported career goals: %s.\n", strings.Join(in.CareerGoals, ", "))
	}
	if len(in.StudyTracks) > 0 {
		fmt.Fprintf(&b, "Current study tracks: %s.\n", strings.Join(in.StudyTracks, ", "))
	}
	if in.DocumentSummary != "" {
		b.WriteString("Context from uploaded documents:\n")
		b.WriteString(in.DocumentSummary)
		b.WriteString("\n")
	}

	return b.String()
}
