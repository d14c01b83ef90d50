package assessment

import "math"

// Score evaluates a sparse answer map against a sanitized question set.
// Pure function: an unanswered question counts as incorrect, never as
// excluded, and equality is exact string comparison (casing was already
// normalized by the sanitizer).
func Score(questions []Question, answers map[string]string) ScoreSummary {
	total := len(questions)
	if total == 0 {
		return ScoreSummary{}
	}

	correct := 0
	for _, q := range questions {
		if answers[q.ID] == q.CorrectAnswer {
			correct++
		}
	}

	return ScoreSummary{
		Correct:    correct,
		Total:      total,
		Percentage: int(math.Round(100 * float64(correct) / float64(total))),
	}
}

// IQPoints derives the persisted attempt's point award from a percentage
// score.
func IQPoints(score int) int {
	return int(math.Round(float64(score) / 10))
}

// TopicBreakdown counts correct answers per topic for the recommendation
// prompt. Questions without a topic are grouped under "general".
func TopicBreakdown(questions []Question, answers map[string]string) map[string]int {
	breakdown := make(map[string]int)
	for _, q := range questions {
		if answers[q.ID] != q.CorrectAnswer {
			continue
		}
		topic := q.Topic
		if topic == "" {
			topic = "general"
		}
		breakdown[topic]++
	}
	return breakdown
}
