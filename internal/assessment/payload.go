package assessment

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/edupath/guidance-backend/internal/genai"
)

var (
	// ErrUnparsableOutput means no JSON document could be extracted at all.
	ErrUnparsableOutput = errors.New("generator output contained no parseable JSON")
	// ErrNoUsableQuestions means the payload parsed but every record was dropped.
	ErrNoUsableQuestions = errors.New("generator output contained no usable questions")
)

// ParseResult carries the sanitized question set plus repair bookkeeping so
// callers can surface a shortfall advisory without treating it as an error.
type ParseResult struct {
	Questions []Question
	Dropped   int // structurally invalid records filtered out
	Repaired  int // records whose correctAnswer fell back to the first option
}

// ParseAssessmentPayload runs extractor -> sanitizer over raw generator text.
// The payload is either {"questions":[...]} or a bare top-level array. Limit
// bounds how many sanitized questions are kept; <= 0 means MaxQuestions.
//
// Fewer questions than requested is a partial success, not an error: the
// caller proceeds with what was recovered and surfaces the shortfall.
func ParseAssessmentPayload(raw string, limit int) (ParseResult, error) {
	if limit <= 0 || limit > MaxQuestions {
		limit = MaxQuestions
	}

	doc, ok := genai.Extract(raw)
	if !ok {
		return ParseResult{}, ErrUnparsableOutput
	}

	records, err := questionRecords(doc)
	if err != nil {
		return ParseResult{}, err
	}

	result := ParseResult{Questions: make([]Question, 0, len(records))}
	for i, record := range records {
		q, repaired := SanitizeQuestion(record, i)
		if q == nil {
			result.Dropped++
			continue
		}
		if repaired {
			result.Repaired++
		}
		result.Questions = append(result.Questions, *q)
		if len(result.Questions) == limit {
			break
		}
	}

	if len(result.Questions) == 0 {
		return ParseResult{}, ErrNoUsableQuestions
	}
	return result, nil
}

func questionRecords(doc json.RawMessage) ([]map[string]interface{}, error) {
	var wrapper struct {
		Questions []map[string]interface{} `json:"questions"`
	}
	if err := json.Unmarshal(doc, &wrapper); err == nil && wrapper.Questions != nil {
		return wrapper.Questions, nil
	}

	// The model sometimes returns the array itself as the top-level value.
	var bare []map[string]interface{}
	if err := json.Unmarshal(doc, &bare); err == nil {
		return bare, nil
	}

	return nil, fmt.Errorf("%w: no questions array found", ErrNoUsableQuestions)
}

// SanitizeQuestion validates a single free-form record into a Question.
// Returns nil when the record is structurally unusable (empty question text
// or fewer than 4 usable options). The second return reports whether the
// correctAnswer had to fall back to the first option.
func SanitizeQuestion(record map[string]interface{}, index int) (*Question, bool) {
	if record == nil {
		return nil, false
	}

	text, _ := stringify(record["question"])
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, false
	}

	options := usableOptions(record["options"])
	if len(options) < OptionCount {
		return nil, false
	}
	options = options[:OptionCount]

	rawAnswer, _ := stringify(record["correctAnswer"])
	rawAnswer = strings.TrimSpace(rawAnswer)

	// Case-insensitive match, normalized to the option's original casing.
	// An unmatched answer falls back to the first option; lossy, but it keeps
	// an otherwise well-formed question playable.
	answer := ""
	for _, opt := range options {
		if strings.EqualFold(opt, rawAnswer) {
			answer = opt
			break
		}
	}
	repaired := false
	if answer == "" {
		answer = options[0]
		repaired = true
	}

	id, _ := record["id"].(string)
	id = strings.TrimSpace(id)
	if id == "" {
		id = fmt.Sprintf("q%d-%d", index+1, time.Now().UnixMilli())
	}

	q := &Question{
		ID:            id,
		Question:      text,
		Options:       options,
		CorrectAnswer: answer,
	}

	if topic, ok := stringify(record["topic"]); ok {
		q.Topic = strings.TrimSpace(topic)
	}
	if diff, ok := stringify(record["difficulty"]); ok {
		switch strings.ToLower(strings.TrimSpace(diff)) {
		case DifficultyEasy, DifficultyMedium, DifficultyHard:
			q.Difficulty = strings.ToLower(strings.TrimSpace(diff))
		}
	}

	return q, repaired
}

// usableOptions collects trim-non-empty, case-insensitively distinct option
// strings in original order.
func usableOptions(v interface{}) []string {
	list, ok := v.([]interface{})
	if !ok {
		return nil
	}

	options := make([]string, 0, len(list))
	seen := make(map[string]bool, len(list))
	for _, item := range list {
		s, ok := stringify(item)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		options = append(options, s)
	}
	return options
}

// stringify coerces JSON scalars to strings. Objects and arrays are not
// stringifiable.
func stringify(v interface{}) (string, bool) {
	switch val := v.(type) {
	case string:
		return val, true
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64), true
	case bool:
		return strconv.FormatBool(val), true
	default:
		return "", false
	}
}
