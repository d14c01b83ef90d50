package recommend

import (
	"encoding/json"
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/edupath/guidance-backend/internal/genai"
)

var (
	// ErrUnparsableOutput means no JSON document could be extracted at all.
	ErrUnparsableOutput = errors.New("generator output contained no parseable JSON")
	// ErrNoUsableRecommendations means every record was dropped.
	ErrNoUsableRecommendations = errors.New("generator output contained no usable recommendations")
)

// ParseRecommendationPayload runs extractor -> sanitizer over raw generator
// text. Bad records are filtered out, never fatal; only a fully empty result
// is an error.
func ParseRecommendationPayload(raw string) (RecommendationSet, error) {
	doc, ok := genai.Extract(raw)
	if !ok {
		return RecommendationSet{}, ErrUnparsableOutput
	}

	var wrapper struct {
		Recommendations []map[string]interface{} `json:"recommendations"`
		Flags           []interface{}            `json:"flags"`
	}
	if err := json.Unmarshal(doc, &wrapper); err != nil {
		return RecommendationSet{}, ErrUnparsableOutput
	}

	set := RecommendationSet{
		Recommendations: make([]CareerRecommendation, 0, len(wrapper.Recommendations)),
		Flags:           stringList(wrapper.Flags),
	}

	seen := make(map[string]bool, len(wrapper.Recommendations))
	for _, record := range wrapper.Recommendations {
		rec := SanitizeRecommendation(record)
		if rec == nil {
			continue
		}
		key := strings.ToLower(rec.CareerName)
		if seen[key] {
			continue
		}
		seen[key] = true
		set.Recommendations = append(set.Recommendations, *rec)
	}

	if len(set.Recommendations) == 0 {
		return RecommendationSet{}, ErrNoUsableRecommendations
	}
	return set, nil
}

// SanitizeRecommendation validates a single free-form record. Only a missing
// or empty careerName drops the record; everything else is defaulted or
// repaired in place.
func SanitizeRecommendation(record map[string]interface{}) *CareerRecommendation {
	if record == nil {
		return nil
	}

	name, _ := coerceString(record["careerName"])
	name = strings.TrimSpace(name)
	if name == "" {
		return nil
	}

	rec := &CareerRecommendation{
		CareerName:                 name,
		ConfidenceScore:            clampConfidence(record["confidenceScore"]),
		RecommendedSubjectsToStudy: []string{},
		ActionPlan:                 []string{},
	}

	if why, ok := coerceString(record["why"]); ok {
		rec.Why = strings.TrimSpace(why)
	}
	if subjects, ok := record["recommendedSubjectsToStudy"].([]interface{}); ok {
		rec.RecommendedSubjectsToStudy = stringList(subjects)
	}
	if plan, ok := record["actionPlan"].([]interface{}); ok {
		rec.ActionPlan = stringList(plan)
	}

	return rec
}

// clampConfidence coerces any JSON value to a rounded integer in [0,100],
// defaulting to 0 when not finite.
func clampConfidence(v interface{}) int {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0
		}
		f = parsed
	case bool:
		if val {
			f = 1
		}
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	n := int(math.Round(f))
	if n < 0 {
		return 0
	}
	if n > 100 {
		return 100
	}
	return n
}

func stringList(list []interface{}) []string {
	out := make([]string, 0, len(list))
	for _, item := range list {
		s, ok := coerceString(item)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func coerceString(v interface{}) (string, bool) {
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
