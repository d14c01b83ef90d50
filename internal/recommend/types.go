package recommend

// CareerRecommendation is a sanitized career suggestion. CareerName is the
// deduplication key; rank is defined by list position (index 0 = top pick).
type CareerRecommendation struct {
	CareerName                 string   `json:"careerName"`
	ConfidenceScore            int      `json:"confidenceScore"`
	Why                        string   `json:"why"`
	RecommendedSubjectsToStudy []string `json:"recommendedSubjectsToStudy"`
	ActionPlan                 []string `json:"actionPlan"`
}

// RecommendationSet is an ordered recommendation list plus advisory flags
// passed through from the generator verbatim.
type RecommendationSet struct {
	Recommendations []CareerRecommendation `json:"recommendations"`
	Flags           []string               `json:"flags,omitempty"`
}

// TopPick returns the career name ranked first, or "" for an empty set.
func (s RecommendationSet) TopPick() string {
	if len(s.Recommendations) == 0 {
		return ""
	}
	return s.Recommendations[0].CareerName
}
