package recommend

import "strings"

// Provenance tags recording which source contributed a ranked item.
const (
	SourceUser    = "user"
	SourceAI      = "ai"
	SourceAligned = "aligned" // same label in the user's top-3 and the AI's top pick
)

// Alignment statuses.
const (
	StatusAligned   = "aligned"
	StatusDivergent = "divergent"
	StatusNoAI      = "no-ai"
)

const (
	maxUserPicks    = 3
	maxRankingItems = 4
	maxRationaleLen = 220
)

// RankingItem is one provenance-tagged entry in the merged ranking.
type RankingItem struct {
	Label  string `json:"label"`
	Source string `json:"source"`
}

// Ranking merges the user's self-reported preferences with the AI top pick.
type Ranking struct {
	Items  []RankingItem `json:"items"`
	Status string        `json:"status"`
}

// BuildRanking merges a ranked user preference list with the AI's single top
// pick. User selections are deduplicated case-insensitively in first-seen
// order and truncated to the top 3. A matched label always surfaces first
// regardless of its original rank: the point of the screen is to foreground
// agreement or disagreement with the AI, not to preserve user ordering.
func BuildRanking(userSelections []string, aiTopPick string) Ranking {
	user := dedupePicks(userSelections)
	aiTopPick = strings.TrimSpace(aiTopPick)

	if aiTopPick == "" {
		items := make([]RankingItem, 0, len(user))
		for _, label := range user {
			items = append(items, RankingItem{Label: label, Source: SourceUser})
		}
		return Ranking{Items: capItems(items), Status: StatusNoAI}
	}

	matched := ""
	for _, label := range user {
		if strings.EqualFold(label, aiTopPick) {
			matched = label
			break
		}
	}

	if matched != "" {
		items := []RankingItem{{Label: matched, Source: SourceAligned}}
		for _, label := range user {
			if label == matched {
				continue
			}
			items = append(items, RankingItem{Label: label, Source: SourceUser})
		}
		return Ranking{Items: capItems(items), Status: StatusAligned}
	}

	items := []RankingItem{{Label: aiTopPick, Source: SourceAI}}
	for _, label := range user {
		items = append(items, RankingItem{Label: label, Source: SourceUser})
	}
	return Ranking{Items: capItems(items), Status: StatusDivergent}
}

func dedupePicks(selections []string) []string {
	out := make([]string, 0, maxUserPicks)
	seen := make(map[string]bool, len(selections))
	for _, s := range selections {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
		if len(out) == maxUserPicks {
			break
		}
	}
	return out
}

func capItems(items []RankingItem) []RankingItem {
	if len(items) > maxRankingItems {
		return items[:maxRankingItems]
	}
	return items
}

// Verdict is the qualitative readout shown next to the ranking. Built by
// deterministic templating from the alignment status alone; it never calls
// the generator.
type Verdict struct {
	Tone     string `json:"tone"` // positive, warning, or neutral
	Headline string `json:"headline"`
	Message  string `json:"message"`
}

// BuildVerdict derives the verdict for a ranking. For divergent rankings the
// AI's rationale (the top recommendation's "why" text) is folded in,
// truncated to 220 characters.
func BuildVerdict(status, rationale string) Verdict {
	switch status {
	case StatusAligned:
		return Verdict{
			Tone:     "positive",
			Headline: "Your instincts agree with the data",
			Message:  "The AI's top recommendation matches one of your own top choices. That overlap is a strong signal to explore it further.",
		}
	case StatusDivergent:
		msg := "The AI's top recommendation differs from your self-reported preferences. Neither is wrong; compare them before deciding."
		if r := truncateRationale(rationale); r != "" {
			msg += " AI rationale: " + r
		}
		return Verdict{
			Tone:     "warning",
			Headline: "The AI sees a different path",
			Message:  msg,
		}
	default:
		return Verdict{
			Tone:     "neutral",
			Headline: "Based on your preferences alone",
			Message:  "No AI recommendation is available yet, so this ranking reflects only your own selections.",
		}
	}
}

func truncateRationale(s string) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= maxRationaleLen {
		return s
	}
	return string(runes[:maxRationaleLen]) + "…"
}
