package scoring

import (
	"math"
	"strings"
)

const dayMillis = 24 * 60 * 60 * 1000

// Input carries the fields that feed score and sentiment. Dates are already
// normalized to epoch milliseconds.
type Input struct {
	EventType       string
	DueDate         *int64
	CompletionDate  *int64
	Importance      *float64
	InternalScore   *float64
	CustomerScore   *float64
	SubjectiveScore *float64
	OpenIssue       string
	FollowUpPlan    string
}

// DateScore rewards finishing on time: 5 when completed by the due date,
// sliding down to -5 for more than a month late.
func DateScore(due, completion *int64) int {
	if due == nil || completion == nil || *due == 0 || *completion == 0 {
		return 0
	}
	diff := int64(math.Floor(float64(*completion-*due) / dayMillis))
	switch {
	case diff <= 0:
		return 5
	case diff == 1:
		return 3
	case diff <= 3:
		return 2
	case diff <= 7:
		return 0
	case diff <= 30:
		return -3
	default:
		return -5
	}
}

func Score(in Input) float64 {
	switch EventType(in.EventType) {
	case EventOneTime:
		return valueOr(in.SubjectiveScore, 0)
	case EventContinuous:
		if in.CompletionDate == nil || *in.CompletionDate == 0 {
			return 0
		}
		dateScore := float64(DateScore(in.DueDate, in.CompletionDate))
		score := (dateScore + valueOr(in.InternalScore, 0) + valueOr(in.CustomerScore, 0)) * valueOr(in.Importance, 1)
		if !isFinite(score) {
			return 0
		}
		return score
	}
	return 0
}

// SentimentScore blends keyword sentiment of the free text with the score,
// importance and timeliness. It is nil when the record has no text.
func SentimentScore(in Input, score float64) *float64 {
	text := joinNonEmpty(in.OpenIssue, in.FollowUpPlan)
	if text == "" {
		return nil
	}

	lexical := LexicalSentiment(text)
	if !isFinite(score) {
		score = 0
	}
	normScore := normalize(score, -20, 20)
	normImportance := valueOr(in.Importance, 0) * 100
	dateScore := 0
	if EventType(in.EventType) == EventContinuous && in.CompletionDate != nil && *in.CompletionDate != 0 {
		dateScore = DateScore(in.DueDate, in.CompletionDate)
	}
	normDate := normalize(float64(dateScore), -5, 5)

	result := clamp(0.4*lexical+0.3*normScore+0.2*normImportance+0.1*normDate, 0, 100)
	return &result
}

// Compute returns score and sentiment together; callers persist both or
// neither.
func Compute(in Input) (float64, *float64) {
	score := Score(in)
	return score, SentimentScore(in, score)
}

// LexicalSentiment is 50 plus 25 per distinct positive word minus 25 per
// distinct negative word found in text, clamped to [0, 100].
func LexicalSentiment(text string) float64 {
	pos, neg := 0, 0
	for _, w := range PositiveWords {
		if strings.Contains(text, w) {
			pos++
		}
	}
	for _, w := range NegativeWords {
		if strings.Contains(text, w) {
			neg++
		}
	}
	return clamp(50+float64(pos-neg)*25, 0, 100)
}

func normalize(v, min, max float64) float64 {
	return (clamp(v, min, max) - min) / (max - min) * 100
}

func clamp(v, min, max float64) float64 {
	if v < min {
		return min
	}
	if v > max {
		return max
	}
	return v
}

// valueOr treats nil and non-finite values as absent.
func valueOr(p *float64, def float64) float64 {
	if p == nil || !isFinite(*p) {
		return def
	}
	return *p
}

func isFinite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func joinNonEmpty(parts ...string) string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, " ")
}
