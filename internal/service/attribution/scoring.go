package attribution

import (
	"github.com/shoplight/attribution/internal/domain"
)

// Signal names a single matched identity signal in a scored result.
type Signal string

const (
	SignalClickID   Signal = "click_id"
	SignalFBC       Signal = "fbc"
	SignalFBP       Signal = "fbp"
	SignalEmailHash Signal = "email_hash"
)

// signalPriority is the order the bulk backfill resolves signals in:
// first satisfied signal wins.
var signalPriority = []Signal{SignalClickID, SignalFBC, SignalFBP, SignalEmailHash}

// Base weights per matched signal.
const (
	weightClickID   = 72
	weightFBC       = 58
	weightFBP       = 24
	weightEmailHash = 12

	// clickFBCBonus applies when both click_id and fbc matched; otherwise
	// each matched signal beyond the first adds extraSignalBonus.
	clickFBCBonus    = 18
	extraSignalBonus = 6

	// shopifyDiscount reflects that shopify-sourced rows may themselves be
	// derived fallback data rather than primary ad-click evidence.
	shopifyDiscount = 0.72

	// confidenceDivisor converts a raw score into [0,1] confidence.
	confidenceDivisor = 120
	minConfidence     = 0.05
	maxConfidence     = 0.98

	// ageUnknown marks candidates whose age relative to the purchase cannot
	// be established (missing or unparseable occurred_at).
	ageUnknown = -1.0
)

// matchedSignals returns which of the query's signals equal the candidate's
// corresponding fields. Empty query signals never match.
func matchedSignals(q Signals, c *domain.TrackingEvent) []Signal {
	var out []Signal
	if q.ClickID != "" && q.ClickID == c.ClickID {
		out = append(out, SignalClickID)
	}
	if q.FBC != "" && q.FBC == c.FBC {
		out = append(out, SignalFBC)
	}
	if q.FBP != "" && q.FBP == c.FBP {
		out = append(out, SignalFBP)
	}
	if q.EmailHash != "" && q.EmailHash == c.EmailHash {
		out = append(out, SignalEmailHash)
	}
	return out
}

// recencyMultiplier decays a score by candidate age. Ages at or below one
// hour keep full weight.
func recencyMultiplier(ageHours float64) float64 {
	switch {
	case ageHours <= 1:
		return 1.0
	case ageHours <= 6:
		return 0.97
	case ageHours <= 24:
		return 0.90
	case ageHours <= 72:
		return 0.75
	case ageHours <= 168:
		return 0.55
	default:
		return 0.35
	}
}

// scoreTouch computes the heuristic match score for one candidate.
// ageHours < 0 means the age is unknown; recency and weak-signal decay are
// then skipped rather than guessed.
func scoreTouch(matched []Signal, source domain.EventSource, ageHours float64) float64 {
	if len(matched) == 0 {
		return 0
	}

	var score float64
	var hasClick, hasFBC bool
	for _, sig := range matched {
		switch sig {
		case SignalClickID:
			score += weightClickID
			hasClick = true
		case SignalFBC:
			score += weightFBC
			hasFBC = true
		case SignalFBP:
			score += weightFBP
		case SignalEmailHash:
			score += weightEmailHash
		}
	}

	if hasClick && hasFBC {
		score += clickFBCBonus
	} else if len(matched) > 1 {
		score += float64(len(matched)-1) * extraSignalBonus
	}

	if ageHours > 0 {
		score *= recencyMultiplier(ageHours)

		// A lone weak signal far in the past is barely evidence at all.
		if len(matched) == 1 {
			switch {
			case matched[0] == SignalEmailHash && ageHours > 120:
				score *= 0.35
			case matched[0] == SignalFBP && ageHours > 48:
				score *= 0.6
			}
		}
	}

	if source == domain.SourceShopify {
		score *= shopifyDiscount
	}

	return score
}

// confidenceFromScore maps a raw score onto [minConfidence, maxConfidence].
// This is a heuristic confidence, not a calibrated probability.
func confidenceFromScore(score float64) float64 {
	c := score / confidenceDivisor
	if c < minConfidence {
		return minConfidence
	}
	if c > maxConfidence {
		return maxConfidence
	}
	return c
}

// bestBySignalPriority picks a candidate the way the bulk backfill does:
// walk the signal priority order, and for the first signal the purchase
// carries that any candidate matches, return the most recent such candidate.
// No scoring, no decay; throughput over precision on historical data.
func bestBySignalPriority(q Signals, candidates []domain.TrackingEvent) *domain.TrackingEvent {
	for _, sig := range signalPriority {
		var want string
		switch sig {
		case SignalClickID:
			want = q.ClickID
		case SignalFBC:
			want = q.FBC
		case SignalFBP:
			want = q.FBP
		case SignalEmailHash:
			want = q.EmailHash
		}
		if want == "" {
			continue
		}

		var best *domain.TrackingEvent
		for i := range candidates {
			c := &candidates[i]
			var have string
			switch sig {
			case SignalClickID:
				have = c.ClickID
			case SignalFBC:
				have = c.FBC
			case SignalFBP:
				have = c.FBP
			case SignalEmailHash:
				have = c.EmailHash
			}
			if have != want {
				continue
			}
			if best == nil || c.OccurredAt.After(best.OccurredAt) {
				best = c
			}
		}
		if best != nil {
			return best
		}
	}
	return nil
}
