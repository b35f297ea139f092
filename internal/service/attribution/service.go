package attribution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shoplight/attribution/internal/domain"
)

// maxCandidates bounds the scored matcher's candidate set. Ties beyond the
// bound are resolved purely by score then recency among the fetched rows.
const maxCandidates = 200

// Proximity guardrail: when the nearest touch with a different entity
// assignment sits within this many seconds of the winner's distance, the
// matcher abstains rather than guess.
const ambiguityMarginSec = 120

// ScoredMatch is the result of the multi-signal matcher.
type ScoredMatch struct {
	Entities   domain.EntityIDs `json:"entities"`
	Confidence float64          `json:"confidence"`
	Score      float64          `json:"score"`
	Matched    []Signal         `json:"matched_signals"`
	Source     domain.EventSource `json:"source"`
	// AgeHours is the winner's age relative to the cutoff, or to the match
	// time when no cutoff was supplied; negative when unknown.
	AgeHours float64 `json:"age_hours"`
	// TouchID is the internal id of the winning reference touch.
	TouchID string `json:"touch_id"`
}

// ProximityMatch is the result of the time-proximity fallback matcher.
type ProximityMatch struct {
	Entities    domain.EntityIDs   `json:"entities"`
	Confidence  float64            `json:"confidence"`
	DistanceSec float64            `json:"distance_sec"`
	Source      domain.EventSource `json:"source"`
	TouchID     string             `json:"touch_id"`
}

// Service implements the attribution matchers over a shared event store.
// It holds no per-call state; every method reads current store state and
// returns a decision.
type Service struct {
	repo Repository
}

// NewService creates an attribution service backed by the given repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// MatchByClickID is the deterministic fast path: the most recent reference
// touch carrying the exact click identifier wins, no scoring. Returns nil
// when no such touch exists.
func (s *Service) MatchByClickID(ctx context.Context, storeID, clickID string, before *time.Time) (*domain.EntityIDs, error) {
	if clickID == "" {
		return nil, nil
	}
	touch, err := s.repo.LatestByClickID(ctx, storeID, clickID, before)
	if err != nil {
		return nil, fmt.Errorf("click-id lookup: %w", err)
	}
	if touch == nil {
		return nil, nil
	}
	e := touch.Entities()
	return &e, nil
}

// MatchBySignals finds the best-scoring historical touch sharing at least
// one identity signal with the query. Returns nil when no candidate matches
// any signal.
func (s *Service) MatchBySignals(ctx context.Context, storeID string, sig Signals, before *time.Time) (*ScoredMatch, error) {
	if sig.Empty() {
		return nil, nil
	}
	candidates, err := s.repo.CandidatesBySignals(ctx, storeID, sig, before, maxCandidates)
	if err != nil {
		return nil, fmt.Errorf("signal candidates: %w", err)
	}

	// Without a cutoff the purchase is being matched live, so decay is
	// anchored at the match time.
	ref := time.Now()
	if before != nil {
		ref = *before
	}

	var (
		winner        *domain.TrackingEvent
		winnerScore   float64
		winnerMatched []Signal
		winnerAge     float64
	)
	for i := range candidates {
		c := &candidates[i]
		matched := matchedSignals(sig, c)
		if len(matched) == 0 {
			continue
		}

		age := ageUnknown
		if !c.OccurredAt.IsZero() {
			age = ref.Sub(c.OccurredAt).Hours()
		}
		score := scoreTouch(matched, c.Source, age)

		if winner == nil || score > winnerScore ||
			(score == winnerScore && c.OccurredAt.After(winner.OccurredAt)) {
			winner, winnerScore, winnerMatched, winnerAge = c, score, matched, age
		}
	}
	if winner == nil {
		return nil, nil
	}

	return &ScoredMatch{
		Entities:   winner.Entities(),
		Confidence: confidenceFromScore(winnerScore),
		Score:      winnerScore,
		Matched:    winnerMatched,
		Source:     winner.Source,
		AgeHours:   winnerAge,
		TouchID:    winner.ID,
	}, nil
}

// MatchByProximity is the last-resort matcher for purchases sharing no
// signal with any touch: the temporally nearest reference touch within the
// window wins, unless a conflicting touch sits too close behind it, in
// which case the matcher abstains.
//
// windowMinutes defaults to 10 and is clamped to [2, 60].
func (s *Service) MatchByProximity(ctx context.Context, storeID string, occurredAt time.Time, windowMinutes int) (*ProximityMatch, error) {
	if occurredAt.IsZero() {
		return nil, nil
	}
	if windowMinutes == 0 {
		windowMinutes = 10
	}
	if windowMinutes < 2 {
		windowMinutes = 2
	}
	if windowMinutes > 60 {
		windowMinutes = 60
	}

	candidates, err := s.repo.TouchesNear(ctx, storeID, occurredAt, time.Duration(windowMinutes)*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("proximity candidates: %w", err)
	}
	if len(candidates) == 0 {
		return nil, nil
	}

	dist := func(e *domain.TrackingEvent) float64 {
		d := occurredAt.Sub(e.OccurredAt).Seconds()
		if d < 0 {
			d = -d
		}
		return d
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		di, dj := dist(&candidates[i]), dist(&candidates[j])
		if di != dj {
			return di < dj
		}
		pi, pj := candidates[i].Source.Priority(), candidates[j].Source.Priority()
		if pi != pj {
			return pi > pj
		}
		return candidates[i].OccurredAt.After(candidates[j].OccurredAt)
	})

	winner := &candidates[0]
	winDist := dist(winner)

	// Two plausible, conflicting touches too close in time is treated as
	// no-signal.
	winKey := winner.Entities().Key()
	for i := 1; i < len(candidates); i++ {
		alt := &candidates[i]
		if alt.Entities().Key() == winKey {
			continue
		}
		if dist(alt)-winDist <= ambiguityMarginSec {
			return nil, nil
		}
		break
	}

	return &ProximityMatch{
		Entities:    winner.Entities(),
		Confidence:  proximityConfidence(winDist),
		DistanceSec: winDist,
		Source:      winner.Source,
		TouchID:     winner.ID,
	}, nil
}

// proximityConfidence bands confidence by the winner's time distance.
func proximityConfidence(distSec float64) float64 {
	switch {
	case distSec <= 60:
		return 0.76
	case distSec <= 180:
		return 0.72
	case distSec <= 300:
		return 0.67
	case distSec <= 600:
		return 0.60
	case distSec <= 900:
		return 0.53
	default:
		return 0.42
	}
}

// Assign writes a match result back onto a purchase event. Only fields that
// are currently null are set, so the write is idempotent and safe to race
// with concurrent ingest merges.
func (s *Service) Assign(ctx context.Context, storeID, eventID string, e domain.EntityIDs) error {
	if e.Empty() {
		return nil
	}
	return s.repo.AssignEntities(ctx, storeID, eventID, e)
}

// MatchMethod names which matcher produced a cascade result.
type MatchMethod string

const (
	MethodClickID   MatchMethod = "click_id"
	MethodScored    MatchMethod = "scored"
	MethodProximity MatchMethod = "proximity"
)

// MatchQuery describes a purchase needing attribution.
type MatchQuery struct {
	Signals       Signals    `json:"signals"`
	OccurredAt    time.Time  `json:"occurred_at"`
	Before        *time.Time `json:"before,omitempty"`
	WindowMinutes int        `json:"window_minutes,omitempty"`
}

// MatchResult is the outcome of the matcher cascade.
type MatchResult struct {
	Method     MatchMethod      `json:"method"`
	Entities   domain.EntityIDs `json:"entities"`
	Confidence float64          `json:"confidence"`

	Scored    *ScoredMatch    `json:"scored,omitempty"`
	Proximity *ProximityMatch `json:"proximity,omitempty"`
}

// Resolve runs the matcher cascade in descending order of trust:
// deterministic click-id, then scored signals, then time proximity.
// Returns nil when every matcher comes up empty or abstains.
func (s *Service) Resolve(ctx context.Context, storeID string, q MatchQuery) (*MatchResult, error) {
	if q.Signals.ClickID != "" {
		e, err := s.MatchByClickID(ctx, storeID, q.Signals.ClickID, q.Before)
		if err != nil {
			return nil, err
		}
		if e != nil {
			return &MatchResult{Method: MethodClickID, Entities: *e, Confidence: maxConfidence}, nil
		}
	}

	scored, err := s.MatchBySignals(ctx, storeID, q.Signals, q.Before)
	if err != nil {
		return nil, err
	}
	if scored != nil {
		return &MatchResult{
			Method:     MethodScored,
			Entities:   scored.Entities,
			Confidence: scored.Confidence,
			Scored:     scored,
		}, nil
	}

	prox, err := s.MatchByProximity(ctx, storeID, q.OccurredAt, q.WindowMinutes)
	if err != nil {
		return nil, err
	}
	if prox != nil {
		return &MatchResult{
			Method:     MethodProximity,
			Entities:   prox.Entities,
			Confidence: prox.Confidence,
			Proximity:  prox,
		}, nil
	}

	return nil, nil
}
