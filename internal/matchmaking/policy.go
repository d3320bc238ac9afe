package matchmaking

import (
	"fmt"
	"math"
	"time"

	"github.com/rl-arena/rl-arena-matchmaker/pkg/geo"
)

// Thresholds compatibility limits. All values come from configuration.
type Thresholds struct {
	MaxRatingDiff    float64
	MaxDeviationDiff float64
	MaxDistanceKm    float64
	// MaxQueueWait once either player has waited this long, any pairing is accepted
	MaxQueueWait time.Duration
}

// Validate rejects non-positive or non-finite limits.
func (t Thresholds) Validate() error {
	for name, v := range map[string]float64{
		"maxRatingDiff":    t.MaxRatingDiff,
		"maxDeviationDiff": t.MaxDeviationDiff,
		"maxDistanceKm":    t.MaxDistanceKm,
	} {
		if !isFinite(v) || v <= 0 {
			return fmt.Errorf("%w: %s=%v", ErrInvalidThresholds, name, v)
		}
	}
	if t.MaxQueueWait <= 0 {
		return fmt.Errorf("%w: maxQueueWait=%v", ErrInvalidThresholds, t.MaxQueueWait)
	}
	return nil
}

// CompatibilityPolicy decides whether two waiting players may be paired.
// Implementations must be symmetric in a and b.
type CompatibilityPolicy interface {
	IsGoodMatch(a, b *WaitingPlayer, now time.Time) bool
}

// ThresholdPolicy accepts a pair when rating, deviation and distance are all
// within limits, or when either player has waited at least MaxQueueWait.
type ThresholdPolicy struct {
	thresholds Thresholds
}

// NewThresholdPolicy ThresholdPolicy 생성
func NewThresholdPolicy(thresholds Thresholds) *ThresholdPolicy {
	return &ThresholdPolicy{thresholds: thresholds}
}

// Thresholds 현재 설정값
func (p *ThresholdPolicy) Thresholds() Thresholds {
	return p.thresholds
}

// IsGoodMatch panics on nil operands: pairing with an absent player is a caller bug.
func (p *ThresholdPolicy) IsGoodMatch(a, b *WaitingPlayer, now time.Time) bool {
	if a == nil || b == nil {
		panic("matchmaking: IsGoodMatch called with nil player")
	}

	longestWait := a.ElapsedWait(now)
	if w := b.ElapsedWait(now); w > longestWait {
		longestWait = w
	}
	if longestWait >= p.thresholds.MaxQueueWait {
		return true
	}

	if math.Abs(a.Rating-b.Rating) > p.thresholds.MaxRatingDiff {
		return false
	}
	if math.Abs(a.RatingDeviation-b.RatingDeviation) > p.thresholds.MaxDeviationDiff {
		return false
	}
	return geo.Distance(a.Location(), b.Location()) <= p.thresholds.MaxDistanceKm
}
