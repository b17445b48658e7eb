package scorer

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"gexflow/internal/cache"
	"gexflow/internal/market"
)

// UnusualScore represents a contract's unusualness score with the
// component breakdown behind it. Recomputed on every call; callers
// may cache but the core never persists it.
type UnusualScore struct {
	Ticker       string             `json:"ticker"`
	Underlying   string             `json:"underlying"`
	Strike       float64            `json:"strike"`
	Type         market.OptionType  `json:"type"`
	Expiration   time.Time          `json:"expiration"`
	Volume       int64              `json:"volume"`
	OpenInterest int64              `json:"open_interest"`
	VolOIRatio   float64            `json:"vol_oi_ratio"`
	Total        float64            `json:"total"`
	Components   map[string]float64 `json:"components"`
}

// Score rates a single contract's trading activity on a 0-100 scale.
// Pure function: no I/O, no state, deterministic for a given contract
// and clock. Malformed fields are clamped rather than rejected.
//
// Two stages: a tiered weighted sum captures moderately interesting
// activity, then an anomaly override floors the score for contracts
// whose volume dwarfs open interest. The override is intentional
// non-linearity: under a pure additive model a ratio-50 contract with a
// wide spread could rank below a ratio-2 contract with perfect context,
// which defeats the point of surfacing anomalies first.
func Score(c market.OptionContract, now time.Time) UnusualScore {
	oi := c.OpenInterest
	if oi < 1 {
		oi = 1 // zero OI must not divide-by-zero; fresh listings count as 1
	}
	ratio := float64(c.Volume) / float64(oi)

	components := map[string]float64{
		"vol_oi":     volOIScore(ratio),
		"rel_volume": relVolumeScore(c.Volume),
		"spread":     spreadScore(&c),
		"gamma":      gammaScore(c.Gamma),
		"delta":      deltaScore(c.Delta),
		"dte":        dteScore(c.DaysToExpiry(now)),
	}

	total := 0.0
	for _, v := range components {
		total += v
	}
	total = clamp(total, 0, 100)

	// Anomaly override: textbook unusual activity always surfaces at
	// the top regardless of how the sub-scores landed.
	if ratio > 5 && c.Volume > 1000 {
		total = math.Max(total, 95)
	}
	if ratio > 10 && c.Volume > 5000 {
		total = 100
	}

	return UnusualScore{
		Ticker:       c.Ticker,
		Underlying:   c.Underlying,
		Strike:       c.Strike,
		Type:         c.Type,
		Expiration:   c.Expiration,
		Volume:       c.Volume,
		OpenInterest: c.OpenInterest,
		VolOIRatio:   ratio,
		Total:        total,
		Components:   components,
	}
}

// volOIScore tiers the volume/open-interest ratio
func volOIScore(ratio float64) float64 {
	switch {
	case ratio > 10:
		return 60
	case ratio > 5:
		return 50
	case ratio > 3:
		return 40
	case ratio > 1.5:
		return 20
	default:
		return 5
	}
}

// relVolumeScore rewards absolute conviction independent of OI
func relVolumeScore(volume int64) float64 {
	switch {
	case volume > 50000:
		return 30
	case volume > 10000:
		return 20
	case volume > 5000:
		return 15
	case volume > 1000:
		return 10
	default:
		return 0
	}
}

// spreadScore rewards tight markets where the print price is meaningful
func spreadScore(c *market.OptionContract) float64 {
	pct := c.SpreadPct()
	switch {
	case pct < 0.02:
		return 10
	case pct < 0.05:
		return 5
	default:
		return 0
	}
}

func gammaScore(gamma float64) float64 {
	if gamma > 0.05 {
		return 10
	}
	return 0
}

// deltaScore rewards the 30-60 delta band where directional bets live
func deltaScore(delta float64) float64 {
	ad := math.Abs(delta)
	if ad >= 0.30 && ad <= 0.60 {
		return 5
	}
	return 0
}

func dteScore(dte float64) float64 {
	if dte <= 1 {
		return 5
	}
	return 0
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Scorer scores whole chains with a short-lived result cache in front
// of the pure Score function.
type Scorer struct {
	cache cache.Cacher
	ttl   time.Duration
}

// NewScorer creates a chain scorer. cache may be nil to disable caching.
func NewScorer(c cache.Cacher, ttl time.Duration) *Scorer {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Scorer{cache: c, ttl: ttl}
}

// ScoreChain scores every valid contract in a chain and returns the
// results sorted descending by total score. Invalid contracts are
// skipped; an empty chain yields an empty slice, never an error.
func (s *Scorer) ScoreChain(ctx context.Context, chain *market.OptionChain, now time.Time) []UnusualScore {
	if chain == nil {
		return nil
	}

	scores := make([]UnusualScore, 0, len(chain.Contracts))
	for i := range chain.Contracts {
		c := chain.Contracts[i]
		if err := market.ValidateContract(&c); err != nil {
			continue
		}

		key := scoreKey(&c)
		if s.cache != nil {
			if v, err := s.cache.Get(ctx, key); err == nil {
				if cached, ok := v.(UnusualScore); ok {
					scores = append(scores, cached)
					continue
				}
			}
		}

		us := Score(c, now)
		if s.cache != nil {
			_ = s.cache.Set(ctx, key, us, s.ttl)
		}
		scores = append(scores, us)
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Total > scores[j].Total
	})
	return scores
}

// scoreKey changes whenever the inputs that move the score change, so
// a stale cache entry can never shadow fresh activity.
func scoreKey(c *market.OptionContract) string {
	return fmt.Sprintf("score:%s:%d:%d", c.Ticker, c.Volume, c.OpenInterest)
}
