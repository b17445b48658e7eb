package exposure

import (
	"math"
	"sort"
	"time"

	"gexflow/internal/market"
)

// Config represents exposure engine tunables
type Config struct {
	// BandPct bounds the strikes (as a fraction of spot) that count
	// toward regime classification. Far strikes carry negligible
	// tradeable gamma and only add noise.
	BandPct float64 `yaml:"band_pct"`
	// LongThresholdUSD / ShortThresholdUSD split the regime classes.
	LongThresholdUSD  float64 `yaml:"long_threshold_usd"`
	ShortThresholdUSD float64 `yaml:"short_threshold_usd"`
	// MinValidStrikes is the minimum number of in-band strikes with
	// positive open interest required before classifying at all.
	MinValidStrikes int `yaml:"min_valid_strikes"`
	// DefaultIVPct approximates a calm-VIX baseline when no contract
	// carries usable implied volatility.
	DefaultIVPct float64 `yaml:"default_iv_pct"`
	// ATMBandPct selects the near-the-money contracts whose IV feeds
	// the expected-move calculation.
	ATMBandPct float64 `yaml:"atm_band_pct"`
	// MaxPainBandPct caps candidate settlement strikes once the chain
	// exceeds MaxPainStrikeCap distinct strikes.
	MaxPainBandPct   float64 `yaml:"max_pain_band_pct"`
	MaxPainStrikeCap int     `yaml:"max_pain_strike_cap"`
}

// DefaultConfig returns the default exposure tunables
func DefaultConfig() Config {
	return Config{
		BandPct:           0.10,
		LongThresholdUSD:  50_000_000,
		ShortThresholdUSD: -50_000_000,
		MinValidStrikes:   4,
		DefaultIVPct:      18.5,
		ATMBandPct:        0.05,
		MaxPainBandPct:    0.15,
		MaxPainStrikeCap:  50,
	}
}

// Engine aggregates chain snapshots into dealer gamma exposure,
// expected move and max pain. Stateless per call.
type Engine struct {
	cfg Config
}

// NewEngine creates an exposure engine
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.BandPct <= 0 {
		cfg.BandPct = def.BandPct
	}
	if cfg.LongThresholdUSD <= 0 {
		cfg.LongThresholdUSD = def.LongThresholdUSD
	}
	if cfg.ShortThresholdUSD >= 0 {
		cfg.ShortThresholdUSD = def.ShortThresholdUSD
	}
	if cfg.MinValidStrikes <= 0 {
		cfg.MinValidStrikes = def.MinValidStrikes
	}
	if cfg.DefaultIVPct <= 0 {
		cfg.DefaultIVPct = def.DefaultIVPct
	}
	if cfg.ATMBandPct <= 0 {
		cfg.ATMBandPct = def.ATMBandPct
	}
	if cfg.MaxPainBandPct <= 0 {
		cfg.MaxPainBandPct = def.MaxPainBandPct
	}
	if cfg.MaxPainStrikeCap <= 0 {
		cfg.MaxPainStrikeCap = def.MaxPainStrikeCap
	}
	return &Engine{cfg: cfg}
}

// ComputeProfile aggregates a chain into a per-strike dealer gamma
// exposure profile ordered by strike.
//
// Sign convention (held constant everywhere): dealers are assumed long
// the calls customers sold and short the puts customers bought, so call
// gamma contributes positive dealer gamma and put gamma negative:
//
//	callGamma = +sum(gamma * OI * 100 * spot) over calls at the strike
//	putGamma  = -sum(gamma * OI * 100 * spot) over puts at the strike
//
// Contracts that fail validation are skipped. An empty chain yields a
// profile with no points.
func (e *Engine) ComputeProfile(chain *market.OptionChain) *Profile {
	p := &Profile{}
	if chain == nil {
		return p
	}
	p.Underlying = chain.Underlying
	p.Spot = chain.Spot
	p.Timestamp = chain.Timestamp

	byStrike := make(map[float64]*Point)
	for i := range chain.Contracts {
		c := &chain.Contracts[i]
		if market.ValidateContract(c) != nil {
			continue
		}
		pt, ok := byStrike[c.Strike]
		if !ok {
			pt = &Point{Strike: c.Strike}
			byStrike[c.Strike] = pt
		}
		notional := c.Gamma * float64(c.OpenInterest) * 100 * chain.Spot
		if c.Type == market.Call {
			pt.CallGamma += notional
		} else {
			pt.PutGamma -= notional
		}
	}

	p.Points = make([]Point, 0, len(byStrike))
	for _, pt := range byStrike {
		pt.NetGamma = pt.CallGamma + pt.PutGamma
		pt.TotalGamma = math.Abs(pt.CallGamma) + math.Abs(pt.PutGamma)
		p.Points = append(p.Points, *pt)
	}
	sort.Slice(p.Points, func(i, j int) bool {
		return p.Points[i].Strike < p.Points[j].Strike
	})
	return p
}

// ClassifyRegime classifies the dealer gamma regime from a profile.
// Net gamma is summed only inside the configured band around spot.
// GammaFlip is true when the nearest strikes straddling spot carry
// opposite-sign net gamma, i.e. a structural flip point sits at the
// current price.
func (e *Engine) ClassifyRegime(p *Profile) Regime {
	if p == nil || p.Spot <= 0 || len(p.Points) == 0 {
		return Regime{Type: Unknown}
	}

	lo := p.Spot * (1 - e.cfg.BandPct)
	hi := p.Spot * (1 + e.cfg.BandPct)

	var net float64
	valid := 0
	for _, pt := range p.Points {
		if pt.Strike < lo || pt.Strike > hi {
			continue
		}
		net += pt.NetGamma
		if pt.TotalGamma > 0 {
			valid++
		}
	}

	if valid < e.cfg.MinValidStrikes {
		return Regime{Type: Unknown, ValidStrikes: valid, GammaFlip: e.flipAtSpot(p)}
	}

	r := Regime{NetGammaUSD: &net, ValidStrikes: valid, GammaFlip: e.flipAtSpot(p)}
	switch {
	case net > e.cfg.LongThresholdUSD:
		r.Type = LongGamma
	case net < e.cfg.ShortThresholdUSD:
		r.Type = ShortGamma
	default:
		r.Type = Neutral
	}
	return r
}

// flipAtSpot reports whether the nearest strike below spot and the
// nearest strike above spot have opposite-sign net gamma.
func (e *Engine) flipAtSpot(p *Profile) bool {
	var below, above *Point
	for i := range p.Points {
		pt := &p.Points[i]
		if pt.Strike <= p.Spot {
			below = pt
		}
		if pt.Strike > p.Spot {
			above = pt
			break
		}
	}
	if below == nil || above == nil {
		return false
	}
	if below.NetGamma == 0 || above.NetGamma == 0 {
		return false
	}
	return (below.NetGamma > 0) != (above.NetGamma > 0)
}

// ComputeExpectedMove derives the IV-implied expected move for a chain.
// Implied vol is open-interest-weighted across near-the-money contracts
// of the nearest expiry, falling back to the configured default when no
// contract carries usable IV. An empty chain yields a zero move, which
// callers must read as "no signal", not zero volatility.
func (e *Engine) ComputeExpectedMove(chain *market.OptionChain, now time.Time) ExpectedMove {
	if chain == nil || chain.Spot <= 0 || len(chain.Contracts) == 0 {
		return ExpectedMove{}
	}

	expiry := nearestExpiry(chain, now)
	if expiry.IsZero() {
		return ExpectedMove{}
	}

	ivPct := e.atmWeightedIVPct(chain, expiry)
	if ivPct <= 0 {
		ivPct = e.cfg.DefaultIVPct
	}

	tte := expiry.Sub(now).Hours() / 24 / 365
	if tte <= 0 {
		// 0DTE: treat the remainder of the session as one trading day
		tte = 1.0 / 365
	}

	oneSigma := chain.Spot * (ivPct / 100) * math.Sqrt(tte)
	return ExpectedMove{
		OneSigma: oneSigma,
		TwoSigma: 2 * oneSigma,
		MaxPain:  e.ComputeMaxPain(chain),
		IVUsed:   ivPct,
	}
}

func nearestExpiry(chain *market.OptionChain, now time.Time) time.Time {
	var nearest time.Time
	for i := range chain.Contracts {
		exp := chain.Contracts[i].Expiration
		if exp.Before(now.Truncate(24 * time.Hour)) {
			continue
		}
		if nearest.IsZero() || exp.Before(nearest) {
			nearest = exp
		}
	}
	return nearest
}

// atmWeightedIVPct returns the OI-weighted implied vol (in percent) of
// near-the-money contracts at the given expiry, 0 when none qualify.
func (e *Engine) atmWeightedIVPct(chain *market.OptionChain, expiry time.Time) float64 {
	lo := chain.Spot * (1 - e.cfg.ATMBandPct)
	hi := chain.Spot * (1 + e.cfg.ATMBandPct)

	var ivSum, weight float64
	for i := range chain.Contracts {
		c := &chain.Contracts[i]
		if !c.Expiration.Equal(expiry) || c.IV <= 0 || c.OpenInterest <= 0 {
			continue
		}
		if c.Strike < lo || c.Strike > hi {
			continue
		}
		w := float64(c.OpenInterest)
		ivSum += c.IV * w
		weight += w
	}
	if weight == 0 {
		return 0
	}
	// IV arrives as a fraction (0.22 = 22%); expected move wants percent
	return ivSum / weight * 100
}

// ComputeMaxPain returns the strike minimizing aggregate option-holder
// payout if the underlying settled there. Candidate strikes are capped
// to a band around spot once the chain grows past the configured strike
// count, keeping the quadratic loop bounded on multi-expiry chains.
func (e *Engine) ComputeMaxPain(chain *market.OptionChain) float64 {
	if chain == nil || len(chain.Contracts) == 0 {
		return 0
	}

	strikeSet := make(map[float64]struct{})
	for i := range chain.Contracts {
		if chain.Contracts[i].Strike > 0 {
			strikeSet[chain.Contracts[i].Strike] = struct{}{}
		}
	}
	if len(strikeSet) == 0 {
		return 0
	}

	strikes := make([]float64, 0, len(strikeSet))
	for k := range strikeSet {
		strikes = append(strikes, k)
	}
	sort.Float64s(strikes)

	candidates := strikes
	if chain.Spot > 0 && len(strikes) > e.cfg.MaxPainStrikeCap {
		lo := chain.Spot * (1 - e.cfg.MaxPainBandPct)
		hi := chain.Spot * (1 + e.cfg.MaxPainBandPct)
		banded := candidates[:0:0]
		for _, k := range strikes {
			if k >= lo && k <= hi {
				banded = append(banded, k)
			}
		}
		if len(banded) > 0 {
			candidates = banded
		}
	}

	best := candidates[0]
	bestPain := math.Inf(1)
	for _, settle := range candidates {
		pain := 0.0
		for i := range chain.Contracts {
			c := &chain.Contracts[i]
			if c.OpenInterest <= 0 {
				continue
			}
			var intrinsic float64
			if c.Type == market.Call {
				intrinsic = settle - c.Strike
			} else {
				intrinsic = c.Strike - settle
			}
			if intrinsic > 0 {
				pain += intrinsic * float64(c.OpenInterest) * 100
			}
		}
		if pain < bestPain {
			bestPain = pain
			best = settle
		}
	}
	return best
}
