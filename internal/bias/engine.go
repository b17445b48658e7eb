package bias

import (
	"fmt"
	"math"
	"sort"
	"time"

	"gexflow/internal/exposure"
	"gexflow/internal/flow"
	"gexflow/internal/market"
)

// BiasType is the terminal directional verdict
type BiasType string

const (
	Bullish BiasType = "BULLISH"
	Bearish BiasType = "BEARISH"
	NoTrade BiasType = "NO_TRADE"
)

// Config represents bias engine weights and thresholds. The dead-zone
// is intentional: the engine prefers silence over false conviction on
// ambiguous days.
type Config struct {
	// NoTradeBand is the |bull-bear| net score below which the verdict
	// is NoTrade.
	NoTradeBand float64 `yaml:"no_trade_band"`
	// RegimeBullWeight applies on LongGamma (dealers dampen moves;
	// treated as a mild bullish lean in calm markets). RegimeBearWeight
	// applies on ShortGamma and is deliberately larger: dealer hedging
	// amplifies moves and trend-continuation risk dominates.
	RegimeBullWeight float64 `yaml:"regime_bull_weight"`
	RegimeBearWeight float64 `yaml:"regime_bear_weight"`
	// FlowWeight scales the ATM notional imbalance once it clears
	// FlowThreshold.
	FlowWeight    float64 `yaml:"flow_weight"`
	FlowThreshold float64 `yaml:"flow_threshold"`
	// BurstWeight is added per net aggressive burst, capped at BurstCap.
	BurstWeight float64 `yaml:"burst_weight"`
	BurstCap    float64 `yaml:"burst_cap"`
	// VWAPWeight scales the price-vs-VWAP distance, capped at
	// VWAPDistanceCapPct percent.
	VWAPWeight         float64 `yaml:"vwap_weight"`
	VWAPDistanceCapPct float64 `yaml:"vwap_distance_cap_pct"`
	// Staleness forces NoTrade when exposure or price context is older.
	Staleness time.Duration `yaml:"staleness"`
	// MaxReasons caps the emitted reason list.
	MaxReasons int `yaml:"max_reasons"`
}

// DefaultConfig returns the default bias weights
func DefaultConfig() Config {
	return Config{
		NoTradeBand:        8,
		RegimeBullWeight:   5,
		RegimeBearWeight:   12,
		FlowWeight:         30,
		FlowThreshold:      0.10,
		BurstWeight:        2,
		BurstCap:           10,
		VWAPWeight:         10,
		VWAPDistanceCapPct: 2.0,
		Staleness:          2 * time.Minute,
		MaxReasons:         5,
	}
}

// PriceSignal summarizes the price-vs-VWAP context in the verdict
type PriceSignal struct {
	Spot           float64 `json:"spot"`
	VWAP           float64 `json:"vwap"`
	Classification string  `json:"classification"` // ABOVE_VWAP, BELOW_VWAP, AT_VWAP, UNKNOWN
	DistancePct    float64 `json:"distance_pct"`
}

// Verdict is the composite bias output: direction, confidence and the
// ranked reasons behind it, plus the inputs it was built from.
type Verdict struct {
	Underlying string          `json:"underlying"`
	Bias       BiasType        `json:"bias"`
	Confidence float64         `json:"confidence"`
	Reasons    []string        `json:"reasons"`
	Regime     exposure.Regime `json:"regime"`
	Flow       flow.Aggregates `json:"flow"`
	Price      PriceSignal     `json:"price"`
	ComputedAt time.Time       `json:"computed_at"`
}

// Inputs carries the latest component snapshots into Compute. RegimeAt
// is when the exposure snapshot was taken; a quiet trade feed does not
// count as staleness, an old chain snapshot does.
type Inputs struct {
	Underlying string
	Regime     exposure.Regime
	RegimeAt   time.Time
	Flow       flow.Aggregates
	Price      market.PriceContext
}

// contribution is one signal's vote, kept for ranking reasons
type contribution struct {
	reason    string
	magnitude float64
	bull      bool
	scoreless bool // listed as a reason but not added to either score
}

// Engine composes regime, flow and price context into one verdict.
// Stateless: every call recomputes from the inputs it is handed.
type Engine struct {
	cfg    Config
	maxNet float64
}

// NewEngine creates a bias engine
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.NoTradeBand <= 0 {
		cfg.NoTradeBand = def.NoTradeBand
	}
	if cfg.RegimeBullWeight <= 0 {
		cfg.RegimeBullWeight = def.RegimeBullWeight
	}
	if cfg.RegimeBearWeight <= 0 {
		cfg.RegimeBearWeight = def.RegimeBearWeight
	}
	if cfg.FlowWeight <= 0 {
		cfg.FlowWeight = def.FlowWeight
	}
	if cfg.FlowThreshold <= 0 {
		cfg.FlowThreshold = def.FlowThreshold
	}
	if cfg.BurstWeight <= 0 {
		cfg.BurstWeight = def.BurstWeight
	}
	if cfg.BurstCap <= 0 {
		cfg.BurstCap = def.BurstCap
	}
	if cfg.VWAPWeight <= 0 {
		cfg.VWAPWeight = def.VWAPWeight
	}
	if cfg.VWAPDistanceCapPct <= 0 {
		cfg.VWAPDistanceCapPct = def.VWAPDistanceCapPct
	}
	if cfg.Staleness <= 0 {
		cfg.Staleness = def.Staleness
	}
	if cfg.MaxReasons <= 0 {
		cfg.MaxReasons = def.MaxReasons
	}

	e := &Engine{cfg: cfg}
	// Largest possible one-sided accumulator, for confidence scaling
	bullMax := cfg.RegimeBullWeight + cfg.FlowWeight + cfg.BurstCap + cfg.VWAPWeight
	bearMax := cfg.RegimeBearWeight + cfg.FlowWeight + cfg.BurstCap + cfg.VWAPWeight
	e.maxNet = math.Max(bullMax, bearMax)
	return e
}

// Compute produces a bias verdict from the latest component snapshots.
// Never blocks and never errors: missing or stale inputs degrade to
// NoTrade with an explanatory reason.
func (e *Engine) Compute(in Inputs, now time.Time) Verdict {
	v := Verdict{
		Underlying: in.Underlying,
		Regime:     in.Regime,
		Flow:       in.Flow,
		Price:      priceSignal(in.Price),
		ComputedAt: now,
	}

	if e.stale(in, now) {
		v.Bias = NoTrade
		v.Reasons = []string{"Market data stale - standing aside"}
		return v
	}

	var bull, bear float64
	var contribs []contribution

	add := func(c contribution) {
		if !c.scoreless {
			if c.bull {
				bull += c.magnitude
			} else {
				bear += c.magnitude
			}
		}
		contribs = append(contribs, c)
	}

	e.scoreRegime(in.Regime, add)
	e.scoreFlow(&in.Flow, add)
	e.scorePrice(v.Price, add)

	net := bull - bear
	switch {
	case net > e.cfg.NoTradeBand:
		v.Bias = Bullish
	case net < -e.cfg.NoTradeBand:
		v.Bias = Bearish
	default:
		v.Bias = NoTrade
	}

	v.Confidence = clamp(math.Abs(net)/e.maxNet*100, 0, 100)
	v.Reasons = rankReasons(contribs, e.cfg.MaxReasons)
	return v
}

// stale reports whether exposure or price context has aged past the
// freshness threshold. Zero timestamps mean the input never arrived,
// which reads as "no data yet" rather than stale; the scorers already
// treat those as no-signal.
func (e *Engine) stale(in Inputs, now time.Time) bool {
	if !in.RegimeAt.IsZero() && now.Sub(in.RegimeAt) > e.cfg.Staleness {
		return true
	}
	if !in.Price.Timestamp.IsZero() && now.Sub(in.Price.Timestamp) > e.cfg.Staleness {
		return true
	}
	return false
}

func (e *Engine) scoreRegime(r exposure.Regime, add func(contribution)) {
	switch r.Type {
	case exposure.LongGamma:
		add(contribution{
			reason:    "Dealers long gamma - hedging dampens moves, mild mean-reversion tailwind",
			magnitude: e.cfg.RegimeBullWeight,
			bull:      true,
		})
	case exposure.ShortGamma:
		add(contribution{
			reason:    fmt.Sprintf("Dealers short gamma (%s) - hedging amplifies moves, continuation risk", gammaUSD(r.NetGammaUSD)),
			magnitude: e.cfg.RegimeBearWeight,
			bull:      false,
		})
	}
	if r.GammaFlip {
		// Direction-independent: a flip point at spot raises realized
		// volatility risk whichever way price breaks.
		add(contribution{
			reason:    "Net gamma flips sign near spot - elevated volatility risk",
			magnitude: e.cfg.RegimeBullWeight,
			scoreless: true,
		})
	}
}

func (e *Engine) scoreFlow(agg *flow.Aggregates, add func(contribution)) {
	// ATM imbalance is the primary directional read; fall back to the
	// overall window when nothing traded near the money.
	imb := agg.ATMImbalance
	scope := "ATM"
	if agg.ATMCallAskNotional+agg.ATMCallBidNotional+agg.ATMPutAskNotional+agg.ATMPutBidNotional == 0 {
		imb = agg.Imbalance
		scope = "overall"
	}

	if imb > e.cfg.FlowThreshold {
		add(contribution{
			reason:    fmt.Sprintf("%s options flow skewed to aggressive buyers (imbalance %+.2f)", scope, imb),
			magnitude: e.cfg.FlowWeight * imb,
			bull:      true,
		})
	} else if imb < -e.cfg.FlowThreshold {
		add(contribution{
			reason:    fmt.Sprintf("%s options flow skewed to aggressive sellers (imbalance %+.2f)", scope, imb),
			magnitude: e.cfg.FlowWeight * math.Abs(imb),
			bull:      false,
		})
	}

	// Burst skew: calls lifted at the ask and puts hit at the bid vote
	// bullish; the mirror image votes bearish.
	var bullBursts, bearBursts int
	for _, b := range agg.Bursts {
		bullish := (b.Type == market.Call && b.Side == flow.SideAsk) ||
			(b.Type == market.Put && b.Side == flow.SideBid)
		if bullish {
			bullBursts++
		} else {
			bearBursts++
		}
	}
	if net := bullBursts - bearBursts; net != 0 {
		mag := math.Min(math.Abs(float64(net))*e.cfg.BurstWeight, e.cfg.BurstCap)
		if net > 0 {
			add(contribution{
				reason:    fmt.Sprintf("Burst activity skewed bullish (%d net aggressive call-buy bursts)", net),
				magnitude: mag,
				bull:      true,
			})
		} else {
			add(contribution{
				reason:    fmt.Sprintf("Burst activity skewed bearish (%d net aggressive put-buy bursts)", -net),
				magnitude: mag,
				bull:      false,
			})
		}
	}
}

func (e *Engine) scorePrice(p PriceSignal, add func(contribution)) {
	if p.Classification != "ABOVE_VWAP" && p.Classification != "BELOW_VWAP" {
		return
	}
	dist := math.Min(math.Abs(p.DistancePct), e.cfg.VWAPDistanceCapPct)
	mag := e.cfg.VWAPWeight * dist / e.cfg.VWAPDistanceCapPct
	if mag <= 0 {
		return
	}
	if p.Classification == "ABOVE_VWAP" {
		add(contribution{
			reason:    fmt.Sprintf("Price %.2f%% above VWAP", p.DistancePct),
			magnitude: mag,
			bull:      true,
		})
	} else {
		add(contribution{
			reason:    fmt.Sprintf("Price %.2f%% below VWAP", math.Abs(p.DistancePct)),
			magnitude: mag,
			bull:      false,
		})
	}
}

// priceSignal classifies price vs VWAP. A distance inside five basis
// points reads as AT_VWAP.
func priceSignal(pc market.PriceContext) PriceSignal {
	ps := PriceSignal{Spot: pc.Spot, VWAP: pc.VWAP, Classification: "UNKNOWN"}
	if pc.Spot <= 0 || pc.VWAP <= 0 {
		return ps
	}
	ps.DistancePct = (pc.Spot - pc.VWAP) / pc.VWAP * 100
	switch {
	case math.Abs(ps.DistancePct) < 0.05:
		ps.Classification = "AT_VWAP"
	case ps.DistancePct > 0:
		ps.Classification = "ABOVE_VWAP"
	default:
		ps.Classification = "BELOW_VWAP"
	}
	return ps
}

// rankReasons orders contributions by magnitude descending and caps the
// list to keep the output digestible.
func rankReasons(contribs []contribution, max int) []string {
	sort.SliceStable(contribs, func(i, j int) bool {
		return contribs[i].magnitude > contribs[j].magnitude
	})
	if len(contribs) > max {
		contribs = contribs[:max]
	}
	reasons := make([]string, len(contribs))
	for i, c := range contribs {
		reasons[i] = c.reason
	}
	return reasons
}

func gammaUSD(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return fmt.Sprintf("$%.0fM net", *v/1e6)
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
