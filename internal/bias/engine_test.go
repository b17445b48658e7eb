package bias

import (
	"math"
	"strings"
	"testing"
	"time"

	"gexflow/internal/exposure"
	"gexflow/internal/flow"
	"gexflow/internal/market"
)

var now = time.Date(2025, 6, 16, 14, 30, 0, 0, time.UTC)

func f64(v float64) *float64 { return &v }

func freshInputs() Inputs {
	return Inputs{
		Underlying: "SPY",
		Regime:     exposure.Regime{Type: exposure.Unknown},
		RegimeAt:   now.Add(-30 * time.Second),
		Price: market.PriceContext{
			Underlying: "SPY",
			Timestamp:  now.Add(-10 * time.Second),
		},
	}
}

func TestBullishAlignment(t *testing.T) {
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.LongGamma, NetGammaUSD: f64(1.2e8), ValidStrikes: 20}
	in.Flow = flow.Aggregates{
		ATMCallAskNotional: 500_000,
		ATMImbalance:       0.8,
		Bursts: []flow.Burst{
			{Type: market.Call, Side: flow.SideAsk},
			{Type: market.Call, Side: flow.SideAsk},
		},
	}
	in.Price = market.PriceContext{Spot: 101, VWAP: 100, Timestamp: now}

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != Bullish {
		t.Fatalf("expected BULLISH, got %s (reasons: %v)", v.Bias, v.Reasons)
	}
	if v.Confidence <= 0 || v.Confidence > 100 {
		t.Errorf("confidence out of range: %v", v.Confidence)
	}
	if len(v.Reasons) == 0 {
		t.Errorf("verdict should carry reasons")
	}
	// Strongest signal is the flow imbalance (30 * 0.8 = 24)
	if !strings.Contains(v.Reasons[0], "aggressive buyers") {
		t.Errorf("flow should rank first, got %q", v.Reasons[0])
	}
}

func TestBearishAlignment(t *testing.T) {
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.ShortGamma, NetGammaUSD: f64(-2.5e8), ValidStrikes: 20}
	in.Flow = flow.Aggregates{
		ATMPutAskNotional: 400_000,
		ATMImbalance:      -0.5,
		Bursts: []flow.Burst{
			{Type: market.Put, Side: flow.SideAsk},
		},
	}
	in.Price = market.PriceContext{Spot: 98, VWAP: 100, Timestamp: now}

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != Bearish {
		t.Fatalf("expected BEARISH, got %s (reasons: %v)", v.Bias, v.Reasons)
	}
	if v.Price.Classification != "BELOW_VWAP" {
		t.Errorf("expected BELOW_VWAP, got %s", v.Price.Classification)
	}
}

func TestDeadZoneYieldsNoTrade(t *testing.T) {
	// Mild long-gamma lean alone (weight 5) stays inside the +/-8 band
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.LongGamma, NetGammaUSD: f64(6e7), ValidStrikes: 20}
	in.Price = market.PriceContext{Spot: 100, VWAP: 100, Timestamp: now}

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != NoTrade {
		t.Errorf("weak net score should be NO_TRADE, got %s", v.Bias)
	}
	if len(v.Reasons) == 0 {
		t.Errorf("NoTrade inside the dead zone still lists its signals")
	}
}

func TestConflictingSignalsNoTrade(t *testing.T) {
	// Bearish regime against bullish flow nets out inside the band:
	// bear 12 vs bull 30*0.45 = 13.5
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.ShortGamma, NetGammaUSD: f64(-9e7), ValidStrikes: 15}
	in.Flow = flow.Aggregates{
		ATMCallAskNotional: 200_000,
		ATMImbalance:       0.45,
	}

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != NoTrade {
		t.Errorf("conflicting signals should cancel to NO_TRADE, got %s", v.Bias)
	}
}

func TestStaleExposureForcesNoTrade(t *testing.T) {
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.LongGamma, NetGammaUSD: f64(2e8)}
	in.RegimeAt = now.Add(-3 * time.Minute)
	in.Flow = flow.Aggregates{ATMCallAskNotional: 1e6, ATMImbalance: 0.9}

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != NoTrade {
		t.Fatalf("stale exposure must force NO_TRADE, got %s", v.Bias)
	}
	if len(v.Reasons) != 1 || !strings.Contains(v.Reasons[0], "stale") {
		t.Errorf("expected single staleness reason, got %v", v.Reasons)
	}
	if v.Confidence != 0 {
		t.Errorf("stale verdict should carry zero confidence, got %v", v.Confidence)
	}
}

func TestStalePriceContextForcesNoTrade(t *testing.T) {
	in := freshInputs()
	in.Price.Timestamp = now.Add(-5 * time.Minute)

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != NoTrade {
		t.Errorf("stale price context must force NO_TRADE, got %s", v.Bias)
	}
}

func TestMissingInputsAreNotStale(t *testing.T) {
	// Zero timestamps mean no data yet; the verdict is NoTrade for lack
	// of signal, not because of the staleness gate.
	v := NewEngine(Config{}).Compute(Inputs{Underlying: "SPY"}, now)
	if v.Bias != NoTrade {
		t.Errorf("expected NO_TRADE on empty inputs, got %s", v.Bias)
	}
	for _, r := range v.Reasons {
		if strings.Contains(r, "stale") {
			t.Errorf("empty inputs should not read as stale: %v", v.Reasons)
		}
	}
}

func TestGammaFlipIsScoreless(t *testing.T) {
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.LongGamma, NetGammaUSD: f64(8e7), GammaFlip: true, ValidStrikes: 20}

	v := NewEngine(Config{}).Compute(in, now)
	// LongGamma alone contributes 5: still inside the dead zone, so the
	// flip warning must not have tipped the score.
	if v.Bias != NoTrade {
		t.Errorf("flip warning must not add to the score, got %s", v.Bias)
	}

	var found bool
	for _, r := range v.Reasons {
		if strings.Contains(r, "flips sign") {
			found = true
		}
	}
	if !found {
		t.Errorf("flip should still appear in reasons: %v", v.Reasons)
	}
}

func TestFlowBelowThresholdIgnored(t *testing.T) {
	in := freshInputs()
	in.Flow = flow.Aggregates{
		ATMCallAskNotional: 100_000,
		ATMImbalance:       0.05, // inside the 0.10 threshold
	}

	v := NewEngine(Config{}).Compute(in, now)
	for _, r := range v.Reasons {
		if strings.Contains(r, "flow skewed") {
			t.Errorf("imbalance under threshold should contribute nothing: %v", v.Reasons)
		}
	}
}

func TestFlowFallsBackToOverallImbalance(t *testing.T) {
	in := freshInputs()
	in.Flow = flow.Aggregates{
		CallAskNotional: 300_000,
		Imbalance:       0.6,
		// no ATM notional at all
		ATMImbalance: 0,
	}

	v := NewEngine(Config{}).Compute(in, now)
	var found bool
	for _, r := range v.Reasons {
		if strings.Contains(r, "overall options flow") {
			found = true
		}
	}
	if !found {
		t.Errorf("expected fallback to overall imbalance in reasons: %v", v.Reasons)
	}
}

func TestBurstContributionCapped(t *testing.T) {
	in := freshInputs()
	for i := 0; i < 20; i++ {
		in.Flow.Bursts = append(in.Flow.Bursts, flow.Burst{Type: market.Call, Side: flow.SideAsk})
	}

	// 20 net bullish bursts * weight 2 would be 40 uncapped; the cap
	// holds the contribution at 10.
	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != Bullish {
		t.Fatalf("expected BULLISH from burst skew, got %s", v.Bias)
	}
	want := 10.0 / 62 * 100
	if math.Abs(v.Confidence-want) > 1e-9 {
		t.Errorf("confidence = %v, want %v (burst score capped at 10)", v.Confidence, want)
	}
}

func TestReasonsRankedAndCapped(t *testing.T) {
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.ShortGamma, NetGammaUSD: f64(-1e8), GammaFlip: true, ValidStrikes: 20}
	in.Flow = flow.Aggregates{
		ATMPutAskNotional: 400_000,
		ATMImbalance:      -0.9,
		Bursts:            []flow.Burst{{Type: market.Put, Side: flow.SideAsk}},
	}
	in.Price = market.PriceContext{Spot: 97, VWAP: 100, Timestamp: now}

	e := NewEngine(Config{MaxReasons: 3})
	v := e.Compute(in, now)
	if len(v.Reasons) != 3 {
		t.Fatalf("expected reasons capped at 3, got %d: %v", len(v.Reasons), v.Reasons)
	}
	// Flow imbalance (30*0.9=27) outranks the short-gamma regime (12)
	if !strings.Contains(v.Reasons[0], "aggressive sellers") {
		t.Errorf("strongest signal should rank first, got %q", v.Reasons[0])
	}
}

func TestPriceSignalClassification(t *testing.T) {
	cases := []struct {
		name string
		spot float64
		vwap float64
		want string
	}{
		{"above", 101, 100, "ABOVE_VWAP"},
		{"below", 99, 100, "BELOW_VWAP"},
		{"at vwap", 100.02, 100, "AT_VWAP"},
		{"missing vwap", 100, 0, "UNKNOWN"},
		{"missing spot", 0, 100, "UNKNOWN"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ps := priceSignal(market.PriceContext{Spot: tc.spot, VWAP: tc.vwap})
			if ps.Classification != tc.want {
				t.Errorf("spot=%v vwap=%v: got %s, want %s", tc.spot, tc.vwap, ps.Classification, tc.want)
			}
		})
	}
}

func TestConfidenceScaling(t *testing.T) {
	// Saturate every bearish signal: confidence approaches the one-sided
	// maximum but never exceeds 100.
	in := freshInputs()
	in.Regime = exposure.Regime{Type: exposure.ShortGamma, NetGammaUSD: f64(-5e8), ValidStrikes: 30}
	in.Flow = flow.Aggregates{
		ATMPutAskNotional: 2e6,
		ATMImbalance:      -1,
	}
	for i := 0; i < 10; i++ {
		in.Flow.Bursts = append(in.Flow.Bursts, flow.Burst{Type: market.Put, Side: flow.SideAsk})
	}
	in.Price = market.PriceContext{Spot: 95, VWAP: 100, Timestamp: now}

	v := NewEngine(Config{}).Compute(in, now)
	if v.Bias != Bearish {
		t.Fatalf("expected BEARISH, got %s", v.Bias)
	}
	// bear = 12 + 30 + 10 + 10 = 62 = maxNet
	if v.Confidence != 100 {
		t.Errorf("saturated signals should score confidence 100, got %v", v.Confidence)
	}
}
