package exposure

import (
	"math"
	"testing"
	"time"

	"gexflow/internal/market"
)

var now = time.Date(2025, 6, 16, 14, 30, 0, 0, time.UTC)

func opt(typ market.OptionType, strike, gamma float64, oi int64) market.OptionContract {
	return market.OptionContract{
		Underlying:   "SPY",
		Ticker:       "test",
		Strike:       strike,
		Type:         typ,
		Expiration:   now.Add(30 * 24 * time.Hour),
		LastPrice:    1,
		Gamma:        gamma,
		OpenInterest: oi,
		Volume:       10,
	}
}

func TestProfileSignConvention(t *testing.T) {
	chain := &market.OptionChain{
		Underlying: "SPY",
		Spot:       100,
		Contracts: []market.OptionContract{
			opt(market.Call, 100, 0.05, 1000),
			opt(market.Put, 100, 0.04, 2000),
		},
	}

	p := NewEngine(Config{}).ComputeProfile(chain)
	if len(p.Points) != 1 {
		t.Fatalf("expected 1 strike, got %d", len(p.Points))
	}

	pt := p.Points[0]
	wantCall := 0.05 * 1000 * 100 * 100
	wantPut := -0.04 * 2000 * 100 * 100
	if pt.CallGamma != wantCall {
		t.Errorf("call gamma = %v, want %v", pt.CallGamma, wantCall)
	}
	if pt.PutGamma != wantPut {
		t.Errorf("put gamma = %v, want %v", pt.PutGamma, wantPut)
	}
	if pt.NetGamma != wantCall+wantPut {
		t.Errorf("net gamma = %v, want %v", pt.NetGamma, wantCall+wantPut)
	}
	if pt.TotalGamma != wantCall-wantPut {
		t.Errorf("total gamma = %v, want %v", pt.TotalGamma, wantCall-wantPut)
	}
}

func TestGammaSignSymmetry(t *testing.T) {
	e := NewEngine(Config{})

	calls := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Call, 100, 0.05, 1500),
	}}
	puts := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Put, 100, 0.05, 1500),
	}}

	netCalls := e.ComputeProfile(calls).Points[0].NetGamma
	netPuts := e.ComputeProfile(puts).Points[0].NetGamma
	if netCalls != -netPuts {
		t.Errorf("swapping calls for puts should negate net gamma: %v vs %v", netCalls, netPuts)
	}
}

func TestProfileOrderedByStrike(t *testing.T) {
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Call, 110, 0.02, 100),
		opt(market.Call, 90, 0.02, 100),
		opt(market.Call, 100, 0.02, 100),
	}}

	p := NewEngine(Config{}).ComputeProfile(chain)
	for i := 1; i < len(p.Points); i++ {
		if p.Points[i].Strike <= p.Points[i-1].Strike {
			t.Fatalf("points not ordered by strike: %v", p.Points)
		}
	}
}

func TestRegimeLongGammaNoFlip(t *testing.T) {
	// Call-dominated at every in-band strike: big positive net gamma,
	// same sign on both sides of spot.
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Call, 95, 0.05, 150_000),
		opt(market.Call, 98, 0.05, 150_000),
		opt(market.Call, 102, 0.05, 150_000),
		opt(market.Call, 105, 0.05, 150_000),
		opt(market.Put, 95, 0.01, 1000),
		opt(market.Put, 105, 0.01, 1000),
	}}

	e := NewEngine(Config{})
	r := e.ClassifyRegime(e.ComputeProfile(chain))
	if r.Type != LongGamma {
		t.Errorf("expected LongGamma, got %s", r.Type)
	}
	if r.GammaFlip {
		t.Errorf("no opposite-sign pair straddles spot, flip should be false")
	}
	if r.NetGammaUSD == nil || *r.NetGammaUSD <= 0 {
		t.Errorf("expected positive net gamma, got %v", r.NetGammaUSD)
	}
}

func TestRegimeShortGamma(t *testing.T) {
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Put, 95, 0.05, 150_000),
		opt(market.Put, 98, 0.05, 150_000),
		opt(market.Put, 102, 0.05, 150_000),
		opt(market.Put, 105, 0.05, 150_000),
	}}

	e := NewEngine(Config{})
	r := e.ClassifyRegime(e.ComputeProfile(chain))
	if r.Type != ShortGamma {
		t.Errorf("expected ShortGamma, got %s", r.Type)
	}
}

func TestRegimeGammaFlip(t *testing.T) {
	// Puts below spot, calls above: net gamma changes sign across spot
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Put, 95, 0.05, 100_000),
		opt(market.Put, 98, 0.05, 100_000),
		opt(market.Call, 102, 0.05, 100_000),
		opt(market.Call, 105, 0.05, 100_000),
	}}

	e := NewEngine(Config{})
	r := e.ClassifyRegime(e.ComputeProfile(chain))
	if !r.GammaFlip {
		t.Errorf("expected gamma flip across spot")
	}
}

func TestRegimeUnknownOnSparseChain(t *testing.T) {
	e := NewEngine(Config{})

	t.Run("empty chain", func(t *testing.T) {
		r := e.ClassifyRegime(e.ComputeProfile(&market.OptionChain{Spot: 100}))
		if r.Type != Unknown {
			t.Errorf("expected Unknown, got %s", r.Type)
		}
		if r.NetGammaUSD != nil {
			t.Errorf("net gamma should be nil on empty chain")
		}
	})

	t.Run("too few valid strikes", func(t *testing.T) {
		chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
			opt(market.Call, 100, 0.05, 1000),
			opt(market.Call, 101, 0.05, 1000),
		}}
		r := e.ClassifyRegime(e.ComputeProfile(chain))
		if r.Type != Unknown {
			t.Errorf("expected Unknown with 2 valid strikes, got %s", r.Type)
		}
	})

	t.Run("far strikes excluded from band", func(t *testing.T) {
		chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
			opt(market.Call, 150, 0.05, 500_000),
			opt(market.Call, 160, 0.05, 500_000),
			opt(market.Call, 170, 0.05, 500_000),
			opt(market.Call, 180, 0.05, 500_000),
		}}
		r := e.ClassifyRegime(e.ComputeProfile(chain))
		if r.Type != Unknown {
			t.Errorf("all strikes outside band, expected Unknown, got %s", r.Type)
		}
	})
}

func TestExpectedMove(t *testing.T) {
	c := opt(market.Call, 100, 0.02, 500)
	c.IV = 0.20
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{c}}

	e := NewEngine(Config{})
	move := e.ComputeExpectedMove(chain, now)

	tte := 30.0 / 365
	want := 100 * 0.20 * math.Sqrt(tte)
	if math.Abs(move.OneSigma-want) > 1e-9 {
		t.Errorf("one sigma = %v, want %v", move.OneSigma, want)
	}
	if move.TwoSigma != 2*move.OneSigma {
		t.Errorf("two sigma should be exactly double")
	}
	if move.IVUsed != 20 {
		t.Errorf("expected IV 20%%, got %v", move.IVUsed)
	}
}

func TestExpectedMoveDefaultIVFallback(t *testing.T) {
	c := opt(market.Call, 100, 0.02, 500) // no IV set
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{c}}

	move := NewEngine(Config{}).ComputeExpectedMove(chain, now)
	if move.IVUsed != 18.5 {
		t.Errorf("expected default IV fallback 18.5, got %v", move.IVUsed)
	}
	if move.OneSigma <= 0 {
		t.Errorf("expected positive move with fallback IV")
	}
}

func TestExpectedMoveEmptyChain(t *testing.T) {
	e := NewEngine(Config{})
	if move := e.ComputeExpectedMove(nil, now); move != (ExpectedMove{}) {
		t.Errorf("nil chain should yield zero move, got %+v", move)
	}
	if move := e.ComputeExpectedMove(&market.OptionChain{Spot: 100}, now); move != (ExpectedMove{}) {
		t.Errorf("empty chain should yield zero move, got %+v", move)
	}
}

func TestMaxPain(t *testing.T) {
	chain := &market.OptionChain{Spot: 100, Contracts: []market.OptionContract{
		opt(market.Call, 100, 0.02, 50),
		opt(market.Put, 100, 0.02, 50),
		opt(market.Call, 110, 0.02, 100),
		opt(market.Put, 90, 0.02, 100),
	}}

	got := NewEngine(Config{}).ComputeMaxPain(chain)
	// Settling at 100 leaves every contract worthless
	if got != 100 {
		t.Errorf("max pain = %v, want 100", got)
	}
}

func TestMaxPainEmptyChain(t *testing.T) {
	if got := NewEngine(Config{}).ComputeMaxPain(nil); got != 0 {
		t.Errorf("expected 0 for nil chain, got %v", got)
	}
}
