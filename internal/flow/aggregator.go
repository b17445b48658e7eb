package flow

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"gexflow/internal/logger"
	"gexflow/internal/market"
)

// Aggregator holds the rolling trade window for one underlying. One
// instance per underlying, constructed and torn down by the serving
// layer; instances share nothing. A single mutex guards the window so a
// Snapshot never observes a partially applied ingest.
type Aggregator struct {
	underlying string
	cfg        Config
	sink       func(Burst)

	mu      sync.RWMutex
	spot    float64
	prints  []record
	totals  totals
	strikes map[strikeKey]*strikeStats
	bursts  []Burst
}

// record is the per-print state needed to reverse its contribution on
// eviction.
type record struct {
	ts       time.Time
	side     Side
	typ      market.OptionType
	strike   float64
	atm      bool
	notional float64
	size     int64
}

type totals struct {
	callAsk, callBid, putAsk, putBid             float64
	atmCallAsk, atmCallBid, atmPutAsk, atmPutBid float64
	callVolume, putVolume                        int64
}

type strikeKey struct {
	strike float64
	side   Side
}

// strikeStats carries the trailing per-strike/side statistics that feed
// the dynamic burst threshold, plus the live sub-window accumulator.
type strikeStats struct {
	count       int64
	sumNotional float64
	accum       float64
	accumStart  time.Time
}

// New creates a flow aggregator for one underlying. sink, when non-nil,
// receives each emitted burst (already outside the lock).
func New(underlying string, cfg Config, sink func(Burst)) *Aggregator {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.BurstWindow <= 0 {
		cfg.BurstWindow = def.BurstWindow
	}
	if cfg.ATMBandPct <= 0 {
		cfg.ATMBandPct = def.ATMBandPct
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = def.Epsilon
	}
	if cfg.BurstMultiple <= 0 {
		cfg.BurstMultiple = def.BurstMultiple
	}
	if cfg.BurstFloorUSD <= 0 {
		cfg.BurstFloorUSD = def.BurstFloorUSD
	}
	return &Aggregator{
		underlying: underlying,
		cfg:        cfg,
		sink:       sink,
		strikes:    make(map[strikeKey]*strikeStats),
	}
}

// SetSpot updates the spot reference used for the near-the-money bucket
func (a *Aggregator) SetSpot(spot float64) {
	if spot <= 0 {
		return
	}
	a.mu.Lock()
	a.spot = spot
	a.mu.Unlock()
}

// ClassifySide compares the print price against the quote at print
// time. At or through the ask (within epsilon) is an aggressive buy, at
// or through the bid an aggressive sell. Prints between the quotes, or
// prints with no quote context at all, classify as SideMid and are
// excluded from directional notional. A tick-rule approximation against
// the prior print could recover some of those; until then SideMid is
// the documented fallback, never a coin flip.
func (a *Aggregator) ClassifySide(p *market.TradePrint) Side {
	if p.Bid <= 0 && p.Ask <= 0 {
		return SideMid
	}
	if p.Ask > 0 && p.Price >= p.Ask-a.cfg.Epsilon {
		return SideAsk
	}
	if p.Bid > 0 && p.Price <= p.Bid+a.cfg.Epsilon {
		return SideBid
	}
	return SideMid
}

// Ingest classifies one print and folds it into the rolling aggregates.
// Malformed prints are dropped with a logged warning and never poison
// the window. O(1) amortized: eviction work is proportional to the
// number of prints leaving the window.
func (a *Aggregator) Ingest(p market.TradePrint) {
	if err := market.ValidatePrint(&p); err != nil {
		logger.WithField("underlying", a.underlying).Warnf("dropping trade print: %v", err)
		return
	}

	side := a.ClassifySide(&p)
	notional := p.Notional()

	a.mu.Lock()
	a.evictLocked(p.Timestamp)

	atm := a.spot > 0 && p.Strike >= a.spot*(1-a.cfg.ATMBandPct) && p.Strike <= a.spot*(1+a.cfg.ATMBandPct)
	rec := record{
		ts:       p.Timestamp,
		side:     side,
		typ:      p.Type,
		strike:   p.Strike,
		atm:      atm,
		notional: notional,
		size:     p.Size,
	}
	a.prints = append(a.prints, rec)
	a.apply(rec, 1)

	var emitted *Burst
	if side != SideMid {
		emitted = a.detectBurstLocked(&p, side, notional)
	}
	a.mu.Unlock()

	if emitted != nil && a.sink != nil {
		a.sink(*emitted)
	}
}

// apply adds (sign=+1) or removes (sign=-1) a record's contribution
func (a *Aggregator) apply(rec record, sign float64) {
	n := rec.notional * sign
	if rec.typ == market.Call {
		a.totals.callVolume += int64(sign) * rec.size
		switch rec.side {
		case SideAsk:
			a.totals.callAsk += n
			if rec.atm {
				a.totals.atmCallAsk += n
			}
		case SideBid:
			a.totals.callBid += n
			if rec.atm {
				a.totals.atmCallBid += n
			}
		}
	} else {
		a.totals.putVolume += int64(sign) * rec.size
		switch rec.side {
		case SideAsk:
			a.totals.putAsk += n
			if rec.atm {
				a.totals.atmPutAsk += n
			}
		case SideBid:
			a.totals.putBid += n
			if rec.atm {
				a.totals.atmPutBid += n
			}
		}
	}

	if rec.side != SideMid {
		key := strikeKey{strike: rec.strike, side: rec.side}
		st := a.strikes[key]
		if st == nil {
			if sign < 0 {
				return
			}
			st = &strikeStats{}
			a.strikes[key] = st
		}
		st.count += int64(sign)
		st.sumNotional += n
		if st.count <= 0 && st.accum <= 0 {
			delete(a.strikes, key)
		}
	}
}

// detectBurstLocked accumulates sub-window notional for the strike/side
// and emits a burst once it clears the dynamic threshold. The
// accumulator resets after each emission so a sustained burst does not
// re-alert on every print.
func (a *Aggregator) detectBurstLocked(p *market.TradePrint, side Side, notional float64) *Burst {
	key := strikeKey{strike: p.Strike, side: side}
	st := a.strikes[key]
	if st == nil {
		st = &strikeStats{}
		a.strikes[key] = st
	}

	// Trailing average before this print; first prints at a strike
	// fall back to the absolute floor.
	var avg float64
	if st.count > 1 {
		avg = (st.sumNotional - notional) / float64(st.count-1)
	}
	threshold := avg * a.cfg.BurstMultiple
	if threshold < a.cfg.BurstFloorUSD {
		threshold = a.cfg.BurstFloorUSD
	}

	if st.accumStart.IsZero() || p.Timestamp.Sub(st.accumStart) > a.cfg.BurstWindow {
		st.accum = 0
		st.accumStart = p.Timestamp
	}
	st.accum += notional

	if st.accum < threshold {
		return nil
	}

	b := Burst{
		ID:          uuid.NewString(),
		Underlying:  a.underlying,
		Strike:      p.Strike,
		Type:        p.Type,
		Side:        side,
		NotionalUSD: st.accum,
		Timestamp:   p.Timestamp,
	}
	st.accum = 0
	st.accumStart = p.Timestamp
	a.bursts = append(a.bursts, b)

	logger.WithFields(map[string]interface{}{
		"underlying": a.underlying,
		"strike":     b.Strike,
		"side":       b.Side,
		"notional":   b.NotionalUSD,
	}).Debug("flow burst detected")
	return &b
}

// evictLocked drops prints and bursts that have aged out of the window
func (a *Aggregator) evictLocked(now time.Time) {
	cutoff := now.Add(-a.cfg.Window)

	i := 0
	for ; i < len(a.prints); i++ {
		if a.prints[i].ts.After(cutoff) {
			break
		}
		a.apply(a.prints[i], -1)
	}
	if i > 0 {
		a.prints = append(a.prints[:0:0], a.prints[i:]...)
	}

	j := 0
	for ; j < len(a.bursts); j++ {
		if a.bursts[j].Timestamp.After(cutoff) {
			break
		}
	}
	if j > 0 {
		a.bursts = append(a.bursts[:0:0], a.bursts[j:]...)
	}
}

// Sweep evicts aged-out state outside the ingest path, so a quiet feed
// cannot pin stale prints in the window. Called on a schedule by the
// serving layer.
func (a *Aggregator) Sweep() {
	a.mu.Lock()
	a.evictLocked(time.Now())
	a.mu.Unlock()
}

// Snapshot returns a consistent read-only copy of the rolling
// aggregates. Imbalances are clamped to [-1,1] and 0 (not NaN) when
// both sides are empty.
func (a *Aggregator) Snapshot() Aggregates {
	a.mu.RLock()
	defer a.mu.RUnlock()

	agg := Aggregates{
		Underlying:         a.underlying,
		CallAskNotional:    a.totals.callAsk,
		CallBidNotional:    a.totals.callBid,
		PutAskNotional:     a.totals.putAsk,
		PutBidNotional:     a.totals.putBid,
		ATMCallAskNotional: a.totals.atmCallAsk,
		ATMCallBidNotional: a.totals.atmCallBid,
		ATMPutAskNotional:  a.totals.atmPutAsk,
		ATMPutBidNotional:  a.totals.atmPutBid,
		CallVolume:         a.totals.callVolume,
		PutVolume:          a.totals.putVolume,
		Prints:             len(a.prints),
	}
	if n := len(a.prints); n > 0 {
		agg.LastUpdate = a.prints[n-1].ts
	}

	agg.Imbalance = normalizedImbalance(
		a.totals.callAsk+a.totals.putAsk,
		a.totals.callBid+a.totals.putBid,
	)
	agg.ATMImbalance = normalizedImbalance(
		a.totals.atmCallAsk+a.totals.atmPutAsk,
		a.totals.atmCallBid+a.totals.atmPutBid,
	)

	agg.Bursts = make([]Burst, len(a.bursts))
	copy(agg.Bursts, a.bursts)
	return agg
}

// normalizedImbalance is (ask-bid)/(ask+bid) clamped to [-1,1], 0 when
// both sides are zero.
func normalizedImbalance(ask, bid float64) float64 {
	denom := ask + bid
	if denom <= 0 {
		return 0
	}
	imb := (ask - bid) / denom
	if imb > 1 {
		return 1
	}
	if imb < -1 {
		return -1
	}
	return imb
}
