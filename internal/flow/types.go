package flow

import (
	"time"

	"gexflow/internal/market"
)

// Side classifies the aggressor side of a print
type Side string

const (
	SideBid Side = "BID" // aggressive sell at or through the bid
	SideAsk Side = "ASK" // aggressive buy at or through the ask
	SideMid Side = "MID" // between the quotes, aggressor unknown
)

// Config represents flow aggregator tunables
type Config struct {
	// Window is the full rolling window; older prints and bursts are
	// evicted from all aggregates.
	Window time.Duration `yaml:"window"`
	// BurstWindow is the sub-window over which per-strike/side
	// notional is accumulated for burst detection.
	BurstWindow time.Duration `yaml:"burst_window"`
	// ATMBandPct bounds the near-the-money bucket as a fraction of spot.
	ATMBandPct float64 `yaml:"atm_band_pct"`
	// Epsilon is the price tolerance for at-the-quote classification.
	Epsilon float64 `yaml:"epsilon"`
	// BurstMultiple scales the trailing average trade notional into a
	// burst threshold; BurstFloorUSD is the absolute floor for thin names.
	BurstMultiple float64 `yaml:"burst_multiple"`
	BurstFloorUSD float64 `yaml:"burst_floor_usd"`
}

// DefaultConfig returns the default flow tunables
func DefaultConfig() Config {
	return Config{
		Window:        15 * time.Minute,
		BurstWindow:   90 * time.Second,
		ATMBandPct:    0.03,
		Epsilon:       0.005,
		BurstMultiple: 5,
		BurstFloorUSD: 25_000,
	}
}

// Burst is a short-window concentration of notional at one strike/side,
// read as institutional activity.
type Burst struct {
	ID          string            `json:"id"`
	Underlying  string            `json:"underlying"`
	Strike      float64           `json:"strike"`
	Type        market.OptionType `json:"type"`
	Side        Side              `json:"side"`
	NotionalUSD float64           `json:"notional_usd"`
	Timestamp   time.Time         `json:"timestamp"`
}

// Aggregates is a read-only snapshot of the rolling flow state
type Aggregates struct {
	Underlying string `json:"underlying"`

	CallAskNotional float64 `json:"call_ask_notional"`
	CallBidNotional float64 `json:"call_bid_notional"`
	PutAskNotional  float64 `json:"put_ask_notional"`
	PutBidNotional  float64 `json:"put_bid_notional"`

	ATMCallAskNotional float64 `json:"atm_call_ask_notional"`
	ATMCallBidNotional float64 `json:"atm_call_bid_notional"`
	ATMPutAskNotional  float64 `json:"atm_put_ask_notional"`
	ATMPutBidNotional  float64 `json:"atm_put_bid_notional"`

	CallVolume int64 `json:"call_volume"`
	PutVolume  int64 `json:"put_volume"`

	// Imbalance and ATMImbalance are (ask-bid)/(ask+bid) notional,
	// clamped to [-1,1], 0 when both sides are empty.
	Imbalance    float64 `json:"imbalance"`
	ATMImbalance float64 `json:"atm_imbalance"`

	Bursts     []Burst   `json:"bursts"`
	Prints     int       `json:"prints"`
	LastUpdate time.Time `json:"last_update"`
}

// AskNotional returns total notional traded at the ask
func (a *Aggregates) AskNotional() float64 {
	return a.CallAskNotional + a.PutAskNotional
}

// BidNotional returns total notional traded at the bid
func (a *Aggregates) BidNotional() float64 {
	return a.CallBidNotional + a.PutBidNotional
}
