package market

import (
	"fmt"
	"math"
	"time"
)

// OptionType identifies the side of an option contract
type OptionType string

const (
	Call OptionType = "call"
	Put  OptionType = "put"
)

// OptionContract represents one option series at one strike/expiry/type.
// Snapshots are immutable; a fresh chain poll supersedes the previous one.
type OptionContract struct {
	Underlying   string     `json:"underlying"`
	Ticker       string     `json:"ticker"`
	Strike       float64    `json:"strike"`
	Type         OptionType `json:"type"`
	Expiration   time.Time  `json:"expiration"`
	LastPrice    float64    `json:"last_price"`
	Bid          float64    `json:"bid"`
	Ask          float64    `json:"ask"`
	Volume       int64      `json:"volume"`
	OpenInterest int64      `json:"open_interest"`
	IV           float64    `json:"iv"`
	Delta        float64    `json:"delta"`
	Gamma        float64    `json:"gamma"`
	Theta        float64    `json:"theta"`
	Vega         float64    `json:"vega"`
}

// OptionChain represents a full chain snapshot for one underlying
type OptionChain struct {
	Underlying string           `json:"underlying"`
	Spot       float64          `json:"spot"`
	Timestamp  time.Time        `json:"timestamp"`
	Contracts  []OptionContract `json:"contracts"`
}

// TradePrint represents a single option trade from the live feed.
// Bid/Ask carry the quote at print time; both zero means the feed
// delivered no quote context and the aggressor side cannot be inferred.
type TradePrint struct {
	ID         string     `json:"id"`
	Ticker     string     `json:"ticker"`
	Underlying string     `json:"underlying"`
	Strike     float64    `json:"strike"`
	Type       OptionType `json:"type"`
	Price      float64    `json:"price"`
	Size       int64      `json:"size"`
	Bid        float64    `json:"bid"`
	Ask        float64    `json:"ask"`
	Timestamp  time.Time  `json:"timestamp"`
}

// PriceContext represents the spot/VWAP reference for one underlying
type PriceContext struct {
	Underlying string    `json:"underlying"`
	Spot       float64   `json:"spot"`
	VWAP       float64   `json:"vwap"`
	Timestamp  time.Time `json:"timestamp"`
}

// DaysToExpiry returns the number of calendar days until expiration.
// Expired contracts return 0.
func (c *OptionContract) DaysToExpiry(now time.Time) float64 {
	d := c.Expiration.Sub(now).Hours() / 24
	if d < 0 {
		return 0
	}
	return d
}

// Mid returns the bid/ask midpoint, falling back to last price when
// the quote is one-sided.
func (c *OptionContract) Mid() float64 {
	if c.Bid > 0 && c.Ask > 0 {
		return (c.Bid + c.Ask) / 2
	}
	return c.LastPrice
}

// SpreadPct returns the bid/ask spread as a fraction of last price.
// Last price is floored at one cent to avoid division blow-ups on
// near-worthless contracts.
func (c *OptionContract) SpreadPct() float64 {
	ref := c.LastPrice
	if ref < 0.01 {
		ref = 0.01
	}
	return (c.Ask - c.Bid) / ref
}

// Notional returns the dollar value of a print (options multiplier 100)
func (p *TradePrint) Notional() float64 {
	return p.Price * float64(p.Size) * 100
}

// ValidateContract rejects contracts that would poison downstream
// aggregates: NaN/Inf prices, non-positive strikes, negative counts.
func ValidateContract(c *OptionContract) error {
	if c.Type != Call && c.Type != Put {
		return fmt.Errorf("invalid option type: %q", c.Type)
	}
	if c.Strike <= 0 || !isFinite(c.Strike) {
		return fmt.Errorf("invalid strike: %v", c.Strike)
	}
	if c.Volume < 0 || c.OpenInterest < 0 {
		return fmt.Errorf("negative volume or open interest: %d/%d", c.Volume, c.OpenInterest)
	}
	for _, v := range []float64{c.LastPrice, c.Bid, c.Ask, c.IV, c.Delta, c.Gamma, c.Theta, c.Vega} {
		if !isFinite(v) {
			return fmt.Errorf("non-finite field on %s", c.Ticker)
		}
	}
	return nil
}

// ValidatePrint rejects malformed trade prints at the ingest boundary
func ValidatePrint(p *TradePrint) error {
	if p.Size <= 0 {
		return fmt.Errorf("non-positive size: %d", p.Size)
	}
	if p.Price <= 0 || !isFinite(p.Price) {
		return fmt.Errorf("invalid price: %v", p.Price)
	}
	if p.Strike <= 0 || !isFinite(p.Strike) {
		return fmt.Errorf("invalid strike: %v", p.Strike)
	}
	if p.Type != Call && p.Type != Put {
		return fmt.Errorf("invalid option type: %q", p.Type)
	}
	if !isFinite(p.Bid) || !isFinite(p.Ask) {
		return fmt.Errorf("non-finite quote on %s", p.Ticker)
	}
	if p.Timestamp.IsZero() {
		return fmt.Errorf("missing timestamp on %s", p.Ticker)
	}
	return nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
