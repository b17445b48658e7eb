package exposure

import "time"

// RegimeType classifies the dealer gamma regime
type RegimeType string

const (
	LongGamma  RegimeType = "LONG_GAMMA"
	ShortGamma RegimeType = "SHORT_GAMMA"
	Neutral    RegimeType = "NEUTRAL"
	Unknown    RegimeType = "UNKNOWN"
)

// Point represents one strike's aggregated dealer gamma exposure in USD
// notional. Sign convention is documented on Engine.ComputeProfile.
type Point struct {
	Strike     float64 `json:"strike"`
	CallGamma  float64 `json:"call_gamma"`
	PutGamma   float64 `json:"put_gamma"`
	NetGamma   float64 `json:"net_gamma"`
	TotalGamma float64 `json:"total_gamma"`
}

// Profile is an ordered-by-strike gamma exposure profile for one
// underlying at one point in time.
type Profile struct {
	Underlying string    `json:"underlying"`
	Spot       float64   `json:"spot"`
	Timestamp  time.Time `json:"timestamp"`
	Points     []Point   `json:"points"`
}

// Regime is the gamma regime classification. NetGammaUSD is nil when
// the chain had too little near-the-money open interest to classify;
// callers must treat Unknown as "no signal", not as zero.
type Regime struct {
	Type         RegimeType `json:"type"`
	NetGammaUSD  *float64   `json:"net_gamma_usd,omitempty"`
	GammaFlip    bool       `json:"gamma_flip"`
	ValidStrikes int        `json:"valid_strikes"`
}

// ExpectedMove holds the IV-implied one/two sigma deviations in price
// points plus the max-pain strike. A zero value means "no signal".
type ExpectedMove struct {
	OneSigma float64 `json:"one_sigma"`
	TwoSigma float64 `json:"two_sigma"`
	MaxPain  float64 `json:"max_pain"`
	IVUsed   float64 `json:"iv_used"`
}
