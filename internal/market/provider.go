package market

import "context"

// ChainProvider returns the current option chain snapshot for an
// underlying. Implementations live in the data-provider layer; the
// analytics core only consumes the snapshot.
type ChainProvider interface {
	GetChain(ctx context.Context, underlying string) (*OptionChain, error)
}

// PriceContextProvider returns current spot and session VWAP
type PriceContextProvider interface {
	GetPriceContext(ctx context.Context, underlying string) (*PriceContext, error)
}

// TradeStream delivers individual trade prints in near-real-time.
// The returned channel is closed when the context is cancelled or the
// upstream feed terminates.
type TradeStream interface {
	Subscribe(ctx context.Context, underlying string) (<-chan TradePrint, error)
}
