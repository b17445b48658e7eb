// Package stream adapts a JSON trade-print websocket feed to the
// market.TradeStream interface. The wire format is provider-neutral:
// one JSON object per message matching wirePrint below.
package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gorilla/websocket"

	"gexflow/internal/logger"
	"gexflow/internal/market"
)

const (
	initialBackoff = time.Second
	maxBackoff     = 30 * time.Second
	readTimeout    = 90 * time.Second
)

// Client is a reconnecting websocket trade-feed client
type Client struct {
	baseURL string
}

// NewClient creates a trade-feed client. baseURL is the websocket
// endpoint; the underlying is appended as a query parameter.
func NewClient(baseURL string) *Client {
	return &Client{baseURL: baseURL}
}

// wirePrint is the on-the-wire trade print
type wirePrint struct {
	ID         string  `json:"id"`
	Ticker     string  `json:"ticker"`
	Underlying string  `json:"underlying"`
	Strike     float64 `json:"strike"`
	Type       string  `json:"type"`
	Price      float64 `json:"price"`
	Size       int64   `json:"size"`
	Bid        float64 `json:"bid"`
	Ask        float64 `json:"ask"`
	Timestamp  int64   `json:"timestamp"` // unix milliseconds
}

// Subscribe opens the feed for one underlying and returns a channel of
// validated trade prints. The reader reconnects with capped backoff
// until ctx is cancelled; the channel closes when ctx is done.
func (c *Client) Subscribe(ctx context.Context, underlying string) (<-chan market.TradePrint, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("stream url not configured")
	}

	url := fmt.Sprintf("%s?underlying=%s", c.baseURL, underlying)
	out := make(chan market.TradePrint, 256)

	go c.run(ctx, url, underlying, out)
	return out, nil
}

func (c *Client) run(ctx context.Context, url, underlying string, out chan<- market.TradePrint) {
	defer close(out)

	backoff := initialBackoff
	log := logger.WithField("underlying", underlying)

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
		if err != nil {
			log.Warnf("trade feed dial failed, retrying in %s: %v", backoff, err)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}

		log.Info("trade feed connected")
		backoff = initialBackoff

		if err := c.readLoop(ctx, conn, underlying, out); err != nil && ctx.Err() == nil {
			log.Warnf("trade feed disconnected: %v", err)
		}
		conn.Close()
	}
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, underlying string, out chan<- market.TradePrint) error {
	// Unblock ReadMessage when the context is cancelled
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var wp wirePrint
		if err := json.Unmarshal(data, &wp); err != nil {
			logger.Debugf("skipping unparseable trade message: %v", err)
			continue
		}

		p := market.TradePrint{
			ID:         wp.ID,
			Ticker:     wp.Ticker,
			Underlying: wp.Underlying,
			Strike:     wp.Strike,
			Type:       market.OptionType(wp.Type),
			Price:      wp.Price,
			Size:       wp.Size,
			Bid:        wp.Bid,
			Ask:        wp.Ask,
			Timestamp:  time.UnixMilli(wp.Timestamp),
		}
		if p.Underlying == "" {
			p.Underlying = underlying
		}
		if err := market.ValidatePrint(&p); err != nil {
			logger.WithField("underlying", underlying).Warnf("dropping malformed print: %v", err)
			continue
		}

		select {
		case out <- p:
		case <-ctx.Done():
			return ctx.Err()
		default:
			// Feed is outrunning the consumer; drop rather than block
			// the read loop.
			logger.Debugf("trade channel full, dropping print %s", p.Ticker)
		}
	}
}
