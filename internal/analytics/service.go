// Package analytics owns the per-underlying pipeline: it polls chain
// snapshots into the exposure engine and scorer, fans the live trade
// stream into each underlying's flow aggregator, and composes bias
// verdicts on demand. Underlyings are independent; nothing mutable is
// shared across them.
package analytics

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"gexflow/internal/bias"
	"gexflow/internal/cache"
	"gexflow/internal/config"
	"gexflow/internal/exposure"
	"gexflow/internal/flow"
	"gexflow/internal/logger"
	"gexflow/internal/market"
	"gexflow/internal/monitor"
	"gexflow/internal/scorer"
	"gexflow/internal/store"
)

// ErrUnknownUnderlying is returned for underlyings not under management
var ErrUnknownUnderlying = errors.New("unknown underlying")

// Providers bundles the upstream data collaborators. Implementations
// live outside this core; absence of fresh data must never crash it.
type Providers struct {
	Chains market.ChainProvider
	Prices market.PriceContextProvider
	Stream market.TradeStream
}

// underlyingState is the latest snapshot set for one underlying
type underlyingState struct {
	mu         sync.RWMutex
	chain      *market.OptionChain
	profile    *exposure.Profile
	regime     exposure.Regime
	move       exposure.ExpectedMove
	scores     []scorer.UnusualScore
	exposureAt time.Time
	price      market.PriceContext
	flowAgg    *flow.Aggregator
}

// Service runs the analytics pipeline for a set of underlyings
type Service struct {
	cfg       *config.Config
	providers Providers
	store     *store.Store
	metrics   *monitor.Metrics

	scorer   *scorer.Scorer
	exposure *exposure.Engine
	bias     *bias.Engine

	cron  *cron.Cron
	state map[string]*underlyingState

	burstMu   sync.RWMutex
	burstSubs []func(flow.Burst)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates the analytics service. store may be nil (no history),
// cacher may be nil (no score caching).
func New(cfg *config.Config, providers Providers, st *store.Store, metrics *monitor.Metrics, cacher cache.Cacher) *Service {
	s := &Service{
		cfg:       cfg,
		providers: providers,
		store:     st,
		metrics:   metrics,
		scorer:    scorer.NewScorer(cacher, cfg.Market.ScoreCacheTTL),
		exposure:  exposure.NewEngine(cfg.Exposure),
		bias:      bias.NewEngine(cfg.Bias),
		cron:      cron.New(),
		state:     make(map[string]*underlyingState),
	}

	for _, u := range cfg.Market.Underlyings {
		underlying := u
		s.state[underlying] = &underlyingState{
			flowAgg: flow.New(underlying, cfg.Flow, s.onBurst(underlying)),
		}
	}
	return s
}

// Start begins chain polling, stream ingestion and sweep schedules.
// Returns once the schedules are installed; work happens in background
// goroutines until Stop.
func (s *Service) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	for u := range s.state {
		underlying := u

		// Initial poll so dashboards have data before the first tick
		s.pollUnderlying(ctx, underlying)

		if s.providers.Stream != nil {
			prints, err := s.providers.Stream.Subscribe(ctx, underlying)
			if err != nil {
				return fmt.Errorf("failed to subscribe trade stream for %s: %w", underlying, err)
			}
			s.wg.Add(1)
			go s.consume(ctx, underlying, prints)
		}

		if _, err := s.cron.AddFunc(every(s.cfg.Market.PollInterval), func() {
			s.pollUnderlying(ctx, underlying)
		}); err != nil {
			return fmt.Errorf("failed to schedule poll for %s: %w", underlying, err)
		}
		if _, err := s.cron.AddFunc(every(s.cfg.Market.SweepInterval), func() {
			s.state[underlying].flowAgg.Sweep()
		}); err != nil {
			return fmt.Errorf("failed to schedule sweep for %s: %w", underlying, err)
		}
	}

	s.cron.Start()
	logger.Infof("analytics service started for %d underlyings", len(s.state))
	return nil
}

// Stop halts schedules and waits for stream consumers to drain
func (s *Service) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	<-s.cron.Stop().Done()
	s.wg.Wait()
}

func every(d time.Duration) string {
	if d <= 0 {
		d = 30 * time.Second
	}
	return fmt.Sprintf("@every %s", d)
}

// consume feeds one underlying's trade stream into its aggregator
func (s *Service) consume(ctx context.Context, underlying string, prints <-chan market.TradePrint) {
	defer s.wg.Done()
	st := s.state[underlying]

	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-prints:
			if !ok {
				logger.WithField("underlying", underlying).Warn("trade stream closed")
				return
			}
			if err := market.ValidatePrint(&p); err != nil {
				if s.metrics != nil {
					s.metrics.PrintsDropped.WithLabelValues(underlying).Inc()
				}
				continue
			}
			st.flowAgg.Ingest(p)
			if s.metrics != nil {
				s.metrics.PrintsIngested.WithLabelValues(underlying).Inc()
			}
		}
	}
}

// pollUnderlying refreshes the chain snapshot and everything derived
// from it. Provider failures leave the previous snapshot in place; an
// old snapshot ages into the bias engine's staleness gate rather than
// being replaced by zeros.
func (s *Service) pollUnderlying(ctx context.Context, underlying string) {
	st := s.state[underlying]
	log := logger.WithField("underlying", underlying)

	if s.metrics != nil {
		s.metrics.ChainPolls.WithLabelValues(underlying).Inc()
	}

	pollCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	now := time.Now()

	if s.providers.Prices != nil {
		if pc, err := s.providers.Prices.GetPriceContext(pollCtx, underlying); err != nil {
			log.Warnf("price context poll failed: %v", err)
		} else if pc != nil {
			st.mu.Lock()
			st.price = *pc
			st.mu.Unlock()
			st.flowAgg.SetSpot(pc.Spot)
		}
	}

	if s.providers.Chains == nil {
		return
	}
	chain, err := s.providers.Chains.GetChain(pollCtx, underlying)
	if err != nil {
		if s.metrics != nil {
			s.metrics.ChainPollErrs.WithLabelValues(underlying).Inc()
		}
		log.Warnf("chain poll failed: %v", err)
		return
	}
	if chain == nil || len(chain.Contracts) == 0 {
		log.Debug("empty chain snapshot, keeping previous state")
		return
	}

	profile := s.exposure.ComputeProfile(chain)
	regime := s.exposure.ClassifyRegime(profile)
	move := s.exposure.ComputeExpectedMove(chain, now)
	scores := s.scorer.ScoreChain(pollCtx, chain, now)

	st.mu.Lock()
	st.chain = chain
	st.profile = profile
	st.regime = regime
	st.move = move
	st.scores = scores
	st.exposureAt = now
	st.mu.Unlock()

	if chain.Spot > 0 {
		st.flowAgg.SetSpot(chain.Spot)
	}

	if s.metrics != nil {
		s.metrics.ChainContracts.WithLabelValues(underlying).Set(float64(len(chain.Contracts)))
		if regime.NetGammaUSD != nil {
			s.metrics.NetGammaUSD.WithLabelValues(underlying).Set(*regime.NetGammaUSD)
		}
	}
}

// onBurst returns the burst sink for one underlying
func (s *Service) onBurst(underlying string) func(flow.Burst) {
	return func(b flow.Burst) {
		if s.metrics != nil {
			s.metrics.BurstsEmitted.WithLabelValues(underlying, string(b.Side)).Inc()
		}

		if s.store != nil {
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := s.store.InsertBursts(ctx, []flow.Burst{b}); err != nil {
					logger.Warnf("failed to persist burst: %v", err)
				}
			}()
		}

		s.burstMu.RLock()
		subs := s.burstSubs
		s.burstMu.RUnlock()
		for _, fn := range subs {
			fn(b)
		}
	}
}

// SubscribeBursts registers a callback for every emitted burst.
// Callbacks must not block.
func (s *Service) SubscribeBursts(fn func(flow.Burst)) {
	s.burstMu.Lock()
	s.burstSubs = append(s.burstSubs, fn)
	s.burstMu.Unlock()
}

// Underlyings lists the underlyings under management
func (s *Service) Underlyings() []string {
	out := make([]string, 0, len(s.state))
	for u := range s.state {
		out = append(out, u)
	}
	return out
}

// ScoreContracts returns the latest unusualness scores, sorted
// descending by total score.
func (s *Service) ScoreContracts(underlying string) ([]scorer.UnusualScore, error) {
	st, ok := s.state[underlying]
	if !ok {
		return nil, ErrUnknownUnderlying
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	out := make([]scorer.UnusualScore, len(st.scores))
	copy(out, st.scores)
	return out, nil
}

// ExposureProfile returns the latest gamma exposure profile
func (s *Service) ExposureProfile(underlying string) (*exposure.Profile, error) {
	st, ok := s.state[underlying]
	if !ok {
		return nil, ErrUnknownUnderlying
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	if st.profile == nil {
		return &exposure.Profile{Underlying: underlying}, nil
	}
	return st.profile, nil
}

// ExpectedMove returns the latest expected-move envelope
func (s *Service) ExpectedMove(underlying string) (exposure.ExpectedMove, error) {
	st, ok := s.state[underlying]
	if !ok {
		return exposure.ExpectedMove{}, ErrUnknownUnderlying
	}
	st.mu.RLock()
	defer st.mu.RUnlock()
	return st.move, nil
}

// FlowSnapshot returns a consistent copy of the rolling flow state
func (s *Service) FlowSnapshot(underlying string) (flow.Aggregates, error) {
	st, ok := s.state[underlying]
	if !ok {
		return flow.Aggregates{}, ErrUnknownUnderlying
	}
	return st.flowAgg.Snapshot(), nil
}

// Bias composes the latest snapshots into a bias verdict. Reads only;
// never blocks on a fresh computation.
func (s *Service) Bias(underlying string) (bias.Verdict, error) {
	st, ok := s.state[underlying]
	if !ok {
		return bias.Verdict{}, ErrUnknownUnderlying
	}

	st.mu.RLock()
	in := bias.Inputs{
		Underlying: underlying,
		Regime:     st.regime,
		RegimeAt:   st.exposureAt,
		Price:      st.price,
	}
	st.mu.RUnlock()
	in.Flow = st.flowAgg.Snapshot()

	v := s.bias.Compute(in, time.Now())

	if s.metrics != nil {
		s.metrics.BiasVerdicts.WithLabelValues(underlying, string(v.Bias)).Inc()
		s.metrics.BiasConfidence.WithLabelValues(underlying).Set(v.Confidence)
	}
	if s.store != nil {
		verdict := v
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.store.InsertVerdict(ctx, &verdict); err != nil {
				logger.Warnf("failed to persist verdict: %v", err)
			}
		}()
	}
	return v, nil
}
