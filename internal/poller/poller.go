package poller

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"pricerelay/internal/aggregate"
	"pricerelay/internal/logging"
	"pricerelay/internal/provider"
)

// ErrBudgetExhausted means the tick was skipped: no fetches were issued and
// no calls were recorded.
var ErrBudgetExhausted = errors.New("poller: rate budget exhausted")

//go:generate mockgen -package=poller_test -destination=mock_fetcher_test.go pricerelay/internal/provider Fetcher

// Budget admits a whole batch of upstream calls or none of them.
// *ratelimit.Window satisfies it.
type Budget interface {
	Reserve(n int) bool
}

// Poller fetches the configured symbol set once per call to PollOnce.
// It is safe for concurrent use by any number of sessions.
type Poller struct {
	symbols []string
	fetcher provider.Fetcher
	budget  Budget
	logger  *zap.Logger
}

// New creates a Poller. Blank and repeated symbols are dropped, keeping the
// first occurrence, so a batch can never hold the same symbol twice.
func New(symbols []string, fetcher provider.Fetcher, budget Budget, logger *zap.Logger) *Poller {
	return &Poller{
		symbols: aggregate.Dedupe(symbols),
		fetcher: fetcher,
		budget:  budget,
		logger:  logging.OrNop(logger),
	}
}

// Symbols returns the effective symbol set.
func (p *Poller) Symbols() []string {
	out := make([]string, len(p.symbols))
	copy(out, p.symbols)
	return out
}

// PollOnce runs one tick: reserve budget for every symbol, fetch all of them
// concurrently, wait for all, and return the successes in symbol order.
//
// A tick is all-or-nothing with respect to budget. Per-symbol failures are
// absorbed here and only show up as absent quotes.
func (p *Poller) PollOnce(ctx context.Context) (provider.Batch, error) {
	n := len(p.symbols)
	if n == 0 {
		return provider.Batch{}, nil
	}
	if !p.budget.Reserve(n) {
		p.logger.Warn("approaching rate limit, skipping this update cycle", zap.Int("calls_needed", n))
		return provider.Batch{}, ErrBudgetExhausted
	}

	start := time.Now()
	outcomes := make([]aggregate.Outcome, n)

	// Goroutines never return an error: a failed symbol must not cancel
	// its siblings.
	var g errgroup.Group
	for i, sym := range p.symbols {
		g.Go(func() error {
			q, err := p.fetcher.Fetch(ctx, sym)
			outcomes[i] = aggregate.Outcome{Symbol: sym, Quote: q, Err: err}
			if err != nil {
				p.logFailure(sym, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	batch, sum := aggregate.Collect(outcomes)
	if len(batch) == 0 {
		p.logger.Warn("no valid quote data retrieved",
			zap.Int("symbols", n),
			zap.Int("no_price_data", sum.NoPriceData),
			zap.Int("rate_limited", sum.RateLimited),
			zap.Int("transport", sum.Transport),
		)
		return batch, nil
	}

	p.logger.Debug("poll cycle complete",
		zap.Int("symbols", n),
		zap.Int("fetched", sum.Fetched),
		zap.Int("failed", sum.Failed()),
		zap.Duration("duration", time.Since(start)),
	)
	return batch, nil
}

func (p *Poller) logFailure(symbol string, err error) {
	switch provider.KindOf(err) {
	case provider.KindRateLimited:
		p.logger.Warn("provider rate limit exceeded", zap.String("symbol", symbol))
	case provider.KindNoPriceData:
		p.logger.Info("no price returned", zap.String("symbol", symbol))
	default:
		p.logger.Error("quote fetch failed", zap.String("symbol", symbol), zap.Error(err))
	}
}
