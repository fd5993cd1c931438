// Package mock serves random prices without touching the network. It backs
// local development when no Finnhub key is configured.
package mock

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pricerelay/internal/provider"
)

// Provider returns a price in [0, Max) with two decimals for any symbol.
type Provider struct {
	Max decimal.Decimal
	Now func() time.Time

	mu  sync.Mutex
	rnd *rand.Rand
}

func New(seed uint64) *Provider {
	return &Provider{
		Max: decimal.NewFromInt(1000),
		Now: time.Now,
		rnd: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

func (p *Provider) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	if err := ctx.Err(); err != nil {
		return provider.Quote{}, &provider.FetchError{Symbol: symbol, Kind: provider.KindTransport, Err: err}
	}
	p.mu.Lock()
	f := p.rnd.Float64()
	p.mu.Unlock()

	price := decimal.NewFromFloat(f).Mul(p.Max).Truncate(2)
	if price.IsZero() {
		return provider.Quote{}, &provider.FetchError{Symbol: symbol, Kind: provider.KindNoPriceData}
	}
	return provider.Quote{Symbol: symbol, Price: price, ObservedAt: p.Now().UTC()}, nil
}
