package provider

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Quote is the normalized shape returned by every fetcher.
// Price stays a decimal to avoid float rounding between upstream and wire.
// The wire shape lives in package broadcast.
type Quote struct {
	Symbol     string
	Price      decimal.Decimal
	ObservedAt time.Time
}

// Batch is the set of quotes produced by one tick, in configured symbol order.
// Symbols whose fetch failed are absent.
type Batch []Quote

// Fetcher performs exactly one upstream lookup per call.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (Quote, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, symbol string) (Quote, error)

func (f FetcherFunc) Fetch(ctx context.Context, symbol string) (Quote, error) {
	return f(ctx, symbol)
}
