package aggregate

import (
	"pricerelay/internal/provider"
)

// Outcome is the tagged result of one symbol's fetch within a tick: either
// Quote is set and Err is nil, or Err classifies a soft failure.
type Outcome struct {
	Symbol string
	Quote  provider.Quote
	Err    error
}

// OK reports whether the fetch succeeded.
func (o Outcome) OK() bool { return o.Err == nil }

// Summary counts a tick's outcomes by kind.
type Summary struct {
	Fetched     int
	NoPriceData int
	RateLimited int
	Transport   int
}

// Failed is the number of symbols absent from the batch.
func (s Summary) Failed() int { return s.NoPriceData + s.RateLimited + s.Transport }

// Collect builds a Batch from per-symbol outcomes.
// Rules:
// - failures are dropped, never null-padded
// - order follows outcomes (the configured symbol order)
// - a symbol appears at most once; the first success wins
// - a quote is only accepted for the symbol it was requested for
func Collect(outcomes []Outcome) (provider.Batch, Summary) {
	var sum Summary
	batch := make(provider.Batch, 0, len(outcomes))
	seen := make(map[string]struct{}, len(outcomes))

	for _, o := range outcomes {
		if !o.OK() {
			switch provider.KindOf(o.Err) {
			case provider.KindNoPriceData:
				sum.NoPriceData++
			case provider.KindRateLimited:
				sum.RateLimited++
			default:
				sum.Transport++
			}
			continue
		}
		if o.Quote.Symbol != o.Symbol {
			// a fetcher answering for another symbol is a broken response
			sum.Transport++
			continue
		}
		if _, dup := seen[o.Symbol]; dup {
			continue
		}
		seen[o.Symbol] = struct{}{}
		batch = append(batch, o.Quote)
		sum.Fetched++
	}
	return batch, sum
}

// Dedupe returns symbols with blanks and repeats removed, preserving order.
func Dedupe(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
