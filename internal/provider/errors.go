package provider

import (
	"errors"
	"fmt"
)

// Kind classifies a per-symbol fetch failure. All kinds are soft: they drop
// the symbol from the current batch and nothing else.
type Kind int

const (
	KindTransport Kind = iota
	KindNoPriceData
	KindRateLimited
)

func (k Kind) String() string {
	switch k {
	case KindNoPriceData:
		return "no_price_data"
	case KindRateLimited:
		return "rate_limited"
	default:
		return "transport"
	}
}

var (
	ErrTransport   = errors.New("transport error")
	ErrNoPriceData = errors.New("no price data")
	ErrRateLimited = errors.New("provider rate limited")
)

// FetchError is returned by fetchers for any failed lookup.
type FetchError struct {
	Symbol string
	Kind   Kind
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch %s: %s", e.Symbol, e.sentinel())
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Symbol, e.sentinel(), e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// Is matches the sentinel for the error's kind, so callers can write
// errors.Is(err, provider.ErrRateLimited).
func (e *FetchError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *FetchError) sentinel() error {
	switch e.Kind {
	case KindNoPriceData:
		return ErrNoPriceData
	case KindRateLimited:
		return ErrRateLimited
	default:
		return ErrTransport
	}
}

// KindOf reports the failure kind of err. Errors that are not a *FetchError
// count as transport failures.
func KindOf(err error) Kind {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindTransport
}
