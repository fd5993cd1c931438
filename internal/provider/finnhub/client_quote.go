package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"net/http"

	"github.com/shopspring/decimal"

	"pricerelay/internal/provider"
)

// quoteResponse is the body of GET /quote.
//
//	{"c": 261.74, "d": 1.5, "dp": 0.57, "h": 263.31, "l": 260.68, "o": 261.07, "pc": 260.24, "t": 1582641000}
//
// Unknown symbols come back as 200 with every field zeroed.
type quoteResponse struct {
	Current       decimal.NullDecimal `json:"c"`
	High          decimal.NullDecimal `json:"h"`
	Low           decimal.NullDecimal `json:"l"`
	Open          decimal.NullDecimal `json:"o"`
	PreviousClose decimal.NullDecimal `json:"pc"`
	Timestamp     int64               `json:"t"`
}

// Fetch performs one GET /quote for symbol and normalizes the result.
// It never retries; every failure is a *provider.FetchError.
func (c *Client) Fetch(ctx context.Context, symbol string) (provider.Quote, error) {
	fail := func(kind provider.Kind, err error) (provider.Quote, error) {
		return provider.Quote{}, &provider.FetchError{Symbol: symbol, Kind: kind, Err: err}
	}

	query := maps.Clone(c.query)
	query.Set("symbol", symbol)

	url := fmt.Sprintf("%s/quote?%s", c.baseURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, http.NoBody)
	if err != nil {
		return fail(provider.KindTransport, fmt.Errorf("creating request: %w", err))
	}
	req.Header = c.header.Clone()
	req.Header.Set("Accept", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return fail(provider.KindTransport, fmt.Errorf("performing request: %w", err))
	}
	defer res.Body.Close()

	switch res.StatusCode {
	case http.StatusOK:
		break

	case http.StatusTooManyRequests:
		_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))
		return fail(provider.KindRateLimited, nil)

	default:
		b, _ := io.ReadAll(io.LimitReader(res.Body, 2<<10))
		return fail(provider.KindTransport, fmt.Errorf("unexpected status code: %d: %s", res.StatusCode, string(b)))
	}

	var body quoteResponse
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		return fail(provider.KindTransport, fmt.Errorf("decoding quote response: %w", err))
	}

	if !body.Current.Valid || body.Current.Decimal.IsZero() {
		return fail(provider.KindNoPriceData, nil)
	}

	return provider.Quote{
		Symbol:     symbol,
		Price:      body.Current.Decimal,
		ObservedAt: c.now().UTC(),
	}, nil
}
