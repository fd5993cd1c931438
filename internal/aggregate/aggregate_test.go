package aggregate

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"pricerelay/internal/provider"
)

func quote(sym, price string, ts time.Time) provider.Quote {
	return provider.Quote{Symbol: sym, Price: decimal.RequireFromString(price), ObservedAt: ts}
}

func TestCollect_DropsFailures_PreservesOrder(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []Outcome{
		{Symbol: "TSLA", Quote: quote("TSLA", "210.5", ts)},
		{Symbol: "GOOG", Err: &provider.FetchError{Symbol: "GOOG", Kind: provider.KindNoPriceData}},
		{Symbol: "AAPL", Quote: quote("AAPL", "150", ts)},
	}

	batch, sum := Collect(in)
	if len(batch) != 2 {
		t.Fatalf("want 2 quotes, got %d: %+v", len(batch), batch)
	}
	if batch[0].Symbol != "TSLA" || batch[1].Symbol != "AAPL" {
		t.Fatalf("order not preserved: %+v", batch)
	}
	if sum.Fetched != 2 || sum.NoPriceData != 1 || sum.Failed() != 1 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestCollect_AllFailed_EmptyNotNil(t *testing.T) {
	in := []Outcome{
		{Symbol: "AAPL", Err: &provider.FetchError{Symbol: "AAPL", Kind: provider.KindRateLimited}},
		{Symbol: "GOOG", Err: &provider.FetchError{Symbol: "GOOG", Kind: provider.KindTransport}},
		{Symbol: "TSLA", Err: errors.New("boom")},
	}
	batch, sum := Collect(in)
	if batch == nil || len(batch) != 0 {
		t.Fatalf("want empty non-nil batch, got %#v", batch)
	}
	if sum.RateLimited != 1 || sum.Transport != 2 || sum.Fetched != 0 {
		t.Fatalf("unexpected summary: %+v", sum)
	}
}

func TestCollect_NoDuplicateSymbols(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []Outcome{
		{Symbol: "AAPL", Quote: quote("AAPL", "150", ts)},
		{Symbol: "AAPL", Quote: quote("AAPL", "151", ts.Add(time.Second))},
	}
	batch, _ := Collect(in)
	if len(batch) != 1 || batch[0].Price.String() != "150" {
		t.Fatalf("want first AAPL only, got %+v", batch)
	}
}

func TestCollect_RejectsQuoteForOtherSymbol(t *testing.T) {
	ts := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	in := []Outcome{{Symbol: "AAPL", Quote: quote("MSFT", "400", ts)}}
	batch, sum := Collect(in)
	if len(batch) != 0 || sum.Transport != 1 {
		t.Fatalf("mismatched symbol accepted: %+v %+v", batch, sum)
	}
}

func TestDedupe(t *testing.T) {
	got := Dedupe([]string{"AAPL", "", "GOOG", "AAPL", "TSLA", "GOOG"})
	want := []string{"AAPL", "GOOG", "TSLA"}
	if len(got) != len(want) {
		t.Fatalf("want %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("want %v, got %v", want, got)
		}
	}
}
