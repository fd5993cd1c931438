package ratelimit

import (
	"sync"
	"time"
)

const (
	// DefaultCeiling sits below Finnhub's 60 calls/minute to absorb clock skew.
	DefaultCeiling = 55
	DefaultWindow  = time.Minute
)

// Window tracks upstream calls made in a trailing time window.
// One instance is shared by every session: the upstream limit is per API key,
// not per connection.
type Window struct {
	ceiling int
	span    time.Duration
	now     func() time.Time

	mu    sync.Mutex
	calls []time.Time // ascending; appended only
}

// Option configures a Window.
type Option func(*Window)

// WithSpan overrides the window length.
func WithSpan(d time.Duration) Option {
	return func(w *Window) {
		if d > 0 {
			w.span = d
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(w *Window) {
		if now != nil {
			w.now = now
		}
	}
}

func NewWindow(ceiling int, opts ...Option) *Window {
	if ceiling <= 0 {
		ceiling = DefaultCeiling
	}
	w := &Window{ceiling: ceiling, span: DefaultWindow, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Ceiling returns the configured maximum calls per window.
func (w *Window) Ceiling() int { return w.ceiling }

// CanAdmit reports whether n more calls fit in the window right now.
// It does not record anything; see Reserve for the atomic variant.
func (w *Window) CanAdmit(n int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.now())
	return len(w.calls)+n <= w.ceiling
}

// RecordCall appends one call at the current time.
func (w *Window) RecordCall() {
	w.mu.Lock()
	w.calls = append(w.calls, w.now())
	w.mu.Unlock()
}

// Reserve is CanAdmit followed by n RecordCalls under a single lock, so
// concurrent callers can never push the window past the ceiling.
func (w *Window) Reserve(n int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	now := w.now()
	w.purge(now)
	if len(w.calls)+n > w.ceiling {
		return false
	}
	for i := 0; i < n; i++ {
		w.calls = append(w.calls, now)
	}
	return true
}

// Len returns the number of calls currently inside the window.
func (w *Window) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.purge(w.now())
	return len(w.calls)
}

// purge drops records strictly older than the window. Caller holds mu.
func (w *Window) purge(now time.Time) {
	cutoff := now.Add(-w.span)
	i := 0
	for i < len(w.calls) && w.calls[i].Before(cutoff) {
		i++
	}
	if i == 0 {
		return
	}
	// shift instead of reslicing so the backing array does not grow forever
	n := copy(w.calls, w.calls[i:])
	w.calls = w.calls[:n]
}
