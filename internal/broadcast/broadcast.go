package broadcast

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"pricerelay/internal/logging"
	"pricerelay/internal/provider"
)

// TimeLayout is ISO-8601 in UTC with millisecond precision.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// ErrSendFailed wraps any error writing a frame to a session.
var ErrSendFailed = errors.New("broadcast: send failed")

// Writer is the send capability of one client connection.
type Writer interface {
	WriteFrame(data []byte) error
}

// frame is one element of the outbound JSON array.
type frame struct {
	Symbol string      `json:"symbol"`
	Price  json.Number `json:"price"`
	Time   string      `json:"time"`
}

// Encode serializes a batch as
//
//	[{"symbol":"AAPL","price":150.25,"time":"2025-01-02T03:04:05.000Z"}]
//
// Prices are written as JSON numbers straight from their decimal form.
func Encode(batch provider.Batch) ([]byte, error) {
	out := make([]frame, 0, len(batch))
	for _, q := range batch {
		out = append(out, frame{
			Symbol: q.Symbol,
			Price:  json.Number(q.Price.String()),
			Time:   q.ObservedAt.UTC().Format(TimeLayout),
		})
	}
	b, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode batch: %w", err)
	}
	return b, nil
}

// Sink delivers a batch to exactly one connection.
type Sink struct {
	logger *zap.Logger
}

func NewSink(logger *zap.Logger) *Sink {
	return &Sink{logger: logging.OrNop(logger)}
}

// Send writes batch to w as a single frame. An empty batch writes nothing.
// A write error is returned wrapped in ErrSendFailed; the caller owns the
// decision to tear the session down.
func (s *Sink) Send(w Writer, batch provider.Batch) error {
	if len(batch) == 0 {
		return nil
	}
	data, err := Encode(batch)
	if err != nil {
		return err
	}
	start := time.Now()
	if err := w.WriteFrame(data); err != nil {
		return fmt.Errorf("%w: %w", ErrSendFailed, err)
	}
	s.logger.Debug("batch sent",
		zap.Int("quotes", len(batch)),
		zap.Int("bytes", len(data)),
		zap.Duration("write", time.Since(start)),
	)
	return nil
}
