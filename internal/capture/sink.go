package capture

import (
	"context"
	"log/slog"
)

// Sink receives the final draft when a receipt is confirmed
type Sink interface {
	Confirmed(ctx context.Context, receiptID string, d Draft) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(ctx context.Context, receiptID string, d Draft) error

// Confirmed calls f
func (f SinkFunc) Confirmed(ctx context.Context, receiptID string, d Draft) error {
	return f(ctx, receiptID, d)
}

// LogSink logs confirmed receipts
type LogSink struct {
	Logger *slog.Logger
}

// Confirmed logs the receipt
func (s LogSink) Confirmed(ctx context.Context, receiptID string, d Draft) error {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Receipt confirmed",
		"receipt_id", receiptID,
		"merchant", d.Merchant,
		"date", d.Date,
		"category", d.Category,
		"total", d.Total.StringFixed(2),
		"currency", d.Currency,
		"items", len(d.Items),
	)
	return nil
}
