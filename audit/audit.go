// Package audit records every admission the payment gate grants. The
// development-mode bypass is a security-sensitive branch, so admissions are
// published even when the ledger was never consulted.
package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Event describes one granted admission.
type Event struct {
	TxHash    string    `json:"transactionHash"`
	Amount    string    `json:"amount"`
	Network   string    `json:"network"`
	Bypass    bool      `json:"bypass"`
	CacheHit  bool      `json:"cacheHit"`
	Timestamp time.Time `json:"timestamp"`
}

// Publisher receives admission events. Publish must not block request
// handling on downstream failures; implementations log and drop instead.
type Publisher interface {
	Publish(ctx context.Context, e Event)
}

// Nop discards all events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) {}

// LogPublisher writes admission events to the structured log.
type LogPublisher struct {
	log *zap.Logger
}

// NewLogPublisher creates a publisher writing to log.
func NewLogPublisher(log *zap.Logger) *LogPublisher {
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) {
	p.log.Info("payment admitted",
		zap.String("txHash", e.TxHash),
		zap.String("amount", e.Amount),
		zap.String("network", e.Network),
		zap.Bool("bypass", e.Bypass),
		zap.Bool("cacheHit", e.CacheHit),
		zap.Time("timestamp", e.Timestamp),
	)
}
