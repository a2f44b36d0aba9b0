package kafka

import (
	"context"
	"fmt"
	"time"
)

// Pinger is satisfied by *producer.Producer.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker reports whether the audit brokers are reachable.
type HealthChecker struct {
	pinger  Pinger
	timeout time.Duration
}

// NewHealthChecker creates a HealthChecker over p.
func NewHealthChecker(p Pinger) *HealthChecker {
	return &HealthChecker{pinger: p, timeout: 3 * time.Second}
}

func (h *HealthChecker) Check(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()
	if err := h.pinger.Ping(ctx); err != nil {
		return fmt.Errorf("kafka unreachable: %w", err)
	}
	return nil
}

func (h *HealthChecker) Name() string {
	return "kafka"
}
