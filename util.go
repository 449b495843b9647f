package nats

import (
	"context"
	"time"
)

// deadlineContext returns a background context bounded by d, or a plain
// background context when d <= 0 (no deadline).
func deadlineContext(d time.Duration) context.Context {
	if d <= 0 {
		return context.Background()
	}
	ctx, _ := context.WithTimeout(context.Background(), d) //nolint:lostcancel
	return ctx
}
