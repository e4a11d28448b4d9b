package main

import (
	"context"
	"time"

	"github.com/nerrad567/mysensors-gateway/internal/bridges/mysensors"
	"github.com/nerrad567/mysensors-gateway/internal/infrastructure/logging"
)

// Link reconnection delays.
const (
	linkRetryInitial = time.Second
	linkRetryMax     = 30 * time.Second
)

// linkTransport is a gateway transport the supervisor can close.
type linkTransport interface {
	mysensors.Transport
	Close() error
}

// linkOpener opens the sensor network link.
type linkOpener func(ctx context.Context) (linkTransport, error)

// superviseLink keeps the gateway connected until ctx is done. A failed open
// or a dropped link is retried with exponential backoff, reset after every
// successful open.
func superviseLink(ctx context.Context, gw *mysensors.Gateway, open linkOpener, log *logging.Logger) {
	down := make(chan struct{}, 1)
	unsubscribe := gw.Events().Subscribe(mysensors.EventDisconnected, func(mysensors.Event) {
		select {
		case down <- struct{}{}:
		default:
		}
	})
	defer unsubscribe()

	delay := linkRetryInitial
	for {
		t, err := open(ctx)
		if err != nil {
			log.Warn("sensor network link unavailable", "error", err, "retry_in", delay.String())
			if !sleepCtx(ctx, delay) {
				return
			}
			delay = min(delay*2, linkRetryMax)
			continue
		}
		delay = linkRetryInitial

		// Drop a signal left over from the previous link.
		select {
		case <-down:
		default:
		}

		if err := gw.Connect(t); err != nil {
			log.Error("attaching transport failed", "error", err)
			t.Close() //nolint:errcheck // nothing attached yet
			if !sleepCtx(ctx, delay) {
				return
			}
			continue
		}

		select {
		case <-ctx.Done():
			gw.Disconnect()
			t.Close() //nolint:errcheck // shutting down
			return
		case <-down:
			log.Warn("sensor network link lost, reconnecting")
			t.Close() //nolint:errcheck // link already down
		}
	}
}

// sleepCtx waits for d and reports false if ctx ended first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
