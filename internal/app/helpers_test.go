package app

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkeye/Lobby/internal/adapters/bus"
	"github.com/dkeye/Lobby/internal/adapters/store"
	"github.com/dkeye/Lobby/internal/core"
	"github.com/dkeye/Lobby/internal/domain"
)

var errFull = errors.New("full")

// recordingConn is a core.Connection that keeps every frame it receives.
type recordingConn struct {
	mu     sync.Mutex
	frames []domain.Envelope
	full   bool
	closed bool
}

func (c *recordingConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.full {
		return errFull
	}
	env, err := domain.DecodeEnvelope(f)
	if err != nil {
		return err
	}
	c.frames = append(c.frames, env)
	return nil
}

func (c *recordingConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *recordingConn) received() []domain.Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Envelope(nil), c.frames...)
}

func (c *recordingConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func newTestCoordinator(t *testing.T, policy Policy) (*Coordinator, *bus.Hub) {
	t.Helper()
	s, err := store.Open("")
	require.NoError(t, err)
	hub := bus.NewHub()
	t.Cleanup(func() {
		_ = hub.Close()
		_ = s.Close()
	})
	return NewCoordinator(s, hub, policy), hub
}

func pollOnce(t *testing.T, sub core.Subscription, d time.Duration) (domain.Envelope, bool) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	env, ok, err := sub.Poll(ctx)
	require.NoError(t, err)
	return env, ok
}

// runningRouter starts a router and returns a channel closed when it exits.
func runningRouter(ctx context.Context, r *Router) <-chan error {
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	return done
}
