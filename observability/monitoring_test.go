package observability

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitor_Counters(t *testing.T) {
	req := require.New(t)
	m := NewMonitor(slog.New(slog.NewTextHandler(io.Discard, nil)))

	m.SessionStarted()
	m.SessionStarted()
	m.SessionEnded()
	m.RequestServed()
	m.RequestServed()
	m.RequestServed()
	m.StateFlushed()

	m.sample()
	snap := m.Latest()
	req.Equal(int64(1), snap.ActiveSessions)
	req.Equal(uint64(2), snap.TotalSessions)
	req.Equal(uint64(3), snap.RequestsServed)
	req.Equal(uint64(1), snap.FlushCount)
	req.NotEmpty(snap.SampledAt)
	req.Positive(snap.NumGoroutine)
}

func TestMonitor_ListenStopsOnCancel(t *testing.T) {
	req := require.New(t)
	m := NewMonitor(slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Listen(ctx, 5*time.Millisecond)
		close(done)
	}()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop")
	}
	req.NotEmpty(m.Latest().SampledAt)
}
