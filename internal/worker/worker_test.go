package worker

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestWorkerStopExitsLoop tests that a stop request is observed by the
// processing loop before it touches the queue.
func TestWorkerStopExitsLoop(t *testing.T) {
	w := NewWorker("worker-1", nil, nil, zerolog.Nop())
	w.Stop()

	done := make(chan error, 1)
	go func() { done <- w.Start(context.Background()) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not observe stop request")
	}
}

// TestWorkerStartHonorsContext tests that a cancelled context stops the loop.
func TestWorkerStartHonorsContext(t *testing.T) {
	w := NewWorker("worker-1", nil, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, w.Start(ctx), context.Canceled)
}
