package lifecycle

import (
	"context"
	"os"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHandleSignalsPauseResume(t *testing.T) {
	var paused, resumed atomic.Int32

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		HandleSignals(ctx, SignalHandlers{
			OnPause:  func() { paused.Add(1) },
			OnResume: func() { resumed.Add(1) },
		})
		close(done)
	}()

	// Give signal.Notify a moment to install.
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR1))
	require.Eventually(t, func() bool { return paused.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGUSR2))
	require.Eventually(t, func() bool { return resumed.Load() == 1 }, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleSignals did not return on context cancel")
	}
}

func TestHandleSignalsStopReturns(t *testing.T) {
	var stopped atomic.Int32

	done := make(chan struct{})
	go func() {
		HandleSignals(context.Background(), SignalHandlers{
			OnStop: func() { stopped.Add(1) },
		})
		close(done)
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, syscall.Kill(os.Getpid(), syscall.SIGTERM))

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("HandleSignals did not return after SIGTERM")
	}
	require.Equal(t, int32(1), stopped.Load())
}
