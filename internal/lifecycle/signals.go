package lifecycle

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalHandlers routes POSIX signals to daemon actions.
type SignalHandlers struct {
	// OnStop handles SIGTERM and SIGINT: graceful shutdown.
	OnStop func()

	// OnPause handles SIGUSR1: pause ingestion, keep serving queries.
	OnPause func()

	// OnResume handles SIGUSR2: resume ingestion.
	OnResume func()
}

// HandleSignals blocks until the context is cancelled, dispatching
// incoming signals to their handlers. SIGTERM/SIGINT dispatch OnStop
// and return.
func HandleSignals(ctx context.Context, handlers SignalHandlers) {
	ch := make(chan os.Signal, 4)
	signal.Notify(ch, syscall.SIGTERM, syscall.SIGINT, syscall.SIGUSR1, syscall.SIGUSR2)
	defer signal.Stop(ch)

	for {
		select {
		case <-ctx.Done():
			return
		case sig := <-ch:
			slog.Info("signal_received", slog.String("signal", sig.String()))
			switch sig {
			case syscall.SIGTERM, syscall.SIGINT:
				if handlers.OnStop != nil {
					handlers.OnStop()
				}
				return
			case syscall.SIGUSR1:
				if handlers.OnPause != nil {
					handlers.OnPause()
				}
			case syscall.SIGUSR2:
				if handlers.OnResume != nil {
					handlers.OnResume()
				}
			}
		}
	}
}
