package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// SetupSignalHandler returns a context canceled on the first SIGINT or
// SIGTERM. For components driven by context cancellation rather than a
// signal channel. The handler lives for the rest of the process.
func SetupSignalHandler() context.Context {
	ctx, _ := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	return ctx
}

// WaitForShutdown returns a channel that delivers SIGINT or SIGTERM. The
// run command selects on it alongside server and watcher failures.
func WaitForShutdown() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	return ch
}
