// Package shutdown routes process termination signals to the application so
// an active dictation session can release the microphone before exit.
package shutdown

import (
	"context"
	"os"
	"os/signal"
)

func Notify(ch chan os.Signal) {
	signal.Notify(ch, signals...)
}

// OnSignal runs fn once when the first termination signal arrives. If ctx is
// done or stop is called first, fn never runs and listening ends.
func OnSignal(ctx context.Context, fn func(os.Signal)) (stop func()) {
	ch := make(chan os.Signal, 1)
	Notify(ch)
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		select {
		case sig := <-ch:
			fn(sig)
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return cancel
}
