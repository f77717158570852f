//go:build !windows

package shutdown

import (
	"context"
	"os"
	"syscall"
	"testing"
	"time"
)

func TestOnSignal(t *testing.T) {
	got := make(chan os.Signal, 1)
	stop := OnSignal(context.Background(), func(s os.Signal) { got <- s })
	defer stop()

	if err := syscall.Kill(os.Getpid(), syscall.SIGHUP); err != nil {
		t.Fatal(err)
	}
	select {
	case s := <-got:
		if s != syscall.SIGHUP {
			t.Errorf("got %v, want SIGHUP", s)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("signal not delivered")
	}
}

func TestOnSignalStop(t *testing.T) {
	called := make(chan struct{}, 1)
	stop := OnSignal(context.Background(), func(os.Signal) { called <- struct{}{} })
	stop()
	select {
	case <-called:
		t.Error("callback ran after stop")
	case <-time.After(20 * time.Millisecond):
	}
}

func TestOnSignalContextDone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	called := make(chan struct{}, 1)
	stop := OnSignal(ctx, func(os.Signal) { called <- struct{}{} })
	defer stop()
	cancel()
	select {
	case <-called:
		t.Error("callback ran without a signal")
	case <-time.After(20 * time.Millisecond):
	}
}
