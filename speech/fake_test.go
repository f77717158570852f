package speech

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestFakeScript(t *testing.T) {
	f := NewFake()
	f.Script([]string{"hello", "world"}, 5*time.Millisecond)
	events, err := f.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatal(err)
	}
	var last string
	for i := 0; i < 2; i++ {
		last = next(t, events).Text
	}
	if last != "hello world" {
		t.Errorf("got %q", last)
	}
	if err := f.Stop(context.Background()); err != nil {
		t.Fatal(err)
	}
	if _, ok := <-events; ok {
		t.Error("events not closed after Stop")
	}
}

func TestFakeLifecycle(t *testing.T) {
	f := NewFake()
	if err := f.Stop(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop before Start = %v", err)
	}
	f.FailStart(errors.New("busy"))
	if _, err := f.Start(context.Background(), "en-US"); err == nil {
		t.Fatal("expected start failure")
	}
	f.FailStart(nil)
	events, _ := f.Start(context.Background(), "en-GB")
	if _, err := f.Start(context.Background(), "en-GB"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("double start = %v", err)
	}
	f.FinalOnStop("done")
	f.Stop(context.Background())
	if ev := <-events; ev.Text != "done" {
		t.Errorf("final = %q", ev.Text)
	}
	if f.Emit(Partial("late")) {
		t.Error("Emit after Stop delivered")
	}
	starts, stops, cancels := f.Counts()
	if starts != 1 || stops != 1 || cancels != 0 || f.Locale() != "en-GB" {
		t.Errorf("counts = %d %d %d locale %q", starts, stops, cancels, f.Locale())
	}
}
