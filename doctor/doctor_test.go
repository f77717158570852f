package doctor

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"murmur/audio"
	"murmur/meter"
	"murmur/speech"
)

func TestRunChecks(t *testing.T) {
	ok := func(context.Context) (string, error) { return "fine", nil }
	bad := func(context.Context) (string, error) { return "", errors.New("broken") }

	for _, tt := range []struct {
		name   string
		checks []Check
		code   int
		want   []string
	}{
		{"all pass", []Check{{"a", ok}, {"b", ok}}, 0, []string{"[1/2] a", "PASS: fine", "All checks passed!"}},
		{"one fails", []Check{{"a", bad}, {"b", ok}}, 1, []string{"FAIL: broken", "[2/2] b", "1 of 2 checks failed"}},
	} {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			if code := RunChecks(context.Background(), &buf, tt.checks); code != tt.code {
				t.Errorf("code = %d, want %d", code, tt.code)
			}
			for _, w := range tt.want {
				if !strings.Contains(buf.String(), w) {
					t.Errorf("output missing %q:\n%s", w, buf.String())
				}
			}
		})
	}
}

func TestRunChecksInterrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	ran := false
	code := RunChecks(ctx, &buf, []Check{{"a", func(context.Context) (string, error) {
		ran = true
		return "", nil
	}}})
	if code != 1 || ran {
		t.Errorf("code = %d ran = %v", code, ran)
	}
}

func TestCheckMetering(t *testing.T) {
	mic := meter.NewMicCapability("")
	mic.NewContext = func() (audio.Context, error) {
		return audio.NewFakeContext(audio.Tone(440, 0.5, 100*time.Millisecond)), nil
	}
	defer mic.Close()

	detail, err := checkMetering(context.Background(), mic, 200*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(detail, "dBFS") {
		t.Errorf("detail = %q", detail)
	}
}

func TestCheckMeteringUnsupported(t *testing.T) {
	mic := meter.NewMicCapability("")
	mic.NewContext = func() (audio.Context, error) { return nil, errors.New("no audio server") }
	if _, err := checkMetering(context.Background(), mic, time.Millisecond); err == nil {
		t.Error("expected failure without audio")
	}
}

func TestCheckEngine(t *testing.T) {
	fake := speech.NewFake()
	if _, err := checkEngine(fake, false); err == nil {
		t.Error("expected failure without key")
	}
	if _, err := checkEngine(fake, true); err != nil {
		t.Errorf("usable engine: %v", err)
	}
	fake.SetUsable(false)
	if _, err := checkEngine(fake, true); err == nil {
		t.Error("expected failure for unusable engine")
	}
}

func TestCheckClipboard(t *testing.T) {
	var stored string
	copyFn := func(s string) error { stored = s; return nil }
	readFn := func() (string, error) { return stored, nil }
	if _, err := checkClipboard(context.Background(), copyFn, readFn); err != nil {
		t.Errorf("round trip: %v", err)
	}

	readFn = func() (string, error) { return "other", nil }
	if _, err := checkClipboard(context.Background(), copyFn, readFn); err == nil {
		t.Error("expected mismatch")
	}
}

type busyMic struct{}

func (busyMic) HasSupport() bool { return true }
func (busyMic) RequestPermission(context.Context) (meter.Permission, error) {
	return meter.Granted, nil
}
func (busyMic) Open(context.Context) (meter.Capture, error) {
	return nil, &meter.CaptureError{Op: "open", Err: errors.New("device busy")}
}

func TestCheckMeteringOpenError(t *testing.T) {
	_, err := checkMetering(context.Background(), busyMic{}, time.Millisecond)
	if err == nil {
		t.Fatal("expected open failure")
	}
	if got, want := err.Error(), "capture open: device busy"; got != want {
		t.Errorf("err = %q, want %q", got, want)
	}
}
