// Package doctor runs murmur's system diagnostics: the hotkey, microphone
// metering, the speech engine and the clipboard.
package doctor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"murmur/audio"
	"murmur/clipboard"
	"murmur/hotkey"
	"murmur/meter"
	"murmur/shutdown"
	"murmur/speech"
)

// Check is one diagnostic. Run returns a short detail line on success.
type Check struct {
	Name string
	Run  func(ctx context.Context) (string, error)
}

type Config struct {
	Device string
	APIKey string
	Out    io.Writer
}

// Run executes the default checks and returns an exit code (0 = all pass).
func Run(cfg Config) int {
	if cfg.Out == nil {
		cfg.Out = os.Stdout
	}
	resetTerminal()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	stop := shutdown.OnSignal(ctx, func(os.Signal) {
		fmt.Fprintln(cfg.Out, "\nInterrupted")
		cancel()
	})
	defer stop()

	fmt.Fprintln(cfg.Out, "murmur doctor - system diagnostics")
	fmt.Fprintln(cfg.Out, "==================================")
	return RunChecks(ctx, cfg.Out, DefaultChecks(cfg))
}

// RunChecks runs every check in order, even after a failure, and reports
// each one. It stops early only when ctx is cancelled.
func RunChecks(ctx context.Context, w io.Writer, checks []Check) int {
	failed := 0
	for i, c := range checks {
		fmt.Fprintf(w, "\n[%d/%d] %s\n", i+1, len(checks), c.Name)
		if ctx.Err() != nil {
			fmt.Fprintln(w, "  SKIP: interrupted")
			failed++
			continue
		}
		detail, err := c.Run(ctx)
		if err != nil {
			fmt.Fprintf(w, "  FAIL: %v\n", err)
			failed++
			continue
		}
		fmt.Fprintf(w, "  PASS: %s\n", detail)
	}

	fmt.Fprintln(w)
	if failed == 0 {
		fmt.Fprintln(w, "All checks passed!")
		return 0
	}
	fmt.Fprintf(w, "%d of %d checks failed. See details above.\n", failed, len(checks))
	return 1
}

func DefaultChecks(cfg Config) []Check {
	return []Check{
		{Name: "Hotkey registration", Run: checkHotkey},
		{Name: "Microphone metering", Run: func(ctx context.Context) (string, error) {
			mic := meter.NewMicCapability(cfg.Device)
			defer mic.Close()
			return checkMetering(ctx, mic, time.Second)
		}},
		{Name: "Speech engine", Run: func(context.Context) (string, error) {
			eng := speech.NewDeepgram(cfg.APIKey, cfg.Device)
			defer eng.Close()
			return checkEngine(eng, cfg.APIKey != "")
		}},
		{Name: "Clipboard", Run: func(ctx context.Context) (string, error) {
			return checkClipboard(ctx, clipboard.Copy, clipboard.Read)
		}},
		{Name: "Paste keystroke", Run: func(context.Context) (string, error) {
			return clipboard.Verify()
		}},
	}
}

func checkHotkey(context.Context) (string, error) {
	defer resetTerminal()
	return hotkey.Diagnose()
}

// checkMetering reports the mode a session would get and, for metering,
// the loudness observed over listen.
func checkMetering(ctx context.Context, c meter.Capability, listen time.Duration) (string, error) {
	mode, reason := meter.Negotiate(ctx, c)
	if mode != meter.ModeMetering {
		if reason == nil {
			reason = errors.New("no capture device")
		}
		return "", fmt.Errorf("sessions will use simulated levels: %w", reason)
	}
	capture, err := c.Open(ctx)
	if err != nil {
		return "", meter.WrapCapture("open", err)
	}
	defer capture.Close()

	peak := audio.SilenceDB
	deadline := time.After(listen)
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-deadline:
			return fmt.Sprintf("metering available, peak %.1f dBFS", peak), nil
		case <-tick.C:
			db, err := capture.Level()
			if err != nil && !errors.Is(err, meter.ErrCaptureStalled) {
				return "", &meter.CaptureError{Op: "tick", Err: err}
			}
			if err == nil {
				peak = max(peak, db)
			}
		}
	}
}

func checkEngine(e speech.Engine, haveKey bool) (string, error) {
	if !haveKey {
		return "", errors.New("DEEPGRAM_API_KEY not set, dictation will be unavailable")
	}
	if !e.Usable() {
		return "", errors.New("speech engine cannot capture audio on this machine")
	}
	return "deepgram streaming engine usable", nil
}

// checkClipboard writes a marker and reads it back. Clipboard helpers can
// hang when no display is reachable, hence the timeout.
func checkClipboard(ctx context.Context, copyFn func(string) error, readFn func() (string, error)) (string, error) {
	marker := fmt.Sprintf("murmur-doctor-%d", time.Now().UnixNano())
	type result struct {
		got   string
		err   error
		phase string
	}
	ch := make(chan result, 1)
	go func() {
		if err := copyFn(marker); err != nil {
			ch <- result{err: err, phase: "write"}
			return
		}
		got, err := readFn()
		ch <- result{got: got, err: err, phase: "read"}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			return "", fmt.Errorf("clipboard %s: %w", r.phase, r.err)
		}
		if r.got != marker {
			return "", fmt.Errorf("clipboard mismatch: wrote %q, got %q", marker, r.got)
		}
		return "clipboard write/read verified", nil
	case <-time.After(3 * time.Second):
		return "", errors.New("clipboard timed out (display not accessible?)")
	case <-ctx.Done():
		return "", ctx.Err()
	}
}
