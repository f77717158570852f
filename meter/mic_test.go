package meter

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"murmur/audio"
)

func micWith(ctx *audio.FakeContext) *MicCapability {
	return &MicCapability{
		NewContext: func() (audio.Context, error) { return ctx, nil },
		Stale:      100 * time.Millisecond,
	}
}

func TestMicCapabilitySupport(t *testing.T) {
	if !micWith(audio.NewFakeContext(nil)).HasSupport() {
		t.Error("expected support with one device")
	}
	if micWith(&audio.FakeContext{}).HasSupport() {
		t.Error("expected no support without devices")
	}
	broken := &MicCapability{NewContext: func() (audio.Context, error) {
		return nil, errors.New("no audio server")
	}}
	if broken.HasSupport() {
		t.Error("expected no support when context fails")
	}
}

func TestMicCapabilityPermission(t *testing.T) {
	perm, err := micWith(audio.NewFakeContext(nil)).RequestPermission(context.Background())
	if perm != Granted || err != nil {
		t.Errorf("got %v, %v; want Granted", perm, err)
	}

	denied := &audio.FakeContext{Names: []string{"mic"}, StartErr: errors.New("not allowed")}
	perm, err = micWith(denied).RequestPermission(context.Background())
	if perm != Denied || err == nil {
		t.Errorf("got %v, %v; want Denied with error", perm, err)
	}
}

func TestMicCaptureLevel(t *testing.T) {
	m := micWith(audio.NewFakeContext(audio.Tone(440, 0.5, 200*time.Millisecond)))
	c, err := m.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	deadline := time.After(time.Second)
	for {
		db, err := c.Level()
		if err != nil {
			t.Fatalf("Level() error: %v", err)
		}
		if math.Abs(db-(-9.03)) < 0.5 {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("level never reached tone loudness, last %.2f dB", db)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestMicCaptureStalls(t *testing.T) {
	m := micWith(audio.NewFakeContext(nil)) // no PCM, callback never fires
	c, err := m.Open(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if db, err := c.Level(); err != nil || db != audio.SilenceDB {
		t.Errorf("warm-up Level() = %v, %v; want silence", db, err)
	}
	time.Sleep(150 * time.Millisecond)
	if _, err := c.Level(); !errors.Is(err, ErrCaptureStalled) {
		t.Errorf("Level() err = %v, want ErrCaptureStalled", err)
	}
}

func TestMicOpenFailure(t *testing.T) {
	m := micWith(&audio.FakeContext{Names: []string{"mic"}, StartErr: errors.New("busy")})
	_, err := m.Open(context.Background())
	var ce *CaptureError
	if !errors.As(err, &ce) || ce.Op != "open" {
		t.Errorf("err = %v, want open CaptureError", err)
	}
}
