package speech

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"murmur/audio"
)

type fakeStream struct {
	mu        sync.Mutex
	sent      int
	closeSent bool
	closed    bool
	updates   chan streamUpdate
	done      chan struct{}
	once      sync.Once
	sendErr   error
	finalize  streamUpdate
}

func newFakeStream() *fakeStream {
	return &fakeStream{updates: make(chan streamUpdate, 16), done: make(chan struct{})}
}

func (f *fakeStream) Send(pcm []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent += len(pcm)
	return nil
}

func (f *fakeStream) CloseSend() error {
	f.mu.Lock()
	f.closeSent = true
	fin := f.finalize
	f.mu.Unlock()
	if fin.FromFinalize {
		f.updates <- fin
	}
	return nil
}

func (f *fakeStream) Recv() (streamUpdate, error) {
	select {
	case u := <-f.updates:
		return u, nil
	case <-f.done:
		return streamUpdate{}, errors.New("closed")
	}
}

func (f *fakeStream) Close() error {
	f.mu.Lock()
	f.closed = true
	f.mu.Unlock()
	f.once.Do(func() { close(f.done) })
	return nil
}

func newTestDeepgram(ws *fakeStream) (*Deepgram, *streamConfig) {
	var got streamConfig
	d := NewDeepgram("key", "")
	d.newContext = func() (audio.Context, error) {
		return audio.NewFakeContext(audio.Tone(440, 0.3, 200*time.Millisecond)), nil
	}
	d.dial = func(_ context.Context, _ string, cfg streamConfig) (rawStream, error) {
		got = cfg
		return ws, nil
	}
	return d, &got
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-ch:
		if !ok {
			t.Fatal("events closed")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
	}
	return Event{}
}

func TestDeepgramUsable(t *testing.T) {
	d := NewDeepgram("", "")
	if d.Usable() {
		t.Error("usable without api key")
	}
	d, _ = newTestDeepgram(newFakeStream())
	if !d.Usable() {
		t.Error("not usable with key and audio")
	}
	d.newContext = func() (audio.Context, error) { return nil, errors.New("no audio") }
	d.actx = nil
	if d.Usable() {
		t.Error("usable without audio")
	}
}

func TestDeepgramPartials(t *testing.T) {
	ws := newFakeStream()
	ws.finalize = streamUpdate{Transcript: "world", FromFinalize: true}
	d, cfg := newTestDeepgram(ws)

	events, err := d.Start(context.Background(), "de-DE")
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Language != "de-DE" || cfg.SampleRate != audio.SampleRate {
		t.Errorf("stream config = %+v", *cfg)
	}

	ws.updates <- streamUpdate{Transcript: "hel"}
	if ev := next(t, events); ev.Kind != EventPartial || ev.Text != "hel" {
		t.Errorf("got %v %q", ev.Kind, ev.Text)
	}
	ws.updates <- streamUpdate{Transcript: "hello", IsFinal: true}
	if ev := next(t, events); ev.Text != "hello" {
		t.Errorf("got %q", ev.Text)
	}
	ws.updates <- streamUpdate{Transcript: "wor"}
	if ev := next(t, events); ev.Text != "hello wor" {
		t.Errorf("got %q", ev.Text)
	}

	var texts []string
	stopped := make(chan error, 1)
	go func() { stopped <- d.Stop(context.Background()) }()
	for ev := range events {
		texts = append(texts, ev.Text)
	}
	if err := <-stopped; err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if len(texts) != 1 || texts[0] != "hello world" {
		t.Errorf("final partials = %q", texts)
	}
	if !ws.closeSent || !ws.closed {
		t.Error("stream not finalized and closed")
	}
}

func TestDeepgramDoubleStart(t *testing.T) {
	d, _ := newTestDeepgram(newFakeStream())
	if _, err := d.Start(context.Background(), "en-US"); err != nil {
		t.Fatal(err)
	}
	if _, err := d.Start(context.Background(), "en-US"); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start err = %v", err)
	}
	if err := d.Cancel(); err != nil {
		t.Errorf("Cancel: %v", err)
	}
	if err := d.Cancel(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("second Cancel err = %v", err)
	}
}

func TestDeepgramCancelClosesEvents(t *testing.T) {
	ws := newFakeStream()
	d, _ := newTestDeepgram(ws)
	events, err := d.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatal(err)
	}
	if err := d.Cancel(); err != nil {
		t.Fatal(err)
	}
	for range events {
	}
	if ws.closeSent {
		t.Error("cancel should not finalize")
	}
}

func TestDeepgramSendError(t *testing.T) {
	ws := newFakeStream()
	ws.sendErr = errors.New("broken pipe")
	d, _ := newTestDeepgram(ws)
	events, err := d.Start(context.Background(), "en-US")
	if err != nil {
		t.Fatal(err)
	}
	ev := next(t, events)
	if ev.Kind != EventError || ev.Err == nil {
		t.Errorf("got %v, want error event", ev.Kind)
	}
	d.Cancel()
}

func TestDeepgramDialError(t *testing.T) {
	d, _ := newTestDeepgram(nil)
	d.dial = func(context.Context, string, streamConfig) (rawStream, error) {
		return nil, errors.New("401")
	}
	if _, err := d.Start(context.Background(), "en-US"); err == nil {
		t.Fatal("expected dial error")
	}
	if err := d.Stop(context.Background()); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Stop after failed start = %v", err)
	}
}

func TestParseDeepgram(t *testing.T) {
	u, err := parseDeepgram([]byte(`{"type":"Results","is_final":true,"channel":{"alternatives":[{"transcript":" hi there "}]}}`))
	if err != nil {
		t.Fatal(err)
	}
	if u.Transcript != "hi there" || !u.IsFinal || u.SpeechFinal {
		t.Errorf("got %+v", u)
	}
	if _, err := parseDeepgram([]byte("{")); err == nil {
		t.Error("expected error for truncated json")
	}
}

func TestDeepgramEndpoint(t *testing.T) {
	raw, err := deepgramEndpoint(streamConfig{SampleRate: 16000, Channels: 1, Language: "fr-FR"})
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(raw)
	q := u.Query()
	for k, want := range map[string]string{
		"model":           deepgramModel,
		"encoding":        "linear16",
		"sample_rate":     "16000",
		"channels":        "1",
		"language":        "fr-FR",
		"interim_results": "true",
	} {
		if got := q.Get(k); got != want {
			t.Errorf("%s = %q, want %q", k, got, want)
		}
	}
}
