package speech

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"nhooyr.io/websocket"

	"murmur/audio"
)

const (
	deepgramURL   = "wss://api.deepgram.com/v1/listen"
	deepgramModel = "nova-3"

	streamChunkMs      = 100
	streamChunkBytes   = audio.SampleRate * audio.Channels * (audio.BitsPerSample / 8) * streamChunkMs / 1000
	streamQueue        = 64
	streamEvents       = 16
	streamFinalizeIdle = 200 * time.Millisecond
	streamFinalizeMax  = 1000 * time.Millisecond
)

type streamConfig struct {
	SampleRate int
	Channels   int
	Language   string
	Model      string
}

type rawStream interface {
	Send(pcm []byte) error
	CloseSend() error
	Recv() (streamUpdate, error)
	Close() error
}

type streamUpdate struct {
	Transcript   string
	IsFinal      bool
	SpeechFinal  bool
	FromFinalize bool
}

// Deepgram streams microphone audio to Deepgram's live recognition API. It
// captures from its own device, independent of any metering capture.
type Deepgram struct {
	apiKey     string
	device     string
	Model      string
	newContext func() (audio.Context, error)
	dial       func(ctx context.Context, apiKey string, cfg streamConfig) (rawStream, error)

	mu   sync.Mutex
	actx audio.Context
	cur  *liveStream
}

func NewDeepgram(apiKey, device string) *Deepgram {
	return &Deepgram{
		apiKey:     apiKey,
		device:     device,
		Model:      deepgramModel,
		newContext: audio.NewContext,
		dial:       dialDeepgram,
	}
}

func (d *Deepgram) audioContext() (audio.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.actx != nil {
		return d.actx, nil
	}
	ctx, err := d.newContext()
	if err != nil {
		return nil, err
	}
	d.actx = ctx
	return ctx, nil
}

// Usable reports whether an API key is configured and audio capture is
// available on this machine.
func (d *Deepgram) Usable() bool {
	if d.apiKey == "" {
		return false
	}
	_, err := d.audioContext()
	return err == nil
}

func (d *Deepgram) Start(ctx context.Context, locale string) (<-chan Event, error) {
	d.mu.Lock()
	busy := d.cur != nil
	d.mu.Unlock()
	if busy {
		return nil, ErrAlreadyStarted
	}

	actx, err := d.audioContext()
	if err != nil {
		return nil, fmt.Errorf("audio context: %w", err)
	}
	cfg := audio.DefaultCaptureConfig()
	dev, err := actx.NewCapture(audio.FindDevice(actx, d.device), cfg)
	if err != nil {
		return nil, fmt.Errorf("capture: %w", err)
	}
	ws, err := d.dial(ctx, d.apiKey, streamConfig{
		SampleRate: int(cfg.SampleRate),
		Channels:   int(cfg.Channels),
		Language:   locale,
		Model:      d.Model,
	})
	if err != nil {
		dev.Close()
		return nil, fmt.Errorf("deepgram dial: %w", err)
	}

	s := newLiveStream(ws, dev)
	if err := s.start(); err != nil {
		s.finish(context.Background(), false)
		return nil, fmt.Errorf("capture start: %w", err)
	}
	d.mu.Lock()
	d.cur = s
	d.mu.Unlock()
	return s.events, nil
}

func (d *Deepgram) take() *liveStream {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := d.cur
	d.cur = nil
	return s
}

func (d *Deepgram) Stop(ctx context.Context) error {
	s := d.take()
	if s == nil {
		return ErrNotStarted
	}
	return s.finish(ctx, true)
}

func (d *Deepgram) Cancel() error {
	s := d.take()
	if s == nil {
		return ErrNotStarted
	}
	return s.finish(context.Background(), false)
}

// Close cancels any run and releases the audio context.
func (d *Deepgram) Close() {
	d.Cancel()
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.actx != nil {
		d.actx.Close()
		d.actx = nil
	}
}

// liveStream is one recognition run: capture → sender → websocket →
// receiver → events.
type liveStream struct {
	ws     rawStream
	dev    audio.CaptureDevice
	ctx    context.Context
	cancel context.CancelFunc

	audioCh   chan []byte
	events    chan Event
	sendDone  chan struct{}
	recvDone  chan struct{}
	finalized chan struct{}
	finalOnce sync.Once

	feedMu     sync.Mutex
	feedBuf    []byte
	feedClosed bool

	mu        sync.Mutex
	committed string
	closing   bool
	err       error
}

func newLiveStream(ws rawStream, dev audio.CaptureDevice) *liveStream {
	ctx, cancel := context.WithCancel(context.Background())
	return &liveStream{
		ws:        ws,
		dev:       dev,
		ctx:       ctx,
		cancel:    cancel,
		audioCh:   make(chan []byte, streamQueue),
		events:    make(chan Event, streamEvents),
		sendDone:  make(chan struct{}),
		recvDone:  make(chan struct{}),
		finalized: make(chan struct{}),
	}
}

func (s *liveStream) start() error {
	go s.runSender()
	go s.runReceiver()
	s.dev.SetCallback(s.feed)
	return s.dev.Start()
}

// feed runs on the audio thread and must not block; chunks are dropped
// when the sender falls behind.
func (s *liveStream) feed(pcm []byte, _ uint32) {
	s.feedMu.Lock()
	defer s.feedMu.Unlock()
	if s.feedClosed {
		return
	}
	s.feedBuf = append(s.feedBuf, pcm...)
	for len(s.feedBuf) >= streamChunkBytes {
		chunk := make([]byte, streamChunkBytes)
		copy(chunk, s.feedBuf[:streamChunkBytes])
		s.feedBuf = s.feedBuf[streamChunkBytes:]
		select {
		case s.audioCh <- chunk:
		default:
		}
	}
}

func (s *liveStream) emit(ev Event) {
	select {
	case s.events <- ev:
	case <-s.ctx.Done():
	}
}

func (s *liveStream) setErr(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

func (s *liveStream) isClosing() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closing
}

func (s *liveStream) runSender() {
	defer close(s.sendDone)
	for chunk := range s.audioCh {
		if err := s.ws.Send(chunk); err != nil {
			if !s.isClosing() {
				s.setErr(err)
				s.emit(RecognitionError(fmt.Errorf("send: %w", err)))
			}
			return
		}
	}
	if s.isClosing() {
		return
	}
	if err := s.ws.CloseSend(); err != nil {
		s.setErr(err)
	}
}

func (s *liveStream) runReceiver() {
	defer close(s.recvDone)
	for {
		update, err := s.ws.Recv()
		if err != nil {
			if !s.isClosing() {
				s.setErr(err)
				s.emit(RecognitionError(fmt.Errorf("recv: %w", err)))
			}
			return
		}
		if update.FromFinalize {
			s.finalOnce.Do(func() { close(s.finalized) })
		}
		if text, ok := s.apply(update); ok {
			s.emit(Partial(text))
		}
	}
}

// apply folds an update into the committed text and returns the full
// transcript to publish.
func (s *liveStream) apply(u streamUpdate) (string, bool) {
	transcript := strings.TrimSpace(u.Transcript)
	s.mu.Lock()
	defer s.mu.Unlock()
	if transcript == "" {
		return "", false
	}
	if u.IsFinal || u.SpeechFinal || u.FromFinalize {
		s.committed = joinText(s.committed, transcript)
		return s.committed, true
	}
	return joinText(s.committed, transcript), true
}

func joinText(a, b string) string {
	if a == "" {
		return b
	}
	return a + " " + b
}

// finish tears the run down. A graceful finish flushes buffered audio and
// waits briefly for Deepgram's finalize response; otherwise everything
// pending is dropped.
func (s *liveStream) finish(ctx context.Context, graceful bool) error {
	s.dev.Stop()
	s.dev.ClearCallback()
	s.dev.Close()

	s.feedMu.Lock()
	tail := s.feedBuf
	s.feedBuf = nil
	s.feedClosed = true
	s.feedMu.Unlock()

	if !graceful {
		s.mu.Lock()
		s.closing = true
		s.mu.Unlock()
		s.cancel()
	} else if len(tail) > 0 {
		select {
		case s.audioCh <- tail:
		case <-s.sendDone:
		}
	}
	close(s.audioCh)
	<-s.sendDone

	if graceful {
		select {
		case <-s.finalized:
			time.Sleep(streamFinalizeIdle)
		case <-time.After(streamFinalizeMax):
		case <-ctx.Done():
		}
	}

	s.mu.Lock()
	s.closing = true
	s.mu.Unlock()
	s.cancel()
	s.ws.Close()
	<-s.recvDone
	close(s.events)

	if !graceful {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

type deepgramResponse struct {
	Type         string `json:"type"`
	IsFinal      bool   `json:"is_final"`
	SpeechFinal  bool   `json:"speech_final"`
	FromFinalize bool   `json:"from_finalize"`
	Channel      struct {
		Alternatives []struct {
			Transcript string `json:"transcript"`
		} `json:"alternatives"`
	} `json:"channel"`
}

func parseDeepgram(data []byte) (streamUpdate, error) {
	var resp deepgramResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return streamUpdate{}, err
	}
	transcript := ""
	if len(resp.Channel.Alternatives) > 0 {
		transcript = resp.Channel.Alternatives[0].Transcript
	}
	return streamUpdate{
		Transcript:   strings.TrimSpace(transcript),
		IsFinal:      resp.IsFinal,
		SpeechFinal:  resp.SpeechFinal,
		FromFinalize: resp.FromFinalize,
	}, nil
}

func deepgramEndpoint(cfg streamConfig) (string, error) {
	endpoint, err := url.Parse(deepgramURL)
	if err != nil {
		return "", err
	}
	q := endpoint.Query()
	model := cfg.Model
	if model == "" {
		model = deepgramModel
	}
	q.Set("model", model)
	q.Set("encoding", "linear16")
	q.Set("interim_results", "true")
	q.Set("punctuate", "true")
	if cfg.SampleRate > 0 {
		q.Set("sample_rate", strconv.Itoa(cfg.SampleRate))
	}
	if cfg.Channels > 0 {
		q.Set("channels", strconv.Itoa(cfg.Channels))
	}
	if cfg.Language != "" {
		q.Set("language", cfg.Language)
	}
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

type deepgramConn struct {
	conn   *websocket.Conn
	ctx    context.Context
	cancel context.CancelFunc
}

func dialDeepgram(ctx context.Context, apiKey string, cfg streamConfig) (rawStream, error) {
	endpoint, err := deepgramEndpoint(cfg)
	if err != nil {
		return nil, err
	}
	headers := http.Header{}
	headers.Set("Authorization", "Token "+apiKey)

	conn, _, err := websocket.Dial(ctx, endpoint, &websocket.DialOptions{HTTPHeader: headers})
	if err != nil {
		return nil, err
	}
	// The dial context only bounds the handshake; the stream lives until
	// Close.
	streamCtx, cancel := context.WithCancel(context.Background())
	return &deepgramConn{conn: conn, ctx: streamCtx, cancel: cancel}, nil
}

func (c *deepgramConn) Send(pcm []byte) error {
	return c.conn.Write(c.ctx, websocket.MessageBinary, pcm)
}

func (c *deepgramConn) CloseSend() error {
	return c.conn.Write(c.ctx, websocket.MessageText, []byte(`{"type":"Finalize"}`))
}

func (c *deepgramConn) Recv() (streamUpdate, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return streamUpdate{}, err
	}
	return parseDeepgram(data)
}

func (c *deepgramConn) Close() error {
	c.cancel()
	return c.conn.Close(websocket.StatusNormalClosure, "")
}
