package dictation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"murmur/levels"
	"murmur/log"
	"murmur/meter"
	"murmur/speech"
	"murmur/transcript"
)

const stopTimeout = 3 * time.Second

// Session is the dictation state machine. At most one dictation runs at a
// time; Start outside StateIdle is ignored.
type Session struct {
	cfg       Config
	deps      Deps
	events    EventSink
	newTicker func(time.Duration) (<-chan time.Time, func())

	levels  *levels.Buffer
	tracker *transcript.Tracker

	mu       sync.Mutex
	state    State
	id       string
	mode     meter.Mode
	sampler  *meter.Degrading
	run      *run
	settled  chan struct{} // closed on return to StateIdle
	aborted  bool          // Shutdown arrived while requesting
	shutdown bool
}

// run is the loop goroutine of one active session.
type run struct {
	id           string
	events       <-chan speech.Event
	stopTicks    chan struct{}
	ticksStopped chan struct{}
	quit         chan struct{}
	done         chan struct{}
	ticks        int // owned by the loop until done
}

func New(cfg Config, deps Deps) *Session {
	cfg = cfg.withDefaults()
	events := deps.Events
	if events == nil {
		events = nopEvents{}
	}
	return &Session{
		cfg:       cfg,
		deps:      deps,
		events:    events,
		newTicker: realTicker,
		levels:    levels.New(cfg.Bars, cfg.Baseline, levels.DisplayMin, levels.DisplayMax),
		tracker:   transcript.New(),
		mode:      meter.ModeSimulated,
	}
}

func realTicker(d time.Duration) (<-chan time.Time, func()) {
	t := time.NewTicker(d)
	return t.C, t.Stop
}

func (s *Session) Config() Config { return s.cfg }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ID returns the current or most recent session ID.
func (s *Session) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.id
}

// Mode reports which sampler feeds the graph, or fed it last.
func (s *Session) Mode() meter.Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sampler != nil {
		return s.sampler.Mode()
	}
	return s.mode
}

// Levels returns the bar graph, oldest sample first.
func (s *Session) Levels() []float64 { return s.levels.Snapshot() }

// Partial returns the live transcript.
func (s *Session) Partial() string { return s.tracker.Current() }

// Start begins a session. It returns once the session is active or has
// been refused or rolled back.
func (s *Session) Start(ctx context.Context) {
	s.mu.Lock()
	if s.state != StateIdle || s.shutdown {
		s.mu.Unlock()
		return
	}
	if !s.deps.Engine.Usable() {
		s.mu.Unlock()
		s.handleFailure("", KindUnsupported, nil)
		s.events.SessionEnded(OutcomeUnavailable)
		return
	}
	id := uuid.NewString()
	s.state = StateRequesting
	s.id = id
	s.settled = make(chan struct{})
	s.mu.Unlock()
	s.events.StateChanged(StateRequesting)

	sampler := s.openSampler(ctx, id)
	s.tracker.Open()
	s.levels.Reset()
	s.events.PartialChanged("")

	evs, err := s.deps.Engine.Start(ctx, s.cfg.Locale)
	if err != nil {
		s.handleFailure(id, KindEngineStartFailure, err)
		mode := sampler.Mode()
		if cerr := sampler.Close(); cerr != nil {
			s.handleFailure(id, KindTeardownFailure, cerr)
		}
		s.tracker.Seal()
		s.tracker.Clear()
		s.levels.Reset()
		s.mu.Lock()
		s.mode = mode
		s.aborted = false
		s.becomeIdle()
		s.mu.Unlock()
		log.SessionEnd(id, OutcomeEngineFailed.String(), 0, 0, 0)
		s.events.StateChanged(StateIdle)
		s.events.SessionEnded(OutcomeEngineFailed)
		return
	}

	r := &run{
		id:           id,
		events:       evs,
		stopTicks:    make(chan struct{}),
		ticksStopped: make(chan struct{}),
		quit:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	s.mu.Lock()
	s.sampler = sampler
	s.run = r
	aborted := s.aborted
	s.aborted = false
	if aborted {
		s.state = StateStopping
	} else {
		s.state = StateActive
	}
	s.mu.Unlock()

	log.SessionStart(id, sampler.Mode().String(), s.cfg.Locale)
	go s.loop(r, sampler)

	if aborted {
		s.teardown(id, r, sampler, OutcomeCancelled)
		return
	}
	s.events.StateChanged(StateActive)
}

// openSampler negotiates the sampler mode and opens the capture if metering
// was granted. Any failure lands on the simulated sampler.
func (s *Session) openSampler(ctx context.Context, id string) *meter.Degrading {
	sim := meter.NewSimulated(s.deps.Rand)
	onDegrade := func(err error) { s.handleFailure(id, KindCaptureFailure, err) }

	mode, reason := meter.Negotiate(ctx, s.deps.Capability)
	if reason != nil {
		s.handleFailure(id, KindPermissionDenied, reason)
	}
	if mode != meter.ModeMetering {
		return meter.NewDegrading(nil, sim, onDegrade)
	}
	capture, err := s.deps.Capability.Open(ctx)
	if err != nil {
		s.handleFailure(id, KindCaptureFailure, meter.WrapCapture("open", err))
		return meter.NewDegrading(nil, sim, onDegrade)
	}
	return meter.NewDegrading(meter.NewMetering(capture), sim, onDegrade)
}

// loop owns the tick cadence and the engine's events for one session, so
// no two handlers ever run at once.
func (s *Session) loop(r *run, sampler *meter.Degrading) {
	defer close(r.done)

	tick, stopTicker := s.newTicker(s.cfg.Cadence)
	stopTicks := r.stopTicks
	events := r.events
	for {
		select {
		case <-stopTicks:
			stopTicker()
			tick, stopTicks = nil, nil
			close(r.ticksStopped)
		case <-tick:
			s.levels.Push(sampler.Tick())
			r.ticks++
			s.events.LevelsChanged(s.levels.Snapshot())
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			s.handleEvent(r.id, ev)
		case <-r.quit:
			// Results the engine flushed while stopping.
			for events != nil {
				select {
				case ev, ok := <-events:
					if !ok {
						events = nil
						continue
					}
					s.handleEvent(r.id, ev)
				default:
					events = nil
				}
			}
			return
		}
	}
}

func (s *Session) handleEvent(id string, ev speech.Event) {
	switch ev.Kind {
	case speech.EventPartial:
		if s.tracker.OnPartialResult(ev.Text) {
			s.events.PartialChanged(ev.Text)
		}
	case speech.EventError:
		s.tracker.OnError(ev.Err)
		s.handleFailure(id, KindRecognitionError, ev.Err)
	}
}

// Complete ends the active session and delivers the transcript if there is
// one. It is a no-op unless the session is active.
func (s *Session) Complete() { s.stop(OutcomeCompleted) }

// Cancel ends the active session and discards the transcript. It is a no-op
// unless the session is active.
func (s *Session) Cancel() { s.stop(OutcomeCancelled) }

func (s *Session) stop(outcome Outcome) {
	s.mu.Lock()
	if s.state != StateActive {
		s.mu.Unlock()
		return
	}
	s.state = StateStopping
	id, r, sampler := s.id, s.run, s.sampler
	s.mu.Unlock()
	s.events.StateChanged(StateStopping)
	s.teardown(id, r, sampler, outcome)
}

// Shutdown cancels whatever is running and waits for the session to settle.
// Later calls to Start are ignored. Safe in any state.
func (s *Session) Shutdown() {
	s.mu.Lock()
	s.shutdown = true
	switch s.state {
	case StateIdle:
		s.mu.Unlock()
		return
	case StateActive:
		s.mu.Unlock()
		s.Cancel()
	default:
		if s.state == StateRequesting {
			s.aborted = true
		}
		s.mu.Unlock()
	}
	s.mu.Lock()
	settled := s.settled
	s.mu.Unlock()
	if settled != nil {
		<-settled
	}
}

// teardown stops the ticks, releases the capture, stops the engine and
// then settles the transcript. Every error is absorbed.
func (s *Session) teardown(id string, r *run, sampler *meter.Degrading, outcome Outcome) {
	close(r.stopTicks)
	<-r.ticksStopped

	mode := sampler.Mode()
	if err := sampler.Close(); err != nil {
		s.handleFailure(id, KindTeardownFailure, meter.WrapCapture("close", err))
	}

	// The loop keeps draining events while the engine finishes.
	var err error
	if outcome == OutcomeCompleted {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		err = s.deps.Engine.Stop(ctx)
		cancel()
	} else {
		err = s.deps.Engine.Cancel()
	}
	if err != nil && !errors.Is(err, speech.ErrNotStarted) {
		s.handleFailure(id, KindTeardownFailure, err)
	}

	close(r.quit)
	<-r.done

	s.tracker.Seal()
	text := s.tracker.Snapshot()
	_, recErrs := s.tracker.Stats()
	if outcome == OutcomeCompleted && text != "" && s.deps.Sink != nil {
		if err := s.deps.Sink.Deliver(text); err != nil {
			s.handleFailure(id, KindDeliveryFailure, err)
		}
	}
	s.tracker.Clear()
	s.levels.Reset()

	s.mu.Lock()
	s.mode = mode
	s.sampler = nil
	s.run = nil
	s.becomeIdle()
	s.mu.Unlock()

	log.SessionEnd(id, outcome.String(), len(text), r.ticks, recErrs)
	s.events.LevelsChanged(s.levels.Snapshot())
	s.events.PartialChanged("")
	s.events.StateChanged(StateIdle)
	s.events.SessionEnded(outcome)
}

// becomeIdle must be called with s.mu held.
func (s *Session) becomeIdle() {
	s.state = StateIdle
	if s.settled != nil {
		close(s.settled)
		s.settled = nil
	}
}
