package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime/debug"
	"strings"
	"sync"
	"time"

	"murmur/audio"
	"murmur/beep"
	"murmur/clipboard"
	"murmur/dictation"
	"murmur/doctor"
	"murmur/hotkey"
	"murmur/log"
	"murmur/meter"
	"murmur/shutdown"
	"murmur/speech"
)

var version = "dev"

type options struct {
	locale    string
	cadence   time.Duration
	bars      int
	logPath   string
	fake      bool
	simulate  bool
	autoPaste bool
	hybrid    bool
	longPress time.Duration
	doctor    bool
	version   bool
	device    string
	setup     bool
	tui       bool
	quiet     bool
}

func parseFlags(args []string) (options, error) {
	var o options
	fs := flag.NewFlagSet("murmur", flag.ContinueOnError)
	fs.StringVar(&o.locale, "locale", dictation.DefaultLocale, "Recognition locale (e.g. en-US, de-DE)")
	fs.DurationVar(&o.cadence, "cadence", dictation.DefaultCadence, "Level graph sampling interval")
	fs.IntVar(&o.bars, "bars", 48, "Number of bars in the level graph")
	fs.StringVar(&o.logPath, "logpath", "", "log directory path (default: OS-specific location, use ./ for current dir)")
	fs.BoolVar(&o.fake, "fake", false, "Use a scripted speech engine instead of Deepgram")
	fs.BoolVar(&o.simulate, "simulate", false, "Never meter the microphone; always draw simulated levels")
	fs.BoolVar(&o.autoPaste, "autopaste", true, "Auto-paste to focused window after dictation")
	fs.BoolVar(&o.hybrid, "hybrid", false, "Enable hybrid tap+hold hotkey mode")
	fs.DurationVar(&o.longPress, "longpress", 350*time.Millisecond, "Long-press threshold for hold vs tap (e.g., 350ms)")
	fs.BoolVar(&o.doctor, "doctor", false, "Run system diagnostics and exit")
	fs.BoolVar(&o.version, "version", false, "Print version and exit")
	fs.StringVar(&o.device, "device", "", "Use named microphone device")
	fs.BoolVar(&o.setup, "setup", false, "Select microphone device interactively")
	fs.BoolVar(&o.tui, "tui", true, "Run with terminal UI")
	fs.BoolVar(&o.quiet, "quiet", false, "Disable audio cues")
	if err := fs.Parse(args); err != nil {
		return o, err
	}
	if o.bars <= 0 {
		return o, fmt.Errorf("-bars must be positive, got %d", o.bars)
	}
	if o.cadence <= 0 {
		return o, fmt.Errorf("-cadence must be positive, got %v", o.cadence)
	}
	return o, nil
}

func (o options) sessionConfig() dictation.Config {
	return dictation.Config{
		Locale:  o.locale,
		Cadence: o.cadence,
		Bars:    o.bars,
	}
}

func setupCrashLog() {
	crashPath := filepath.Join(log.Dir(), "crash_log.txt")
	crashFile, err := os.OpenFile(crashPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return
	}
	fmt.Fprintf(crashFile, "\n=== Session %s [pid=%d] ===\n", time.Now().Format("2006-01-02 15:04:05"), os.Getpid())
	debug.SetCrashOutput(crashFile, debug.CrashOptions{})
}

const unavailableText = "dictation unavailable: speech recognition cannot run (check DEEPGRAM_API_KEY)"

// notice is the user-facing side of an unavailable engine.
type notice struct{ tui bool }

func (n notice) NotifyUnavailable() {
	beep.PlayError()
	if n.tui {
		tuiSend(noticeMsg{Text: unavailableText})
		return
	}
	fmt.Fprintln(os.Stderr, unavailableText)
}

// sink delivers through the clipboard and tells the UI.
type sink struct {
	clip *clipboard.Sink
}

func (s sink) Deliver(text string) error {
	if err := s.clip.Deliver(text); err != nil {
		tuiSend(noticeMsg{Text: "could not deliver text: " + err.Error()})
		return err
	}
	tuiSend(committedMsg{Text: text})
	return nil
}

// cues plays session sounds and forwards events to the display. sess is
// set right after the session is built, before any event can fire.
type cues struct {
	next dictation.EventSink
	sess *dictation.Session
}

func (c *cues) StateChanged(s dictation.State) {
	if s == dictation.StateActive {
		beep.PlayStart()
	}
	c.next.StateChanged(s)
}

// LevelsChanged also refreshes the mode, which can drop to simulated
// mid-session.
func (c *cues) LevelsChanged(l []float64) {
	tuiSend(modeMsg{Mode: c.sess.Mode()})
	c.next.LevelsChanged(l)
}

func (c *cues) PartialChanged(text string) { c.next.PartialChanged(text) }

func (c *cues) SessionEnded(o dictation.Outcome) {
	switch o {
	case dictation.OutcomeCompleted:
		beep.PlayCommit()
	case dictation.OutcomeCancelled:
		beep.PlayCancel()
	}
	c.next.SessionEnded(o)
}

// printEvents is the display when running without the TUI.
type printEvents struct{}

func (printEvents) StateChanged(s dictation.State)   { fmt.Println("state:", s) }
func (printEvents) LevelsChanged([]float64)          {}
func (printEvents) SessionEnded(o dictation.Outcome) { fmt.Println("session:", o) }

func (printEvents) PartialChanged(text string) {
	if text != "" {
		fmt.Println("  ...", text)
	}
}

func newEngine(o options) speech.Engine {
	if o.fake {
		f := speech.NewFake()
		f.Script(strings.Fields("hello world this is murmur speaking"), 400*time.Millisecond)
		return f
	}
	return speech.NewDeepgram(os.Getenv("DEEPGRAM_API_KEY"), o.device)
}

func newCapability(o options) (meter.Capability, func()) {
	if o.simulate {
		return nil, func() {}
	}
	mic := meter.NewMicCapability(o.device)
	return mic, mic.Close
}

func run() {
	o, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(2)
	}

	logPath, err := log.ResolveDir(o.logPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: failed to resolve log directory: %v\n", err)
		os.Exit(1)
	}
	log.SetDir(logPath)
	if err := log.EnsureDir(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not create log directory: %v\n", err)
	}
	setupCrashLog()

	if o.version {
		fmt.Printf("murmur %s\n", version)
		os.Exit(0)
	}

	if o.setup && o.device == "" {
		ctx, err := audio.NewContext()
		if err != nil {
			fmt.Printf("Error initializing audio: %v\n", err)
			os.Exit(1)
		}
		dev, err := audio.SelectDevice(ctx)
		ctx.Close()
		switch {
		case errors.Is(err, audio.ErrPickerAborted):
			os.Exit(0)
		case err != nil:
			fmt.Printf("Warning: device selection failed: %v\nFalling back to default device\n", err)
		case dev != nil:
			o.device = dev.Name
		}
	}

	if o.doctor {
		os.Exit(doctor.Run(doctor.Config{Device: o.device, APIKey: os.Getenv("DEEPGRAM_API_KEY")}))
	}

	if err := log.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not init logging: %v\n", err)
	}
	defer log.Close()
	log.Infof("murmur %s starting (locale=%s fake=%v simulate=%v)", version, o.locale, o.fake, o.simulate)

	if o.quiet {
		beep.Disable()
	}
	go beep.Init()

	if o.autoPaste {
		if err := clipboard.Init(); err != nil {
			log.Warnf("paste init failed: %v", err)
			fmt.Printf("Warning: paste init failed: %v\n", err)
		}
	}

	capability, closeCapability := newCapability(o)
	defer closeCapability()
	engine := newEngine(o)
	if dg, ok := engine.(*speech.Deepgram); ok {
		defer dg.Close()
	}

	var display dictation.EventSink = printEvents{}
	if o.tui {
		display = tuiEvents{}
	}
	events := &cues{next: display}
	sess := dictation.New(o.sessionConfig(), dictation.Deps{
		Engine:     engine,
		Capability: capability,
		Sink:       sink{clip: clipboard.NewSink(o.autoPaste)},
		Notice:     notice{tui: o.tui},
		Events:     events,
	})
	events.sess = sess

	var quitOnce sync.Once
	quit := make(chan struct{})
	requestQuit := func() { quitOnce.Do(func() { close(quit) }) }

	stopSignals := shutdown.OnSignal(context.Background(), func(sig os.Signal) {
		log.Info("signal: " + sig.String())
		requestQuit()
	})
	defer stopSignals()

	hk := hotkey.New()
	if err := hk.Register(); err != nil {
		log.Errorf("hotkey register error: %v", err)
		fmt.Printf("Warning: hotkey unavailable: %v\n", err)
	} else {
		defer hk.Unregister()
		go driveHotkey(sess, newTrigger(hk, o, sess), quit)
	}

	if o.tui {
		p := NewTUIProgram(sess, o.hybrid)
		tuiMu.Lock()
		tuiProgram = p
		tuiMu.Unlock()
		tuiSend(deviceMsg{Text: deviceLine(o)})
		go func() {
			<-quit
			p.Quit()
		}()
		if _, err := p.Run(); err != nil {
			log.Errorf("TUI error: %v", err)
		}
		requestQuit()
	} else {
		fmt.Printf("murmur %s: %s to dictate, Ctrl+C to quit\n", version, hotkey.Combo)
		<-quit
	}

	sess.Shutdown()
	log.Info("shutdown complete")
}

// newTrigger asks the session on every press whether one is running, so
// starts and stops from the TUI or a refused start never leave the key out
// of step.
func newTrigger(hk hotkey.Hotkey, o options, sess *dictation.Session) hotkey.Trigger {
	running := func() bool { return sess.State() != dictation.StateIdle }
	if o.hybrid {
		return hotkey.NewHybrid(hk, o.longPress, running)
	}
	return hotkey.NewToggle(hk, running)
}

// driveHotkey maps hotkey gestures onto the session until quit.
func driveHotkey(sess *dictation.Session, trigger hotkey.Trigger, quit <-chan struct{}) {
	for {
		select {
		case <-quit:
			return
		case ev := <-trigger.Start():
			log.Info("hotkey_start_" + string(ev.Mode))
			sess.Start(context.Background())
		case <-trigger.StopChan():
			log.Info("hotkey_stop")
			sess.Complete()
		}
	}
}

func deviceLine(o options) string {
	name := o.device
	if name == "" {
		name = "system default"
	}
	if o.simulate {
		return "mic: " + name + " (levels simulated)"
	}
	return "mic: " + name
}
