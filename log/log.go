// Package log writes murmur's diagnostics log. Every helper is a no-op until
// Init succeeds, so libraries and tests can call it unconditionally.
package log

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/rs/zerolog"
)

const (
	EnvDir   = "MURMUR_LOG_PATH"
	diagName = "diagnostics_log.txt"
)

var (
	diagLog  zerolog.Logger
	diagFile *os.File
	logMu    sync.Mutex
	logReady bool
	pid      int
	dir      string
)

func ResolveDir(flagPath string) (string, error) {
	// Priority 1: -logpath flag
	if flagPath != "" {
		return absolute(flagPath)
	}
	// Priority 2: MURMUR_LOG_PATH
	if envPath := os.Getenv(EnvDir); envPath != "" {
		return absolute(envPath)
	}
	return getDefaultDir()
}

func absolute(p string) (string, error) {
	if filepath.IsAbs(p) {
		return p, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(wd, p), nil
}

func SetDir(d string) {
	dir = d
}

func Dir() string {
	return dir
}

func EnsureDir() error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	return nil
}

func Init() error {
	logMu.Lock()
	defer logMu.Unlock()

	if err := EnsureDir(); err != nil {
		return err
	}
	pid = os.Getpid()

	f, err := os.OpenFile(filepath.Join(dir, diagName), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return err
	}
	diagFile = f

	consoleWriter := zerolog.ConsoleWriter{
		Out:        diagFile,
		TimeFormat: "2006-01-02 15:04:05",
		NoColor:    true,
	}
	diagLog = zerolog.New(consoleWriter).With().Timestamp().Int("pid", pid).Logger()

	logReady = true
	return nil
}

func Close() {
	logMu.Lock()
	defer logMu.Unlock()
	if diagFile != nil {
		diagFile.Close()
		diagFile = nil
	}
	logReady = false
}

func Info(msg string) {
	if logReady {
		diagLog.Info().Msg(msg)
	}
}

func Infof(format string, args ...any) {
	if logReady {
		diagLog.Info().Msg(fmt.Sprintf(format, args...))
	}
}

func Error(msg string) {
	if logReady {
		diagLog.Error().Msg(msg)
	}
}

func Errorf(format string, args ...any) {
	if logReady {
		diagLog.Error().Msg(fmt.Sprintf(format, args...))
	}
}

func Warn(msg string) {
	if logReady {
		diagLog.Warn().Msg(msg)
	}
}

func Warnf(format string, args ...any) {
	if logReady {
		diagLog.Warn().Msg(fmt.Sprintf(format, args...))
	}
}

func SessionStart(id, mode, locale string) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("mode", mode).
		Str("locale", locale).
		Msg("session_start")
}

// SessionEnd records how a session finished. The transcript itself is never
// logged, only its length.
func SessionEnd(id, outcome string, chars, ticks, recognitionErrors int) {
	if !logReady {
		return
	}
	diagLog.Info().
		Str("session", id).
		Str("outcome", outcome).
		Int("chars", chars).
		Int("ticks", ticks).
		Int("recognition_errors", recognitionErrors).
		Msg("session_end")
}

// Degrade records a failure that a session absorbed.
func Degrade(id, kind string, err error) {
	if !logReady {
		return
	}
	ev := diagLog.Warn().Str("session", id).Str("kind", kind)
	if err != nil {
		ev = ev.Err(err)
	}
	ev.Msg("degrade")
}
