package log

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func setupLogDir(t *testing.T) string {
	t.Helper()
	tmp := t.TempDir()
	SetDir(tmp)
	t.Cleanup(func() { Close(); SetDir("") })
	return tmp
}

func readDiag(t *testing.T, dir string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, diagName))
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func TestResolveDirFlag(t *testing.T) {
	got, err := ResolveDir("/tmp/mylog")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/mylog" {
		t.Errorf("got %q, want /tmp/mylog", got)
	}
}

func TestResolveDirFlagRelative(t *testing.T) {
	got, err := ResolveDir("logs")
	if err != nil {
		t.Fatal(err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if want := filepath.Join(wd, "logs"); got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}

func TestResolveDirEnv(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/murmur-env-log")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/murmur-env-log" {
		t.Errorf("got %q, want /tmp/murmur-env-log", got)
	}
}

func TestResolveDirFlagBeatsEnv(t *testing.T) {
	t.Setenv(EnvDir, "/tmp/murmur-env-log")
	got, _ := ResolveDir("/tmp/flag")
	if got != "/tmp/flag" {
		t.Errorf("got %q, want /tmp/flag", got)
	}
}

func TestResolveDirDefault(t *testing.T) {
	t.Setenv(EnvDir, "")
	got, err := ResolveDir("")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(got, "murmur") {
		t.Errorf("default dir %q does not mention murmur", got)
	}
}

func TestInitCreatesFile(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(tmp, diagName)); err != nil {
		t.Errorf("%s not created: %v", diagName, err)
	}
	if _, err := os.Stat(filepath.Join(tmp, "transcribe_log.txt")); err == nil {
		t.Error("transcript log must not be written")
	}
}

func TestSessionEvents(t *testing.T) {
	tmp := setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}

	SessionStart("abc", "metering", "en-US")
	Degrade("abc", "capture_failure", errors.New("device gone"))
	SessionEnd("abc", "completed", 11, 40, 2)

	out := readDiag(t, tmp)
	for _, want := range []string{
		"session_start", "session=abc", "mode=metering", "locale=en-US",
		"degrade", "kind=capture_failure", "device gone",
		"session_end", "outcome=completed", "chars=11", "ticks=40", "recognition_errors=2",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("log missing %q:\n%s", want, out)
		}
	}
}

func TestNoopBeforeInit(t *testing.T) {
	tmp := setupLogDir(t)
	Info("dropped")
	SessionStart("x", "simulated", "en-US")
	if _, err := os.Stat(filepath.Join(tmp, diagName)); err == nil {
		t.Error("log written before Init")
	}
}

func TestCloseIdempotent(t *testing.T) {
	setupLogDir(t)
	if err := Init(); err != nil {
		t.Fatal(err)
	}
	Close()
	Close() // should not panic
}
