package program

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/postCC42/taskmaster/internal/config"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig(t *testing.T, command string) config.ProgramConfig {
	t.Helper()
	dir := t.TempDir()
	return config.ProgramConfig{
		Command:           command,
		Instances:         1,
		AutoStart:         true,
		AutoRestart:       config.AutoRestartNever,
		StartTime:         1,
		StopTime:          2,
		RestartAttempts:   0,
		StopSignal:        "SIGTERM",
		ExpectedExitCodes: []int{0},
		WorkingDirectory:  "/tmp",
		StdoutLog:         filepath.Join(dir, "out.log"),
		StderrLog:         filepath.Join(dir, "err.log"),
	}
}

func TestStart_HappyPath(t *testing.T) {
	cfg := testConfig(t, "/bin/sleep 60")
	cfg.Instances = 3
	p := New("web", cfg, testLogger())

	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	if !p.IsFullyRunning() {
		t.Fatal("expected all instances running")
	}
	if got := p.Status(); got != "3 out of 3 instances running" {
		t.Fatalf("Status() = %q", got)
	}
	if p.State() != Running {
		t.Fatalf("State() = %v, want Running", p.State())
	}
}

func TestStart_FastFailingExhaustsAttempts(t *testing.T) {
	cfg := testConfig(t, "/bin/false")
	cfg.RestartAttempts = 2

	p := New("flaky", cfg, testLogger())
	err := p.Start()
	if err == nil {
		t.Fatal("expected Start to fail after exhausting attempts")
	}
	if p.State() != Failed {
		t.Fatalf("State() = %v, want Failed", p.State())
	}
}

func TestStop_IsIdempotent(t *testing.T) {
	cfg := testConfig(t, "/bin/sleep 60")
	p := New("web", cfg, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := p.Stop(); err != nil {
		t.Fatalf("first Stop: %v", err)
	}
	if err := p.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if p.RunningInstanceCount() != 0 {
		t.Fatal("expected no running instances after stop")
	}
	if p.State() != Idle {
		t.Fatalf("State() = %v, want Idle", p.State())
	}
}

func TestStop_EscalatesToSigkill(t *testing.T) {
	cfg := testConfig(t, `/bin/sh -c 'trap "" TERM; sleep 30'`)
	cfg.StopTime = 1

	p := New("stubborn", cfg, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- p.Stop() }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not escalate to SIGKILL in time")
	}
	if p.RunningInstanceCount() != 0 {
		t.Fatal("expected no running instances after forced termination")
	}
}

func TestAutoRestart_Never(t *testing.T) {
	cfg := testConfig(t, "/bin/sleep 1")
	cfg.AutoRestart = config.AutoRestartNever
	cfg.StartTime = 0

	p := New("once", cfg, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	time.Sleep(1500 * time.Millisecond)
	if p.RunningInstanceCount() != 0 {
		t.Fatal("expected no relaunch when auto_restart is never")
	}
}

func TestAutoRestart_Unexpected(t *testing.T) {
	cfg := testConfig(t, `/bin/sh -c 'exit 7'`)
	cfg.AutoRestart = config.AutoRestartUnexpected
	cfg.ExpectedExitCodes = []int{0}
	cfg.RestartAttempts = 0
	cfg.StartTime = 1

	p := New("unexpected", cfg, testLogger())
	err := p.Start()
	if err == nil {
		t.Fatal("expected Start to ultimately fail once restart attempts are exhausted")
	}

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) && p.State() != Failed {
		time.Sleep(50 * time.Millisecond)
	}
	if p.State() != Failed {
		t.Fatalf("State() = %v, want Failed", p.State())
	}
}

func TestReload_DynamicOnlyDoesNotRestart(t *testing.T) {
	cfg := testConfig(t, "/bin/sleep 60")
	p := New("web", cfg, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	before := p.RunningInstanceCount()
	mask := 0o002
	candidate := cfg
	candidate.Umask = &mask

	if err := p.Reload(candidate); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if p.RunningInstanceCount() != before {
		t.Fatal("expected a dynamic-only reload to leave running instances untouched")
	}
	if p.Config().Umask == nil || *p.Config().Umask != mask {
		t.Fatal("expected the umask snapshot to be updated")
	}
}

func TestReload_RestartRequiredStopsAndStarts(t *testing.T) {
	cfg := testConfig(t, "/bin/sleep 60")
	p := New("web", cfg, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	candidate := cfg
	candidate.StopSignal = "SIGINT"

	if err := p.Reload(candidate); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	if !p.IsFullyRunning() {
		t.Fatal("expected the program to be restarted and fully running again")
	}
	if p.Config().StopSignal != "SIGINT" {
		t.Fatal("expected the new stop signal to take effect")
	}
}

func TestReload_ScalesInstancesInPlace(t *testing.T) {
	cfg := testConfig(t, "/bin/sleep 60")
	p := New("web", cfg, testLogger())
	if err := p.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop()

	candidate := cfg
	candidate.Instances = 3
	if err := p.Reload(candidate); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) && p.RunningInstanceCount() != 3 {
		time.Sleep(50 * time.Millisecond)
	}
	if p.RunningInstanceCount() != 3 {
		t.Fatalf("RunningInstanceCount() = %d, want 3", p.RunningInstanceCount())
	}
}
