package process

import (
	"os"
	"testing"
	"time"
)

func TestTryReap_StillRunning(t *testing.T) {
	child, err := Start(StartOptions{Command: "/bin/sleep 5"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer func() {
		_ = SignalGroup(child.Pid, Signals["SIGKILL"])
		TryReap(child.Pid)
		child.Close()
	}()

	if _, exited := TryReap(child.Pid); exited {
		t.Fatal("expected the child to still be running")
	}
}

func TestTryReap_ExitCode(t *testing.T) {
	child, err := Start(StartOptions{Command: "/bin/sh -c 'exit 7'"})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer child.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if outcome, exited := TryReap(child.Pid); exited {
			if outcome.Signaled || outcome.ExitCode != 7 {
				t.Fatalf("unexpected outcome: %+v", outcome)
			}
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected child to exit before the deadline")
}

func TestStart_OpensLogFiles(t *testing.T) {
	dir := t.TempDir()
	outPath := dir + "/out.log"
	errPath := dir + "/err.log"
	child, err := Start(StartOptions{
		Command:    "/bin/sh -c 'echo hi; echo bye 1>&2'",
		StdoutPath: outPath,
		StderrPath: errPath,
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer child.Close()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, exited := TryReap(child.Pid); exited {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if b, err := os.ReadFile(outPath); err != nil || string(b) != "hi\n" {
		t.Fatalf("stdout log = %q, %v; want %q", b, err, "hi\n")
	}
	if b, err := os.ReadFile(errPath); err != nil || string(b) != "bye\n" {
		t.Fatalf("stderr log = %q, %v; want %q", b, err, "bye\n")
	}
}
