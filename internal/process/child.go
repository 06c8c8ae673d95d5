package process

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartOptions describes everything needed to launch one child instance.
// It is a plain data carrier; internal/program owns the policy that fills it
// in from a program configuration snapshot.
type StartOptions struct {
	Command     string
	WorkingDir  string
	Umask       *int // nil means "unset": inherit the supervisor's umask
	Env         []string
	StdoutPath  string
	StderrPath  string
}

// Child is one running instance of a program: an *exec.Cmd plus the file
// handles opened for its stdout/stderr redirection, which the caller must
// close once the child has been reaped.
type Child struct {
	Cmd    *exec.Cmd
	Pid    int
	Stdout *os.File
	Stderr *os.File
}

// Start launches one child per opts. On success it returns a Child whose
// Pid is populated; the caller is responsible for reaping it and for
// calling Close to release the log file descriptors.
//
// Go's os/exec has no fork-time hook to apply umask only to the child the
// way C's fork()+umask()+exec() does, so the umask is applied to the whole
// process for the brief window around Start and restored immediately after
// forking. This is a documented, accepted race: concurrent calls to Start
// can observe each other's transient umask. It is not merely theoretical —
// each program's monitor goroutine calls Start independently on
// auto-restart, fully concurrently with the controller thread and with
// every other program's monitor — but it is non-gating, matching the
// umask race already accepted for reload.
func Start(opts StartOptions) (*Child, error) {
	cmd := BuildCommand(opts.Command)
	if opts.WorkingDir != "" {
		cmd.Dir = opts.WorkingDir
	}
	if len(opts.Env) > 0 {
		cmd.Env = opts.Env
	}
	setProcessGroup(cmd)

	outFile, err := openAppend(opts.StdoutPath)
	if err != nil {
		return nil, fmt.Errorf("open stdout log: %w", err)
	}
	errFile, err := openAppend(opts.StderrPath)
	if err != nil {
		if outFile != nil {
			_ = outFile.Close()
		}
		return nil, fmt.Errorf("open stderr log: %w", err)
	}
	if outFile != nil {
		cmd.Stdout = outFile
	}
	if errFile != nil {
		cmd.Stderr = errFile
	}

	var restore func()
	if opts.Umask != nil {
		old := syscall.Umask(*opts.Umask)
		restore = func() { syscall.Umask(old) }
	}
	err = cmd.Start()
	if restore != nil {
		restore()
	}
	if err != nil {
		if outFile != nil {
			_ = outFile.Close()
		}
		if errFile != nil {
			_ = errFile.Close()
		}
		return nil, err
	}

	return &Child{Cmd: cmd, Pid: cmd.Process.Pid, Stdout: outFile, Stderr: errFile}, nil
}

// Close releases the log file descriptors held for this child. Safe to call
// once the child has exited and been reaped.
func (c *Child) Close() {
	if c.Stdout != nil {
		_ = c.Stdout.Close()
	}
	if c.Stderr != nil {
		_ = c.Stderr.Close()
	}
}

// openAppend opens path for append, creating it if missing, mode 0644.
// No rotation is performed: this is the program's own stdout/stderr log,
// not the supervisor's operational log.
func openAppend(path string) (*os.File, error) {
	if path == "" {
		return nil, nil
	}
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
}
