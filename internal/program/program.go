// Package program implements the per-program lifecycle engine: the state
// machine that owns a program's child processes, its monitor worker, and
// its current configuration snapshot.
package program

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/postCC42/taskmaster/internal/config"
	"github.com/postCC42/taskmaster/internal/diff"
	"github.com/postCC42/taskmaster/internal/env"
	"github.com/postCC42/taskmaster/internal/metrics"
	"github.com/postCC42/taskmaster/internal/process"
	"github.com/postCC42/taskmaster/internal/taskerr"
)

const monitorPollInterval = 100 * time.Millisecond
const stopTickInterval = 100 * time.Millisecond

// Program is the per-program lifecycle engine described by the system
// overview: it owns its children, its monitor worker, and its current
// configuration snapshot.
type Program struct {
	name   string
	logger *slog.Logger

	mu                  sync.Mutex
	config              config.ProgramConfig
	children            []*process.Child
	state               State
	stopRequested       bool
	suppressAutoRestart bool
	monitorActive       bool
	monitorDone         chan struct{}

	// restartRequests decouples auto-restart from the monitor goroutine: a
	// restart pulls in Start, which can call Stop on exhaustion, which
	// blocks on haltMonitor joining the very goroutine that would be
	// calling it if handleChildExit invoked Start directly. One dedicated
	// worker drains this channel instead; sends coalesce (buffer of 1) so
	// a burst of exits only triggers one pending restart.
	restartRequests chan struct{}
}

// New constructs a Program in the Idle state. It does not start anything.
func New(name string, cfg config.ProgramConfig, logger *slog.Logger) *Program {
	p := &Program{name: name, config: cfg, state: Idle, logger: logger, restartRequests: make(chan struct{}, 1)}
	go p.restartWorker()
	return p
}

// restartWorker runs for the lifetime of the Program, applying auto-restart
// requests raised by the monitor off the monitor's own goroutine.
func (p *Program) restartWorker() {
	for range p.restartRequests {
		if err := p.Start(); err != nil {
			p.logger.Error("auto-restart failed", "program", p.name, "err", err)
		}
	}
}

func (p *Program) Name() string { return p.name }

// Config returns a copy of the current configuration snapshot.
func (p *Program) Config() config.ProgramConfig {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config
}

func (p *Program) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Program) RunningInstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children)
}

func (p *Program) TargetInstanceCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.config.Instances
}

func (p *Program) IsFullyRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.children) == p.config.Instances
}

// Status renders the one-line human-readable summary the `status` command
// prints for this program.
func (p *Program) Status() string {
	running, target := p.RunningInstanceCount(), p.TargetInstanceCount()
	return fmt.Sprintf("%d out of %d instances running", running, target)
}

// Start launches missing instances up to the configured target, retrying
// the whole attempt up to RestartAttempts+1 times before giving up.
func (p *Program) Start() error {
	p.mu.Lock()
	cfg := p.config
	p.mu.Unlock()

	if cfg.Instances < 1 {
		return taskerr.New(taskerr.InvalidConfig, p.name, fmt.Errorf("instances must be >= 1 to start"))
	}

	p.setSuppressAutoRestart(true)
	p.setState(Starting)

	totalAttempts := cfg.RestartAttempts + 1
	var lastErr error
	for attempt := 0; attempt < totalAttempts; attempt++ {
		p.mu.Lock()
		running := len(p.children)
		p.mu.Unlock()

		var spawnedPids []int
		for i := running; i < cfg.Instances; i++ {
			pid, err := p.spawnOne(cfg)
			if err != nil {
				p.logger.Error("spawn failed", "program", p.name, "err", err)
				lastErr = taskerr.New(taskerr.SpawnFailed, p.name, err)
				break
			}
			spawnedPids = append(spawnedPids, pid)
		}

		p.ensureMonitor()

		// len(p.children) == cfg.Instances right after spawning proves
		// nothing: nothing has reaped anything yet, so a child that exits
		// immediately (e.g. a missing executable or /bin/false) still
		// counts as "running" until something waits on it. Give the just-
		// spawned pids one poll interval to either still be alive or have
		// been reaped (by us here, or by the monitor) before trusting the
		// count at all.
		time.Sleep(monitorPollInterval)
		p.settleSpawned(spawnedPids)

		deadline := time.Now().Add(time.Duration(cfg.StartTime) * time.Second)
		for time.Now().Before(deadline) {
			if p.IsFullyRunning() {
				break
			}
			time.Sleep(1 * time.Second)
		}

		if p.IsFullyRunning() {
			p.setSuppressAutoRestart(false)
			p.setState(Running)
			metrics.IncStart(p.name)
			return nil
		}
		p.logger.Error("start attempt failed", "program", p.name, "attempt", attempt+1, "of", totalAttempts)
	}

	p.logger.Error("maximum restart attempts reached", "program", p.name)
	_ = p.Stop()
	p.setState(Failed)
	if lastErr != nil {
		return taskerr.New(taskerr.StartExhausted, p.name, lastErr)
	}
	return taskerr.New(taskerr.StartExhausted, p.name, fmt.Errorf("did not reach fully running within budget"))
}

// spawnOne launches a single child instance, registers it, and returns its
// pid.
func (p *Program) spawnOne(cfg config.ProgramConfig) (int, error) {
	child, err := process.Start(process.StartOptions{
		Command:    cfg.Command,
		WorkingDir: cfg.WorkingDirectory,
		Umask:      cfg.Umask,
		Env:        mergedEnv(cfg.EnvironmentVariables),
		StdoutPath: cfg.StdoutLog,
		StderrPath: cfg.StderrLog,
	})
	if err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.children = append(p.children, child)
	p.mu.Unlock()
	return child.Pid, nil
}

// settleSpawned reaps any of the given pids that have already exited, so
// that a fast-failing child is removed from the running count instead of
// being trusted on the strength of having been spawned a moment ago. A pid
// already reaped by the monitor in the meantime is a harmless no-op here:
// TryReap simply reports it as not-ours-to-reap.
func (p *Program) settleSpawned(pids []int) {
	for _, pid := range pids {
		outcome, exited := process.TryReap(pid)
		if !exited {
			continue
		}
		p.mu.Lock()
		var dead *process.Child
		for _, c := range p.children {
			if c.Pid == pid {
				dead = c
				break
			}
		}
		if dead != nil {
			p.children = removeChild(p.children, dead)
		}
		p.mu.Unlock()
		if dead == nil {
			continue
		}
		dead.Close()
		p.logger.Info("child exited", "program", p.name, "pid", pid, "outcome", outcome.String())
	}
}

// Stop terminates every tracked child, gracefully then forcefully, and
// halts the monitor worker. With no tracked children it only sets the
// state to Idle and returns, leaving the monitor as it is. It is idempotent.
func (p *Program) Stop() error {
	p.mu.Lock()
	if len(p.children) == 0 {
		p.state = Idle
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()

	p.setSuppressAutoRestart(true)
	p.setState(Stopping)
	p.haltMonitor()

	for {
		p.mu.Lock()
		if len(p.children) == 0 {
			p.mu.Unlock()
			break
		}
		child := p.children[0]
		p.mu.Unlock()

		p.terminate(child)

		p.mu.Lock()
		p.children = removeChild(p.children, child)
		p.mu.Unlock()
	}

	p.mu.Lock()
	p.stopRequested = false
	p.state = Idle
	p.mu.Unlock()
	metrics.IncStop(p.name)
	return nil
}

// StopOneInstance stops the most-recently-added instance, used for
// scale-down reloads.
func (p *Program) StopOneInstance() error {
	p.mu.Lock()
	if len(p.children) == 0 {
		p.mu.Unlock()
		return nil
	}
	child := p.children[len(p.children)-1]
	p.mu.Unlock()

	p.terminate(child)

	p.mu.Lock()
	p.children = removeChild(p.children, child)
	if len(p.children) == 0 {
		p.state = Idle
	}
	p.mu.Unlock()
	metrics.IncStop(p.name)
	return nil
}

// terminate runs the graceful-then-forceful stop protocol against one
// child: send stopSignal for stopTime 100ms ticks, escalate to SIGKILL.
func (p *Program) terminate(child *process.Child) {
	cfg := p.Config()
	sig, err := process.ParseSignal(cfg.StopSignal)
	if err != nil {
		sig, _ = process.ParseSignal("SIGTERM")
	}

	if !process.Alive(child.Pid) {
		child.Close()
		return
	}

	for i := 0; i < cfg.StopTime; i++ {
		_ = process.SignalGroup(child.Pid, sig)
		time.Sleep(stopTickInterval)
		if _, ok := process.TryReap(child.Pid); ok {
			child.Close()
			return
		}
		if !process.Alive(child.Pid) {
			child.Close()
			return
		}
	}

	p.logger.Warn("forcing termination", "program", p.name, "pid", child.Pid)
	_ = process.SignalGroup(child.Pid, process.Signals["SIGKILL"])
	for i := 0; i < 100; i++ {
		if _, ok := process.TryReap(child.Pid); ok {
			child.Close()
			return
		}
		time.Sleep(stopTickInterval)
	}
	p.logger.Error("stop failed to reap child after SIGKILL", "program", p.name, "pid", child.Pid)
	child.Close()
}

// Reload applies a new configuration snapshot via the diff engine and
// executes the resulting transition.
func (p *Program) Reload(candidate config.ProgramConfig) error {
	current := p.Config()
	result, err := diff.Diff(p.name, current, candidate)
	if err != nil {
		return err
	}
	if len(result.Changes) == 0 {
		return nil
	}

	p.mu.Lock()
	p.config = candidate
	p.mu.Unlock()

	switch {
	case result.InstancesOnly:
		return p.scaleTo(candidate.Instances)
	case result.RestartRequired:
		if err := p.Stop(); err != nil {
			return err
		}
		if candidate.AutoStart {
			return p.Start()
		}
		return nil
	default:
		// Dynamic-only change (umask and/or expected_exit_codes): the
		// snapshot above already took effect for future children and
		// future exit classifications.
		return nil
	}
}

func (p *Program) scaleTo(target int) error {
	p.mu.Lock()
	current := len(p.children)
	cfg := p.config
	p.mu.Unlock()

	if target > current {
		for i := current; i < target; i++ {
			if _, err := p.spawnOne(cfg); err != nil {
				return taskerr.New(taskerr.SpawnFailed, p.name, err)
			}
		}
		p.ensureMonitor()
		return nil
	}
	for i := current; i > target; i-- {
		if err := p.StopOneInstance(); err != nil {
			return err
		}
	}
	return nil
}

func (p *Program) setSuppressAutoRestart(v bool) {
	p.mu.Lock()
	p.suppressAutoRestart = v
	p.mu.Unlock()
}

func (p *Program) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
}

func removeChild(children []*process.Child, target *process.Child) []*process.Child {
	out := children[:0]
	for _, c := range children {
		if c != target {
			out = append(out, c)
		}
	}
	return out
}

// mergedEnv applies environmentVariables on top of the supervisor's own
// environment, the same union setenv() performs on an inherited environment
// after fork() in the original implementation.
func mergedEnv(vars map[string]string) []string {
	e := env.New()
	overrides := make([]string, 0, len(vars))
	for k, v := range vars {
		overrides = append(overrides, k+"="+v)
	}
	return e.Merge(overrides)
}
