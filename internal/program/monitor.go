package program

import (
	"time"

	"github.com/postCC42/taskmaster/internal/config"
	"github.com/postCC42/taskmaster/internal/metrics"
	"github.com/postCC42/taskmaster/internal/process"
)

// ensureMonitor spawns the monitor goroutine if one is not already running
// for this Program.
func (p *Program) ensureMonitor() {
	p.mu.Lock()
	if p.monitorActive {
		p.mu.Unlock()
		return
	}
	p.monitorActive = true
	p.stopRequested = false
	p.monitorDone = make(chan struct{})
	p.mu.Unlock()

	go p.monitorLoop()
}

// haltMonitor asks the monitor to stop and joins it. The monitor cedes all
// further reaping to the caller once it exits, so this must return before
// Stop's own termination loop starts touching the children slice.
func (p *Program) haltMonitor() {
	p.mu.Lock()
	if !p.monitorActive {
		p.mu.Unlock()
		return
	}
	p.stopRequested = true
	done := p.monitorDone
	p.mu.Unlock()

	if done != nil {
		<-done
	}
}

// monitorLoop reaps exited children and drives restart policy while the
// Program is active. It exits as soon as stopRequested is observed,
// handing reaping duty back to whichever caller requested the stop.
func (p *Program) monitorLoop() {
	for {
		p.mu.Lock()
		if p.stopRequested {
			p.monitorActive = false
			close(p.monitorDone)
			p.monitorDone = nil
			p.mu.Unlock()
			return
		}
		pids := make([]int, len(p.children))
		byPid := make(map[int]*process.Child, len(p.children))
		for i, c := range p.children {
			pids[i] = c.Pid
			byPid[c.Pid] = c
		}
		p.mu.Unlock()

		for _, pid := range pids {
			outcome, exited := process.TryReap(pid)
			if !exited {
				continue
			}
			p.mu.Lock()
			child := byPid[pid]
			p.children = removeChild(p.children, child)
			remaining := len(p.children)
			target := p.config.Instances
			suppressed := p.suppressAutoRestart
			policy := p.config.AutoRestart
			expected := p.config.ExpectsExitCode(outcome.ExitCode)
			p.mu.Unlock()
			if child != nil {
				child.Close()
			}

			p.logger.Info("child exited", "program", p.name, "pid", pid, "outcome", outcome.String())

			if remaining > 0 && remaining < target {
				p.setState(Degraded)
			}

			p.handleChildExit(outcome, suppressed, policy, expected)
		}

		time.Sleep(monitorPollInterval)
	}
}

// handleChildExit decides the restart policy for a single reaped child. It
// runs on the monitor goroutine, but it must never call Start directly: a
// Start that exhausts its attempts calls Stop, which calls haltMonitor,
// which blocks waiting for this very goroutine to observe stopRequested and
// close monitorDone. Instead it only signals restartWorker, which applies
// the restart off the monitor goroutine entirely.
func (p *Program) handleChildExit(outcome process.ExitOutcome, suppressed bool, policy config.AutoRestartPolicy, expected bool) {
	if suppressed {
		return
	}
	restart := false
	switch policy {
	case config.AutoRestartAlways:
		restart = true
	case config.AutoRestartUnexpected:
		restart = !expected
	case config.AutoRestartNever:
		restart = false
	}
	if restart {
		metrics.IncRestart(p.name)
		select {
		case p.restartRequests <- struct{}{}:
		default:
			// A restart is already queued; a burst of exits coalesces into
			// one pending Start.
		}
	}
}
