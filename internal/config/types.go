package config

import (
	"fmt"
	"sort"

	"github.com/postCC42/taskmaster/internal/process"
)

// AutoRestartPolicy is the enumerated auto-restart behavior for a program.
type AutoRestartPolicy string

const (
	AutoRestartAlways     AutoRestartPolicy = "always"
	AutoRestartNever      AutoRestartPolicy = "never"
	AutoRestartUnexpected AutoRestartPolicy = "unexpected"
)

// ProgramConfig is the immutable-per-reload configuration snapshot for one
// program, matching the field table and configuration document keys.
type ProgramConfig struct {
	Command              string
	Instances            int
	AutoStart            bool
	AutoRestart          AutoRestartPolicy
	StartTime            int // seconds
	StopTime             int // ~100ms ticks
	RestartAttempts      int
	StopSignal           string
	ExpectedExitCodes    []int
	WorkingDirectory     string
	Umask                *int // nil is the "unset" sentinel
	StdoutLog            string
	StderrLog            string
	EnvironmentVariables map[string]string
}

// Validate checks every field's invariant, returning an error naming the
// program and the offending field, mirroring the per-field checks the
// original taskmaster's ConfigManager performs before accepting a value.
func (c ProgramConfig) Validate(name string) error {
	if c.Command == "" {
		return fmt.Errorf("%s: invalid command: empty", name)
	}
	if c.Instances < 0 {
		return fmt.Errorf("%s: invalid number of instances: %d", name, c.Instances)
	}
	switch c.AutoRestart {
	case AutoRestartAlways, AutoRestartNever, AutoRestartUnexpected:
	default:
		return fmt.Errorf("%s: invalid auto restart value: %s", name, c.AutoRestart)
	}
	if c.StartTime < 0 {
		return fmt.Errorf("%s: invalid start time: %d", name, c.StartTime)
	}
	if c.StopTime < 0 {
		return fmt.Errorf("%s: invalid stop time: %d", name, c.StopTime)
	}
	if c.RestartAttempts < 0 {
		return fmt.Errorf("%s: invalid restart attempts: %d", name, c.RestartAttempts)
	}
	if _, err := process.ParseSignal(c.StopSignal); err != nil {
		return fmt.Errorf("%s: invalid stop signal: %s", name, c.StopSignal)
	}
	if c.WorkingDirectory == "" {
		return fmt.Errorf("%s: invalid working directory: empty", name)
	}
	if c.Umask != nil && (*c.Umask < 0 || *c.Umask > 0o777) {
		return fmt.Errorf("%s: invalid umask: %d", name, *c.Umask)
	}
	if c.StdoutLog == "" {
		return fmt.Errorf("%s: invalid stdout log: empty", name)
	}
	if c.StderrLog == "" {
		return fmt.Errorf("%s: invalid stderr log: empty", name)
	}
	return nil
}

// Equal reports whether two configs are semantically identical, used by the
// diff engine's purity property (equal snapshots yield an empty change set).
func (c ProgramConfig) Equal(o ProgramConfig) bool {
	if c.Command != o.Command || c.Instances != o.Instances || c.AutoStart != o.AutoStart ||
		c.AutoRestart != o.AutoRestart || c.StartTime != o.StartTime || c.StopTime != o.StopTime ||
		c.RestartAttempts != o.RestartAttempts || c.StopSignal != o.StopSignal ||
		c.WorkingDirectory != o.WorkingDirectory || c.StdoutLog != o.StdoutLog || c.StderrLog != o.StderrLog {
		return false
	}
	if (c.Umask == nil) != (o.Umask == nil) {
		return false
	}
	if c.Umask != nil && *c.Umask != *o.Umask {
		return false
	}
	if !equalIntSlices(c.ExpectedExitCodes, o.ExpectedExitCodes) {
		return false
	}
	if len(c.EnvironmentVariables) != len(o.EnvironmentVariables) {
		return false
	}
	for k, v := range c.EnvironmentVariables {
		if ov, ok := o.EnvironmentVariables[k]; !ok || ov != v {
			return false
		}
	}
	return true
}

func equalIntSlices(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	sa := append([]int(nil), a...)
	sb := append([]int(nil), b...)
	sort.Ints(sa)
	sort.Ints(sb)
	for i := range sa {
		if sa[i] != sb[i] {
			return false
		}
	}
	return true
}

// ExpectsExitCode reports whether code is in the configured expected set.
func (c ProgramConfig) ExpectsExitCode(code int) bool {
	for _, e := range c.ExpectedExitCodes {
		if e == code {
			return true
		}
	}
	return false
}
