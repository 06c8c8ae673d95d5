// Package diff implements the configuration diff engine: a pure function
// comparing a candidate program configuration against the currently live
// one, producing a typed change set and telling the caller whether any
// changed field requires a restart to take effect.
package diff

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/postCC42/taskmaster/internal/config"
	"github.com/postCC42/taskmaster/internal/taskerr"
)

// restartRequired lists the fields that force a stop+start when changed,
// mirroring the classification table: everything except umask and
// expected_exit_codes.
var restartRequired = map[string]bool{
	"command":               true,
	"instances":             true,
	"auto_start":            true,
	"auto_restart":          true,
	"start_time":            true,
	"stop_time":             true,
	"restart_attempts":      true,
	"stop_signal":           true,
	"working_directory":     true,
	"stdout_log":            true,
	"stderr_log":            true,
	"environment_variables": true,
	"umask":                 false,
	"expected_exit_codes":   false,
}

// ChangeSet maps a changed field name to its new value, stringified.
type ChangeSet map[string]string

// Result is the diff engine's output for one program.
type Result struct {
	Changes         ChangeSet
	RestartRequired bool
	// InstancesOnly is true when the only change is `instances`, letting the
	// caller scale in place instead of restarting every surviving instance
	// per §9's preferred design.
	InstancesOnly bool
}

// Diff compares candidate against current, one field at a time, validating
// each candidate value before comparing it. name is used only to annotate
// InvalidConfig errors.
func Diff(name string, current, candidate config.ProgramConfig) (Result, error) {
	if err := candidate.Validate(name); err != nil {
		return Result{}, taskerr.New(taskerr.InvalidConfig, name, err)
	}

	changes := ChangeSet{}
	check(changes, "command", current.Command != candidate.Command, candidate.Command)
	check(changes, "instances", current.Instances != candidate.Instances, fmt.Sprintf("%d", candidate.Instances))
	check(changes, "auto_start", current.AutoStart != candidate.AutoStart, fmt.Sprintf("%t", candidate.AutoStart))
	check(changes, "auto_restart", current.AutoRestart != candidate.AutoRestart, string(candidate.AutoRestart))
	check(changes, "start_time", current.StartTime != candidate.StartTime, fmt.Sprintf("%d", candidate.StartTime))
	check(changes, "stop_time", current.StopTime != candidate.StopTime, fmt.Sprintf("%d", candidate.StopTime))
	check(changes, "restart_attempts", current.RestartAttempts != candidate.RestartAttempts, fmt.Sprintf("%d", candidate.RestartAttempts))
	check(changes, "stop_signal", current.StopSignal != candidate.StopSignal, candidate.StopSignal)
	check(changes, "working_directory", current.WorkingDirectory != candidate.WorkingDirectory, candidate.WorkingDirectory)
	check(changes, "stdout_log", current.StdoutLog != candidate.StdoutLog, candidate.StdoutLog)
	check(changes, "stderr_log", current.StderrLog != candidate.StderrLog, candidate.StderrLog)

	if !equalIntSet(current.ExpectedExitCodes, candidate.ExpectedExitCodes) {
		changes["expected_exit_codes"] = serializeInts(candidate.ExpectedExitCodes)
	}
	if !equalUmask(current.Umask, candidate.Umask) {
		changes["umask"] = serializeUmask(candidate.Umask)
	}
	if !equalEnv(current.EnvironmentVariables, candidate.EnvironmentVariables) {
		changes["environment_variables"] = serializeEnv(candidate.EnvironmentVariables)
	}

	res := Result{Changes: changes}
	for field := range changes {
		if restartRequired[field] {
			res.RestartRequired = true
		}
	}
	if len(changes) == 1 {
		if _, ok := changes["instances"]; ok {
			res.InstancesOnly = true
		}
	}
	return res, nil
}

func check(changes ChangeSet, field string, changed bool, newValue string) {
	if changed {
		changes[field] = newValue
	}
}

func equalIntSet(a, b []int) bool {
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

func equalUmask(a, b *int) bool {
	if (a == nil) != (b == nil) {
		return false
	}
	return a == nil || *a == *b
}

func equalEnv(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}

func serializeInts(v []int) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func serializeEnv(m map[string]string) string {
	b, _ := json.Marshal(m)
	return string(b)
}

func serializeUmask(u *int) string {
	if u == nil {
		return "unset"
	}
	return fmt.Sprintf("%03o", *u)
}
