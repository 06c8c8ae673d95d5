package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/viper"
)

// rawProgram mirrors the on-disk configuration document keys from spec §6
// before they are converted into a ProgramConfig.
type rawProgram struct {
	Command              string   `mapstructure:"command"`
	Instances            int      `mapstructure:"instances"`
	AutoStart            bool     `mapstructure:"auto_start"`
	AutoRestart          string   `mapstructure:"auto_restart"`
	StartTime            int      `mapstructure:"start_time"`
	StopTime             int      `mapstructure:"stop_time"`
	RestartAttempts      int      `mapstructure:"restart_attempts"`
	StopSignal           string   `mapstructure:"stop_signal"`
	ExpectedExitCodes    []int    `mapstructure:"expected_exit_codes"`
	WorkingDirectory     string   `mapstructure:"working_directory"`
	Umask                string   `mapstructure:"umask"`
	StdoutLog            string   `mapstructure:"stdout_log"`
	StderrLog            string   `mapstructure:"stderr_log"`
	EnvironmentVariables []string `mapstructure:"environment_variables"`
}

type rawRoot struct {
	LoggingEnabled bool                  `mapstructure:"logging_enabled"`
	LogFile        string                `mapstructure:"log_file"`
	Programs       map[string]rawProgram `mapstructure:"programs"`
}

// RootConfig is the parsed, validated configuration document.
type RootConfig struct {
	LoggingEnabled bool
	LogFile        string
	Programs       map[string]ProgramConfig
}

// Load reads and validates the TOML configuration document at path.
func Load(path string) (RootConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return RootConfig{}, fmt.Errorf("read config: %w", err)
	}
	var raw rawRoot
	if err := v.Unmarshal(&raw); err != nil {
		return RootConfig{}, fmt.Errorf("parse config: %w", err)
	}

	out := RootConfig{
		LoggingEnabled: raw.LoggingEnabled,
		LogFile:        raw.LogFile,
		Programs:       make(map[string]ProgramConfig, len(raw.Programs)),
	}
	for name, rp := range raw.Programs {
		pc, err := fromRaw(rp)
		if err != nil {
			return RootConfig{}, fmt.Errorf("%s: %w", name, err)
		}
		if err := pc.Validate(name); err != nil {
			return RootConfig{}, err
		}
		out.Programs[name] = pc
	}
	return out, nil
}

func fromRaw(rp rawProgram) (ProgramConfig, error) {
	umask, err := parseUmask(rp.Umask)
	if err != nil {
		return ProgramConfig{}, err
	}
	envVars, err := parseEnvironmentVariables(rp.EnvironmentVariables)
	if err != nil {
		return ProgramConfig{}, err
	}
	return ProgramConfig{
		Command:              rp.Command,
		Instances:            rp.Instances,
		AutoStart:            rp.AutoStart,
		AutoRestart:          AutoRestartPolicy(rp.AutoRestart),
		StartTime:            rp.StartTime,
		StopTime:             rp.StopTime,
		RestartAttempts:      rp.RestartAttempts,
		StopSignal:           rp.StopSignal,
		ExpectedExitCodes:    rp.ExpectedExitCodes,
		WorkingDirectory:     rp.WorkingDirectory,
		Umask:                umask,
		StdoutLog:            rp.StdoutLog,
		StderrLog:            rp.StderrLog,
		EnvironmentVariables: envVars,
	}, nil
}

// parseUmask accepts an empty string or the literal "unset" as the sentinel
// for "do not change the inherited umask", or an octal mask such as "022".
func parseUmask(s string) (*int, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.EqualFold(s, "unset") {
		return nil, nil
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid umask: %s", s)
	}
	m := int(v)
	return &m, nil
}

// parseEnvironmentVariables converts "KEY=VALUE" entries into a map. A
// missing '=' yields an empty-string value for the key, per spec §6.
func parseEnvironmentVariables(entries []string) (map[string]string, error) {
	out := make(map[string]string, len(entries))
	for _, e := range entries {
		key, value, _ := strings.Cut(e, "=")
		if key == "" {
			return nil, fmt.Errorf("invalid environment variable entry: %q", e)
		}
		if _, dup := out[key]; dup {
			return nil, fmt.Errorf("duplicate environment variable key: %s", key)
		}
		out[key] = value
	}
	return out, nil
}
