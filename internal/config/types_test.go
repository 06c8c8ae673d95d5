package config

import "testing"

func validProgramConfig() ProgramConfig {
	return ProgramConfig{
		Command:           "/bin/sleep 60",
		Instances:         1,
		AutoRestart:       AutoRestartNever,
		StopSignal:        "SIGTERM",
		WorkingDirectory:  "/tmp",
		StdoutLog:         "/tmp/a.out",
		StderrLog:         "/tmp/a.err",
		ExpectedExitCodes: []int{0},
	}
}

func TestValidate_Valid(t *testing.T) {
	if err := validProgramConfig().Validate("web"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_Rejections(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(c *ProgramConfig)
	}{
		{"empty command", func(c *ProgramConfig) { c.Command = "" }},
		{"negative instances", func(c *ProgramConfig) { c.Instances = -1 }},
		{"bad auto_restart", func(c *ProgramConfig) { c.AutoRestart = "sometimes" }},
		{"negative start_time", func(c *ProgramConfig) { c.StartTime = -1 }},
		{"negative stop_time", func(c *ProgramConfig) { c.StopTime = -1 }},
		{"negative restart_attempts", func(c *ProgramConfig) { c.RestartAttempts = -1 }},
		{"bad stop_signal", func(c *ProgramConfig) { c.StopSignal = "SIGWHAT" }},
		{"empty working_directory", func(c *ProgramConfig) { c.WorkingDirectory = "" }},
		{"empty stdout_log", func(c *ProgramConfig) { c.StdoutLog = "" }},
		{"empty stderr_log", func(c *ProgramConfig) { c.StderrLog = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validProgramConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate("web"); err == nil {
				t.Fatalf("expected validation error for %s", tc.name)
			}
		})
	}
}

func TestValidate_UmaskBounds(t *testing.T) {
	cfg := validProgramConfig()
	bad := 0o1000
	cfg.Umask = &bad
	if err := cfg.Validate("web"); err == nil {
		t.Fatal("expected error for out-of-range umask")
	}
	good := 0o022
	cfg.Umask = &good
	if err := cfg.Validate("web"); err != nil {
		t.Fatalf("unexpected error for valid umask: %v", err)
	}
}

func TestEqual(t *testing.T) {
	a := validProgramConfig()
	b := validProgramConfig()
	if !a.Equal(b) {
		t.Fatal("expected identical configs to be equal")
	}
	b.Command = "/bin/sleep 30"
	if a.Equal(b) {
		t.Fatal("expected differing commands to not be equal")
	}
}

func TestEqual_UmaskNilVsSet(t *testing.T) {
	a := validProgramConfig()
	b := validProgramConfig()
	mask := 0o022
	b.Umask = &mask
	if a.Equal(b) {
		t.Fatal("expected nil umask to differ from a set umask")
	}
}

func TestExpectsExitCode(t *testing.T) {
	cfg := validProgramConfig()
	cfg.ExpectedExitCodes = []int{0, 2}
	if !cfg.ExpectsExitCode(0) || !cfg.ExpectsExitCode(2) {
		t.Fatal("expected configured codes to be recognized")
	}
	if cfg.ExpectsExitCode(1) {
		t.Fatal("expected an unconfigured code to be rejected")
	}
}
