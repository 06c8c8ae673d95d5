package process

import "testing"

func TestBuildCommand_PlainArgv(t *testing.T) {
	cmd := BuildCommand("/bin/sleep 5")
	if cmd.Path != "/bin/sleep" {
		t.Fatalf("Path = %q, want /bin/sleep", cmd.Path)
	}
	if len(cmd.Args) != 2 || cmd.Args[1] != "5" {
		t.Fatalf("Args = %v, want [/bin/sleep 5]", cmd.Args)
	}
}

func TestBuildCommand_ShellMetacharactersFallBackToShell(t *testing.T) {
	cmd := BuildCommand("echo hi && echo bye")
	if cmd.Path != "/bin/sh" {
		t.Fatalf("Path = %q, want /bin/sh", cmd.Path)
	}
	if len(cmd.Args) != 3 || cmd.Args[1] != "-c" {
		t.Fatalf("Args = %v, want [/bin/sh -c ...]", cmd.Args)
	}
}

func TestBuildCommand_ExplicitShellNotDoubleWrapped(t *testing.T) {
	cmd := BuildCommand(`sh -c 'trap "" TERM; sleep 30'`)
	if cmd.Path != "/bin/sh" {
		t.Fatalf("Path = %q, want /bin/sh", cmd.Path)
	}
	if len(cmd.Args) != 3 {
		t.Fatalf("Args = %v, want exactly 3 elements", cmd.Args)
	}
	if cmd.Args[2] != `trap "" TERM; sleep 30` {
		t.Fatalf("Args[2] = %q, unwrapped incorrectly", cmd.Args[2])
	}
}

func TestBuildCommand_Empty(t *testing.T) {
	cmd := BuildCommand("   ")
	if cmd.Path != "/bin/true" {
		t.Fatalf("Path = %q, want /bin/true for an empty command", cmd.Path)
	}
}
