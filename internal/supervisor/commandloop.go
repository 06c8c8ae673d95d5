package supervisor

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/postCC42/taskmaster/internal/signalrouter"
	"github.com/postCC42/taskmaster/internal/taskerr"
)

const prompt = "taskmaster> "

// RunCommandLoop is the line-oriented read-eval loop against the operator's
// input stream. It returns when stdin reaches EOF, the operator types
// "exit", or a shutdown signal arrives.
func (c *Controller) RunCommandLoop(in io.Reader, out io.Writer, router *signalrouter.Router) {
	fmt.Fprintln(out, usageBanner)
	scanner := bufio.NewScanner(in)
	for {
		if router.ShutdownRequested() {
			c.StopAll()
			return
		}
		if router.ReloadRequested() {
			if err := c.ReloadConfig(); err != nil {
				c.logger.Error("reload failed", "err", err)
			}
			router.ClearReload()
		}

		fmt.Fprint(out, prompt)
		if !scanner.Scan() {
			c.StopAll()
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if exit := c.dispatch(line, out); exit {
			c.StopAll()
			return
		}
	}
}

// dispatch parses and executes one command line. It returns true when the
// loop should terminate (the "exit" command).
func (c *Controller) dispatch(line string, out io.Writer) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "status":
		for _, l := range c.Status() {
			fmt.Fprintln(out, l)
		}
	case "start":
		name, err := requireOneArg(args)
		if err != nil {
			fmt.Fprintln(out, usageError(cmd, err))
			return false
		}
		if err := c.StartOne(name); err != nil {
			fmt.Fprintln(out, err)
		}
	case "stop":
		name, err := requireOneArg(args)
		if err != nil {
			fmt.Fprintln(out, usageError(cmd, err))
			return false
		}
		if err := c.StopOne(name); err != nil {
			fmt.Fprintln(out, err)
		}
	case "restart":
		name, err := requireOneArg(args)
		if err != nil {
			fmt.Fprintln(out, usageError(cmd, err))
			return false
		}
		if err := c.RestartOne(name); err != nil {
			fmt.Fprintln(out, err)
		}
	case "reload":
		if len(args) > 0 {
			fmt.Fprintln(out, usageError(cmd, fmt.Errorf("reload takes no arguments")))
			return false
		}
		if err := c.ReloadConfig(); err != nil {
			fmt.Fprintln(out, err)
		}
	case "exit":
		return true
	default:
		fmt.Fprintln(out, taskerr.New(taskerr.UsageError, "", fmt.Errorf("unknown command: %s", cmd)))
	}
	return false
}

func requireOneArg(args []string) (string, error) {
	if len(args) != 1 {
		return "", fmt.Errorf("expected exactly one program name")
	}
	return args[0], nil
}

func usageError(cmd string, err error) error {
	return taskerr.New(taskerr.UsageError, "", fmt.Errorf("%s: %w", cmd, err))
}

const usageBanner = `taskmaster interactive shell
commands: status | start NAME | stop NAME | restart NAME | reload | exit`
