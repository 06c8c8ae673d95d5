// Package supervisor implements the Supervisor Controller: the registry of
// Program instances keyed by name, the operator command loop, fleet-wide
// operations, and the glue to the signal router.
package supervisor

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/postCC42/taskmaster/internal/config"
	"github.com/postCC42/taskmaster/internal/program"
	"github.com/postCC42/taskmaster/internal/taskerr"
)

// Controller owns the program registry exclusively; it is only ever
// mutated from the goroutine running the command loop, so no lock is
// required around the map itself.
type Controller struct {
	configPath string
	logger     *slog.Logger
	registry   map[string]*program.Program
}

func New(configPath string, logger *slog.Logger) *Controller {
	return &Controller{configPath: configPath, logger: logger, registry: make(map[string]*program.Program)}
}

// Initialize builds one Program per configured entry, then auto-starts
// every program with AutoStart == true. If any auto-start fails terminally
// it stops what it started and aborts.
func (c *Controller) Initialize(root config.RootConfig) error {
	for name, cfg := range root.Programs {
		c.registry[name] = program.New(name, cfg, c.logger)
		c.logger.Info("program registered", "program", name)
	}
	var started []string
	for name, p := range c.registry {
		if !p.Config().AutoStart {
			continue
		}
		if err := p.Start(); err != nil {
			c.logger.Error("auto-start failed", "program", name, "err", err)
			for _, sn := range started {
				_ = c.registry[sn].Stop()
			}
			return err
		}
		started = append(started, name)
	}
	return nil
}

// StartOne starts a registered program by name.
func (c *Controller) StartOne(name string) error {
	p, ok := c.registry[name]
	if !ok {
		return taskerr.New(taskerr.NotFound, name, fmt.Errorf("no such program"))
	}
	return p.Start()
}

// StopOne stops a registered program by name.
func (c *Controller) StopOne(name string) error {
	p, ok := c.registry[name]
	if !ok {
		return taskerr.New(taskerr.NotFound, name, fmt.Errorf("no such program"))
	}
	return p.Stop()
}

// RestartOne stops then starts a registered program by name.
func (c *Controller) RestartOne(name string) error {
	p, ok := c.registry[name]
	if !ok {
		return taskerr.New(taskerr.NotFound, name, fmt.Errorf("no such program"))
	}
	if err := p.Stop(); err != nil {
		return err
	}
	return p.Start()
}

// Status renders one "name: status" line per registered program, in the
// order recorded by the caller is irrelevant; names are sorted for
// deterministic output.
func (c *Controller) Status() []string {
	names := c.sortedNames()
	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, fmt.Sprintf("%s: %s", name, c.registry[name].Status()))
	}
	return lines
}

// StopAll stops every registered program. Safe to call repeatedly.
func (c *Controller) StopAll() {
	for _, name := range c.sortedNames() {
		if err := c.registry[name].Stop(); err != nil {
			c.logger.Error("stop failed", "program", name, "err", err)
		}
	}
}

// ReloadConfig re-reads the configuration document and reconciles the
// registry against it: existing programs are reloaded in place, new
// entries are constructed and started if AutoStart is true, and programs
// no longer present are stopped and removed.
func (c *Controller) ReloadConfig() error {
	root, err := config.Load(c.configPath)
	if err != nil {
		return taskerr.New(taskerr.InvalidConfig, "", err)
	}

	for name, cfg := range root.Programs {
		if p, ok := c.registry[name]; ok {
			if err := p.Reload(cfg); err != nil {
				c.logger.Error("reload failed", "program", name, "err", err)
			}
			continue
		}
		p := program.New(name, cfg, c.logger)
		c.registry[name] = p
		if cfg.AutoStart {
			if err := p.Start(); err != nil {
				c.logger.Error("start failed", "program", name, "err", err)
			}
		}
	}

	for name, p := range c.registry {
		if _, present := root.Programs[name]; present {
			continue
		}
		if err := p.Stop(); err != nil {
			c.logger.Error("stop failed", "program", name, "err", err)
		}
		delete(c.registry, name)
	}
	return nil
}

func (c *Controller) sortedNames() []string {
	names := make([]string, 0, len(c.registry))
	for name := range c.registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
