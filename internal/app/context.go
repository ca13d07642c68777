package app

import (
	"context"
	"fmt"

	"github.com/rxledger/rxledger/internal/buildinfo"
	"github.com/rxledger/rxledger/internal/conf"
	"github.com/rxledger/rxledger/internal/logger"
)

// Context is the per-invocation state shared by the CLI commands. Flags
// fill ConfigFile and Debug; Init loads settings and the logger.
type Context struct {
	Build      *buildinfo.Context
	ConfigFile string
	Debug      bool

	Settings *conf.Settings
	Log      logger.Logger

	central *logger.CentralLogger
}

// NewContext returns an uninitialised Context.
func NewContext(build *buildinfo.Context) *Context {
	return &Context{Build: build}
}

// Init loads the configuration and installs the global logger. It is safe
// to call more than once; later calls are no-ops.
func (c *Context) Init() error {
	if c.Settings != nil {
		return nil
	}

	var (
		settings *conf.Settings
		err      error
	)
	if c.ConfigFile != "" {
		settings, err = conf.LoadFile(c.ConfigFile)
	} else {
		settings, err = conf.Load()
	}
	if err != nil {
		return err
	}
	if c.Debug {
		settings.Debug = true
	}
	if settings.Debug {
		settings.Logging.DefaultLevel = string(logger.LogLevelDebug)
		if settings.Logging.Console != nil {
			settings.Logging.Console.Level = string(logger.LogLevelDebug)
		}
	}

	central, err := logger.NewCentralLogger(&settings.Logging)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	logger.SetGlobal(central)

	c.Settings = settings
	c.central = central
	c.Log = central.Module("rxledger")
	return nil
}

// Open builds the full application.
func (c *Context) Open(ctx context.Context) (*App, error) {
	if err := c.Init(); err != nil {
		return nil, err
	}
	return New(ctx, c.Settings, c.Build, c.Log)
}

// OpenStore opens only the local store.
func (c *Context) OpenStore() (*Store, error) {
	if err := c.Init(); err != nil {
		return nil, err
	}
	return OpenStore(c.Settings, c.Log)
}

// Close closes the log file, if any.
func (c *Context) Close() error {
	return c.central.Close()
}
