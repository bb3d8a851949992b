package main

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"battery/internal/battery"
	"battery/internal/config"
	"battery/internal/crash"
	"battery/internal/logging"
	"battery/internal/logs"
	"battery/internal/store"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.loggerErr = err
			return
		}
		logPath := filepath.Join(cfg.Paths.LogDir, "battery.log")
		c.logger, c.loggerErr = logging.New(logging.Options{
			Level:       cfg.Logging.Level,
			Format:      cfg.Logging.Format,
			OutputPaths: []string{"stdout", logPath},
		})
	})
	return c.logger, c.loggerErr
}

// openStore opens the battery database; the caller owns Close.
func (c *commandContext) openStore() (*store.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return store.Open(cfg)
}

// withRunner builds the full battery stack for one command invocation and
// tears it down afterwards.
func (c *commandContext) withRunner(opts []battery.Option, fn func(*battery.Runner, *crash.Monitor) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := c.ensureLogger()
	if err != nil {
		return err
	}
	lock := flock.New(cfg.LockPath())
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire instance lock: %w", err)
	}
	if !locked {
		return errors.New("another battery instance is already running")
	}
	defer func() { _ = lock.Unlock() }()

	st, err := c.openStore()
	if err != nil {
		return err
	}
	defer st.Close()

	if result, err := logs.Sweep(cfg, time.Now()); err != nil {
		logger.Warn("retention sweep failed", logging.Error(err))
	} else if result.Removed > 0 {
		logger.Info("retention sweep", logging.Int("removed", result.Removed))
	}

	monitor := crash.NewMonitor(cfg, logger)
	monitor.Install()
	defer monitor.Teardown()
	opts = append(opts, battery.WithMonitor(monitor))
	runner := battery.New(cfg, st, logger, opts...)
	return fn(runner, monitor)
}
