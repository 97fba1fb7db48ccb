package main

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"

	"podium/internal/catalog"
	"podium/internal/config"
	"podium/internal/links"
	"podium/internal/logging"
	"podium/internal/render"
	"podium/internal/workflow"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
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
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	c.loggerOnce.Do(func() {
		logger, logErr := logging.NewFromConfig(cfg)
		if logErr != nil {
			logger = logging.NewNop()
		}
		c.logger = logger
	})
	return c.logger, nil
}

// withStore opens the catalog for the duration of one command.
func (c *commandContext) withStore(fn func(*config.Config, *catalog.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	store, err := catalog.Open(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

// withManager additionally wires the engine client and workflow manager, and
// holds the generation lock so two CLI invocations cannot run renders against
// the same catalog concurrently.
func (c *commandContext) withManager(fn func(*config.Config, *catalog.Store, *workflow.Manager) error) error {
	return c.withStore(func(cfg *config.Config, store *catalog.Store) error {
		logger, err := c.ensureLogger()
		if err != nil {
			return err
		}

		lock := flock.New(filepath.Join(cfg.Paths.DataDir, "podium.lock"))
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("acquire generation lock: %w", err)
		}
		if !locked {
			return fmt.Errorf("another podium generation is running; wait for it to finish")
		}
		defer func() {
			_ = lock.Unlock()
		}()

		engine := render.NewClient(cfg.Renderer.BaseURL, time.Duration(cfg.Renderer.RequestTimeout)*time.Second)
		manager := workflow.NewManager(cfg, store, engine, logger)
		return fn(cfg, store, manager)
	})
}

// withResolver wires the download-link resolver over the engine client.
func (c *commandContext) withResolver(fn func(*config.Config, *catalog.Store, *links.Resolver) error) error {
	return c.withStore(func(cfg *config.Config, store *catalog.Store) error {
		logger, err := c.ensureLogger()
		if err != nil {
			return err
		}
		engine := render.NewClient(cfg.Renderer.BaseURL, time.Duration(cfg.Renderer.RequestTimeout)*time.Second)
		return fn(cfg, store, links.NewResolver(engine, logger))
	})
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
