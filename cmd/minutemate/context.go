package main

import (
	"context"
	"strings"
	"sync"

	"github.com/xhad/minutemate/pkg/config"
	"github.com/xhad/minutemate/pkg/logger"
)

type appFactory func(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error)

type commandContext struct {
	configFlag *string
	envFlag    *string
	levelFlag  *string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	log    *logger.Logger
	newApp appFactory
}

func newCommandContext(configFlag, envFlag, levelFlag *string, newApp appFactory) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		envFlag:    envFlag,
		levelFlag:  levelFlag,
		newApp:     newApp,
	}
}

// defaultAppFactory validates the config before dialing anything.
func defaultAppFactory(ctx context.Context, cfg *config.Config, log *logger.Logger) (*App, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return nil, config.ValidationErrors(errs)
	}
	return NewApp(ctx, cfg, log, Deps{})
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		if err := config.LoadEnvFile(strings.TrimSpace(*c.envFlag)); err != nil {
			c.configErr = err
			return
		}
		cfg, err := config.LoadConfig(strings.TrimSpace(*c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		if lvl := strings.TrimSpace(*c.levelFlag); lvl != "" {
			cfg.Log.Level = lvl
		}
		c.config = cfg
		if c.log == nil {
			c.log, c.configErr = logger.New(cfg.Log.Mode, cfg.Log.Level)
		}
	})
	return c.config, c.configErr
}

// withApp builds the application for one command and closes it afterwards.
func (c *commandContext) withApp(ctx context.Context, fn func(*App) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	app, err := c.newApp(ctx, cfg, c.log)
	if err != nil {
		return err
	}
	defer app.Close()
	defer c.log.Sync()
	return fn(app)
}
