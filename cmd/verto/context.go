package main

import (
	"encoding/json"
	"strings"
	"sync"

	"github.com/hbomb79/Verto/internal/capability"
	"github.com/hbomb79/Verto/internal/config"
	"github.com/hbomb79/Verto/internal/engine"
	"github.com/hbomb79/Verto/internal/event"
	"github.com/hbomb79/Verto/internal/service"
	"github.com/hbomb79/Verto/internal/settings"
	"github.com/hbomb79/Verto/pkg/logger"
	"github.com/spf13/cobra"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.VertoConfig
	configErr  error
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

// ensureConfig loads the configuration once, applying the configured log
// level before any other component logs.
func (c *commandContext) ensureConfig() (*config.VertoConfig, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}

		cfg, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}

		logger.SetMinLoggingLevel(logger.ParseLevel(cfg.LogLevel).Level())
		c.config = cfg
	})

	return c.config, c.configErr
}

// newConverter constructs the conversion service and its preference store
// from the loaded configuration.
func (c *commandContext) newConverter(events event.EventDispatcher) (*service.Converter, *settings.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}

	store := settings.NewStore(cfg.PreferencesPath)
	if err := store.Load(); err != nil {
		return nil, nil, err
	}

	factory := func() (engine.Engine, error) { return engine.New(cfg.Engine) }
	return service.NewConverter(store, factory, capability.Default(), events, cfg.OutputDir), store, nil
}

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
