package main

import (
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/bnema/reelsub/config"
	"github.com/bnema/reelsub/internal/infrastructure/logger"
)

type commandContext struct {
	configFlag *string

	configOnce sync.Once
	config     *config.Config
	configErr  error
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var cfg *config.Config
		if path := strings.TrimSpace(*c.configFlag); path != "" {
			cfg, c.configErr = config.LoadFrom(path)
		} else {
			cfg, c.configErr = config.Load()
		}
		if c.configErr != nil {
			return
		}
		logger.Setup(logger.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
		c.config = cfg
	})
	return c.config, c.configErr
}

func newRootCommand() *cobra.Command {
	var configFlag string
	ctx := &commandContext{configFlag: &configFlag}

	rootCmd := &cobra.Command{
		Use:           "reelsub",
		Short:         "Burn translated captions into short videos",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			_, err := ctx.ensureConfig()
			return err
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "TOML configuration file (overrides REELSUB_CONFIG)")

	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newFontsCommand())
	rootCmd.AddCommand(newCacheCommand(ctx))

	return rootCmd
}
