package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/scraperhub/internal/config"
	"github.com/JakeFAU/scraperhub/internal/logging"
)

// cli carries state shared by the subcommands once the root has loaded
// configuration.
type cli struct {
	cfgFile  string
	envFiles []string

	cfg    config.Config
	logger *zap.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	cmd := &cobra.Command{
		Use:   "scraperhub",
		Short: "Runs registered scrapers on behalf of logged-in users.",
		Long: `scraperhub discovers scraper plugins, lets users start one scraper at a
time from the HTTP API and streams progress to their websocket connections.`,
		SilenceUsage: true,

		PersistentPreRunE: func(*cobra.Command, []string) error {
			return c.load()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&c.cfgFile, "config", "", "config file (yaml, json or toml)")
	cmd.PersistentFlags().StringSliceVar(&c.envFiles, "env-file", []string{".env"}, "dotenv files loaded before the environment is read")

	cmd.AddCommand(newServeCmd(c))
	cmd.AddCommand(newPluginsCmd(c))
	return cmd
}

func (c *cli) load() error {
	if err := config.LoadDotEnv(c.envFiles...); err != nil {
		return err
	}
	cfg, err := config.Load(c.cfgFile)
	if err != nil {
		return err
	}
	logger, err := logging.New(logging.Options{
		Development: cfg.Logging.Development,
		Level:       cfg.Logging.Level,
	})
	if err != nil {
		return fmt.Errorf("logger init failed: %w", err)
	}
	zap.ReplaceGlobals(logger)
	c.cfg = cfg
	c.logger = logger
	return nil
}
