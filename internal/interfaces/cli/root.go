// Package cli implements the settlementctl command line tool.
package cli

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expedition-settlement/internal/config"
	"github.com/garyjia/expedition-settlement/internal/container"
	"github.com/garyjia/expedition-settlement/pkg/utils"
)

const defaultConfigPath = "configs/config.yaml"

type rootOptions struct {
	configPath string
	verbose    bool
	actor      string
}

// NewRootCommand builds the settlementctl command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "settlementctl",
		Short:         "Administration tool for the expedition settlement service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", defaultConfigPath, "path to config.yaml")
	cmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose logging")
	cmd.PersistentFlags().StringVar(&opts.actor, "actor", "settlementctl", "name recorded in package history")

	cmd.AddCommand(
		newMigrateCommand(opts),
		newSeedCommand(opts),
		newExportCommand(opts),
		newExtractCommand(opts),
	)
	return cmd
}

// loadConfig reads the configuration. A missing default file is not an error.
func (o *rootOptions) loadConfig() (*config.Config, error) {
	path := o.configPath
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) && path == defaultConfigPath {
		path = ""
	}
	return config.Load(path)
}

func (o *rootOptions) logger() (*zap.Logger, error) {
	return utils.NewCLILogger(o.verbose)
}

// withContainer starts a container for the duration of fn
func (o *rootOptions) withContainer(ctx context.Context, fn func(c *container.Container) error) error {
	if err := utils.ValidateActor(o.actor); err != nil {
		return err
	}

	cfg, err := o.loadConfig()
	if err != nil {
		return err
	}
	logger, err := o.logger()
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer logger.Sync()

	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	defer c.Close()

	return fn(c)
}
