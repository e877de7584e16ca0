package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	cfgPkg "github.com/xhad/ragbot/pkg/config"
	"github.com/xhad/ragbot/pkg/zlog"
)

var (
	configPath string
	cfg        *cfgPkg.Config
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "ragbot",
		Short:         "Retrieval-augmented chatbots over your documentation",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			zlog.Sync()
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file")

	root.AddCommand(
		newServeCmd(),
		newIngestCmd(),
		newChatCmd(),
		newChatbotCmd(),
	)
	return root
}

func loadConfig() error {
	c, err := cfgPkg.LoadConfig(configPath)
	if err != nil {
		return err
	}

	if errs := c.Validate(); len(errs) > 0 {
		for _, e := range errs {
			color.Red("  %s", e.Error())
		}
		return fmt.Errorf("invalid configuration (%d errors)", len(errs))
	}

	if err := zlog.Init(zlog.Config{
		Level:      c.Log.Level,
		Format:     c.Log.Format,
		File:       c.Log.File,
		MaxSizeMB:  c.Log.MaxSizeMB,
		MaxBackups: c.Log.MaxBackups,
		MaxAgeDays: c.Log.MaxAgeDays,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	zlog.Debug("configuration loaded",
		zap.String("driver", c.Database.Driver),
		zap.String("addr", c.Addr()))

	cfg = c
	return nil
}
