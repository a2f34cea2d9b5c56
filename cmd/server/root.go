package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"registrar/internal/platform/config"
	"registrar/internal/platform/logger"
)

type rootOptions struct {
	envFiles []string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "registrar",
		Short:         "Citizen registry change-request service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringSliceVar(&opts.envFiles, "env-file", []string{".env", ".env.local"},
		"dotenv files to load when present; process environment wins")

	cmd.AddCommand(newServeCmd(opts))
	cmd.AddCommand(newMigrateCmd(opts))
	cmd.AddCommand(newSeedCmd(opts))
	cmd.AddCommand(newTokenCmd(opts))
	return cmd
}

// load reads dotenv files and the environment, returning the validated
// config and a logger at its level.
func (o *rootOptions) load() (config.Server, *slog.Logger, error) {
	if _, err := config.LoadEnv(o.envFiles...); err != nil {
		return config.Server{}, nil, fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Server{}, nil, err
	}
	return cfg, logger.New(cfg.LogLevel), nil
}

func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
