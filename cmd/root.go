// Copyright (c) 2025 Seedfast
// Licensed under the MIT License. See LICENSE file in the project root for details.

// Package cmd provides the command-line interface of qlnb. It opens query
// notebooks, runs their cells against the configured engine, saves the
// outputs back to disk and renders stored results as tables whose entity
// cells can be followed to their source locations.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"qlnotebook/cli/internal/config"
	"qlnotebook/cli/internal/logging"

	"github.com/spf13/cobra"
)

var (
	showVersion bool
	configPath  string
	logLevel    string
	engineFlag  string

	cfg    config.Config
	logger *slog.Logger
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "qlnb",
	Short: "Run query notebooks and browse their results",
	Long: `qlnb opens query notebooks, evaluates their code cells against a PostgreSQL,
SQLite or remote engine, stores the results in the notebook and renders them as
tables whose entity cells link back to source locations.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.Load()
		}
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			cfg.LogLevel = logLevel
		}
		if cmd.Flags().Changed("engine") {
			cfg.Engine = engineFlag
		}
		if err := cfg.Validate(); err != nil {
			return err
		}
		logger = logging.New(cfg.LogLevel, os.Stderr)
		slog.SetDefault(logger)
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		if showVersion {
			fmt.Printf("qlnb %s\n", Version)
			return nil
		}
		return cmd.Help()
	},
}

// Execute runs the CLI application.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, logging.PresentError("qlnb", err))
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().BoolVar(&showVersion, "version", false, "Show CLI version information")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.yaml (default: XDG config dir)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: trace, debug, info, warn, error, off")
	rootCmd.PersistentFlags().StringVar(&engineFlag, "engine", config.EnginePostgres, "Query engine: postgres, sqlite or remote")
}
