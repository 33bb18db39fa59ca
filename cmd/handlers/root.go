/*
Copyright © 2025 Your Name

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package handlers

import (
	"context"
	"fmt"
	"os"

	"blogwire/internal/config"
	"blogwire/internal/logger"
	"blogwire/internal/metrics"
	"blogwire/internal/persistence"
	"blogwire/internal/pipeline"

	"github.com/spf13/cobra"
)

var (
	cfgFile  string
	logLevel string
)

// NewRootCmd creates the root command with all subcommands attached
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blogwire",
		Short: "Blogwire publishes trend-driven blog articles.",
		Long: `Blogwire discovers trending topics, generates long-form articles for them,
links affiliate keywords, attaches a featured image and publishes the result.

Run one cycle by hand with 'blogwire run', or keep 'blogwire schedule' running
to publish daily. 'blogwire serve' exposes the same triggers over HTTP.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.blogwire.yaml or $HOME/.blogwire.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	rootCmd.AddCommand(NewRunCmd())
	rootCmd.AddCommand(NewGenerateCmd())
	rootCmd.AddCommand(NewDiscoverCmd())
	rootCmd.AddCommand(NewScheduleCmd())
	rootCmd.AddCommand(NewServeCmd())
	rootCmd.AddCommand(NewTopicsCmd())
	rootCmd.AddCommand(NewLinksCmd())
	rootCmd.AddCommand(NewPostsCmd())
	rootCmd.AddCommand(NewMigrateCmd())
	rootCmd.AddCommand(NewStatsCmd())

	return rootCmd
}

// Execute runs the root command
func Execute() {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// initConfig reads in config file and ENV variables and configures the logger.
func initConfig() error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("error loading configuration: %w", err)
	}

	level := cfg.Logging.Level
	if logLevel != "" {
		level = logLevel
	}
	logger.Configure(level, cfg.Logging.Format)

	if cfg.App.ConfigFile != "" {
		logger.Debug("Using config file", "path", cfg.App.ConfigFile)
	}
	return nil
}

// openDatabase connects to the configured database and applies pending migrations.
func openDatabase(ctx context.Context) (*persistence.SQLDB, error) {
	cfg := config.Get()
	db, err := persistence.Open(cfg.Database.Driver, cfg.Database.DSN, persistence.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: config.Duration(cfg.Database.ConnMaxLifetime, 0),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := persistence.NewMigrationManager(db).Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// buildPipeline wires the production pipeline on db.
func buildPipeline(ctx context.Context, db persistence.Database, collector *metrics.Collector) (*pipeline.Pipeline, error) {
	b := pipeline.NewBuilder(config.Get()).
		WithDatabase(db).
		WithLogger(logger.Get())
	if collector != nil {
		b = b.WithMetrics(collector)
	}
	return b.Build(ctx)
}
