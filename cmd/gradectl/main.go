// Package main provides the gradectl operator CLI.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/yourusername/grade-market/internal/app"
	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/logger"
)

// Build information - set via ldflags
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var (
	configFile string
	verbose    bool
	cfg        *config.Config
	appLog     *logrus.Logger
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "./config/config.yaml", "Path to configuration file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log at info level instead of warn")

	rootCmd.AddCommand(migrateCmd, courseCmd, resolveCmd, reconcileCmd, contractInfoCmd)
}

var rootCmd = &cobra.Command{
	Use:     "gradectl",
	Short:   "Operate the grade market",
	Long:    `Runs migrations, records courses and grades, sweeps pending settlements and inspects escrow contracts.`,
	Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = app.LoadConfig(cmd.Context(), configFile)
		if err != nil {
			return err
		}

		level := "warn"
		if verbose {
			level = "info"
		}
		appLog = logger.NewLogger(level, cfg.App.Environment)
		return nil
	},
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

// withApp builds the dependency graph for the duration of one command
func withApp(ctx context.Context, fn func(a *app.App) error) error {
	a, err := app.New(ctx, cfg, appLog)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
