// Package cli provides the itincal command-line interface.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"itincal/internal/config"
	appLog "itincal/internal/log"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	configPath string
	envFile    string
	sessionID  string
	verbose    bool

	// Loaded in PersistentPreRunE.
	cfg *config.Config
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "itincal",
	Short: "Fill the gaps in a travel day with well-placed activities",
	Long: `itincal keeps a conflict-free timeline of a traveler's day, imports the
fixed commitments from ICS calendars, finds the open windows between them and
ranks candidate activities by duration fit, distance and time of day.`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("load config %s: %w", configPath, err)
		}
		if err := cfg.ApplyEnv(envFile); err != nil {
			return err
		}
		cfg.Normalize()
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		level := appLog.ParseLevel(cfg.LogLevel)
		if verbose {
			level = appLog.LevelDebug
		}
		if err := appLog.Setup(cfg.LogFile, level); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: log file unavailable: %v\n", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = appLog.Close()
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "./itincal.yaml", "path to config file")
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "optional .env file with ITINCAL_* overrides")
	rootCmd.PersistentFlags().StringVarP(&sessionID, "session", "s", "", "session ID (default \"default\")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(gapsCmd)
	rootCmd.AddCommand(suggestCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(removeCmd)
	rootCmd.AddCommand(clearCmd)
	rootCmd.AddCommand(activitiesCmd)
}
