package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	appLog "itincal/internal/log"
)

var (
	serveListen string
	serveOnce   bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the periodic calendar refresh",
	Long: `Run the HTTP API and the periodic calendar refresh.

With --once a single refresh (calendar import for today plus candidate pool
reload) runs and the command exits without serving.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "HTTP listen address (overrides config if set)")
	serveCmd.Flags().BoolVar(&serveOnce, "once", false, "run one refresh cycle and exit")
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveListen != "" {
		cfg.Listen = serveListen
	}

	appLog.Info("itincal starting", "version", Version)
	appLog.Info("effective config",
		"listen", cfg.Listen,
		"timezone", cfg.Timezone,
		"refresh", cfg.RefreshCron,
		"database", cfg.Database,
		"ics_count", len(cfg.ICS),
		"candidates_file", cfg.Candidates.File,
		"candidates_webhook", appLog.RedactURL(cfg.Candidates.WebhookURL),
		"policy", cfg.Planner.RankingPolicy,
		"once", serveOnce,
	)

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case sig := <-sigCh:
			appLog.Info("signal received, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	sched := a.scheduler()
	if serveOnce {
		_, err := sched.RunOnce(ctx)
		return err
	}

	// Prime the pool and today's calendar before the first cron tick.
	if _, err := sched.RunOnce(ctx); err != nil {
		appLog.Warn("initial refresh incomplete", "err", err)
	}
	if err := sched.Start(ctx); err != nil {
		return err
	}
	defer sched.Stop()

	err = a.server().Run(ctx)
	appLog.Info("itincal exiting")
	return err
}
