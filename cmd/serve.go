/*
Copyright © 2025 ALESSIO TONIOLO
*/
package cmd

import (
	"context"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"ollamamq/internal/backend"
	"ollamamq/internal/config"
	"ollamamq/internal/dashboard"
	"ollamamq/internal/dispatcher"
	"ollamamq/internal/history"
	"ollamamq/internal/httpapi"
	"ollamamq/internal/logging"
)

var (
	flagPort             int
	flagOllamaURL        string
	flagTimeoutSeconds   int
	flagIdleSeconds      int
	flagDisableDashboard bool
	flagDisableHistory   bool
	flagLogPath          string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dispatcher, listening for requests and forwarding them to the backend",
	Long:  "Run the dispatcher: queue incoming requests per user, round-robin dispatch them to a single Ollama-compatible backend, and stream the responses back.",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	cfg := config.Defaults()
	serveCmd.Flags().IntVar(&flagPort, "port", cfg.Port, "port to listen on")
	serveCmd.Flags().StringVar(&flagOllamaURL, "ollama-url", cfg.OllamaURL, "base URL of the Ollama-compatible backend")
	serveCmd.Flags().IntVar(&flagTimeoutSeconds, "timeout", int(cfg.BackendTimeout.Seconds()), "total backend call timeout, in seconds")
	serveCmd.Flags().IntVar(&flagIdleSeconds, "idle-threshold", int(cfg.IdleThreshold.Seconds()), "seconds of inactivity before a user's queue is garbage-collected")
	serveCmd.Flags().BoolVar(&flagDisableDashboard, "disable-dashboard", false, "disable the periodic console dashboard")
	serveCmd.Flags().BoolVar(&flagDisableHistory, "disable-history", false, "disable the sqlite job-outcome audit log")
	serveCmd.Flags().StringVar(&flagLogPath, "log-path", cfg.LogPath, "path to the append-only log file")
}

func runServe(cmd *cobra.Command, args []string) error {
	if err := config.LoadEnvFile(""); err != nil {
		return err
	}
	cfg, err := config.FromEnv(config.Defaults())
	if err != nil {
		return err
	}

	if cmd.Flags().Changed("port") {
		cfg.Port = flagPort
	}
	if cmd.Flags().Changed("ollama-url") {
		cfg.OllamaURL = flagOllamaURL
	}
	if cmd.Flags().Changed("timeout") {
		cfg.BackendTimeout = time.Duration(flagTimeoutSeconds) * time.Second
	}
	if cmd.Flags().Changed("idle-threshold") {
		cfg.IdleThreshold = time.Duration(flagIdleSeconds) * time.Second
	}
	if cmd.Flags().Changed("disable-dashboard") {
		cfg.DisableDashboard = flagDisableDashboard
	}
	if cmd.Flags().Changed("disable-history") {
		cfg.DisableHistory = flagDisableHistory
	}
	if cmd.Flags().Changed("log-path") {
		cfg.LogPath = flagLogPath
	}

	logger, closeLog := logging.Open(cfg.LogPath)
	defer closeLog()

	var recorder dispatcher.HistoryRecorder
	var historyReader dashboard.HistoryReader
	if !cfg.DisableHistory {
		historyDB, err := history.Open()
		if err != nil {
			logger.Printf("[Dispatcher] history: disabled, failed to open audit log: %v", err)
		} else {
			defer historyDB.Close()
			recorder = &historyAdapter{db: historyDB}
			historyReader = historyDB
		}
	}

	registry := dispatcher.NewRegistry()
	client := backend.New(cfg.OllamaURL, cfg.BackendTimeout)
	scheduler := dispatcher.NewScheduler(registry, client, logger, recorder, cfg.IdleThreshold, dispatcher.DefaultGCInterval)
	disp := dispatcher.New(registry)

	addr := ":" + strconv.Itoa(cfg.Port)
	server := httpapi.New(addr, disp, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return scheduler.Run(groupCtx)
	})
	group.Go(func() error {
		<-groupCtx.Done()
		return server.Stop(5 * time.Second)
	})
	group.Go(server.Start)

	if !cfg.DisableDashboard {
		board := dashboard.New(disp, historyReader, logger, 2*time.Second)
		group.Go(func() error {
			board.Run(groupCtx)
			return nil
		})
	}

	logger.Printf("[Serve] dispatching to %s on %s", cfg.OllamaURL, addr)
	return group.Wait()
}

// historyAdapter bridges internal/history's storage-shaped Record to
// the dispatcher's narrower HistoryRecorder contract, so dispatcher
// never needs to import history directly.
type historyAdapter struct {
	db *history.DB
}

func (a *historyAdapter) Append(r dispatcher.HistoryRecord) error {
	return a.db.Append(history.Record{
		UserHash:   r.UserHash,
		Path:       r.Path,
		Outcome:    r.Outcome,
		Code:       r.Code,
		Duration:   r.Duration,
		FinishedAt: r.FinishedAt,
	})
}
