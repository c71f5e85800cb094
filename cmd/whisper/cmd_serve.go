package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/aristath/whisper/internal/scheduler"
	"github.com/aristath/whisper/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP server and the internal scheduler",
	Long: `Serve starts the HTTP surface (status, health, dispatch) and the
internal cron loop that fires the scheduler every 15 minutes.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	a, err := buildApp()
	if err != nil {
		return err
	}
	defer a.Close()

	srv := server.New(server.Config{
		Port:       a.Cfg.Port,
		APIKey:     a.Cfg.APIKey,
		DevMode:    a.Cfg.DevMode,
		Clock:      a.Clock,
		Dispatcher: a.Dispatcher,
		JobStatus:  a.JobStatus,
		Budget:     a.Budget,
		Databases:  a.Databases(),
	}, a.Log)

	loop := scheduler.NewLoop(a.Dispatcher, a.Log)
	if err := loop.Start(); err != nil {
		return err
	}
	defer loop.Stop()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- srv.Start()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serveErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-quit:
		a.Log.Info().Msg("shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(ctx)
}
