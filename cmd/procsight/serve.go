package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"procsight/internal/bootstrap"
	"procsight/internal/config"
	"procsight/internal/server"
	"procsight/internal/tracer"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var watchEnv bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the telemetry monitor, HTTP API and websocket stream",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&watchEnv, "watch-env", true, "Reload AI settings when the .env file changes")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	container, err := bootstrap.NewContainer(cfg)
	if err != nil {
		return err
	}
	log := container.Logger

	shutdownTracer := tracer.InitTracer(cfg.App.OtelEnabled, cfg.App.OtelEndpoint, "procsight", log)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := container.Start(ctx); err != nil {
		return err
	}

	srv := server.New(cfg, container)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		container.WebSocketHub.Run(gctx)
		return nil
	})
	g.Go(srv.Run)
	if watchEnv {
		g.Go(func() error {
			return config.Watch(gctx, envFile, log, func(next *config.Config) {
				container.ApplyConfig(gctx, next)
			})
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	container.Close(closeCtx)
	if shutdownErr := shutdownTracer(closeCtx); shutdownErr != nil {
		log.Warn("Main", "Tracer shutdown failed", map[string]interface{}{"error": shutdownErr.Error()})
	}
	return err
}

// loadConfig reads --env when it exists, otherwise the process environment.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Reload(envFile)
	if err == nil {
		return cfg, nil
	}
	cfg = config.Load()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
