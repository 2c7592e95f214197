package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/lk2023060901/file-ingest-backend/internal/conf"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/injector"
	"github.com/lk2023060901/file-ingest-backend/internal/pkg/logger"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	flags := conf.Flags()
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	configFile, _ := flags.GetString("config")

	// Load configuration
	config, err := conf.LoadConfig(configFile, flags)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	// Initialize global logger
	if err := logger.InitGlobal(&config.Log); err != nil {
		panic("failed to initialize logger: " + err.Error())
	}
	log := logger.L()
	defer log.Sync()

	log.Info("config loaded successfully", zap.String("file", configFile))

	app, cleanup, err := injector.InitializeApp(config, log)
	if err != nil {
		log.Fatal("failed to initialize application", zap.Error(err))
	}
	defer cleanup()

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- app.HTTPServer.Start()
	}()

	log.Info("server started successfully")

	// Wait for interrupt signal or a listener failure
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		log.Info("shutting down server...", zap.String("signal", sig.String()))
	case err := <-serverErr:
		if err != nil {
			log.Error("HTTP server failed", zap.Error(err))
		}
	}

	// Graceful shutdown with timeout; in-flight uploads finish before the
	// janitor, pool and stores are released by cleanup.
	ctx, cancel := context.WithTimeout(context.Background(), config.Server.ShutdownTimeout)
	defer cancel()

	if err := app.HTTPServer.Stop(ctx); err != nil {
		log.Error("HTTP server forced to shutdown", zap.Error(err))
	}

	log.Info("server exited")
}
