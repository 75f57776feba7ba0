package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"goexact/adapters/api"
	"goexact/internal/config"
	"goexact/internal/container"
	"goexact/internal/logging"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using system environment variables")
	}

	appConfig, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := logging.New(appConfig.LogLevel)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	appContainer, err := container.New(ctx, appConfig, logger)
	if err != nil {
		logger.Fatal("failed to create application container", zap.Error(err))
	}
	defer func() {
		if err := appContainer.Shutdown(context.Background()); err != nil {
			logger.Error("shutdown failed", zap.Error(err))
		}
	}()

	if appConfig.Profiling.Enabled {
		go func() {
			logger.Info("pprof server starting", zap.String("port", appConfig.Profiling.Port))
			if err := http.ListenAndServe(":"+appConfig.Profiling.Port, api.NewProfiler()); err != nil {
				logger.Warn("pprof server failed", zap.Error(err))
			}
		}()
	}

	server := api.NewServer(appContainer.Exact, appContainer.Results, logger)
	if err := server.ListenAndServe(ctx, ":"+appConfig.Server.Port); err != nil {
		logger.Error("server stopped", zap.Error(err))
	}
}
