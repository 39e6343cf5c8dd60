package main

import (
	// Standard library
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	// External dependencies
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/semaphore"

	// Internal packages
	"github.com/shanlih/lectprep/cmd/server/internal/api"
	"github.com/shanlih/lectprep/cmd/server/internal/audit"
	"github.com/shanlih/lectprep/cmd/server/internal/config"
	"github.com/shanlih/lectprep/cmd/server/internal/gateway"
	"github.com/shanlih/lectprep/cmd/server/internal/middleware"
	"github.com/shanlih/lectprep/cmd/server/internal/relay"
	"github.com/shanlih/lectprep/cmd/server/internal/store"
	"github.com/shanlih/lectprep/cmd/server/internal/summary"
	"github.com/shanlih/lectprep/cmd/server/internal/tingwu"
	"github.com/shanlih/lectprep/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	logInstance, err := logger.Init(logger.Config{
		Level:       cfg.Log.Level,
		Format:      cfg.Log.Format,
		Environment: cfg.Server.Env,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	appLogger := logInstance.With("component", "server")

	// Validate configuration
	if err := config.ValidateConfig(cfg); err != nil {
		appLogger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	appLogger.Info("configuration loaded", "env", cfg.Server.Env, "port", cfg.Server.Port)

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	// Initialize meeting store
	meetings, err := store.NewFileStore(cfg.Data.MeetingsDir)
	if err != nil {
		appLogger.Error("meeting store init failed", "error", err)
		os.Exit(1)
	}
	appLogger.Info("meeting store ready", "dir", cfg.Data.MeetingsDir)

	// Initialize transcript audit logger
	auditLogger := audit.NewTranscriptLogger(cfg.Data.AuditLogsDir)
	appLogger.Info("transcript audit logger ready", "dir", cfg.Data.AuditLogsDir)

	// Initialize speech service client
	tw, err := tingwu.NewClient(cfg.Tingwu, logInstance.With("component", "tingwu"))
	if err != nil {
		appLogger.Error("tingwu client init failed", "error", err)
		os.Exit(1)
	}
	if !tw.IsConfigured() {
		appLogger.Warn("tingwu not configured, transcription APIs run in demo mode")
	}

	// Initialize session registry and client gateway
	registry := relay.NewRegistry(nil, logInstance)
	hub := gateway.NewHub(registry, meetings, auditLogger, cfg.Relay, logInstance.With("component", "gateway"))

	// Summary poller shared by all SSE streams
	poller := summary.NewPoller(tw, meetings, summary.PollerOptions{
		Logger: logInstance.With("component", "summary"),
	})
	summarySem := semaphore.NewWeighted(int64(cfg.Relay.MaxSummaryStreams))

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())

	r.GET("/api/health", api.HandleHealth())
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", gin.WrapH(hub))

	r.POST("/api/v1/tingwu/create-task", api.HandleCreateRealtimeTask(tw, meetings))
	r.POST("/api/v1/tingwu/stop-task", api.HandleStopTask(tw))
	r.GET("/api/v1/tingwu/task-info/:task_id", api.HandleGetTaskInfo(tw))

	r.POST("/api/v1/meetings", api.HandleCreateMeeting(meetings))
	r.GET("/api/v1/meetings/:id", api.HandleGetMeeting(meetings))
	r.PUT("/api/v1/meetings/:id/task", api.HandleSetMeetingTask(meetings))
	r.GET("/api/v1/meetings/:id/summary/stream", api.HandleSummaryStream(poller, meetings, summarySem))

	// Create HTTP server with graceful shutdown
	serverAddr := fmt.Sprintf(":%s", cfg.Server.Port)
	srv := &http.Server{
		Addr:    serverAddr,
		Handler: r,
	}

	go func() {
		appLogger.Info("server starting", "addr", serverAddr, "env", cfg.Server.Env)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			appLogger.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal to gracefully shut down the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)
	<-quit
	appLogger.Info("shutdown signal received, shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Close upstream transcription links before dropping HTTP connections
	registry.CloseAll()

	if err := srv.Shutdown(ctx); err != nil {
		appLogger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}
	appLogger.Info("server shutdown complete")
}
