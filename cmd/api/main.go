package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"

	"github.com/HSPiira/timeline-sub001/internal/api/handlers"
	"github.com/HSPiira/timeline-sub001/internal/api/routes"
	"github.com/HSPiira/timeline-sub001/internal/config"
	"github.com/HSPiira/timeline-sub001/internal/db"
	"github.com/HSPiira/timeline-sub001/internal/events"
	"github.com/HSPiira/timeline-sub001/internal/storage"
	"github.com/HSPiira/timeline-sub001/internal/verify"
	"github.com/HSPiira/timeline-sub001/pkg/hashchain"
	"github.com/HSPiira/timeline-sub001/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zlog := logger.Must(cfg.App.Env)
	defer zlog.Sync()

	// 1. Init DB
	database, err := db.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatalf("failed to connect to db: %v", err)
	}
	defer database.Close()

	// 2. Init hash engine
	engine, err := hashchain.NewEngine(hashchain.Algorithm(cfg.Hash.Algorithm))
	if err != nil {
		log.Fatalf("failed to init hash engine: %v", err)
	}

	// 3. Init Storage
	var (
		backend storage.Backend
		tokens  *storage.TokenStore
	)
	switch cfg.Storage.Backend {
	case "s3":
		backend, err = storage.NewS3Store(ctx, cfg.S3)
	case "fs":
		tokens = storage.NewTokenStore(nil)
		backend, err = storage.NewFSStore(cfg.Storage.FSRoot, cfg.Storage.BaseURL, tokens)
	default:
		log.Fatalf("unknown storage backend: %s", cfg.Storage.Backend)
	}
	if err != nil {
		log.Fatalf("failed to init storage: %v", err)
	}

	// 4. Init Queue client (for audit enqueue)
	redisOpt := asynq.RedisClientOpt{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}
	queueClient := asynq.NewClient(redisOpt)
	defer queueClient.Close()

	// 5. Domain services
	eventService := events.NewService(database.Events, engine, zlog)
	verifier := verify.New(engine, database.Events)

	// 6. Init Echo
	e := echo.New()
	e.HideBanner = true

	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderAuthorization, echo.HeaderContentType, echo.HeaderAccept},
		MaxAge:       3600,
	}))
	e.Use(echomw.GzipWithConfig(echomw.GzipConfig{Level: 5}))

	// 7. Register Routes
	h := handlers.NewHandlers(
		eventService, database.Events, verifier,
		backend, tokens, queueClient,
		cfg.Storage.DownloadURLTTL, cfg.Worker.AuditEventLimit,
		zlog,
	)
	routes.Register(e, h)

	// 8. Enhanced health check
	e.GET("/health", func(c echo.Context) error {
		type depStatus struct {
			Status string `json:"status"`
			Error  string `json:"error,omitempty"`
		}
		type healthResponse struct {
			Status  string               `json:"status"`
			Version string               `json:"version"`
			Deps    map[string]depStatus `json:"deps"`
		}

		deps := make(map[string]depStatus)
		overall := "ok"

		pingCtx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
		defer cancel()
		if err := database.Pool.Ping(pingCtx); err != nil {
			deps["postgres"] = depStatus{Status: "error", Error: err.Error()}
			overall = "degraded"
		} else {
			deps["postgres"] = depStatus{Status: "ok"}
		}

		conn, dialErr := (&net.Dialer{}).DialContext(pingCtx, "tcp", cfg.Redis.Addr)
		if dialErr != nil {
			deps["redis"] = depStatus{Status: "error", Error: dialErr.Error()}
			overall = "degraded"
		} else {
			conn.Close()
			deps["redis"] = depStatus{Status: "ok"}
		}

		deps["storage"] = depStatus{Status: "ok"}

		status := http.StatusOK
		if overall != "ok" {
			status = http.StatusServiceUnavailable
		}

		return c.JSON(status, healthResponse{
			Status:  overall,
			Version: cfg.App.Version,
			Deps:    deps,
		})
	})

	// 9. Start Server
	go func() {
		port := strconv.Itoa(cfg.App.Port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			log.Printf("server stopped: %v", err)
		}
	}()

	// 10. Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down server...")
	ctxShutdown, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelShutdown()

	if err := e.Shutdown(ctxShutdown); err != nil {
		log.Fatalf("server forced to shutdown: %v", err)
	}
}
