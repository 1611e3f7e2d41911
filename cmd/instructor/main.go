package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"smartattendance/internal/auth"
	"smartattendance/internal/config"
	"smartattendance/internal/docstore"
	"smartattendance/internal/httpmiddleware"
	"smartattendance/internal/radio"
	"smartattendance/internal/session"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg); err != nil {
		log.Fatalf("instructor daemon failed: %v", err)
	}
}

func run(cfg config.App) error {
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	adv, err := openAdvertiser(cfg)
	if err != nil {
		return err
	}

	broadcaster := session.NewBroadcaster(store, adv)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(httpmiddleware.NewTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
			"state":  broadcaster.State().String(),
			"store":  cfg.StoreBackend,
			"radio":  cfg.RadioBackend,
		})
	})

	r.POST("/v1/devices/register", func(c *gin.Context) {
		var req struct {
			DeviceID string `json:"device_id" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		tokens, err := auth.Issue(req.DeviceID, "instructor", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "token issue failed"})
			return
		}
		c.JSON(http.StatusCreated, gin.H{
			"access_token":  tokens.AccessToken,
			"refresh_token": tokens.RefreshToken,
			"expires_at":    tokens.AccessExp.Unix(),
		})
	})

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer), auth.RequireRole("instructor"))

	authGroup.POST("/sessions/start", func(c *gin.Context) {
		var req struct {
			CourseID   string `json:"course_id" binding:"required"`
			ScheduleID string `json:"schedule_id" binding:"required"`
			Supersede  bool   `json:"supersede"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		broadcaster.Select(req.CourseID, req.ScheduleID)
		ctx := c.Request.Context()

		id, err := broadcaster.Start(ctx)
		var conflict *session.ActiveSessionError
		if errors.As(err, &conflict) {
			if !req.Supersede {
				// Surface the stale session for an operator decision.
				c.JSON(http.StatusConflict, gin.H{
					"error":        "an attendance session is already active",
					"active_uuid":  conflict.UUID,
					"resolve_with": "retry with supersede=true to close it and start a new one",
				})
				return
			}
			if err := broadcaster.CloseSession(ctx, conflict.UUID); err != nil {
				c.JSON(http.StatusBadGateway, gin.H{"error": "failed to close previous session: " + err.Error()})
				return
			}
			log.Printf("previous session %s closed, starting new one", conflict.UUID)
			id, err = broadcaster.Start(ctx)
		}
		if err != nil {
			c.JSON(startStatus(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, gin.H{"session_uuid": id, "state": broadcaster.State().String()})
	})

	authGroup.POST("/sessions/stop", func(c *gin.Context) {
		err := broadcaster.Stop(c.Request.Context())
		switch {
		case errors.Is(err, session.ErrNotAdvertising):
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		case err != nil:
			// The radio is already stopped; the record flip failed and is
			// the operator's to retry or close by hand.
			c.JSON(http.StatusOK, gin.H{"state": broadcaster.State().String(), "warning": err.Error()})
		default:
			c.JSON(http.StatusOK, gin.H{"state": broadcaster.State().String()})
		}
	})

	authGroup.GET("/sessions/current", func(c *gin.Context) {
		id, live := broadcaster.ActiveSession()
		c.JSON(http.StatusOK, gin.H{
			"state":        broadcaster.State().String(),
			"session_uuid": id,
			"advertising":  live,
		})
	})

	return serve(r, cfg.HTTPPort, func(ctx context.Context) {
		if broadcaster.State() == session.Advertising {
			if err := broadcaster.Stop(ctx); err != nil {
				log.Printf("closing session on shutdown: %v", err)
			}
		}
	})
}

func startStatus(err error) int {
	var conflict *session.ActiveSessionError
	switch {
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.Is(err, session.ErrNoScheduleSelected):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrAlreadyAdvertising):
		return http.StatusConflict
	case errors.Is(err, session.ErrAdvertiseStart):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func openStore(cfg config.App) (docstore.Store, func(), error) {
	if cfg.StoreBackend == "postgres" {
		pg, err := docstore.NewPostgres(cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		if err := pg.Migrate(context.Background()); err != nil {
			return nil, nil, err
		}
		return pg, func() { _ = pg.Close() }, nil
	}
	log.Println("using in-memory document store")
	return docstore.NewMemory(), func() {}, nil
}

func openAdvertiser(cfg config.App) (radio.Advertiser, error) {
	if cfg.RadioBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:         cfg.RedisAddr,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  1 * time.Second,
			WriteTimeout: 1 * time.Second,
		})
		return radio.NewRedisAdvertiser(client, cfg.BeaconChannel, cfg.AdvertiseInterval), nil
	}
	log.Println("using in-process radio; scanners must share this process")
	return radio.NewAir().Advertiser(), nil
}

func serve(handler http.Handler, port string, onShutdown func(context.Context)) error {
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Printf("starting server on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	onShutdown(shutdownCtx)

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("server forced shutdown: %v", err)
	}
	log.Println("server exited")
	return nil
}
