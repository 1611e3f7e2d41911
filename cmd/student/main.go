package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"smartattendance/internal/auth"
	"smartattendance/internal/config"
	"smartattendance/internal/docstore"
	"smartattendance/internal/faceclient"
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
		log.Fatalf("student daemon failed: %v", err)
	}
}

// scanRunner owns at most one scan lifetime at a time and keeps the last scan
// session around for status and attendance confirmation.
type scanRunner struct {
	mu      sync.Mutex
	sess    *session.ScanSession
	cancel  context.CancelFunc
	running bool
}

func (sr *scanRunner) start(scanner *session.Scanner) bool {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.running {
		return false
	}
	ctx, cancel := context.WithCancel(context.Background())
	sr.cancel = cancel
	sr.running = true
	// A new lifetime begins; the previous scan's outcome is no longer current.
	sr.sess = nil
	go func() {
		sess, err := scanner.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			log.Printf("scan ended: %v", err)
		}
		sr.mu.Lock()
		sr.sess = sess
		sr.running = false
		sr.mu.Unlock()
		cancel()
	}()
	return true
}

func (sr *scanRunner) stop() {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	if sr.cancel != nil {
		sr.cancel()
	}
}

func (sr *scanRunner) current() (*session.ScanSession, bool) {
	sr.mu.Lock()
	defer sr.mu.Unlock()
	return sr.sess, sr.running
}

func run(cfg config.App) error {
	store, cleanup, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	radioScanner := openScanner(cfg)
	resolver := session.NewResolver(store)
	gate := session.NewGate(store)
	recorder := session.NewRecorder(store)
	face := faceclient.New(cfg.FaceServiceURL, cfg.FaceSkip)

	if !cfg.FaceSkip {
		if err := face.Health(context.Background()); err != nil {
			log.Printf("WARNING: face service not available: %v", err)
		}
	}

	runner := &scanRunner{}

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
		tokens, err := auth.Issue(req.DeviceID, "student", cfg.JWTIssuer, cfg.JWTSigningKey, cfg.AccessTTL, cfg.RefreshTTL)
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

	authGroup := r.Group("/v1", auth.DeviceAuth(cfg.JWTSigningKey, cfg.JWTIssuer), auth.RequireRole("student"))

	authGroup.POST("/scan/start", func(c *gin.Context) {
		studentID := cfg.StudentID
		var req struct {
			StudentID string `json:"student_id"`
		}
		if err := c.ShouldBindJSON(&req); err == nil && req.StudentID != "" {
			studentID = req.StudentID
		}
		if studentID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "student id required"})
			return
		}

		// Biometric gate: no enrolled template, no scan. Errors fail closed.
		enrolled, err := face.HasEnrolledTemplate(c.Request.Context(), studentID)
		if err != nil {
			log.Printf("face template check failed for %s: %v", studentID, err)
			c.JSON(http.StatusForbidden, gin.H{"error": "face enrollment could not be verified"})
			return
		}
		if !enrolled {
			c.JSON(http.StatusForbidden, gin.H{"error": "no face data found, register your face first"})
			return
		}

		scanner := session.NewScanner(radioScanner, resolver, gate, studentID)
		if !runner.start(scanner) {
			c.JSON(http.StatusConflict, gin.H{"error": "scan already in progress"})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"state": "scanning", "student_id": studentID})
	})

	authGroup.POST("/scan/stop", func(c *gin.Context) {
		runner.stop()
		c.JSON(http.StatusOK, gin.H{"state": "stopped"})
	})

	authGroup.GET("/scan/status", func(c *gin.Context) {
		sess, running := runner.current()
		if sess == nil {
			state := "idle"
			if running {
				state = "scanning"
			}
			c.JSON(http.StatusOK, gin.H{"state": state})
			return
		}
		body := gin.H{
			"state":     sess.State().String(),
			"last_seen": sess.LastSeen(),
			"recorded":  sess.Recorded(),
		}
		if res, ok := sess.Resolution(); ok {
			body["session_uuid"] = res.SessionUUID
			body["course_id"] = res.CourseID
			body["schedule_id"] = res.ScheduleID
			enrolled, checked := sess.Enrolled()
			body["enrollment_checked"] = checked
			body["enrolled"] = enrolled
			body["can_confirm"] = checked && enrolled && !sess.Recorded()
		}
		c.JSON(http.StatusOK, body)
	})

	authGroup.POST("/attendance/confirm", func(c *gin.Context) {
		studentID := cfg.StudentID
		var req struct {
			StudentID string `json:"student_id"`
		}
		if err := c.ShouldBindJSON(&req); err == nil && req.StudentID != "" {
			studentID = req.StudentID
		}

		sess, _ := runner.current()
		if sess == nil {
			c.JSON(http.StatusConflict, gin.H{"error": session.ErrNoValidSession.Error()})
			return
		}
		if studentID != sess.StudentID() {
			// The face and enrollment gates were run for the scanning student
			// only; nobody else can be confirmed through this scan.
			c.JSON(http.StatusForbidden, gin.H{"error": "confirm is limited to the student who scanned"})
			return
		}
		if sess.Recorded() {
			c.JSON(http.StatusOK, gin.H{"recorded": true, "already": true})
			return
		}

		if err := sess.Confirm(c.Request.Context(), recorder, studentID); err != nil {
			if errors.Is(err, session.ErrNoValidSession) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			// Retryable: local scan state is untouched, tap again.
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
			return
		}
		res, _ := sess.Resolution()
		c.JSON(http.StatusOK, gin.H{"recorded": true, "session_uuid": res.SessionUUID})
	})

	return serve(r, cfg.HTTPPort, func(context.Context) { runner.stop() })
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

func openScanner(cfg config.App) radio.Scanner {
	if cfg.RadioBackend == "redis" {
		client := redis.NewClient(&redis.Options{
			Addr:        cfg.RedisAddr,
			DialTimeout: 2 * time.Second,
		})
		return radio.NewRedisScanner(client, cfg.BeaconChannel)
	}
	log.Println("using in-process radio; broadcasters must share this process")
	return radio.NewAir().Scanner()
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
