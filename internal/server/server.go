package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"workctl/internal/metrics"
	"workctl/internal/runner"
)

// Runs is the part of the runner the status server needs.
type Runs interface {
	Current() (runner.Status, bool)
	CancelCurrent() (string, error)
}

// NewRouter serves metrics, health and the state of the current run.
func NewRouter(runs Runs, log *zap.SugaredLogger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debugf("HTTP %s %s %d %v", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	})

	router.GET("/metrics", gin.WrapH(metrics.Handler()))
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/runs/current", func(c *gin.Context) {
		st, ok := runs.Current()
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": runner.ErrNoRun.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	})
	router.POST("/runs/current/cancel", func(c *gin.Context) {
		id, err := runs.CancelCurrent()
		if err != nil {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"run_id": id})
	})
	return router
}

// Start serves the router on addr in the background.
func Start(addr string, runs Runs, log *zap.SugaredLogger) *http.Server {
	srv := &http.Server{
		Addr:        addr,
		Handler:     NewRouter(runs, log),
		ReadTimeout: 5 * time.Second,
	}
	go func() {
		log.Infof("Starting status server on %s", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("Status server failed: %v", err)
		}
	}()
	return srv
}

// Shutdown stops srv, giving in-flight requests a few seconds.
func Shutdown(srv *http.Server, log *zap.SugaredLogger) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorf("Failed to shut down status server: %v", err)
	}
}
