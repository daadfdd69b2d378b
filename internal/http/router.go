package http

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	appconfig "github.com/saker-ai/phoneai-client/internal/config"
	"github.com/saker-ai/phoneai-client/pkg/realtime"
)

const requestIDHeader = "X-Request-ID"

// SessionController is the session surface the control API drives.
type SessionController interface {
	Snapshot() realtime.Snapshot
	SendTextMessage(text string) error
	SendAudioMessage(samples []int16) error
	ResetHistory() error
	// Reconnect replaces the connection and waits for it until ctx ends.
	Reconnect(ctx context.Context) error
}

// NewRouter executes the newRouter function.
func NewRouter(cfg appconfig.Config, session SessionController, logger *zap.Logger) *gin.Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := gin.New()
	router.RedirectTrailingSlash = false
	router.RedirectFixedPath = false
	router.Use(gin.Recovery())
	router.Use(requestID())
	router.Use(requestLogger(logger))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	h := &sessionHandler{
		session:    session,
		sampleRate: cfg.Audio.SampleRate,
		channels:   cfg.Audio.Channels,
		logger:     logger,
	}
	group := router.Group("/session")
	group.GET("", h.snapshot)
	group.POST("/messages", h.sendText)
	group.POST("/audio", h.sendAudio)
	group.POST("/reset", h.reset)
	group.POST("/reconnect", h.reconnect)

	if cfg.Recordings.Enabled {
		mountRecordings(router, cfg.Recordings.Dir, logger)
	}

	return router
}

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(requestIDHeader, id)
		c.Next()
	}
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		latency := time.Since(start)
		logger.Info("http request",
			zap.String("request_id", c.GetString("request_id")),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.String("query", c.Request.URL.RawQuery),
			zap.String("client_ip", c.ClientIP()),
			zap.Int("status", c.Writer.Status()),
			zap.Int("bytes", c.Writer.Size()),
			zap.Duration("latency", latency),
			zap.String("user_agent", c.Request.UserAgent()),
		)
	}
}
