package http

import (
	"time"

	"github.com/dkeye/dialin/internal/app/orch"
	"github.com/dkeye/dialin/internal/config"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const requestIDHeader = "X-Request-ID"

func RequestIDMiddleware() gin.HandlerFunc {
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

// AccessLog writes one zerolog event per request.
func AccessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("module", "adapters.http").
			Str("request_id", c.GetString("request_id")).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}

func SetupRouter(cfg *config.Config, o *orch.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Room URLs travel in the path, possibly with escaped slashes.
	r.UseRawPath = true
	r.UnescapePathValues = true

	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	if cfg.Mode == "debug" {
		r.Use(AccessLog())
	}

	h := &Handlers{
		Orch:       o,
		PingPeriod: cfg.PingPeriod,
		ReadLimit:  cfg.ReadLimit,
	}
	limiter := NewRateLimiter(cfg.RateLimit.StartRequests, cfg.RateLimit.Window)

	r.POST("/daily_start_bot", limiter.Middleware(), h.StartBot)
	r.GET("/bot_output/*room_url", h.BotOutput)
	r.GET("/bot_variable/*path", h.BotVariable)
	r.GET("/transcript/*room_url", h.Transcript)

	r.GET("/ws/bot_output/*room_url", h.BotOutputWS)
	r.GET("/sessions", h.ListSessions)
	r.DELETE("/bot/*room_url", h.StopBot)

	log.Info().Str("module", "adapters.http").Str("mode", cfg.Mode).Msg("router setup")
	return r
}
