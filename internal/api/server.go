// Package api exposes the live bot over HTTP: an external scheduler posts
// cycle triggers, dashboards read session state.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"sweep-trading-bot/config"
	"sweep-trading-bot/internal/live"
	"sweep-trading-bot/internal/session"
	"sweep-trading-bot/internal/store"
)

// Server represents the HTTP API server.
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	cfg         *config.Config
	coordinator *live.Coordinator
	store       store.SessionStore
	log         zerolog.Logger
}

// NewServer wires routes and middleware.
func NewServer(cfg *config.Config, coordinator *live.Coordinator, st store.SessionStore, log zerolog.Logger) *Server {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = strings.Split(cfg.Server.AllowedOrigins, ",")
	if cfg.Server.AllowedOrigins == "*" {
		corsConfig.AllowAllOrigins = true
		corsConfig.AllowOrigins = nil
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization"}
	router.Use(cors.New(corsConfig))

	server := &Server{
		router:      router,
		cfg:         cfg,
		coordinator: coordinator,
		store:       st,
		log:         log.With().Str("component", "api").Logger(),
	}
	server.setupRoutes()
	return server
}

func (s *Server) setupRoutes() {
	s.router.GET("/health", s.handleHealth)

	api := s.router.Group("/api/v1")
	if s.cfg.Server.AuthEnabled {
		api.Use(AuthMiddleware(s.cfg.Server.JWTSecret))
	}
	{
		api.POST("/cycle/:symbol", s.handleCycle)
		api.GET("/state/:symbol", s.handleState)
		api.POST("/state/:symbol/killswitch", s.handleKillSwitch)
	}
}

// Start runs the HTTP server until the listener fails.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Server.Host, s.cfg.Server.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.log.Info().Str("addr", addr).Msg("API server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("API server failed: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleCycle runs one evaluation cycle for the symbol. Lock contention is a
// normal outcome, reported as skipped rather than an error.
func (s *Server) handleCycle(c *gin.Context) {
	symbol := c.Param("symbol")
	if !s.knownSymbol(symbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}

	res, err := s.coordinator.AdvanceOneCycle(c.Request.Context(), symbol, time.Now())
	if err != nil {
		s.log.Error().Err(err).Str("symbol", symbol).Msg("cycle failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, res)
}

func (s *Server) handleState(c *gin.Context) {
	symbol := c.Param("symbol")
	if !s.knownSymbol(symbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}

	dayKey := c.Query("day")
	if dayKey == "" {
		dayKey = session.DayKey(time.Now().UnixMilli(), s.cfg.Session)
	}
	st, err := s.store.Load(c.Request.Context(), symbol, dayKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session state", "dayKey": dayKey})
		return
	}
	c.JSON(http.StatusOK, st)
}

// handleKillSwitch flips the per-day kill switch. New entries stop; the
// state machine keeps evaluating.
func (s *Server) handleKillSwitch(c *gin.Context) {
	symbol := c.Param("symbol")
	if !s.knownSymbol(symbol) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown symbol"})
		return
	}

	var req struct {
		Enabled bool `json:"enabled"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	dayKey := session.DayKey(time.Now().UnixMilli(), s.cfg.Session)
	st, err := s.store.Load(c.Request.Context(), symbol, dayKey)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if st == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "no session state", "dayKey": dayKey})
		return
	}

	st.KillSwitch = req.Enabled
	ttl := time.Duration(s.cfg.Live.StateTTLHours) * time.Hour
	if err := s.store.Save(c.Request.Context(), st, ttl); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"symbol": symbol, "dayKey": dayKey, "killSwitch": st.KillSwitch})
}

func (s *Server) knownSymbol(symbol string) bool {
	for _, sym := range s.cfg.Symbols {
		if sym == symbol {
			return true
		}
	}
	return false
}
