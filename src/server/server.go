package server

import (
	"fmt"
	"strings"

	"market-relay/src/broadcast"
	"market-relay/src/config"
	"market-relay/src/logger"
	"market-relay/src/models"
	"market-relay/src/state"
	"market-relay/src/utils"

	"github.com/gin-gonic/gin"
)

// -----------------------------------------------------------------------------
// StreamServer
// -----------------------------------------------------------------------------
// Downstream surface: one long-lived streaming connection per subscription
// (SSE by default, websocket as the alternate transport) plus the
// point-in-time REST snapshots used for pre-stream page load, served straight
// from the model cache.
// -----------------------------------------------------------------------------

type StreamServer struct {
	Config   *config.Config
	Logger   *logger.Logger
	Registry *broadcast.Registry
	Cache    *state.ModelStateCache
	History  *utils.RingBuffer[models.MAlertEvent]

	engine *gin.Engine
}

// -----------------------------------------------------------------------------
// Constructor
// -----------------------------------------------------------------------------

func NewStreamServer(
	cfg *config.Config,
	registry *broadcast.Registry,
	cache *state.ModelStateCache,
	history *utils.RingBuffer[models.MAlertEvent],
	log *logger.Logger,
) *StreamServer {
	// Set Gin mode
	if cfg.LogLevel != "DEBUG" {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &StreamServer{
		Config:   cfg,
		Logger:   log,
		Registry: registry,
		Cache:    cache,
		History:  history,
		engine:   gin.Default(),
	}

	// Add CORS Middleware
	s.engine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if strings.HasPrefix(origin, "http://127.0.0.1:") || strings.HasPrefix(origin, "http://localhost:") {
			c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
		}
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	s.setupRoutes()
	return s
}

// -----------------------------------------------------------------------------
// Route Setup
// -----------------------------------------------------------------------------

func (s *StreamServer) setupRoutes() {
	// Streaming endpoints
	s.engine.GET("/stream/:channel", s.handleStream)
	s.engine.GET("/ws/:channel", s.handleWebSocket)

	// REST bootstrap endpoints
	s.engine.GET("/api/snapshot/:channel", s.getSnapshot)
	s.engine.GET("/api/alerts/history", s.getAlertHistory)
	s.engine.GET("/api/config", s.getConfig)
	s.engine.GET("/api/health", s.getHealth)
}

// -----------------------------------------------------------------------------
// Server Lifecycle
// -----------------------------------------------------------------------------

func (s *StreamServer) Start() error {
	addr := fmt.Sprintf("%s:%d", s.Config.Host, s.Config.Port)
	s.Logger.Info("Starting stream server on %s", addr)
	return s.engine.Run(addr)
}

// -----------------------------------------------------------------------------
// Subscription resolution
// -----------------------------------------------------------------------------

// resolveSubscription validates the channel path segment and the symbol
// query parameter. Symbol-scoped channels require a symbol; global ones
// reject one.
func (s *StreamServer) resolveSubscription(c *gin.Context) (models.Channel, string, error) {
	channel, err := models.ParseChannel(c.Param("channel"))
	if err != nil {
		return "", "", err
	}

	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if channel.SymbolScoped() {
		if symbol == "" {
			return "", "", fmt.Errorf("channel %s requires a symbol", channel)
		}
	} else if symbol != "" {
		return "", "", fmt.Errorf("channel %s is not symbol-scoped", channel)
	}

	return channel, symbol, nil
}

// -----------------------------------------------------------------------------
// REST Handlers
// -----------------------------------------------------------------------------

// getSnapshot serves the point-in-time state used for initial page load.
func (s *StreamServer) getSnapshot(c *gin.Context) {
	channel, symbol, err := s.resolveSubscription(c)
	if err != nil {
		c.JSON(400, gin.H{"error": err.Error()})
		return
	}

	if channel == models.ChannelAll {
		entries := s.Cache.Entries()
		out := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			out = append(out, gin.H{
				"channel": e.Channel,
				"symbol":  e.Symbol,
				"state":   e.State,
			})
		}
		c.JSON(200, out)
		return
	}

	cached := s.Cache.Get(channel, symbol)
	if cached == nil {
		c.JSON(404, gin.H{"error": "no data cached yet"})
		return
	}
	c.JSON(200, cached)
}

// -----------------------------------------------------------------------------

func (s *StreamServer) getAlertHistory(c *gin.Context) {
	if s.History == nil {
		c.JSON(200, []models.MAlertEvent{})
		return
	}
	c.JSON(200, s.History.GetLatest(s.Config.Alerts.HistorySize))
}

// -----------------------------------------------------------------------------

func (s *StreamServer) getConfig(c *gin.Context) {
	c.JSON(200, gin.H{
		"symbols":     s.Config.Symbols,
		"resolutions": s.Config.Candles.Resolutions,
		"channels":    models.AllChannels,
	})
}

// -----------------------------------------------------------------------------

func (s *StreamServer) getHealth(c *gin.Context) {
	c.JSON(200, gin.H{
		"status":      "ok",
		"connections": s.Registry.ConnectionCount(),
		"cached":      len(s.Cache.Entries()),
	})
}
