package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"socialfi-engine/pkg/auth"
	"socialfi-engine/pkg/cache"
	"socialfi-engine/pkg/config"
	"socialfi-engine/pkg/connectors"
	"socialfi-engine/pkg/database"
	"socialfi-engine/pkg/engine"
	"socialfi-engine/pkg/ledger"
	"socialfi-engine/pkg/websocket"
)

// Handlers carries every dependency the HTTP layer needs. All handlers hang
// off this struct; nothing is global.
type Handlers struct {
	db         *gorm.DB
	store      ledger.Store
	executor   *engine.Executor
	cache      *cache.Cache
	hub        *websocket.Hub
	registry   *connectors.Registry
	jwt        *auth.JWTService
	challenges *auth.ChallengeService
	cfg        *config.Config
	log        *logrus.Entry
}

// NewHandlers wires the handler set.
func NewHandlers(
	db *gorm.DB,
	store ledger.Store,
	executor *engine.Executor,
	cacheClient *cache.Cache,
	hub *websocket.Hub,
	registry *connectors.Registry,
	jwtService *auth.JWTService,
	challenges *auth.ChallengeService,
	cfg *config.Config,
) *Handlers {
	return &Handlers{
		db:         db,
		store:      store,
		executor:   executor,
		cache:      cacheClient,
		hub:        hub,
		registry:   registry,
		jwt:        jwtService,
		challenges: challenges,
		cfg:        cfg,
		log:        logrus.WithField("component", "api"),
	}
}

// Root returns the service banner.
func (h *Handlers) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "SocialFi share trading API",
		"status":  "operational",
	})
}

// Health reports liveness of the service and its backing stores.
func (h *Handlers) Health(c *gin.Context) {
	status := http.StatusOK
	dbState := "connected"
	if err := database.HealthCheck(h.db); err != nil {
		status = http.StatusServiceUnavailable
		dbState = err.Error()
	}

	redisState := "connected"
	if h.cache != nil {
		if err := h.cache.HealthCheck(c.Request.Context()); err != nil {
			redisState = err.Error()
		}
	} else {
		redisState = "disabled"
	}

	body := gin.H{
		"status":   "healthy",
		"database": dbState,
		"redis":    redisState,
	}
	if h.hub != nil {
		body["websocket"] = h.hub.Stats()
	}
	if status != http.StatusOK {
		body["status"] = "unhealthy"
	}
	c.JSON(status, body)
}
