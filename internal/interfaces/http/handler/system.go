package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/provenant/backend/internal/application/provisioning"
	"github.com/provenant/backend/internal/infrastructure/persistence"
)

// SystemHandler exposes health probes and operational endpoints
type SystemHandler struct {
	BaseHandler
	db            *persistence.Database
	workerService *provisioning.WorkerService
}

// NewSystemHandler creates a new system handler
func NewSystemHandler(db *persistence.Database, workerService *provisioning.WorkerService) *SystemHandler {
	return &SystemHandler{db: db, workerService: workerService}
}

// Health reports liveness without touching dependencies
func (h *SystemHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"service":  "provenant-backend",
		"datetime": time.Now().Format(time.RFC3339),
	})
}

// Ready reports readiness, checking the default database connection
func (h *SystemHandler) Ready(c *gin.Context) {
	if err := h.db.Ping(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":   "unhealthy",
			"database": "unreachable",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   "healthy",
		"database": "connected",
	})
}

// MigrateTenants replays pending schema migrations across every
// provisioned tenant database
func (h *SystemHandler) MigrateTenants(c *gin.Context) {
	results, err := h.workerService.MigrateAllTenants(c.Request.Context())
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, results)
}
