package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"session-scheduler-backend/internal/engine"
	"session-scheduler-backend/internal/store"
)

// GetSessions handles GET /api/sessions.
func (h *Handler) GetSessions(c *gin.Context) {
	in, err := h.store.LoadSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load sessions"})
		return
	}
	status := c.Query("status")
	sessions := make([]engine.Session, 0, len(in.Sessions))
	for _, s := range in.Sessions {
		if status == "" || string(s.Status) == status {
			sessions = append(sessions, s)
		}
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetMachines handles GET /api/machines.
func (h *Handler) GetMachines(c *gin.Context) {
	in, err := h.store.LoadSnapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load machines"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"machines": in.Machines, "hardware": in.Combinations, "inventory": in.Inventories})
}

// PutCatalog handles PUT /api/catalog.
func (h *Handler) PutCatalog(c *gin.Context) {
	var catalog store.Catalog
	if err := c.ShouldBindJSON(&catalog); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request"})
		return
	}
	if err := h.store.ImportCatalog(c.Request.Context(), catalog); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusNoContent)
}
