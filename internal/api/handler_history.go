package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/parse"
	"rental-rfid-backend/internal/store"
)

// ListDetections handles GET /api/rfid/detections. An unknown direction is ignored.
func (h *Handler) ListDetections(c *gin.Context) {
	filter := store.DetectionFilter{
		TagID:    c.Query("rfidTagId"),
		ReaderID: c.Query("readerId"),
	}
	if d, err := parse.Direction(c.Query("direction")); err == nil {
		filter.Direction = d
	}
	p := page(c, 100)

	detections, total, err := h.store.Detections.List(c.Request.Context(), filter, p)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"detections": detections,
		"total":      total,
		"limit":      p.Limit,
		"offset":     p.Offset,
	})
}

// ListMovements handles GET /api/inventory/movements.
func (h *Handler) ListMovements(c *gin.Context) {
	filter := store.MovementFilter{InventoryItemID: c.Query("inventoryItemId")}
	if raw := c.Query("type"); raw != "" {
		t, ok := model.ParseMovementType(raw)
		if !ok {
			h.respondError(c, apperr.Invalid("type", "unknown movement type"))
			return
		}
		filter.Type = t
	}
	p := page(c, 50)

	movements, total, err := h.store.Inventory.ListMovements(c.Request.Context(), filter, p)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"movements": movements,
		"total":     total,
		"limit":     p.Limit,
		"offset":    p.Offset,
	})
}

// Healthz reports whether the database answers.
func (h *Handler) Healthz(c *gin.Context) {
	if err := h.store.Ping(c.Request.Context()); err != nil {
		h.log.Warn("health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
