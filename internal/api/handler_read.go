package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/ingest"
)

// PostRead ingests one batch of reads from a reader.
func (h *Handler) PostRead(c *gin.Context) {
	var batch ingest.Batch
	if err := c.ShouldBindJSON(&batch); err != nil {
		h.respondError(c, &apperr.ValidationError{Message: "invalid JSON payload"})
		return
	}

	res, err := h.pipeline.Process(c.Request.Context(), ingest.TransportHTTP, &batch)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, res)
}
