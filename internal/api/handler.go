package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/enrollment"
	"rental-rfid-backend/internal/ingest"
	"rental-rfid-backend/internal/logger"
	"rental-rfid-backend/internal/store"
)

const maxPageSize = 500

// Handler holds shared dependencies for API handlers.
type Handler struct {
	store          *store.Store
	pipeline       *ingest.Pipeline
	enrollment     *enrollment.Manager
	webpush        *webpush.Options
	operatorHeader string
	log            *logger.Logger
}

// NewHandler creates a new API handler.
func NewHandler(s *store.Store, p *ingest.Pipeline, m *enrollment.Manager, webpushOptions *webpush.Options, operatorHeader string, log *logger.Logger) *Handler {
	if operatorHeader == "" {
		operatorHeader = "X-User-ID"
	}
	return &Handler{
		store:          s,
		pipeline:       p,
		enrollment:     m,
		webpush:        webpushOptions,
		operatorHeader: operatorHeader,
		log:            log.With("component", "api"),
	}
}

// respondError maps the error taxonomy onto HTTP statuses. Unexpected errors are
// logged and answered with a generic message.
func (h *Handler) respondError(c *gin.Context, err error) {
	var ve *apperr.ValidationError
	switch {
	case errors.As(err, &ve):
		body := gin.H{"error": ve.Message}
		if len(ve.Issues) > 0 {
			body["issues"] = ve.Issues
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.Is(err, apperr.ErrUnauthorized):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	case errors.Is(err, apperr.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, apperr.ErrAlreadyEnrolled),
		errors.Is(err, apperr.ErrItemAlreadyTagged),
		errors.Is(err, apperr.ErrConflict):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		_ = c.Error(err)
		h.log.Error("request failed", "method", c.Request.Method, "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindJSON decodes the body and reports binding failures as validation errors.
func (h *Handler) bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		h.respondError(c, ingest.ValidationIssues(err))
		return false
	}
	return true
}

// operator returns the acting user from the operator header or answers 401.
func (h *Handler) operator(c *gin.Context) (string, bool) {
	id := strings.TrimSpace(c.GetHeader(h.operatorHeader))
	if id == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing " + h.operatorHeader + " header"})
		return "", false
	}
	return id, true
}

// page reads limit and offset. Invalid values fall back to the defaults.
func page(c *gin.Context, defaultLimit int) store.Page {
	limit, err := strconv.Atoi(c.Query("limit"))
	if err != nil || limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	offset, err := strconv.Atoi(c.Query("offset"))
	if err != nil || offset < 0 {
		offset = 0
	}
	return store.Page{Limit: limit, Offset: offset}
}
