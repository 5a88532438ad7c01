package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/model"
	"rental-rfid-backend/internal/parse"
	"rental-rfid-backend/internal/store"
)

const recentDetections = 50

type tagView struct {
	model.RfidTag
	DetectionCount int64 `json:"detectionCount"`
}

type tagDetail struct {
	model.RfidTag
	Detections     []model.RfidDetection `json:"detections"`
	DetectionCount int64                 `json:"detectionCount"`
}

// ListTags handles GET /api/rfid/tags?search&status.
func (h *Handler) ListTags(c *gin.Context) {
	filter := store.TagFilter{Search: c.Query("search")}
	if raw := c.Query("status"); raw != "" {
		status, ok := model.ParseTagStatus(raw)
		if !ok {
			h.respondError(c, apperr.Invalid("status", "must be one of UNKNOWN, UNASSIGNED, ENROLLED"))
			return
		}
		filter.Status = status
	}
	h.listTags(c, filter)
}

// ListUnknownTags handles GET /api/rfid/tags/unknown.
func (h *Handler) ListUnknownTags(c *gin.Context) {
	h.listTags(c, store.TagFilter{Status: model.TagStatusUnknown})
}

func (h *Handler) listTags(c *gin.Context, filter store.TagFilter) {
	ctx := c.Request.Context()
	tags, err := h.store.Tags.List(ctx, filter)
	if err != nil {
		h.respondError(c, err)
		return
	}

	ids := make([]string, len(tags))
	for i, t := range tags {
		ids[i] = t.ID
	}
	counts, err := h.store.Detections.CountByTag(ctx, ids)
	if err != nil {
		h.respondError(c, err)
		return
	}

	views := make([]tagView, len(tags))
	for i, t := range tags {
		views[i] = tagView{RfidTag: t, DetectionCount: counts[t.ID]}
	}
	c.JSON(http.StatusOK, gin.H{"tags": views})
}

// GetTag handles GET /api/rfid/tags/:id.
func (h *Handler) GetTag(c *gin.Context) {
	ctx := c.Request.Context()
	tag, err := h.store.Tags.Get(ctx, c.Param("id"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	detections, total, err := h.store.Detections.List(ctx, store.DetectionFilter{TagID: tag.ID}, store.Page{Limit: recentDetections})
	if err != nil {
		h.respondError(c, err)
		return
	}
	for i := range detections {
		detections[i].RfidTag = nil
	}

	c.JSON(http.StatusOK, tagDetail{RfidTag: *tag, Detections: detections, DetectionCount: total})
}

type createTagRequest struct {
	EPC             string  `json:"epc" binding:"required"`
	TID             *string `json:"tid"`
	InventoryItemID string  `json:"inventoryItemId"`
}

// CreateTag handles manual tag registration.
func (h *Handler) CreateTag(c *gin.Context) {
	actor, ok := h.operator(c)
	if !ok {
		return
	}
	var req createTagRequest
	if !h.bindJSON(c, &req) {
		return
	}
	epc, err := parse.EPC(req.EPC)
	if err != nil {
		h.respondError(c, apperr.Invalid("epc", err.Error()))
		return
	}

	tag, err := h.enrollment.Register(c.Request.Context(), epc, parse.TID(req.TID), req.InventoryItemID, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, tag)
}

// DeleteTag removes a tag and its detection history.
func (h *Handler) DeleteTag(c *gin.Context) {
	if _, ok := h.operator(c); !ok {
		return
	}
	if err := h.store.Tags.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type enrollRequest struct {
	InventoryItemID string `json:"inventoryItemId" binding:"required"`
}

// EnrollTag binds a tag to an inventory item.
func (h *Handler) EnrollTag(c *gin.Context) {
	actor, ok := h.operator(c)
	if !ok {
		return
	}
	var req enrollRequest
	if !h.bindJSON(c, &req) {
		return
	}

	tag, err := h.enrollment.Enroll(c.Request.Context(), c.Param("id"), req.InventoryItemID, actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}

// UnenrollTag releases a tag from its inventory item.
func (h *Handler) UnenrollTag(c *gin.Context) {
	actor, ok := h.operator(c)
	if !ok {
		return
	}

	tag, err := h.enrollment.Unenroll(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, tag)
}
