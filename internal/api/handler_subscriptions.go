package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"rental-rfid-backend/internal/apperr"
	"rental-rfid-backend/internal/model"
)

type putSubscriptionRequest struct {
	Endpoint string            `json:"endpoint" binding:"required"`
	P256DH   string            `json:"p256dh" binding:"required"`
	Auth     string            `json:"auth" binding:"required"`
	Kinds    []model.AlertKind `json:"kinds"`
}

// PutSubscription handles the creation or replacement of a subscription.
func (h *Handler) PutSubscription(c *gin.Context) {
	var req putSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}
	for _, k := range req.Kinds {
		if k != model.AlertUnknownTag && k != model.AlertRfidMovement {
			h.respondError(c, apperr.Invalid("kinds", "unknown alert kind "+string(k)))
			return
		}
	}

	kinds := datatypes.JSONSlice[model.AlertKind]{}
	kinds = append(kinds, req.Kinds...)
	subscription := model.PushSubscription{
		Endpoint: req.Endpoint,
		P256DH:   req.P256DH,
		Auth:     req.Auth,
		Kinds:    kinds,
	}

	err := h.store.DB().WithContext(c.Request.Context()).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "kinds"}),
	}).Create(&subscription).Error
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusCreated)
}

type deleteSubscriptionRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
}

// DeleteSubscription handles the deletion of a subscription.
func (h *Handler) DeleteSubscription(c *gin.Context) {
	var req deleteSubscriptionRequest
	if !h.bindJSON(c, &req) {
		return
	}

	if err := h.store.DB().WithContext(c.Request.Context()).Delete(&model.PushSubscription{Endpoint: req.Endpoint}).Error; err != nil {
		h.respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// rawQueryParam reads a query value without URL decoding; push endpoints are
// compared byte for byte.
func rawQueryParam(rawQuery, key string) (string, bool) {
	for _, kv := range strings.Split(rawQuery, "&") {
		if strings.HasPrefix(kv, key+"=") {
			return kv[len(key)+1:], true
		}
	}
	return "", false
}

// GetSubscription returns the alert kinds of a subscription.
func (h *Handler) GetSubscription(c *gin.Context) {
	raw, ok := rawQueryParam(c.Request.URL.RawQuery, "endpoint")
	if !ok || raw == "" {
		h.respondError(c, apperr.Invalid("endpoint", "is required"))
		return
	}

	var subscription model.PushSubscription
	if err := h.store.DB().WithContext(c.Request.Context()).First(&subscription, "endpoint = ?", raw).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		} else {
			h.respondError(c, err)
		}
		return
	}

	kinds := []model.AlertKind(subscription.Kinds)
	if len(kinds) == 0 {
		kinds = []model.AlertKind{model.AlertUnknownTag, model.AlertRfidMovement}
	}
	c.JSON(http.StatusOK, gin.H{"kinds": kinds})
}

// GetVAPIDPublicKey returns the VAPID public key browsers subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if h.webpush == nil || h.webpush.VAPIDPublicKey == "" {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "vapid keys are not configured"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
