package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// pushEnabled reports whether VAPID keys were configured. Without them no
// schedule change can reach a subscriber.
func (h *Handler) pushEnabled() bool {
	return h.webpush != nil && h.webpush.VAPIDPublicKey != ""
}

// requirePush answers 503 and stops the chain when push is disabled.
func (h *Handler) requirePush(c *gin.Context) bool {
	if h.pushEnabled() {
		return true
	}
	c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "push notifications are disabled"})
	return false
}

// GetVAPIDPublicKey hands browsers the key they subscribe with.
func (h *Handler) GetVAPIDPublicKey(c *gin.Context) {
	if !h.requirePush(c) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": h.webpush.VAPIDPublicKey})
}
