package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// GetChannels returns the currently monitored channel set
func (h *Handlers) GetChannels(c *gin.Context) {
	c.JSON(http.StatusOK, h.registry.Channels())
}

// RefreshChannels re-runs channel resolution. On failure the previous set is
// kept and reported alongside the error.
func (h *Handlers) RefreshChannels(c *gin.Context) {
	if err := h.registry.Refresh(c.Request.Context()); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"error":    err.Error(),
			"channels": h.registry.Channels(),
		})
		return
	}
	c.JSON(http.StatusOK, h.registry.Channels())
}
