package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// StartPoller starts the channel poller
func (h *Handlers) StartPoller(c *gin.Context) {
	if err := h.poller.Start(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// StopPoller stops the channel poller
func (h *Handlers) StopPoller(c *gin.Context) {
	if err := h.poller.Stop(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// RunOnce triggers a single poll cycle and waits for it to finish
func (h *Handlers) RunOnce(c *gin.Context) {
	if err := h.poller.RunOnce(c.Request.Context()); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

// GetPollerStatus returns poller status including per-channel cursor positions
func (h *Handlers) GetPollerStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.poller.Status())
}
