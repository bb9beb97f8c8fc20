package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// GetLogs returns dispatch logs, newest first. Optional query parameters:
// channel, status and limit (default 100).
func (h *Handlers) GetLogs(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_limit", Message: "limit must be between 1 and 1000", Code: http.StatusBadRequest})
			return
		}
		limit = n
	}

	query := h.db.Order("created_at desc").Limit(limit)
	if channel := c.Query("channel"); channel != "" {
		query = query.Where("channel_id = ?", channel)
	}
	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", status)
	}

	var logs []models.DispatchLog
	if err := query.Find(&logs).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch logs",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	c.JSON(http.StatusOK, logs)
}

// GetLog returns a single log by ID
func (h *Handlers) GetLog(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid log ID", Code: http.StatusBadRequest})
		return
	}
	var log models.DispatchLog
	if err := h.db.First(&log, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Log not found", Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, log)
}
