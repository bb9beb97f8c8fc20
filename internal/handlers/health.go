package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := models.HealthResponse{
		Status:    "ok",
		Timestamp: time.Now(),
		Database:  "ok",
		Slack:     "ok",
		Metrics:   make(map[string]string),
	}

	if err := h.db.Raw("SELECT 1").Error; err != nil {
		response.Status = "error"
		response.Database = "error"
		logrus.Errorf("Database health check failed: %v", err)
	}

	status := h.poller.Status()
	if status.Running {
		response.Metrics["poller"] = "running"
		response.Metrics["last_cycle"] = status.LastCycle.Format(time.RFC3339)
	} else {
		response.Metrics["poller"] = "stopped"
	}

	response.Metrics["monitored_channels"] = strconv.Itoa(len(h.registry.Channels()))
	response.Metrics["tracked_channels"] = strconv.Itoa(len(status.Channels))
	response.Metrics["active_rules"] = strconv.Itoa(h.classifier.RuleCount())

	statusCode := http.StatusOK
	if response.Status == "error" {
		statusCode = http.StatusServiceUnavailable
	}

	c.JSON(statusCode, response)
}
