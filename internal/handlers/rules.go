package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// GetRules returns all reply rules
func (h *Handlers) GetRules(c *gin.Context) {
	var rules []models.ReplyRule
	if err := h.db.Order("priority asc, id asc").Find(&rules).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to fetch rules",
			Code:    http.StatusInternalServerError,
		})
		return
	}
	var responses []models.ReplyRuleResponse
	for _, rule := range rules {
		responses = append(responses, models.ReplyRuleResponse{
			ID:        rule.ID,
			Phrase:    rule.Phrase,
			MatchKind: rule.MatchKind,
			Intent:    rule.Intent,
			Priority:  rule.Priority,
			Enabled:   rule.Enabled,
			CreatedAt: rule.CreatedAt,
			UpdatedAt: rule.UpdatedAt,
		})
	}
	c.JSON(http.StatusOK, responses)
}

// CreateRule creates a new reply rule
func (h *Handlers) CreateRule(c *gin.Context) {
	var req models.ReplyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Error:   "validation_error",
			Message: "Invalid request body",
			Code:    http.StatusBadRequest,
		})
		return
	}

	matchKind := req.MatchKind
	if matchKind == "" {
		matchKind = models.MatchExact
	}
	priority := 100
	if req.Priority != nil {
		priority = *req.Priority
	}
	enabled := true
	if req.Enabled != nil {
		enabled = *req.Enabled
	}

	rule := models.ReplyRule{
		Phrase:    req.Phrase,
		MatchKind: matchKind,
		Intent:    req.Intent,
		Priority:  priority,
		Enabled:   enabled,
	}
	if err := h.db.Create(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Error:   "database_error",
			Message: "Failed to create rule",
			Code:    http.StatusInternalServerError,
		})
		return
	}

	h.reloadClassifier()

	c.JSON(http.StatusCreated, models.ReplyRuleResponse{
		ID:        rule.ID,
		Phrase:    rule.Phrase,
		MatchKind: rule.MatchKind,
		Intent:    rule.Intent,
		Priority:  rule.Priority,
		Enabled:   rule.Enabled,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	})
}

// GetRule returns a single rule by ID
func (h *Handlers) GetRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid rule ID", Code: http.StatusBadRequest})
		return
	}
	var rule models.ReplyRule
	if err := h.db.First(&rule, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Rule not found", Code: http.StatusNotFound})
		return
	}
	c.JSON(http.StatusOK, models.ReplyRuleResponse{
		ID:        rule.ID,
		Phrase:    rule.Phrase,
		MatchKind: rule.MatchKind,
		Intent:    rule.Intent,
		Priority:  rule.Priority,
		Enabled:   rule.Enabled,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	})
}

// UpdateRule updates an existing rule
func (h *Handlers) UpdateRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid rule ID", Code: http.StatusBadRequest})
		return
	}
	var rule models.ReplyRule
	if err := h.db.First(&rule, id).Error; err != nil {
		c.JSON(http.StatusNotFound, models.ErrorResponse{Error: "not_found", Message: "Rule not found", Code: http.StatusNotFound})
		return
	}
	var req models.ReplyRuleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "validation_error", Message: "Invalid request body", Code: http.StatusBadRequest})
		return
	}
	if req.Phrase != "" {
		rule.Phrase = req.Phrase
	}
	if req.MatchKind != "" {
		rule.MatchKind = req.MatchKind
	}
	if req.Intent != "" {
		rule.Intent = req.Intent
	}
	if req.Priority != nil {
		rule.Priority = *req.Priority
	}
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}
	if err := h.db.Save(&rule).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to update rule", Code: http.StatusInternalServerError})
		return
	}

	h.reloadClassifier()

	c.JSON(http.StatusOK, models.ReplyRuleResponse{
		ID:        rule.ID,
		Phrase:    rule.Phrase,
		MatchKind: rule.MatchKind,
		Intent:    rule.Intent,
		Priority:  rule.Priority,
		Enabled:   rule.Enabled,
		CreatedAt: rule.CreatedAt,
		UpdatedAt: rule.UpdatedAt,
	})
}

// DeleteRule deletes a rule by ID
func (h *Handlers) DeleteRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid rule ID", Code: http.StatusBadRequest})
		return
	}
	if err := h.db.Delete(&models.ReplyRule{}, id).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to delete rule", Code: http.StatusInternalServerError})
		return
	}

	h.reloadClassifier()

	c.Status(http.StatusNoContent)
}

// EnableRule enables a rule by ID
func (h *Handlers) EnableRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid rule ID", Code: http.StatusBadRequest})
		return
	}
	if err := h.db.Model(&models.ReplyRule{}).Where("id = ?", id).Update("enabled", true).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to enable rule", Code: http.StatusInternalServerError})
		return
	}

	h.reloadClassifier()

	c.Status(http.StatusNoContent)
}

// DisableRule disables a rule by ID
func (h *Handlers) DisableRule(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{Error: "invalid_id", Message: "Invalid rule ID", Code: http.StatusBadRequest})
		return
	}
	if err := h.db.Model(&models.ReplyRule{}).Where("id = ?", id).Update("enabled", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{Error: "database_error", Message: "Failed to disable rule", Code: http.StatusInternalServerError})
		return
	}

	h.reloadClassifier()

	c.Status(http.StatusNoContent)
}
