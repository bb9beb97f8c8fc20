package models

import (
	"time"

	"gorm.io/gorm"
)

// Message is a single chat message fetched from a channel.
// ID is the platform-assigned identifier (unique within a channel); Timestamp
// is epoch seconds. Timestamps are monotonic non-decreasing per channel but
// not unique, so dedup always pairs the timestamp with the ID.
type Message struct {
	ID        string  `json:"id"`
	ChannelID string  `json:"channel_id"`
	AuthorID  string  `json:"author_id"`
	Text      string  `json:"text"`
	Timestamp float64 `json:"timestamp"`
}

// ChannelMeta describes a channel as reported by the platform.
type ChannelMeta struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsMember bool   `json:"is_member"`
}

// Rule match kinds.
const (
	MatchExact    = "exact"
	MatchContains = "contains"
	MatchPrefix   = "prefix"
)

// ReplyRule is an operator-authored classification rule in the database.
// Rules are evaluated in (priority, id) order; the first match wins.
type ReplyRule struct {
	ID        uint           `json:"id" gorm:"primaryKey;autoIncrement"`
	Phrase    string         `json:"phrase" gorm:"type:varchar(255);not null;uniqueIndex"`
	MatchKind string         `json:"match_kind" gorm:"type:varchar(32);not null;default:exact"`
	Intent    string         `json:"intent" gorm:"type:varchar(64);not null"`
	Priority  int            `json:"priority" gorm:"default:100"`
	Enabled   bool           `json:"enabled" gorm:"default:true"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"deleted_at,omitempty" gorm:"index"`
}

// TableName specifies the table name for ReplyRule
func (ReplyRule) TableName() string {
	return "reply_rules"
}

// DispatchLog records the outcome of processing a matched message.
type DispatchLog struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	ChannelID string    `json:"channel_id" gorm:"type:varchar(64);not null;index"`
	MessageID string    `json:"message_id" gorm:"type:varchar(64);not null;index"`
	Intent    string    `json:"intent" gorm:"type:varchar(64)"`
	Status    string    `json:"status" gorm:"type:varchar(32);not null"` // success, failure, skipped
	ErrorMsg  string    `json:"error_msg" gorm:"type:text"`
	Attempts  int       `json:"attempts" gorm:"default:0"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for DispatchLog
func (DispatchLog) TableName() string {
	return "dispatch_logs"
}

// ReplyRuleRequest is the API payload for creating or updating a rule.
type ReplyRuleRequest struct {
	Phrase    string `json:"phrase" binding:"required"`
	MatchKind string `json:"match_kind"`
	Intent    string `json:"intent" binding:"required"`
	Priority  *int   `json:"priority"`
	Enabled   *bool  `json:"enabled"`
}

// ReplyRuleResponse is the API representation of a rule.
type ReplyRuleResponse struct {
	ID        uint      `json:"id"`
	Phrase    string    `json:"phrase"`
	MatchKind string    `json:"match_kind"`
	Intent    string    `json:"intent"`
	Priority  int       `json:"priority"`
	Enabled   bool      `json:"enabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HealthResponse is returned by the health check endpoint.
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Database  string            `json:"database"`
	Slack     string            `json:"slack"`
	Metrics   map[string]string `json:"metrics,omitempty"`
}

// ErrorResponse is the standard error payload for the API.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
	Code    int    `json:"code"`
}
