package store

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/jjurach/slack-agent-mcp-sub000/internal/classifier"
	"github.com/jjurach/slack-agent-mcp-sub000/internal/models"
)

// Store is the database access layer used by the poll pipeline: rule loading,
// first-boot seeding and the dispatch audit trail.
type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

// LoadRuleset returns all enabled rules in evaluation order.
func (s *Store) LoadRuleset() ([]models.ReplyRule, error) {
	var rules []models.ReplyRule
	result := s.db.Where("enabled = ?", true).Order("priority asc, id asc").Find(&rules)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load reply rules: %w", result.Error)
	}
	return rules, nil
}

// EnsureDefaultRules seeds the built-in time-query phrases when the rules
// table is empty, so a fresh install answers time questions out of the box.
func (s *Store) EnsureDefaultRules() error {
	var count int64
	result := s.db.Model(&models.ReplyRule{}).Count(&count)
	if result.Error != nil {
		return fmt.Errorf("failed to count reply rules: %w", result.Error)
	}
	if count > 0 {
		return nil
	}

	defaults := classifier.DefaultRules()
	result = s.db.Create(&defaults)
	if result.Error != nil {
		return fmt.Errorf("failed to seed default rules: %w", result.Error)
	}

	logrus.Infof("Seeded %d default reply rules", len(defaults))
	return nil
}

// RecordDispatch appends one audit row for a matched message.
func (s *Store) RecordDispatch(entry models.DispatchLog) error {
	result := s.db.Create(&entry)
	if result.Error != nil {
		return fmt.Errorf("failed to record dispatch: %w", result.Error)
	}
	return nil
}
