package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/db"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
)

// GormChannelChangeStore persists the channel change audit log via GORM.
type GormChannelChangeStore struct {
	db *gorm.DB
}

// NewGormChannelChangeStore constructs a GormChannelChangeStore.
func NewGormChannelChangeStore(db *gorm.DB) *GormChannelChangeStore {
	return &GormChannelChangeStore{db: db}
}

// Record inserts one change row.
func (s *GormChannelChangeStore) Record(ctx context.Context, change *models.ChannelChange) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("channel change store: not initialized")
	}
	if change == nil {
		return fmt.Errorf("channel change store: change is nil")
	}
	if strings.TrimSpace(change.Action) == "" {
		return fmt.Errorf("channel change store: missing action")
	}
	if len(change.Summary) == 0 {
		change.Summary = datatypes.JSON([]byte("{}"))
	}
	if change.CreatedAt.IsZero() {
		change.CreatedAt = time.Now().UTC()
	}
	if err := s.db.WithContext(ctx).Create(change).Error; err != nil {
		return fmt.Errorf("channel change store: insert: %w", err)
	}
	return nil
}

// ListFilter narrows a List call. Zero values match everything.
type ListFilter struct {
	AdminID   uint64
	ChannelID *int
	Action    string
	// Tag matches case-insensitively as a substring.
	Tag string
	// Name matches the channel name recorded in the summary, as a substring.
	Name   string
	Since  time.Time
	Limit  int
	Offset int
}

// List returns matching changes newest first and the total match count.
func (s *GormChannelChangeStore) List(ctx context.Context, filter ListFilter) ([]models.ChannelChange, int64, error) {
	if s == nil || s.db == nil {
		return nil, 0, fmt.Errorf("channel change store: not initialized")
	}

	q := s.db.WithContext(ctx).Model(&models.ChannelChange{})
	if filter.AdminID != 0 {
		q = q.Where("admin_id = ?", filter.AdminID)
	}
	if filter.ChannelID != nil {
		q = q.Where("channel_id = ?", *filter.ChannelID)
	}
	if action := strings.TrimSpace(filter.Action); action != "" {
		q = q.Where("action = ?", action)
	}
	if tag := strings.TrimSpace(filter.Tag); tag != "" {
		clause, arg := db.ContainsFold(s.db, "tag", tag)
		q = q.Where(clause, arg)
	}
	if name := strings.TrimSpace(filter.Name); name != "" {
		clause, arg := db.ContainsFold(s.db, db.JSONText(s.db, "summary", "name"), name)
		q = q.Where(clause, arg)
	}
	if !filter.Since.IsZero() {
		q = q.Where("created_at >= ?", filter.Since)
	}

	var total int64
	if errCount := q.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("channel change store: count: %w", errCount)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	var rows []models.ChannelChange
	if errFind := q.Order("created_at DESC").Order("id DESC").Limit(limit).Offset(offset).Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("channel change store: list: %w", errFind)
	}
	return rows, total, nil
}

// Prune deletes changes created before cutoff and returns how many were removed.
func (s *GormChannelChangeStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	if s == nil || s.db == nil {
		return 0, fmt.Errorf("channel change store: not initialized")
	}
	res := s.db.WithContext(ctx).Where("created_at < ?", cutoff).Delete(&models.ChannelChange{})
	if res.Error != nil {
		return 0, fmt.Errorf("channel change store: prune: %w", res.Error)
	}
	return res.RowsAffected, nil
}
