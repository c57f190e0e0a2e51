package modelreference

import (
	"context"
	"fmt"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const storeBatchSize = 200

// StoreReferences upserts model references and prunes stale rows.
func StoreReferences(ctx context.Context, db *gorm.DB, refs []models.ModelReference, syncTime time.Time) error {
	if db == nil {
		return fmt.Errorf("store model references: nil db")
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if syncTime.IsZero() {
		syncTime = time.Now().UTC()
	}
	syncTime = syncTime.UTC()
	if len(refs) == 0 {
		return nil
	}

	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for i := range refs {
			refs[i].LastSeenAt = syncTime
			refs[i].UpdatedAt = syncTime
		}
		if err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_id"}, {Name: "model_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"provider_name",
				"model_name",
				"context_limit",
				"output_limit",
				"extra",
				"last_seen_at",
				"updated_at",
			}),
		}).CreateInBatches(&refs, storeBatchSize).Error; err != nil {
			return fmt.Errorf("store model references: upsert: %w", err)
		}

		if err := tx.Where("last_seen_at < ?", syncTime).Delete(&models.ModelReference{}).Error; err != nil {
			return fmt.Errorf("store model references: prune: %w", err)
		}
		return nil
	})
}
