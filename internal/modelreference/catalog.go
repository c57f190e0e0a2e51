package modelreference

import (
	"context"
	"strings"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const catalogQueryTimeout = 3 * time.Second

// Catalog answers models-by-provider lookups from the reference table.
type Catalog struct {
	db *gorm.DB
}

// NewCatalog constructs a Catalog over db.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{db: db}
}

// ModelsForProvider returns the model ids synced for providerID, sorted.
// Lookup failures are logged and yield no models.
func (c *Catalog) ModelsForProvider(providerID string) []string {
	providerID = strings.TrimSpace(providerID)
	if c == nil || c.db == nil || providerID == "" {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), catalogQueryTimeout)
	defer cancel()

	var ids []string
	if err := c.db.WithContext(ctx).
		Model(&models.ModelReference{}).
		Where("provider_id = ?", providerID).
		Order("model_id ASC").
		Pluck("model_id", &ids).Error; err != nil {
		log.WithError(err).WithField("provider", providerID).Warn("model catalog: lookup failed")
		return nil
	}
	return ids
}
