package handlers

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/store"
)

// ChannelChangeHandler lists the channel change audit log.
type ChannelChangeHandler struct {
	store *store.GormChannelChangeStore
}

// NewChannelChangeHandler constructs a ChannelChangeHandler.
func NewChannelChangeHandler(s *store.GormChannelChangeStore) *ChannelChangeHandler {
	return &ChannelChangeHandler{store: s}
}

// List filters by admin_id, channel_id, action, tag, name and since (RFC3339),
// paginated with page and page_size.
func (h *ChannelChangeHandler) List(c *gin.Context) {
	var filter store.ListFilter

	if raw := strings.TrimSpace(c.Query("admin_id")); raw != "" {
		id, errParse := strconv.ParseUint(raw, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid admin_id"})
			return
		}
		filter.AdminID = id
	}
	if raw := strings.TrimSpace(c.Query("channel_id")); raw != "" {
		id, errParse := strconv.Atoi(raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
			return
		}
		filter.ChannelID = &id
	}
	if raw := strings.TrimSpace(c.Query("since")); raw != "" {
		since, errParse := time.Parse(time.RFC3339, raw)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
			return
		}
		filter.Since = since
	}
	filter.Action = c.Query("action")
	filter.Tag = c.Query("tag")
	filter.Name = c.Query("name")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if pageSize < 1 {
		pageSize = 20
	}
	filter.Limit = pageSize
	filter.Offset = (page - 1) * pageSize

	rows, total, errList := h.store.List(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list channel changes failed"})
		return
	}
	out := make([]gin.H, 0, len(rows))
	for i := range rows {
		out = append(out, formatChannelChange(&rows[i]))
	}
	c.JSON(http.StatusOK, gin.H{"changes": out, "total": total, "page": page, "page_size": pageSize})
}

func formatChannelChange(change *models.ChannelChange) gin.H {
	return gin.H{
		"id":         change.ID,
		"admin_id":   change.AdminID,
		"action":     change.Action,
		"channel_id": change.ChannelID,
		"tag":        change.Tag,
		"summary":    change.Summary,
		"message":    change.Message,
		"created_at": change.CreatedAt,
	}
}
