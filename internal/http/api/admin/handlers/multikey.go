package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/multikey"
)

// MultiKeyHandler manages the keys of a multi-key channel.
type MultiKeyHandler struct {
	upstream multikey.Upstream
	audit    multikey.Auditor
}

// NewMultiKeyHandler constructs a MultiKeyHandler.
func NewMultiKeyHandler(upstream multikey.Upstream, audit multikey.Auditor) *MultiKeyHandler {
	return &MultiKeyHandler{upstream: upstream, audit: audit}
}

// panel builds the panel for the :id channel from the query in the request
// body. An empty body means the first page with the default size.
func (h *MultiKeyHandler) panel(c *gin.Context) (*multikey.Panel, bool) {
	channelID, errID := strconv.Atoi(c.Param("id"))
	if errID != nil || channelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel id"})
		return nil, false
	}
	var q multikey.Query
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&q); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return nil, false
		}
	}
	p, errPanel := multikey.NewPanel(h.upstream, h.audit, adminIDFrom(c), channelID, q)
	if errPanel != nil {
		respondError(c, errorStatus(errPanel), errPanel)
		return nil, false
	}
	return p, true
}

func keyIndex(c *gin.Context) (int, bool) {
	index, errIndex := strconv.Atoi(c.Param("index"))
	if errIndex != nil || index < 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid key index"})
		return 0, false
	}
	return index, true
}

func (h *MultiKeyHandler) respond(c *gin.Context, view multikey.View, err error) {
	if err != nil {
		respondUpstreamError(c, err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// Query loads one page of key statuses.
func (h *MultiKeyHandler) Query(c *gin.Context) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	view, err := p.Load(c.Request.Context())
	h.respond(c, view, err)
}

func (h *MultiKeyHandler) single(c *gin.Context, action func(*multikey.Panel, context.Context, int) (multikey.View, error)) {
	index, ok := keyIndex(c)
	if !ok {
		return
	}
	p, ok := h.panel(c)
	if !ok {
		return
	}
	view, err := action(p, c.Request.Context(), index)
	h.respond(c, view, err)
}

func (h *MultiKeyHandler) bulk(c *gin.Context, action func(*multikey.Panel, context.Context) (multikey.View, error)) {
	p, ok := h.panel(c)
	if !ok {
		return
	}
	view, err := action(p, c.Request.Context())
	h.respond(c, view, err)
}

// EnableKey enables one key and reloads the current page.
func (h *MultiKeyHandler) EnableKey(c *gin.Context) { h.single(c, (*multikey.Panel).EnableKey) }

// DisableKey disables one key and reloads the current page.
func (h *MultiKeyHandler) DisableKey(c *gin.Context) { h.single(c, (*multikey.Panel).DisableKey) }

// DeleteKey removes one key and reloads the current page.
func (h *MultiKeyHandler) DeleteKey(c *gin.Context) { h.single(c, (*multikey.Panel).DeleteKey) }

// EnableAll enables every key and returns to the first page.
func (h *MultiKeyHandler) EnableAll(c *gin.Context) { h.bulk(c, (*multikey.Panel).EnableAll) }

// DisableAll disables every key and returns to the first page.
func (h *MultiKeyHandler) DisableAll(c *gin.Context) { h.bulk(c, (*multikey.Panel).DisableAll) }

// DeleteDisabled removes every disabled key and returns to the first page.
func (h *MultiKeyHandler) DeleteDisabled(c *gin.Context) { h.bulk(c, (*multikey.Panel).DeleteDisabled) }
