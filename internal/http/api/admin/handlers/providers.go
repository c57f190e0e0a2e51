package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/channel"
)

// ProviderHandler serves the provider type table.
type ProviderHandler struct {
	catalog channel.ModelCatalog
}

// NewProviderHandler constructs a ProviderHandler.
func NewProviderHandler(catalog channel.ModelCatalog) *ProviderHandler {
	return &ProviderHandler{catalog: catalog}
}

// List returns every known provider type.
func (h *ProviderHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"providers": channel.Providers()})
}

// Models returns the default model set of one provider type.
func (h *ProviderHandler) Models(c *gin.Context) {
	typ, errType := strconv.Atoi(c.Param("type"))
	if errType != nil || !channel.KnownType(typ) {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown provider type"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"type":   typ,
		"models": channel.DefaultModels(h.catalog, typ),
	})
}
