package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/tagedit"
)

// TagHandler edits every channel sharing a tag at once.
type TagHandler struct {
	service *tagedit.Service
}

// NewTagHandler constructs a TagHandler.
func NewTagHandler(service *tagedit.Service) *TagHandler {
	return &TagHandler{service: service}
}

// Get loads the tag form and its option lists.
func (h *TagHandler) Get(c *gin.Context) {
	tag := strings.TrimSpace(c.Param("tag"))
	if tag == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing tag"})
		return
	}
	loaded, errOpen := h.service.Open(c.Request.Context(), tag)
	if errOpen != nil {
		respondUpstreamError(c, errOpen)
		return
	}
	c.JSON(http.StatusOK, loaded)
}

type updateTagRequest struct {
	NewTag       *string  `json:"new_tag"`
	ModelMapping string   `json:"model_mapping"`
	Groups       []string `json:"groups"`
	Models       []string `json:"models"`
	// CustomModels is a comma separated list merged into Models.
	CustomModels string `json:"custom_models"`
}

// Update submits the tag edit. Only non-empty fields are sent.
func (h *TagHandler) Update(c *gin.Context) {
	var body updateTagRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	form := tagedit.Form{
		Tag:          strings.TrimSpace(c.Param("tag")),
		NewTag:       body.NewTag,
		ModelMapping: body.ModelMapping,
		Groups:       body.Groups,
		Models:       body.Models,
	}
	var added []string
	if strings.TrimSpace(body.CustomModels) != "" {
		form.Models, added = tagedit.AddCustomModels(form.Models, body.CustomModels)
	}
	if errSubmit := h.service.Submit(c.Request.Context(), adminIDFrom(c), form); errSubmit != nil {
		respondUpstreamError(c, errSubmit)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "added_models": added})
}
