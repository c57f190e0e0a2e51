package handlers

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/session"
)

const (
	maxKeyFiles     = 100
	maxKeyFileBytes = 1 << 20
)

// ChannelSessionHandler exposes channel editor sessions.
type ChannelSessionHandler struct {
	manager *session.Manager
}

// NewChannelSessionHandler constructs a ChannelSessionHandler.
func NewChannelSessionHandler(manager *session.Manager) *ChannelSessionHandler {
	return &ChannelSessionHandler{manager: manager}
}

type openSessionRequest struct {
	ChannelID *int `json:"channel_id"`
}

// Open starts a create session, or an edit session when channel_id is set.
func (h *ChannelSessionHandler) Open(c *gin.Context) {
	var body openSessionRequest
	if c.Request.ContentLength != 0 {
		if errBind := c.ShouldBindJSON(&body); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
			return
		}
	}
	if body.ChannelID != nil && *body.ChannelID <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid channel_id"})
		return
	}
	snap, errOpen := h.manager.Open(c.Request.Context(), session.OpenRequest{
		AdminID:   adminIDFrom(c),
		ChannelID: body.ChannelID,
	})
	if errOpen != nil {
		respondUpstreamError(c, errOpen)
		return
	}
	c.JSON(http.StatusCreated, snap)
}

// session loads the session named by the :id param, writing the error response
// when it cannot.
func (h *ChannelSessionHandler) session(c *gin.Context) (*session.Session, bool) {
	s, errGet := h.manager.Get(c.Param("id"), adminIDFrom(c))
	if errGet != nil {
		respondError(c, errorStatus(errGet), errGet)
		return nil, false
	}
	return s, true
}

// Get returns the draft, derived layout, and option lists.
func (h *ChannelSessionHandler) Get(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, errSnap := s.Snapshot()
	if errSnap != nil {
		respondError(c, errorStatus(errSnap), errSnap)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Close discards the session and cancels its in-flight requests.
func (h *ChannelSessionHandler) Close(c *gin.Context) {
	if errClose := h.manager.Close(c.Param("id"), adminIDFrom(c)); errClose != nil {
		respondError(c, errorStatus(errClose), errClose)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

type setFieldRequest struct {
	Field string `json:"field"`
	Value any    `json:"value"`
}

// SetField applies one field change.
func (h *ChannelSessionHandler) SetField(c *gin.Context) {
	var body setFieldRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	field := strings.TrimSpace(body.Field)
	if field == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing field"})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	outcome, snap, errSet := s.SetField(field, body.Value)
	if errSet != nil {
		respondError(c, errorStatus(errSet), errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "session": snap})
}

// SetMode applies batch, aggregation, multi-key policy, key update, and
// manual input switches.
func (h *ChannelSessionHandler) SetMode(c *gin.Context) {
	var body session.ModeChange
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	outcome, snap, errSet := s.SetMode(body)
	if errSet != nil {
		respondError(c, errorStatus(errSet), errSet)
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcome": outcome, "session": snap})
}

// Confirm applies the change parked behind a confirmation prompt.
func (h *ChannelSessionHandler) Confirm(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, errConfirm := s.Confirm()
	if errConfirm != nil {
		respondError(c, errorStatus(errConfirm), errConfirm)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// Cancel discards the parked change.
func (h *ChannelSessionHandler) Cancel(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	snap, errCancel := s.Cancel()
	if errCancel != nil {
		respondError(c, errorStatus(errCancel), errCancel)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// AddKeyFiles accepts a multipart upload of credential JSON files.
func (h *ChannelSessionHandler) AddKeyFiles(c *gin.Context) {
	form, errForm := c.MultipartForm()
	if errForm != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid multipart form"})
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "no files uploaded"})
		return
	}
	if len(headers) > maxKeyFiles {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("at most %d files per upload", maxKeyFiles)})
		return
	}

	files := make([]channel.KeyFile, 0, len(headers))
	for _, fh := range headers {
		f, errOpen := fh.Open()
		if errOpen != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file " + fh.Filename})
			return
		}
		data, errRead := io.ReadAll(io.LimitReader(f, maxKeyFileBytes+1))
		_ = f.Close()
		if errRead != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "read file " + fh.Filename})
			return
		}
		if len(data) > maxKeyFileBytes {
			data = nil
		}
		files = append(files, channel.KeyFile{Name: fh.Filename, Data: data})
	}

	s, ok := h.session(c)
	if !ok {
		return
	}
	report, snap, errAdd := s.AddKeyFiles(c.Request.Context(), files)
	if errAdd != nil {
		respondError(c, errorStatus(errAdd), errAdd)
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report, "session": snap})
}

// FetchModels lists the models the channel's credentials can reach upstream.
func (h *ChannelSessionHandler) FetchModels(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	fetched, errFetch := s.FetchUpstreamModels(c.Request.Context())
	if errFetch != nil {
		if errors.Is(errFetch, session.ErrFetchModels) {
			c.JSON(http.StatusBadGateway, gin.H{"error": session.ErrFetchModels.Error()})
			return
		}
		respondError(c, errorStatus(errFetch), errFetch)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": fetched})
}

type revealKeyRequest struct {
	Code string `json:"code"`
}

// RevealKey returns the stored key after the gateway accepts the code.
func (h *ChannelSessionHandler) RevealKey(c *gin.Context) {
	var body revealKeyRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	s, ok := h.session(c)
	if !ok {
		return
	}
	key, errReveal := s.RevealKey(c.Request.Context(), body.Code)
	if errReveal != nil {
		respondUpstreamError(c, errReveal)
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}

// Submit validates the draft and sends one create or update upstream. The
// session closes on success and stays open on any failure.
func (h *ChannelSessionHandler) Submit(c *gin.Context) {
	s, ok := h.session(c)
	if !ok {
		return
	}
	result, errSubmit := s.Submit(c.Request.Context())
	if errSubmit != nil {
		respondUpstreamError(c, errSubmit)
		return
	}
	c.JSON(http.StatusOK, result)
}
