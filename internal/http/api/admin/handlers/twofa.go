package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/twofa"
)

// TwoFAHandler manages the signed-in admin's TOTP enrollment.
type TwoFAHandler struct {
	service *twofa.Service
}

// NewTwoFAHandler constructs a TwoFAHandler.
func NewTwoFAHandler(service *twofa.Service) *TwoFAHandler {
	return &TwoFAHandler{service: service}
}

type twoFACodeRequest struct {
	Code string `json:"code"`
}

func bindCode(c *gin.Context) (string, bool) {
	var body twoFACodeRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return "", false
	}
	return body.Code, true
}

// Status reports whether 2FA is enabled.
func (h *TwoFAHandler) Status(c *gin.Context) {
	status, err := h.service.Status(c.Request.Context(), adminIDFrom(c))
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// Setup generates a new secret and backup codes. Nothing is active until Enable.
func (h *TwoFAHandler) Setup(c *gin.Context) {
	account := c.GetString("adminUsername")
	result, err := h.service.Setup(c.Request.Context(), adminIDFrom(c), account)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// Enable activates the pending enrollment.
func (h *TwoFAHandler) Enable(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}
	if err := h.service.Enable(c.Request.Context(), adminIDFrom(c), code); err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": true})
}

// Disable removes the enrollment after a valid code.
func (h *TwoFAHandler) Disable(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}
	if err := h.service.Disable(c.Request.Context(), adminIDFrom(c), code); err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"enabled": false})
}

// RegenerateBackupCodes replaces every backup code after a valid TOTP code.
func (h *TwoFAHandler) RegenerateBackupCodes(c *gin.Context) {
	code, ok := bindCode(c)
	if !ok {
		return
	}
	codes, err := h.service.RegenerateBackupCodes(c.Request.Context(), adminIDFrom(c), code)
	if err != nil {
		respondError(c, errorStatus(err), err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"backup_codes": codes})
}
