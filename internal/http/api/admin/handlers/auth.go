package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/config"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/ratelimit"
	"github.com/router-for-me/ChannelConsole/internal/security"
	"github.com/router-for-me/ChannelConsole/internal/twofa"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler issues admin tokens.
type AuthHandler struct {
	db      *gorm.DB
	jwtCfg  config.JWTConfig
	limiter *ratelimit.Manager
	twoFA   *twofa.Service
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, limiter *ratelimit.Manager, twoFA *twofa.Service) *AuthHandler {
	return &AuthHandler{db: db, jwtCfg: jwtCfg, limiter: limiter, twoFA: twoFA}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	// Code is a TOTP or backup code, required once 2FA is enabled.
	Code string `json:"code"`
}

// Login checks credentials and the second factor, then returns a JWT.
func (h *AuthHandler) Login(c *gin.Context) {
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	username := strings.TrimSpace(body.Username)
	if username == "" || body.Password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing username or password"})
		return
	}

	ctx := c.Request.Context()
	res, errLimit := h.limiter.Check(ctx, ratelimit.ScopeLogin, strings.ToLower(username))
	if errLimit != nil {
		log.WithError(errLimit).Warn("login rate limit check failed")
	} else if !res.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts, try again later"})
		return
	}

	var admin models.Admin
	errFind := h.db.WithContext(ctx).Where("username = ?", username).First(&admin).Error
	if errFind != nil {
		if !errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "query admin failed"})
			return
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !security.CheckPassword(admin.Password, body.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid username or password"})
		return
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return
	}

	enabled, errEnabled := h.twoFA.IsEnabled(ctx, admin.ID)
	if errEnabled != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query 2fa failed"})
		return
	}
	if enabled {
		if strings.TrimSpace(body.Code) == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "2fa code required", "two_fa_required": true})
			return
		}
		if errVerify := h.twoFA.Verify(ctx, admin.ID, body.Code); errVerify != nil {
			respondError(c, errorStatus(errVerify), errVerify)
			return
		}
	}

	token, expiresAt, errToken := security.IssueAdminToken(h.jwtCfg.Secret, admin.ID, admin.Username, h.jwtCfg.Expiry)
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "issue token failed"})
		return
	}

	now := time.Now().UTC()
	if errUpdate := h.db.WithContext(ctx).Model(&admin).Update("last_login_at", now).Error; errUpdate != nil {
		log.WithError(errUpdate).Warn("update admin last login")
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"expires_at": expiresAt,
		"admin": gin.H{
			"id":             admin.ID,
			"username":       admin.Username,
			"is_super_admin": admin.IsSuperAdmin,
		},
	})
}

// HealthHandler reports process and database health.
type HealthHandler struct {
	db *gorm.DB
}

// NewHealthHandler constructs a HealthHandler.
func NewHealthHandler(db *gorm.DB) *HealthHandler {
	return &HealthHandler{db: db}
}

// Healthz pings the database.
func (h *HealthHandler) Healthz(c *gin.Context) {
	sqlDB, errDB := h.db.DB()
	if errDB != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "database unavailable"})
		return
	}
	if errPing := sqlDB.PingContext(c.Request.Context()); errPing != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "error": "database unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
