package admin

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/config"
	handlers "github.com/router-for-me/ChannelConsole/internal/http/api/admin/handlers"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/multikey"
	"github.com/router-for-me/ChannelConsole/internal/ratelimit"
	"github.com/router-for-me/ChannelConsole/internal/security"
	"github.com/router-for-me/ChannelConsole/internal/session"
	"github.com/router-for-me/ChannelConsole/internal/store"
	"github.com/router-for-me/ChannelConsole/internal/tagedit"
	"github.com/router-for-me/ChannelConsole/internal/twofa"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Deps carries everything the admin routes serve.
type Deps struct {
	DB       *gorm.DB
	JWT      config.JWTConfig
	Limiter  *ratelimit.Manager
	TwoFA    *twofa.Service
	Sessions *session.Manager
	Keys     multikey.Upstream
	Tags     *tagedit.Service
	Changes  *store.GormChannelChangeStore
	Catalog  channel.ModelCatalog
}

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(deps.DB)
	r.GET("/healthz", healthHandler.Healthz)

	adminGroup := r.Group("/v0/admin")
	adminGroup.GET("/healthz", healthHandler.Healthz)

	authHandler := handlers.NewAuthHandler(deps.DB, deps.JWT, deps.Limiter, deps.TwoFA)
	adminGroup.POST("/login", authHandler.Login)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(deps.DB, deps.JWT))
	authed.Use(adminRateLimitMiddleware(deps.Limiter))

	twoFAHandler := handlers.NewTwoFAHandler(deps.TwoFA)
	authed.GET("/2fa/status", twoFAHandler.Status)
	authed.POST("/2fa/setup", twoFAHandler.Setup)
	authed.POST("/2fa/enable", twoFAHandler.Enable)
	authed.POST("/2fa/disable", twoFAHandler.Disable)
	authed.POST("/2fa/backup-codes", twoFAHandler.RegenerateBackupCodes)

	sessionHandler := handlers.NewChannelSessionHandler(deps.Sessions)
	authed.POST("/channel-sessions", sessionHandler.Open)
	authed.GET("/channel-sessions/:id", sessionHandler.Get)
	authed.DELETE("/channel-sessions/:id", sessionHandler.Close)
	authed.PUT("/channel-sessions/:id/fields", sessionHandler.SetField)
	authed.PUT("/channel-sessions/:id/mode", sessionHandler.SetMode)
	authed.POST("/channel-sessions/:id/confirm", sessionHandler.Confirm)
	authed.POST("/channel-sessions/:id/cancel", sessionHandler.Cancel)
	authed.POST("/channel-sessions/:id/key-files", sessionHandler.AddKeyFiles)
	authed.POST("/channel-sessions/:id/fetch-models", sessionHandler.FetchModels)
	authed.POST("/channel-sessions/:id/reveal-key", sessionHandler.RevealKey)
	authed.POST("/channel-sessions/:id/submit", sessionHandler.Submit)

	keyHandler := handlers.NewMultiKeyHandler(deps.Keys, deps.Changes)
	authed.POST("/channels/:id/keys/query", keyHandler.Query)
	authed.POST("/channels/:id/keys/enable-all", keyHandler.EnableAll)
	authed.POST("/channels/:id/keys/disable-all", keyHandler.DisableAll)
	authed.POST("/channels/:id/keys/delete-disabled", keyHandler.DeleteDisabled)
	authed.POST("/channels/:id/keys/:index/enable", keyHandler.EnableKey)
	authed.POST("/channels/:id/keys/:index/disable", keyHandler.DisableKey)
	authed.DELETE("/channels/:id/keys/:index", keyHandler.DeleteKey)

	tagHandler := handlers.NewTagHandler(deps.Tags)
	authed.GET("/tags/:tag", tagHandler.Get)
	authed.PUT("/tags/:tag", tagHandler.Update)

	providerHandler := handlers.NewProviderHandler(deps.Catalog)
	authed.GET("/providers", providerHandler.List)
	authed.GET("/providers/:type/models", providerHandler.Models)

	settingHandler := handlers.NewSettingHandler(deps.DB)
	authed.POST("/settings", settingHandler.Create)
	authed.GET("/settings", settingHandler.List)
	authed.GET("/settings/:key", settingHandler.Get)
	authed.PUT("/settings/:key", settingHandler.Update)
	authed.DELETE("/settings/:key", settingHandler.Delete)

	changeHandler := handlers.NewChannelChangeHandler(deps.Changes)
	authed.GET("/channel-changes", changeHandler.List)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Set("adminIsSuperAdmin", admin.IsSuperAdmin)
		c.Next()
	}
}

// adminRateLimitMiddleware applies the RATE_LIMIT setting per admin.
// Limiter failures let the request through.
func adminRateLimitMiddleware(limiter *ratelimit.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if limiter == nil {
			c.Next()
			return
		}
		subject := strconv.FormatUint(c.GetUint64("adminID"), 10)
		res, errCheck := limiter.Check(c.Request.Context(), ratelimit.ScopeAPI, subject)
		if errCheck != nil {
			log.WithError(errCheck).Warn("admin rate limit check failed")
			c.Next()
			return
		}
		if !res.Reset.IsZero() {
			c.Header("X-RateLimit-Remaining", strconv.Itoa(res.Remaining))
			c.Header("X-RateLimit-Reset", strconv.FormatInt(res.Reset.Unix(), 10))
		}
		if !res.Allowed {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		c.Next()
	}
}
