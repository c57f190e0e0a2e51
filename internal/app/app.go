package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/config"
	"github.com/router-for-me/ChannelConsole/internal/db"
	internalhttp "github.com/router-for-me/ChannelConsole/internal/http/api/admin"
	"github.com/router-for-me/ChannelConsole/internal/logging"
	"github.com/router-for-me/ChannelConsole/internal/modelreference"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	"github.com/router-for-me/ChannelConsole/internal/ratelimit"
	"github.com/router-for-me/ChannelConsole/internal/session"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
	"github.com/router-for-me/ChannelConsole/internal/store"
	"github.com/router-for-me/ChannelConsole/internal/tagedit"
	"github.com/router-for-me/ChannelConsole/internal/twofa"
	"github.com/router-for-me/ChannelConsole/internal/watcher"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// defaultServerPort is used when neither the flag nor the config names a port.
const defaultServerPort = 8318

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.AppConfig) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	return db.Migrate(conn.WithContext(ctx))
}

// RunServer boots the console API with database-backed components and
// blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.AppConfig, defaultPort int) error {
	configPath := config.ResolveConfigPath(cfg.ConfigPath)
	if defaultPort <= 0 {
		defaultPort = defaultServerPort
	}
	serverCfg, errServer := config.LoadServerConfig(configPath, defaultPort)
	if errServer != nil {
		return errServer
	}
	logCloser, errLog := logging.Setup(serverCfg)
	if errLog != nil {
		return errLog
	}
	defer func() {
		if errClose := logCloser.Close(); errClose != nil {
			log.Errorf("log file close error: %v", errClose)
		}
	}()

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil {
		return err
	}
	conn, err := db.Open(dsn)
	if err != nil {
		return err
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return errMigrate
	}
	if errRefresh := internalsettings.RefreshDBConfig(ctx, conn); errRefresh != nil {
		log.WithError(errRefresh).Warn("initial settings refresh failed")
	}

	initialized, errInit := HasAdminInitialized(conn)
	if errInit != nil {
		return errInit
	}
	var initState atomic.Bool
	initState.Store(initialized)

	jwtConfig, errJWT := config.LoadJWTConfig(configPath)
	if errJWT != nil {
		return errJWT
	}
	upstreamCfg, errUpstream := config.LoadUpstreamConfig(configPath)
	if errUpstream != nil {
		return errUpstream
	}

	client := newapi.New(upstreamOptions(upstreamCfg))
	changes := store.NewGormChannelChangeStore(conn)
	catalog := channel.ChainCatalog{modelreference.NewCatalog(conn), channel.FallbackCatalog}

	limiter := ratelimit.NewManager(nil, nil, nil)
	defer func() {
		if errClose := limiter.Close(); errClose != nil {
			log.Errorf("rate limiter close error: %v", errClose)
		}
	}()

	sessions := session.NewManager(session.Options{
		Upstream:    client,
		Catalog:     catalog,
		Audit:       changes,
		SharedCache: limiter.SharedCache,
	})
	sessions.Start(ctx)
	defer sessions.CloseAll()

	if syncURL := strings.TrimSpace(serverCfg.ModelsSyncURL); syncURL != "" {
		modelreference.NewSyncer(conn, syncURL).WithProviders(channel.CatalogIDs()).Start(ctx)
	}

	if serverCfg.AuditRetention > 0 {
		go pruneChannelChanges(ctx, changes, serverCfg.AuditRetention)
	}

	w := watcher.New(conn, configPath, func(next config.UpstreamConfig) {
		client.Reconfigure(upstreamOptions(next))
		log.Infof("upstream reconfigured: %s", next.BaseURL)
	})
	if errWatch := w.Start(ctx); errWatch != nil {
		return errWatch
	}
	defer func() {
		if errStop := w.Stop(); errStop != nil {
			log.Errorf("watcher stop error: %v", errStop)
		}
	}()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(requestLogger())
	engine.Use(corsMiddleware())

	internalhttp.RegisterAdminRoutes(engine, internalhttp.Deps{
		DB:       conn,
		JWT:      jwtConfig,
		Limiter:  limiter,
		TwoFA:    twofa.NewService(conn, limiter),
		Sessions: sessions,
		Keys:     client,
		Tags:     tagedit.NewService(client, changes),
		Changes:  changes,
		Catalog:  catalog,
	})
	registerInitRoutes(engine, conn, dsn, &initState)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", serverCfg.Port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errServe := make(chan error, 1)
	go func() {
		log.Infof("starting console on %s with config=%s upstream=%s", srv.Addr, configPath, upstreamCfg.BaseURL)
		if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
			errServe <- errListen
			return
		}
		errServe <- nil
	}()

	select {
	case errListen := <-errServe:
		return errListen
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
		return fmt.Errorf("server shutdown: %w", errShutdown)
	}
	return <-errServe
}

// pruneChannelChanges deletes audit rows older than retention once an hour.
func pruneChannelChanges(ctx context.Context, changes *store.GormChannelChangeStore, retention time.Duration) {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()
	for {
		removed, errPrune := changes.Prune(ctx, time.Now().UTC().Add(-retention))
		if errPrune != nil {
			log.WithError(errPrune).Warn("channel change prune failed")
		} else if removed > 0 {
			log.WithField("removed", removed).Info("pruned channel changes")
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func upstreamOptions(cfg config.UpstreamConfig) newapi.Options {
	return newapi.Options{
		BaseURL:     cfg.BaseURL,
		AccessToken: cfg.AccessToken,
		UserID:      cfg.UserID,
		Timeout:     cfg.Timeout,
	}
}

// registerInitRoutes serves first-admin setup when the config file exists
// but no admin has been created yet.
func registerInitRoutes(engine *gin.Engine, conn *gorm.DB, dsn string, initState *atomic.Bool) {
	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: initState.Load()})
	})
	engine.GET("/v0/init/prefill", func(c *gin.Context) {
		prefill, errPrefill := initPrefillFromDSN(dsn)
		if errPrefill != nil {
			c.JSON(http.StatusOK, gin.H{"locked": true})
			return
		}
		c.JSON(http.StatusOK, struct {
			Locked bool `json:"locked"`
			initPrefill
		}{Locked: true, initPrefill: prefill})
	})
	engine.POST("/v0/init/setup", func(c *gin.Context) {
		if ok, errInit := HasAdminInitialized(conn); errInit != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "check admin status failed"})
			return
		} else if ok {
			initState.Store(true)
			c.JSON(http.StatusBadRequest, gin.H{"error": "system already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}

		req.SiteName = strings.TrimSpace(req.SiteName)
		if req.SiteName == "" {
			req.SiteName = internalsettings.DefaultSiteName
		}
		req.AdminUsername = strings.TrimSpace(req.AdminUsername)
		if req.AdminUsername == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "admin username is required"})
			return
		}
		if len(req.AdminPassword) < minAdminPasswordLength {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("password must be at least %d characters", minAdminPasswordLength)})
			return
		}

		if errAdmin := CreateAdminUserWithConn(conn, req.AdminUsername, req.AdminPassword, req.SiteName); errAdmin != nil {
			status := http.StatusInternalServerError
			if errors.Is(errAdmin, ErrAdminExists) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": fmt.Sprintf("failed to create admin: %v", errAdmin)})
			return
		}
		if errRefresh := internalsettings.RefreshDBConfig(c.Request.Context(), conn); errRefresh != nil {
			log.WithError(errRefresh).Warn("settings refresh after setup failed")
		}
		initState.Store(true)
		c.JSON(http.StatusOK, gin.H{"message": "initialization successful"})
	})
}

// requestLogger writes one logrus line per request.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(log.Fields{
			"method":  c.Request.Method,
			"path":    c.FullPath(),
			"status":  c.Writer.Status(),
			"latency": time.Since(start).String(),
		})
		if id := c.GetUint64("adminID"); id != 0 {
			entry = entry.WithField("admin_id", id)
		}
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("request failed")
			return
		}
		entry.Debug("request")
	}
}
