package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/config"
	"github.com/router-for-me/ChannelConsole/internal/db"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	"github.com/router-for-me/ChannelConsole/internal/security"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// InitRequest contains parameters for initial system setup.
type InitRequest struct {
	DatabaseType        string `json:"database_type"`
	DatabaseHost        string `json:"database_host"`
	DatabasePort        int    `json:"database_port"`
	DatabaseUser        string `json:"database_user"`
	DatabasePassword    string `json:"database_password"`
	DatabaseName        string `json:"database_name"`
	DatabasePath        string `json:"database_path"`
	DatabaseSSLMode     string `json:"database_ssl_mode"`
	UpstreamBaseURL     string `json:"upstream_base_url"`
	UpstreamAccessToken string `json:"upstream_access_token"`
	UpstreamUserID      string `json:"upstream_user_id"`
	SiteName            string `json:"site_name"`
	AdminUsername       string `json:"admin_username" binding:"required"`
	AdminPassword       string `json:"admin_password" binding:"required"`
}

// InitStatusResponse reports whether initialization is complete.
type InitStatusResponse struct {
	Initialized bool `json:"initialized"`
}

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// defaultSQLitePath is the default SQLite database file name.
const defaultSQLitePath = "console.db"

// minAdminPasswordLength is the shortest accepted first admin password.
const minAdminPasswordLength = 6

// BuildDSN builds a database DSN from the init request.
func BuildDSN(req InitRequest) (string, error) {
	switch strings.ToLower(strings.TrimSpace(req.DatabaseType)) {
	case "", "postgres":
		sslMode := req.DatabaseSSLMode
		if sslMode == "" {
			sslMode = "disable"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(req.DatabaseUser, req.DatabasePassword),
			Host:     fmt.Sprintf("%s:%d", req.DatabaseHost, req.DatabasePort),
			Path:     "/" + req.DatabaseName,
			RawQuery: "sslmode=" + url.QueryEscape(sslMode),
		}
		return u.String(), nil
	case "sqlite":
		path := strings.TrimSpace(req.DatabasePath)
		if path == "" {
			path = defaultSQLitePath
		}
		return buildSQLiteDSN(path), nil
	default:
		return "", fmt.Errorf("unsupported database type")
	}
}

// buildSQLiteDSN constructs a SQLite DSN with default parameters.
func buildSQLiteDSN(path string) string {
	dsn := strings.TrimSpace(path)
	if dsn == "" {
		dsn = defaultSQLitePath
	}
	if !strings.HasPrefix(strings.ToLower(dsn), "file:") {
		dsn = "file:" + dsn
	}
	separator := "?"
	if strings.Contains(dsn, "?") {
		separator = "&"
	}
	return dsn + separator + strings.Join([]string{
		"_pragma=busy_timeout(5000)",
		"_pragma=journal_mode(WAL)",
		"_pragma=foreign_keys(1)",
		"_pragma=synchronous(NORMAL)",
	}, "&")
}

// TestDatabaseConnection validates that the DSN can connect and ping.
func TestDatabaseConnection(dsn string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		return fmt.Errorf("failed to get sql db: %w", err)
	}
	defer func() {
		if errClose := sqlDB.Close(); errClose != nil {
			log.Errorf("sql db close error: %v", errClose)
		}
	}()
	return sqlDB.Ping()
}

// TestUpstreamConnection checks that the gateway accepts the credentials by
// listing its groups.
func TestUpstreamConnection(ctx context.Context, baseURL, accessToken, userID string) error {
	client := newapi.New(newapi.Options{
		BaseURL:     baseURL,
		AccessToken: accessToken,
		UserID:      userID,
		Timeout:     10 * time.Second,
	})
	if _, err := client.ListGroups(ctx); err != nil {
		return fmt.Errorf("upstream check failed: %w", err)
	}
	return nil
}

// validateInitRequest normalizes and validates init input data.
func validateInitRequest(req *InitRequest) error {
	dbType := strings.ToLower(strings.TrimSpace(req.DatabaseType))
	if dbType == "" {
		dbType = "postgres"
	}
	req.DatabaseType = dbType

	switch dbType {
	case "postgres":
		if strings.TrimSpace(req.DatabaseHost) == "" {
			return fmt.Errorf("database host is required")
		}
		if req.DatabasePort <= 0 {
			return fmt.Errorf("invalid database port")
		}
		if strings.TrimSpace(req.DatabaseUser) == "" {
			return fmt.Errorf("database username is required")
		}
		if strings.TrimSpace(req.DatabaseName) == "" {
			return fmt.Errorf("database name is required")
		}
		if strings.TrimSpace(req.DatabasePassword) == "" {
			return fmt.Errorf("database password is required")
		}
	case "sqlite":
		if strings.TrimSpace(req.DatabasePath) == "" {
			req.DatabasePath = defaultSQLitePath
		}
	default:
		return fmt.Errorf("unsupported database type")
	}

	req.UpstreamBaseURL = strings.TrimRight(strings.TrimSpace(req.UpstreamBaseURL), "/")
	if req.UpstreamBaseURL == "" {
		return fmt.Errorf("upstream base url is required")
	}
	parsed, errParse := url.Parse(req.UpstreamBaseURL)
	if errParse != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("upstream base url must be an http(s) url")
	}
	req.UpstreamAccessToken = strings.TrimSpace(req.UpstreamAccessToken)
	req.UpstreamUserID = strings.TrimSpace(req.UpstreamUserID)

	req.AdminUsername = strings.TrimSpace(req.AdminUsername)
	if req.AdminUsername == "" {
		return fmt.Errorf("admin username is required")
	}
	if len(req.AdminPassword) < minAdminPasswordLength {
		return fmt.Errorf("password must be at least %d characters", minAdminPasswordLength)
	}

	req.SiteName = strings.TrimSpace(req.SiteName)
	if req.SiteName == "" {
		req.SiteName = internalsettings.DefaultSiteName
	}
	return nil
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	Port          int         `yaml:"port"`
	DatabaseDSN   string      `yaml:"database-dsn"`
	Debug         bool        `yaml:"debug"`
	LoggingToFile bool        `yaml:"logging-to-file"`
	JWT           jwtCfg      `yaml:"jwt"`
	Upstream      upstreamCfg `yaml:"upstream"`
}

// jwtCfg holds JWT settings for the generated config file.
type jwtCfg struct {
	Secret string `yaml:"secret"`
	Expiry string `yaml:"expiry"`
}

// upstreamCfg holds the gateway address for the generated config file.
type upstreamCfg struct {
	BaseURL     string `yaml:"base-url"`
	AccessToken string `yaml:"access-token"`
	UserID      string `yaml:"user-id,omitempty"`
}

// generateJWTSecret creates a random JWT secret string.
func generateJWTSecret() string {
	secret, err := security.GenerateRandomString(32)
	if err != nil {
		return "change-me-to-a-secure-random-string"
	}
	return secret
}

// WriteConfigFile writes the initial config file to disk.
func WriteConfigFile(configPath string, dsn string, port int, upstream config.UpstreamConfig) error {
	cfg := configFile{
		Port:          port,
		DatabaseDSN:   dsn,
		Debug:         false,
		LoggingToFile: false,
		JWT: jwtCfg{
			Secret: generateJWTSecret(),
			Expiry: "720h",
		},
		Upstream: upstreamCfg{
			BaseURL:     upstream.BaseURL,
			AccessToken: upstream.AccessToken,
			UserID:      upstream.UserID,
		},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// HasAdminInitialized reports whether first-run setup created an admin.
// A database that has not been migrated yet counts as uninitialized.
func HasAdminInitialized(conn *gorm.DB) (bool, error) {
	if conn == nil {
		return false, fmt.Errorf("check admin: nil connection")
	}
	if !conn.Migrator().HasTable(&models.Admin{}) {
		return false, nil
	}
	var ids []uint64
	if errFind := conn.Model(&models.Admin{}).Limit(1).Pluck("id", &ids).Error; errFind != nil {
		return false, fmt.Errorf("check admin: %w", errFind)
	}
	return len(ids) > 0, nil
}

// ErrAdminExists is returned when the first admin username is already taken.
var ErrAdminExists = errors.New("admin already exists")

// CreateAdminUser creates the first admin user and seeds the site name.
func CreateAdminUser(dsn string, username, password, siteName string) error {
	conn, err := db.Open(dsn)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	sqlDB, errDB := conn.DB()
	if errDB == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	if errMigrate := db.Migrate(conn); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateAdminUserWithConn(conn, username, password, siteName)
}

// CreateAdminUserWithConn creates the first admin user and seeds the site name.
func CreateAdminUserWithConn(conn *gorm.DB, username, password, siteName string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}

	hashedPassword, errHash := security.HashPassword(password)
	if errHash != nil {
		return fmt.Errorf("hash password: %w", errHash)
	}

	now := time.Now().UTC()
	admin := models.Admin{
		Username:     username,
		Password:     hashedPassword,
		Active:       true,
		IsSuperAdmin: true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return ErrAdminExists
		}
		return fmt.Errorf("create admin: %w", errCreate)
	}

	return upsertSiteNameSetting(conn, siteName)
}

// upsertSiteNameSetting stores the SITE_NAME setting in the database.
func upsertSiteNameSetting(conn *gorm.DB, siteName string) error {
	normalized := strings.TrimSpace(siteName)
	if normalized == "" {
		normalized = internalsettings.DefaultSiteName
	}
	payload, errMarshal := json.Marshal(normalized)
	if errMarshal != nil {
		return fmt.Errorf("db: marshal SITE_NAME setting: %w", errMarshal)
	}
	value := models.JSONValue(payload)

	now := time.Now().UTC()
	res := conn.Model(&models.Setting{}).Where("key = ?", internalsettings.SiteNameKey).
		Updates(map[string]any{
			"value":      value,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("db: update SITE_NAME setting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}

	setting := models.Setting{
		Key:       internalsettings.SiteNameKey,
		Value:     value,
		UpdatedAt: now,
	}
	if errCreate := conn.Create(&setting).Error; errCreate != nil {
		return fmt.Errorf("db: create SITE_NAME setting: %w", errCreate)
	}
	return nil
}

// ErrInitCompleted signals that initialization finished and the server should restart.
var ErrInitCompleted = fmt.Errorf("init completed")

// corsMiddleware enables permissive CORS for console clients.
func corsMiddleware() gin.HandlerFunc {
	cfg := cors.DefaultConfig()
	cfg.AllowAllOrigins = true
	cfg.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}
	cfg.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization"}
	cfg.ExposeHeaders = []string{"X-RateLimit-Remaining", "X-RateLimit-Reset"}
	cfg.MaxAge = 24 * time.Hour
	return cors.New(cfg)
}

// initSetupHandler validates the request, probes the database and the
// gateway, writes the config file, and creates the first admin. done is
// called once after a successful setup.
func initSetupHandler(configPath string, port int, done func()) gin.HandlerFunc {
	return func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "system already initialized"})
			return
		}

		var req InitRequest
		if errBind := c.ShouldBindJSON(&req); errBind != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBind.Error()})
			return
		}

		if errValidate := validateInitRequest(&req); errValidate != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errValidate.Error()})
			return
		}

		dsn, errBuild := BuildDSN(req)
		if errBuild != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errBuild.Error()})
			return
		}

		if errTest := TestDatabaseConnection(dsn); errTest != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("database connection failed: %v", errTest)})
			return
		}

		if errUpstream := TestUpstreamConnection(c.Request.Context(), req.UpstreamBaseURL, req.UpstreamAccessToken, req.UpstreamUserID); errUpstream != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": errUpstream.Error()})
			return
		}

		upstream := config.UpstreamConfig{
			BaseURL:     req.UpstreamBaseURL,
			AccessToken: req.UpstreamAccessToken,
			UserID:      req.UpstreamUserID,
		}
		if errWrite := WriteConfigFile(configPath, dsn, port, upstream); errWrite != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": fmt.Sprintf("failed to write config: %v", errWrite)})
			return
		}

		if errAdmin := CreateAdminUser(dsn, req.AdminUsername, req.AdminPassword, req.SiteName); errAdmin != nil {
			if errRemove := os.Remove(configPath); errRemove != nil {
				log.Errorf("remove config file error: %v", errRemove)
			}
			status := http.StatusInternalServerError
			if errors.Is(errAdmin, ErrAdminExists) {
				status = http.StatusConflict
			}
			c.JSON(status, gin.H{"error": fmt.Sprintf("failed to create admin: %v", errAdmin)})
			return
		}

		c.JSON(http.StatusOK, gin.H{"message": "initialization successful"})
		done()
	}
}

// newInitEngine builds the router served while no config file exists.
func newInitEngine(configPath string, port int, done func()) *gin.Engine {
	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(corsMiddleware())

	engine.GET("/v0/init/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, InitStatusResponse{Initialized: ConfigExists(configPath)})
	})
	engine.GET("/v0/init/prefill", func(c *gin.Context) {
		c.JSON(http.StatusOK, initPrefillFromEnv())
	})
	engine.POST("/v0/init/setup", initSetupHandler(configPath, port, done))

	engine.NoRoute(func(c *gin.Context) {
		if ConfigExists(configPath) {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "system initializing, please restart the server"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "system not initialized, POST /v0/init/setup first"})
	})
	return engine
}

// RunInitServer starts the initialization server when config is missing.
func RunInitServer(ctx context.Context, cfg config.AppConfig, port int) error {
	gin.SetMode(gin.ReleaseMode)
	configPath := config.ResolveConfigPath(cfg.ConfigPath)

	initDone := make(chan struct{})
	var once sync.Once
	engine := newInitEngine(configPath, port, func() {
		once.Do(func() {
			// Let the success response flush before shutdown.
			time.AfterFunc(500*time.Millisecond, func() { close(initDone) })
		})
	})

	addr := fmt.Sprintf(":%d", port)
	log.Infof("starting init server on %s (config not found at %s)", addr, configPath)

	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		select {
		case <-ctx.Done():
		case <-initDone:
		}
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("init server shutdown error: %v", errShutdown)
		}
	}()

	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}

	select {
	case <-initDone:
		return ErrInitCompleted
	default:
		return nil
	}
}
