package app

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/router-for-me/ChannelConsole/internal/config"
	"github.com/router-for-me/ChannelConsole/internal/db"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/newapi/newapitest"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		config.EnvDBConnection,
		config.EnvJWTSecret,
		config.EnvJWTExpiry,
		config.EnvUpstreamBaseURL,
		config.EnvUpstreamAccessToken,
		config.EnvUpstreamUserID,
	} {
		t.Setenv(key, "")
	}
}

func TestValidateInitRequest_SQLiteDefaults(t *testing.T) {
	req := InitRequest{
		DatabaseType:    "SQLite",
		UpstreamBaseURL: " https://gateway.example.com/ ",
		AdminUsername:   " root ",
		AdminPassword:   "secret1",
	}
	if err := validateInitRequest(&req); err != nil {
		t.Fatalf("validateInitRequest: %v", err)
	}
	if req.DatabaseType != "sqlite" || req.DatabasePath != "console.db" {
		t.Fatalf("unexpected database defaults: %+v", req)
	}
	if req.UpstreamBaseURL != "https://gateway.example.com" {
		t.Fatalf("expected trimmed base url, got %q", req.UpstreamBaseURL)
	}
	if req.AdminUsername != "root" {
		t.Fatalf("expected trimmed username, got %q", req.AdminUsername)
	}
	if req.SiteName == "" {
		t.Fatalf("expected default site name")
	}
}

func TestValidateInitRequest_Rejects(t *testing.T) {
	base := InitRequest{
		DatabaseType:    "sqlite",
		UpstreamBaseURL: "https://gateway.example.com",
		AdminUsername:   "root",
		AdminPassword:   "secret1",
	}
	cases := map[string]func(r *InitRequest){
		"missing upstream": func(r *InitRequest) { r.UpstreamBaseURL = "" },
		"non http":         func(r *InitRequest) { r.UpstreamBaseURL = "ftp://gateway" },
		"short password":   func(r *InitRequest) { r.AdminPassword = "abc" },
		"bad db type":      func(r *InitRequest) { r.DatabaseType = "mysql" },
		"postgres no host": func(r *InitRequest) { r.DatabaseType = "postgres" },
	}
	for name, mutate := range cases {
		req := base
		mutate(&req)
		if err := validateInitRequest(&req); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestBuildDSN(t *testing.T) {
	dsn, err := BuildDSN(InitRequest{DatabaseType: "sqlite", DatabasePath: "data/console.db"})
	if err != nil {
		t.Fatalf("BuildDSN sqlite: %v", err)
	}
	if !strings.HasPrefix(dsn, "file:data/console.db?_pragma=busy_timeout(5000)") {
		t.Fatalf("unexpected sqlite dsn %q", dsn)
	}

	dsn, err = BuildDSN(InitRequest{
		DatabaseType:     "postgres",
		DatabaseHost:     "db",
		DatabasePort:     5432,
		DatabaseUser:     "ops",
		DatabasePassword: "p@ss",
		DatabaseName:     "console",
	})
	if err != nil {
		t.Fatalf("BuildDSN postgres: %v", err)
	}
	if dsn != "postgres://ops:p%40ss@db:5432/console?sslmode=disable" {
		t.Fatalf("unexpected postgres dsn %q", dsn)
	}
}

func TestWriteConfigFile_RoundTrip(t *testing.T) {
	clearConfigEnv(t)
	configPath := filepath.Join(t.TempDir(), "conf", "config.yaml")
	upstream := config.UpstreamConfig{
		BaseURL:     "https://gateway.example.com",
		AccessToken: "tok",
		UserID:      "1",
	}
	if err := WriteConfigFile(configPath, "file:console.db", 9000, upstream); err != nil {
		t.Fatalf("WriteConfigFile: %v", err)
	}
	if !ConfigExists(configPath) {
		t.Fatalf("expected config file to exist")
	}

	dsn, err := config.LoadDatabaseDSN(configPath)
	if err != nil || dsn != "file:console.db" {
		t.Fatalf("LoadDatabaseDSN = %q, %v", dsn, err)
	}
	loaded, err := config.LoadUpstreamConfig(configPath)
	if err != nil {
		t.Fatalf("LoadUpstreamConfig: %v", err)
	}
	if loaded.BaseURL != upstream.BaseURL || loaded.AccessToken != "tok" || loaded.UserID != "1" {
		t.Fatalf("unexpected upstream config: %+v", loaded)
	}
	jwtCfg, err := config.LoadJWTConfig(configPath)
	if err != nil {
		t.Fatalf("LoadJWTConfig: %v", err)
	}
	if len(jwtCfg.Secret) < 32 {
		t.Fatalf("expected generated jwt secret, got %q", jwtCfg.Secret)
	}
	serverCfg, err := config.LoadServerConfig(configPath, 8318)
	if err != nil || serverCfg.Port != 9000 {
		t.Fatalf("LoadServerConfig = %+v, %v", serverCfg, err)
	}
}

func TestFirstAdminLifecycle(t *testing.T) {
	conn, err := db.Open("file:" + filepath.Join(t.TempDir(), "console-test.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if ok, errCheck := HasAdminInitialized(conn); errCheck != nil || ok {
		t.Fatalf("before migrate: initialized=%v err=%v", ok, errCheck)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	if ok, errCheck := HasAdminInitialized(conn); errCheck != nil || ok {
		t.Fatalf("empty table: initialized=%v err=%v", ok, errCheck)
	}

	if errCreate := CreateAdminUserWithConn(conn, "root", "password", ""); errCreate != nil {
		t.Fatalf("CreateAdminUserWithConn: %v", errCreate)
	}
	if ok, errCheck := HasAdminInitialized(conn); errCheck != nil || !ok {
		t.Fatalf("after create: initialized=%v err=%v", ok, errCheck)
	}
	var admin models.Admin
	if errFind := conn.First(&admin).Error; errFind != nil {
		t.Fatalf("find admin: %v", errFind)
	}
	if !admin.IsSuperAdmin || !admin.Active {
		t.Fatalf("expected an active super admin, got %+v", admin)
	}

	errDup := CreateAdminUserWithConn(conn, "root", "password", "")
	if !errors.Is(errDup, ErrAdminExists) {
		t.Fatalf("expected ErrAdminExists, got %v", errDup)
	}

	var setting models.Setting
	if errFind := conn.Where("key = ?", "SITE_NAME").First(&setting).Error; errFind != nil {
		t.Fatalf("find site name: %v", errFind)
	}
}

func postSetup(t *testing.T, engine *gin.Engine, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/v0/init/setup", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, req)
	return rec
}

func TestInitEngine_Setup(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clearConfigEnv(t)

	gateway := newapitest.New()
	defer gateway.Close()
	gateway.Reply(http.MethodGet, "/api/group/", newapitest.OK([]string{"default"}))

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	doneCalls := 0
	engine := newInitEngine(configPath, 8318, func() { doneCalls++ })

	body := map[string]any{
		"database_type":         "sqlite",
		"database_path":         filepath.Join(dir, "console.db"),
		"upstream_base_url":     gateway.URL,
		"upstream_access_token": "tok",
		"upstream_user_id":      "1",
		"admin_username":        "root",
		"admin_password":        "secret1",
	}
	rec := postSetup(t, engine, body)
	if rec.Code != http.StatusOK {
		t.Fatalf("setup status %d: %s", rec.Code, rec.Body.String())
	}
	if doneCalls != 1 {
		t.Fatalf("expected done once, got %d", doneCalls)
	}
	if !ConfigExists(configPath) {
		t.Fatalf("expected config file written")
	}
	if gateway.Count(http.MethodGet, "/api/group/") != 1 {
		t.Fatalf("expected one upstream probe")
	}

	statusReq := httptest.NewRequest(http.MethodGet, "/v0/init/status", nil)
	statusRec := httptest.NewRecorder()
	engine.ServeHTTP(statusRec, statusReq)
	var status InitStatusResponse
	if err := json.Unmarshal(statusRec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Initialized {
		t.Fatalf("expected initialized=true")
	}

	if again := postSetup(t, engine, body); again.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 on second setup, got %d", again.Code)
	}
}

func TestInitEngine_UpstreamRejected(t *testing.T) {
	gin.SetMode(gin.TestMode)
	clearConfigEnv(t)

	gateway := newapitest.New()
	defer gateway.Close()
	gateway.Reply(http.MethodGet, "/api/group/", newapitest.Fail("access token invalid"))

	dir := t.TempDir()
	configPath := filepath.Join(dir, "config.yaml")
	engine := newInitEngine(configPath, 8318, func() { t.Fatalf("done must not be called") })

	rec := postSetup(t, engine, map[string]any{
		"database_type":     "sqlite",
		"database_path":     filepath.Join(dir, "console.db"),
		"upstream_base_url": gateway.URL,
		"admin_username":    "root",
		"admin_password":    "secret1",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "access token invalid") {
		t.Fatalf("expected upstream message, got %s", rec.Body.String())
	}
	if ConfigExists(configPath) {
		t.Fatalf("config must not be written on failure")
	}
}

func TestInitEngine_NoRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	engine := newInitEngine(filepath.Join(t.TempDir(), "config.yaml"), 8318, func() {})
	rec := httptest.NewRecorder()
	engine.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v0/admin/providers", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}
