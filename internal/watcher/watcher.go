package watcher

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/router-for-me/ChannelConsole/internal/config"
	"github.com/router-for-me/ChannelConsole/internal/models"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Default timings for the watcher loop.
const (
	// defaultPollInterval controls how often the settings table is checked.
	defaultPollInterval = 2 * time.Second
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
	// debounceDelay coalesces bursts of file events from editors.
	debounceDelay = 500 * time.Millisecond
)

// Watcher keeps runtime state in step with its sources: the upstream section
// of the config file (fsnotify, with polling as a fallback) and the settings
// table (polling).
type Watcher struct {
	db         *gorm.DB
	configPath string
	onUpstream func(config.UpstreamConfig)

	pollInterval time.Duration

	cfgMu   sync.Mutex
	cfgHash string

	// settings snapshot change detection
	settingsLatestAt  time.Time
	settingsLatestKey string
	settingsCount     int64
	hasSettingsLatest bool

	fs     *fsnotify.Watcher
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Watcher. onUpstream receives every changed upstream
// section after the first load; either source may be absent.
func New(db *gorm.DB, configPath string, onUpstream func(config.UpstreamConfig)) *Watcher {
	return &Watcher{
		db:           db,
		configPath:   strings.TrimSpace(configPath),
		onUpstream:   onUpstream,
		pollInterval: defaultPollInterval,
	}
}

// Start loads both sources once, then watches them until ctx is done or Stop
// is called.
func (w *Watcher) Start(ctx context.Context) error {
	if w == nil {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	w.hashConfig()
	w.pollSettings(runCtx, true)

	if w.configPath != "" {
		fsw, errWatcher := fsnotify.NewWatcher()
		if errWatcher != nil {
			cancel()
			return fmt.Errorf("watcher: create file watcher: %w", errWatcher)
		}
		// Watch the directory so atomic renames of the file are seen.
		if errAdd := fsw.Add(filepath.Dir(w.configPath)); errAdd != nil {
			_ = fsw.Close()
			cancel()
			return fmt.Errorf("watcher: watch config dir: %w", errAdd)
		}
		w.fs = fsw
		w.wg.Add(1)
		go func() {
			defer w.wg.Done()
			w.watchFile(runCtx)
		}()
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()

	log.Infof("watcher started (config=%s poll_interval=%s)", w.configPath, w.pollInterval)
	return nil
}

// Stop cancels background tasks and waits for them to exit.
func (w *Watcher) Stop() error {
	if w == nil {
		return nil
	}
	if w.cancel != nil {
		w.cancel()
	}
	var errClose error
	if w.fs != nil {
		errClose = w.fs.Close()
	}
	w.wg.Wait()
	return errClose
}

// run executes the periodic polling loop until the context is canceled.
func (w *Watcher) run(ctx context.Context) {
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.pollConfig()
			w.pollSettings(ctx, false)
		}
	}
}

// watchFile reacts to writes of the config file.
func (w *Watcher) watchFile(ctx context.Context) {
	var (
		timerMu sync.Mutex
		timer   *time.Timer
	)
	defer func() {
		timerMu.Lock()
		if timer != nil {
			timer.Stop()
		}
		timerMu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.configPath) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			timerMu.Lock()
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(debounceDelay, w.pollConfig)
			timerMu.Unlock()
		case errWatch, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			log.WithError(errWatch).Warn("watcher: file watcher error")
		}
	}
}

// hashConfig records the current config hash without notifying.
func (w *Watcher) hashConfig() {
	hash, ok := w.readConfigHash()
	if !ok {
		return
	}
	w.cfgMu.Lock()
	w.cfgHash = hash
	w.cfgMu.Unlock()
}

func (w *Watcher) readConfigHash() (string, bool) {
	if w.configPath == "" {
		return "", false
	}
	data, errRead := os.ReadFile(w.configPath)
	if errRead != nil || len(data) == 0 {
		return "", false
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:]), true
}

// pollConfig reloads the upstream section when the file contents change.
func (w *Watcher) pollConfig() {
	hash, ok := w.readConfigHash()
	if !ok {
		return
	}

	w.cfgMu.Lock()
	defer w.cfgMu.Unlock()
	if w.cfgHash == hash {
		return
	}

	upstream, errLoad := config.LoadUpstreamConfig(w.configPath)
	if errLoad != nil {
		log.WithError(errLoad).Warn("watcher: load upstream config failed")
		return
	}
	w.cfgHash = hash
	log.Infof("watcher: config changed, reloading upstream (base_url=%s)", upstream.BaseURL)
	if w.onUpstream != nil {
		w.onUpstream(upstream)
	}
}

// pollSettings refreshes the settings snapshot when the table changes.
func (w *Watcher) pollSettings(ctx context.Context, force bool) {
	if w.db == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	// latestRow captures the newest setting timestamp for change detection.
	type latestRow struct {
		Key       string    `gorm:"column:key"`        // Latest settings key.
		UpdatedAt time.Time `gorm:"column:updated_at"` // Latest settings update time.
	}
	var latest latestRow
	hasLatest := true
	errLatest := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order("updated_at DESC, key DESC").
		Limit(1).
		Take(&latest).Error
	if errLatest != nil {
		if errors.Is(errLatest, context.Canceled) {
			return
		}
		if !errors.Is(errLatest, gorm.ErrRecordNotFound) {
			log.WithError(errLatest).Warn("watcher: query settings latest row failed")
			return
		}
		hasLatest = false
	}
	var count int64
	if errCount := w.db.WithContext(qctx).Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		if !errors.Is(errCount, context.Canceled) {
			log.WithError(errCount).Warn("watcher: count settings failed")
		}
		return
	}

	latestKey := strings.TrimSpace(latest.Key)
	latestAt := latest.UpdatedAt.UTC()
	if !force && hasLatest == w.hasSettingsLatest && latestAt.Equal(w.settingsLatestAt) &&
		latestKey == w.settingsLatestKey && count == w.settingsCount {
		return
	}

	if errRefresh := internalsettings.RefreshDBConfig(qctx, w.db); errRefresh != nil {
		if !errors.Is(errRefresh, context.Canceled) {
			log.WithError(errRefresh).Warn("watcher: refresh settings failed")
		}
		return
	}
	if !force {
		log.Infof("watcher: settings changed (latest_updated_at=%s latest_key=%s)", latestAt.Format(time.RFC3339Nano), latestKey)
	}

	w.settingsLatestAt = latestAt
	w.settingsLatestKey = latestKey
	w.settingsCount = count
	w.hasSettingsLatest = hasLatest
}
