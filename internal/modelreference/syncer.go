package modelreference

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/models"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const (
	defaultModelsURL      = "https://models.dev/api.json"
	defaultSyncInterval   = 6 * time.Hour
	defaultRequestTimeout = 15 * time.Second
	maxPayloadBytes       = 64 << 20
)

// errNotModified marks a conditional fetch that matched the stored ETag.
var errNotModified = errors.New("models syncer: not modified")

// Status describes the last sync attempt.
type Status struct {
	LastSuccess time.Time `json:"last_success,omitempty"`
	LastError   string    `json:"last_error,omitempty"`
	Models      int       `json:"models"`
}

// Syncer refreshes the reference table that backs provider default models.
// Only providers listed with WithProviders are kept when a filter is set.
type Syncer struct {
	db       *gorm.DB
	url      string
	interval time.Duration
	client   *http.Client
	now      func() time.Time

	providers map[string]struct{}

	mu     sync.Mutex
	etag   string
	status Status
}

// NewSyncer constructs a syncer. An empty url uses models.dev.
func NewSyncer(db *gorm.DB, url string) *Syncer {
	if db == nil {
		return nil
	}
	url = strings.TrimSpace(url)
	if url == "" {
		url = defaultModelsURL
	}
	return &Syncer{
		db:       db,
		url:      url,
		interval: defaultSyncInterval,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		now:      time.Now,
	}
}

// WithProviders restricts stored references to the given catalog ids.
func (s *Syncer) WithProviders(ids []string) *Syncer {
	if s == nil {
		return nil
	}
	s.providers = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if id = strings.TrimSpace(id); id != "" {
			s.providers[id] = struct{}{}
		}
	}
	return s
}

// Start syncs once, then on every interval tick until ctx is done.
func (s *Syncer) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go func() {
		s.syncAndLog(ctx)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.syncAndLog(ctx)
			}
		}
	}()
	log.Infof("models reference syncer started (url=%s interval=%s)", s.url, s.interval)
}

func (s *Syncer) syncAndLog(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		log.WithError(err).Warn("models syncer: sync failed")
	}
}

// Status returns the outcome of the most recent sync.
func (s *Syncer) Status() Status {
	if s == nil {
		return Status{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// SyncOnce fetches the payload and replaces the reference rows. An unchanged
// payload (HTTP 304) leaves the table untouched.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("models syncer: nil db")
	}
	body, etag, err := s.fetch(ctx)
	if errors.Is(err, errNotModified) {
		log.Debug("models syncer: payload unchanged")
		return nil
	}
	if err == nil {
		err = s.store(ctx, body)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status.LastError = err.Error()
		return err
	}
	s.etag = etag
	s.status.LastError = ""
	s.status.LastSuccess = s.now().UTC()
	return nil
}

func (s *Syncer) fetch(ctx context.Context) ([]byte, string, error) {
	requestCtx, cancel := context.WithTimeout(ctx, defaultRequestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodGet, s.url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("models syncer: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	s.mu.Lock()
	if s.etag != "" {
		req.Header.Set("If-None-Match", s.etag)
	}
	s.mu.Unlock()

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("models syncer: request failed: %w", err)
	}
	defer func() {
		if errClose := resp.Body.Close(); errClose != nil {
			log.WithError(errClose).Warn("models syncer: close response body failed")
		}
	}()

	if resp.StatusCode == http.StatusNotModified {
		return nil, "", errNotModified
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, "", fmt.Errorf("models syncer: unexpected status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxPayloadBytes))
	if err != nil {
		return nil, "", fmt.Errorf("models syncer: read response: %w", err)
	}
	return body, resp.Header.Get("ETag"), nil
}

func (s *Syncer) store(ctx context.Context, body []byte) error {
	refs, err := ParseModelsPayload(body)
	if err != nil {
		return err
	}
	refs = s.filter(refs)
	if len(refs) == 0 {
		return fmt.Errorf("models syncer: no models for known providers")
	}
	if errStore := StoreReferences(ctx, s.db, refs, s.now()); errStore != nil {
		return errStore
	}
	s.mu.Lock()
	s.status.Models = len(refs)
	s.mu.Unlock()
	log.WithField("models", len(refs)).Debug("models syncer: reference table updated")
	return nil
}

func (s *Syncer) filter(refs []models.ModelReference) []models.ModelReference {
	if len(s.providers) == 0 {
		return refs
	}
	kept := refs[:0]
	for _, ref := range refs {
		if _, ok := s.providers[ref.ProviderID]; ok {
			kept = append(kept, ref)
		}
	}
	return kept
}
