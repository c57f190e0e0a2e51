package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/router-for-me/ChannelConsole/internal/channel"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	janitorInterval   = 30 * time.Second
	prefillKindModels = "model"
)

// OpenRequest opens a create session (nil ChannelID) or an edit session.
type OpenRequest struct {
	AdminID   uint64
	ChannelID *int
}

// Manager is the registry of open sessions.
type Manager struct {
	opts Options

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewManager constructs a Manager.
func NewManager(opts Options) *Manager {
	return &Manager{
		opts:     opts.withDefaults(),
		sessions: make(map[string]*Session),
	}
}

// Open loads everything the editor needs and registers a new session. The
// channel record is required; option lists that fail to load become warnings.
func (m *Manager) Open(ctx context.Context, req OpenRequest) (Snapshot, error) {
	if m.opts.Upstream == nil {
		return Snapshot{}, fmt.Errorf("session: no upstream configured")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var (
		record   []byte
		lists    Lists
		warnings []string
		warnMu   sync.Mutex
	)
	warn := func(what string, err error) {
		log.WithError(err).Warnf("session: load %s", what)
		warnMu.Lock()
		warnings = append(warnings, fmt.Sprintf("failed to load %s: %v", what, err))
		warnMu.Unlock()
	}

	g, gctx := errgroup.WithContext(ctx)
	if req.ChannelID != nil {
		id := *req.ChannelID
		g.Go(func() error {
			raw, err := m.opts.Upstream.GetChannel(gctx, id)
			if err != nil {
				return err
			}
			record = raw
			return nil
		})
	}
	g.Go(func() error {
		models, err := m.opts.Upstream.ListModels(gctx)
		if err != nil {
			warn("models", err)
			return nil
		}
		lists.Models = channel.NormalizeList(models)
		return nil
	})
	g.Go(func() error {
		groups, err := m.opts.Upstream.ListGroups(gctx)
		if err != nil {
			warn("groups", err)
			return nil
		}
		lists.Groups = groups
		return nil
	})
	g.Go(func() error {
		prefill, err := m.opts.Upstream.ListPrefillGroups(gctx, prefillKindModels)
		if err != nil {
			warn("prefill groups", err)
			return nil
		}
		lists.PrefillGroups = prefill
		return nil
	})
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	resolver := channel.Resolver{
		Catalog:     m.opts.Catalog,
		SharedCache: m.opts.SharedCache(ctx),
	}
	var editor *channel.Editor
	if req.ChannelID != nil {
		draft, err := channel.FromRecord(record)
		if err != nil {
			return Snapshot{}, err
		}
		editor = channel.NewEditEditor(resolver, draft)
	} else {
		editor = channel.NewCreateEditor(resolver)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Session{
		id:        uuid.NewString(),
		adminID:   req.AdminID,
		channelID: req.ChannelID,
		upstream:  m.opts.Upstream,
		audit:     m.opts.Audit,
		now:       m.opts.Now,
		ttl:       m.opts.TTL,
		release:   m.remove,
		ctx:       sessionCtx,
		cancel:    cancel,
		editor:    editor,
		lists:     lists,
		warnings:  warnings,
		tickets:   make(map[asyncKind]uint64),
	}
	s.touch()

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	log.WithFields(log.Fields{
		"session": s.id,
		"admin":   req.AdminID,
	}).Debug("session: opened")
	return s.Snapshot()
}

// Get returns the session owned by adminID.
func (m *Manager) Get(id string, adminID uint64) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, ErrSessionNotFound
	}
	if s.adminID != adminID {
		return nil, ErrForbidden
	}
	if s.expired(m.opts.Now()) {
		s.close()
		return nil, ErrSessionClosed
	}
	return s, nil
}

// Close discards the session and cancels its in-flight requests.
func (m *Manager) Close(id string, adminID uint64) error {
	s, err := m.Get(id, adminID)
	if err != nil {
		return err
	}
	s.close()
	return nil
}

// Len returns the number of open sessions.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// Sweep closes sessions idle past their TTL and returns how many it closed.
func (m *Manager) Sweep(now time.Time) int {
	m.mu.Lock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.Unlock()

	closed := 0
	for _, s := range candidates {
		if s.expired(now) {
			s.close()
			closed++
		}
	}
	return closed
}

// Start runs the expiry janitor until ctx is done, then closes every session.
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(janitorInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				m.CloseAll()
				return
			case <-ticker.C:
				if n := m.Sweep(m.opts.Now()); n > 0 {
					log.Debugf("session: expired %d idle sessions", n)
				}
			}
		}
	}()
}

// CloseAll closes every open session.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	all := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		all = append(all, s)
	}
	m.mu.Unlock()
	for _, s := range all {
		s.close()
	}
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.sessions[s.id]; ok && cur == s {
		delete(m.sessions, s.id)
	}
}

// IsGone reports whether err means the session no longer exists.
func IsGone(err error) bool {
	return errors.Is(err, ErrSessionNotFound) || errors.Is(err, ErrSessionClosed)
}
