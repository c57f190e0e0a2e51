package session

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	log "github.com/sirupsen/logrus"
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	// ErrSessionClosed is returned when a session closed or was superseded
	// while a request was in flight. The response is discarded.
	ErrSessionClosed = errors.New("session: closed")
	ErrForbidden     = errors.New("session: owned by another admin")
	ErrKeyRequired   = errors.New("please enter the key first")
	ErrFetchModels   = errors.New("failed to fetch model list")
	ErrCodeRequired  = errors.New("please enter the verification code or backup code")
	ErrNotStored     = errors.New("session: channel is not stored yet")
	// ErrSubmitInProgress rejects a submit while another one on the same
	// session is still waiting for the gateway.
	ErrSubmitInProgress = errors.New("session: submit already in progress")
)

type asyncKind int

const (
	asyncFetchModels asyncKind = iota
	asyncKeyFiles
	asyncReveal
	asyncSubmit
)

// Lists are the option lists loaded when a session opens.
type Lists struct {
	Models        []string              `json:"models"`
	Groups        []string              `json:"groups"`
	PrefillGroups []newapi.PrefillGroup `json:"prefill_groups"`
}

// Snapshot is a read-only view of a session.
type Snapshot struct {
	ID            string           `json:"id"`
	ChannelID     *int             `json:"channel_id,omitempty"`
	Draft         channel.Draft    `json:"draft"`
	Mode          channel.Mode     `json:"mode"`
	Layout        channel.Layout   `json:"layout"`
	Pending       *channel.Pending `json:"pending,omitempty"`
	KeyFiles      []string         `json:"key_files"`
	FetchedModels []string         `json:"fetched_models,omitempty"`
	Lists         Lists            `json:"lists"`
	Warnings      []string         `json:"warnings,omitempty"`
	ExpiresAt     time.Time        `json:"expires_at"`
}

// ModeChange carries the mode switches of one request. Nil fields are left alone.
type ModeChange struct {
	Batch       *bool                   `json:"batch,omitempty"`
	Aggregation *bool                   `json:"aggregation,omitempty"`
	Policy      *channel.MultiKeyPolicy `json:"multi_key_mode,omitempty"`
	KeyUpdate   *channel.KeyUpdateMode  `json:"key_mode,omitempty"`
	ManualInput *bool                   `json:"manual_input,omitempty"`
}

// SubmitResult reports a dispatched create or update.
type SubmitResult struct {
	Method  string `json:"method"`
	Path    string `json:"path"`
	Message string `json:"message"`
}

// Session is one open channel editor bound to one admin.
type Session struct {
	id        string
	adminID   uint64
	channelID *int
	upstream  Upstream
	audit     Auditor
	now       func() time.Time
	ttl       func() time.Duration
	release   func(*Session)

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	editor   *channel.Editor
	lists    Lists
	warnings []string
	fetched  []string
	tickets  map[asyncKind]uint64
	lastUsed time.Time
	closed   bool

	submitting bool
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// AdminID returns the owning admin.
func (s *Session) AdminID() uint64 { return s.adminID }

// Snapshot returns the current draft, derived layout, and option lists.
func (s *Session) Snapshot() (Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Snapshot{}, ErrSessionClosed
	}
	s.touch()
	return s.snapshotLocked(), nil
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:            s.id,
		ChannelID:     s.channelID,
		Draft:         s.editor.Draft(),
		Mode:          s.editor.Mode(),
		Layout:        s.editor.Layout(),
		Pending:       s.editor.Pending(),
		KeyFiles:      s.editor.KeyFiles(),
		FetchedModels: append([]string(nil), s.fetched...),
		Lists:         s.lists,
		Warnings:      append([]string(nil), s.warnings...),
		ExpiresAt:     s.lastUsed.Add(s.ttl()),
	}
}

// touch marks the session as used. Caller holds mu.
func (s *Session) touch() {
	s.lastUsed = s.now()
}

// expired reports whether the session idled past its TTL.
func (s *Session) expired(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && now.Sub(s.lastUsed) >= s.ttl()
}

// mutate runs fn against the editor under the session lock.
func (s *Session) mutate(fn func(e *channel.Editor) (channel.Outcome, error)) (channel.Outcome, Snapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return channel.Outcome{}, Snapshot{}, ErrSessionClosed
	}
	s.touch()
	outcome, err := fn(s.editor)
	if err != nil {
		return channel.Outcome{}, Snapshot{}, err
	}
	return outcome, s.snapshotLocked(), nil
}

// SetField applies one field change.
func (s *Session) SetField(name string, value any) (channel.Outcome, Snapshot, error) {
	return s.mutate(func(e *channel.Editor) (channel.Outcome, error) {
		return e.SetField(name, value)
	})
}

// SetMode applies the mode switches in a fixed order: batch, aggregation,
// policy, key update, manual input. The first failure stops the sequence.
func (s *Session) SetMode(change ModeChange) (channel.Outcome, Snapshot, error) {
	return s.mutate(func(e *channel.Editor) (channel.Outcome, error) {
		var last channel.Outcome
		steps := make([]func() (channel.Outcome, error), 0, 5)
		if change.Batch != nil {
			steps = append(steps, func() (channel.Outcome, error) { return e.SetBatch(*change.Batch) })
		}
		if change.Aggregation != nil {
			steps = append(steps, func() (channel.Outcome, error) { return e.SetAggregation(*change.Aggregation) })
		}
		if change.Policy != nil {
			steps = append(steps, func() (channel.Outcome, error) { return e.SetMultiKeyPolicy(*change.Policy) })
		}
		if change.KeyUpdate != nil {
			steps = append(steps, func() (channel.Outcome, error) { return e.SetKeyUpdateMode(*change.KeyUpdate) })
		}
		if change.ManualInput != nil {
			steps = append(steps, func() (channel.Outcome, error) { return e.SetManualKeyInput(*change.ManualInput) })
		}
		for _, step := range steps {
			outcome, err := step()
			if err != nil {
				return channel.Outcome{}, err
			}
			last = outcome
			if outcome.ConfirmationRequired {
				break
			}
		}
		return last, nil
	})
}

// Confirm applies the parked change.
func (s *Session) Confirm() (Snapshot, error) {
	_, snap, err := s.mutate(func(e *channel.Editor) (channel.Outcome, error) {
		return e.Confirm()
	})
	return snap, err
}

// Cancel discards the parked change.
func (s *Session) Cancel() (Snapshot, error) {
	_, snap, err := s.mutate(func(e *channel.Editor) (channel.Outcome, error) {
		return channel.Outcome{}, e.Cancel()
	})
	return snap, err
}

// begin registers an async request of kind and returns its ticket. A later
// begin of the same kind supersedes earlier tickets.
func (s *Session) begin(kind asyncKind) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, ErrSessionClosed
	}
	s.touch()
	s.tickets[kind]++
	return s.tickets[kind], nil
}

// current reports whether ticket is still the live request of kind. Caller holds mu.
func (s *Session) current(kind asyncKind, ticket uint64) bool {
	return !s.closed && s.tickets[kind] == ticket
}

// requestContext derives a context cancelled by either the request or the session.
func (s *Session) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	merged, cancel := context.WithCancel(s.ctx)
	if ctx == nil {
		return merged, cancel
	}
	stop := context.AfterFunc(ctx, cancel)
	return merged, func() {
		stop()
		cancel()
	}
}

// AddKeyFiles parses credential files and keeps the valid ones.
func (s *Session) AddKeyFiles(ctx context.Context, files []channel.KeyFile) (channel.KeyFileReport, Snapshot, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return channel.KeyFileReport{}, Snapshot{}, ErrSessionClosed
	}
	if s.editor.Mode().Entry != channel.KeyEntryFiles {
		s.mu.Unlock()
		return channel.KeyFileReport{}, Snapshot{}, channel.ErrKeyFilesNotAccepted
	}
	s.mu.Unlock()

	ticket, err := s.begin(asyncKeyFiles)
	if err != nil {
		return channel.KeyFileReport{}, Snapshot{}, err
	}
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()
	parsed, report, err := channel.ParseKeyFiles(reqCtx, files)
	if err != nil {
		return channel.KeyFileReport{}, Snapshot{}, s.discardIfStale(asyncKeyFiles, ticket, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(asyncKeyFiles, ticket) {
		return channel.KeyFileReport{}, Snapshot{}, ErrSessionClosed
	}
	if s.editor.Mode().Entry != channel.KeyEntryFiles {
		return channel.KeyFileReport{}, Snapshot{}, channel.ErrKeyFilesNotAccepted
	}
	s.editor.ApplyKeyFiles(parsed)
	return report, s.snapshotLocked(), nil
}

// FetchUpstreamModels asks the gateway for the models the channel's
// credentials can reach. Stored channels are queried by id; unsaved ones
// need a key.
func (s *Session) FetchUpstreamModels(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSessionClosed
	}
	draft := s.editor.Draft()
	s.mu.Unlock()

	if s.channelID == nil && !draft.HasKey() {
		return nil, ErrKeyRequired
	}
	ticket, err := s.begin(asyncFetchModels)
	if err != nil {
		return nil, err
	}
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	var fetched []string
	if s.channelID != nil {
		fetched, err = s.upstream.FetchChannelModels(reqCtx, *s.channelID)
	} else {
		fetched, err = s.upstream.FetchModels(reqCtx, newapi.FetchModelsRequest{
			BaseURL: draft.BaseURL,
			Type:    draft.Type,
			Key:     draft.Key,
		})
	}
	if err != nil {
		if errStale := s.discardIfStale(asyncFetchModels, ticket, err); errors.Is(errStale, ErrSessionClosed) {
			return nil, errStale
		}
		log.WithError(err).WithField("session", s.id).Warn("session: fetch upstream models failed")
		return nil, fmt.Errorf("%w: %w", ErrFetchModels, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(asyncFetchModels, ticket) {
		return nil, ErrSessionClosed
	}
	s.fetched = channel.NormalizeList(fetched)
	return append([]string(nil), s.fetched...), nil
}

// RevealKey retrieves the stored key of the channel. The code is checked by
// the gateway; a failure leaves the session open for another attempt.
func (s *Session) RevealKey(ctx context.Context, code string) (string, error) {
	if s.channelID == nil {
		return "", ErrNotStored
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return "", ErrCodeRequired
	}
	ticket, err := s.begin(asyncReveal)
	if err != nil {
		return "", err
	}
	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	key, err := s.upstream.RevealKey(reqCtx, *s.channelID, code)
	if err != nil {
		return "", s.discardIfStale(asyncReveal, ticket, err)
	}

	s.mu.Lock()
	stale := !s.current(asyncReveal, ticket)
	s.mu.Unlock()
	if stale {
		return "", ErrSessionClosed
	}
	s.record(ctx, models.ChannelActionKeyReveal, map[string]any{"channel_id": *s.channelID}, "")
	return key, nil
}

// Submit validates the draft, sends exactly one create or update request,
// and closes the session on success. Failures keep the session and draft.
func (s *Session) Submit(ctx context.Context) (SubmitResult, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return SubmitResult{}, ErrSessionClosed
	}
	if s.submitting {
		s.mu.Unlock()
		return SubmitResult{}, ErrSubmitInProgress
	}
	s.touch()
	sub, err := s.editor.Submission()
	draft := s.editor.Draft()
	mode := s.editor.Mode()
	if err != nil {
		s.mu.Unlock()
		return SubmitResult{}, err
	}
	s.submitting = true
	s.tickets[asyncSubmit]++
	ticket := s.tickets[asyncSubmit]
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.submitting = false
		s.mu.Unlock()
	}()

	reqCtx, cancel := s.requestContext(ctx)
	defer cancel()

	message, err := s.upstream.SubmitChannel(reqCtx, sub.Method, sub.Path, sub.Body)
	if err != nil {
		return SubmitResult{}, s.discardIfStale(asyncSubmit, ticket, err)
	}

	s.mu.Lock()
	stale := !s.current(asyncSubmit, ticket)
	s.mu.Unlock()
	if stale {
		return SubmitResult{}, ErrSessionClosed
	}

	action := models.ChannelActionUpdate
	if sub.Method == http.MethodPost {
		action = models.ChannelActionCreate
	}
	s.record(ctx, action, submitSummary(sub, draft, mode), message)
	s.close()
	return SubmitResult{Method: sub.Method, Path: sub.Path, Message: message}, nil
}

// discardIfStale maps err to ErrSessionClosed when the request was superseded.
func (s *Session) discardIfStale(kind asyncKind, ticket uint64, err error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.current(kind, ticket) {
		return ErrSessionClosed
	}
	return err
}

// close cancels in-flight requests and releases the session from its manager.
func (s *Session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.mu.Unlock()
	s.cancel()
	if s.release != nil {
		s.release(s)
	}
}

func (s *Session) record(ctx context.Context, action string, summary map[string]any, message string) {
	if s.audit == nil {
		return
	}
	payload, errEncode := models.EncodeChangeSummary(summary)
	if errEncode != nil {
		log.WithError(errEncode).Warn("session: marshal audit summary")
	}
	change := &models.ChannelChange{
		AdminID:   s.adminID,
		Action:    action,
		ChannelID: s.channelID,
		Summary:   payload,
		Message:   message,
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if errRecord := s.audit.Record(context.WithoutCancel(ctx), change); errRecord != nil {
		log.WithError(errRecord).WithField("session", s.id).Warn("session: record channel change")
	}
}

// submitSummary describes a submission without any key material.
func submitSummary(sub channel.Submission, d channel.Draft, mode channel.Mode) map[string]any {
	summary := map[string]any{
		"method": sub.Method,
		"type":   d.Type,
		"name":   d.Name,
		"models": len(channel.NormalizeList(d.Models)),
		"groups": channel.JoinList(d.Groups),
	}
	if sub.Method == http.MethodPost {
		summary["mode"] = mode.WireMode()
	} else if d.MultiKey.IsMulti {
		summary["key_mode"] = string(mode.KeyUpdate)
	}
	if d.Tag != "" {
		summary["tag"] = d.Tag
	}
	return summary
}
