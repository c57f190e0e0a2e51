// Package multikey pages through and manages the keys of an aggregated channel.
package multikey

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultPage     = 1
	DefaultPageSize = 10
	maxPageSize     = 100
)

// Key status values, also used as the status filter.
const (
	StatusEnabled        = 1
	StatusManualDisabled = 2
	StatusAutoDisabled   = 3
)

var ErrInvalidStatus = errors.New("multikey: status filter must be 1, 2 or 3")

// Upstream is the multi-key part of the gateway admin API.
type Upstream interface {
	KeyStatus(ctx context.Context, req newapi.MultiKeyRequest) (newapi.KeyStatusPage, error)
	ManageMultiKey(ctx context.Context, req newapi.MultiKeyRequest) (string, error)
}

// Auditor records successful key actions.
type Auditor interface {
	Record(ctx context.Context, change *models.ChannelChange) error
}

// Query selects a page of keys.
type Query struct {
	Page     int  `json:"page"`
	PageSize int  `json:"page_size"`
	Status   *int `json:"status,omitempty"`
}

// Normalize fills defaults and clamps the page size.
func (q Query) Normalize() (Query, error) {
	if q.Page < 1 {
		q.Page = DefaultPage
	}
	if q.PageSize < 1 {
		q.PageSize = DefaultPageSize
	}
	if q.PageSize > maxPageSize {
		q.PageSize = maxPageSize
	}
	if q.Status != nil {
		switch *q.Status {
		case StatusEnabled, StatusManualDisabled, StatusAutoDisabled:
		default:
			return q, ErrInvalidStatus
		}
	}
	return q, nil
}

// Percentages are whole-number shares of the key total.
type Percentages struct {
	Enabled        int `json:"enabled"`
	ManualDisabled int `json:"manual_disabled"`
	AutoDisabled   int `json:"auto_disabled"`
}

// View is the state rendered for one channel.
type View struct {
	ChannelID  int                `json:"channel_id"`
	Query      Query              `json:"query"`
	Keys       []newapi.KeyStatus `json:"keys"`
	Total      int                `json:"total"`
	TotalPages int                `json:"total_pages"`

	EnabledCount        int         `json:"enabled_count"`
	ManualDisabledCount int         `json:"manual_disabled_count"`
	AutoDisabledCount   int         `json:"auto_disabled_count"`
	Percent             Percentages `json:"percent"`

	// Message is the server text of the last action, empty after a plain load.
	Message string `json:"message,omitempty"`
}

func percent(count, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(count) / float64(total) * 100))
}

func newView(channelID int, q Query, page newapi.KeyStatusPage) View {
	v := View{
		ChannelID:           channelID,
		Query:               q,
		Keys:                page.Keys,
		Total:               page.Total,
		TotalPages:          page.TotalPages,
		EnabledCount:        page.EnabledCount,
		ManualDisabledCount: page.ManualDisabledCount,
		AutoDisabledCount:   page.AutoDisabledCount,
	}
	if page.Page > 0 {
		v.Query.Page = page.Page
	}
	if page.PageSize > 0 {
		v.Query.PageSize = page.PageSize
	}
	v.Percent = Percentages{
		Enabled:        percent(page.EnabledCount, page.Total),
		ManualDisabled: percent(page.ManualDisabledCount, page.Total),
		AutoDisabled:   percent(page.AutoDisabledCount, page.Total),
	}
	return v
}

// Panel holds the paging state of one channel's key list. Actions reload
// the list after the upstream accepts them.
type Panel struct {
	upstream  Upstream
	audit     Auditor
	adminID   uint64
	channelID int

	mu    sync.Mutex
	query Query
	view  View
}

// NewPanel returns a panel positioned on q.
func NewPanel(upstream Upstream, audit Auditor, adminID uint64, channelID int, q Query) (*Panel, error) {
	if upstream == nil {
		return nil, fmt.Errorf("multikey: no upstream configured")
	}
	normalized, err := q.Normalize()
	if err != nil {
		return nil, err
	}
	return &Panel{
		upstream:  upstream,
		audit:     audit,
		adminID:   adminID,
		channelID: channelID,
		query:     normalized,
	}, nil
}

// Query returns the current paging state.
func (p *Panel) Query() Query {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.query
}

// Load fetches the page selected by the current query.
func (p *Panel) Load(ctx context.Context) (View, error) {
	p.mu.Lock()
	q := p.query
	p.mu.Unlock()

	page, err := p.upstream.KeyStatus(ctx, newapi.MultiKeyRequest{
		ChannelID: p.channelID,
		Page:      q.Page,
		PageSize:  q.PageSize,
		Status:    q.Status,
	})
	if err != nil {
		return View{}, err
	}
	view := newView(p.channelID, q, page)

	p.mu.Lock()
	p.query = view.Query
	p.view = view
	p.mu.Unlock()
	return view, nil
}

// SetStatusFilter changes the filter and reloads from page 1. Nil clears it.
func (p *Panel) SetStatusFilter(ctx context.Context, status *int) (View, error) {
	p.mu.Lock()
	q := p.query
	q.Status = status
	q.Page = DefaultPage
	normalized, err := q.Normalize()
	if err == nil {
		p.query = normalized
	}
	p.mu.Unlock()
	if err != nil {
		return View{}, err
	}
	return p.Load(ctx)
}

// SetPageSize changes the page size and reloads from page 1.
func (p *Panel) SetPageSize(ctx context.Context, size int) (View, error) {
	p.mu.Lock()
	p.query.PageSize = size
	p.query.Page = DefaultPage
	p.query, _ = p.query.Normalize()
	p.mu.Unlock()
	return p.Load(ctx)
}

// SetPage moves to page and reloads.
func (p *Panel) SetPage(ctx context.Context, page int) (View, error) {
	p.mu.Lock()
	p.query.Page = page
	p.query, _ = p.query.Normalize()
	p.mu.Unlock()
	return p.Load(ctx)
}

// EnableKey enables one key and reloads the current page.
func (p *Panel) EnableKey(ctx context.Context, index int) (View, error) {
	return p.keyAction(ctx, newapi.ActionEnableKey, index)
}

// DisableKey disables one key and reloads the current page.
func (p *Panel) DisableKey(ctx context.Context, index int) (View, error) {
	return p.keyAction(ctx, newapi.ActionDisableKey, index)
}

// DeleteKey removes one key and reloads the current page.
func (p *Panel) DeleteKey(ctx context.Context, index int) (View, error) {
	return p.keyAction(ctx, newapi.ActionDeleteKey, index)
}

// EnableAll enables every key and reloads from page 1.
func (p *Panel) EnableAll(ctx context.Context) (View, error) {
	return p.bulkAction(ctx, newapi.ActionEnableAllKeys)
}

// DisableAll disables every key and reloads from page 1.
func (p *Panel) DisableAll(ctx context.Context) (View, error) {
	return p.bulkAction(ctx, newapi.ActionDisableAllKeys)
}

// DeleteDisabled removes every disabled key and reloads from page 1.
func (p *Panel) DeleteDisabled(ctx context.Context) (View, error) {
	return p.bulkAction(ctx, newapi.ActionDeleteDisabledKeys)
}

func (p *Panel) keyAction(ctx context.Context, action string, index int) (View, error) {
	if index < 0 {
		return View{}, fmt.Errorf("multikey: invalid key index %d", index)
	}
	message, err := p.upstream.ManageMultiKey(ctx, newapi.MultiKeyRequest{
		ChannelID: p.channelID,
		Action:    action,
		KeyIndex:  &index,
	})
	if err != nil {
		return View{}, err
	}
	p.record(ctx, action, &index, message)
	return p.reload(ctx, message)
}

func (p *Panel) bulkAction(ctx context.Context, action string) (View, error) {
	message, err := p.upstream.ManageMultiKey(ctx, newapi.MultiKeyRequest{
		ChannelID: p.channelID,
		Action:    action,
	})
	if err != nil {
		return View{}, err
	}
	p.record(ctx, action, nil, message)

	p.mu.Lock()
	p.query.Page = DefaultPage
	p.mu.Unlock()
	return p.reload(ctx, message)
}

func (p *Panel) reload(ctx context.Context, message string) (View, error) {
	view, err := p.Load(ctx)
	if err != nil {
		return View{}, err
	}
	view.Message = message
	return view, nil
}

func (p *Panel) record(ctx context.Context, action string, index *int, message string) {
	if p.audit == nil {
		return
	}
	summary := map[string]any{"action": action}
	if index != nil {
		summary["key_index"] = *index
	}
	payload, errEncode := models.EncodeChangeSummary(summary)
	if errEncode != nil {
		log.WithError(errEncode).Warn("multikey: marshal audit summary")
	}
	channelID := p.channelID
	change := &models.ChannelChange{
		AdminID:   p.adminID,
		Action:    models.ChannelActionKeyManage,
		ChannelID: &channelID,
		Summary:   payload,
		Message:   message,
	}
	if errRecord := p.audit.Record(context.WithoutCancel(ctx), change); errRecord != nil {
		log.WithError(errRecord).WithField("channel", p.channelID).Warn("multikey: record key action")
	}
}
