// Package session hosts channel editor sessions. Each session owns one
// channel.Editor and a context that bounds every upstream call it starts.
package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	internalsettings "github.com/router-for-me/ChannelConsole/internal/settings"
)

// Upstream is the part of the gateway admin API a session uses.
type Upstream interface {
	GetChannel(ctx context.Context, id int) (json.RawMessage, error)
	ListModels(ctx context.Context) ([]string, error)
	ListGroups(ctx context.Context) ([]string, error)
	ListPrefillGroups(ctx context.Context, kind string) ([]newapi.PrefillGroup, error)
	FetchModels(ctx context.Context, req newapi.FetchModelsRequest) ([]string, error)
	FetchChannelModels(ctx context.Context, id int) ([]string, error)
	SubmitChannel(ctx context.Context, method, path string, body map[string]any) (string, error)
	RevealKey(ctx context.Context, id int, code string) (string, error)
}

// Auditor records successful changes.
type Auditor interface {
	Record(ctx context.Context, change *models.ChannelChange) error
}

// Options wires a Manager.
type Options struct {
	Upstream Upstream
	Catalog  channel.ModelCatalog
	Audit    Auditor

	// SharedCache reports whether the cache backend is redis. Nil means no.
	SharedCache func(ctx context.Context) bool
	// TTL returns the idle lifetime of a session. Nil reads EDITOR_SESSION_TTL_SECONDS.
	TTL func() time.Duration
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL == nil {
		o.TTL = settingsTTL
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.SharedCache == nil {
		o.SharedCache = func(context.Context) bool { return false }
	}
	return o
}

func settingsTTL() time.Duration {
	seconds := internalsettings.IntValue(
		internalsettings.EditorSessionTTLSecondsKey,
		internalsettings.DefaultEditorSessionTTLSeconds,
	)
	if seconds <= 0 {
		seconds = internalsettings.DefaultEditorSessionTTLSeconds
	}
	return time.Duration(seconds) * time.Second
}
