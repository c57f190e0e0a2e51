package tagedit_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/router-for-me/ChannelConsole/internal/channel"
	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/router-for-me/ChannelConsole/internal/newapi"
	"github.com/router-for-me/ChannelConsole/internal/newapi/newapitest"
	"github.com/router-for-me/ChannelConsole/internal/tagedit"
)

type auditLog struct {
	mu      sync.Mutex
	changes []models.ChannelChange
}

func (a *auditLog) Record(_ context.Context, change *models.ChannelChange) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.changes = append(a.changes, *change)
	return nil
}

func newService(t *testing.T) (*tagedit.Service, *newapitest.Server, *auditLog) {
	t.Helper()
	srv := newapitest.New()
	t.Cleanup(srv.Close)
	srv.Reply(http.MethodGet, "/api/channel/models", newapitest.OK([]map[string]any{{"id": "gpt-4o"}}))
	srv.Reply(http.MethodGet, "/api/group/", newapitest.OK([]string{"default", "vip"}))
	client := newapi.New(newapi.Options{BaseURL: srv.URL, AccessToken: "tok", UserID: "1"})
	audit := &auditLog{}
	return tagedit.NewService(client, audit), srv, audit
}

func strPtr(s string) *string { return &s }

func TestOpenLoadsTagModels(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.Reply(http.MethodGet, "/api/channel/tag/models", newapitest.OK("gpt-4o,claude-3,,claude-3"))

	loaded, err := svc.Open(context.Background(), "team-a")
	require.NoError(t, err)
	assert.Equal(t, "team-a", loaded.Form.Tag)
	require.NotNil(t, loaded.Form.NewTag)
	assert.Equal(t, "team-a", *loaded.Form.NewTag)
	assert.Equal(t, []string{"gpt-4o", "claude-3"}, loaded.Form.Models)
	assert.Equal(t, []string{"gpt-4o", "claude-3"}, loaded.Models)
	assert.Equal(t, []string{"default", "vip"}, loaded.Groups)

	reqs := srv.Requests()
	found := false
	for _, r := range reqs {
		if r.Path == "/api/channel/tag/models" {
			found = true
			assert.Equal(t, "tag=team-a", r.Query)
		}
	}
	assert.True(t, found)
}

func TestOpenEmptyTagModels(t *testing.T) {
	svc, srv, _ := newService(t)
	srv.Reply(http.MethodGet, "/api/channel/tag/models", newapitest.OK(nil))

	loaded, err := svc.Open(context.Background(), "empty")
	require.NoError(t, err)
	assert.Empty(t, loaded.Form.Models)
}

func TestBuild(t *testing.T) {
	_, err := tagedit.Build(tagedit.Form{Tag: "a"})
	assert.ErrorIs(t, err, tagedit.ErrNoChanges)

	_, err = tagedit.Build(tagedit.Form{Tag: " "})
	assert.ErrorIs(t, err, tagedit.ErrTagMissing)

	_, err = tagedit.Build(tagedit.Form{Tag: "a", ModelMapping: "{bad"})
	var verr *channel.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Equal(t, channel.FieldModelMapping, verr.Field)

	body, err := tagedit.Build(tagedit.Form{
		Tag:          "a",
		NewTag:       strPtr(""),
		ModelMapping: "{}",
		Groups:       []string{"vip", "vip"},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{
		"tag":           "a",
		"new_tag":       "",
		"model_mapping": "{}",
		"groups":        "vip",
	}, body)
}

func TestSubmitRecordsAudit(t *testing.T) {
	svc, srv, audit := newService(t)
	srv.Reply(http.MethodPut, "/api/channel/tag", newapitest.OK(nil))

	err := svc.Submit(context.Background(), 3, tagedit.Form{Tag: "a", Models: []string{"m1", "m2"}, ModelMapping: `{"x":"y"}`})
	require.NoError(t, err)

	reqs := srv.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, "m1,m2", reqs[0].Body["models"])
	_, hasGroups := reqs[0].Body["groups"]
	assert.False(t, hasGroups)

	require.Len(t, audit.changes, 1)
	assert.Equal(t, models.ChannelActionTagUpdate, audit.changes[0].Action)
	assert.Equal(t, "a", audit.changes[0].Tag)
	assert.NotContains(t, string(audit.changes[0].Summary), `"x"`)
}

func TestSubmitNoChangesSendsNothing(t *testing.T) {
	svc, srv, audit := newService(t)

	err := svc.Submit(context.Background(), 3, tagedit.Form{Tag: "a"})
	assert.ErrorIs(t, err, tagedit.ErrNoChanges)
	assert.Empty(t, srv.Requests())
	assert.Empty(t, audit.changes)
}

func TestAddCustomModels(t *testing.T) {
	list, added := tagedit.AddCustomModels([]string{"a"}, " b, a ,c,,b")
	assert.Equal(t, []string{"a", "b", "c"}, list)
	assert.Equal(t, []string{"b", "c"}, added)

	_, added = tagedit.AddCustomModels([]string{"a"}, "a")
	assert.Empty(t, added)
}
