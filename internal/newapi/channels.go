package newapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
)

// Multi-key manage actions.
const (
	ActionGetKeyStatus       = "get_key_status"
	ActionEnableKey          = "enable_key"
	ActionDisableKey         = "disable_key"
	ActionDeleteKey          = "delete_key"
	ActionEnableAllKeys      = "enable_all_keys"
	ActionDisableAllKeys     = "disable_all_keys"
	ActionDeleteDisabledKeys = "delete_disabled_keys"
)

// GetChannel returns the raw channel record.
func (c *Client) GetChannel(ctx context.Context, id int) (json.RawMessage, error) {
	return c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/channel/%d", id), nil, nil)
}

// SubmitChannel sends a prepared create or update request and returns the
// server message.
func (c *Client) SubmitChannel(ctx context.Context, method, path string, body map[string]any) (string, error) {
	switch method {
	case http.MethodPost, http.MethodPut:
	default:
		return "", fmt.Errorf("newapi: unsupported channel method %s", method)
	}
	env, err := c.call(ctx, method, path, nil, body)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// ListModels returns the ids of every model the gateway knows.
func (c *Client) ListModels(ctx context.Context) ([]string, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/channel/models", nil, nil)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0)
	gjson.ParseBytes(data).ForEach(func(_, item gjson.Result) bool {
		if id := strings.TrimSpace(item.Get("id").String()); id != "" {
			out = append(out, id)
		}
		return true
	})
	return out, nil
}

// ListGroups returns the user groups.
func (c *Client) ListGroups(ctx context.Context) ([]string, error) {
	data, err := c.Do(ctx, http.MethodGet, "/api/group/", nil, nil)
	if err != nil {
		return nil, err
	}
	var groups []string
	if errDecode := decodeData(data, &groups, "groups"); errDecode != nil {
		return nil, errDecode
	}
	if groups == nil {
		groups = []string{}
	}
	return groups, nil
}

// PrefillGroup is a named, reusable list of models.
type PrefillGroup struct {
	ID          int             `json:"id"`
	Name        string          `json:"name"`
	Type        string          `json:"type"`
	Description string          `json:"description,omitempty"`
	Items       json.RawMessage `json:"items"`
}

// ListPrefillGroups returns prefill groups of kind (for example "model").
func (c *Client) ListPrefillGroups(ctx context.Context, kind string) ([]PrefillGroup, error) {
	query := url.Values{}
	query.Set("type", kind)
	data, err := c.Do(ctx, http.MethodGet, "/api/prefill_group", query, nil)
	if err != nil {
		return nil, err
	}
	var groups []PrefillGroup
	if errDecode := decodeData(data, &groups, "prefill groups"); errDecode != nil {
		return nil, errDecode
	}
	if groups == nil {
		groups = []PrefillGroup{}
	}
	return groups, nil
}

// FetchModelsRequest asks the gateway to list models from an upstream it has
// not stored yet.
type FetchModelsRequest struct {
	BaseURL string `json:"base_url"`
	Type    int    `json:"type"`
	Key     string `json:"key"`
}

// FetchModels proxies model discovery for unsaved credentials.
func (c *Client) FetchModels(ctx context.Context, req FetchModelsRequest) ([]string, error) {
	data, err := c.Do(ctx, http.MethodPost, "/api/channel/fetch_models", nil, req)
	if err != nil {
		return nil, err
	}
	return decodeModelIDs(data)
}

// FetchChannelModels proxies model discovery for a stored channel.
func (c *Client) FetchChannelModels(ctx context.Context, id int) ([]string, error) {
	data, err := c.Do(ctx, http.MethodGet, fmt.Sprintf("/api/channel/fetch_models/%d", id), nil, nil)
	if err != nil {
		return nil, err
	}
	return decodeModelIDs(data)
}

func decodeModelIDs(data json.RawMessage) ([]string, error) {
	var ids []string
	if err := decodeData(data, &ids, "model list"); err != nil {
		return nil, err
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// TagModels returns the models of the longest model list under tag.
func (c *Client) TagModels(ctx context.Context, tag string) (string, error) {
	query := url.Values{}
	query.Set("tag", tag)
	data, err := c.Do(ctx, http.MethodGet, "/api/channel/tag/models", query, nil)
	if err != nil {
		return "", err
	}
	return gjson.ParseBytes(data).String(), nil
}

// UpdateTag applies a tag-scoped bulk edit. Body keys left out are unchanged.
func (c *Client) UpdateTag(ctx context.Context, body map[string]any) error {
	_, err := c.Do(ctx, http.MethodPut, "/api/channel/tag", nil, body)
	return err
}

// MultiKeyRequest is the body of POST /api/channel/multi_key/manage.
type MultiKeyRequest struct {
	ChannelID int    `json:"channel_id"`
	Action    string `json:"action"`
	KeyIndex  *int   `json:"key_index,omitempty"`
	Page      int    `json:"page,omitempty"`
	PageSize  int    `json:"page_size,omitempty"`
	Status    *int   `json:"status,omitempty"`
}

// KeyStatus is one key of a multi-key channel.
type KeyStatus struct {
	Index          int    `json:"index"`
	Status         int    `json:"status"`
	DisabledReason string `json:"disabled_reason,omitempty"`
	DisabledTime   int64  `json:"disabled_time,omitempty"`
	KeyPreview     string `json:"key_preview,omitempty"`
}

// KeyStatusPage is the get_key_status result.
type KeyStatusPage struct {
	Keys                []KeyStatus `json:"keys"`
	Total               int         `json:"total"`
	Page                int         `json:"page"`
	PageSize            int         `json:"page_size"`
	TotalPages          int         `json:"total_pages"`
	EnabledCount        int         `json:"enabled_count"`
	ManualDisabledCount int         `json:"manual_disabled_count"`
	AutoDisabledCount   int         `json:"auto_disabled_count"`
}

// ManageMultiKey runs a key action and returns the server message.
func (c *Client) ManageMultiKey(ctx context.Context, req MultiKeyRequest) (string, error) {
	env, err := c.call(ctx, http.MethodPost, "/api/channel/multi_key/manage", nil, req)
	if err != nil {
		return "", err
	}
	return env.Message, nil
}

// KeyStatus loads one page of key status.
func (c *Client) KeyStatus(ctx context.Context, req MultiKeyRequest) (KeyStatusPage, error) {
	req.Action = ActionGetKeyStatus
	data, err := c.Do(ctx, http.MethodPost, "/api/channel/multi_key/manage", nil, req)
	if err != nil {
		return KeyStatusPage{}, err
	}
	var page KeyStatusPage
	if errDecode := decodeData(data, &page, "key status"); errDecode != nil {
		return KeyStatusPage{}, errDecode
	}
	if page.Keys == nil {
		page.Keys = []KeyStatus{}
	}
	return page, nil
}

// RevealKey returns the stored secret of a channel after 2FA verification.
func (c *Client) RevealKey(ctx context.Context, id int, code string) (string, error) {
	data, err := c.Do(ctx, http.MethodPost, fmt.Sprintf("/api/channel/%d/key", id), nil, map[string]string{"code": code})
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(data, "key").String(), nil
}
