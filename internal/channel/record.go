package channel

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"

	"github.com/tidwall/gjson"
)

// ErrInvalidRecord is returned when a channel record is not a JSON object.
var ErrInvalidRecord = errors.New("channel: record is not a JSON object")

// managedRecordKeys are rebuilt from the draft on submit and never passed
// through. key is listed so a stored secret is never hydrated.
var managedRecordKeys = map[string]struct{}{
	"id": {}, "type": {}, "name": {}, "base_url": {}, "key": {}, "other": {},
	"openai_organization": {}, "test_model": {}, "tag": {}, "remark": {},
	"models": {}, "group": {}, "model_mapping": {}, "status_code_mapping": {},
	"param_override": {}, "header_override": {}, "priority": {}, "weight": {},
	"auto_ban": {}, "setting": {}, "settings": {}, "key_mode": {}, "multi_key_mode": {},
}

// FromRecord hydrates a draft from the `data` object of GET /api/channel/{id}.
func FromRecord(data []byte) (Draft, error) {
	if !gjson.ValidBytes(data) {
		return Draft{}, ErrInvalidRecord
	}
	rec := gjson.ParseBytes(data)
	if !rec.IsObject() {
		return Draft{}, ErrInvalidRecord
	}

	d := Draft{
		ID:                 int(rec.Get("id").Int()),
		Type:               int(rec.Get("type").Int()),
		Name:               rec.Get("name").String(),
		BaseURL:            rec.Get("base_url").String(),
		Other:              rec.Get("other").String(),
		OpenAIOrganization: rec.Get("openai_organization").String(),
		TestModel:          rec.Get("test_model").String(),
		Tag:                rec.Get("tag").String(),
		Remark:             rec.Get("remark").String(),
		Models:             SplitList(rec.Get("models").String()),
		Groups:             SplitList(rec.Get("group").String()),
		ModelMapping:       indentJSON(rec.Get("model_mapping").String()),
		StatusCodeMapping:  rec.Get("status_code_mapping").String(),
		ParamOverride:      rec.Get("param_override").String(),
		HeaderOverride:     rec.Get("header_override").String(),
		Priority:           rec.Get("priority").Int(),
		Weight:             rec.Get("weight").Int(),
		AutoBan:            autoBanValue(rec.Get("auto_ban")),
	}
	d.Extra, d.Settings = DecodeSettings(rec.Get("setting").String(), rec.Get("settings").String())

	info := rec.Get("channel_info")
	d.MultiKey.IsMulti = info.Get("is_multi_key").Type == gjson.True
	d.MultiKey.Policy = PolicyRandom
	if MultiKeyPolicy(info.Get("multi_key_mode").String()) == PolicyPolling {
		d.MultiKey.Policy = PolicyPolling
	}

	rec.ForEach(func(k, v gjson.Result) bool {
		name := k.String()
		if _, managed := managedRecordKeys[name]; managed {
			return true
		}
		if d.passthrough == nil {
			d.passthrough = make(map[string]any)
		}
		d.passthrough[name] = json.RawMessage(v.Raw)
		return true
	})
	return d, nil
}

// autoBanValue treats a missing value as enabled, matching the create default.
func autoBanValue(v gjson.Result) bool {
	switch v.Type {
	case gjson.Null:
		return true
	case gjson.False:
		return false
	case gjson.True:
		return true
	default:
		return v.Int() != 0
	}
}

// indentJSON re-indents valid JSON with two spaces and returns anything else
// unchanged.
func indentJSON(raw string) string {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return raw
	}
	var buf bytes.Buffer
	if errIndent := json.Indent(&buf, []byte(trimmed), "", "  "); errIndent != nil {
		return raw
	}
	return buf.String()
}
