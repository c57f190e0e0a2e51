package channel

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// Wire keys of the `settings` blob.
const (
	settingsKeyAzureResponsesVersion = "azure_responses_version"
	settingsKeyVertexKeyType         = "vertex_key_type"
	settingsKeyOpenRouterEnterprise  = "openrouter_enterprise"
	settingsKeyRegion                = "region"
)

// extraSettingKeys are owned by the `setting` blob and never written to `settings`.
var extraSettingKeys = []string{
	"force_format",
	"thinking_to_content",
	"proxy",
	"pass_through_body_enabled",
	"system_prompt",
	"system_prompt_override",
}

var otherSettingKeys = []string{
	settingsKeyAzureResponsesVersion,
	settingsKeyVertexKeyType,
	settingsKeyOpenRouterEnterprise,
	settingsKeyRegion,
}

var errInvalidBlob = errors.New("blob is not a JSON object")

// DecodeSettings unpacks both blobs. Each blob falls back to its defaults on
// a parse failure without affecting the other one.
func DecodeSettings(setting, settings string) (ExtraSettings, OtherSettings) {
	return DecodeExtraSettings(setting), DecodeOtherSettings(settings)
}

// DecodeExtraSettings parses the `setting` blob.
func DecodeExtraSettings(raw string) ExtraSettings {
	var out ExtraSettings
	parsed, ok := parseBlob("setting", raw)
	if !ok {
		return out
	}
	out.ForceFormat = parsed.Get("force_format").Bool()
	out.ThinkingToContent = parsed.Get("thinking_to_content").Bool()
	out.Proxy = parsed.Get("proxy").String()
	out.PassThroughBodyEnabled = parsed.Get("pass_through_body_enabled").Bool()
	out.SystemPrompt = parsed.Get("system_prompt").String()
	out.SystemPromptOverride = parsed.Get("system_prompt_override").Bool()
	return out
}

// DecodeOtherSettings parses the `settings` blob and keeps unmanaged keys
// for the next encode.
func DecodeOtherSettings(raw string) OtherSettings {
	out := DefaultOtherSettings()
	parsed, ok := parseBlob("settings", raw)
	if !ok {
		return out
	}
	out.AzureResponsesVersion = parsed.Get(settingsKeyAzureResponsesVersion).String()
	if v := parsed.Get(settingsKeyVertexKeyType).String(); v != "" {
		out.VertexKeyType = normalizeVertexKeyType(VertexKeyType(v))
	}
	enterprise := parsed.Get(settingsKeyOpenRouterEnterprise)
	out.IsEnterpriseAccount = enterprise.Type == gjson.True
	out.enterpriseStored = enterprise.Exists()
	out.Region = parsed.Get(settingsKeyRegion).String()

	unknown := parsed.Raw
	for _, key := range append(append([]string{}, otherSettingKeys...), extraSettingKeys...) {
		next, errDelete := sjson.Delete(unknown, key)
		if errDelete != nil {
			log.WithError(errDelete).Warn("channel settings: drop managed key failed")
			return out
		}
		unknown = next
	}
	unknown = gjson.Get(unknown, "@ugly").Raw
	if unknown == "{}" {
		unknown = ""
	}
	out.unknown = unknown
	return out
}

// parseBlob validates a blob. Empty input yields defaults silently.
func parseBlob(name, raw string) (gjson.Result, bool) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return gjson.Result{}, false
	}
	if !gjson.Valid(trimmed) {
		log.WithError(errInvalidBlob).WithField("blob", name).Warn("channel settings: invalid JSON, using defaults")
		return gjson.Result{}, false
	}
	parsed := gjson.Parse(trimmed)
	if !parsed.IsObject() {
		log.WithError(errInvalidBlob).WithField("blob", name).Warn("channel settings: not an object, using defaults")
		return gjson.Result{}, false
	}
	return parsed, true
}

// EncodeSettings renders both blobs for a channel of type typ. Every field is
// present except openrouter_enterprise, which see EncodeOtherSettings.
func EncodeSettings(extra ExtraSettings, other OtherSettings, typ int) (string, string, error) {
	setting, errSetting := EncodeExtraSettings(extra)
	if errSetting != nil {
		return "", "", errSetting
	}
	settings, errSettings := EncodeOtherSettings(other, typ)
	if errSettings != nil {
		return "", "", errSettings
	}
	return setting, settings, nil
}

// EncodeExtraSettings renders the `setting` blob from scratch.
func EncodeExtraSettings(extra ExtraSettings) (string, error) {
	data, errMarshal := json.Marshal(extra)
	if errMarshal != nil {
		return "", fmt.Errorf("encode setting: %w", errMarshal)
	}
	return string(data), nil
}

// EncodeOtherSettings overlays the managed keys onto any unmanaged keys kept
// from the loaded blob. openrouter_enterprise is written for OpenRouter
// channels and for blobs that already carried it.
func EncodeOtherSettings(other OtherSettings, typ int) (string, error) {
	out := "{}"
	if other.unknown != "" {
		out = other.unknown
	}
	values := []struct {
		key   string
		value any
	}{
		{settingsKeyAzureResponsesVersion, other.AzureResponsesVersion},
		{settingsKeyVertexKeyType, string(normalizeVertexKeyType(other.VertexKeyType))},
		{settingsKeyOpenRouterEnterprise, other.IsEnterpriseAccount},
		{settingsKeyRegion, other.Region},
	}
	for _, kv := range values {
		if kv.key == settingsKeyOpenRouterEnterprise && typ != TypeOpenRouter && !other.enterpriseStored {
			continue
		}
		next, errSet := sjson.Set(out, kv.key, kv.value)
		if errSet != nil {
			return "", fmt.Errorf("encode settings %s: %w", kv.key, errSet)
		}
		out = next
	}
	return out, nil
}
