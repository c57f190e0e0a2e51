package channel

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestEncodeDecodeSettingsRoundTrip(t *testing.T) {
	cases := []struct {
		name  string
		extra ExtraSettings
		other OtherSettings
	}{
		{name: "defaults", extra: ExtraSettings{}, other: DefaultOtherSettings()},
		{
			name: "everything set",
			extra: ExtraSettings{
				ForceFormat:            true,
				ThinkingToContent:      true,
				Proxy:                  "socks5://127.0.0.1:1080",
				PassThroughBodyEnabled: true,
				SystemPrompt:           "be brief",
				SystemPromptOverride:   true,
			},
			other: OtherSettings{
				AzureResponsesVersion: "preview",
				VertexKeyType:         VertexKeyAPIKey,
				IsEnterpriseAccount:   true,
				Region:                "us-central1",
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			setting, settings, err := EncodeSettings(tc.extra, tc.other, TypeOpenRouter)
			if err != nil {
				t.Fatalf("EncodeSettings: %v", err)
			}
			gotExtra, gotOther := DecodeSettings(setting, settings)
			if gotExtra != tc.extra {
				t.Fatalf("extra mismatch: got %+v want %+v", gotExtra, tc.extra)
			}
			gotOther.enterpriseStored = false
			if gotOther != tc.other {
				t.Fatalf("other mismatch: got %+v want %+v", gotOther, tc.other)
			}
		})
	}
}

func TestEncodeSettingsEmitsEveryField(t *testing.T) {
	setting, settings, err := EncodeSettings(ExtraSettings{}, DefaultOtherSettings(), TypeOpenRouter)
	if err != nil {
		t.Fatalf("EncodeSettings: %v", err)
	}
	for _, key := range extraSettingKeys {
		if !gjson.Get(setting, key).Exists() {
			t.Fatalf("setting blob missing %s: %s", key, setting)
		}
	}
	for _, key := range otherSettingKeys {
		if !gjson.Get(settings, key).Exists() {
			t.Fatalf("settings blob missing %s: %s", key, settings)
		}
	}
	if gjson.Get(settings, "is_enterprise_account").Exists() {
		t.Fatalf("settings blob must use openrouter_enterprise, got %s", settings)
	}
}

func TestDecodeSettingsFallsBackIndependently(t *testing.T) {
	extra, other := DecodeSettings("{not json", `{"openrouter_enterprise":true,"vertex_key_type":"api_key"}`)
	if extra != (ExtraSettings{}) {
		t.Fatalf("expected default extra settings, got %+v", extra)
	}
	if !other.IsEnterpriseAccount || other.VertexKeyType != VertexKeyAPIKey {
		t.Fatalf("settings blob should decode despite the broken setting blob: %+v", other)
	}

	extra, other = DecodeSettings(`{"proxy":"http://p"}`, "[1,2]")
	if extra.Proxy != "http://p" {
		t.Fatalf("proxy = %q", extra.Proxy)
	}
	if other != DefaultOtherSettings() {
		t.Fatalf("expected default other settings, got %+v", other)
	}
}

func TestDecodeOtherSettingsKeepsUnknownKeys(t *testing.T) {
	raw := `{"azure_responses_version":"v1","custom_flag":true,"nested":{"a":1},"proxy":"leak"}`
	other := DecodeOtherSettings(raw)
	if other.AzureResponsesVersion != "v1" {
		t.Fatalf("azure version = %q", other.AzureResponsesVersion)
	}
	if other.VertexKeyType != VertexKeyJSON {
		t.Fatalf("vertex key type should default to json, got %q", other.VertexKeyType)
	}

	other.Region = "eu"
	out, err := EncodeOtherSettings(other, TypeOpenAI)
	if err != nil {
		t.Fatalf("EncodeOtherSettings: %v", err)
	}
	if !gjson.Get(out, "custom_flag").Bool() || gjson.Get(out, "nested.a").Int() != 1 {
		t.Fatalf("unknown keys lost: %s", out)
	}
	if gjson.Get(out, "proxy").Exists() {
		t.Fatalf("setting blob key leaked into settings: %s", out)
	}
	if gjson.Get(out, "region").String() != "eu" {
		t.Fatalf("region not written: %s", out)
	}
	if strings.Count(out, "azure_responses_version") != 1 {
		t.Fatalf("managed key duplicated: %s", out)
	}
}

func TestEncodeOtherSettingsEnterpriseOnlyForOpenRouter(t *testing.T) {
	out, err := EncodeOtherSettings(DefaultOtherSettings(), TypeOpenAI)
	if err != nil {
		t.Fatalf("EncodeOtherSettings: %v", err)
	}
	if gjson.Get(out, settingsKeyOpenRouterEnterprise).Exists() {
		t.Fatalf("enterprise flag written for a non-OpenRouter channel: %s", out)
	}

	out, err = EncodeOtherSettings(DefaultOtherSettings(), TypeOpenRouter)
	if err != nil {
		t.Fatalf("EncodeOtherSettings: %v", err)
	}
	if v := gjson.Get(out, settingsKeyOpenRouterEnterprise); !v.Exists() || v.Bool() {
		t.Fatalf("OpenRouter channels always carry the flag: %s", out)
	}

	loaded := DecodeOtherSettings(`{"openrouter_enterprise":true}`)
	out, err = EncodeOtherSettings(loaded, TypeOpenAI)
	if err != nil {
		t.Fatalf("EncodeOtherSettings: %v", err)
	}
	if !gjson.Get(out, settingsKeyOpenRouterEnterprise).Bool() {
		t.Fatalf("stored enterprise flag dropped on re-encode: %s", out)
	}
}

func TestDecodeSettingsEnterpriseRequiresTrue(t *testing.T) {
	other := DecodeOtherSettings(`{"openrouter_enterprise":"yes"}`)
	if other.IsEnterpriseAccount {
		t.Fatal("only a JSON true enables the enterprise flag")
	}
}
