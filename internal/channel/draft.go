package channel

import (
	"strings"
)

// VertexKeyType selects how Vertex AI credentials are supplied.
type VertexKeyType string

const (
	VertexKeyJSON   VertexKeyType = "json"
	VertexKeyAPIKey VertexKeyType = "api_key"
)

// normalizeVertexKeyType maps empty or unknown values to json.
func normalizeVertexKeyType(v VertexKeyType) VertexKeyType {
	if v == VertexKeyAPIKey {
		return VertexKeyAPIKey
	}
	return VertexKeyJSON
}

// MultiKeyPolicy is the key selection policy of an aggregated channel.
type MultiKeyPolicy string

const (
	PolicyRandom  MultiKeyPolicy = "random"
	PolicyPolling MultiKeyPolicy = "polling"
)

// KeyUpdateMode controls how keys submitted for a multi-key channel are applied.
type KeyUpdateMode string

const (
	KeyUpdateAppend  KeyUpdateMode = "append"
	KeyUpdateReplace KeyUpdateMode = "replace"
)

// ExtraSettings is persisted as the `setting` blob.
type ExtraSettings struct {
	ForceFormat            bool   `json:"force_format"`
	ThinkingToContent      bool   `json:"thinking_to_content"`
	Proxy                  string `json:"proxy"`
	PassThroughBodyEnabled bool   `json:"pass_through_body_enabled"`
	SystemPrompt           string `json:"system_prompt"`
	SystemPromptOverride   bool   `json:"system_prompt_override"`
}

// OtherSettings is persisted as the `settings` blob. IsEnterpriseAccount is
// stored on the wire as openrouter_enterprise.
type OtherSettings struct {
	AzureResponsesVersion string        `json:"azure_responses_version"`
	VertexKeyType         VertexKeyType `json:"vertex_key_type"`
	IsEnterpriseAccount   bool          `json:"is_enterprise_account"`
	Region                string        `json:"region"`

	// unknown holds keys of the loaded blob this editor does not manage.
	unknown string
	// enterpriseStored is set when the loaded blob carried openrouter_enterprise.
	enterpriseStored bool
}

// DefaultOtherSettings returns the settings used when none are stored.
func DefaultOtherSettings() OtherSettings {
	return OtherSettings{VertexKeyType: VertexKeyJSON}
}

// MultiKey describes an aggregated channel as loaded from the server.
type MultiKey struct {
	IsMulti bool           `json:"is_multi"`
	Policy  MultiKeyPolicy `json:"mode"`
}

// Draft is the in-memory, uncommitted edit state of one channel record.
type Draft struct {
	ID                 int      `json:"id,omitempty"`
	Type               int      `json:"type"`
	Name               string   `json:"name"`
	BaseURL            string   `json:"base_url"`
	Key                string   `json:"-"`
	Other              string   `json:"other"`
	OpenAIOrganization string   `json:"openai_organization"`
	TestModel          string   `json:"test_model"`
	Tag                string   `json:"tag"`
	Models             []string `json:"models"`
	Groups             []string `json:"groups"`
	ModelMapping       string   `json:"model_mapping"`
	StatusCodeMapping  string   `json:"status_code_mapping"`
	Priority           int64    `json:"priority"`
	Weight             int64    `json:"weight"`
	AutoBan            bool     `json:"auto_ban"`
	Remark             string   `json:"remark"`
	ParamOverride      string   `json:"param_override"`
	HeaderOverride     string   `json:"header_override"`

	Extra    ExtraSettings `json:"setting"`
	Settings OtherSettings `json:"settings"`
	MultiKey MultiKey      `json:"multi_key"`

	// passthrough keeps server fields the editor does not model so an update
	// sends them back untouched.
	passthrough map[string]any
}

// NewDraft returns the defaults used by the create flow.
func NewDraft(catalog ModelCatalog) Draft {
	return Draft{
		Type:     TypeOpenAI,
		Models:   DefaultModels(catalog, TypeOpenAI),
		Groups:   []string{"default"},
		AutoBan:  true,
		Settings: DefaultOtherSettings(),
		MultiKey: MultiKey{Policy: PolicyRandom},
	}
}

// Clone returns a deep copy of the draft.
func (d Draft) Clone() Draft {
	out := d
	out.Models = cloneStrings(d.Models)
	out.Groups = cloneStrings(d.Groups)
	if d.passthrough != nil {
		out.passthrough = make(map[string]any, len(d.passthrough))
		for k, v := range d.passthrough {
			out.passthrough[k] = v
		}
	}
	return out
}

// HasKey reports whether the draft carries a non-blank key.
func (d Draft) HasKey() bool {
	return strings.TrimSpace(d.Key) != ""
}

// NormalizeList trims entries, drops empties and duplicates, and keeps the
// first-seen order.
func NormalizeList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, item := range in {
		trimmed := strings.TrimSpace(item)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		out = append(out, trimmed)
	}
	return out
}

// SplitList parses a comma-joined wire value.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	return NormalizeList(strings.Split(raw, ","))
}

// JoinList renders a list in its comma-joined wire form.
func JoinList(in []string) string {
	return strings.Join(NormalizeList(in), ",")
}
