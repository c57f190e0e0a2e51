package channel

// Field names accepted by the editor and reported in a Layout.
const (
	FieldType                   = "type"
	FieldName                   = "name"
	FieldBaseURL                = "base_url"
	FieldKey                    = "key"
	FieldOther                  = "other"
	FieldOpenAIOrganization     = "openai_organization"
	FieldTestModel              = "test_model"
	FieldTag                    = "tag"
	FieldRemark                 = "remark"
	FieldModels                 = "models"
	FieldGroups                 = "groups"
	FieldModelMapping           = "model_mapping"
	FieldStatusCodeMapping      = "status_code_mapping"
	FieldParamOverride          = "param_override"
	FieldHeaderOverride         = "header_override"
	FieldPriority               = "priority"
	FieldWeight                 = "weight"
	FieldAutoBan                = "auto_ban"
	FieldForceFormat            = "force_format"
	FieldThinkingToContent      = "thinking_to_content"
	FieldProxy                  = "proxy"
	FieldPassThroughBodyEnabled = "pass_through_body_enabled"
	FieldSystemPrompt           = "system_prompt"
	FieldSystemPromptOverride   = "system_prompt_override"
	FieldAzureResponsesVersion  = "azure_responses_version"
	FieldVertexKeyType          = "vertex_key_type"
	FieldIsEnterpriseAccount    = "is_enterprise_account"
	FieldRegion                 = "region"
	FieldKeyMode                = "key_mode"
	FieldMultiKeyMode           = "multi_key_mode"
)

// KeyInputKind is the widget used to collect credentials.
type KeyInputKind string

const (
	KeyInputSingleLine KeyInputKind = "single_line"
	KeyInputMultiLine  KeyInputKind = "multi_line"
	KeyInputFileUpload KeyInputKind = "file_upload"
)

// PollingWarning is attached when polling is picked without a confirmed
// shared cache.
const PollingWarning = "polling requires a redis cache backend"

// FieldRule is the resolved presentation of one field.
type FieldRule struct {
	Name        string   `json:"name"`
	Visible     bool     `json:"visible"`
	Required    bool     `json:"required"`
	Label       string   `json:"label,omitempty"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
}

// Layout is the field visibility and requiredness for one editor state.
type Layout struct {
	Type                   int          `json:"type"`
	ProviderName           string       `json:"provider_name"`
	Fields                 []FieldRule  `json:"fields"`
	KeyInput               KeyInputKind `json:"key_input"`
	KeyHint                string       `json:"key_hint"`
	ManualKeyToggle        bool         `json:"manual_key_toggle"`
	BatchAllowed           bool         `json:"batch_allowed"`
	MultiKeyModeSelectable bool         `json:"multi_key_mode_selectable"`
	ModelFetchable         bool         `json:"model_fetchable"`
	DefaultModels          []string     `json:"default_models"`
	Notice                 string       `json:"notice,omitempty"`
	Warnings               []string     `json:"warnings,omitempty"`
}

// Field returns the rule for name.
func (l Layout) Field(name string) (FieldRule, bool) {
	for _, f := range l.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldRule{}, false
}

// Resolver derives layouts from the provider table.
type Resolver struct {
	Catalog ModelCatalog
	// SharedCache reports that the gateway runs with a redis cache, which
	// silences the polling warning.
	SharedCache bool
}

// Resolve computes the layout for typ in mode. It does not depend on any
// other editor state.
func (r Resolver) Resolve(typ int, mode Mode, keyType VertexKeyType) Layout {
	p := LookupProvider(typ)
	keyType = normalizeVertexKeyType(keyType)
	mode = mode.Normalize(typ, keyType)
	vertexJSON := typ == TypeVertexAI && keyType == VertexKeyJSON

	layout := Layout{
		Type:                   typ,
		ProviderName:           p.Name,
		KeyHint:                p.KeyHint,
		ModelFetchable:         p.Fetchable,
		DefaultModels:          DefaultModels(r.Catalog, typ),
		Notice:                 p.Notice,
		BatchAllowed:           !mode.IsEdit() && !(typ == TypeVertexAI && keyType == VertexKeyAPIKey),
		ManualKeyToggle:        vertexJSON && !mode.Batch(),
		MultiKeyModeSelectable: mode.Aggregated(),
	}

	switch {
	case vertexJSON && mode.Entry == KeyEntryFiles:
		layout.KeyInput = KeyInputFileUpload
	case mode.Batch() || vertexJSON:
		layout.KeyInput = KeyInputMultiLine
	default:
		layout.KeyInput = KeyInputSingleLine
	}

	if mode.Aggregated() && mode.Policy == PolicyPolling && !r.SharedCache {
		layout.Warnings = append(layout.Warnings, PollingWarning)
	}

	keyRequired := !mode.IsEdit()
	base := FieldRule{Name: FieldBaseURL, Visible: true}
	if p.BaseURL != nil {
		base.Label = p.BaseURL.Label
		base.Placeholder = p.BaseURL.Placeholder
		base.Options = cloneStrings(p.BaseURL.Options)
		base.Required = p.BaseURL.Required
	}
	other := FieldRule{Name: FieldOther}
	if p.Other != nil {
		other.Visible = true
		other.Label = p.Other.Label
		other.Placeholder = p.Other.Placeholder
		other.Required = p.Other.Required
	}

	layout.Fields = []FieldRule{
		{Name: FieldType, Visible: true, Required: true},
		{Name: FieldName, Visible: true, Required: true},
		{Name: FieldKey, Visible: true, Required: keyRequired, Placeholder: p.KeyHint},
		base,
		other,
		{Name: FieldOpenAIOrganization, Visible: typ == TypeOpenAI},
		{Name: FieldVertexKeyType, Visible: typ == TypeVertexAI, Options: []string{string(VertexKeyJSON), string(VertexKeyAPIKey)}},
		{Name: FieldIsEnterpriseAccount, Visible: typ == TypeOpenRouter},
		{Name: FieldAzureResponsesVersion, Visible: typ == TypeAzure},
		{Name: FieldRegion},
		{Name: FieldKeyMode, Visible: mode.Kind == ModeEditMultiKey, Options: []string{string(KeyUpdateAppend), string(KeyUpdateReplace)}},
		{Name: FieldMultiKeyMode, Visible: mode.Aggregated(), Options: []string{string(PolicyRandom), string(PolicyPolling)}},
		{Name: FieldModels, Visible: true, Required: true},
		{Name: FieldTestModel, Visible: true},
		{Name: FieldModelMapping, Visible: true},
		{Name: FieldGroups, Visible: true},
		{Name: FieldTag, Visible: true},
		{Name: FieldRemark, Visible: true},
		{Name: FieldPriority, Visible: true},
		{Name: FieldWeight, Visible: true},
		{Name: FieldAutoBan, Visible: true},
		{Name: FieldParamOverride, Visible: true},
		{Name: FieldHeaderOverride, Visible: true},
		{Name: FieldStatusCodeMapping, Visible: true},
		{Name: FieldForceFormat, Visible: typ == TypeOpenAI},
		{Name: FieldThinkingToContent, Visible: true},
		{Name: FieldPassThroughBodyEnabled, Visible: true},
		{Name: FieldProxy, Visible: true},
		{Name: FieldSystemPrompt, Visible: true},
		{Name: FieldSystemPromptOverride, Visible: true},
	}
	return layout
}
