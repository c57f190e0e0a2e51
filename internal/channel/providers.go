package channel

import "sort"

// Channel type discriminants understood by the upstream gateway.
const (
	TypeOpenAI         = 1
	TypeMidjourney     = 2
	TypeAzure          = 3
	TypeOllama         = 4
	TypeMidjourneyPlus = 5
	TypeCustom         = 8
	TypeAnthropic      = 14
	TypeBaidu          = 15
	TypeZhipu          = 16
	TypeAli            = 17
	TypeXunfei         = 18
	TypeOpenRouter     = 20
	TypeAIProxyLibrary = 21
	TypeFastGPT        = 22
	TypeTencent        = 23
	TypeGemini         = 24
	TypeMoonshot       = 25
	TypeZhipuV4        = 26
	TypePerplexity     = 27
	TypeLingYiWanWu    = 31
	TypeAWS            = 33
	TypeCohere         = 34
	TypeMiniMax        = 35
	TypeSuno           = 36
	TypeDify           = 37
	TypeJina           = 38
	TypeCloudflare     = 39
	TypeSiliconFlow    = 40
	TypeVertexAI       = 41
	TypeMistral        = 42
	TypeDeepSeek       = 43
	TypeVolcEngine     = 45
	TypeBaiduV2        = 46
	TypeXinference     = 47
	TypeXAI            = 48
	TypeCoze           = 49
	TypeKling          = 50
	TypeJimeng         = 51
)

// Ark endpoints offered for VolcEngine channels.
const (
	ArkBeijingBaseURL   = "https://ark.cn-beijing.volces.com"
	ArkSoutheastBaseURL = "https://ark.ap-southeast.bytepluses.com"
)

// defaultKeyHint is used when a provider has no specific key format.
const defaultKeyHint = "Please enter the authentication key for the selected channel"

// BaseURLField describes how the base_url input is presented for a provider.
type BaseURLField struct {
	Label       string   `json:"label"`
	Placeholder string   `json:"placeholder,omitempty"`
	Options     []string `json:"options,omitempty"`
	Required    bool     `json:"required,omitempty"`
}

// OtherField describes the provider-specific meaning of the `other` column.
type OtherField struct {
	Label       string `json:"label"`
	Placeholder string `json:"placeholder,omitempty"`
	Required    bool   `json:"required,omitempty"`
	JSON        bool   `json:"json,omitempty"`
	Default     string `json:"default,omitempty"` // Filled at submit when empty.
}

// Provider is one row of the provider lookup table.
type Provider struct {
	Type          int           `json:"type"`
	Name          string        `json:"name"`
	CatalogID     string        `json:"catalog_id,omitempty"` // models.dev provider id for the generic lookup.
	DefaultModels []string      `json:"default_models,omitempty"`
	KeyHint       string        `json:"key_hint,omitempty"`
	Fetchable     bool          `json:"fetchable"`
	BaseURL       *BaseURLField `json:"base_url,omitempty"`
	DefaultBase   string        `json:"default_base_url,omitempty"` // Applied on type change.
	Other         *OtherField   `json:"other,omitempty"`
	Notice        string        `json:"notice,omitempty"`
}

var midjourneyModels = []string{
	"mj_imagine",
	"mj_variation",
	"mj_reroll",
	"mj_blend",
	"mj_upscale",
	"mj_describe",
	"mj_uploads",
}

var midjourneyPlusModels = []string{
	"swap_face",
	"mj_imagine",
	"mj_video",
	"mj_edits",
	"mj_variation",
	"mj_reroll",
	"mj_blend",
	"mj_upscale",
	"mj_describe",
	"mj_zoom",
	"mj_shorten",
	"mj_modal",
	"mj_inpaint",
	"mj_custom_zoom",
	"mj_high_variation",
	"mj_low_variation",
	"mj_pan",
	"mj_uploads",
}

var sunoModels = []string{"suno_music", "suno_lyrics"}

var defaultBaseURLField = BaseURLField{
	Label:       "API Address",
	Placeholder: "Optional, for custom API address calls. Do not end with /v1 or /",
}

var providerTable = map[int]Provider{
	TypeOpenAI:         {Name: "OpenAI", CatalogID: "openai", Fetchable: true},
	TypeMidjourney:     {Name: "Midjourney Proxy", DefaultModels: midjourneyModels},
	TypeAzure:          {Name: "Azure OpenAI", CatalogID: "azure", BaseURL: &BaseURLField{Label: "AZURE_OPENAI_ENDPOINT", Placeholder: "e.g. https://docs-test-001.openai.azure.com"}, Other: &OtherField{Label: "Default API Version", Placeholder: "e.g. 2025-04-01-preview"}},
	TypeOllama:         {Name: "Ollama", Fetchable: true},
	TypeMidjourneyPlus: {Name: "Midjourney Proxy Plus", DefaultModels: midjourneyPlusModels},
	TypeCustom:         {Name: "Custom", BaseURL: &BaseURLField{Label: "Full Base URL, supports variable {model}", Placeholder: "e.g. https://api.openai.com/v1/chat/completions"}, Notice: "Use the OpenAI type for upstream One API or New API projects."},
	TypeAnthropic:      {Name: "Anthropic Claude", CatalogID: "anthropic", Fetchable: true},
	TypeBaidu:          {Name: "Baidu Wenxin", KeyHint: "Enter in the following format: APIKey|SecretKey"},
	TypeZhipu:          {Name: "Zhipu ChatGLM", CatalogID: "zhipuai"},
	TypeAli:            {Name: "Alibaba Qwen", CatalogID: "alibaba", Fetchable: true},
	TypeXunfei:         {Name: "iFlytek Spark", KeyHint: "Enter in the following format: APPID|APISecret|APIKey", Other: &OtherField{Label: "Model Version", Placeholder: "e.g. v2.1", Default: "v2.1"}},
	TypeOpenRouter:     {Name: "OpenRouter", CatalogID: "openrouter", Fetchable: true},
	TypeAIProxyLibrary: {Name: "AI Proxy Library", Other: &OtherField{Label: "Knowledge Base ID", Placeholder: "e.g. 123456"}},
	TypeFastGPT:        {Name: "FastGPT", KeyHint: "Enter in the following format: APIKey-AppId", BaseURL: &BaseURLField{Label: "Private Deployment Address", Placeholder: "format: https://fastgpt.run/api/openapi"}},
	TypeTencent:        {Name: "Tencent Hunyuan", KeyHint: "Enter in the following format: AppId|SecretId|SecretKey", Fetchable: true},
	TypeGemini:         {Name: "Google Gemini", CatalogID: "google", Fetchable: true},
	TypeMoonshot:       {Name: "Moonshot", CatalogID: "moonshotai", Fetchable: true},
	TypeZhipuV4:        {Name: "Zhipu GLM-4V", CatalogID: "zhipuai", Fetchable: true},
	TypePerplexity:     {Name: "Perplexity", CatalogID: "perplexity"},
	TypeLingYiWanWu:    {Name: "01.AI", Fetchable: true},
	TypeAWS:            {Name: "AWS Claude", CatalogID: "amazon-bedrock", KeyHint: "Enter in the following format: Ak|Sk|Region"},
	TypeCohere:         {Name: "Cohere", CatalogID: "cohere", Fetchable: true},
	TypeMiniMax:        {Name: "MiniMax", CatalogID: "minimax", Fetchable: true},
	TypeSuno:           {Name: "Suno API", DefaultModels: sunoModels, BaseURL: &BaseURLField{Label: "Suno API address (not a chat API)", Placeholder: "the path before /suno, usually just the domain"}},
	TypeDify:           {Name: "Dify", Notice: "Dify channels only support chatflow and agent; agent does not support images."},
	TypeJina:           {Name: "Jina"},
	TypeCloudflare:     {Name: "Cloudflare Workers AI", CatalogID: "cloudflare-workers-ai", Other: &OtherField{Label: "Account ID", Placeholder: "e.g. d6b5da8hk1awo8nap34ube6gh"}},
	TypeSiliconFlow:    {Name: "SiliconFlow", Fetchable: true},
	TypeVertexAI:       {Name: "Vertex AI", CatalogID: "google-vertex", Other: &OtherField{Label: "Deployment Region", Placeholder: `e.g. us-central1 or {"default": "us-central1"}`, Required: true, JSON: true}},
	TypeMistral:        {Name: "Mistral AI", CatalogID: "mistral", Fetchable: true},
	TypeDeepSeek:       {Name: "DeepSeek", CatalogID: "deepseek"},
	TypeVolcEngine:     {Name: "VolcEngine Ark", BaseURL: &BaseURLField{Label: "API Address", Options: []string{ArkBeijingBaseURL, ArkSoutheastBaseURL}, Required: true}, DefaultBase: ArkBeijingBaseURL},
	TypeBaiduV2:        {Name: "Baidu Qianfan V2"},
	TypeXinference:     {Name: "Xinference", Fetchable: true},
	TypeXAI:            {Name: "xAI", CatalogID: "xai", Fetchable: true},
	TypeCoze:           {Name: "Coze", Other: &OtherField{Label: "Agent ID", Placeholder: "e.g. 7342866812345"}},
	TypeKling:          {Name: "Kling", KeyHint: "Enter in the following format: AccessKey|SecretKey"},
	TypeJimeng:         {Name: "Jimeng", KeyHint: "Enter in the following format: Access Key ID|Secret Access Key"},
}

// LookupProvider returns the provider row for a type. Unknown types get a
// generic row so callers never branch on presence.
func LookupProvider(typ int) Provider {
	p, ok := providerTable[typ]
	if !ok {
		p = Provider{Name: "Unknown"}
	}
	p.Type = typ
	if p.KeyHint == "" {
		p.KeyHint = defaultKeyHint
	}
	if p.BaseURL == nil {
		field := defaultBaseURLField
		p.BaseURL = &field
	}
	return p
}

// KnownType reports whether typ has an entry in the provider table.
func KnownType(typ int) bool {
	_, ok := providerTable[typ]
	return ok
}

// Providers lists every known provider ordered by type.
func Providers() []Provider {
	types := make([]int, 0, len(providerTable))
	for typ := range providerTable {
		types = append(types, typ)
	}
	sort.Ints(types)
	out := make([]Provider, 0, len(types))
	for _, typ := range types {
		out = append(out, LookupProvider(typ))
	}
	return out
}

// RequiresBaseURL reports whether submission must carry a base URL.
func RequiresBaseURL(typ int) bool {
	p := LookupProvider(typ)
	return p.BaseURL != nil && p.BaseURL.Required
}

// CatalogIDs lists the distinct reference catalog ids used by the provider
// table, sorted.
func CatalogIDs() []string {
	seen := make(map[string]struct{}, len(providerTable))
	for _, p := range providerTable {
		if p.CatalogID != "" {
			seen[p.CatalogID] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
