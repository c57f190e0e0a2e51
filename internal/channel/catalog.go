package channel

import "strings"

// ModelCatalog resolves the generic models-by-provider lookup used for
// provider types without a hardcoded default list.
type ModelCatalog interface {
	ModelsForProvider(catalogID string) []string
}

// StaticCatalog is an in-memory catalog keyed by catalog id.
type StaticCatalog map[string][]string

// ModelsForProvider returns a copy of the configured models for catalogID.
func (c StaticCatalog) ModelsForProvider(catalogID string) []string {
	return cloneStrings(c[strings.TrimSpace(catalogID)])
}

// FallbackCatalog carries a small built-in model list per provider, used
// until the reference table has been synced.
var FallbackCatalog = StaticCatalog{
	"openai":     {"gpt-4o", "gpt-4o-mini", "gpt-4.1", "gpt-4.1-mini", "o3-mini"},
	"anthropic":  {"claude-3-5-haiku-20241022", "claude-3-7-sonnet-20250219", "claude-sonnet-4-20250514"},
	"google":     {"gemini-2.0-flash", "gemini-2.5-flash", "gemini-2.5-pro"},
	"deepseek":   {"deepseek-chat", "deepseek-reasoner"},
	"mistral":    {"mistral-large-latest", "mistral-small-latest"},
	"moonshotai": {"moonshot-v1-8k", "moonshot-v1-32k", "moonshot-v1-128k"},
	"xai":        {"grok-3", "grok-3-mini"},
}

// ChainCatalog consults each catalog in order and returns the first
// non-empty answer.
type ChainCatalog []ModelCatalog

// ModelsForProvider implements ModelCatalog.
func (c ChainCatalog) ModelsForProvider(catalogID string) []string {
	for _, catalog := range c {
		if catalog == nil {
			continue
		}
		if found := catalog.ModelsForProvider(catalogID); len(found) > 0 {
			return found
		}
	}
	return nil
}

// DefaultModels resolves the provider default model set for typ. Types with a
// hardcoded list use it; every other type delegates to catalog.
func DefaultModels(catalog ModelCatalog, typ int) []string {
	p := LookupProvider(typ)
	if len(p.DefaultModels) > 0 {
		return cloneStrings(p.DefaultModels)
	}
	if catalog == nil || p.CatalogID == "" {
		return []string{}
	}
	return NormalizeList(catalog.ModelsForProvider(p.CatalogID))
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
