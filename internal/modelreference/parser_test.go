package modelreference

import (
	"bytes"
	"testing"

	"github.com/router-for-me/ChannelConsole/internal/models"
	"github.com/tidwall/gjson"
)

func findReference(refs []models.ModelReference, providerID, modelID string) *models.ModelReference {
	for i := range refs {
		if refs[i].ProviderID == providerID && refs[i].ModelID == modelID {
			return &refs[i]
		}
	}
	return nil
}

func TestParseModelsPayload_FallbacksAndExtras(t *testing.T) {
	payload := []byte(`{"provider-x":{"name":"Provider X","api":"https://api.example","models":{"model-a":{"name":"Model A","id":"model-a","cost":{"input":0.1,"output":0.2},"limit":{"context":8000,"output":2048},"family":"demo"},"model-b":{"cost":{"input":0.3},"limit":{"context":0}}}}}`)

	refs, err := ParseModelsPayload(payload)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	if len(refs) != 2 {
		t.Fatalf("expected 2 refs, got %d", len(refs))
	}

	refA := findReference(refs, "provider-x", "model-a")
	if refA == nil {
		t.Fatalf("expected model-a reference")
	}
	if refA.ProviderName != "Provider X" || refA.ModelName != "Model A" {
		t.Fatalf("unexpected names %q %q", refA.ProviderName, refA.ModelName)
	}
	if refA.ContextLimit != 8000 || refA.OutputLimit != 2048 {
		t.Fatalf("unexpected limits: context=%d output=%d", refA.ContextLimit, refA.OutputLimit)
	}
	if bytes.Contains(refA.Extra, []byte("model-a")) || bytes.Contains(refA.Extra, []byte(`"limit"`)) {
		t.Fatalf("expected id and limit to be excluded from extra: %s", refA.Extra)
	}
	if gjson.GetBytes(refA.Extra, "family").String() != "demo" {
		t.Fatalf("expected family to be kept in extra: %s", refA.Extra)
	}

	refB := findReference(refs, "provider-x", "model-b")
	if refB == nil || refB.ModelName != "model-b" {
		t.Fatalf("expected fallback name for model-b")
	}
}

func TestParseModelsPayload_SortedAndSkipsNonObjects(t *testing.T) {
	payload := []byte(`{"zeta":{"models":{"b":{},"a":{}}},"alpha":{"name":"Alpha","models":{"m":{}}},"broken":"x"}`)
	refs, err := ParseModelsPayload(payload)
	if err != nil {
		t.Fatalf("parse payload: %v", err)
	}
	want := []string{"alpha/m", "zeta/a", "zeta/b"}
	if len(refs) != len(want) {
		t.Fatalf("expected %d refs, got %d", len(want), len(refs))
	}
	for i, ref := range refs {
		if got := ref.ProviderID + "/" + ref.ModelID; got != want[i] {
			t.Fatalf("ref %d: expected %s, got %s", i, want[i], got)
		}
	}
	if refs[1].ProviderName != "zeta" {
		t.Fatalf("expected provider id as fallback name, got %q", refs[1].ProviderName)
	}
}

func TestParseModelsPayload_Invalid(t *testing.T) {
	if _, err := ParseModelsPayload(nil); err == nil {
		t.Fatalf("expected error for empty payload")
	}
	if _, err := ParseModelsPayload([]byte(`{"a":`)); err == nil {
		t.Fatalf("expected error for invalid json")
	}
	if _, err := ParseModelsPayload([]byte(`[]`)); err == nil {
		t.Fatalf("expected error for non-object payload")
	}
}
