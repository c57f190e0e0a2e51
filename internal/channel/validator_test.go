package channel

import (
	"errors"
	"net/http"
	"testing"

	"github.com/tidwall/gjson"
)

func validCreateDraft() Draft {
	d := NewDraft(nil)
	d.Name = "primary"
	d.Key = "sk-test"
	d.Models = []string{"gpt-4o"}
	return d
}

func validEditDraft() Draft {
	d := validCreateDraft()
	d.ID = 12
	d.Key = ""
	return d
}

func requireValidationField(t *testing.T, err error, field string) {
	t.Helper()
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if verr.Field != field {
		t.Fatalf("validation field = %q, want %q (%s)", verr.Field, field, verr.Message)
	}
}

func TestValidateRejectsEmptyModels(t *testing.T) {
	for _, mode := range []Mode{CreateMode(), EditMode(MultiKey{})} {
		d := validCreateDraft()
		d.Models = []string{" ", ""}
		_, err := Validate(ValidateInput{Draft: d, Mode: mode})
		requireValidationField(t, err, FieldModels)
	}
}

func TestValidateCreateRequiresNameAndKey(t *testing.T) {
	d := validCreateDraft()
	d.Key = ""
	_, err := Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	requireValidationField(t, err, FieldName)

	d = validCreateDraft()
	d.Name = "  "
	_, err = Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	requireValidationField(t, err, FieldName)
}

func TestValidateEditOmitsBlankKey(t *testing.T) {
	d := validEditDraft()
	d.passthrough = map[string]any{"key": "", "status": 1}
	sub, err := Validate(ValidateInput{Draft: d, Mode: EditMode(MultiKey{})})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sub.Method != http.MethodPut || sub.Path != "/api/channel/" {
		t.Fatalf("unexpected request %s %s", sub.Method, sub.Path)
	}
	if _, ok := sub.Body["key"]; ok {
		t.Fatalf("blank key must be omitted in edit mode: %+v", sub.Body)
	}
	if sub.Body["id"] != 12 {
		t.Fatalf("id = %v", sub.Body["id"])
	}
	if sub.Body["status"] != 1 {
		t.Fatalf("passthrough field lost: %+v", sub.Body)
	}
	if _, ok := sub.Body["key_mode"]; ok {
		t.Fatal("key_mode is only sent for multi-key channels")
	}
}

func TestValidateModelMapping(t *testing.T) {
	d := validCreateDraft()
	d.ModelMapping = `{"a":`
	_, err := Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	requireValidationField(t, err, FieldModelMapping)

	d.ModelMapping = "{}"
	if _, err = Validate(ValidateInput{Draft: d, Mode: CreateMode()}); err != nil {
		t.Fatalf("empty object mapping should pass: %v", err)
	}
}

func TestValidateTrimsOneTrailingSlash(t *testing.T) {
	d := validCreateDraft()
	d.BaseURL = "https://api.x.com/v1/"
	sub, err := Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := sub.Channel()["base_url"]; got != "https://api.x.com/v1" {
		t.Fatalf("base_url = %v", got)
	}
	if d.BaseURL != "https://api.x.com/v1/" {
		t.Fatal("validation must not mutate the caller's draft")
	}

	d.BaseURL = "https://api.x.com//"
	sub, _ = Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	if got := sub.Channel()["base_url"]; got != "https://api.x.com/" {
		t.Fatalf("only one slash should be trimmed, got %v", got)
	}
}

func TestValidateVolcEngineRequiresBaseURL(t *testing.T) {
	d := validCreateDraft()
	d.Type = TypeVolcEngine
	d.BaseURL = " "
	_, err := Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	requireValidationField(t, err, FieldBaseURL)
}

func TestValidateXunfeiDefaultVersion(t *testing.T) {
	d := validCreateDraft()
	d.Type = TypeXunfei
	sub, err := Validate(ValidateInput{Draft: d, Mode: CreateMode()})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got := sub.Channel()["other"]; got != "v2.1" {
		t.Fatalf("other = %v", got)
	}
}

func TestValidateWireShape(t *testing.T) {
	d := validCreateDraft()
	d.Models = []string{"a", "b", "a"}
	d.Groups = []string{"default", "vip"}
	d.AutoBan = false
	d.Type = TypeOpenRouter
	d.Settings.IsEnterpriseAccount = true

	mode, _ := CreateMode().SetBatch(true)
	mode, _ = mode.SetAggregation(true)
	mode, _ = mode.SetPolicy(PolicyPolling)
	sub, err := Validate(ValidateInput{Draft: d, Mode: mode})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sub.Method != http.MethodPost {
		t.Fatalf("method = %s", sub.Method)
	}
	if sub.Body["mode"] != "multi_to_single" || sub.Body["multi_key_mode"] != "polling" {
		t.Fatalf("unexpected create envelope: %+v", sub.Body)
	}
	ch := sub.Channel()
	if ch["models"] != "a,b" || ch["group"] != "default,vip" || ch["auto_ban"] != 0 {
		t.Fatalf("unexpected wire fields: %+v", ch)
	}
	if _, ok := ch["groups"]; ok {
		t.Fatal("groups is a scratch field and must not be sent")
	}
	if !gjson.Get(ch["settings"].(string), "openrouter_enterprise").Bool() {
		t.Fatalf("enterprise flag missing: %v", ch["settings"])
	}

	plain, _ := CreateMode().SetBatch(true)
	sub, _ = Validate(ValidateInput{Draft: d, Mode: plain})
	if sub.Body["mode"] != "batch" {
		t.Fatalf("mode = %v", sub.Body["mode"])
	}
	if _, ok := sub.Body["multi_key_mode"]; ok {
		t.Fatal("multi_key_mode is only sent for aggregation")
	}
}

func TestValidateMultiKeyEdit(t *testing.T) {
	d := validEditDraft()
	d.Key = "k1\nk2"
	mode := EditMode(MultiKey{IsMulti: true, Policy: PolicyPolling})
	mode, _ = mode.SetKeyUpdate(KeyUpdateReplace)
	sub, err := Validate(ValidateInput{Draft: d, Mode: mode})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if sub.Body["key_mode"] != "replace" || sub.Body["multi_key_mode"] != "polling" {
		t.Fatalf("unexpected body: %+v", sub.Body)
	}
	if sub.Body["key"] != "k1\nk2" {
		t.Fatalf("key = %v", sub.Body["key"])
	}
}

func TestValidateVertexKeys(t *testing.T) {
	base := validCreateDraft()
	base.Type = TypeVertexAI
	base.Key = ""

	manual, _ := CreateMode().SetManualInput(true)
	d := base
	d.Key = "{not json"
	_, err := Validate(ValidateInput{Draft: d, Mode: manual})
	requireValidationField(t, err, FieldKey)

	d.Key = "{\n  \"type\": \"service_account\"\n}"
	sub, err := Validate(ValidateInput{Draft: d, Mode: manual})
	if err != nil {
		t.Fatalf("Validate manual: %v", err)
	}
	if sub.Channel()["key"] != `{"type":"service_account"}` {
		t.Fatalf("manual key not compacted: %v", sub.Channel()["key"])
	}

	files := []ParsedKeyFile{{Name: "a.json", JSON: `{"a":1}`}, {Name: "b.json", JSON: `{"b":2}`}}
	_, err = Validate(ValidateInput{Draft: base, Mode: CreateMode()})
	requireValidationField(t, err, FieldKey)

	batch, _ := CreateMode().SetBatch(true)
	sub, err = Validate(ValidateInput{Draft: base, Mode: batch, KeyFiles: files})
	if err != nil {
		t.Fatalf("Validate batch: %v", err)
	}
	if sub.Channel()["key"] != `[{"a":1},{"b":2}]` {
		t.Fatalf("batch key = %v", sub.Channel()["key"])
	}

	sub, err = Validate(ValidateInput{Draft: base, Mode: CreateMode(), KeyFiles: files[:1]})
	if err != nil {
		t.Fatalf("Validate single file: %v", err)
	}
	if sub.Channel()["key"] != `{"a":1}` {
		t.Fatalf("single key = %v", sub.Channel()["key"])
	}

	edit := base
	edit.ID = 3
	sub, err = Validate(ValidateInput{Draft: edit, Mode: EditMode(MultiKey{})})
	if err != nil {
		t.Fatalf("Validate edit without files: %v", err)
	}
	if _, ok := sub.Body["key"]; ok {
		t.Fatal("edit without files must omit key")
	}

	apiKey := base
	apiKey.Settings.VertexKeyType = VertexKeyAPIKey
	_, err = Validate(ValidateInput{Draft: apiKey, Mode: CreateMode()})
	requireValidationField(t, err, FieldKey)
}
