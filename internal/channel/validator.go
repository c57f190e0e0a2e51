package channel

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

// Upstream channel endpoint used by create and update.
const channelPath = "/api/channel/"

// ValidationError is a user-correctable rejection raised before any network
// call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalid(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// Submission is exactly one create or update request.
type Submission struct {
	Method string         `json:"method"`
	Path   string         `json:"path"`
	Body   map[string]any `json:"body"`
}

// Channel returns the channel object carried by the submission.
func (s Submission) Channel() map[string]any {
	if s.Method == http.MethodPost {
		if ch, ok := s.Body["channel"].(map[string]any); ok {
			return ch
		}
		return nil
	}
	return s.Body
}

// ValidateInput is everything the validator reads.
type ValidateInput struct {
	Draft    Draft
	Mode     Mode
	KeyFiles []ParsedKeyFile
}

// Validate runs the ordered submission checks. The first failing check wins
// and in.Draft is never modified.
func Validate(in ValidateInput) (Submission, error) {
	d := in.Draft.Clone()
	mode := in.Mode.Normalize(d.Type, d.Settings.VertexKeyType)
	isEdit := mode.IsEdit()

	key, errKey := resolveKey(d, mode, in.KeyFiles)
	if errKey != nil {
		return Submission{}, errKey
	}
	if !isEdit && (strings.TrimSpace(d.Name) == "" || strings.TrimSpace(key) == "") {
		return Submission{}, invalid(FieldName, "please enter the channel name and channel key")
	}
	models := NormalizeList(d.Models)
	if len(models) == 0 {
		return Submission{}, invalid(FieldModels, "please select at least one model")
	}
	if d.Type == TypeVolcEngine && strings.TrimSpace(d.BaseURL) == "" {
		return Submission{}, invalid(FieldBaseURL, "please enter the API address")
	}
	if mapping := strings.TrimSpace(d.ModelMapping); mapping != "" && !gjson.Valid(mapping) {
		return Submission{}, invalid(FieldModelMapping, "model mapping must be valid JSON")
	}
	d.BaseURL = strings.TrimSuffix(d.BaseURL, "/")
	if p := LookupProvider(d.Type); p.Other != nil && p.Other.Default != "" && d.Other == "" {
		d.Other = p.Other.Default
	}

	setting, settings, errEncode := EncodeSettings(d.Extra, d.Settings, d.Type)
	if errEncode != nil {
		return Submission{}, errEncode
	}

	channel := make(map[string]any, len(d.passthrough)+24)
	for k, v := range d.passthrough {
		channel[k] = v
	}
	channel["type"] = d.Type
	channel["name"] = d.Name
	channel["base_url"] = d.BaseURL
	channel["other"] = d.Other
	channel["openai_organization"] = d.OpenAIOrganization
	channel["test_model"] = d.TestModel
	channel["tag"] = d.Tag
	channel["remark"] = d.Remark
	channel["models"] = strings.Join(models, ",")
	channel["group"] = JoinList(d.Groups)
	channel["model_mapping"] = d.ModelMapping
	channel["status_code_mapping"] = d.StatusCodeMapping
	channel["param_override"] = d.ParamOverride
	channel["header_override"] = d.HeaderOverride
	channel["priority"] = d.Priority
	channel["weight"] = d.Weight
	channel["auto_ban"] = boolToInt(d.AutoBan)
	channel["setting"] = setting
	channel["settings"] = settings
	if strings.TrimSpace(key) != "" {
		channel["key"] = key
	} else {
		delete(channel, "key")
	}

	if isEdit {
		channel["id"] = d.ID
		if mode.Kind == ModeEditMultiKey {
			channel["key_mode"] = string(mode.KeyUpdate)
			channel["multi_key_mode"] = string(mode.Policy)
		}
		return Submission{Method: http.MethodPut, Path: channelPath, Body: channel}, nil
	}

	body := map[string]any{
		"mode":    mode.WireMode(),
		"channel": channel,
	}
	if mode.Kind == ModeCreateAggregate {
		body["multi_key_mode"] = string(mode.Policy)
	}
	return Submission{Method: http.MethodPost, Path: channelPath, Body: body}, nil
}

// resolveKey applies the Vertex AI key rules and returns the key to send.
func resolveKey(d Draft, mode Mode, files []ParsedKeyFile) (string, error) {
	isEdit := mode.IsEdit()
	if d.Type != TypeVertexAI {
		return d.Key, nil
	}
	if normalizeVertexKeyType(d.Settings.VertexKeyType) == VertexKeyAPIKey {
		if !isEdit && !d.HasKey() {
			return "", invalid(FieldKey, "please enter the key")
		}
		return d.Key, nil
	}
	if mode.Entry == KeyEntryManualJSON {
		if !d.HasKey() {
			if !isEdit {
				return "", invalid(FieldKey, "please enter the key")
			}
			return "", nil
		}
		var buf bytes.Buffer
		if errCompact := json.Compact(&buf, []byte(strings.TrimSpace(d.Key))); errCompact != nil {
			return "", invalid(FieldKey, "invalid key format, please enter a valid JSON key")
		}
		return buf.String(), nil
	}
	if len(files) == 0 {
		if !isEdit {
			return "", invalid(FieldKey, "please upload the key file")
		}
		return "", nil
	}
	if !mode.Batch() {
		return files[0].JSON, nil
	}
	parts := make([]string, 0, len(files))
	for _, f := range files {
		parts = append(parts, f.JSON)
	}
	return "[" + strings.Join(parts, ",") + "]", nil
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
