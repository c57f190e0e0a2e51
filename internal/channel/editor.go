package channel

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

var (
	// ErrUnknownField is returned by SetField for names the editor does not own.
	ErrUnknownField = errors.New("channel: unknown field")
	// ErrInvalidValue is returned when a value has the wrong shape for its field.
	ErrInvalidValue = errors.New("channel: invalid field value")
	// ErrNothingPending is returned by Confirm and Cancel without a parked change.
	ErrNothingPending = errors.New("channel: no change awaiting confirmation")
	// ErrKeyFilesNotAccepted is returned when the current mode takes text keys.
	ErrKeyFilesNotAccepted = errors.New("channel: key files are not accepted in this mode")
)

const (
	baseURLV1Warning = "You do not need to add /v1 at the end, the gateway adds it automatically and it may cause request failures. Do you want to continue?"
	batchOffWarning  = "Only the first key file will be kept and the remaining files will be removed. Do you want to continue?"
)

// PendingKind identifies a change parked until the operator confirms it.
type PendingKind string

const (
	PendingBaseURL  PendingKind = "base_url"
	PendingBatchOff PendingKind = "batch_off"
)

// Pending is a parked change.
type Pending struct {
	Kind    PendingKind `json:"kind"`
	Value   string      `json:"value,omitempty"`
	Message string      `json:"message"`
}

// Outcome reports whether a change was applied or is awaiting confirmation.
type Outcome struct {
	ConfirmationRequired bool   `json:"confirmation_required"`
	Message              string `json:"message,omitempty"`
}

// Editor is the single authoritative state of one channel edit. Layout and
// submission payload are derived on read. An Editor is not safe for
// concurrent use.
type Editor struct {
	resolver Resolver
	draft    Draft
	mode     Mode
	files    []ParsedKeyFile
	pending  *Pending
}

// NewCreateEditor starts from the create defaults.
func NewCreateEditor(resolver Resolver) *Editor {
	d := NewDraft(resolver.Catalog)
	return &Editor{
		resolver: resolver,
		draft:    d,
		mode:     CreateMode().Normalize(d.Type, d.Settings.VertexKeyType),
	}
}

// NewEditEditor starts from a hydrated record.
func NewEditEditor(resolver Resolver, d Draft) *Editor {
	d = d.Clone()
	d.Key = ""
	d.Models = NormalizeList(d.Models)
	d.Groups = NormalizeList(d.Groups)
	return &Editor{
		resolver: resolver,
		draft:    d,
		mode:     EditMode(d.MultiKey).Normalize(d.Type, d.Settings.VertexKeyType),
	}
}

// Draft returns a copy of the current draft.
func (e *Editor) Draft() Draft { return e.draft.Clone() }

// Mode returns the current mode.
func (e *Editor) Mode() Mode { return e.mode }

// Pending returns the parked change, if any.
func (e *Editor) Pending() *Pending {
	if e.pending == nil {
		return nil
	}
	p := *e.pending
	return &p
}

// KeyFiles returns the names of the kept key files.
func (e *Editor) KeyFiles() []string {
	out := make([]string, 0, len(e.files))
	for _, f := range e.files {
		out = append(out, f.Name)
	}
	return out
}

// SetSharedCache records whether the gateway cache is redis backed.
func (e *Editor) SetSharedCache(shared bool) { e.resolver.SharedCache = shared }

// Layout resolves the field layout for the current state.
func (e *Editor) Layout() Layout {
	return e.resolver.Resolve(e.draft.Type, e.mode, e.draft.Settings.VertexKeyType)
}

// Submission validates the draft and builds the single outgoing request.
func (e *Editor) Submission() (Submission, error) {
	return Validate(ValidateInput{Draft: e.draft, Mode: e.mode, KeyFiles: e.files})
}

// SetField applies one field change. A base URL ending in /v1 is parked and
// reported as requiring confirmation. Any call discards an earlier parked
// change.
func (e *Editor) SetField(name string, value any) (Outcome, error) {
	e.pending = nil
	d := &e.draft

	switch name {
	case FieldType:
		typ, err := intValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		if !KnownType(typ) {
			return Outcome{}, fmt.Errorf("%w: unknown channel type %d", ErrInvalidValue, typ)
		}
		e.changeType(typ)
	case FieldBaseURL:
		s, err := stringValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		if strings.HasSuffix(s, "/v1") {
			e.pending = &Pending{Kind: PendingBaseURL, Value: s, Message: baseURLV1Warning}
			return Outcome{ConfirmationRequired: true, Message: baseURLV1Warning}, nil
		}
		d.BaseURL = s
	case FieldModels:
		list, err := listValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		d.Models = NormalizeList(list)
	case FieldGroups:
		list, err := listValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		d.Groups = NormalizeList(list)
	case FieldPriority, FieldWeight:
		n, err := intValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		if n < 0 {
			return Outcome{}, fmt.Errorf("%w: %s must not be negative", ErrInvalidValue, name)
		}
		if name == FieldPriority {
			d.Priority = int64(n)
		} else {
			d.Weight = int64(n)
		}
	case FieldVertexKeyType:
		s, err := stringValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		e.changeVertexKeyType(VertexKeyType(s))
	case FieldKeyMode:
		s, err := stringValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		return e.SetKeyUpdateMode(KeyUpdateMode(s))
	case FieldMultiKeyMode:
		s, err := stringValue(name, value)
		if err != nil {
			return Outcome{}, err
		}
		return e.SetMultiKeyPolicy(MultiKeyPolicy(s))
	default:
		if target := e.stringField(name); target != nil {
			s, err := stringValue(name, value)
			if err != nil {
				return Outcome{}, err
			}
			*target = s
			return Outcome{}, nil
		}
		if target := e.boolField(name); target != nil {
			b, err := boolValue(name, value)
			if err != nil {
				return Outcome{}, err
			}
			*target = b
			return Outcome{}, nil
		}
		return Outcome{}, fmt.Errorf("%w: %s", ErrUnknownField, name)
	}
	return Outcome{}, nil
}

func (e *Editor) stringField(name string) *string {
	d := &e.draft
	switch name {
	case FieldName:
		return &d.Name
	case FieldKey:
		return &d.Key
	case FieldOther:
		return &d.Other
	case FieldOpenAIOrganization:
		return &d.OpenAIOrganization
	case FieldTestModel:
		return &d.TestModel
	case FieldTag:
		return &d.Tag
	case FieldRemark:
		return &d.Remark
	case FieldModelMapping:
		return &d.ModelMapping
	case FieldStatusCodeMapping:
		return &d.StatusCodeMapping
	case FieldParamOverride:
		return &d.ParamOverride
	case FieldHeaderOverride:
		return &d.HeaderOverride
	case FieldProxy:
		return &d.Extra.Proxy
	case FieldSystemPrompt:
		return &d.Extra.SystemPrompt
	case FieldAzureResponsesVersion:
		return &d.Settings.AzureResponsesVersion
	case FieldRegion:
		return &d.Settings.Region
	}
	return nil
}

func (e *Editor) boolField(name string) *bool {
	d := &e.draft
	switch name {
	case FieldAutoBan:
		return &d.AutoBan
	case FieldForceFormat:
		return &d.Extra.ForceFormat
	case FieldThinkingToContent:
		return &d.Extra.ThinkingToContent
	case FieldPassThroughBodyEnabled:
		return &d.Extra.PassThroughBodyEnabled
	case FieldSystemPromptOverride:
		return &d.Extra.SystemPromptOverride
	case FieldIsEnterpriseAccount:
		return &d.Settings.IsEnterpriseAccount
	}
	return nil
}

// changeType adopts provider defaults only when no models are selected.
func (e *Editor) changeType(typ int) {
	d := &e.draft
	d.Type = typ
	if len(d.Models) == 0 {
		d.Models = DefaultModels(e.resolver.Catalog, typ)
	}
	if p := LookupProvider(typ); p.DefaultBase != "" {
		d.BaseURL = p.DefaultBase
	}
	e.mode.Entry = KeyEntryText
	e.normalize()
}

func (e *Editor) changeVertexKeyType(keyType VertexKeyType) {
	keyType = normalizeVertexKeyType(keyType)
	e.draft.Settings.VertexKeyType = keyType
	if keyType == VertexKeyAPIKey {
		if !e.mode.IsEdit() {
			e.mode, _ = e.mode.SetBatch(false)
		}
		e.mode.Entry = KeyEntryText
		e.files = nil
	}
	e.normalize()
}

// normalize re-derives the key entry and drops key files the mode cannot use.
func (e *Editor) normalize() {
	e.mode = e.mode.Normalize(e.draft.Type, e.draft.Settings.VertexKeyType)
	if e.mode.Entry != KeyEntryFiles {
		e.files = nil
	}
}

// SetBatch toggles batch creation. Turning it off with several key files
// parks the change until confirmed.
func (e *Editor) SetBatch(on bool) (Outcome, error) {
	e.pending = nil
	if !on && e.mode.Batch() && len(e.files) > 1 {
		if e.mode.IsEdit() {
			return Outcome{}, fmt.Errorf("%w: batch is fixed when editing", ErrModeTransition)
		}
		e.pending = &Pending{Kind: PendingBatchOff, Message: batchOffWarning}
		return Outcome{ConfirmationRequired: true, Message: batchOffWarning}, nil
	}
	if on && e.draft.Type == TypeVertexAI && e.draft.Settings.VertexKeyType == VertexKeyAPIKey {
		return Outcome{}, fmt.Errorf("%w: batch creation is not supported for API key credentials", ErrModeTransition)
	}
	next, err := e.mode.SetBatch(on)
	if err != nil {
		return Outcome{}, err
	}
	wasBatch := e.mode.Batch()
	e.mode = next
	if on && !wasBatch && e.draft.Type == TypeVertexAI {
		e.draft.Key = ""
	}
	e.normalize()
	return Outcome{}, nil
}

// SetAggregation toggles key aggregation of a batch creation.
func (e *Editor) SetAggregation(on bool) (Outcome, error) {
	e.pending = nil
	next, err := e.mode.SetAggregation(on)
	if err != nil {
		return Outcome{}, err
	}
	e.mode = next
	return Outcome{}, nil
}

// SetMultiKeyPolicy selects random or polling for an aggregated channel.
func (e *Editor) SetMultiKeyPolicy(policy MultiKeyPolicy) (Outcome, error) {
	e.pending = nil
	next, err := e.mode.SetPolicy(policy)
	if err != nil {
		return Outcome{}, err
	}
	e.mode = next
	if e.mode.Kind == ModeEditMultiKey {
		e.draft.MultiKey.Policy = policy
	}
	return Outcome{}, nil
}

// SetKeyUpdateMode selects append or replace for a multi-key channel.
func (e *Editor) SetKeyUpdateMode(update KeyUpdateMode) (Outcome, error) {
	e.pending = nil
	next, err := e.mode.SetKeyUpdate(update)
	if err != nil {
		return Outcome{}, err
	}
	e.mode = next
	return Outcome{}, nil
}

// SetManualKeyInput switches JSON credentials between pasted text and files.
// The abandoned input is cleared.
func (e *Editor) SetManualKeyInput(on bool) (Outcome, error) {
	e.pending = nil
	if e.draft.Type != TypeVertexAI || e.draft.Settings.VertexKeyType != VertexKeyJSON {
		return Outcome{}, fmt.Errorf("%w: manual input applies to JSON credentials only", ErrModeTransition)
	}
	next, err := e.mode.SetManualInput(on)
	if err != nil {
		return Outcome{}, err
	}
	e.mode = next
	if on {
		e.files = nil
	} else {
		e.draft.Key = ""
	}
	e.normalize()
	return Outcome{}, nil
}

// Confirm applies the parked change.
func (e *Editor) Confirm() (Outcome, error) {
	if e.pending == nil {
		return Outcome{}, ErrNothingPending
	}
	p := e.pending
	e.pending = nil
	switch p.Kind {
	case PendingBaseURL:
		e.draft.BaseURL = p.Value
	case PendingBatchOff:
		if len(e.files) > 1 {
			e.files = e.files[:1]
		}
		e.mode, _ = e.mode.SetBatch(false)
		e.normalize()
	}
	return Outcome{}, nil
}

// Cancel discards the parked change and leaves the draft untouched.
func (e *Editor) Cancel() error {
	if e.pending == nil {
		return ErrNothingPending
	}
	e.pending = nil
	return nil
}

// AddKeyFiles parses uploaded credential files. Outside batch mode only the
// most recently added valid file is kept.
func (e *Editor) AddKeyFiles(ctx context.Context, files []KeyFile) (KeyFileReport, error) {
	if e.mode.Entry != KeyEntryFiles {
		return KeyFileReport{}, ErrKeyFilesNotAccepted
	}
	parsed, report, err := ParseKeyFiles(ctx, files)
	if err != nil {
		return KeyFileReport{}, err
	}
	e.ApplyKeyFiles(parsed)
	return report, nil
}

// ApplyKeyFiles stores already parsed key files.
func (e *Editor) ApplyKeyFiles(parsed []ParsedKeyFile) {
	e.pending = nil
	if len(parsed) == 0 {
		return
	}
	if !e.mode.Batch() {
		e.files = []ParsedKeyFile{parsed[len(parsed)-1]}
		return
	}
	e.files = append(e.files, parsed...)
}

// ClearKeyFiles drops every kept key file.
func (e *Editor) ClearKeyFiles() {
	e.files = nil
}

func stringValue(name string, value any) (string, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case nil:
		return "", nil
	default:
		return "", fmt.Errorf("%w: %s expects a string", ErrInvalidValue, name)
	}
}

func boolValue(name string, value any) (bool, error) {
	switch v := value.(type) {
	case bool:
		return v, nil
	case float64:
		return v != 0, nil
	case int:
		return v != 0, nil
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return false, fmt.Errorf("%w: %s expects a boolean", ErrInvalidValue, name)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%w: %s expects a boolean", ErrInvalidValue, name)
	}
}

func intValue(name string, value any) (int, error) {
	switch v := value.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("%w: %s expects an integer", ErrInvalidValue, name)
		}
		return int(v), nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return 0, fmt.Errorf("%w: %s expects an integer", ErrInvalidValue, name)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%w: %s expects an integer", ErrInvalidValue, name)
	}
}

func listValue(name string, value any) ([]string, error) {
	switch v := value.(type) {
	case []string:
		return v, nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%w: %s expects a list of strings", ErrInvalidValue, name)
			}
			out = append(out, s)
		}
		return out, nil
	case string:
		return SplitList(v), nil
	case nil:
		return []string{}, nil
	default:
		return nil, fmt.Errorf("%w: %s expects a list of strings", ErrInvalidValue, name)
	}
}
