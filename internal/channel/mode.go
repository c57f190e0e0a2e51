package channel

import (
	"errors"
	"fmt"
)

// ModeKind discriminates the editor's creation or edit flavor.
type ModeKind string

const (
	ModeCreateSingle    ModeKind = "create_single"
	ModeCreateBatch     ModeKind = "create_batch"
	ModeCreateAggregate ModeKind = "create_aggregate"
	ModeEdit            ModeKind = "edit"
	ModeEditMultiKey    ModeKind = "edit_multi_key"
)

// KeyEntry is how the credential is supplied.
type KeyEntry string

const (
	KeyEntryText       KeyEntry = "text"
	KeyEntryManualJSON KeyEntry = "manual_json"
	KeyEntryFiles      KeyEntry = "files"
)

// Wire values of the create request `mode` field.
const (
	wireModeSingle        = "single"
	wireModeBatch         = "batch"
	wireModeMultiToSingle = "multi_to_single"
)

// ErrModeTransition is returned for a mode change the current mode forbids.
var ErrModeTransition = errors.New("channel: mode transition not allowed")

// Mode is the single discriminated edit mode. The zero value is not valid;
// use CreateMode or EditMode.
type Mode struct {
	Kind      ModeKind       `json:"kind"`
	Policy    MultiKeyPolicy `json:"multi_key_mode,omitempty"`
	KeyUpdate KeyUpdateMode  `json:"key_mode,omitempty"`
	Entry     KeyEntry       `json:"key_entry"`
}

// CreateMode is the mode of a fresh create session.
func CreateMode() Mode {
	return Mode{Kind: ModeCreateSingle, Entry: KeyEntryText}
}

// EditMode is the mode of an edit session for the loaded channel.
func EditMode(multi MultiKey) Mode {
	if multi.IsMulti {
		policy := multi.Policy
		if policy != PolicyPolling {
			policy = PolicyRandom
		}
		return Mode{Kind: ModeEditMultiKey, Policy: policy, KeyUpdate: KeyUpdateAppend, Entry: KeyEntryText}
	}
	return Mode{Kind: ModeEdit, Entry: KeyEntryText}
}

// IsEdit reports whether the mode updates an existing channel.
func (m Mode) IsEdit() bool {
	return m.Kind == ModeEdit || m.Kind == ModeEditMultiKey
}

// Batch reports whether keys are entered one per line or as several files.
func (m Mode) Batch() bool {
	switch m.Kind {
	case ModeCreateBatch, ModeCreateAggregate, ModeEditMultiKey:
		return true
	default:
		return false
	}
}

// Aggregated reports whether the keys form one multi-key channel.
func (m Mode) Aggregated() bool {
	return m.Kind == ModeCreateAggregate || m.Kind == ModeEditMultiKey
}

// WireMode is the create request `mode` value.
func (m Mode) WireMode() string {
	switch m.Kind {
	case ModeCreateBatch:
		return wireModeBatch
	case ModeCreateAggregate:
		return wireModeMultiToSingle
	default:
		return wireModeSingle
	}
}

// SetBatch toggles batch creation. Leaving batch drops aggregation.
func (m Mode) SetBatch(on bool) (Mode, error) {
	if m.IsEdit() {
		return m, fmt.Errorf("%w: batch is fixed when editing", ErrModeTransition)
	}
	if on {
		if m.Kind == ModeCreateSingle {
			m.Kind = ModeCreateBatch
		}
		if m.Entry == KeyEntryManualJSON {
			m.Entry = KeyEntryFiles
		}
		return m, nil
	}
	m.Kind = ModeCreateSingle
	m.Policy = ""
	return m, nil
}

// SetAggregation toggles key aggregation; only valid in batch creation.
func (m Mode) SetAggregation(on bool) (Mode, error) {
	switch m.Kind {
	case ModeCreateBatch, ModeCreateAggregate:
	default:
		return m, fmt.Errorf("%w: aggregation requires batch creation", ErrModeTransition)
	}
	if on {
		m.Kind = ModeCreateAggregate
		if m.Policy == "" {
			m.Policy = PolicyRandom
		}
		return m, nil
	}
	m.Kind = ModeCreateBatch
	m.Policy = ""
	return m, nil
}

// SetPolicy picks the key selection policy of an aggregated channel.
func (m Mode) SetPolicy(policy MultiKeyPolicy) (Mode, error) {
	if !m.Aggregated() {
		return m, fmt.Errorf("%w: multi key mode requires aggregation", ErrModeTransition)
	}
	if policy != PolicyRandom && policy != PolicyPolling {
		return m, fmt.Errorf("%w: unknown multi key mode %q", ErrModeTransition, policy)
	}
	m.Policy = policy
	return m, nil
}

// SetKeyUpdate selects append or replace for keys sent to a multi-key channel.
func (m Mode) SetKeyUpdate(update KeyUpdateMode) (Mode, error) {
	if m.Kind != ModeEditMultiKey {
		return m, fmt.Errorf("%w: key mode applies to multi-key channels only", ErrModeTransition)
	}
	if update != KeyUpdateAppend && update != KeyUpdateReplace {
		return m, fmt.Errorf("%w: unknown key mode %q", ErrModeTransition, update)
	}
	m.KeyUpdate = update
	return m, nil
}

// SetManualInput switches JSON credentials between pasted text and files.
func (m Mode) SetManualInput(on bool) (Mode, error) {
	if on && m.Batch() {
		return m, fmt.Errorf("%w: batch creation only accepts key files", ErrModeTransition)
	}
	if on {
		m.Entry = KeyEntryManualJSON
	} else {
		m.Entry = KeyEntryFiles
	}
	return m, nil
}

// Normalize fixes the key entry for the provider and the Vertex key format so
// impossible combinations cannot be represented.
func (m Mode) Normalize(typ int, keyType VertexKeyType) Mode {
	if typ == TypeVertexAI && normalizeVertexKeyType(keyType) == VertexKeyJSON {
		switch {
		case m.Batch():
			m.Entry = KeyEntryFiles
		case m.Entry != KeyEntryManualJSON:
			m.Entry = KeyEntryFiles
		}
		return m
	}
	m.Entry = KeyEntryText
	return m
}
