package session

import (
	"maps"
	"slices"
	"time"
)

// State is the per-call state that survives across turns. It is created on
// the call's first turn and discarded when the call ends.
type State struct {
	// CallID identifies the call. Store implementations key on it.
	CallID string `json:"call_id"`

	// TenantID identifies the tenant the call belongs to.
	TenantID string `json:"tenant_id"`

	// TurnCount is the number of turns processed so far, including the
	// current one. The pipeline increments it at turn start.
	TurnCount int `json:"turn_count"`

	// Misunderstandings counts consecutive turns whose utterance could
	// not be classified. Reset by RecordUnderstanding.
	Misunderstandings int `json:"misunderstandings"`

	// SilentTurns counts consecutive empty-input turns. Reset by
	// RecordSpeech.
	SilentTurns int `json:"silent_turns"`

	// LastClassification is the most recent successful triage
	// classification.
	LastClassification string `json:"last_classification,omitempty"`

	// LastAction is the action the previous turn resolved to.
	LastAction string `json:"last_action,omitempty"`

	// CollectedFields holds information gathered during the call (name,
	// callback number, address) for the confirmation readback.
	CollectedFields map[string]string `json:"collected_fields,omitempty"`

	// Flags are review markers raised during the call, e.g. by flag-only
	// edge cases.
	Flags []string `json:"flags,omitempty"`

	// QueuedInterruptions holds non-urgent barge-in fragments waiting to
	// be processed once the agent finishes speaking.
	QueuedInterruptions []string `json:"queued_interruptions,omitempty"`

	// StartedAt is when the call's first turn created the state.
	StartedAt time.Time `json:"started_at"`

	// UpdatedAt is stamped by Store.Save.
	UpdatedAt time.Time `json:"updated_at"`
}

// NewState creates fresh state for a call's first turn.
func NewState(callID, tenantID string) *State {
	now := time.Now().UTC()
	return &State{
		CallID:    callID,
		TenantID:  tenantID,
		StartedAt: now,
		UpdatedAt: now,
	}
}

// Clone returns a deep copy, so stored state cannot be mutated behind the
// store's back.
func (s *State) Clone() *State {
	cp := *s
	cp.CollectedFields = maps.Clone(s.CollectedFields)
	cp.Flags = slices.Clone(s.Flags)
	cp.QueuedInterruptions = slices.Clone(s.QueuedInterruptions)
	return &cp
}

// SetField records one collected field, overwriting any earlier value.
func (s *State) SetField(name, value string) {
	if s.CollectedFields == nil {
		s.CollectedFields = make(map[string]string)
	}
	s.CollectedFields[name] = value
}

// AddFlag raises a review flag once; repeats are ignored.
func (s *State) AddFlag(flag string) {
	if !slices.Contains(s.Flags, flag) {
		s.Flags = append(s.Flags, flag)
	}
}

// QueueInterruption holds a non-urgent barge-in fragment for later turns.
func (s *State) QueueInterruption(fragment string) {
	s.QueuedInterruptions = append(s.QueuedInterruptions, fragment)
}

// DrainInterruptions returns the queued fragments and clears the queue.
func (s *State) DrainInterruptions() []string {
	q := s.QueuedInterruptions
	s.QueuedInterruptions = nil
	return q
}
