package completion

import "context"

// Client is the interface consumed by the turn pipeline. Implementations
// must be safe for concurrent use.
type Client interface {
	// Classify extracts structured intent from a caller utterance.
	Classify(ctx context.Context, req ClassifyRequest) (*Classification, error)

	// Generate produces the assistant's reply for the current turn.
	Generate(ctx context.Context, req GenerateRequest) (*Generation, error)

	// Close releases connections held by the client.
	Close() error
}

// ClassifyRequest asks the model to distill one utterance into intent,
// entities, and keywords.
type ClassifyRequest struct {
	// TenantID attributes token usage. Required.
	TenantID string

	// Utterance is the transcribed caller speech. Required.
	Utterance string

	// Instructions is optional tenant-specific guidance appended to the
	// classification prompt (business vocabulary, known intents).
	Instructions string
}

// GenerateRequest asks the model for the reply text of a turn.
type GenerateRequest struct {
	// TenantID attributes token usage. Required.
	TenantID string

	// Utterance is the transcribed caller speech. Required.
	Utterance string

	// Classification is the structured read of the utterance, when
	// classification succeeded. May be nil; generation then works from
	// the raw utterance alone.
	Classification *Classification

	// Instructions is optional tenant-specific guidance (tone, facts the
	// assistant may state, routing hints).
	Instructions string
}

// Classification is the structured interpretation of one utterance.
type Classification struct {
	// Intent is a short lowercase label such as "billing_question".
	Intent string `json:"intent"`

	// Entities holds extracted values keyed by field name, for example
	// "callback_number" or "street_address".
	Entities map[string]string `json:"entities,omitempty"`

	// Keywords are salient terms to feed the triage matcher alongside
	// the raw utterance.
	Keywords []string `json:"keywords,omitempty"`

	// Confidence is the model's self-reported certainty in [0,1].
	Confidence float64 `json:"confidence"`

	// ShortCircuit indicates the model already produced a complete reply
	// and the generation call can be skipped.
	ShortCircuit bool `json:"short_circuit"`

	// Response is the ready reply when ShortCircuit is set.
	Response string `json:"response,omitempty"`

	// Usage is the token accounting for the classification call.
	Usage Usage `json:"-"`
}

// Generation is the model's reply for a turn.
type Generation struct {
	// Text is the proposed assistant reply, before policy application.
	Text string

	// Usage is the token accounting for the generation call.
	Usage Usage
}

// Usage counts tokens consumed by one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add accumulates counts from another call, for per-turn totals.
func (u *Usage) Add(other Usage) {
	u.PromptTokens += other.PromptTokens
	u.CompletionTokens += other.CompletionTokens
	u.TotalTokens += other.TotalTokens
}
