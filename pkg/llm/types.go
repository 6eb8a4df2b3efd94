package llm

// Request is the unified input to a model call.
type Request struct {
	// Model overrides the client's bound default model when non-empty.
	Model string `json:"model,omitempty"`
	// System is the system prompt, kept separate from the user prompt
	// because providers disagree about where it goes.
	System string `json:"system,omitempty"`
	// Prompt is the user-turn text.
	Prompt string `json:"prompt"`
	// Images holds base64-encoded image payloads (optionally full data:
	// URIs) attached to the user turn for vision models.
	Images []string `json:"images,omitempty"`
	// Temperature is sent when > 0; 0 leaves the provider default.
	Temperature float32 `json:"temperature,omitempty"`
	// MaxTokens caps the response length; 0 uses the client default.
	MaxTokens int `json:"max_tokens,omitempty"`
	// JSONMode asks the provider for a JSON object response where the
	// provider supports it; others ignore the flag.
	JSONMode bool `json:"json_mode,omitempty"`
}

// StopReason explains why generation stopped.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonFilter    StopReason = "filter"
)

// Usage reports token counts.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Response is the unified output of a model call.
type Response struct {
	Text       string     `json:"text"`
	StopReason StopReason `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// StreamEventType identifies a streaming event.
type StreamEventType string

const (
	StreamEventDelta    StreamEventType = "delta"
	StreamEventComplete StreamEventType = "complete"
)

// StreamEvent is one chunk emitted during streaming generation.
type StreamEvent struct {
	Type     StreamEventType `json:"type"`
	Text     string          `json:"text,omitempty"`
	Response *Response       `json:"response,omitempty"`
}
