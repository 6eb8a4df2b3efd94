// Package providers registers LLM provider adapters.
// Import this package with a blank identifier to activate all providers:
//
//	import _ "github.com/ravi-parthasarathy/nodeflow/pkg/llm/providers"
package providers

import (
	"context"
	"errors"
	"fmt"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

func init() {
	llm.RegisterProvider("anthropic", func(model string) (llm.Client, error) {
		return newAnthropicClient(model)
	})
}

type anthropicClient struct {
	sdk   anthropicsdk.Client
	model string
}

func newAnthropicClient(model string) (*anthropicClient, error) {
	sdk := anthropicsdk.NewClient(option.WithAPIKey("")) // reads ANTHROPIC_API_KEY automatically
	return &anthropicClient{sdk: sdk, model: model}, nil
}

// Complete performs a blocking generation with automatic retry on transient errors.
func (a *anthropicClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	err := llm.WithRetry(ctx, 4, func() error {
		var innerErr error
		resp, innerErr = a.doComplete(ctx, req)
		return innerErr
	})
	return resp, err
}

func (a *anthropicClient) doComplete(ctx context.Context, req llm.Request) (llm.Response, error) {
	model := req.Model
	if model == "" {
		model = a.model
	}
	if model == "" {
		return llm.Response{}, fmt.Errorf("anthropic: no model specified")
	}

	blocks := []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(req.Prompt)}
	for _, img := range req.Images {
		media, data := splitImagePayload(img)
		blocks = append(blocks, anthropicsdk.NewImageBlockBase64(media, data))
	}

	maxTokens := int64(defaultMaxTokens)
	if req.MaxTokens > 0 {
		maxTokens = int64(req.MaxTokens)
	}

	params := anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: maxTokens,
		Messages:  []anthropicsdk.MessageParam{anthropicsdk.NewUserMessage(blocks...)},
	}
	if req.System != "" {
		params.System = []anthropicsdk.TextBlockParam{{Text: req.System}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropicsdk.Float(float64(req.Temperature))
	}

	msg, err := a.sdk.Messages.New(ctx, params)
	if err != nil {
		return llm.Response{}, mapAnthropicError(err)
	}
	return convertAnthropicResponse(msg), nil
}

// Stream sends events over a channel. The channel is closed when done.
// For simplicity, this implementation calls Complete and emits the result as a stream.
func (a *anthropicClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		resp, err := a.Complete(ctx, req)
		if err != nil {
			return
		}
		if resp.Text != "" {
			ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: resp.Text}
		}
		ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp}
	}()
	return ch, nil
}

func convertAnthropicResponse(msg *anthropicsdk.Message) llm.Response {
	var text string
	for _, b := range msg.Content {
		if b.Type == "text" {
			text += b.Text
		}
	}

	stop := llm.StopReasonEndTurn
	if msg.StopReason == anthropicsdk.StopReasonMaxTokens {
		stop = llm.StopReasonMaxTokens
	}

	return llm.Response{
		Text:       text,
		StopReason: stop,
		Usage: llm.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}
}

func mapAnthropicError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *anthropicsdk.Error
	if errors.As(err, &apiErr) {
		base := llm.LLMError{Provider: "anthropic", Code: apiErr.StatusCode, Message: apiErr.Error(), Cause: err}
		switch apiErr.StatusCode {
		case 429:
			return &llm.RateLimitError{LLMError: base}
		case 401, 403:
			return &llm.AuthError{LLMError: base}
		case 400:
			return &llm.ContextLengthError{LLMError: base}
		case 500, 502, 503, 529:
			return &llm.ServerError{LLMError: base}
		}
	}
	return fmt.Errorf("anthropic: %w", err)
}
