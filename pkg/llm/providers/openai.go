package providers

import (
	"context"
	"errors"
	"fmt"
	"os"

	openai "github.com/sashabaranov/go-openai"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

func init() {
	llm.RegisterProvider("openai", func(model string) (llm.Client, error) {
		return newOpenAIClient(model)
	})
}

const defaultMaxTokens = 4096

// openaiClient speaks the OpenAI chat-completion protocol. It also backs the
// ollama provider, which points the same SDK at a different base URL.
type openaiClient struct {
	sdk      *openai.Client
	model    string
	provider string // error attribution: "openai" or "ollama"
}

func newOpenAIClient(model string) (*openaiClient, error) {
	key := os.Getenv("OPENAI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("openai: OPENAI_API_KEY environment variable not set")
	}
	return &openaiClient{sdk: openai.NewClient(key), model: model, provider: "openai"}, nil
}

// Complete performs a blocking generation with automatic retry on transient errors.
func (c *openaiClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	err := llm.WithRetry(ctx, 4, func() error {
		var innerErr error
		resp, innerErr = c.doComplete(ctx, req)
		return innerErr
	})
	return resp, err
}

func (c *openaiClient) doComplete(ctx context.Context, req llm.Request) (llm.Response, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return llm.Response{}, err
	}
	resp, err := c.sdk.CreateChatCompletion(ctx, params)
	if err != nil {
		return llm.Response{}, mapOpenAIError(c.provider, err)
	}
	return convertOpenAIResponse(resp), nil
}

// Stream emits text deltas then a final complete event carrying the
// accumulated text and, when the server reports it, token usage.
func (c *openaiClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	params, err := c.buildParams(req)
	if err != nil {
		return nil, err
	}
	params.Stream = true
	params.StreamOptions = &openai.StreamOptions{IncludeUsage: true}

	stream, err := c.sdk.CreateChatCompletionStream(ctx, params)
	if err != nil {
		return nil, mapOpenAIError(c.provider, err)
	}

	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		defer func() { _ = stream.Close() }()

		final := llm.Response{StopReason: llm.StopReasonEndTurn}
		for {
			chunk, err := stream.Recv()
			if err != nil {
				break
			}
			if chunk.Usage != nil {
				final.Usage = llm.Usage{
					InputTokens:  chunk.Usage.PromptTokens,
					OutputTokens: chunk.Usage.CompletionTokens,
				}
			}
			if len(chunk.Choices) == 0 {
				continue
			}
			choice := chunk.Choices[0]
			if choice.Delta.Content != "" {
				final.Text += choice.Delta.Content
				ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: choice.Delta.Content}
			}
			if choice.FinishReason != "" {
				final.StopReason = mapFinishReason(choice.FinishReason)
			}
		}
		ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &final}
	}()
	return ch, nil
}

// buildParams resolves the model and converts the unified request to the
// chat-completion shape.
func (c *openaiClient) buildParams(req llm.Request) (openai.ChatCompletionRequest, error) {
	model := req.Model
	if model == "" {
		model = c.model
	}
	if model == "" {
		return openai.ChatCompletionRequest{}, fmt.Errorf("%s: no model specified", c.provider)
	}

	maxTokens := defaultMaxTokens
	if req.MaxTokens > 0 {
		maxTokens = req.MaxTokens
	}

	params := openai.ChatCompletionRequest{
		Model:     model,
		MaxTokens: maxTokens,
		Messages:  buildChatMessages(req),
	}
	if req.Temperature > 0 {
		params.Temperature = req.Temperature
	}
	if req.JSONMode {
		params.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}
	return params, nil
}

// ─── message conversion ───────────────────────────────────────────────────────

// buildChatMessages converts the unified request into chat messages. Image
// payloads turn the user turn into a multi-part message with data URIs.
func buildChatMessages(req llm.Request) []openai.ChatCompletionMessage {
	var out []openai.ChatCompletionMessage
	if req.System != "" {
		out = append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}

	if len(req.Images) == 0 {
		return append(out, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleUser,
			Content: req.Prompt,
		})
	}

	parts := []openai.ChatMessagePart{{
		Type: openai.ChatMessagePartTypeText,
		Text: req.Prompt,
	}}
	for _, img := range req.Images {
		parts = append(parts, openai.ChatMessagePart{
			Type:     openai.ChatMessagePartTypeImageURL,
			ImageURL: &openai.ChatMessageImageURL{URL: imageDataURI(img)},
		})
	}
	return append(out, openai.ChatCompletionMessage{
		Role:         openai.ChatMessageRoleUser,
		MultiContent: parts,
	})
}

func convertOpenAIResponse(resp openai.ChatCompletionResponse) llm.Response {
	out := llm.Response{
		StopReason: llm.StopReasonEndTurn,
		Usage: llm.Usage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}
	if len(resp.Choices) > 0 {
		out.Text = resp.Choices[0].Message.Content
		out.StopReason = mapFinishReason(resp.Choices[0].FinishReason)
	}
	return out
}

func mapFinishReason(fr openai.FinishReason) llm.StopReason {
	switch fr {
	case openai.FinishReasonLength:
		return llm.StopReasonMaxTokens
	case openai.FinishReasonContentFilter:
		return llm.StopReasonFilter
	default:
		return llm.StopReasonEndTurn
	}
}

// ─── error mapping ────────────────────────────────────────────────────────────

func mapOpenAIError(provider string, err error) error {
	if err == nil {
		return nil
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		base := llm.LLMError{
			Provider: provider,
			Code:     apiErr.HTTPStatusCode,
			Message:  apiErr.Message,
			Cause:    err,
		}
		switch apiErr.HTTPStatusCode {
		case 429:
			return &llm.RateLimitError{LLMError: base}
		case 401, 403:
			return &llm.AuthError{LLMError: base}
		case 400:
			return &llm.ContextLengthError{LLMError: base}
		case 500, 502, 503:
			return &llm.ServerError{LLMError: base}
		default:
			return &base
		}
	}
	return fmt.Errorf("%s: %w", provider, err)
}
