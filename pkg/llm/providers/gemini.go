package providers

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
)

func init() {
	llm.RegisterProvider("gemini", func(model string) (llm.Client, error) {
		return newGeminiClient(model)
	})
}

type geminiClient struct {
	sdk   *genai.Client
	model string
}

func newGeminiClient(model string) (*geminiClient, error) {
	key := os.Getenv("GEMINI_API_KEY")
	if key == "" {
		return nil, fmt.Errorf("gemini: GEMINI_API_KEY environment variable not set")
	}
	// genai.NewClient requires a context; use Background for construction.
	sdk, err := genai.NewClient(context.Background(), option.WithAPIKey(key))
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	return &geminiClient{sdk: sdk, model: model}, nil
}

// Complete performs a blocking generation with automatic retry on transient errors.
func (c *geminiClient) Complete(ctx context.Context, req llm.Request) (llm.Response, error) {
	var resp llm.Response
	err := llm.WithRetry(ctx, 4, func() error {
		var innerErr error
		resp, innerErr = c.doComplete(ctx, req)
		return innerErr
	})
	return resp, err
}

func (c *geminiClient) doComplete(ctx context.Context, req llm.Request) (llm.Response, error) {
	name := req.Model
	if name == "" {
		name = c.model
	}
	if name == "" {
		return llm.Response{}, fmt.Errorf("gemini: no model specified")
	}
	model := c.sdk.GenerativeModel(name)

	if req.MaxTokens > 0 {
		n := int32(req.MaxTokens)
		model.MaxOutputTokens = &n
	}
	if req.Temperature > 0 {
		model.SetTemperature(req.Temperature)
	}
	if req.JSONMode {
		model.ResponseMIMEType = "application/json"
	}

	// System prompt goes to SystemInstruction, not the message parts.
	if req.System != "" {
		model.SystemInstruction = &genai.Content{
			Parts: []genai.Part{genai.Text(req.System)},
		}
	}

	parts := []genai.Part{genai.Text(req.Prompt)}
	for _, img := range req.Images {
		media, data := splitImagePayload(img)
		raw, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			return llm.Response{}, fmt.Errorf("gemini: decode image payload: %w", err)
		}
		parts = append(parts, genai.ImageData(strings.TrimPrefix(media, "image/"), raw))
	}

	apiResp, err := model.GenerateContent(ctx, parts...)
	if err != nil {
		return llm.Response{}, mapGeminiError(err)
	}
	return convertGeminiResponse(apiResp), nil
}

// Stream emits text deltas then a final complete event.
func (c *geminiClient) Stream(ctx context.Context, req llm.Request) (<-chan llm.StreamEvent, error) {
	ch := make(chan llm.StreamEvent, 64)
	go func() {
		defer close(ch)
		resp, err := c.doComplete(ctx, req)
		if err != nil {
			ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &llm.Response{}}
			return
		}
		if resp.Text != "" {
			ch <- llm.StreamEvent{Type: llm.StreamEventDelta, Text: resp.Text}
		}
		ch <- llm.StreamEvent{Type: llm.StreamEventComplete, Response: &resp}
	}()
	return ch, nil
}

// ─── response conversion ─────────────────────────────────────────────────────

func convertGeminiResponse(resp *genai.GenerateContentResponse) llm.Response {
	out := llm.Response{StopReason: llm.StopReasonEndTurn}

	if len(resp.Candidates) > 0 {
		cand := resp.Candidates[0]
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if v, ok := part.(genai.Text); ok {
					out.Text += string(v)
				}
			}
		}
		switch cand.FinishReason {
		case genai.FinishReasonMaxTokens:
			out.StopReason = llm.StopReasonMaxTokens
		case genai.FinishReasonSafety:
			out.StopReason = llm.StopReasonFilter
		}
	}

	if resp.UsageMetadata != nil {
		out.Usage.InputTokens = int(resp.UsageMetadata.PromptTokenCount)
		out.Usage.OutputTokens = int(resp.UsageMetadata.CandidatesTokenCount)
	}
	return out
}

// ─── error mapping ────────────────────────────────────────────────────────────

func mapGeminiError(err error) error {
	if err == nil {
		return nil
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		base := llm.LLMError{
			Provider: "gemini",
			Code:     apiErr.Code,
			Message:  apiErr.Message,
			Cause:    err,
		}
		switch apiErr.Code {
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
	return fmt.Errorf("gemini: %w", err)
}
