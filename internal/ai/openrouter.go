package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const DefaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"

// OpenRouterOpts configures an OpenRouterClient.
type OpenRouterOpts struct {
	BaseURL     string
	APIKey      string
	Model       string
	Temperature float64
}

// OpenRouterClient implements Client against an OpenAI-compatible
// chat-completions API (OpenRouter, Flock, or any compatible endpoint).
type OpenRouterClient struct {
	httpClient  *resty.Client
	model       string
	temperature float64
}

// NewOpenRouterClient creates a completion client for an OpenAI-compatible API.
func NewOpenRouterClient(opts OpenRouterOpts) *OpenRouterClient {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = DefaultOpenRouterBaseURL
	}
	httpClient := resty.New().
		SetBaseURL(baseURL).
		SetAuthToken(opts.APIKey).
		SetHeader("Content-Type", "application/json")
	return &OpenRouterClient{
		httpClient:  httpClient,
		model:       opts.Model,
		temperature: opts.Temperature,
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int64 `json:"prompt_tokens"`
		CompletionTokens int64 `json:"completion_tokens"`
		TotalTokens      int64 `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Invoke implements the Client interface.
func (c *OpenRouterClient) Invoke(ctx context.Context, systemPrompt string, turns []Turn) (string, error) {
	messages := []chatMessage{{Role: "system", Content: systemPrompt}}
	imageCount := 0

	for _, turn := range turns {
		var parts []chatContentPart
		for _, p := range turn.Parts {
			if p.IsImage() {
				imageCount++
				dataURL := fmt.Sprintf("data:%s;base64,%s", p.MIMEType, base64.StdEncoding.EncodeToString(p.Image))
				parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}})
			} else {
				parts = append(parts, chatContentPart{Type: "text", Text: p.Text})
			}
		}
		messages = append(messages, chatMessage{Role: turn.Role, Content: parts})
	}

	var result chatResponse
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetBody(chatRequest{Model: c.model, Messages: messages, Temperature: c.temperature}).
		SetResult(&result).
		Post("/chat/completions")
	if err != nil {
		return "", fmt.Errorf("chat completion request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("chat completion failed: %d - %s", resp.StatusCode(), resp.String())
	}
	if result.Error != nil {
		return "", fmt.Errorf("chat completion failed: %s", result.Error.Message)
	}
	if len(result.Choices) == 0 {
		return "", fmt.Errorf("no response from completion api")
	}

	log.Info().
		Str("model", c.model).
		Int("imageCount", imageCount).
		Int64("inputTokens", result.Usage.PromptTokens).
		Int64("outputTokens", result.Usage.CompletionTokens).
		Msg("completion llm call")

	return result.Choices[0].Message.Content, nil
}
