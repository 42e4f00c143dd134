package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

// Client calls an OpenAI-compatible chat completions API (OpenRouter by
// default). All pipeline stages share one client; the model is chosen
// per request.
type Client struct {
	client   *resty.Client
	endpoint string
}

// Config holds configuration for the completion provider.
type Config struct {
	BaseURL  string
	APIKey   string
	SiteURL  string // sent as HTTP-Referer for OpenRouter attribution
	SiteName string // sent as X-Title for OpenRouter attribution
	Timeout  time.Duration
}

// Request is one completion call: a model, a system prompt for the agent
// role, and the accumulated stage input as the user message.
type Request struct {
	Model        string
	SystemPrompt string
	UserContent  string
	Temperature  float64
	MaxTokens    int
}

// NewClient creates a new completion provider client.
func NewClient(cfg *Config) *Client {
	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	if cfg.SiteURL != "" {
		client.SetHeader("HTTP-Referer", cfg.SiteURL)
	}
	if cfg.SiteName != "" {
		client.SetHeader("X-Title", cfg.SiteName)
	}

	// Every call carries a bounded timeout; exceeding it is a stage
	// failure eligible for retry, not a hang.
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client.SetTimeout(timeout)

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://openrouter.ai/api/v1"
	}

	return &Client{
		client:   client,
		endpoint: baseURL + "/chat/completions",
	}
}

// OpenAI-compatible Chat Completion API request/response structures
type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature,omitempty"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Complete generates text for one pipeline stage.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - req: model, system prompt, and user content for the call.
//
// Returns:
//   - string: generated completion text.
//   - error: non-nil if the API request fails or returns no content.
func (c *Client) Complete(ctx context.Context, req *Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.SystemPrompt != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.SystemPrompt})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.UserContent})

	body := chatRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}

	var resp chatResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(&resp).
		Post(c.endpoint)

	if err != nil {
		return "", fmt.Errorf("failed to call completion API: %w", err)
	}

	if httpResp.StatusCode() < 200 || httpResp.StatusCode() >= 300 {
		errorMsg := fmt.Sprintf("HTTP %d", httpResp.StatusCode())
		if resp.Error != nil {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), resp.Error.Message)
		} else if len(httpResp.Body()) > 0 {
			errorMsg = fmt.Sprintf("HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
		}
		return "", fmt.Errorf("completion API returned error: %s", errorMsg)
	}

	if resp.Error != nil {
		return "", fmt.Errorf("completion API error: %s", resp.Error.Message)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in completion response (status: %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}
