package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/lukaiqi/educhat/internal/utils"
)

const defaultHTTPTimeout = 30 * time.Second

type httpDoer interface {
	Do(*http.Request) (*http.Response, error)
}

// Client calls an OpenAI-compatible chat completions endpoint.
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	client      httpDoer
	logger      *zap.SugaredLogger
}

func NewClient(cfg utils.OpenAIConfig, logger *zap.SugaredLogger) *Client {
	endpoint := strings.TrimRight(strings.TrimSpace(cfg.Endpoint), "/")
	if endpoint == "" {
		endpoint = "https://api.openai.com/v1"
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gpt-4o"
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}

	return &Client{
		endpoint:    endpoint,
		apiKey:      strings.TrimSpace(cfg.APIKey),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		client:      &http.Client{Timeout: timeout},
		logger:      logger,
	}
}

// Complete forwards the ordered history to the provider and returns the plain
// text reply. Every failure mode wraps ErrProviderUnavailable.
func (c *Client) Complete(ctx context.Context, history []Turn) (string, error) {
	if c.apiKey == "" {
		return "", fmt.Errorf("%w: api key not configured", ErrProviderUnavailable)
	}

	payload := completionRequest{
		Model:       c.model,
		Messages:    history,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("llm: marshal completion payload: %w", err)
	}

	request, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("llm: create completion request: %w", err)
	}

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
	request.Header.Set("Content-Type", "application/json")

	response, err := c.client.Do(request)
	if err != nil {
		return "", fmt.Errorf("%w: call chat api: %v", ErrProviderUnavailable, err)
	}
	defer response.Body.Close()

	respBody, err := io.ReadAll(response.Body)
	if err != nil {
		return "", fmt.Errorf("%w: read chat response: %v", ErrProviderUnavailable, err)
	}

	if response.StatusCode < 200 || response.StatusCode >= 300 {
		return "", fmt.Errorf("%w: %v", ErrProviderUnavailable, buildAPIError(response.StatusCode, respBody))
	}

	var apiResp completionResponse
	if err := json.Unmarshal(respBody, &apiResp); err != nil {
		return "", fmt.Errorf("%w: decode chat response: %v", ErrProviderUnavailable, err)
	}

	if apiResp.Error != nil && apiResp.Error.Message != "" {
		return "", fmt.Errorf("%w: %s", ErrProviderUnavailable, apiResp.Error.Message)
	}

	if len(apiResp.Choices) == 0 {
		return "", fmt.Errorf("%w: chat response contained no choices", ErrProviderUnavailable)
	}

	reply := strings.TrimSpace(apiResp.Choices[0].Message.Content)
	if reply == "" {
		return "", fmt.Errorf("%w: chat response contained empty reply", ErrProviderUnavailable)
	}

	if c.logger != nil && apiResp.Usage != nil {
		c.logger.Debugw("chat completion",
			"model", c.model,
			"prompt_tokens", apiResp.Usage.PromptTokens,
			"completion_tokens", apiResp.Usage.CompletionTokens,
		)
	}

	return reply, nil
}

type completionRequest struct {
	Model       string  `json:"model"`
	Messages    []Turn  `json:"messages"`
	Temperature float64 `json:"temperature,omitempty"`
	MaxTokens   int     `json:"max_tokens,omitempty"`
}

type completionChoice struct {
	Index        int    `json:"index"`
	Message      Turn   `json:"message"`
	FinishReason string `json:"finish_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type apiError struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}

type completionResponse struct {
	ID      string             `json:"id"`
	Object  string             `json:"object"`
	Created int64              `json:"created"`
	Choices []completionChoice `json:"choices"`
	Usage   *completionUsage   `json:"usage"`
	Error   *apiError          `json:"error,omitempty"`
}

func buildAPIError(statusCode int, body []byte) error {
	var envelope struct {
		Error *apiError `json:"error,omitempty"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		message := strings.TrimSpace(envelope.Error.Message)
		if envelope.Error.Code != "" && message != "" {
			return fmt.Errorf("chat api error (%d, %s): %s", statusCode, envelope.Error.Code, message)
		}
		if message != "" {
			return fmt.Errorf("chat api error (%d): %s", statusCode, message)
		}
	}

	snippet := strings.TrimSpace(string(body))
	if snippet == "" {
		snippet = http.StatusText(statusCode)
	}
	if len(snippet) > 256 {
		snippet = snippet[:256]
	}

	return fmt.Errorf("chat api error (%d): %s", statusCode, snippet)
}
