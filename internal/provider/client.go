// Package provider implements the OpenAI-compatible chat completion client
// used for conversation replies and intent analysis. Groq and Deepseek both
// speak this wire format; only base URL, model and key differ.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"nexus/internal/config"
	"nexus/internal/logging"
	"nexus/internal/types"
)

// Client talks to one chat-completions endpoint.
type Client struct {
	provider    string
	apiKey      string
	baseURL     string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	log         *zap.Logger

	mu          sync.Mutex
	lastRequest time.Time
}

// chatMessage is the wire shape of one conversation turn.
type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewClient builds a client from the LLM section of the config. Unset base
// URLs fall back to the provider's well-known endpoint.
func NewClient(cfg config.LLMConfig, timeout time.Duration) *Client {
	baseURL := cfg.BaseURL
	model := cfg.Model
	if baseURL == "" {
		switch cfg.Provider {
		case "deepseek":
			baseURL = "https://api.deepseek.com/v1"
		default:
			baseURL = "https://api.groq.com/openai/v1"
		}
	}
	if model == "" {
		switch cfg.Provider {
		case "deepseek":
			model = "deepseek-chat"
		default:
			model = "mixtral-8x7b-32768"
		}
	}
	name := cfg.Provider
	if name == "" {
		name = "groq"
	}
	return &Client{
		provider:    name,
		apiKey:      cfg.APIKey,
		baseURL:     strings.TrimRight(baseURL, "/"),
		model:       model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: timeout},
		log:         logging.L("provider"),
	}
}

// Model reports the configured model name.
func (c *Client) Model() string { return c.model }

// Chat sends the conversation and returns the assistant's reply text.
// Transient failures (429 and 5xx) are retried with exponential backoff.
func (c *Client) Chat(ctx context.Context, messages []types.Message) (string, error) {
	if c.apiKey == "" {
		return "", &types.ProviderError{Provider: c.provider, Err: fmt.Errorf("API key not configured")}
	}

	// Auto-apply timeout if the context carries no deadline.
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.httpClient.Timeout)
		defer cancel()
	}

	c.throttle()

	wire := make([]chatMessage, 0, len(messages))
	for _, m := range messages {
		wire = append(wire, chatMessage{Role: string(m.Role), Content: m.Content})
	}
	reqBody := chatRequest{
		Model:       c.model,
		Messages:    wire,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", &types.ProviderError{Provider: c.provider, Err: fmt.Errorf("marshal request: %w", err)}
	}

	start := time.Now()
	const maxRetries = 3
	var lastErr error

	for i := 0; i <= maxRetries; i++ {
		if i > 0 {
			select {
			case <-time.After(time.Duration(1<<uint(i-1)) * time.Second):
			case <-ctx.Done():
				return "", &types.ProviderError{Provider: c.provider, Err: ctx.Err()}
			}
		}

		reply, retryable, err := c.doRequest(ctx, jsonData)
		if err == nil {
			c.log.Debug("chat completed",
				zap.String("model", c.model),
				zap.Duration("elapsed", time.Since(start)),
				zap.Int("reply_len", len(reply)))
			return reply, nil
		}
		if !retryable {
			return "", &types.ProviderError{Provider: c.provider, Err: err}
		}
		lastErr = err
	}

	c.log.Error("chat retries exhausted",
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(lastErr))
	return "", &types.ProviderError{Provider: c.provider, Err: fmt.Errorf("max retries exceeded: %w", lastErr)}
}

func (c *Client) doRequest(ctx context.Context, jsonData []byte) (reply string, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(jsonData))
	if err != nil {
		return "", false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", true, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", true, fmt.Errorf("read response: %w", err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", true, fmt.Errorf("rate limit exceeded (429)")
	case resp.StatusCode >= 500:
		return "", true, fmt.Errorf("server error %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return "", false, fmt.Errorf("request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed chatResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", false, fmt.Errorf("parse response: %w", err)
	}
	if parsed.Error != nil {
		return "", false, fmt.Errorf("API error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return "", false, fmt.Errorf("no completion returned")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), false, nil
}

// throttle enforces a minimum spacing between requests.
func (c *Client) throttle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	elapsed := time.Since(c.lastRequest)
	if elapsed < 100*time.Millisecond {
		time.Sleep(100*time.Millisecond - elapsed)
	}
	c.lastRequest = time.Now()
}
