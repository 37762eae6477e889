package provider

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"nexus/internal/config"
	"nexus/internal/types"
)

func testClient(url string) *Client {
	return NewClient(config.LLMConfig{
		Provider:    "groq",
		APIKey:      "test-key",
		BaseURL:     url,
		Model:       "mixtral-8x7b-32768",
		Temperature: 0.7,
		MaxTokens:   1024,
	}, 5*time.Second)
}

func TestChatSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header = %q", got)
		}
		var req struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
			MaxTokens int `json:"max_tokens"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		if req.Model != "mixtral-8x7b-32768" || req.MaxTokens != 1024 {
			t.Errorf("unexpected request: %+v", req)
		}
		if len(req.Messages) != 2 || req.Messages[0].Role != "system" {
			t.Errorf("unexpected messages: %+v", req.Messages)
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"  hello there  "}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	reply, err := c.Chat(context.Background(), []types.Message{
		{Role: types.RoleSystem, Content: "be brief"},
		{Role: types.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat failed: %v", err)
	}
	if reply != "hello there" {
		t.Errorf("reply = %q, want trimmed content", reply)
	}
}

func TestChatRetriesOn429(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Write([]byte(`{"choices":[{"message":{"content":"ok"}}]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	reply, err := c.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	if err != nil {
		t.Fatalf("Chat failed after retry: %v", err)
	}
	if reply != "ok" || attempts != 2 {
		t.Errorf("reply=%q attempts=%d", reply, attempts)
	}
}

func TestChatClientErrorNotRetried(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error":{"message":"bad key"}}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL)
	_, err := c.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	if err == nil {
		t.Fatal("expected error on 401")
	}
	var perr *types.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("error is not a ProviderError: %v", err)
	}
	if attempts != 1 {
		t.Errorf("client errors must not be retried, attempts=%d", attempts)
	}
}

func TestChatMissingAPIKey(t *testing.T) {
	c := NewClient(config.LLMConfig{Provider: "groq"}, time.Second)
	_, err := c.Chat(context.Background(), []types.Message{
		{Role: types.RoleUser, Content: "hi"},
	})
	var perr *types.ProviderError
	if !errors.As(err, &perr) {
		t.Fatalf("expected ProviderError, got %v", err)
	}
}

func TestDefaultEndpoints(t *testing.T) {
	groq := NewClient(config.LLMConfig{Provider: "groq", APIKey: "k"}, time.Second)
	if groq.baseURL != "https://api.groq.com/openai/v1" || groq.Model() != "mixtral-8x7b-32768" {
		t.Errorf("groq defaults: url=%s model=%s", groq.baseURL, groq.Model())
	}
	ds := NewClient(config.LLMConfig{Provider: "deepseek", APIKey: "k"}, time.Second)
	if ds.baseURL != "https://api.deepseek.com/v1" || ds.Model() != "deepseek-chat" {
		t.Errorf("deepseek defaults: url=%s model=%s", ds.baseURL, ds.Model())
	}
}
