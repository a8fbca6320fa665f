package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/docsage/docsage/internal/config"
	"github.com/docsage/docsage/internal/models"
)

func testConfig(url string) *config.GenerationConfig {
	return &config.GenerationConfig{
		BaseURL:     url,
		APIKeyEnv:   "DOCSAGE_TEST_GEN_KEY",
		Model:       "test-model",
		Temperature: 0,
		MaxTokens:   100,
		TimeoutSecs: 5,
		MaxRetries:  2,
	}
}

func TestGenerateSendsSystemAndHistory(t *testing.T) {
	t.Setenv("DOCSAGE_TEST_GEN_KEY", "key")
	var gotReq chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&gotReq)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "the answer"}},
			},
		})
	}))
	defer srv.Close()

	c, err := NewClient(testConfig(srv.URL))
	if err != nil {
		t.Fatal(err)
	}
	msgs := []models.Message{
		{Role: models.RoleUser, Content: "earlier question"},
		{Role: models.RoleAssistant, Content: "earlier answer"},
		{Role: models.RoleUser, Content: "current question"},
	}
	answer, err := c.Generate(context.Background(), msgs, "instructions with context")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if answer != "the answer" {
		t.Errorf("answer=%q", answer)
	}
	if len(gotReq.Messages) != 4 {
		t.Fatalf("expected 4 messages, got %d", len(gotReq.Messages))
	}
	if gotReq.Messages[0].Role != "system" || gotReq.Messages[0].Content != "instructions with context" {
		t.Errorf("first message should be the system prompt, got %+v", gotReq.Messages[0])
	}
	if gotReq.Messages[3].Content != "current question" {
		t.Errorf("last message should be the current question, got %+v", gotReq.Messages[3])
	}
}

func TestGenerateRetriesServerErrors(t *testing.T) {
	t.Setenv("DOCSAGE_TEST_GEN_KEY", "key")
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{
				{"message": map[string]string{"content": "ok"}},
			},
		})
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	answer, err := c.Generate(context.Background(), []models.Message{{Role: models.RoleUser, Content: "q"}}, "")
	if err != nil {
		t.Fatalf("expected retry to succeed: %v", err)
	}
	if answer != "ok" {
		t.Errorf("answer=%q", answer)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 requests, got %d", calls.Load())
	}
}

func TestGenerateFailsAfterRetries(t *testing.T) {
	t.Setenv("DOCSAGE_TEST_GEN_KEY", "key")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c, _ := NewClient(testConfig(srv.URL))
	if _, err := c.Generate(context.Background(), nil, "sys"); err == nil {
		t.Error("expected error after retries exhausted")
	}
}

func TestNewClientMissingKey(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.APIKeyEnv = "DOCSAGE_TEST_KEY_DEFINITELY_UNSET"
	if _, err := NewClient(cfg); err == nil {
		t.Error("expected error for missing API key")
	}
}
