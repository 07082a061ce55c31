package anthropic

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/shared/constant"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/llm"
)

type streamRecorder struct{ deltas []string }

func (s *streamRecorder) OnDelta(content string) { s.deltas = append(s.deltas, content) }

func minimalUsage() sdk.Usage {
	return sdk.Usage{InputTokens: 10, OutputTokens: 5}
}

func TestChatReturnsText(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		defer r.Body.Close()
		w.Header().Set("Content-Type", "application/json")
		resp := sdk.Message{
			ID:         "msg_1",
			Type:       constant.Message("message"),
			Role:       constant.Assistant("assistant"),
			Model:      sdk.ModelClaude3_7SonnetLatest,
			StopReason: sdk.StopReasonEndTurn,
			Content:    []sdk.ContentBlockUnion{{Type: "text", Text: "hello"}},
			Usage:      minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{APIKey: "k", Model: "m", BaseURL: srv.URL}, srv.Client())
	msg, err := client.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "")
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("unexpected content %q", msg.Content)
	}
	if gotPath != "/v1/messages" {
		t.Fatalf("unexpected path %q", gotPath)
	}
}

func TestChatDefaultsModelWhenCallerOmitsOne(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		resp := sdk.Message{
			Type:    constant.Message("message"),
			Role:    constant.Assistant("assistant"),
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}},
			Usage:   minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{APIKey: "k", Model: "configured-model", BaseURL: srv.URL}, srv.Client())
	if _, err := client.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, ""); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if gotModel != "configured-model" {
		t.Fatalf("expected configured model, got %q", gotModel)
	}
}

func TestChatSystemMessageGetsCacheControlWhenEnabled(t *testing.T) {
	var reqBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&reqBody)
		resp := sdk.Message{
			Type:    constant.Message("message"),
			Role:    constant.Assistant("assistant"),
			Content: []sdk.ContentBlockUnion{{Type: "text", Text: "ok"}},
			Usage:   minimalUsage(),
		}
		b, _ := json.Marshal(resp)
		_, _ = w.Write(b)
	}))
	t.Cleanup(srv.Close)

	cache := config.AnthropicPromptCacheConfig{Enabled: true, CacheSystem: true}
	client := New(config.AnthropicConfig{APIKey: "k", BaseURL: srv.URL, PromptCache: cache}, srv.Client())

	msgs := []llm.Message{
		{Role: "system", Content: "you are a docs assistant"},
		{Role: "user", Content: "hi"},
	}
	if _, err := client.Chat(context.Background(), msgs, ""); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}

	system, ok := reqBody["system"].([]any)
	if !ok || len(system) != 1 {
		t.Fatalf("expected one system block, got %#v", reqBody["system"])
	}
	block := system[0].(map[string]any)
	if _, ok := block["cache_control"]; !ok {
		t.Fatalf("expected cache_control on system block, got %#v", block)
	}
}

func TestChatStreamForwardsTextDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		events := []string{
			`event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

`,
			`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

`,
			`event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

`,
			`event: message_delta
data: {"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":2}}

`,
			`event: message_stop
data: {"type":"message_stop"}

`,
		}
		for _, e := range events {
			_, _ = w.Write([]byte(e))
		}
	}))
	t.Cleanup(srv.Close)

	client := New(config.AnthropicConfig{APIKey: "k", BaseURL: srv.URL}, srv.Client())
	rec := &streamRecorder{}
	err := client.ChatStream(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "", rec)
	if err != nil {
		t.Fatalf("ChatStream returned error: %v", err)
	}
	got := ""
	for _, d := range rec.deltas {
		got += d
	}
	if got != "Hello" {
		t.Fatalf("expected concatenated deltas %q, got %q", "Hello", got)
	}
}
