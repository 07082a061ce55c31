package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/llm"
)

type recorder struct{ deltas []string }

func (r *recorder) OnDelta(content string) { r.deltas = append(r.deltas, content) }

func TestChatReturnsMessageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, srv.Client())
	msg, err := client.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, "")
	if err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if msg.Content != "hello" {
		t.Fatalf("expected hello, got %q", msg.Content)
	}
}

func TestChatDefaultsToConfiguredModel(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		defer r.Body.Close()
		_ = json.NewDecoder(r.Body).Decode(&body)
		gotModel, _ = body["model"].(string)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"ok"}}]}`))
	}))
	t.Cleanup(srv.Close)

	client := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "configured-model"}, srv.Client())
	if _, err := client.Chat(context.Background(), []llm.Message{{Role: "user", Content: "hi"}}, ""); err != nil {
		t.Fatalf("Chat returned error: %v", err)
	}
	if gotModel != "configured-model" {
		t.Fatalf("expected configured-model, got %q", gotModel)
	}
}

func TestChatStreamForwardsDeltas(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher, _ := w.(http.Flusher)
		chunks := []string{"Hel", "lo"}
		for _, c := range chunks {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":%q}}]}\n\n", c)
			if flusher != nil {
				flusher.Flush()
			}
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	t.Cleanup(srv.Close)

	client := New(config.OpenAIConfig{APIKey: "k", BaseURL: srv.URL, Model: "m"}, srv.Client())
	rec := &recorder{}
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
