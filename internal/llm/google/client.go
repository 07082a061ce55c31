// Package google adapts Google's genai SDK to the llm.Provider surface
// (spec §2, §6 LLM Client): streaming text generation over a role/content
// history, nothing more. Grounded on the teacher's internal/llm/google
// client, trimmed of the tool-calling, image-generation, and
// thought-signature handling the documentation assistant never exercises.
package google

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	genai "google.golang.org/genai"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/llm"
	"code-doc-assistant/internal/observability"
)

type Client struct {
	client      *genai.Client
	model       string
	httpOptions genai.HTTPOptions
}

func New(cfg config.GoogleConfig, httpClient *http.Client) (*Client, error) {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "gemini-1.5-flash"
	}

	httpOpts := genai.HTTPOptions{}
	if cfg.Timeout > 0 {
		t := time.Duration(cfg.Timeout) * time.Second
		httpOpts.Timeout = &t
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		httpOpts.BaseURL = strings.TrimSuffix(base, "/") + "/"
	}

	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:      strings.TrimSpace(cfg.APIKey),
		HTTPClient:  httpClient,
		HTTPOptions: httpOpts,
	})
	if err != nil {
		return nil, fmt.Errorf("init google client: %w", err)
	}

	return &Client{client: client, model: model, httpOptions: httpOpts}, nil
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) contentConfig() *genai.GenerateContentConfig {
	return &genai.GenerateContentConfig{HTTPOptions: &c.httpOptions}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, error) {
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "Google Chat", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	contents, err := toContents(msgs)
	if err != nil {
		span.RecordError(err)
		return llm.Message{}, err
	}

	start := time.Now()
	resp, err := c.client.Models.GenerateContent(ctx, effectiveModel, contents, c.contentConfig())
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("google_chat_error")
		return llm.Message{}, err
	}

	text := textFromResponse(resp)
	llm.LogRedactedResponse(ctx, resp)
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("google_chat_ok")
	return llm.Message{Role: "assistant", Content: text}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) error {
	effectiveModel := c.pickModel(model)

	ctx, span := llm.StartRequestSpan(ctx, "Google ChatStream", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	contents, err := toContents(msgs)
	if err != nil {
		span.RecordError(err)
		return err
	}

	start := time.Now()
	stream := c.client.Models.GenerateContentStream(ctx, effectiveModel, contents, c.contentConfig())

	hasContent := false
	for resp, err := range stream {
		if err != nil {
			span.RecordError(err)
			log.Error().Err(err).Dur("duration", time.Since(start)).Msg("google_stream_error")
			return err
		}
		text := textFromResponse(resp)
		if text == "" {
			continue
		}
		hasContent = true
		if h != nil {
			h.OnDelta(text)
		}
	}

	dur := time.Since(start)
	if !hasContent {
		log.Warn().Dur("duration", dur).Msg("google_stream_empty_response")
	} else {
		log.Debug().Dur("duration", dur).Msg("google_stream_ok")
	}
	return nil
}

func toContents(msgs []llm.Message) ([]*genai.Content, error) {
	if len(msgs) == 0 {
		return nil, fmt.Errorf("google provider: messages required")
	}
	out := make([]*genai.Content, 0, len(msgs))
	for _, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system":
			// genai has no dedicated system role; fold it in as a leading
			// user turn so the instruction still reaches the model.
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		case "assistant":
			out = append(out, &genai.Content{Role: "model", Parts: []*genai.Part{{Text: m.Content}}})
		default:
			out = append(out, &genai.Content{Role: "user", Parts: []*genai.Part{{Text: m.Content}}})
		}
	}
	return out, nil
}

func textFromResponse(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		b.WriteString(part.Text)
	}
	return b.String()
}
