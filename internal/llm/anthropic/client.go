// Package anthropic adapts the Anthropic Messages API to the llm.Provider
// surface (spec §2, §6 LLM Client): streaming text generation over a
// role/content history. Grounded on the teacher's internal/llm/anthropic
// client, trimmed of the tool-calling loop, thinking-block handling, and
// prompt-cache-per-tool plumbing the documentation assistant never exercises
// — only system/message caching remains, since the assistant re-sends the
// same retrieved-context system prompt across turns of one session.
package anthropic

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/llm"
	"code-doc-assistant/internal/observability"
)

const (
	defaultModel     = anthropic.ModelClaude3_7SonnetLatest
	defaultMaxTokens = 4096
)

type Client struct {
	sdk       anthropic.Client
	model     string
	maxTokens int64
	cache     config.AnthropicPromptCacheConfig
}

func New(cfg config.AnthropicConfig, httpClient *http.Client) *Client {
	opts := []option.RequestOption{option.WithAPIKey(strings.TrimSpace(cfg.APIKey))}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}

	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = string(defaultModel)
	}

	return &Client{
		sdk:       anthropic.NewClient(opts...),
		model:     model,
		maxTokens: defaultMaxTokens,
		cache:     cfg.PromptCache,
	}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) adaptMessages(msgs []llm.Message) (system []anthropic.TextBlockParam, turns []anthropic.MessageParam) {
	for i, m := range msgs {
		role := strings.ToLower(strings.TrimSpace(m.Role))
		switch role {
		case "system":
			block := anthropic.TextBlockParam{Text: m.Content}
			if c.cache.Enabled && c.cache.CacheSystem {
				block.CacheControl = anthropic.CacheControlEphemeralParam{TTL: anthropic.CacheControlEphemeralTTLTTL5m}
			}
			system = append(system, block)
		case "assistant":
			turns = append(turns, anthropic.NewAssistantMessage(c.textBlock(m.Content, i, len(msgs))))
		default:
			turns = append(turns, anthropic.NewUserMessage(c.textBlock(m.Content, i, len(msgs))))
		}
	}
	return system, turns
}

// textBlock tags the final message with a cache breakpoint when message
// caching is enabled, so a multi-turn session reuses the cached prefix
// instead of re-billing the whole retrieved-context history every turn.
func (c *Client) textBlock(text string, idx, total int) anthropic.ContentBlockParamUnion {
	if !c.cache.Enabled || !c.cache.CacheMessages || idx != total-1 {
		return anthropic.NewTextBlock(text)
	}
	block := anthropic.TextBlockParam{Text: text, CacheControl: anthropic.CacheControlEphemeralParam{TTL: anthropic.CacheControlEphemeralTTLTTL5m}}
	return anthropic.ContentBlockParamUnion{OfText: &block}
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, error) {
	effectiveModel := c.pickModel(model)
	ctx, span := llm.StartRequestSpan(ctx, "Anthropic Chat", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	system, turns := c.adaptMessages(msgs)
	start := time.Now()
	resp, err := c.sdk.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  turns,
	})
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("anthropic_chat_error")
		return llm.Message{}, err
	}

	text := textFromBlocks(resp.Content)
	llm.LogRedactedResponse(ctx, resp)
	llm.RecordTokenAttributes(span, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens), int(resp.Usage.InputTokens+resp.Usage.OutputTokens))
	llm.RecordTokenMetrics(effectiveModel, int(resp.Usage.InputTokens), int(resp.Usage.OutputTokens))
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("anthropic_chat_ok")
	return llm.Message{Role: "assistant", Content: text}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) error {
	effectiveModel := c.pickModel(model)
	ctx, span := llm.StartRequestSpan(ctx, "Anthropic ChatStream", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	system, turns := c.adaptMessages(msgs)
	start := time.Now()
	stream := c.sdk.Messages.NewStreaming(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(effectiveModel),
		MaxTokens: c.maxTokens,
		System:    system,
		Messages:  turns,
	})

	var usage anthropic.MessageDeltaUsage
	for stream.Next() {
		event := stream.Current()
		switch e := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if d, ok := e.Delta.AsAny().(anthropic.TextDelta); ok && d.Text != "" && h != nil {
				h.OnDelta(d.Text)
			}
		case anthropic.MessageDeltaEvent:
			usage = e.Usage
		}
	}
	dur := time.Since(start)
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Dur("duration", dur).Msg("anthropic_stream_error")
		return err
	}

	llm.RecordTokenAttributes(span, int(usage.InputTokens), int(usage.OutputTokens), int(usage.InputTokens+usage.OutputTokens))
	llm.RecordTokenMetrics(effectiveModel, int(usage.InputTokens), int(usage.OutputTokens))
	log.Debug().Dur("duration", dur).Msg("anthropic_stream_ok")
	return nil
}

func textFromBlocks(blocks []anthropic.ContentBlockUnion) string {
	var b strings.Builder
	for _, block := range blocks {
		if t, ok := block.AsAny().(anthropic.TextBlock); ok {
			b.WriteString(t.Text)
		}
	}
	return b.String()
}
