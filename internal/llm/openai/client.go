// Package openai adapts the OpenAI Chat Completions API to the llm.Provider
// surface (spec §2, §6 LLM Client): streaming text generation over a
// role/content history. Grounded on the teacher's internal/llm/openai
// client, trimmed of the tool-calling loop, vision/image inputs, and the
// Responses-vs-Completions dual API — the documentation assistant only
// ever sends text and only ever wants text back. Also backs the "local"
// provider option (spec §6): any OpenAI-compatible endpoint reached by
// pointing BaseURL at a self-hosted server such as vLLM or Ollama.
package openai

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/llm"
	"code-doc-assistant/internal/observability"
)

const defaultModel = "gpt-4o-mini"

type Client struct {
	sdk   openai.Client
	model string
}

func New(cfg config.OpenAIConfig, httpClient *http.Client) *Client {
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

	return &Client{sdk: openai.NewClient(opts...), model: model}
}

func (c *Client) pickModel(model string) string {
	if m := strings.TrimSpace(model); m != "" {
		return m
	}
	return c.model
}

func adaptMessages(msgs []llm.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch strings.ToLower(strings.TrimSpace(m.Role)) {
		case "system":
			out = append(out, openai.SystemMessage(m.Content))
		case "assistant":
			out = append(out, openai.AssistantMessage(m.Content))
		default:
			out = append(out, openai.UserMessage(m.Content))
		}
	}
	return out
}

func (c *Client) Chat(ctx context.Context, msgs []llm.Message, model string) (llm.Message, error) {
	effectiveModel := c.pickModel(model)
	ctx, span := llm.StartRequestSpan(ctx, "OpenAI Chat", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	resp, err := c.sdk.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(effectiveModel),
		Messages: adaptMessages(msgs),
	})
	dur := time.Since(start)
	if err != nil {
		span.RecordError(err)
		log.Error().Err(err).Str("model", effectiveModel).Dur("duration", dur).Msg("openai_chat_error")
		return llm.Message{}, err
	}
	if len(resp.Choices) == 0 {
		return llm.Message{}, nil
	}

	text := resp.Choices[0].Message.Content
	llm.LogRedactedResponse(ctx, resp)
	llm.RecordTokenAttributes(span, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens), int(resp.Usage.TotalTokens))
	llm.RecordTokenMetrics(effectiveModel, int(resp.Usage.PromptTokens), int(resp.Usage.CompletionTokens))
	log.Debug().Str("model", effectiveModel).Dur("duration", dur).Msg("openai_chat_ok")
	return llm.Message{Role: "assistant", Content: text}, nil
}

func (c *Client) ChatStream(ctx context.Context, msgs []llm.Message, model string, h llm.StreamHandler) error {
	effectiveModel := c.pickModel(model)
	ctx, span := llm.StartRequestSpan(ctx, "OpenAI ChatStream", effectiveModel, len(msgs))
	defer span.End()
	llm.LogRedactedPrompt(ctx, msgs)
	log := observability.LoggerWithTrace(ctx)

	start := time.Now()
	stream := c.sdk.Chat.Completions.NewStreaming(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(effectiveModel),
		Messages: adaptMessages(msgs),
		StreamOptions: openai.ChatCompletionStreamOptionsParam{
			IncludeUsage: openai.Bool(true),
		},
	})

	var promptTokens, completionTokens int64
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 {
			if delta := chunk.Choices[0].Delta.Content; delta != "" && h != nil {
				h.OnDelta(delta)
			}
		}
		if chunk.Usage.TotalTokens > 0 {
			promptTokens = chunk.Usage.PromptTokens
			completionTokens = chunk.Usage.CompletionTokens
		}
	}
	dur := time.Since(start)
	if err := stream.Err(); err != nil {
		span.RecordError(err)
		log.Error().Err(err).Dur("duration", dur).Msg("openai_stream_error")
		return err
	}

	llm.RecordTokenAttributes(span, int(promptTokens), int(completionTokens), int(promptTokens+completionTokens))
	llm.RecordTokenMetrics(effectiveModel, int(promptTokens), int(completionTokens))
	log.Debug().Dur("duration", dur).Msg("openai_stream_ok")
	return nil
}
