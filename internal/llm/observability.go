package llm

import (
	"context"
	"encoding/json"
	"sync"

	"code-doc-assistant/internal/observability"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

var (
	mu                   sync.RWMutex
	enablePayloadLogging = false
	truncateBytes        = 0 // 0 means no truncation
)

var (
	tokenOnce         sync.Once
	promptCounter     otelmetric.Int64Counter
	completionCounter otelmetric.Int64Counter
)

func ensureTokenInstruments() {
	tokenOnce.Do(func() {
		m := otel.Meter("internal/llm")
		promptCounter, _ = m.Int64Counter("llm.prompt_tokens", otelmetric.WithDescription("prompt tokens by model"))
		completionCounter, _ = m.Int64Counter("llm.completion_tokens", otelmetric.WithDescription("completion tokens by model"))
	})
}

// RecordTokenMetrics exports one call's token usage as OTel counters,
// tagged by model, for the configured metrics backend to aggregate.
func RecordTokenMetrics(model string, promptTokens, completionTokens int) {
	if model == "" || (promptTokens == 0 && completionTokens == 0) {
		return
	}
	ensureTokenInstruments()
	ctx := context.Background()
	attrs := otelmetric.WithAttributes(attribute.String("llm.model", model))
	if promptCounter != nil && promptTokens > 0 {
		promptCounter.Add(ctx, int64(promptTokens), attrs)
	}
	if completionCounter != nil && completionTokens > 0 {
		completionCounter.Add(ctx, int64(completionTokens), attrs)
	}
}

// ConfigureLogging sets global behavior for prompt/response logging. Call
// this once at startup with values from the main config.
func ConfigureLogging(enable bool, truncate int) {
	mu.Lock()
	defer mu.Unlock()
	enablePayloadLogging = enable
	truncateBytes = truncate
}

func shouldLog() (bool, int) {
	mu.RLock()
	defer mu.RUnlock()
	return enablePayloadLogging, truncateBytes
}

// StartRequestSpan starts a tracer span for an LLM request.
func StartRequestSpan(ctx context.Context, operation, model string, messages int) (context.Context, trace.Span) {
	ctx, span := otel.Tracer("internal/llm").Start(ctx, operation)
	span.SetAttributes(attribute.String("llm.model", model), attribute.Int("llm.messages", messages))
	return ctx, span
}

// RecordTokenAttributes sets token count attributes on the request span.
func RecordTokenAttributes(span trace.Span, promptTokens, completionTokens, totalTokens int) {
	if span == nil {
		return
	}
	span.SetAttributes(
		attribute.Int("llm.prompt_tokens", promptTokens),
		attribute.Int("llm.completion_tokens", completionTokens),
		attribute.Int("llm.total_tokens", totalTokens),
	)
}

// LogRedactedPrompt logs a redacted copy of the prompt at debug level. A
// no-op unless logging is enabled (spec §A.1 ambient logging).
func LogRedactedPrompt(ctx context.Context, msgs []Message) {
	logRedacted(ctx, "llm_request", "prompt", msgs)
}

// LogRedactedResponse logs a redacted copy of the response at debug level.
func LogRedactedResponse(ctx context.Context, resp any) {
	logRedacted(ctx, "llm_response", "response", resp)
}

func logRedacted(ctx context.Context, event, field string, payload any) {
	enabled, truncate := shouldLog()
	if !enabled {
		return
	}
	b, err := json.Marshal(payload)
	if err != nil {
		return
	}
	red := observability.RedactJSON(b)
	if truncate > 0 && len(red) > truncate {
		preview, _ := json.Marshal(map[string]any{"truncated": true, "preview": string(red[:truncate])})
		red = preview
	}
	log := observability.LoggerWithTrace(ctx).With().RawJSON(field, red).Logger()
	log.Debug().Msg(event)
}
