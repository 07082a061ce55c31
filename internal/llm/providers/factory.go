package providers

import (
	"fmt"
	"net/http"

	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/llm"
	"code-doc-assistant/internal/llm/anthropic"
	"code-doc-assistant/internal/llm/google"
	openaillm "code-doc-assistant/internal/llm/openai"
)

// Build constructs an llm.Provider based on the configured provider name
// (spec §2, §6 LLM Client): anthropic (default, the domain-stack primary
// provider), openai, local (an OpenAI-compatible chat endpoint reached via
// BaseURL, e.g. a self-hosted vLLM/Ollama server), or google.
func Build(cfg config.LLMProviderConfig, httpClient *http.Client) (llm.Provider, error) {
	switch cfg.Provider {
	case "", "anthropic":
		return anthropic.New(cfg.Anthropic, httpClient), nil
	case "openai", "local":
		return openaillm.New(cfg.OpenAI, httpClient), nil
	case "google":
		return google.New(cfg.Google, httpClient)
	default:
		return nil, fmt.Errorf("unsupported llm provider: %s", cfg.Provider)
	}
}
