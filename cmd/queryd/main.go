// Command queryd is the query agent process entrypoint (spec §4.7, §6). It
// wires the retrieval engine, LLM client, and session store into an
// internal/agent.Agent and drives one query end to end, writing the
// resulting event sequence to stdout in SSE wire format. An external
// HTTP/SSE transport (not built here, per the module layout) would embed
// the same Agent.Run call behind a request handler instead of flag parsing.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"code-doc-assistant/internal/agent"
	"code-doc-assistant/internal/config"
	"code-doc-assistant/internal/embedding"
	"code-doc-assistant/internal/llm/providers"
	"code-doc-assistant/internal/observability"
	"code-doc-assistant/internal/retrieval"
	"code-doc-assistant/internal/session"
	"code-doc-assistant/internal/vectorstore"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config.yaml")
	codebaseID := flag.String("codebase", "", "codebase id to query (required)")
	sessionID := flag.String("session", "", "existing session id, blank to start a new session")
	query := flag.String("query", "", "question to ask, blank to read one line from stdin")
	flag.Parse()

	if err := godotenv.Load(".env"); err != nil {
		_ = godotenv.Load("example.env")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	observability.InitLogger(cfg.LogPath, cfg.LogLevel)

	if *codebaseID == "" {
		fmt.Fprintln(os.Stderr, "usage: queryd -codebase <id> [-query \"...\"] [-session <id>]")
		os.Exit(2)
	}

	q := *query
	if q == "" {
		scanner := bufio.NewScanner(os.Stdin)
		if scanner.Scan() {
			q = scanner.Text()
		}
	}
	if q == "" {
		log.Fatal().Msg("empty query")
	}

	ctx := context.Background()
	shutdown, err := observability.InitOTel(ctx, cfg.OTel)
	if err != nil {
		log.Warn().Err(err).Msg("otel init failed, continuing without observability")
	} else {
		defer func() { _ = shutdown(context.Background()) }()
	}

	httpClient := observability.NewHTTPClient(nil)

	store, err := vectorstore.New(ctx, cfg.Vector)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to init vector store")
	}
	embedder := embedding.NewService(cfg.Embedding, cfg.RetryPolicy(), log.Logger)
	retriever := retrieval.New(store, embedder, cfg.Retrieval)

	provider, err := providers.Build(cfg.LLM, httpClient)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build llm provider")
	}

	sessions := session.New(
		time.Duration(cfg.Session.TTLSeconds)*time.Second,
		time.Duration(cfg.Session.LockTimeoutMs)*time.Millisecond,
	)

	a := agent.New(retriever, provider, sessions, modelName(cfg.LLM), 0, cfg.Session.HistoryMessages)

	req := agent.Request{Query: q, CodebaseID: *codebaseID, SessionID: *sessionID}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()

	err = a.Run(ctx, req, func(ev agent.Event) {
		writeSSE(w, ev)
	})
	if err != nil {
		log.Error().Err(err).Msg("query failed")
		os.Exit(1)
	}
}

// modelName picks the model string for the configured provider, matching
// the switch in internal/llm/providers.Build.
func modelName(cfg config.LLMProviderConfig) string {
	switch cfg.Provider {
	case "openai", "local":
		return cfg.OpenAI.Model
	case "google":
		return cfg.Google.Model
	default:
		return cfg.Anthropic.Model
	}
}

// writeSSE renders one agent event in the text/event-stream wire format
// spec §6 describes: an "event:" line naming the event type followed by a
// "data:" line carrying its JSON payload.
func writeSSE(w *bufio.Writer, ev agent.Event) {
	payload := map[string]any{}
	switch ev.Type {
	case agent.EventSessionID:
		payload["session_id"] = ev.SessionID
	case agent.EventChunk:
		payload["chunk"] = ev.Content
	case agent.EventSources:
		payload["sources"] = ev.Sources
	case agent.EventError:
		payload["error"] = ev.Error
	}
	data, _ := json.Marshal(payload)
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	w.Flush()
}
