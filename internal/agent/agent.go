// Package agent implements the Query Agent (spec §4.7): a directed
// pipeline of five stages — analyse, retrieve, contextualise, generate,
// validate — sharing one typed state object, producing the SSE-shaped
// event sequence described in spec §6.
package agent

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"code-doc-assistant/internal/llm"
	"code-doc-assistant/internal/retrieval"
	"code-doc-assistant/internal/session"
	"code-doc-assistant/internal/util"
)

const (
	defaultContextBudgetTokens = 12000
	defaultHistoryMessages     = 5
	noRelevantCodeNotice       = "no relevant code was retrieved"
)

const systemPromptTemplate = `You are a source code documentation assistant. Answer the user's question about the codebase using only the context provided below. Cite every factual claim about the code with an inline marker in the form [file_path:line_start-line_end] referencing the exact chunk you drew it from. If the context does not contain the answer, reply with the exact phrase "I don't see this in the provided code" and cite nothing.

Context:
%s`

// EventType discriminates one query-stream event (spec §6).
type EventType string

const (
	EventSessionID EventType = "session_id"
	EventChunk     EventType = "chunk"
	EventSources   EventType = "sources"
	EventDone      EventType = "done"
	EventError     EventType = "error"
)

// Source is one citation surfaced to the caller (spec §6 `sources` event).
type Source struct {
	FilePath   string
	LineStart  int
	LineEnd    int
	Snippet    string
	Confidence float64
}

// Event is one element of the query stream (spec §6).
type Event struct {
	Type      EventType
	SessionID string
	Content   string
	Sources   []Source
	Error     string
}

// Request is one incoming query.
type Request struct {
	Query      string
	CodebaseID string
	SessionID  string // empty: a new session is allocated
}

// state is the typed object threaded through every stage (spec §4.7).
type state struct {
	query      string
	codebaseID string
	sessionID  string
	filters    retrieval.Filters
	chunks     []retrieval.Result
	context    string
	draft      string
	citations  []session.Citation
	err        error
}

// Retriever is the subset of retrieval.Engine the agent depends on.
type Retriever interface {
	Query(ctx context.Context, codebaseID, query string, filters retrieval.Filters) ([]retrieval.Result, error)
}

// Agent wires the retrieval engine, the LLM provider, and the session
// store into the five-stage pipeline.
type Agent struct {
	retriever            Retriever
	llm                  llm.Provider
	sessions             *session.Store
	model                string
	contextBudgetTokens  int
	historyMessages      int
}

// New constructs an Agent. contextBudgetTokens and historyMessages default
// to the spec's values (12000, 5) when zero.
func New(retriever Retriever, provider llm.Provider, sessions *session.Store, model string, contextBudgetTokens, historyMessages int) *Agent {
	if contextBudgetTokens <= 0 {
		contextBudgetTokens = defaultContextBudgetTokens
	}
	if historyMessages <= 0 {
		historyMessages = defaultHistoryMessages
	}
	return &Agent{
		retriever:           retriever,
		llm:                 provider,
		sessions:            sessions,
		model:               model,
		contextBudgetTokens: contextBudgetTokens,
		historyMessages:     historyMessages,
	}
}

// Run executes the pipeline for one request, emitting events to emit as
// they become available. It returns only once the stream has terminated
// (an EventDone or EventError was emitted).
func (a *Agent) Run(ctx context.Context, req Request, emit func(Event)) error {
	st := &state{query: req.Query, codebaseID: req.CodebaseID, sessionID: req.SessionID}

	if st.sessionID == "" {
		st.sessionID = a.sessions.Create(st.codebaseID)
		emit(Event{Type: EventSessionID, SessionID: st.sessionID})
	}

	if err := a.sessions.Append(ctx, st.sessionID, session.Message{Role: "user", Content: req.Query}); err != nil {
		return a.fail(ctx, st, emit, err)
	}

	a.analyse(st)
	if err := a.retrieve(ctx, st); err != nil {
		return a.fail(ctx, st, emit, err)
	}
	a.contextualise(st)

	if err := a.generate(ctx, st, emit); err != nil {
		return a.fail(ctx, st, emit, err)
	}
	a.validate(st)

	sources := toSources(st.citations)
	emit(Event{Type: EventSources, Sources: sources})

	if err := a.sessions.Append(ctx, st.sessionID, session.Message{
		Role:              "assistant",
		Content:           st.draft,
		Citations:         st.citations,
		RetrievedChunkIDs: chunkIDs(st.chunks),
	}); err != nil {
		return a.fail(ctx, st, emit, err)
	}

	emit(Event{Type: EventDone})
	return nil
}

// fail surfaces a terminal error frame and persists an assistant message
// carrying the error text for session continuity (spec §4.7 failure
// policy). The agent never retries the generation implicitly.
func (a *Agent) fail(ctx context.Context, st *state, emit func(Event), err error) error {
	_ = a.sessions.Append(ctx, st.sessionID, session.Message{Role: "assistant", Content: err.Error()})
	emit(Event{Type: EventError, Error: err.Error()})
	return err
}

var (
	languageCueRe = regexp.MustCompile(`(?i)\bin\s+(python|go|javascript|typescript|java|rust)\b`)
	fileCueRe     = regexp.MustCompile(`(?i)\bin\s+([\w./-]+\.\w+)\b`)
)

// analyse normalises the query and extracts metadata filters from
// natural-language cues. No external calls (spec §4.7 stage 1).
func (a *Agent) analyse(st *state) {
	st.query = strings.TrimSpace(st.query)
	if m := languageCueRe.FindStringSubmatch(st.query); m != nil {
		st.filters.Language = strings.ToLower(m[1])
	}
	if m := fileCueRe.FindStringSubmatch(st.query); m != nil {
		st.filters.FilePathPrefix = m[1]
	}
}

// retrieve calls the retrieval engine with the extracted filters (spec
// §4.7 stage 2).
func (a *Agent) retrieve(ctx context.Context, st *state) error {
	chunks, err := a.retriever.Query(ctx, st.codebaseID, st.query, st.filters)
	if err != nil {
		return fmt.Errorf("agent: retrieve: %w", err)
	}
	st.chunks = chunks
	return nil
}

// contextualise formats chunks into a bounded prompt context, ordering by
// descending score and truncating the lowest-ranked entries once the
// token budget is exhausted (spec §4.7 stage 3).
func (a *Agent) contextualise(st *state) {
	if len(st.chunks) == 0 {
		st.context = noRelevantCodeNotice
		return
	}

	ordered := make([]retrieval.Result, len(st.chunks))
	copy(ordered, st.chunks)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Score > ordered[j].Score })

	var b strings.Builder
	budget := a.contextBudgetTokens
	for _, c := range ordered {
		block := fmt.Sprintf("%s:%d-%d\n%s\n\n", c.FilePath, c.LineStart, c.LineEnd, c.Snippet)
		cost := approxTokens(block)
		if budget-cost < 0 {
			break
		}
		b.WriteString(block)
		budget -= cost
	}
	st.context = b.String()
}

// generate calls the LLM with the system prompt, the conversation history
// prefix, the context block, and the query, streaming tokens to emit
// (spec §4.7 stage 4).
func (a *Agent) generate(ctx context.Context, st *state, emit func(Event)) error {
	history, err := a.sessions.Recent(ctx, st.sessionID, a.historyMessages+1) // +1: includes the user turn just appended
	if err != nil {
		return fmt.Errorf("agent: load history: %w", err)
	}

	msgs := []llm.Message{{Role: "system", Content: fmt.Sprintf(systemPromptTemplate, st.context)}}
	for _, m := range history {
		if m.Content == st.query && m.Role == "user" {
			continue // the current turn is appended explicitly below
		}
		msgs = append(msgs, llm.Message{Role: m.Role, Content: m.Content})
	}
	msgs = append(msgs, llm.Message{Role: "user", Content: st.query})

	var draft strings.Builder
	handler := streamForwarder{
		onDelta: func(content string) {
			draft.WriteString(content)
			emit(Event{Type: EventChunk, Content: content})
		},
	}

	if err := a.llm.ChatStream(ctx, msgs, a.model, handler); err != nil {
		return fmt.Errorf("agent: generate: %w", err)
	}
	st.draft = draft.String()
	return nil
}

var citationRe = regexp.MustCompile(`\[([^\]:]+):(\d+)-(\d+)\]`)

// validate parses citations out of the generated text and discards any
// that cannot be matched against the retrieved-chunk set (spec §4.7 stage
// 5, §3 Citation invariant, §8 testable property).
func (a *Agent) validate(st *state) {
	matches := citationRe.FindAllStringSubmatch(st.draft, -1)
	seen := make(map[string]bool)
	var citations []session.Citation
	for _, m := range matches {
		filePath := m[1]
		start, err1 := strconv.Atoi(m[2])
		end, err2 := strconv.Atoi(m[3])
		if err1 != nil || err2 != nil {
			continue
		}
		key := fmt.Sprintf("%s:%d-%d", filePath, start, end)
		if seen[key] {
			continue
		}
		chunk, ok := matchingChunk(st.chunks, filePath, start, end)
		if !ok {
			continue
		}
		seen[key] = true
		citations = append(citations, session.Citation{
			FilePath:   filePath,
			LineStart:  start,
			LineEnd:    end,
			Confidence: chunk.Score,
			Snippet:    chunk.Snippet,
		})
	}
	st.citations = citations
}

// matchingChunk returns the retrieved chunk whose file path matches and
// whose range contains [start, end], if any.
func matchingChunk(chunks []retrieval.Result, filePath string, start, end int) (retrieval.Result, bool) {
	for _, c := range chunks {
		if c.FilePath == filePath && start >= c.LineStart && end <= c.LineEnd {
			return c, true
		}
	}
	return retrieval.Result{}, false
}

func toSources(citations []session.Citation) []Source {
	out := make([]Source, len(citations))
	for i, c := range citations {
		out[i] = Source{
			FilePath:   c.FilePath,
			LineStart:  c.LineStart,
			LineEnd:    c.LineEnd,
			Snippet:    c.Snippet,
			Confidence: c.Confidence,
		}
	}
	return out
}

func chunkIDs(chunks []retrieval.Result) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.ChunkID
	}
	return out
}

func approxTokens(s string) int { return util.CountTokens(s) }

// streamForwarder adapts llm.StreamHandler onto a single delta callback.
type streamForwarder struct {
	onDelta func(content string)
}

func (f streamForwarder) OnDelta(content string) { f.onDelta(content) }
