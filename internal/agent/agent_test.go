package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-doc-assistant/internal/retrieval"
	"code-doc-assistant/internal/session"
	"code-doc-assistant/internal/testhelpers"
)

type fakeRetriever struct {
	results []retrieval.Result
	err     error
}

func (f *fakeRetriever) Query(context.Context, string, string, retrieval.Filters) ([]retrieval.Result, error) {
	return f.results, f.err
}

func TestRun_HappyPathWithCitation(t *testing.T) {
	retriever := &fakeRetriever{results: []retrieval.Result{
		{ChunkID: "c1", FilePath: "a.py", LineStart: 1, LineEnd: 10, Snippet: "def foo(): return 1", Score: 0.9},
	}}
	provider := &testhelpers.FakeProvider{StreamDeltas: []string{"foo returns 1 [a.py:1-10]"}}
	sessions := session.New(time.Hour, time.Second)
	a := New(retriever, provider, sessions, "test-model", 0, 0)

	var events []Event
	err := a.Run(context.Background(), Request{Query: "what does foo do?", CodebaseID: "cb-1"}, func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	require.NotEmpty(t, events)
	assert.Equal(t, EventSessionID, events[0].Type)

	var sourcesEvent *Event
	var doneSeen bool
	for i := range events {
		if events[i].Type == EventSources {
			sourcesEvent = &events[i]
		}
		if events[i].Type == EventDone {
			doneSeen = true
		}
	}
	require.NotNil(t, sourcesEvent)
	require.Len(t, sourcesEvent.Sources, 1)
	assert.Equal(t, "a.py", sourcesEvent.Sources[0].FilePath)
	assert.True(t, doneSeen)
}

func TestRun_EmptyRetrievalDropsCitations(t *testing.T) {
	retriever := &fakeRetriever{results: nil}
	provider := &testhelpers.FakeProvider{StreamDeltas: []string{"I don't see this in the provided code [a.py:1-10]"}}
	sessions := session.New(time.Hour, time.Second)
	a := New(retriever, provider, sessions, "test-model", 0, 0)

	var events []Event
	err := a.Run(context.Background(), Request{Query: "how does the Kubernetes operator reconcile pods?", CodebaseID: "cb-1"}, func(e Event) {
		events = append(events, e)
	})
	require.NoError(t, err)

	var sourcesEvent *Event
	for i := range events {
		if events[i].Type == EventSources {
			sourcesEvent = &events[i]
		}
	}
	require.NotNil(t, sourcesEvent)
	assert.Empty(t, sourcesEvent.Sources)
}

func TestValidate_DiscardsCitationOutsideChunkRange(t *testing.T) {
	st := &state{
		draft:  "see [a.py:50-60]",
		chunks: []retrieval.Result{{FilePath: "a.py", LineStart: 1, LineEnd: 10}},
	}
	a := &Agent{}
	a.validate(st)
	assert.Empty(t, st.citations)
}

func TestValidate_AcceptsCitationWithinChunkRange(t *testing.T) {
	st := &state{
		draft:  "see [a.py:2-5]",
		chunks: []retrieval.Result{{FilePath: "a.py", LineStart: 1, LineEnd: 10, Score: 0.8}},
	}
	a := &Agent{}
	a.validate(st)
	require.Len(t, st.citations, 1)
	assert.Equal(t, "a.py", st.citations[0].FilePath)
}

func TestAnalyse_ExtractsLanguageCue(t *testing.T) {
	st := &state{query: "how is auth handled in Python?"}
	a := &Agent{}
	a.analyse(st)
	assert.Equal(t, "python", st.filters.Language)
}

func TestAnalyse_ExtractsFileCue(t *testing.T) {
	st := &state{query: "what's defined in auth.py?"}
	a := &Agent{}
	a.analyse(st)
	assert.Equal(t, "auth.py", st.filters.FilePathPrefix)
}

func TestContextualise_EmptyChunksUsesNoticeText(t *testing.T) {
	st := &state{chunks: nil}
	a := &Agent{contextBudgetTokens: defaultContextBudgetTokens}
	a.contextualise(st)
	assert.Equal(t, noRelevantCodeNotice, st.context)
}
