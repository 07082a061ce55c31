package chunk

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"code-doc-assistant/internal/codeparse"
	"code-doc-assistant/internal/config"
)

func testConfig() config.ChunkingConfig {
	return config.ChunkingConfig{TokenTarget: 800, TokenCap: 1500, Overlap: 75}
}

func TestChunkFile_FunctionAndClass(t *testing.T) {
	c := New(testConfig())
	regions := []codeparse.Region{
		{Kind: codeparse.KindImport, StartLine: 1, EndLine: 1, Text: `import "fmt"`, Dependencies: []string{"fmt"}},
		{Kind: codeparse.KindClass, Name: "Greeter", StartLine: 3, EndLine: 9, Text: "type Greeter struct{}"},
		{Kind: codeparse.KindMethod, Name: "Hello", EnclosingClass: "Greeter", StartLine: 5, EndLine: 7, Text: "func (g Greeter) Hello() string { return \"\" }"},
	}
	chunks := c.ChunkFile("cb1", "greeter.go", "go", "package main", regions)
	require.NotEmpty(t, chunks)

	var sawClass, sawMethod, sawImport bool
	for _, ch := range chunks {
		switch ch.Kind {
		case KindClass:
			sawClass = true
		case KindMethod:
			sawMethod = true
			assert.Equal(t, "Greeter", ch.EnclosingClass)
		case KindImport:
			sawImport = true
			assert.Contains(t, ch.Dependencies, "fmt")
		}
	}
	assert.True(t, sawClass)
	assert.True(t, sawMethod)
	assert.True(t, sawImport)
}

func TestChunkFile_DeterministicIDs(t *testing.T) {
	regions := []codeparse.Region{
		{Kind: codeparse.KindFunction, Name: "foo", StartLine: 1, EndLine: 10, Text: "func foo() {}"},
	}
	c := New(testConfig())
	a := c.ChunkFile("cb1", "a.go", "go", "", regions)
	b := c.ChunkFile("cb1", "a.go", "go", "", regions)
	require.Len(t, a, 1)
	require.Len(t, b, 1)
	assert.Equal(t, a[0].ID, b[0].ID)
}

func TestChunkFile_FallbackWindowForUnstructuredContent(t *testing.T) {
	c := New(config.ChunkingConfig{TokenTarget: 10, TokenCap: 50, Overlap: 2})
	text := ""
	for i := 0; i < 50; i++ {
		text += "this is a line of plain text that is reasonably long\n"
	}
	chunks := c.ChunkFile("cb1", "README.md", "markdown", text, nil)
	assert.Greater(t, len(chunks), 1)
	for _, ch := range chunks {
		assert.Equal(t, KindOther, ch.Kind)
		assert.LessOrEqual(t, ch.LineStart, ch.LineEnd)
	}
}

func TestChunkFile_EmptyFileProducesNoChunks(t *testing.T) {
	c := New(testConfig())
	chunks := c.ChunkFile("cb1", "empty.txt", "text", "", nil)
	assert.Empty(t, chunks)
}

func TestChunkFile_OversizedClassNotEmittedWhole(t *testing.T) {
	c := New(config.ChunkingConfig{TokenTarget: 800, TokenCap: 10, Overlap: 2})
	regions := []codeparse.Region{
		{Kind: codeparse.KindClass, Name: "Big", StartLine: 1, EndLine: 100, Text: string(make([]byte, 1000))},
		{Kind: codeparse.KindMethod, Name: "m1", EnclosingClass: "Big", StartLine: 2, EndLine: 5, Text: "func m1() {}"},
	}
	chunks := c.ChunkFile("cb1", "big.go", "go", "", regions)
	for _, ch := range chunks {
		assert.NotEqual(t, "Big", ch.Name, "oversized class should not be emitted whole")
	}
}
