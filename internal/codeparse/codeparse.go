// Package codeparse turns a file path and its content into a list of
// AST-derived regions using github.com/smacker/go-tree-sitter. Rather than
// one hand-written walker per language, a single generic walk is driven by
// a per-language table of node-type names (langSpec), so adding a seventh
// language is a table entry, not a new file.
package codeparse

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// Kind enumerates the region categories the chunker consumes (spec §4.2).
type Kind string

const (
	KindFunction Kind = "function"
	KindMethod   Kind = "method"
	KindClass    Kind = "class"
	KindImport   Kind = "import"
	KindModule   Kind = "module_preamble"
)

// Region is one AST-derived slice of a file (spec §4.2, §3 Chunk metadata
// groundwork).
type Region struct {
	Kind            Kind
	Name            string
	StartLine       int // 1-based, inclusive
	EndLine         int // 1-based, inclusive
	Text            string
	EnclosingClass  string // empty if top-level
	Dependencies    []string
}

// Warning records a skip reason that does not abort the file (spec §4.2,
// §4.9 warnings accumulation).
type Warning struct {
	Path   string
	Reason string
}

// Parse detects the language from path's extension and walks the resulting
// AST into Regions. Syntax errors never abort the file: tree-sitter's error
// recovery still yields a tree, and invalid subtrees are simply skipped by
// the walk, per node, rather than discarding the whole parse.
func Parse(path string, content []byte) ([]Region, *Warning, error) {
	spec, ok := specFor(path)
	if !ok {
		return nil, &Warning{Path: path, Reason: "unsupported or unrecognized extension"}, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(spec.language())

	tree, err := parser.ParseCtx(context.Background(), nil, content)
	if err != nil {
		return nil, nil, fmt.Errorf("codeparse: parse %s: %w", path, err)
	}
	defer tree.Close()

	root := tree.RootNode()
	w := &walker{spec: spec, src: content, path: path}
	w.walk(root, "")
	return w.regions, nil, nil
}

// specFor resolves the language table entry for path by extension, honoring
// the small override table for ambiguous extensions (spec §4.2).
func specFor(path string) (langSpec, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	if override, ok := extensionOverrides[filepath.Base(path)]; ok {
		ext = override
	}
	spec, ok := languages[ext]
	return spec, ok
}

// walker carries the per-file state for the generic AST walk.
type walker struct {
	spec    langSpec
	src     []byte
	path    string
	regions []Region
}

// walk recursively visits node, emitting a Region for every node whose
// type matches one of spec's recognized kinds, tagging it with the nearest
// enclosing class name (enclosing is the empty string at the top level).
// Nodes that tree-sitter marks as ERROR are skipped without recursing,
// which is how a syntax error in one function leaves every other region in
// the file intact.
func (w *walker) walk(node *sitter.Node, enclosing string) {
	if node == nil {
		return
	}
	if node.IsError() || node.IsMissing() {
		return
	}

	nodeType := node.Type()
	nextEnclosing := enclosing

	switch {
	case contains(w.spec.ClassKinds, nodeType):
		name := w.nameOf(node)
		w.regions = append(w.regions, w.regionOf(node, KindClass, name, enclosing))
		nextEnclosing = name
	case contains(w.spec.FunctionKinds, nodeType):
		name := w.nameOf(node)
		kind := KindFunction
		if enclosing != "" {
			kind = KindMethod
		}
		w.regions = append(w.regions, w.regionOf(node, kind, name, enclosing))
	case contains(w.spec.ImportKinds, nodeType):
		w.regions = append(w.regions, w.regionOf(node, KindImport, "", enclosing))
	}

	count := int(node.NamedChildCount())
	for i := 0; i < count; i++ {
		w.walk(node.NamedChild(i), nextEnclosing)
	}
}

func (w *walker) nameOf(node *sitter.Node) string {
	if n := node.ChildByFieldName("name"); n != nil {
		return n.Content(w.src)
	}
	return "anonymous"
}

func (w *walker) regionOf(node *sitter.Node, kind Kind, name, enclosing string) Region {
	return Region{
		Kind:           kind,
		Name:           name,
		StartLine:      int(node.StartPoint().Row) + 1,
		EndLine:        int(node.EndPoint().Row) + 1,
		Text:           node.Content(w.src),
		EnclosingClass: enclosing,
		Dependencies:   w.spec.dependenciesOf(node, w.src),
	}
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
