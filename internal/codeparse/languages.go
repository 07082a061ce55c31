package codeparse

import (
	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// langSpec is the per-language table entry the generic walk is driven by:
// node-type names for each Region kind, plus the field names that carry
// identifier references for dependency extraction. Adding a language means
// adding one of these, not a bespoke walker.
type langSpec struct {
	grammarFunc    func() *sitter.Language
	FunctionKinds  []string
	ClassKinds     []string
	ImportKinds    []string
	depIdentifiers []string // node types, within an import/call node, that hold a reference name
}

func (s langSpec) language() *sitter.Language { return s.grammarFunc() }

// dependenciesOf collects the distinct identifier texts inside an import
// node, used to populate Chunk.dependencies (spec §3, §4.2).
func (s langSpec) dependenciesOf(node *sitter.Node, src []byte) []string {
	var out []string
	seen := make(map[string]bool)
	var visit func(n *sitter.Node)
	visit = func(n *sitter.Node) {
		if n == nil {
			return
		}
		if contains(s.depIdentifiers, n.Type()) {
			text := n.Content(src)
			if !seen[text] {
				seen[text] = true
				out = append(out, text)
			}
		}
		count := int(n.NamedChildCount())
		for i := 0; i < count; i++ {
			visit(n.NamedChild(i))
		}
	}
	visit(node)
	return out
}

// extensionOverrides maps specific file basenames whose extension alone is
// ambiguous or misleading to the extension actually governing their
// language (spec §4.2's "small override table").
var extensionOverrides = map[string]string{
	"BUILD.bazel": ".py", // bazel BUILD files are Python-like/Starlark; closest grammar available
}

// languages maps a file extension to its langSpec. Six languages covers the
// spec's required coverage: a dynamically-typed scripting language
// (Python), a browser/server scripting language with a typed variant
// (JavaScript/TypeScript), a managed enterprise language (Java), two
// statically typed systems languages (Go, Rust), plus TypeScript as the
// "one more".
var languages = map[string]langSpec{
	".go": {
		grammarFunc:   golang.GetLanguage,
		FunctionKinds: []string{"function_declaration", "method_declaration", "func_literal"},
		ClassKinds:    []string{"type_declaration"},
		ImportKinds:   []string{"import_declaration"},
		depIdentifiers: []string{"interpreted_string_literal"},
	},
	".py": {
		grammarFunc:   python.GetLanguage,
		FunctionKinds: []string{"function_definition"},
		ClassKinds:    []string{"class_definition"},
		ImportKinds:   []string{"import_statement", "import_from_statement"},
		depIdentifiers: []string{"dotted_name", "identifier"},
	},
	".js": {
		grammarFunc:   javascript.GetLanguage,
		FunctionKinds: []string{"function_declaration", "function", "arrow_function", "method_definition"},
		ClassKinds:    []string{"class_declaration"},
		ImportKinds:   []string{"import_statement"},
		depIdentifiers: []string{"string"},
	},
	".jsx": {
		grammarFunc:   javascript.GetLanguage,
		FunctionKinds: []string{"function_declaration", "function", "arrow_function", "method_definition"},
		ClassKinds:    []string{"class_declaration"},
		ImportKinds:   []string{"import_statement"},
		depIdentifiers: []string{"string"},
	},
	".ts": {
		grammarFunc:   typescript.GetLanguage,
		FunctionKinds: []string{"function_declaration", "function", "arrow_function", "method_definition", "method_signature"},
		ClassKinds:    []string{"class_declaration", "interface_declaration"},
		ImportKinds:   []string{"import_statement"},
		depIdentifiers: []string{"string"},
	},
	".tsx": {
		grammarFunc:   typescript.GetLanguage,
		FunctionKinds: []string{"function_declaration", "function", "arrow_function", "method_definition"},
		ClassKinds:    []string{"class_declaration", "interface_declaration"},
		ImportKinds:   []string{"import_statement"},
		depIdentifiers: []string{"string"},
	},
	".java": {
		grammarFunc:   java.GetLanguage,
		FunctionKinds: []string{"method_declaration", "constructor_declaration"},
		ClassKinds:    []string{"class_declaration", "interface_declaration", "enum_declaration"},
		ImportKinds:   []string{"import_declaration"},
		depIdentifiers: []string{"scoped_identifier", "identifier"},
	},
	".rs": {
		grammarFunc:   rust.GetLanguage,
		FunctionKinds: []string{"function_item"},
		ClassKinds:    []string{"struct_item", "enum_item", "impl_item", "trait_item"},
		ImportKinds:   []string{"use_declaration"},
		depIdentifiers: []string{"scoped_identifier", "identifier"},
	},
}
