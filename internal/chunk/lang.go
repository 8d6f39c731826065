package chunk

import (
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// language binds a tree-sitter grammar to the node types that declare
// symbols in it.
type language struct {
	grammar *sitter.Language

	// symbolKinds maps declaration node types to the kind recorded in the
	// symbol cache.
	symbolKinds map[string]string

	// containerTypes are node types that scope the declarations under them,
	// such as classes. Symbols inside pick the container's name up as a
	// qualifier, and functions inside become methods.
	containerTypes map[string]bool
}

var languages = map[string]*language{
	"go": {
		grammar: golang.GetLanguage(),
		symbolKinds: map[string]string{
			"function_declaration": "function",
			"method_declaration":   "method",
			"type_declaration":     "type",
			"const_declaration":    "const",
			"var_declaration":      "var",
		},
	},
	"python": {
		grammar: python.GetLanguage(),
		symbolKinds: map[string]string{
			"function_definition": "function",
			"class_definition":    "class",
		},
		containerTypes: map[string]bool{"class_definition": true},
	},
	"javascript": {
		grammar: javascript.GetLanguage(),
		symbolKinds: map[string]string{
			"function_declaration": "function",
			"method_definition":    "method",
			"class_declaration":    "class",
			"lexical_declaration":  "function", // const f = () => {} only
		},
		containerTypes: map[string]bool{"class_declaration": true},
	},
	"typescript": {
		grammar: typescript.GetLanguage(),
		symbolKinds: map[string]string{
			"function_declaration":   "function",
			"method_definition":      "method",
			"class_declaration":      "class",
			"interface_declaration":  "interface",
			"type_alias_declaration": "type",
			"enum_declaration":       "enum",
			"lexical_declaration":    "function",
		},
		containerTypes: map[string]bool{"class_declaration": true},
	},
}

func init() {
	ts := languages["typescript"]
	languages["tsx"] = &language{
		grammar:        tsx.GetLanguage(),
		symbolKinds:    ts.symbolKinds,
		containerTypes: ts.containerTypes,
	}
	js := languages["javascript"]
	languages["jsx"] = &language{
		grammar:        js.grammar,
		symbolKinds:    js.symbolKinds,
		containerTypes: js.containerTypes,
	}
}

// languageFor returns the grammar binding for a scanner language name, or
// nil when the language has no parser.
func languageFor(name string) *language {
	return languages[strings.ToLower(name)]
}

// declName pulls the declared identifier out of a declaration node. Go
// groups type, const, and var declarations into spec lists, and JavaScript
// lexical declarations nest the name inside a declarator.
func declName(n *sitter.Node, source []byte) string {
	if name := n.ChildByFieldName("name"); name != nil {
		return name.Content(source)
	}
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		switch child.Type() {
		case "type_spec", "const_spec", "var_spec", "variable_declarator":
			if name := child.ChildByFieldName("name"); name != nil {
				return name.Content(source)
			}
		}
	}
	return ""
}

// goReceiverType extracts the receiver type name of a Go method so the
// symbol cache can qualify it.
func goReceiverType(n *sitter.Node, source []byte) string {
	recv := n.ChildByFieldName("receiver")
	if recv == nil {
		return ""
	}
	text := strings.Trim(recv.Content(source), "()")
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return ""
	}
	t := strings.TrimPrefix(fields[len(fields)-1], "*")
	if i := strings.IndexByte(t, '['); i >= 0 {
		t = t[:i]
	}
	return t
}

// bindsFunction reports whether a lexical declaration assigns a function
// value, the common way JavaScript and TypeScript define functions.
func bindsFunction(n *sitter.Node) bool {
	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		if child.Type() != "variable_declarator" {
			continue
		}
		value := child.ChildByFieldName("value")
		if value == nil {
			return false
		}
		switch value.Type() {
		case "arrow_function", "function", "function_expression", "generator_function":
			return true
		}
		return false
	}
	return false
}
