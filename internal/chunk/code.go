package chunk

import (
	"context"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/ragweaver/ragweaver/internal/store"
)

// splitCode cuts a code file along its top-level declarations and collects
// the symbols it declares. Files in languages without a grammar, and files
// the parser rejects, degrade to plain line windows.
func (s *Splitter) splitCode(ctx context.Context, f File, content string) (*Result, error) {
	lang := languageFor(f.Language)
	if lang == nil {
		return &Result{Chunks: s.windowChunks(f, content, 1, "")}, nil
	}

	source := []byte(content)
	parser := sitter.NewParser()
	defer parser.Close()
	parser.SetLanguage(lang.grammar)

	tree, err := parser.ParseCtx(ctx, nil, source)
	if err != nil || tree == nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Warn("code_parse_failed",
			"path", f.Path,
			"language", f.Language,
			"error", err)
		return &Result{Chunks: s.windowChunks(f, content, 1, "")}, nil
	}

	root := tree.RootNode()
	return &Result{
		Chunks:  s.declarationChunks(f, source, root, lang),
		Symbols: collectSymbols(source, root, lang, "", true),
	}, nil
}

// declarationChunks groups consecutive top-level declarations into chunks of
// roughly the configured size. Comments are named nodes, so a doc comment
// rides in the same group as the declaration below it. A declaration that
// alone exceeds twice the budget is split into line windows that keep its
// name as the title.
func (s *Splitter) declarationChunks(f File, source []byte, root *sitter.Node, lang *language) []*store.Chunk {
	var chunks []*store.Chunk

	type member struct {
		node  *sitter.Node
		title string
	}
	var group []member

	flush := func() {
		if len(group) == 0 {
			return
		}
		first, last := group[0].node, group[len(group)-1].node
		title := ""
		for _, m := range group {
			if m.title != "" {
				title = m.title
				break
			}
		}
		text := string(source[first.StartByte():last.EndByte()])
		chunks = append(chunks, s.newChunk(f, text, int(first.StartPoint().Row)+1, title))
		group = group[:0]
	}

	for i := 0; i < int(root.NamedChildCount()); i++ {
		n := root.NamedChild(i)

		title := ""
		if _, ok := lang.symbolKinds[n.Type()]; ok {
			if n.Type() != "lexical_declaration" || bindsFunction(n) {
				title = declName(n, source)
			}
		}

		if int(n.EndByte()-n.StartByte()) > 2*s.size {
			flush()
			text := string(source[n.StartByte():n.EndByte()])
			chunks = append(chunks, s.windowChunks(f, text, int(n.StartPoint().Row)+1, title)...)
			continue
		}

		if len(group) > 0 && int(n.EndByte())-int(group[0].node.StartByte()) > s.size {
			flush()
		}
		group = append(group, member{node: n, title: title})
	}
	flush()
	return chunks
}

// collectSymbols walks the tree for declarations worth indexing. container
// carries the enclosing class name so methods come out qualified, and top
// limits const, var, and type records to file scope, where they name the
// public surface rather than locals.
func collectSymbols(source []byte, n *sitter.Node, lang *language, container string, top bool) []Symbol {
	var syms []Symbol

	for i := 0; i < int(n.NamedChildCount()); i++ {
		child := n.NamedChild(i)
		nodeType := child.Type()
		kind, declares := lang.symbolKinds[nodeType]
		if declares && nodeType == "lexical_declaration" && !bindsFunction(child) {
			declares = false
		}

		switch nodeType {
		case "type_declaration", "const_declaration", "var_declaration":
			if top {
				syms = append(syms, specSymbols(source, child, kind)...)
			}
			continue
		}

		if declares {
			if name := declName(child, source); name != "" {
				sym := Symbol{
					Name:      name,
					Kind:      kind,
					Container: container,
					StartLine: int(child.StartPoint().Row) + 1,
					EndLine:   int(child.EndPoint().Row) + 1,
				}
				if nodeType == "method_declaration" {
					sym.Container = goReceiverType(child, source)
				}
				if container != "" && kind == "function" {
					sym.Kind = "method"
				}
				syms = append(syms, sym)
			}
		}

		next := container
		if lang.containerTypes[nodeType] {
			if name := declName(child, source); name != "" {
				next = name
			}
		}
		syms = append(syms, collectSymbols(source, child, lang, next, false)...)
	}
	return syms
}

// specSymbols emits one symbol per spec in a grouped Go declaration, so
// `type ( A ...; B ... )` records both A and B.
func specSymbols(source []byte, decl *sitter.Node, kind string) []Symbol {
	var syms []Symbol
	for i := 0; i < int(decl.NamedChildCount()); i++ {
		spec := decl.NamedChild(i)
		switch spec.Type() {
		case "type_spec", "const_spec", "var_spec":
		default:
			continue
		}
		name := spec.ChildByFieldName("name")
		if name == nil {
			continue
		}
		syms = append(syms, Symbol{
			Name:      name.Content(source),
			Kind:      kind,
			StartLine: int(spec.StartPoint().Row) + 1,
			EndLine:   int(spec.EndPoint().Row) + 1,
		})
	}
	return syms
}
