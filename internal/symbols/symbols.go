// Package symbols retrieves code snippets by symbol name from a pre-built
// symbol cache. The cache is produced by `ragweaver update` (tree-sitter
// walk over the project) and loaded once at startup; when it is missing or
// unreadable the index reports unavailable and the orchestrator falls back
// to a bounded filesystem scan with the same output shape.
package symbols

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// Scoring weights per query token.
const (
	nameMatchScore      = 3.0 // token equals the symbol name
	qualifiedMatchScore = 2.0 // token appears in the qualified name
	pathMatchScore      = 1.0 // token appears in the file path

	// contextLines is how much surrounding code a snippet carries.
	contextLines = 8

	// scoreScale maps accumulated hit scores into [0,1].
	scoreScale = 0.2

	// minTokenLen filters query tokens too short to mean anything in code.
	minTokenLen = 3
)

// CacheFileName is the symbol cache location relative to the project's
// .ragweaver directory.
const CacheFileName = "symbols.json"

// Symbol is one entry in the cache.
type Symbol struct {
	Name      string `json:"name"`
	Qualified string `json:"qualified"`
	Kind      string `json:"kind"`
	Path      string `json:"path"`
	StartLine int    `json:"start_line"`
	EndLine   int    `json:"end_line"`
}

// Cache is the serialized symbol cache.
type Cache struct {
	GeneratedAt string   `json:"generated_at"`
	Root        string   `json:"root"`
	Symbols     []Symbol `json:"symbols"`
}

// Index answers symbol queries from the loaded cache.
type Index struct {
	root    string
	symbols []Symbol
	loaded  bool
}

// CachePath returns where the symbol cache lives for a project root.
func CachePath(root string) string {
	return filepath.Join(root, ".ragweaver", CacheFileName)
}

// Load reads the symbol cache for the project. A missing or unreadable
// cache yields an unavailable index, not an error: symbol retrieval is
// optional and the orchestrator has a fallback.
func Load(root string) *Index {
	idx := &Index{root: root}

	data, err := os.ReadFile(CachePath(root))
	if err != nil {
		return idx
	}
	var cache Cache
	if err := json.Unmarshal(data, &cache); err != nil {
		return idx
	}

	idx.symbols = cache.Symbols
	idx.loaded = true
	return idx
}

// Available reports whether a cache was loaded.
func (x *Index) Available() bool {
	return x != nil && x.loaded
}

// Size reports how many symbols the cache holds.
func (x *Index) Size() int {
	if x == nil {
		return 0
	}
	return len(x.symbols)
}

// Search scores every cached symbol against the query set and returns the
// top limit as snippet documents tagged source=code. Scores accumulate
// across queries; ties keep cache order.
func (x *Index) Search(queries []string, limit int) []rag.Document {
	if !x.Available() || limit <= 0 {
		return nil
	}

	tokens := queryTokens(queries)
	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		sym   Symbol
		score float64
	}
	var hits []scored
	for _, sym := range x.symbols {
		score := scoreSymbol(sym, tokens)
		if score > 0 {
			hits = append(hits, scored{sym: sym, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	docs := make([]rag.Document, 0, len(hits))
	for _, h := range hits {
		snippet, ok := readSnippet(x.root, h.sym)
		if !ok {
			continue
		}
		doc := rag.NewDocument(snippet, rag.SourceCode)
		doc.Score = clampUnit(scoreScale * h.score)
		doc.Metadata = map[string]string{
			"symbol": h.sym.Name,
			"kind":   h.sym.Kind,
			"path":   h.sym.Path,
		}
		docs = append(docs, doc)
	}
	return docs
}

// scoreSymbol accumulates per-token weights: exact name match counts most,
// qualified-name containment next, path containment least.
func scoreSymbol(sym Symbol, tokens []string) float64 {
	name := strings.ToLower(sym.Name)
	qualified := strings.ToLower(sym.Qualified)
	path := strings.ToLower(sym.Path)

	var score float64
	for _, tok := range tokens {
		if tok == name {
			score += nameMatchScore
		}
		if qualified != "" && strings.Contains(qualified, tok) {
			score += qualifiedMatchScore
		}
		if strings.Contains(path, tok) {
			score += pathMatchScore
		}
	}
	return score
}

// queryTokens lowercases and splits the query set, dropping short tokens
// and duplicates while preserving first-seen order.
func queryTokens(queries []string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, q := range queries {
		for _, tok := range strings.FieldsFunc(strings.ToLower(q), func(r rune) bool {
			return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_'
		}) {
			if len(tok) < minTokenLen {
				continue
			}
			if _, dup := seen[tok]; dup {
				continue
			}
			seen[tok] = struct{}{}
			tokens = append(tokens, tok)
		}
	}
	return tokens
}

// readSnippet loads the symbol's source with surrounding context, formatted
// the same way the keyword scanner formats its hits.
func readSnippet(root string, sym Symbol) (string, bool) {
	data, err := os.ReadFile(filepath.Join(root, sym.Path))
	if err != nil {
		return "", false
	}
	lines := strings.Split(string(data), "\n")

	start := sym.StartLine - contextLines
	if start < 1 {
		start = 1
	}
	end := sym.EndLine + contextLines
	if end > len(lines) {
		end = len(lines)
	}
	if start > len(lines) {
		return "", false
	}

	code := strings.Join(lines[start-1:end], "\n")
	return fmt.Sprintf("# File: %s:%d-%d\n%s", sym.Path, start, end, code), true
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
