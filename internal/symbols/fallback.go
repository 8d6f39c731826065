package symbols

import (
	"bufio"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// maxFallbackFiles caps how many source files the fallback scan examines.
// The fallback exists for projects without a symbol cache; it trades recall
// for a hard upper bound on filesystem work.
const maxFallbackFiles = 400

// sourceExtensions are the file types the fallback scan considers code.
var sourceExtensions = map[string]struct{}{
	".go": {}, ".py": {}, ".js": {}, ".jsx": {}, ".ts": {}, ".tsx": {},
	".rs": {}, ".java": {}, ".rb": {}, ".c": {}, ".h": {}, ".cpp": {}, ".hpp": {},
}

// skipDirs are never descended into during the fallback scan.
var skipDirs = map[string]struct{}{
	".git": {}, "node_modules": {}, "vendor": {}, "__pycache__": {},
	"dist": {}, "build": {}, ".ragweaver": {},
}

// FallbackScanner is the degraded replacement for the symbol index: a
// bounded walk over source files looking for lines that mention a query
// token. Output matches the index's snippet shape so ranking and
// compression treat both identically.
type FallbackScanner struct {
	root string
}

// NewFallbackScanner builds a scanner rooted at the project directory.
func NewFallbackScanner(root string) *FallbackScanner {
	return &FallbackScanner{root: root}
}

// Search walks at most maxFallbackFiles source files and returns up to
// limit snippet documents tagged source=code_fallback.
func (f *FallbackScanner) Search(queries []string, limit int) []rag.Document {
	if limit <= 0 {
		return nil
	}
	tokens := queryTokens(queries)
	if len(tokens) == 0 {
		return nil
	}

	type hit struct {
		path    string
		line    int
		content string
		score   float64
	}
	var hits []hit
	examined := 0

	_ = filepath.WalkDir(f.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		if d.IsDir() {
			if _, skip := skipDirs[d.Name()]; skip {
				return filepath.SkipDir
			}
			return nil
		}
		if _, ok := sourceExtensions[filepath.Ext(path)]; !ok {
			return nil
		}
		if examined >= maxFallbackFiles {
			return filepath.SkipAll
		}
		examined++

		rel, relErr := filepath.Rel(f.root, path)
		if relErr != nil {
			rel = path
		}
		for _, match := range scanFile(path, tokens) {
			hits = append(hits, hit{
				path:    rel,
				line:    match.line,
				content: match.text,
				score:   match.score,
			})
		}
		return nil
	})

	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	docs := make([]rag.Document, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, h := range hits {
		content := fmt.Sprintf("# File: %s:%d\n%s", h.path, h.line, h.content)
		doc := rag.NewDocument(content, rag.SourceCodeFallback)
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		doc.Score = clampUnit(scoreScale * h.score)
		doc.Metadata = map[string]string{
			"path": h.path,
			"line": fmt.Sprint(h.line),
		}
		docs = append(docs, doc)
	}
	return docs
}

type lineMatch struct {
	line  int
	text  string
	score float64
}

// scanFile returns the matching lines of one file. Definition-looking lines
// (func/def/class/type) outscore plain mentions so the fallback surfaces
// declarations first, approximating what the symbol cache would return.
func scanFile(path string, tokens []string) []lineMatch {
	file, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer file.Close()

	var matches []lineMatch
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		lower := strings.ToLower(text)

		var score float64
		for _, tok := range tokens {
			if !strings.Contains(lower, tok) {
				continue
			}
			if isDefinitionLine(lower) {
				score += nameMatchScore
			} else {
				score += pathMatchScore
			}
		}
		if score > 0 {
			matches = append(matches, lineMatch{line: lineNo, text: text, score: score})
		}
		// One file should not flood the candidate pool.
		if len(matches) >= 20 {
			break
		}
	}
	return matches
}

var definitionPrefixes = []string{"func ", "def ", "class ", "type ", "interface ", "fn "}

func isDefinitionLine(lower string) bool {
	trimmed := strings.TrimSpace(lower)
	for _, p := range definitionPrefixes {
		if strings.HasPrefix(trimmed, p) {
			return true
		}
	}
	return false
}
