// Package keyword provides a token-based grep over the project tree. It is
// the cheapest retriever in the pipeline: pick the most salient token from
// the query, hand it to ripgrep, and wrap each matching line in a small
// file-and-line snippet. A missing rg binary is a silent empty result, never
// an error.
package keyword

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strings"

	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	// minTokenLen is the shortest token worth grepping for. Anything at or
	// below this is a stop word or operator in disguise.
	minTokenLen = 4

	// matchScore is the flat relevance score for grep hits; the reranker
	// decides their real position.
	matchScore = 0.6

	// rawMatchFactor bounds how many raw rg events are consumed per
	// request: limit results out of at most rawMatchFactor*limit matches.
	rawMatchFactor = 3
)

// Scanner greps the project tree for the query's most salient token.
type Scanner struct {
	root   string
	binary string
	logger *slog.Logger

	// run is swapped in tests to avoid requiring rg on the test host.
	run func(ctx context.Context, binary string, args ...string) ([]byte, error)
}

// NewScanner builds a scanner rooted at the project directory.
func NewScanner(root string, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		root:   root,
		binary: "rg",
		logger: logger,
		run:    runRipgrep,
	}
}

// Search greps for the salient token and returns at most limit snippet
// documents tagged source=keyword. Queries with no usable token, a missing
// rg binary, and rg failures all return an empty slice with a nil error.
func (s *Scanner) Search(ctx context.Context, query string, limit int) ([]rag.Document, error) {
	if limit <= 0 {
		return nil, nil
	}
	token := SalientToken(query)
	if token == "" {
		return nil, nil
	}

	args := []string{
		"--json",
		"-i",
		"--max-count", fmt.Sprint(rawMatchFactor * limit),
		token,
		s.root,
	}
	output, err := s.run(ctx, s.binary, args...)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// rg exits 1 on no matches and 2 on errors; absence of the binary
		// lands here too. All of them mean "no keyword evidence".
		s.logger.Debug("keyword_scan_empty",
			slog.String("token", token),
			slog.String("reason", err.Error()))
		return nil, nil
	}

	return s.parseMatches(output, limit), nil
}

// tokenPattern matches candidate identifiers: letters, digits, underscores.
var tokenPattern = regexp.MustCompile(`[A-Za-z0-9_]+`)

// SalientToken picks the token to grep for: the longest alphanumeric or
// underscore run longer than minTokenLen, first one winning ties.
func SalientToken(query string) string {
	best := ""
	for _, tok := range tokenPattern.FindAllString(query, -1) {
		if len(tok) <= minTokenLen-1 {
			continue
		}
		if len(tok) > len(best) {
			best = tok
		}
	}
	return best
}

// rgEvent is the subset of ripgrep's --json stream the scanner consumes.
type rgEvent struct {
	Type string `json:"type"`
	Data struct {
		Path struct {
			Text string `json:"text"`
		} `json:"path"`
		Lines struct {
			Text string `json:"text"`
		} `json:"lines"`
		LineNumber int `json:"line_number"`
	} `json:"data"`
}

// parseMatches consumes rg's JSON event stream, bounded at rawMatchFactor
// times the limit, and emits at most limit snippet documents.
func (s *Scanner) parseMatches(output []byte, limit int) []rag.Document {
	var docs []rag.Document
	seen := make(map[string]struct{})
	raw := 0

	scanner := bufio.NewScanner(bytes.NewReader(output))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)
	for scanner.Scan() {
		if raw >= rawMatchFactor*limit || len(docs) >= limit {
			break
		}
		var ev rgEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil || ev.Type != "match" {
			continue
		}
		raw++

		rel := s.relPath(ev.Data.Path.Text)
		line := strings.TrimRight(ev.Data.Lines.Text, "\n")
		content := fmt.Sprintf("# File: %s:%d\n%s", rel, ev.Data.LineNumber, line)

		doc := rag.NewDocument(content, rag.SourceKeyword)
		if _, dup := seen[doc.ID]; dup {
			continue
		}
		seen[doc.ID] = struct{}{}
		doc.Score = matchScore
		doc.Metadata = map[string]string{
			"path": rel,
			"line": fmt.Sprint(ev.Data.LineNumber),
		}
		docs = append(docs, doc)
	}
	return docs
}

func (s *Scanner) relPath(path string) string {
	if s.root == "" {
		return path
	}
	rel := strings.TrimPrefix(path, s.root)
	return strings.TrimPrefix(rel, "/")
}

func runRipgrep(ctx context.Context, binary string, args ...string) ([]byte, error) {
	if _, err := exec.LookPath(binary); err != nil {
		return nil, err
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout bytes.Buffer
	cmd.Stdout = &stdout
	if err := cmd.Run(); err != nil {
		return nil, err
	}
	return stdout.Bytes(), nil
}
