// Package compress assembles the ranked documents into a bounded context
// string for synthesis. Top documents go in verbatim, the tail as head
// summaries, and the budget is never exceeded.
package compress

import (
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	defaultMaxChars             = 120000
	defaultFullTextRank         = 10
	defaultFullTextScore        = 0.8
	defaultSummaryChars         = 1500
	defaultTruncateMinRemaining = 500

	truncatedSuffix = "... [truncated]\n"
)

// Config tunes the assembly. Zero values fall back to defaults.
type Config struct {
	// MaxChars is the context character budget.
	MaxChars int
	// FullTextRank and FullTextScore qualify a document for verbatim
	// inclusion: rank below FullTextRank or final score above
	// FullTextScore.
	FullTextRank  int
	FullTextScore float64
	// SummaryChars is the head size used for the remaining documents.
	SummaryChars int
	// TruncateMinRemaining is the smallest leftover budget worth filling
	// with a truncated document before stopping.
	TruncateMinRemaining int
}

func (c Config) withDefaults() Config {
	if c.MaxChars <= 0 {
		c.MaxChars = defaultMaxChars
	}
	if c.FullTextRank <= 0 {
		c.FullTextRank = defaultFullTextRank
	}
	if c.FullTextScore <= 0 {
		c.FullTextScore = defaultFullTextScore
	}
	if c.SummaryChars <= 0 {
		c.SummaryChars = defaultSummaryChars
	}
	if c.TruncateMinRemaining <= 0 {
		c.TruncateMinRemaining = defaultTruncateMinRemaining
	}
	return c
}

// Compressor folds ranked documents into a context string.
type Compressor struct {
	cfg    Config
	logger *slog.Logger
}

// Option configures a Compressor.
type Option func(*Compressor)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Compressor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New builds a Compressor.
func New(cfg Config, opts ...Option) *Compressor {
	c := &Compressor{
		cfg:    cfg.withDefaults(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compress walks the ranked documents in order and emits one entry per
// document until the budget runs out. It returns the joined context, the
// characters used, and how many documents made it in.
//
// Documents ranked inside the full-text window, or scoring above the
// full-text threshold, are included verbatim. When a full-text entry no
// longer fits, a truncated version is emitted if enough budget remains,
// and assembly stops either way. All other documents contribute a head
// summary; the first summary that does not fit also stops assembly.
func (c *Compressor) Compress(docs []rag.Document) (string, int, int) {
	if len(docs) == 0 {
		return "", 0, 0
	}

	var b strings.Builder
	included := 0

	for i, d := range docs {
		remaining := c.cfg.MaxChars - b.Len()

		if i < c.cfg.FullTextRank || d.FinalScore > c.cfg.FullTextScore {
			entry := fmt.Sprintf("[Doc %d] (Score: %.2f)\n%s\n", i+1, d.FinalScore, d.Content)
			if len(entry) <= remaining {
				b.WriteString(entry)
				included++
				continue
			}
			if remaining >= c.cfg.TruncateMinRemaining {
				header := fmt.Sprintf("[Doc %d] (Score: %.2f)\n", i+1, d.FinalScore)
				room := remaining - len(header) - len(truncatedSuffix)
				if room > 0 {
					b.WriteString(header)
					b.WriteString(cutAtRune(d.Content, room))
					b.WriteString(truncatedSuffix)
					included++
				}
			}
			break
		}

		summary := cutAtRune(d.Content, c.cfg.SummaryChars)
		entry := fmt.Sprintf("[Doc %d] (Summary)\n%s...\n", i+1, summary)
		if len(entry) > remaining {
			break
		}
		b.WriteString(entry)
		included++
	}

	out := b.String()
	c.logger.Debug("context_compressed",
		"documents", len(docs),
		"included", included,
		"chars", len(out))
	return out, len(out), included
}

// cutAtRune truncates s to at most n bytes, backing off so the cut never
// splits a multi-byte rune.
func cutAtRune(s string, n int) string {
	if n >= len(s) {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
