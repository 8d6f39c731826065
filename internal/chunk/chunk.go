// Package chunk splits scanned files into indexable units. Markdown is cut
// along headings, code along tree-sitter declarations, and everything else
// into line windows with overlap. Every chunker emits store.Chunk values
// ready for the docstore, the keyword index, and the vector backend.
package chunk

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ragweaver/ragweaver/internal/store"
)

// Default window bounds, used when the splitter is built without options.
const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// File is one scanned file handed to the splitter. Kind and Language follow
// the scanner's classification.
type File struct {
	Path     string
	Content  []byte
	Kind     string
	Language string
}

// Symbol is a named declaration found while chunking a code file. The
// symbol cache builder persists these alongside the chunks.
type Symbol struct {
	Name      string
	Kind      string
	Container string // enclosing class or receiver type, empty at top level
	StartLine int    // 1-indexed
	EndLine   int    // inclusive
}

// Result carries everything extracted from one file.
type Result struct {
	Chunks  []*store.Chunk
	Symbols []Symbol
}

// Splitter routes files to the chunker matching their kind.
type Splitter struct {
	size    int
	overlap int
	logger  *slog.Logger
}

// Option configures a Splitter.
type Option func(*Splitter)

// WithSize sets the target chunk size in characters.
func WithSize(n int) Option {
	return func(s *Splitter) {
		if n > 0 {
			s.size = n
		}
	}
}

// WithOverlap sets how many characters of trailing lines carry into the
// next window when a file is split by size.
func WithOverlap(n int) Option {
	return func(s *Splitter) {
		if n >= 0 {
			s.overlap = n
		}
	}
}

// WithLogger sets the logger used for parse fallback warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Splitter) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewSplitter builds a splitter with the given options.
func NewSplitter(opts ...Option) *Splitter {
	s := &Splitter{
		size:    DefaultSize,
		overlap: DefaultOverlap,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.overlap >= s.size {
		s.overlap = s.size / 4
	}
	return s
}

// Split chunks one file. Code files also yield the symbols they declare.
// Unparseable code degrades to plain windows rather than failing the file.
func (s *Splitter) Split(ctx context.Context, f File) (*Result, error) {
	content := normalize(f.Content)
	if strings.TrimSpace(content) == "" {
		return &Result{}, nil
	}

	switch f.Kind {
	case "markdown":
		return &Result{Chunks: s.splitMarkdown(f, content)}, nil
	case "code":
		return s.splitCode(ctx, f, content)
	default:
		return &Result{Chunks: s.windowChunks(f, content, 1, "")}, nil
	}
}

func normalize(content []byte) string {
	return strings.ReplaceAll(string(content), "\r\n", "\n")
}

// window is a run of whole lines destined for one chunk.
type window struct {
	startLine int // 1-indexed position in the file
	text      string
}

// splitWindows accumulates whole lines into windows of roughly size
// characters. Windows prefer to end at a blank line when one falls past the
// midpoint, and each window after the first starts with up to overlap
// characters of the previous window's trailing lines. A single line longer
// than the budget becomes its own window, so chunk IDs, which key on the
// start line, stay unique within a file.
func splitWindows(content string, size, overlap int) []window {
	lines := strings.Split(content, "\n")
	var out []window

	type pending struct {
		line int // index into lines
		text string
	}
	var buf []pending
	bufLen := 0
	lastEmitted := -1

	flush := func(upto int) {
		if upto <= 0 {
			return
		}
		first := 0
		for first < upto && strings.TrimSpace(buf[first].text) == "" {
			first++
		}
		if first < upto {
			parts := make([]string, 0, upto-first)
			for i := first; i < upto; i++ {
				parts = append(parts, buf[i].text)
			}
			out = append(out, window{
				startLine: buf[first].line + 1,
				text:      strings.TrimRight(strings.Join(parts, "\n"), "\n \t"),
			})
		}
		lastEmitted = buf[upto-1].line

		// Seed the next window with trailing lines worth up to overlap
		// characters. The tail must stay strictly shorter than the window
		// so every flush makes progress.
		tailStart := upto
		tailLen := 0
		for i := upto - 1; i > 0; i-- {
			step := len(buf[i].text) + 1
			if tailLen+step > overlap {
				break
			}
			tailLen += step
			tailStart = i
		}
		rest := append(buf[tailStart:upto:upto], buf[upto:]...)
		buf = rest
		bufLen = 0
		for _, p := range buf {
			bufLen += len(p.text) + 1
		}
	}

	for i, line := range lines {
		buf = append(buf, pending{line: i, text: line})
		bufLen += len(line) + 1
		if bufLen < size {
			continue
		}

		// Prefer cutting at the last blank line past the midpoint.
		cut := len(buf)
		for j := len(buf) - 1; j > 0; j-- {
			if strings.TrimSpace(buf[j].text) != "" {
				continue
			}
			head := 0
			for k := 0; k < j; k++ {
				head += len(buf[k].text) + 1
			}
			if head >= size/2 {
				cut = j
			}
			break
		}
		flush(cut)
	}
	// A leftover made purely of overlap tail was already emitted.
	if len(buf) > 0 && buf[len(buf)-1].line > lastEmitted {
		for _, p := range buf {
			if strings.TrimSpace(p.text) != "" {
				flush(len(buf))
				break
			}
		}
	}
	return out
}

// windowChunks turns plain content into chunks. startLine anchors the
// content's position in the original file and title carries a section
// heading or symbol name onto every produced chunk.
func (s *Splitter) windowChunks(f File, content string, startLine int, title string) []*store.Chunk {
	var chunks []*store.Chunk
	for _, w := range splitWindows(content, s.size, s.overlap) {
		chunks = append(chunks, s.newChunk(f, w.text, startLine+w.startLine-1, title))
	}
	return chunks
}

func (s *Splitter) newChunk(f File, content string, startLine int, title string) *store.Chunk {
	c := store.NewChunk(f.Path, content, startLine)
	c.Title = title
	c.Kind = f.Kind
	c.Language = f.Language
	c.EndLine = startLine + strings.Count(content, "\n")
	return c
}
