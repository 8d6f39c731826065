package chunk

import (
	"strings"

	"github.com/ragweaver/ragweaver/internal/store"
)

// splitMarkdown cuts a document into heading-bounded sections. Each section
// becomes one chunk titled by its heading; a section past twice the budget
// is re-split into windows that keep the heading as the title. Headings
// inside code fences do not start sections.
func (s *Splitter) splitMarkdown(f File, content string) []*store.Chunk {
	lines := strings.Split(content, "\n")

	type section struct {
		title     string
		startLine int // 1-indexed
		lines     []string
	}

	var sections []section
	current := section{startLine: 1}
	inFence := false

	flush := func(next section) {
		sections = append(sections, current)
		current = next
	}

	for i, line := range lines {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "```") || strings.HasPrefix(trimmed, "~~~") {
			inFence = !inFence
		}
		if !inFence {
			if title, ok := headingText(line); ok {
				flush(section{title: title, startLine: i + 1})
			}
		}
		current.lines = append(current.lines, line)
	}
	flush(section{})

	var chunks []*store.Chunk
	for _, sec := range sections {
		drop := 0
		for drop < len(sec.lines) && strings.TrimSpace(sec.lines[drop]) == "" {
			drop++
		}
		body := strings.TrimRight(strings.Join(sec.lines[drop:], "\n"), "\n \t")
		if body == "" {
			continue
		}
		start := sec.startLine + drop
		if len(body) > 2*s.size {
			chunks = append(chunks, s.windowChunks(f, body, start, sec.title)...)
			continue
		}
		chunks = append(chunks, s.newChunk(f, body, start, sec.title))
	}
	return chunks
}

// headingText parses an ATX heading line and returns its text.
func headingText(line string) (string, bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "#") {
		return "", false
	}
	level := 0
	for level < len(trimmed) && trimmed[level] == '#' {
		level++
	}
	if level > 6 || level == len(trimmed) || trimmed[level] != ' ' {
		return "", false
	}
	return strings.TrimSpace(trimmed[level:]), true
}
