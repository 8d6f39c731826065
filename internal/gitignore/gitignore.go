package gitignore

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// Matcher holds an ordered list of ignore rules. Later rules override
// earlier ones, so a negated pattern can re-include a path an earlier
// pattern excluded. Safe for concurrent use: the watcher adds patterns
// while scans are matching.
type Matcher struct {
	mu    sync.RWMutex
	rules []rule
}

type rule struct {
	src     string
	negate  bool
	dirOnly bool
	base    string // nested .gitignore directory, "" for root rules

	// exact matches the path itself; under matches paths inside a
	// matched directory.
	exact *regexp.Regexp
	under *regexp.Regexp
}

func New() *Matcher {
	return &Matcher{}
}

// AddPattern appends one pattern in .gitignore syntax. Blank lines and
// comments are dropped silently.
func (m *Matcher) AddPattern(pattern string) {
	m.add(pattern, "")
}

// AddFromFile reads a .gitignore-format file whose rules apply only
// beneath base (slash-separated, relative to the scan root; "" for the
// root file).
func (m *Matcher) AddFromFile(path, base string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open ignore file: %w", err)
	}
	defer func() { _ = f.Close() }()

	sc := bufio.NewScanner(f)
	for sc.Scan() {
		m.add(sc.Text(), base)
	}
	if err := sc.Err(); err != nil {
		return fmt.Errorf("read ignore file %s: %w", path, err)
	}
	return nil
}

// Match reports whether path (relative, any separator) is ignored.
func (m *Matcher) Match(path string, isDir bool) bool {
	path = filepath.ToSlash(path)

	m.mu.RLock()
	defer m.mu.RUnlock()

	ignored := false
	for i := range m.rules {
		if m.rules[i].match(path, isDir) {
			ignored = !m.rules[i].negate
		}
	}
	return ignored
}

func (m *Matcher) add(line, base string) {
	r, ok := compile(line, base)
	if !ok {
		return
	}
	m.mu.Lock()
	m.rules = append(m.rules, r)
	m.mu.Unlock()
}

func compile(line, base string) (rule, bool) {
	r := rule{base: base}

	// A backslash-escaped trailing space survives trimming.
	keepSpace := strings.HasSuffix(line, `\ `)
	line = strings.TrimSpace(line)
	if line == "" || (strings.HasPrefix(line, "#") && !strings.HasPrefix(line, `\#`)) {
		return r, false
	}

	switch {
	case strings.HasPrefix(line, "!"):
		r.negate = true
		line = line[1:]
	case strings.HasPrefix(line, `\!`), strings.HasPrefix(line, `\#`):
		line = line[1:]
	}
	if keepSpace && strings.HasSuffix(line, `\`) {
		line = line[:len(line)-1] + " "
	}
	r.src = line

	if strings.HasSuffix(line, "/") {
		r.dirOnly = true
		line = strings.TrimSuffix(line, "/")
	}

	// A slash anywhere except the end anchors the pattern to its base;
	// otherwise it floats and matches at any depth.
	rooted := strings.HasPrefix(line, "/") || strings.Contains(line, "/")
	line = strings.TrimPrefix(line, "/")

	body := translate(line)
	prefix := "^"
	if !rooted {
		prefix = `^(?:.*/)?`
	}
	exact, err := regexp.Compile(prefix + body + "$")
	if err != nil {
		return r, false
	}
	under, err := regexp.Compile(prefix + body + "/")
	if err != nil {
		return r, false
	}
	r.exact, r.under = exact, under
	return r, true
}

func (r *rule) match(path string, isDir bool) bool {
	if r.base != "" {
		if !strings.HasPrefix(path, r.base+"/") {
			return false
		}
		path = strings.TrimPrefix(path, r.base+"/")
	}
	if r.exact.MatchString(path) {
		return !r.dirOnly || isDir
	}
	// Anything inside a matched directory is covered too.
	return r.under.MatchString(path)
}

// translate converts one glob pattern body into a regexp fragment.
// `*` and `?` never cross a slash; `**` does.
func translate(p string) string {
	var b strings.Builder
	for i := 0; i < len(p); {
		switch c := p[i]; c {
		case '*':
			atBoundary := i == 0 || p[i-1] == '/'
			switch {
			case atBoundary && strings.HasPrefix(p[i:], "**/"):
				b.WriteString(`(?:[^/]+/)*`)
				i += 3
			case atBoundary && p[i:] == "**":
				b.WriteString(`.*`)
				i += 2
			default:
				b.WriteString(`[^/]*`)
				i++
			}
		case '?':
			b.WriteString(`[^/]`)
			i++
		case '[':
			if j := strings.IndexByte(p[i:], ']'); j > 1 {
				b.WriteString(p[i : i+j+1])
				i += j + 1
			} else {
				b.WriteString(`\[`)
				i++
			}
		case '\\':
			if i+1 < len(p) {
				b.WriteString(regexp.QuoteMeta(string(p[i+1])))
				i += 2
			} else {
				b.WriteString(`\\`)
				i++
			}
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
			i++
		}
	}
	return b.String()
}
