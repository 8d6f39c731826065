package chunk

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/store"
)

// =============================================================================
// Helpers
// =============================================================================

func textFile(path, content string) File {
	return File{Path: path, Content: []byte(content), Kind: "text"}
}

func split(t *testing.T, s *Splitter, f File) *Result {
	t.Helper()
	res, err := s.Split(context.Background(), f)
	require.NoError(t, err)
	require.NotNil(t, res)
	return res
}

// requireUniqueIDs fails when two chunks of one file collide on ID.
func requireUniqueIDs(t *testing.T, chunks []*store.Chunk) {
	t.Helper()
	seen := make(map[string]int)
	for _, c := range chunks {
		if prev, ok := seen[c.ID]; ok {
			t.Fatalf("chunk at line %d collides with chunk at line %d", c.StartLine, prev)
		}
		seen[c.ID] = c.StartLine
	}
}

func repeatLines(line string, n int) string {
	lines := make([]string, n)
	for i := range lines {
		lines[i] = line
	}
	return strings.Join(lines, "\n")
}

// =============================================================================
// Text windows
// =============================================================================

func TestSplitEmptyFile(t *testing.T) {
	s := NewSplitter()

	res := split(t, s, textFile("empty.txt", "   \n\t\n"))

	assert.Empty(t, res.Chunks)
	assert.Empty(t, res.Symbols)
}

func TestSplitTextSingleChunk(t *testing.T) {
	s := NewSplitter()

	res := split(t, s, textFile("notes.txt", "first line\nsecond line"))

	require.Len(t, res.Chunks, 1)
	c := res.Chunks[0]
	assert.Equal(t, "first line\nsecond line", c.Content)
	assert.Equal(t, "notes.txt", c.Path)
	assert.Equal(t, "text", c.Kind)
	assert.Equal(t, 1, c.StartLine)
	assert.Equal(t, 2, c.EndLine)
	assert.Equal(t, store.ChunkID("notes.txt", 1), c.ID)
}

func TestSplitTextWindowsWithOverlap(t *testing.T) {
	s := NewSplitter(WithSize(60), WithOverlap(30))
	content := repeatLines("words words words word xx", 7)

	res := split(t, s, textFile("long.txt", content))

	require.Len(t, res.Chunks, 3)
	requireUniqueIDs(t, res.Chunks)
	assert.Equal(t, 1, res.Chunks[0].StartLine)
	assert.Equal(t, 3, res.Chunks[1].StartLine)
	assert.Equal(t, 5, res.Chunks[2].StartLine)

	// Each window opens with the last line of the previous one.
	prevTail := lastLine(res.Chunks[0].Content)
	assert.True(t, strings.HasPrefix(res.Chunks[1].Content, prevTail))
	assert.True(t, strings.HasPrefix(res.Chunks[2].Content, lastLine(res.Chunks[1].Content)))
}

func lastLine(content string) string {
	lines := strings.Split(content, "\n")
	return lines[len(lines)-1]
}

func TestSplitTextWithoutOverlap(t *testing.T) {
	s := NewSplitter(WithSize(60), WithOverlap(0))
	content := repeatLines("words words words word xx", 6)

	res := split(t, s, textFile("long.txt", content))

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, 1, res.Chunks[0].StartLine)
	assert.Equal(t, 4, res.Chunks[1].StartLine)
	joined := res.Chunks[0].Content + "\n" + res.Chunks[1].Content
	assert.Equal(t, content, joined)
}

func TestSplitTextLongSingleLine(t *testing.T) {
	s := NewSplitter(WithSize(100), WithOverlap(20))
	content := strings.Repeat("abcde ", 200) // one 1200-char line

	res := split(t, s, textFile("oneliner.txt", content))

	// Chunks never cut inside a line, so one line means one chunk.
	require.Len(t, res.Chunks, 1)
	assert.Equal(t, 1, res.Chunks[0].StartLine)
	assert.Equal(t, 1, res.Chunks[0].EndLine)
}

func TestSplitTextPrefersParagraphBreak(t *testing.T) {
	s := NewSplitter(WithSize(100), WithOverlap(0))
	para1 := repeatLines("aaaa aaaa aaaa aaaa", 4) // 79 chars, past the midpoint
	para2 := repeatLines("bbbb bbbb bbbb bbbb", 4)
	content := para1 + "\n\n" + para2

	res := split(t, s, textFile("paras.txt", content))

	require.Len(t, res.Chunks, 2)
	assert.Equal(t, para1, res.Chunks[0].Content)
	assert.Equal(t, para2, res.Chunks[1].Content)
	assert.Equal(t, 6, res.Chunks[1].StartLine)
}

// =============================================================================
// Markdown sections
// =============================================================================

func mdFile(content string) File {
	return File{Path: "docs/guide.md", Content: []byte(content), Kind: "markdown"}
}

func TestSplitMarkdownSections(t *testing.T) {
	s := NewSplitter()
	content := "Intro paragraph.\n\n# Install\n\nRun the installer.\n\n## Verify\n\nCheck the version.\n"

	res := split(t, s, mdFile(content))

	require.Len(t, res.Chunks, 3)
	requireUniqueIDs(t, res.Chunks)

	assert.Equal(t, "", res.Chunks[0].Title)
	assert.Equal(t, "Intro paragraph.", res.Chunks[0].Content)
	assert.Equal(t, 1, res.Chunks[0].StartLine)

	assert.Equal(t, "Install", res.Chunks[1].Title)
	assert.Equal(t, "# Install\n\nRun the installer.", res.Chunks[1].Content)
	assert.Equal(t, 3, res.Chunks[1].StartLine)
	assert.Equal(t, 5, res.Chunks[1].EndLine)

	assert.Equal(t, "Verify", res.Chunks[2].Title)
	assert.Equal(t, 7, res.Chunks[2].StartLine)
	assert.Equal(t, "markdown", res.Chunks[2].Kind)
}

func TestSplitMarkdownNoHeadings(t *testing.T) {
	s := NewSplitter()

	res := split(t, s, mdFile("Just a paragraph.\n\nAnother one.\n"))

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "", res.Chunks[0].Title)
	assert.Equal(t, "Just a paragraph.\n\nAnother one.", res.Chunks[0].Content)
}

func TestSplitMarkdownIgnoresFencedHeadings(t *testing.T) {
	s := NewSplitter()
	content := "# Top\n\n```text\n# not a heading\n```\n\ntail\n"

	res := split(t, s, mdFile(content))

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "Top", res.Chunks[0].Title)
	assert.Contains(t, res.Chunks[0].Content, "# not a heading")
}

func TestSplitMarkdownOversizedSection(t *testing.T) {
	s := NewSplitter(WithSize(80), WithOverlap(0))
	content := "# Long\n\n" + repeatLines("body body body body body", 12)

	res := split(t, s, mdFile(content))

	require.Greater(t, len(res.Chunks), 1)
	requireUniqueIDs(t, res.Chunks)
	for _, c := range res.Chunks {
		assert.Equal(t, "Long", c.Title)
	}
	assert.Equal(t, 1, res.Chunks[0].StartLine)
}

func TestHeadingText(t *testing.T) {
	tests := []struct {
		line  string
		title string
		ok    bool
	}{
		{"# Install", "Install", true},
		{"###### Deep", "Deep", true},
		{"  ## Indented  ", "Indented", true},
		{"#NoSpace", "", false},
		{"####### Seven", "", false},
		{"#", "", false},
		{"plain text", "", false},
	}
	for _, tt := range tests {
		title, ok := headingText(tt.line)
		assert.Equal(t, tt.ok, ok, tt.line)
		assert.Equal(t, tt.title, title, tt.line)
	}
}

// =============================================================================
// Code
// =============================================================================

const goSource = `package demo

import "fmt"

// Greeter greets by name.
type Greeter struct {
	name string
}

func (g *Greeter) Greet() string {
	return fmt.Sprintf("hi %s", g.name)
}

func NewGreeter(name string) *Greeter {
	return &Greeter{name: name}
}

const DefaultName = "world"
`

func goFile(src string) File {
	return File{Path: "pkg/demo.go", Content: []byte(src), Kind: "code", Language: "go"}
}

func TestSplitGoFile(t *testing.T) {
	s := NewSplitter()

	res := split(t, s, goFile(goSource))

	require.Len(t, res.Chunks, 1)
	c := res.Chunks[0]
	assert.Equal(t, "Greeter", c.Title)
	assert.Equal(t, "code", c.Kind)
	assert.Equal(t, "go", c.Language)
	assert.Equal(t, 1, c.StartLine)
	assert.Contains(t, c.Content, "func NewGreeter")
}

func TestSplitGoSymbols(t *testing.T) {
	s := NewSplitter()

	res := split(t, s, goFile(goSource))

	require.Len(t, res.Symbols, 4)

	assert.Equal(t, Symbol{Name: "Greeter", Kind: "type", StartLine: 6, EndLine: 8}, res.Symbols[0])

	greet := res.Symbols[1]
	assert.Equal(t, "Greet", greet.Name)
	assert.Equal(t, "method", greet.Kind)
	assert.Equal(t, "Greeter", greet.Container)
	assert.Equal(t, 10, greet.StartLine)

	assert.Equal(t, "NewGreeter", res.Symbols[2].Name)
	assert.Equal(t, "function", res.Symbols[2].Kind)

	assert.Equal(t, "DefaultName", res.Symbols[3].Name)
	assert.Equal(t, "const", res.Symbols[3].Kind)
}

func TestSplitGoGroupedTypeDeclaration(t *testing.T) {
	s := NewSplitter()
	src := "package demo\n\ntype (\n\tAlpha struct{}\n\tBeta struct{}\n)\n"

	res := split(t, s, goFile(src))

	require.Len(t, res.Symbols, 2)
	assert.Equal(t, "Alpha", res.Symbols[0].Name)
	assert.Equal(t, "Beta", res.Symbols[1].Name)
	assert.Equal(t, "type", res.Symbols[1].Kind)
}

func TestSplitGoSkipsLocalVariables(t *testing.T) {
	s := NewSplitter()
	src := "package demo\n\nfunc run() {\n\tvar local = 1\n\t_ = local\n}\n"

	res := split(t, s, goFile(src))

	require.Len(t, res.Symbols, 1)
	assert.Equal(t, "run", res.Symbols[0].Name)
}

func TestSplitCodeRespectsBudget(t *testing.T) {
	s := NewSplitter(WithSize(120), WithOverlap(0))

	res := split(t, s, goFile(goSource))

	require.Greater(t, len(res.Chunks), 1)
	requireUniqueIDs(t, res.Chunks)

	var titles []string
	for _, c := range res.Chunks {
		if c.Title != "" {
			titles = append(titles, c.Title)
		}
	}
	assert.Contains(t, titles, "NewGreeter")

	// Symbols come from the whole file regardless of chunk boundaries.
	assert.Len(t, res.Symbols, 4)
}

func TestSplitCodeOversizedFunction(t *testing.T) {
	s := NewSplitter(WithSize(100), WithOverlap(0))
	var b strings.Builder
	b.WriteString("package demo\n\nfunc Big() {\n")
	for i := 0; i < 30; i++ {
		b.WriteString("\tdoSomethingLong(\"padding padding\")\n")
	}
	b.WriteString("}\n")

	res := split(t, s, goFile(b.String()))

	require.Greater(t, len(res.Chunks), 2)
	requireUniqueIDs(t, res.Chunks)
	var bigChunks int
	for _, c := range res.Chunks {
		if c.Title == "Big" {
			bigChunks++
		}
	}
	assert.Greater(t, bigChunks, 1)
}

func TestSplitPythonClassMethods(t *testing.T) {
	s := NewSplitter()
	src := "class Store:\n    def put(self, key, value):\n        self.data[key] = value\n\ndef helper():\n    return 1\n"
	f := File{Path: "store.py", Content: []byte(src), Kind: "code", Language: "python"}

	res := split(t, s, f)

	require.Len(t, res.Symbols, 3)
	assert.Equal(t, Symbol{Name: "Store", Kind: "class", StartLine: 1, EndLine: 3}, res.Symbols[0])

	put := res.Symbols[1]
	assert.Equal(t, "put", put.Name)
	assert.Equal(t, "method", put.Kind)
	assert.Equal(t, "Store", put.Container)

	helper := res.Symbols[2]
	assert.Equal(t, "helper", helper.Name)
	assert.Equal(t, "function", helper.Kind)
	assert.Equal(t, "", helper.Container)
}

func TestSplitTypeScriptDeclarations(t *testing.T) {
	s := NewSplitter()
	src := `interface Point {
  x: number;
}

const distance = (a: Point, b: Point): number => {
  return Math.abs(a.x - b.x);
};

const origin = { x: 0 };
`
	f := File{Path: "geom.ts", Content: []byte(src), Kind: "code", Language: "typescript"}

	res := split(t, s, f)

	require.Len(t, res.Symbols, 2)
	assert.Equal(t, "Point", res.Symbols[0].Name)
	assert.Equal(t, "interface", res.Symbols[0].Kind)

	// Arrow functions bound to consts count as functions; plain consts do not.
	assert.Equal(t, "distance", res.Symbols[1].Name)
	assert.Equal(t, "function", res.Symbols[1].Kind)
}

func TestSplitUnsupportedLanguageFallsBack(t *testing.T) {
	s := NewSplitter()
	f := File{Path: "main.rb", Content: []byte("puts 'hello'\n"), Kind: "code", Language: "ruby"}

	res := split(t, s, f)

	require.Len(t, res.Chunks, 1)
	assert.Equal(t, "puts 'hello'", res.Chunks[0].Content)
	assert.Empty(t, res.Symbols)
}
