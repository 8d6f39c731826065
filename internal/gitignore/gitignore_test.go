package gitignore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchBasicPatterns(t *testing.T) {
	tests := []struct {
		name     string
		patterns []string
		path     string
		isDir    bool
		ignored  bool
	}{
		{"literal file", []string{"secret.env"}, "secret.env", false, true},
		{"literal at depth", []string{"secret.env"}, "config/secret.env", false, true},
		{"no match", []string{"secret.env"}, "secrets.env", false, false},
		{"star extension", []string{"*.log"}, "logs/error.log", false, true},
		{"star stays in segment", []string{"a*.txt"}, "a/b.txt", false, false},
		{"question mark", []string{"doc?.md"}, "doc1.md", false, true},
		{"question mark not slash", []string{"a?b"}, "a/b", false, false},
		{"char class", []string{"v[0-9].json"}, "v3.json", false, true},
		{"escaped hash", []string{`\#notes`}, "#notes", false, true},
		{"comment skipped", []string{"# *.log"}, "error.log", false, false},
		{"blank skipped", []string{"   "}, "anything", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := New()
			for _, p := range tt.patterns {
				m.AddPattern(p)
			}
			assert.Equal(t, tt.ignored, m.Match(tt.path, tt.isDir))
		})
	}
}

func TestMatchDirectoryPatterns(t *testing.T) {
	m := New()
	m.AddPattern("build/")

	// The pattern names directories only, but contents are covered.
	assert.True(t, m.Match("build", true))
	assert.False(t, m.Match("build", false))
	assert.True(t, m.Match("build/output.txt", false))
	assert.True(t, m.Match("sub/build/output.txt", false))
}

func TestMatchRootedPatterns(t *testing.T) {
	m := New()
	m.AddPattern("/dist")
	m.AddPattern("docs/drafts")

	assert.True(t, m.Match("dist", true))
	assert.False(t, m.Match("pkg/dist", true), "leading slash anchors to the root")
	assert.True(t, m.Match("docs/drafts", true), "inner slash anchors too")
	assert.True(t, m.Match("docs/drafts/wip.md", false))
	assert.False(t, m.Match("other/docs/drafts", true))
}

func TestMatchDoubleStar(t *testing.T) {
	m := New()
	m.AddPattern("**/node_modules")
	m.AddPattern("cache/**")

	assert.True(t, m.Match("node_modules", true))
	assert.True(t, m.Match("web/app/node_modules", true))
	assert.True(t, m.Match("cache/a/b/c.bin", false))
	assert.False(t, m.Match("cache", true), "cache/** names the contents, not the dir")
}

func TestMatchNegation(t *testing.T) {
	m := New()
	m.AddPattern("*.log")
	m.AddPattern("!audit.log")

	assert.True(t, m.Match("error.log", false))
	assert.False(t, m.Match("audit.log", false))
	assert.False(t, m.Match("logs/audit.log", false))
}

func TestMatchLastRuleWins(t *testing.T) {
	m := New()
	m.AddPattern("!keep.tmp")
	m.AddPattern("*.tmp")

	// The re-include came first, so the exclude wins.
	assert.True(t, m.Match("keep.tmp", false))
}

func TestAddFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("# build artifacts\ntarget/\n*.o\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, ""))

	assert.True(t, m.Match("target/debug/app", false))
	assert.True(t, m.Match("src/main.o", false))
	assert.False(t, m.Match("src/main.c", false))
}

func TestAddFromFileMissing(t *testing.T) {
	m := New()
	err := m.AddFromFile(filepath.Join(t.TempDir(), "absent"), "")
	require.Error(t, err)
}

func TestNestedBaseScopesRules(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".gitignore")
	require.NoError(t, os.WriteFile(path, []byte("drafts/\n"), 0o644))

	m := New()
	require.NoError(t, m.AddFromFile(path, "docs"))

	// Rules from docs/.gitignore only see paths under docs/.
	assert.True(t, m.Match("docs/drafts", true))
	assert.True(t, m.Match("docs/drafts/a.md", false))
	assert.False(t, m.Match("drafts", true))
	assert.False(t, m.Match("src/drafts", true))
}

func TestMatchNormalizesSeparators(t *testing.T) {
	m := New()
	m.AddPattern("build/")
	assert.True(t, m.Match(filepath.Join("build", "out.txt"), false))
}

func TestConcurrentAddAndMatch(t *testing.T) {
	m := New()
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			m.AddPattern("*.tmp")
		}
	}()
	for i := 0; i < 200; i++ {
		m.Match("a/b.tmp", false)
	}
	<-done
	assert.True(t, m.Match("a/b.tmp", false))
}
