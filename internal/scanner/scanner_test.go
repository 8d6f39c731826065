package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Helpers
// =============================================================================

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func collect(t *testing.T, ch <-chan Result) map[string]*FileInfo {
	t.Helper()
	files := make(map[string]*FileInfo)
	for res := range ch {
		require.NoError(t, res.Err)
		files[res.File.Path] = res.File
	}
	return files
}

func fixtureTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, root, "README.md", "# Readme\n\nDocs here.")
	writeFile(t, root, "docs/guide.md", "# Guide\n\nHow to use.")
	writeFile(t, root, "src/main.go", "package main\n\nfunc main() {}\n")
	writeFile(t, root, "notes.txt", "plain text notes")
	writeFile(t, root, "config.yaml", "key: value\n")
	writeFile(t, root, "assets/logo.png", "not actually a png")
	return root
}

// =============================================================================
// Scanning
// =============================================================================

func TestScanClassifiesFiles(t *testing.T) {
	root := fixtureTree(t)

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	files := collect(t, ch)

	paths := make([]string, 0, len(files))
	for p := range files {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	assert.Equal(t, []string{"README.md", "config.yaml", "docs/guide.md", "notes.txt", "src/main.go"}, paths)

	assert.Equal(t, KindMarkdown, files["README.md"].Kind)
	assert.Equal(t, KindText, files["notes.txt"].Kind)
	assert.Equal(t, KindConfig, files["config.yaml"].Kind)
	assert.Equal(t, KindCode, files["src/main.go"].Kind)
	assert.Equal(t, "go", files["src/main.go"].Language)
	assert.Equal(t, filepath.Join(root, "src", "main.go"), files["src/main.go"].AbsPath)
}

func TestScanExcludePrunesDirectories(t *testing.T) {
	root := fixtureTree(t)
	writeFile(t, root, "node_modules/pkg/index.js", "module.exports = 1\n")

	s := New()
	ch, err := s.Scan(context.Background(), Options{
		Root:    root,
		Exclude: []string{"node_modules/", "docs/"},
	})
	require.NoError(t, err)
	files := collect(t, ch)

	assert.NotContains(t, files, "node_modules/pkg/index.js")
	assert.NotContains(t, files, "docs/guide.md")
	assert.Contains(t, files, "README.md")
}

func TestScanIncludeRestricts(t *testing.T) {
	root := fixtureTree(t)

	s := New()
	ch, err := s.Scan(context.Background(), Options{
		Root:    root,
		Include: []string{"*.md"},
	})
	require.NoError(t, err)
	files := collect(t, ch)

	assert.Contains(t, files, "README.md")
	assert.Contains(t, files, "docs/guide.md")
	assert.NotContains(t, files, "src/main.go")
	assert.NotContains(t, files, "notes.txt")
}

func TestScanRespectsGitignore(t *testing.T) {
	root := fixtureTree(t)
	writeFile(t, root, ".gitignore", "tmp/\nscratch.md\n")
	writeFile(t, root, "tmp/cache.md", "# Temp")
	writeFile(t, root, "scratch.md", "# Scratch")

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.NotContains(t, files, "tmp/cache.md")
	assert.NotContains(t, files, "scratch.md")
	assert.Contains(t, files, "README.md")

	// Without the flag the same files come back.
	ch, err = s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	files = collect(t, ch)
	assert.Contains(t, files, "tmp/cache.md")
}

func TestScanNestedGitignore(t *testing.T) {
	root := fixtureTree(t)
	writeFile(t, root, "docs/.gitignore", "drafts/\n")
	writeFile(t, root, "docs/drafts/wip.md", "# WIP")

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root, RespectGitignore: true})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.NotContains(t, files, "docs/drafts/wip.md")
	assert.Contains(t, files, "docs/guide.md")
}

func TestScanSkipsBinaries(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "data.txt", "text\x00with a nul byte")
	writeFile(t, root, "real.txt", "actual text")

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.NotContains(t, files, "data.txt")
	assert.Contains(t, files, "real.txt")
}

func TestScanSkipsOversizeFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "big.md", strings.Repeat("x", 2048))
	writeFile(t, root, "small.md", "# ok")

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root, MaxFileSize: 1024})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.NotContains(t, files, "big.md")
	assert.Contains(t, files, "small.md")
}

func TestScanSkipsGeneratedCode(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "api.pb.go", "package api\n")
	writeFile(t, root, "gen.go", "// Code generated by protoc-gen-go. DO NOT EDIT.\npackage api\n")
	writeFile(t, root, "handwritten.go", "package api\n\nfunc Live() {}\n")

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.NotContains(t, files, "api.pb.go")
	assert.NotContains(t, files, "gen.go")
	assert.Contains(t, files, "handwritten.go")
}

func TestScanSkipsSensitiveFiles(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "credentials.md", "# secrets")
	writeFile(t, root, "safe.md", "# fine")

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.NotContains(t, files, "credentials.md")
	assert.Contains(t, files, "safe.md")
}

func TestScanMaxFilesCap(t *testing.T) {
	root := fixtureTree(t)

	s := New()
	ch, err := s.Scan(context.Background(), Options{Root: root, MaxFiles: 2})
	require.NoError(t, err)
	files := collect(t, ch)
	assert.Len(t, files, 2)
}

func TestScanMissingRoot(t *testing.T) {
	s := New()
	_, err := s.Scan(context.Background(), Options{Root: filepath.Join(t.TempDir(), "nope")})
	require.Error(t, err)
}

// =============================================================================
// Classification
// =============================================================================

func TestClassify(t *testing.T) {
	tests := []struct {
		path string
		kind Kind
		lang string
		ok   bool
	}{
		{"a/b/readme.md", KindMarkdown, "", true},
		{"notes.TXT", KindText, "", true},
		{"conf/app.yaml", KindConfig, "", true},
		{"main.go", KindCode, "go", true},
		{"web/app.tsx", KindCode, "typescript", true},
		{"script.py", KindCode, "python", true},
		{"image.png", "", "", false},
		{"Makefile", "", "", false},
	}
	for _, tt := range tests {
		kind, lang, ok := Classify(tt.path)
		assert.Equal(t, tt.ok, ok, tt.path)
		assert.Equal(t, tt.kind, kind, tt.path)
		assert.Equal(t, tt.lang, lang, tt.path)
	}
}
