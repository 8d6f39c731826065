// Package scanner discovers ingestable files under a project root. It
// honors include/exclude globs and .gitignore rules, skips binaries,
// generated files, and obvious secrets, and classifies what remains by
// content kind and language.
package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ragweaver/ragweaver/internal/gitignore"
)

// DefaultMaxFileSize caps file reads at 1 MiB unless overridden.
const DefaultMaxFileSize = 1 << 20

// Kind classifies a discovered file's content.
type Kind string

const (
	KindCode     Kind = "code"
	KindMarkdown Kind = "markdown"
	KindText     Kind = "text"
	KindConfig   Kind = "config"
)

// FileInfo describes one discovered file.
type FileInfo struct {
	Path     string // relative to the scan root, slash-separated
	AbsPath  string
	Size     int64
	ModTime  time.Time
	Kind     Kind
	Language string // set for code files
}

// Result is one item from the scan channel.
type Result struct {
	File *FileInfo
	Err  error
}

// Options configures a scan.
type Options struct {
	Root string
	// Include restricts results to files matching at least one pattern
	// (gitignore syntax). Empty means every classifiable file.
	Include []string
	// Exclude drops matching files and prunes matching directories.
	Exclude []string
	// RespectGitignore applies the root and nested .gitignore files.
	RespectGitignore bool
	// MaxFileSize skips larger files; 0 uses DefaultMaxFileSize.
	MaxFileSize int64
	// MaxFiles stops the scan after this many results; 0 means unlimited.
	MaxFiles int
}

// Scanner walks project trees. Safe for reuse across scans.
type Scanner struct {
	logger *slog.Logger
}

// New returns a Scanner logging through the default slog logger.
func New() *Scanner {
	return &Scanner{logger: slog.Default()}
}

// Scan walks the root in the background and streams results. The channel
// closes when the walk completes, the file cap is hit, or ctx is done.
func (s *Scanner) Scan(ctx context.Context, opts Options) (<-chan Result, error) {
	root := opts.Root
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve scan root: %w", err)
	}
	info, err := os.Stat(absRoot)
	if err != nil {
		return nil, fmt.Errorf("stat scan root: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("scan root is not a directory: %s", absRoot)
	}

	results := make(chan Result, 64)
	go func() {
		defer close(results)
		s.walk(ctx, absRoot, opts, results)
	}()
	return results, nil
}

func (s *Scanner) walk(ctx context.Context, absRoot string, opts Options, results chan<- Result) {
	maxSize := opts.MaxFileSize
	if maxSize <= 0 {
		maxSize = DefaultMaxFileSize
	}

	exclude := gitignore.New()
	for _, p := range opts.Exclude {
		exclude.AddPattern(p)
	}
	var include *gitignore.Matcher
	if len(opts.Include) > 0 {
		include = gitignore.New()
		for _, p := range opts.Include {
			include.AddPattern(p)
		}
	}
	ignore := gitignore.New()
	if opts.RespectGitignore {
		if err := ignore.AddFromFile(filepath.Join(absRoot, ".gitignore"), ""); err != nil && !errors.Is(err, fs.ErrNotExist) {
			s.logger.Debug("gitignore_unreadable", "root", absRoot, "error", err)
		}
	}

	emitted := 0
	err := filepath.WalkDir(absRoot, func(path string, d fs.DirEntry, err error) error {
		if ctx.Err() != nil {
			return fs.SkipAll
		}
		if err != nil {
			results <- Result{Err: err}
			return nil
		}
		rel, relErr := filepath.Rel(absRoot, path)
		if relErr != nil || rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if strings.HasPrefix(d.Name(), ".") && d.Name() != "." {
				return fs.SkipDir
			}
			if exclude.Match(rel, true) {
				return fs.SkipDir
			}
			if opts.RespectGitignore {
				if ignore.Match(rel, true) {
					return fs.SkipDir
				}
				nested := filepath.Join(path, ".gitignore")
				if _, statErr := os.Stat(nested); statErr == nil {
					if addErr := ignore.AddFromFile(nested, rel); addErr != nil {
						s.logger.Debug("gitignore_unreadable", "path", nested, "error", addErr)
					}
				}
			}
			return nil
		}

		if strings.HasPrefix(d.Name(), ".") || isSensitive(d.Name()) {
			return nil
		}
		kind, language, ok := Classify(rel)
		if !ok {
			return nil
		}
		if exclude.Match(rel, false) {
			return nil
		}
		if include != nil && !include.Match(rel, false) {
			return nil
		}
		if opts.RespectGitignore && ignore.Match(rel, false) {
			return nil
		}

		info, infoErr := d.Info()
		if infoErr != nil {
			results <- Result{Err: infoErr}
			return nil
		}
		if info.Size() > maxSize {
			s.logger.Debug("file_skipped_size", "path", rel, "size", info.Size())
			return nil
		}
		if isBinary(path) {
			return nil
		}
		if kind == KindCode && isGenerated(path, d.Name()) {
			return nil
		}

		results <- Result{File: &FileInfo{
			Path:     rel,
			AbsPath:  path,
			Size:     info.Size(),
			ModTime:  info.ModTime(),
			Kind:     kind,
			Language: language,
		}}
		emitted++
		if opts.MaxFiles > 0 && emitted >= opts.MaxFiles {
			s.logger.Warn("scan_file_cap_reached", "max_files", opts.MaxFiles)
			return fs.SkipAll
		}
		return nil
	})
	if err != nil {
		results <- Result{Err: err}
	}
}

// languageByExt maps code file extensions to language names the chunker
// and symbol extractor understand.
var languageByExt = map[string]string{
	".go":    "go",
	".py":    "python",
	".js":    "javascript",
	".jsx":   "javascript",
	".mjs":   "javascript",
	".ts":    "typescript",
	".tsx":   "typescript",
	".rs":    "rust",
	".java":  "java",
	".rb":    "ruby",
	".c":     "c",
	".h":     "c",
	".cpp":   "cpp",
	".cc":    "cpp",
	".hpp":   "cpp",
	".cs":    "csharp",
	".kt":    "kotlin",
	".swift": "swift",
	".php":   "php",
	".sh":    "shell",
	".bash":  "shell",
	".sql":   "sql",
}

var configExts = map[string]bool{
	".yaml": true, ".yml": true, ".json": true, ".toml": true, ".ini": true,
}

var textExts = map[string]bool{
	".txt": true, ".rst": true, ".adoc": true,
}

// Classify maps a path to its content kind and language. Files with
// unrecognized extensions are not ingestable.
func Classify(path string) (Kind, string, bool) {
	ext := strings.ToLower(filepath.Ext(path))
	switch {
	case ext == ".md" || ext == ".markdown" || ext == ".mdx":
		return KindMarkdown, "", true
	case textExts[ext]:
		return KindText, "", true
	case configExts[ext]:
		return KindConfig, "", true
	}
	if lang, ok := languageByExt[ext]; ok {
		return KindCode, lang, true
	}
	return "", "", false
}

var sensitiveSuffixes = []string{".pem", ".key", ".p12", ".pfx", "_rsa", "_dsa", "_ed25519"}

func isSensitive(name string) bool {
	lower := strings.ToLower(name)
	if lower == ".env" || strings.HasPrefix(lower, ".env.") {
		return true
	}
	for _, suffix := range sensitiveSuffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return strings.Contains(lower, "credential") || strings.Contains(lower, "secret")
}

// isBinary sniffs the first 512 bytes for a NUL, the same heuristic git
// uses.
func isBinary(path string) bool {
	f, err := os.Open(path)
	if err != nil {
		return true
	}
	defer f.Close()
	buf := make([]byte, 512)
	n, err := f.Read(buf)
	if err != nil && n == 0 {
		return true
	}
	for _, b := range buf[:n] {
		if b == 0 {
			return true
		}
	}
	return false
}

var generatedNameParts = []string{".pb.", "_generated.", ".gen.", ".min.js", ".min.css", "bundle.js"}

// isGenerated detects machine-written code by file name and by the
// conventional "Code generated ... DO NOT EDIT." header.
func isGenerated(path, name string) bool {
	lower := strings.ToLower(name)
	for _, part := range generatedNameParts {
		if strings.Contains(lower, part) {
			return true
		}
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	buf := make([]byte, 1024)
	n, _ := f.Read(buf)
	header := string(buf[:n])
	return strings.Contains(header, "Code generated") && strings.Contains(header, "DO NOT EDIT")
}
