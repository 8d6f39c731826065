// Package cache persists answered runs on disk, keyed by the semantic
// fingerprint of the question: normalized text plus every strategy knob
// that changes the answer. Entries expire per intent and the directory is
// pruned to a bounded size under a cross-process lock.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	ragerr "github.com/ragweaver/ragweaver/internal/errors"
	"github.com/ragweaver/ragweaver/internal/rag"
)

const (
	defaultMaxEntries = 512

	lockFileName = ".cache.lock"
)

// KeyParams are the answer-determining inputs hashed into a cache key.
type KeyParams struct {
	Project         string
	Query           string
	Intent          rag.Intent
	TopK            int
	ContextMaxChars int
	UseVector       bool
	UseMemory       bool
	UseRecent       bool
}

// Key returns the SHA-256 hex digest of the canonical JSON form of the
// parameters. Map marshaling keeps the keys sorted, so the digest is
// stable across runs and processes.
func Key(p KeyParams) string {
	canonical, err := json.Marshal(map[string]any{
		"project":           p.Project,
		"query":             NormalizeQuery(p.Query),
		"intent":            string(p.Intent),
		"top_k":             p.TopK,
		"context_max_chars": p.ContextMaxChars,
		"use_vector":        p.UseVector,
		"use_memory":        p.UseMemory,
		"use_recent":        p.UseRecent,
	})
	if err != nil {
		// Only primitives above; Marshal cannot fail.
		panic(err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// NormalizeQuery lowercases the query, maps every non-alphanumeric rune
// to a space, and collapses runs of whitespace. "How does X work?" and
// "how does x   work" share a key.
func NormalizeQuery(q string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(q) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

// entry is the on-disk wire format.
type entry struct {
	TS      float64       `json:"ts"`
	TTL     int           `json:"ttl"`
	Payload rag.RunRecord `json:"payload"`
}

// Config tunes the store.
type Config struct {
	// Enabled gates all reads and writes. Disabled stores always miss.
	Enabled bool
	// MaxEntries bounds the directory; the oldest entries by
	// modification time are pruned past it.
	MaxEntries int
}

// Store is a one-directory-per-project answer cache.
type Store struct {
	dir     string
	enabled bool
	max     int
	lock    *flock.Flock
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// New builds a Store rooted at dir (one directory per project).
func New(dir string, cfg Config, opts ...Option) *Store {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = defaultMaxEntries
	}
	s := &Store{
		dir:     dir,
		enabled: cfg.Enabled,
		max:     cfg.MaxEntries,
		lock:    flock.New(filepath.Join(dir, lockFileName)),
		logger:  slog.Default(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Enabled reports whether the store serves hits.
func (s *Store) Enabled() bool { return s.enabled }

// Get returns the cached record for the key. Expired and unreadable
// entries are removed and reported as misses.
func (s *Store) Get(key string) (rag.RunRecord, bool) {
	if !s.enabled {
		return rag.RunRecord{}, false
	}

	path := s.entryPath(key)
	raw, err := os.ReadFile(path)
	if err != nil {
		return rag.RunRecord{}, false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		s.logger.Debug("cache_entry_corrupt", "path", path, "error", err)
		_ = os.Remove(path)
		return rag.RunRecord{}, false
	}

	age := s.nowSeconds() - e.TS
	if age > float64(e.TTL) {
		_ = os.Remove(path)
		return rag.RunRecord{}, false
	}
	return e.Payload, true
}

// Set writes the record atomically (temp file plus rename) and prunes the
// directory down to the configured size. Disabled stores no-op.
func (s *Store) Set(key string, payload rag.RunRecord, ttlSeconds int) error {
	if !s.enabled {
		return nil
	}

	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return ragerr.New(ragerr.ErrCodeCacheIO, "create cache directory", err)
	}

	data, err := json.Marshal(entry{
		TS:      s.nowSeconds(),
		TTL:     ttlSeconds,
		Payload: payload,
	})
	if err != nil {
		return ragerr.New(ragerr.ErrCodeCacheIO, "encode cache entry", err)
	}

	tmp, err := os.CreateTemp(s.dir, "entry-*.tmp")
	if err != nil {
		return ragerr.New(ragerr.ErrCodeCacheIO, "create cache temp file", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		_ = os.Remove(tmp.Name())
		return ragerr.New(ragerr.ErrCodeCacheIO, "write cache entry", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return ragerr.New(ragerr.ErrCodeCacheIO, "close cache temp file", err)
	}
	if err := os.Rename(tmp.Name(), s.entryPath(key)); err != nil {
		_ = os.Remove(tmp.Name())
		return ragerr.New(ragerr.ErrCodeCacheIO, "publish cache entry", err)
	}

	if err := s.prune(); err != nil {
		s.logger.Warn("cache_prune_failed", "error", err)
	}
	return nil
}

// Entries counts the cached records on disk.
func (s *Store) Entries() int {
	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return 0
	}
	return len(paths)
}

// prune removes the oldest entries past the size bound. The directory
// lock keeps concurrent processes from pruning over each other.
func (s *Store) prune() error {
	if err := s.lock.Lock(); err != nil {
		return err
	}
	defer s.lock.Unlock()

	paths, err := filepath.Glob(filepath.Join(s.dir, "*.json"))
	if err != nil {
		return err
	}
	if len(paths) <= s.max {
		return nil
	}

	type aged struct {
		path string
		mod  time.Time
	}
	entries := make([]aged, 0, len(paths))
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			continue
		}
		entries = append(entries, aged{path: p, mod: info.ModTime()})
	}
	// Stat failures shrink entries below paths; re-check before slicing.
	if len(entries) <= s.max {
		return nil
	}
	sort.Slice(entries, func(a, b int) bool {
		return entries[a].mod.After(entries[b].mod)
	})

	for _, e := range entries[s.max:] {
		_ = os.Remove(e.path)
	}
	s.logger.Debug("cache_pruned",
		"removed", len(entries)-s.max,
		"kept", s.max)
	return nil
}

func (s *Store) entryPath(key string) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s.json", key))
}

// nowSeconds is the wall clock as float seconds, matching the on-disk ts.
func (s *Store) nowSeconds() float64 {
	return float64(s.now().UnixNano()) / float64(time.Second)
}
