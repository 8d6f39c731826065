package vector

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ragweaver/ragweaver/internal/embed"
	"github.com/ragweaver/ragweaver/internal/store"
)

// Options selects and locates a vector backend.
type Options struct {
	// Backend is "chromem" (default) or "hnsw".
	Backend string

	// DataDir is the per-project data directory backends persist under.
	// Empty keeps everything in memory.
	DataDir string

	// Collection names the chromem collection ("<project>_knowledge").
	Collection string

	// Dimensions overrides the embedding width for hnsw; zero auto-detects.
	Dimensions int
}

// New builds the configured backend. The hnsw backend needs the docstore to
// rehydrate matches; chromem carries content itself and ignores it.
func New(opts Options, embedder embed.Embedder, docs *store.DocStore) (Index, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "chromem":
		path := ""
		if opts.DataDir != "" {
			path = filepath.Join(opts.DataDir, "kb")
		}
		return NewChromemIndex(ChromemConfig{
			Path:       path,
			Collection: opts.Collection,
		}, embedder)

	case "hnsw":
		if docs == nil {
			return nil, fmt.Errorf("hnsw backend requires a docstore")
		}
		path := ""
		if opts.DataDir != "" {
			path = filepath.Join(opts.DataDir, "vectors.hnsw")
		}
		return NewHNSWIndex(HNSWConfig{
			GraphPath:  path,
			Dimensions: opts.Dimensions,
		}, docs, embedder)

	default:
		return nil, fmt.Errorf("unknown vector backend %q (want chromem or hnsw)", opts.Backend)
	}
}
