// Package store provides the persistence primitives behind the knowledge
// base: a SQLite document store for chunk content and file tracking, a
// Bleve-backed BM25 keyword index, and an HNSW vector graph. Higher layers
// (internal/vector, internal/ingest) compose these into search backends.
package store

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"time"
)

// Chunk is the unit of indexed content. Ingestion splits each source file
// into chunks; the same chunk flows into the docstore, the keyword index,
// and the vector backend under one ID.
type Chunk struct {
	ID        string            // sha256(path + ":" + start_line), hex
	Path      string            // relative to the project root
	Title     string            // heading or symbol name, may be empty
	Content   string            // chunk text, including overlap
	Kind      string            // "code", "markdown", "text"
	Language  string            // detected language for code chunks
	StartLine int               // 1-indexed
	EndLine   int               // inclusive
	Metadata  map[string]string // extra fields carried into search results
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ChunkID derives the stable chunk identifier. Content edits at the same
// location keep the ID so re-indexing upserts in place.
func ChunkID(path string, startLine int) string {
	sum := sha256.Sum256([]byte(path + ":" + strconv.Itoa(startLine)))
	return hex.EncodeToString(sum[:])
}

// NewChunk builds a chunk with its ID and timestamps populated.
// Chunks without a source path (ad-hoc notes) are keyed by content instead.
func NewChunk(path, content string, startLine int) *Chunk {
	id := ""
	if path == "" {
		sum := sha256.Sum256([]byte(content))
		id = hex.EncodeToString(sum[:])
	} else {
		id = ChunkID(path, startLine)
	}
	now := time.Now().UTC()
	return &Chunk{
		ID:        id,
		Path:      path,
		Content:   content,
		StartLine: startLine,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// FileRecord tracks an indexed source file so incremental updates can skip
// unchanged files and drop chunks of deleted ones.
type FileRecord struct {
	Path        string    // relative to the project root
	ContentHash string    // sha256 of the file bytes
	Size        int64
	ModTime     time.Time
	ChunkCount  int
	IndexedAt   time.Time
}

// KeywordHit is a single BM25 match.
type KeywordHit struct {
	ChunkID      string
	Score        float64
	MatchedTerms []string
}

// DefaultCodeStopWords filters language keywords and throwaway identifiers
// that would otherwise dominate term frequencies in a code corpus.
var DefaultCodeStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// VectorMatch is a single nearest-neighbor result from the vector graph.
type VectorMatch struct {
	ID    string  // chunk ID
	Score float32 // normalized similarity in [0,1], higher is closer
}

// VectorGraphConfig configures the HNSW graph.
type VectorGraphConfig struct {
	// Dimensions is the embedding width. Required.
	Dimensions int

	// Metric is "cos" or "l2". Defaults to "cos".
	Metric string

	// M is the maximum connections per node. Defaults to 16.
	M int

	// EfSearch is the search beam width. Defaults to 20.
	EfSearch int
}

// ErrDimensionMismatch reports a vector whose width does not match the graph.
type ErrDimensionMismatch struct {
	Expected int
	Got      int
}

func (e ErrDimensionMismatch) Error() string {
	return fmt.Sprintf("vector dimension mismatch: expected %d, got %d", e.Expected, e.Got)
}
