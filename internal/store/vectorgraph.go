package store

import (
	"bufio"
	"context"
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/coder/hnsw"
)

// VectorGraph is an in-process HNSW index over chunk embeddings. It is
// pure Go (no cgo) and persists via Export/Import plus a gob sidecar for
// the string-to-key mapping.
type VectorGraph struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	config VectorGraphConfig

	idMap   map[string]uint64 // chunk ID -> graph key
	keyMap  map[uint64]string // graph key -> chunk ID
	nextKey uint64

	closed bool
}

// vectorGraphMeta is the persisted sidecar: ID mappings plus the config
// the graph was built with.
type vectorGraphMeta struct {
	IDMap   map[string]uint64
	NextKey uint64
	Config  VectorGraphConfig
}

// NewVectorGraph creates an empty graph for vectors of the configured
// dimensionality.
func NewVectorGraph(cfg VectorGraphConfig) (*VectorGraph, error) {
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("vector graph requires positive dimensions, got %d", cfg.Dimensions)
	}
	if cfg.Metric == "" {
		cfg.Metric = "cos"
	}
	if cfg.M == 0 {
		cfg.M = 16
	}
	if cfg.EfSearch == 0 {
		cfg.EfSearch = 20
	}

	graph := hnsw.NewGraph[uint64]()
	switch cfg.Metric {
	case "l2":
		graph.Distance = hnsw.EuclideanDistance
	default:
		graph.Distance = hnsw.CosineDistance
	}
	graph.M = cfg.M
	graph.EfSearch = cfg.EfSearch
	graph.Ml = 0.25

	return &VectorGraph{
		graph:  graph,
		config: cfg,
		idMap:  make(map[string]uint64),
		keyMap: make(map[uint64]string),
	}, nil
}

// Add inserts vectors keyed by chunk ID. Existing IDs are replaced.
func (g *VectorGraph) Add(ctx context.Context, ids []string, vectors [][]float32) error {
	if len(ids) == 0 {
		return nil
	}
	if len(ids) != len(vectors) {
		return fmt.Errorf("ids and vectors length mismatch: %d vs %d", len(ids), len(vectors))
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("vector graph is closed")
	}

	for _, v := range vectors {
		if len(v) != g.config.Dimensions {
			return ErrDimensionMismatch{Expected: g.config.Dimensions, Got: len(v)}
		}
	}

	for i, id := range ids {
		// Replacement is a lazy delete plus a fresh insert. Removing
		// nodes from the graph itself can break small graphs, so stale
		// nodes stay in place and only lose their ID mapping.
		if oldKey, exists := g.idMap[id]; exists {
			delete(g.keyMap, oldKey)
			delete(g.idMap, id)
		}

		key := g.nextKey
		g.nextKey++

		vec := make([]float32, len(vectors[i]))
		copy(vec, vectors[i])
		if g.config.Metric == "cos" {
			normalizeInPlace(vec)
		}

		g.graph.Add(hnsw.MakeNode(key, vec))
		g.idMap[id] = key
		g.keyMap[key] = id
	}
	return nil
}

// Search returns up to k nearest neighbors, best first. An empty graph
// returns an empty slice.
func (g *VectorGraph) Search(ctx context.Context, query []float32, k int) ([]*VectorMatch, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil, fmt.Errorf("vector graph is closed")
	}
	if len(query) != g.config.Dimensions {
		return nil, ErrDimensionMismatch{Expected: g.config.Dimensions, Got: len(query)}
	}
	if g.graph.Len() == 0 {
		return []*VectorMatch{}, nil
	}

	q := make([]float32, len(query))
	copy(q, query)
	if g.config.Metric == "cos" {
		normalizeInPlace(q)
	}

	nodes := g.graph.Search(q, k)
	matches := make([]*VectorMatch, 0, len(nodes))
	for _, node := range nodes {
		id, ok := g.keyMap[node.Key]
		if !ok {
			// Lazily deleted node. Skip it.
			continue
		}
		distance := g.graph.Distance(q, node.Value)
		matches = append(matches, &VectorMatch{
			ID:    id,
			Score: distanceToScore(distance, g.config.Metric),
		})
	}
	return matches, nil
}

// Delete removes vectors by chunk ID using lazy deletion.
func (g *VectorGraph) Delete(ctx context.Context, ids []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("vector graph is closed")
	}

	for _, id := range ids {
		if key, exists := g.idMap[id]; exists {
			delete(g.keyMap, key)
			delete(g.idMap, id)
		}
	}
	return nil
}

// Count returns the number of live vectors.
func (g *VectorGraph) Count() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return 0
	}
	return len(g.idMap)
}

// IDs returns every live chunk ID, for consistency checks against the
// docstore.
func (g *VectorGraph) IDs() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return nil
	}
	ids := make([]string, 0, len(g.idMap))
	for id := range g.idMap {
		ids = append(ids, id)
	}
	return ids
}

// Dimensions reports the configured embedding width.
func (g *VectorGraph) Dimensions() int {
	return g.config.Dimensions
}

// Save writes the graph and its sidecar to disk atomically.
func (g *VectorGraph) Save(path string) error {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.closed {
		return fmt.Errorf("vector graph is closed")
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create graph directory: %w", err)
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create graph file: %w", err)
	}
	if err := g.graph.Export(file); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("export graph: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close graph file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename graph file: %w", err)
	}

	return g.saveMeta(path + ".meta")
}

func (g *VectorGraph) saveMeta(path string) error {
	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("create meta file: %w", err)
	}

	meta := vectorGraphMeta{
		IDMap:   g.idMap,
		NextKey: g.nextKey,
		Config:  g.config,
	}
	if err := gob.NewEncoder(file).Encode(meta); err != nil {
		_ = file.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("encode graph meta: %w", err)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close meta file: %w", err)
	}
	return os.Rename(tmpPath, path)
}

// Load reads the graph and sidecar written by Save.
func (g *VectorGraph) Load(path string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return fmt.Errorf("vector graph is closed")
	}

	if err := g.loadMeta(path + ".meta"); err != nil {
		return err
	}

	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph file: %w", err)
	}
	defer file.Close()

	// Import needs an io.ByteReader.
	if err := g.graph.Import(bufio.NewReader(file)); err != nil {
		return fmt.Errorf("import graph: %w", err)
	}
	return nil
}

func (g *VectorGraph) loadMeta(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open graph meta: %w", err)
	}
	defer file.Close()

	var meta vectorGraphMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return fmt.Errorf("decode graph meta: %w", err)
	}

	g.idMap = meta.IDMap
	g.nextKey = meta.NextKey
	g.config = meta.Config
	g.keyMap = make(map[uint64]string, len(meta.IDMap))
	for id, key := range meta.IDMap {
		g.keyMap[key] = id
	}
	return nil
}

// GraphDimensions reads the embedding width recorded in a saved graph's
// sidecar. Returns 0 when no graph has been saved yet, so callers can
// detect a fresh start versus a dimension change.
func GraphDimensions(path string) (int, error) {
	file, err := os.Open(path + ".meta")
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open graph meta: %w", err)
	}
	defer file.Close()

	var meta vectorGraphMeta
	if err := gob.NewDecoder(file).Decode(&meta); err != nil {
		return 0, fmt.Errorf("decode graph meta: %w", err)
	}
	return meta.Config.Dimensions, nil
}

// Close releases the graph. Safe to call twice.
func (g *VectorGraph) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil
	}
	g.closed = true
	g.graph = nil
	return nil
}

func normalizeInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= inv
	}
}

// distanceToScore maps a distance to a similarity in [0,1]. Cosine
// distances range 0..2; L2 distances are unbounded.
func distanceToScore(distance float32, metric string) float32 {
	switch metric {
	case "l2":
		return 1.0 / (1.0 + distance)
	default:
		return 1.0 - distance/2.0
	}
}
