// Package rag defines the core data model shared across the query pipeline:
// queries and their analysis, documents flowing from retrievers to the
// ranker and compressor, retrieval strategies, and the run record persisted
// to cache and logs.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
)

// =============================================================================
// Intent
// =============================================================================

// Intent is the coarse classification of a query. It drives retriever
// selection, budgets, and cache TTLs.
type Intent string

const (
	IntentCode    Intent = "code"
	IntentConfig  Intent = "config"
	IntentExplain Intent = "explain"
	IntentStatus  Intent = "status"
	IntentGeneral Intent = "general"
)

// IsValid reports whether the intent is one of the known values.
func (i Intent) IsValid() bool {
	switch i {
	case IntentCode, IntentConfig, IntentExplain, IntentStatus, IntentGeneral:
		return true
	}
	return false
}

// =============================================================================
// Source
// =============================================================================

// Source identifies the retriever that produced a document.
type Source string

const (
	SourceVector       Source = "vector"
	SourceMemory       Source = "memory"
	SourceKeyword      Source = "keyword"
	SourceCode         Source = "code"
	SourceCodeFallback Source = "code_fallback"
	SourceEntityGraph  Source = "entity_graph"
	SourceTemporal     Source = "temporal"
)

// =============================================================================
// Query analysis
// =============================================================================

// Temporal captures recency cues parsed from the query text.
type Temporal struct {
	Present  bool   `json:"present"`
	DaysBack int    `json:"days_back"`
	Keyword  string `json:"keyword,omitempty"`
}

// Analysis is the derived view of a query: extracted concepts, expanded
// variants, temporal cues, and intent. Immutable once produced.
type Analysis struct {
	Concepts   []string `json:"concepts"`
	Expansions []string `json:"expansions"`
	Temporal   Temporal `json:"temporal"`
	Intent     Intent   `json:"intent"`
}

// Query is the raw question plus its analysis.
type Query struct {
	Text     string   `json:"text"`
	Analysis Analysis `json:"analysis"`
}

// Variants returns the ordered retrieval variants for vector search:
// the original text first, then concepts, then expansions.
func (q Query) Variants() []string {
	variants := make([]string, 0, 1+len(q.Analysis.Concepts)+len(q.Analysis.Expansions))
	variants = append(variants, q.Text)
	variants = append(variants, q.Analysis.Concepts...)
	variants = append(variants, q.Analysis.Expansions...)
	return variants
}

// =============================================================================
// Document
// =============================================================================

// Document is the unit of evidence flowing through the pipeline. Fields are
// added monotonically: retrievers set ID, Content, Source, Metadata and
// Score; the vector agent sets VectorScore; the temporal agent sets
// TemporalBoost; the re-ranker sets FinalScore.
//
// Zero values mean "absent": a TemporalBoost of 0 is treated as 1.0 by the
// re-ranker, and a VectorScore of 0 contributes nothing.
type Document struct {
	ID            string            `json:"id"`
	Content       string            `json:"content"`
	Source        Source            `json:"source"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	Score         float64           `json:"score,omitempty"`
	VectorScore   float64           `json:"vector_score,omitempty"`
	TemporalBoost float64           `json:"temporal_boost,omitempty"`
	FinalScore    float64           `json:"final_score,omitempty"`
}

// NewDocument builds a document with its stable content-derived ID.
func NewDocument(content string, source Source) Document {
	return Document{
		ID:      ContentKey(content),
		Content: content,
		Source:  source,
	}
}

// ContentKey returns the stable deduplication key for document content:
// the SHA-256 of the first 200 bytes, hex encoded.
func ContentKey(content string) string {
	head := content
	if len(head) > 200 {
		head = head[:200]
	}
	sum := sha256.Sum256([]byte(head))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// Strategy
// =============================================================================

// Mode selects between full hybrid retrieval and no retrieval at all.
type Mode string

const (
	// ModeHybrid runs the enabled retrievers and ranks their union.
	ModeHybrid Mode = "hybrid"
	// ModeNone skips retrieval entirely; the synthesizer answers without
	// context (generic definitional questions).
	ModeNone Mode = "none"
)

// Strategy describes which retrievers to invoke and with what budgets.
// Produced by the planner from an analyzed query; read-only afterwards.
type Strategy struct {
	Mode Mode `json:"mode"`

	UseVector   bool `json:"use_vector"`
	UseMemory   bool `json:"use_memory"`
	UseRecent   bool `json:"use_recent"`
	UseCode     bool `json:"use_code"`
	UseKeywords bool `json:"use_keywords"`
	UseGraph    bool `json:"use_graph"`
	UsePlanning bool `json:"use_planning"`

	TopK           int `json:"top_k"`
	VectorNResults int `json:"vector_n_results"`
	MemoryLimit    int `json:"memory_limit"`
	MemoryConcepts int `json:"memory_concepts"`
	KeywordLimit   int `json:"keyword_limit"`
	GraphLimit     int `json:"graph_limit"`
	CodeLimit      int `json:"code_limit"`
	HalfLifeDays   int `json:"half_life_days"`
}

// EnabledRetrievers counts the retrievers the strategy switches on.
func (s Strategy) EnabledRetrievers() int {
	n := 0
	for _, on := range []bool{s.UseVector, s.UseMemory, s.UseRecent, s.UseCode, s.UseKeywords, s.UseGraph} {
		if on {
			n++
		}
	}
	return n
}

// =============================================================================
// Run record
// =============================================================================

// RunRecord is the canonical result of one pipeline execution. It is the
// cache payload, the monitor log line, and the value returned to callers.
type RunRecord struct {
	Query        string  `json:"query"`
	Answer       string  `json:"answer"`
	Intent       Intent  `json:"intent"`
	Retrieved    int     `json:"retrieved"`
	Reranked     int     `json:"reranked"`
	ContextChars int     `json:"context_chars"`
	Confidence   float64 `json:"confidence"`
	ElapsedSec   float64 `json:"elapsed_sec"`
	FromCache    bool    `json:"from_cache"`
	Project      string  `json:"project"`
	Timestamp    string  `json:"timestamp"`
	CacheTTL     int     `json:"cache_ttl"`
}

// NoInformationAnswer is the sentinel answer used when no documents survive
// retrieval. Pipelines must never emit a run record without either a real
// answer or this sentinel.
const NoInformationAnswer = "No relevant information found in the knowledge base."
