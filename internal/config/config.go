// Package config loads and validates ragweaver configuration. Settings are
// applied in order of increasing precedence: built-in defaults, the user
// config (~/.config/ragweaver/config.yaml), the project config
// (.ragweaver/config.yaml), a .env file in the project root, and finally
// RAG_* environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ProjectType represents the type of project detected.
type ProjectType string

const (
	ProjectTypeGo      ProjectType = "go"
	ProjectTypeNode    ProjectType = "node"
	ProjectTypePython  ProjectType = "python"
	ProjectTypeUnknown ProjectType = "unknown"
)

// Config is the complete ragweaver configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Project    string           `yaml:"project" json:"project"`
	Paths      PathsConfig      `yaml:"paths" json:"paths"`
	LLM        LLMConfig        `yaml:"llm" json:"llm"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Vector     VectorConfig     `yaml:"vector" json:"vector"`
	Store      StoreConfig      `yaml:"store" json:"store"`
	Memory     MemoryConfig     `yaml:"memory" json:"memory"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Rerank     RerankConfig     `yaml:"rerank" json:"rerank"`
	Context    ContextConfig    `yaml:"context" json:"context"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Trace      TraceConfig      `yaml:"trace" json:"trace"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
}

// PathsConfig configures which paths ingestion includes and excludes.
type PathsConfig struct {
	Include []string `yaml:"include" json:"include"`
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// LLMConfig configures the answer and analysis language models.
type LLMConfig struct {
	// Provider selects the chat backend: "anthropic", "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	// Model is used for answer synthesis.
	Model string `yaml:"model" json:"model"`
	// AnalysisModel is used for query analysis (concepts, expansion,
	// intent fallback). A small fast model is enough here.
	AnalysisModel string `yaml:"analysis_model" json:"analysis_model"`
	// MaxTokens bounds the synthesized answer.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// Temperature for synthesis. Analysis always runs at 0.
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// Timeout is the per-request timeout (e.g. "60s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// OllamaHost is the Ollama API endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the embedder: "ollama" or "static".
	Provider string `yaml:"provider" json:"provider"`
	Model    string `yaml:"model" json:"model"`
	// Dimensions is auto-detected from the embedder when zero.
	Dimensions int `yaml:"dimensions" json:"dimensions"`
	BatchSize  int `yaml:"batch_size" json:"batch_size"`
	// OllamaHost is the Ollama API endpoint (default http://localhost:11434).
	OllamaHost string `yaml:"ollama_host" json:"ollama_host"`
}

// VectorConfig configures the vector index backend.
type VectorConfig struct {
	// Backend selects the vector store: "chromem" (default, persistent)
	// or "hnsw" (in-process graph index backed by the document store).
	Backend string `yaml:"backend" json:"backend"`
	// Collection is the chromem collection name.
	Collection string `yaml:"collection" json:"collection"`
	// NResults is how many neighbours a semantic search returns.
	NResults int `yaml:"n_results" json:"n_results"`
	// Path overrides the on-disk location (default: under the project
	// data directory).
	Path string `yaml:"path" json:"path"`
}

// StoreConfig configures the SQLite document store.
type StoreConfig struct {
	// Driver selects the SQLite driver: "sqlite" (modernc, pure Go,
	// default) or "sqlite3" (mattn, cgo).
	Driver string `yaml:"driver" json:"driver"`
	// Path overrides the database location (default: docstore.db under
	// the project data directory).
	Path string `yaml:"path" json:"path"`
	// CacheMB is the SQLite page cache size in MB.
	CacheMB int `yaml:"cache_mb" json:"cache_mb"`
}

// MemoryConfig configures the external memory agent subprocess.
type MemoryConfig struct {
	// Enabled turns the memory retriever on. Off by default since it
	// needs the agent binary installed.
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Command is the agent executable.
	Command string `yaml:"command" json:"command"`
	// Args are passed before the query text.
	Args []string `yaml:"args" json:"args"`
	// Timeout bounds a single agent invocation (e.g. "15s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// RetrievalConfig tunes the retrieval orchestrator. The limit fields
// (TopK, HalfLifeDays, and the per-retriever caps) are zero unless the
// user sets them; zero means the planner chooses per intent.
type RetrievalConfig struct {
	// TopK overrides the planned number of documents handed to synthesis.
	TopK int `yaml:"top_k" json:"top_k"`
	// EarlyStopScore and EarlyStopCount stop remaining retrievers once
	// EarlyStopCount documents scored above EarlyStopScore have arrived.
	EarlyStopScore float64 `yaml:"early_stop_score" json:"early_stop_score"`
	EarlyStopCount int     `yaml:"early_stop_count" json:"early_stop_count"`
	// Timeout bounds a single retriever (e.g. "8s").
	Timeout string `yaml:"timeout" json:"timeout"`
	// HalfLifeDays controls recency decay for temporal queries.
	HalfLifeDays float64 `yaml:"half_life_days" json:"half_life_days"`
	// MaxSubQueries caps query decomposition for multi-part questions.
	MaxSubQueries int `yaml:"max_sub_queries" json:"max_sub_queries"`
	// Per-retriever result caps.
	KeywordLimit int `yaml:"keyword_limit" json:"keyword_limit"`
	GraphLimit   int `yaml:"graph_limit" json:"graph_limit"`
	CodeLimit    int `yaml:"code_limit" json:"code_limit"`
}

// RerankConfig configures the two-stage reranker.
type RerankConfig struct {
	// Endpoint is the cross-encoder scoring service. Empty disables the
	// second stage and keeps the heuristic ordering.
	Endpoint string `yaml:"endpoint" json:"endpoint"`
	// Model is sent to the scoring service.
	Model string `yaml:"model" json:"model"`
	// VectorWeight blends the original vector score into the
	// cross-encoder score.
	VectorWeight float64 `yaml:"vector_weight" json:"vector_weight"`
	// ExactMatchBonus multiplies scores of documents containing the
	// query verbatim.
	ExactMatchBonus float64 `yaml:"exact_match_bonus" json:"exact_match_bonus"`
	// StageOneFactor and StageOneMin size the stage-one cut:
	// max(StageOneMin, StageOneFactor*topK) candidates survive.
	StageOneFactor int `yaml:"stage_one_factor" json:"stage_one_factor"`
	StageOneMin    int `yaml:"stage_one_min" json:"stage_one_min"`
	// Timeout bounds a scoring request (e.g. "10s").
	Timeout string `yaml:"timeout" json:"timeout"`
}

// ContextConfig tunes context assembly for synthesis.
type ContextConfig struct {
	// MaxChars is the context character budget.
	MaxChars int `yaml:"max_chars" json:"max_chars"`
	// FullTextRank and FullTextScore decide which documents are included
	// verbatim: rank below FullTextRank or score above FullTextScore.
	FullTextRank  int     `yaml:"full_text_rank" json:"full_text_rank"`
	FullTextScore float64 `yaml:"full_text_score" json:"full_text_score"`
	// SummaryChars is the size of the head summary used for documents
	// that do not qualify for full text.
	SummaryChars int `yaml:"summary_chars" json:"summary_chars"`
	// TruncateMinRemaining is the smallest budget remainder worth
	// filling with a truncated document.
	TruncateMinRemaining int `yaml:"truncate_min_remaining" json:"truncate_min_remaining"`
}

// CacheConfig configures the answer cache.
type CacheConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir overrides the cache location (default: under the project data
	// directory).
	Dir string `yaml:"dir" json:"dir"`
	// MaxEntries bounds the cache; oldest entries are pruned past it.
	MaxEntries int `yaml:"max_entries" json:"max_entries"`
	// Per-intent TTLs in seconds. Status answers go stale fastest.
	DefaultTTL int `yaml:"default_ttl" json:"default_ttl"`
	StatusTTL  int `yaml:"status_ttl" json:"status_ttl"`
	CodeTTL    int `yaml:"code_ttl" json:"code_ttl"`
	ExplainTTL int `yaml:"explain_ttl" json:"explain_ttl"`
	GeneralTTL int `yaml:"general_ttl" json:"general_ttl"`
}

// TTLFor returns the cache TTL for an intent.
func (c CacheConfig) TTLFor(intent string) time.Duration {
	seconds := c.DefaultTTL
	switch intent {
	case "status":
		seconds = c.StatusTTL
	case "code":
		seconds = c.CodeTTL
	case "explain":
		seconds = c.ExplainTTL
	case "general":
		seconds = c.GeneralTTL
	}
	return time.Duration(seconds) * time.Second
}

// TraceConfig configures pipeline tracing.
type TraceConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// Dir overrides the trace location (default: under the project data
	// directory).
	Dir string `yaml:"dir" json:"dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Host     string `yaml:"host" json:"host"`
	Port     int    `yaml:"port" json:"port"`
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// IngestConfig configures document ingestion.
type IngestConfig struct {
	ChunkSize    int `yaml:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	MaxFiles     int `yaml:"max_files" json:"max_files"`
	// MaxFileSizeKB skips files larger than this.
	MaxFileSizeKB int `yaml:"max_file_size_kb" json:"max_file_size_kb"`
	Workers       int `yaml:"workers" json:"workers"`
	// WatchDebounce coalesces filesystem events in watch mode.
	WatchDebounce string `yaml:"watch_debounce" json:"watch_debounce"`
}

// defaultExcludePatterns are always excluded from ingestion.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/pnpm-lock.yaml",
	"**/go.sum",
}

// NewConfig creates a Config with built-in defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		LLM: LLMConfig{
			Provider:      "anthropic",
			Model:         "claude-sonnet-4-5",
			AnalysisModel: "claude-3-5-haiku-latest",
			MaxTokens:     8000,
			Temperature:   0.2,
			Timeout:       "60s",
			OllamaHost:    "", // empty uses http://localhost:11434
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "ollama",
			Model:      "nomic-embed-text",
			Dimensions: 0, // auto-detect from the embedder
			BatchSize:  32,
			OllamaHost: "",
		},
		Vector: VectorConfig{
			Backend:    "chromem",
			Collection: "documents",
			NResults:   15,
		},
		Store: StoreConfig{
			Driver:  "sqlite",
			CacheMB: 64,
		},
		Memory: MemoryConfig{
			Enabled: false,
			Command: "mem-agent",
			Args:    []string{"query"},
			Timeout: "15s",
		},
		Retrieval: RetrievalConfig{
			// Limit fields stay zero so the planner's intent-specific
			// budgets apply. Users override via flags, env, or yaml.
			EarlyStopScore: 0.8,
			EarlyStopCount: 30,
			Timeout:        "8s",
			MaxSubQueries:  3,
		},
		Rerank: RerankConfig{
			Endpoint:        "", // cross-encoder off unless configured
			Model:           "cross-encoder/ms-marco-MiniLM-L-6-v2",
			VectorWeight:    0.2,
			ExactMatchBonus: 1.2,
			StageOneFactor:  2,
			StageOneMin:     50,
			Timeout:         "10s",
		},
		Context: ContextConfig{
			MaxChars:             120000,
			FullTextRank:         10,
			FullTextScore:        0.8,
			SummaryChars:         1500,
			TruncateMinRemaining: 500,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 512,
			DefaultTTL: 900,
			StatusTTL:  180,
			CodeTTL:    90,
			ExplainTTL: 600,
			GeneralTTL: 600,
		},
		Trace: TraceConfig{
			Enabled: true,
		},
		Server: ServerConfig{
			Host:     "127.0.0.1",
			Port:     8750,
			LogLevel: "info",
		},
		Ingest: IngestConfig{
			ChunkSize:     1000,
			ChunkOverlap:  200,
			MaxFiles:      100000,
			MaxFileSizeKB: 1024,
			Workers:       runtime.NumCPU(),
			WatchDebounce: "500ms",
		},
	}
}

// DataDir returns the ragweaver data root: $RAG_DATA_DIR when set,
// otherwise ~/.ragweaver.
func DataDir() string {
	if dir := os.Getenv("RAG_DATA_DIR"); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".ragweaver")
	}
	return filepath.Join(home, ".ragweaver")
}

// ProjectDir returns the per-project data directory.
func ProjectDir(project string) string {
	return filepath.Join(DataDir(), "projects", project)
}

// ProjectName derives a project identifier from a root directory:
// the base name lowercased with non-alphanumerics collapsed to '-'.
func ProjectName(root string) string {
	base := strings.ToLower(filepath.Base(filepath.Clean(root)))
	var b strings.Builder
	lastDash := false
	for _, r := range base {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			b.WriteRune(r)
			lastDash = false
			continue
		}
		if !lastDash && b.Len() > 0 {
			b.WriteByte('-')
			lastDash = true
		}
	}
	name := strings.Trim(b.String(), "-")
	if name == "" {
		return "default"
	}
	return name
}

// GetUserConfigPath returns the path to the user configuration file,
// following the XDG base directory convention.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "ragweaver", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "ragweaver", "config.yaml")
	}
	return filepath.Join(home, ".config", "ragweaver", "config.yaml")
}

// GetUserConfigDir returns the directory containing the user configuration.
func GetUserConfigDir() string {
	return filepath.Dir(GetUserConfigPath())
}

// UserConfigExists returns true if the user configuration file exists.
func UserConfigExists() bool {
	return fileExists(GetUserConfigPath())
}

// ProjectConfigPath returns the project configuration path for a root.
func ProjectConfigPath(root string) string {
	return filepath.Join(root, ".ragweaver", "config.yaml")
}

func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil // no user config is fine
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}
	return cfg, nil
}

// Load loads configuration for the project rooted at dir. Precedence,
// lowest to highest: defaults, user config, project config, .env file,
// RAG_* environment variables.
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromProject(dir); err != nil {
		return nil, err
	}

	// .env never overrides variables already set in the environment.
	_ = godotenv.Load(filepath.Join(dir, ".env"))
	cfg.applyEnvOverrides()

	if cfg.Project == "" {
		cfg.Project = ProjectName(dir)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// loadFromProject loads .ragweaver/config.yaml, falling back to a
// top-level .ragweaver.yaml.
func (c *Config) loadFromProject(dir string) error {
	nested := ProjectConfigPath(dir)
	if fileExists(nested) {
		return c.loadYAML(nested)
	}

	flat := filepath.Join(dir, ".ragweaver.yaml")
	if fileExists(flat) {
		return c.loadYAML(flat)
	}

	// No project config is fine, defaults apply.
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Project != "" {
		c.Project = other.Project
	}

	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Extend the defaults rather than replace them.
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	if other.LLM.Provider != "" {
		c.LLM.Provider = other.LLM.Provider
	}
	if other.LLM.Model != "" {
		c.LLM.Model = other.LLM.Model
	}
	if other.LLM.AnalysisModel != "" {
		c.LLM.AnalysisModel = other.LLM.AnalysisModel
	}
	if other.LLM.MaxTokens != 0 {
		c.LLM.MaxTokens = other.LLM.MaxTokens
	}
	if other.LLM.Temperature != 0 {
		c.LLM.Temperature = other.LLM.Temperature
	}
	if other.LLM.Timeout != "" {
		c.LLM.Timeout = other.LLM.Timeout
	}
	if other.LLM.OllamaHost != "" {
		c.LLM.OllamaHost = other.LLM.OllamaHost
	}

	if other.Embeddings.Provider != "" {
		c.Embeddings.Provider = other.Embeddings.Provider
	}
	if other.Embeddings.Model != "" {
		c.Embeddings.Model = other.Embeddings.Model
	}
	if other.Embeddings.Dimensions != 0 {
		c.Embeddings.Dimensions = other.Embeddings.Dimensions
	}
	if other.Embeddings.BatchSize != 0 {
		c.Embeddings.BatchSize = other.Embeddings.BatchSize
	}
	if other.Embeddings.OllamaHost != "" {
		c.Embeddings.OllamaHost = other.Embeddings.OllamaHost
	}

	if other.Vector.Backend != "" {
		c.Vector.Backend = other.Vector.Backend
	}
	if other.Vector.Collection != "" {
		c.Vector.Collection = other.Vector.Collection
	}
	if other.Vector.NResults != 0 {
		c.Vector.NResults = other.Vector.NResults
	}
	if other.Vector.Path != "" {
		c.Vector.Path = other.Vector.Path
	}

	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
	if other.Store.Path != "" {
		c.Store.Path = other.Store.Path
	}
	if other.Store.CacheMB != 0 {
		c.Store.CacheMB = other.Store.CacheMB
	}

	if other.Memory.Enabled {
		c.Memory.Enabled = true
	}
	if other.Memory.Command != "" {
		c.Memory.Command = other.Memory.Command
	}
	if len(other.Memory.Args) > 0 {
		c.Memory.Args = other.Memory.Args
	}
	if other.Memory.Timeout != "" {
		c.Memory.Timeout = other.Memory.Timeout
	}

	if other.Retrieval.TopK != 0 {
		c.Retrieval.TopK = other.Retrieval.TopK
	}
	if other.Retrieval.EarlyStopScore != 0 {
		c.Retrieval.EarlyStopScore = other.Retrieval.EarlyStopScore
	}
	if other.Retrieval.EarlyStopCount != 0 {
		c.Retrieval.EarlyStopCount = other.Retrieval.EarlyStopCount
	}
	if other.Retrieval.Timeout != "" {
		c.Retrieval.Timeout = other.Retrieval.Timeout
	}
	if other.Retrieval.HalfLifeDays != 0 {
		c.Retrieval.HalfLifeDays = other.Retrieval.HalfLifeDays
	}
	if other.Retrieval.MaxSubQueries != 0 {
		c.Retrieval.MaxSubQueries = other.Retrieval.MaxSubQueries
	}
	if other.Retrieval.KeywordLimit != 0 {
		c.Retrieval.KeywordLimit = other.Retrieval.KeywordLimit
	}
	if other.Retrieval.GraphLimit != 0 {
		c.Retrieval.GraphLimit = other.Retrieval.GraphLimit
	}
	if other.Retrieval.CodeLimit != 0 {
		c.Retrieval.CodeLimit = other.Retrieval.CodeLimit
	}

	if other.Rerank.Endpoint != "" {
		c.Rerank.Endpoint = other.Rerank.Endpoint
	}
	if other.Rerank.Model != "" {
		c.Rerank.Model = other.Rerank.Model
	}
	if other.Rerank.VectorWeight != 0 {
		c.Rerank.VectorWeight = other.Rerank.VectorWeight
	}
	if other.Rerank.ExactMatchBonus != 0 {
		c.Rerank.ExactMatchBonus = other.Rerank.ExactMatchBonus
	}
	if other.Rerank.StageOneFactor != 0 {
		c.Rerank.StageOneFactor = other.Rerank.StageOneFactor
	}
	if other.Rerank.StageOneMin != 0 {
		c.Rerank.StageOneMin = other.Rerank.StageOneMin
	}
	if other.Rerank.Timeout != "" {
		c.Rerank.Timeout = other.Rerank.Timeout
	}

	if other.Context.MaxChars != 0 {
		c.Context.MaxChars = other.Context.MaxChars
	}
	if other.Context.FullTextRank != 0 {
		c.Context.FullTextRank = other.Context.FullTextRank
	}
	if other.Context.FullTextScore != 0 {
		c.Context.FullTextScore = other.Context.FullTextScore
	}
	if other.Context.SummaryChars != 0 {
		c.Context.SummaryChars = other.Context.SummaryChars
	}
	if other.Context.TruncateMinRemaining != 0 {
		c.Context.TruncateMinRemaining = other.Context.TruncateMinRemaining
	}

	// Enabled flags cannot distinguish "unset" from "false" after YAML
	// parsing, so a cache/trace section only flips the flag when some
	// other field in the section is present.
	if other.Cache.Dir != "" || other.Cache.MaxEntries != 0 || other.Cache.DefaultTTL != 0 {
		c.Cache.Enabled = other.Cache.Enabled
	}
	if other.Cache.Dir != "" {
		c.Cache.Dir = other.Cache.Dir
	}
	if other.Cache.MaxEntries != 0 {
		c.Cache.MaxEntries = other.Cache.MaxEntries
	}
	if other.Cache.DefaultTTL != 0 {
		c.Cache.DefaultTTL = other.Cache.DefaultTTL
	}
	if other.Cache.StatusTTL != 0 {
		c.Cache.StatusTTL = other.Cache.StatusTTL
	}
	if other.Cache.CodeTTL != 0 {
		c.Cache.CodeTTL = other.Cache.CodeTTL
	}
	if other.Cache.ExplainTTL != 0 {
		c.Cache.ExplainTTL = other.Cache.ExplainTTL
	}
	if other.Cache.GeneralTTL != 0 {
		c.Cache.GeneralTTL = other.Cache.GeneralTTL
	}

	if other.Trace.Dir != "" {
		c.Trace.Enabled = other.Trace.Enabled
		c.Trace.Dir = other.Trace.Dir
	}

	if other.Server.Host != "" {
		c.Server.Host = other.Server.Host
	}
	if other.Server.Port != 0 {
		c.Server.Port = other.Server.Port
	}
	if other.Server.LogLevel != "" {
		c.Server.LogLevel = other.Server.LogLevel
	}

	if other.Ingest.ChunkSize != 0 {
		c.Ingest.ChunkSize = other.Ingest.ChunkSize
	}
	if other.Ingest.ChunkOverlap != 0 {
		c.Ingest.ChunkOverlap = other.Ingest.ChunkOverlap
	}
	if other.Ingest.MaxFiles != 0 {
		c.Ingest.MaxFiles = other.Ingest.MaxFiles
	}
	if other.Ingest.MaxFileSizeKB != 0 {
		c.Ingest.MaxFileSizeKB = other.Ingest.MaxFileSizeKB
	}
	if other.Ingest.Workers != 0 {
		c.Ingest.Workers = other.Ingest.Workers
	}
	if other.Ingest.WatchDebounce != "" {
		c.Ingest.WatchDebounce = other.Ingest.WatchDebounce
	}
}

// applyEnvOverrides applies RAG_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("RAG_PROJECT"); v != "" {
		c.Project = v
	}

	if v := os.Getenv("RAG_LLM_PROVIDER"); v != "" {
		c.LLM.Provider = v
	}
	if v := os.Getenv("RAG_MODEL"); v != "" {
		c.LLM.Model = v
	}
	if v := os.Getenv("RAG_FAST_MODEL"); v != "" {
		c.LLM.AnalysisModel = v
	}
	if v := os.Getenv("RAG_OLLAMA_ENDPOINT"); v != "" {
		c.LLM.OllamaHost = v
		c.Embeddings.OllamaHost = v
	}

	if v := os.Getenv("RAG_EMBED_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("RAG_EMBED_MODEL"); v != "" {
		c.Embeddings.Model = v
	}

	if v := os.Getenv("RAG_VECTOR_BACKEND"); v != "" {
		c.Vector.Backend = v
	}
	if v := os.Getenv("RAG_VECTOR_N_RESULTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Vector.NResults = n
		}
	}
	if v := os.Getenv("RAG_STORE_DRIVER"); v != "" {
		c.Store.Driver = v
	}

	if v := os.Getenv("RAG_MEMORY_CMD"); v != "" {
		c.Memory.Command = v
		c.Memory.Enabled = true
	}
	if v := os.Getenv("RAG_MEMORY_ENABLED"); v != "" {
		c.Memory.Enabled = isTruthy(v)
	}

	if v := os.Getenv("RAG_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("RAG_EARLY_STOP_SCORE"); v != "" {
		if s, err := parseFloat64(v); err == nil && s >= 0 && s <= 1 {
			c.Retrieval.EarlyStopScore = s
		}
	}
	if v := os.Getenv("RAG_EARLY_STOP_COUNT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.EarlyStopCount = n
		}
	}
	if v := os.Getenv("RAG_HALF_LIFE_DAYS"); v != "" {
		if d, err := parseFloat64(v); err == nil && d > 0 {
			c.Retrieval.HalfLifeDays = d
		}
	}

	if v := os.Getenv("RAG_RERANKER_ENDPOINT"); v != "" {
		c.Rerank.Endpoint = v
	}
	if v := os.Getenv("RAG_CONTEXT_CHARS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Context.MaxChars = n
		}
	}

	if v := os.Getenv("RAG_DISABLE_CACHE"); v != "" && isTruthy(v) {
		c.Cache.Enabled = false
	}
	if v := os.Getenv("RAG_CACHE_TTL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.DefaultTTL = n
		}
	}
	if v := os.Getenv("RAG_CACHE_MAX_ENTRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Cache.MaxEntries = n
		}
	}
	for env, dst := range map[string]*int{
		"RAG_CACHE_TTL_STATUS":  &c.Cache.StatusTTL,
		"RAG_CACHE_TTL_CODE":    &c.Cache.CodeTTL,
		"RAG_CACHE_TTL_EXPLAIN": &c.Cache.ExplainTTL,
		"RAG_CACHE_TTL_GENERAL": &c.Cache.GeneralTTL,
	} {
		if v := os.Getenv(env); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				*dst = n
			}
		}
	}

	if v := os.Getenv("RAG_TRACING_ENABLED"); v != "" {
		c.Trace.Enabled = isTruthy(v)
	}

	if v := os.Getenv("RAG_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	if v := os.Getenv("RAG_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 {
			c.Server.Port = p
		}
	}
}

func isTruthy(v string) bool {
	return strings.ToLower(v) == "true" || v == "1"
}

func parseFloat64(s string) (float64, error) {
	return strconv.ParseFloat(strings.TrimSpace(s), 64)
}

// DetectProjectType detects the project type based on marker files.
// Priority: go.mod > package.json > pyproject.toml/requirements.txt
func DetectProjectType(dir string) ProjectType {
	if fileExists(filepath.Join(dir, "go.mod")) {
		return ProjectTypeGo
	}
	if fileExists(filepath.Join(dir, "package.json")) {
		return ProjectTypeNode
	}
	if fileExists(filepath.Join(dir, "pyproject.toml")) ||
		fileExists(filepath.Join(dir, "requirements.txt")) {
		return ProjectTypePython
	}
	return ProjectTypeUnknown
}

// FindProjectRoot walks up from startDir looking for a .git directory, a
// .ragweaver directory or a .ragweaver.yaml file. Returns startDir when
// nothing is found.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}
		if dirExists(filepath.Join(currentDir, ".ragweaver")) ||
			fileExists(filepath.Join(currentDir, ".ragweaver.yaml")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

// DiscoverSourceDirs discovers common source directories in the project.
// Used by ingestion when paths.include is empty.
func DiscoverSourceDirs(dir string) []string {
	commonSourceDirs := []string{"src", "lib", "pkg", "internal", "cmd"}
	frameworkDirs := []string{"app", "pages"} // Next.js layouts

	var found []string
	for _, d := range commonSourceDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	if isNextJS(dir) {
		for _, d := range frameworkDirs {
			if dirExists(filepath.Join(dir, d)) {
				found = append(found, d)
			}
		}
	}
	return found
}

// DiscoverDocsDirs discovers documentation directories and README files.
func DiscoverDocsDirs(dir string) []string {
	commonDocDirs := []string{"docs", "doc"}
	commonDocFiles := []string{"README.md", "readme.md", "README.markdown"}

	var found []string
	for _, d := range commonDocDirs {
		if dirExists(filepath.Join(dir, d)) {
			found = append(found, d)
		}
	}

	for _, f := range commonDocFiles {
		if fileExists(filepath.Join(dir, f)) {
			found = append(found, f)
			break // one README is enough
		}
	}
	return found
}

func isNextJS(dir string) bool {
	pkgPath := filepath.Join(dir, "package.json")
	if !fileExists(pkgPath) {
		return false
	}

	data, err := os.ReadFile(pkgPath)
	if err != nil {
		return false
	}

	var pkg struct {
		Dependencies    map[string]string `json:"dependencies"`
		DevDependencies map[string]string `json:"devDependencies"`
	}
	if err := json.Unmarshal(data, &pkg); err != nil {
		return false
	}

	_, hasNext := pkg.Dependencies["next"]
	_, hasNextDev := pkg.DevDependencies["next"]
	return hasNext || hasNextDev
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.IsDir()
}

// String returns a string representation of ProjectType.
func (p ProjectType) String() string {
	return string(p)
}

// IsKnown returns true if the project type is known (not unknown).
func (p ProjectType) IsKnown() bool {
	return p != ProjectTypeUnknown
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	validLLM := map[string]bool{"anthropic": true, "ollama": true, "static": true}
	if !validLLM[strings.ToLower(c.LLM.Provider)] {
		return fmt.Errorf("llm.provider must be 'anthropic', 'ollama' or 'static', got %s", c.LLM.Provider)
	}

	validEmbed := map[string]bool{"ollama": true, "static": true}
	if !validEmbed[strings.ToLower(c.Embeddings.Provider)] {
		return fmt.Errorf("embeddings.provider must be 'ollama' or 'static', got %s", c.Embeddings.Provider)
	}

	validBackend := map[string]bool{"chromem": true, "hnsw": true}
	if !validBackend[strings.ToLower(c.Vector.Backend)] {
		return fmt.Errorf("vector.backend must be 'chromem' or 'hnsw', got %s", c.Vector.Backend)
	}

	validDriver := map[string]bool{"sqlite": true, "sqlite3": true}
	if !validDriver[strings.ToLower(c.Store.Driver)] {
		return fmt.Errorf("store.driver must be 'sqlite' or 'sqlite3', got %s", c.Store.Driver)
	}

	if c.Retrieval.TopK < 0 {
		return fmt.Errorf("retrieval.top_k must not be negative, got %d", c.Retrieval.TopK)
	}
	if c.Retrieval.EarlyStopScore < 0 || c.Retrieval.EarlyStopScore > 1 {
		return fmt.Errorf("retrieval.early_stop_score must be between 0 and 1, got %f", c.Retrieval.EarlyStopScore)
	}
	if c.Retrieval.HalfLifeDays < 0 {
		return fmt.Errorf("retrieval.half_life_days must not be negative, got %f", c.Retrieval.HalfLifeDays)
	}

	if c.Rerank.VectorWeight < 0 {
		return fmt.Errorf("rerank.vector_weight must be non-negative, got %f", c.Rerank.VectorWeight)
	}
	if c.Rerank.ExactMatchBonus < 1 {
		return fmt.Errorf("rerank.exact_match_bonus must be at least 1, got %f", c.Rerank.ExactMatchBonus)
	}

	if c.Context.MaxChars <= 0 {
		return fmt.Errorf("context.max_chars must be positive, got %d", c.Context.MaxChars)
	}

	if c.Ingest.ChunkSize <= 0 {
		return fmt.Errorf("ingest.chunk_size must be positive, got %d", c.Ingest.ChunkSize)
	}
	if c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("ingest.chunk_overlap must be smaller than chunk_size, got %d", c.Ingest.ChunkOverlap)
	}

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be a valid port, got %d", c.Server.Port)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.Server.LogLevel)] {
		return fmt.Errorf("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// LLMTimeout parses LLM.Timeout, falling back to 60s.
func (c *Config) LLMTimeout() time.Duration {
	return parseDuration(c.LLM.Timeout, 60*time.Second)
}

// MemoryTimeout parses Memory.Timeout, falling back to 15s.
func (c *Config) MemoryTimeout() time.Duration {
	return parseDuration(c.Memory.Timeout, 15*time.Second)
}

// RetrieverTimeout parses Retrieval.Timeout, falling back to 8s.
func (c *Config) RetrieverTimeout() time.Duration {
	return parseDuration(c.Retrieval.Timeout, 8*time.Second)
}

// RerankTimeout parses Rerank.Timeout, falling back to 10s.
func (c *Config) RerankTimeout() time.Duration {
	return parseDuration(c.Rerank.Timeout, 10*time.Second)
}

// WatchDebounce parses Ingest.WatchDebounce, falling back to 500ms.
func (c *Config) WatchDebounce() time.Duration {
	return parseDuration(c.Ingest.WatchDebounce, 500*time.Millisecond)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
