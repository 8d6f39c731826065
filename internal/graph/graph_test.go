package graph

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/rag"
)

func writeGraph(t *testing.T, body string) string {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, ".ragweaver")
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, GraphFileName), []byte(body), 0o644))
	return root
}

const sampleGraph = `{
  "entities": [
    {
      "name": "ingest-pipeline",
      "type": "service",
      "description": "Walks the project tree and indexes chunks",
      "documents": ["docs/ingest.md"],
      "depends_on": ["chunker", "vector-index"],
      "feeds": ["query-engine"],
      "tags": ["indexing", "startup"]
    },
    {
      "name": "query-engine",
      "type": "service",
      "description": "Answers questions over the indexed corpus",
      "feeds": ["cli"],
      "tags": ["retrieval"]
    },
    {
      "name": "metrics-sink",
      "type": "storage",
      "description": "Aggregated run counters on disk",
      "tags": ["observability"]
    }
  ]
}`

func TestLoadMissingFile(t *testing.T) {
	g := Load(t.TempDir())

	assert.False(t, g.Available())
	assert.Zero(t, g.Size())
	assert.Nil(t, g.Search("ingest", 5))
}

func TestLoadCorruptFile(t *testing.T) {
	root := writeGraph(t, "{not json")

	g := Load(root)

	assert.False(t, g.Available())
	assert.Zero(t, g.Size())
}

func TestSearchRanksNameMatchesFirst(t *testing.T) {
	g := Load(writeGraph(t, sampleGraph))
	require.True(t, g.Available())
	require.Equal(t, 3, g.Size())

	// "ingest" hits ingest-pipeline on name (+2) and nothing else.
	docs := g.Search("how does ingest work", 5)

	require.NotEmpty(t, docs)
	assert.Equal(t, "ingest-pipeline", docs[0].Metadata["entity"])
	assert.Equal(t, rag.SourceEntityGraph, docs[0].Source)
	assert.InDelta(t, 0.5, docs[0].Score, 1e-9)
}

func TestSearchScoresTags(t *testing.T) {
	g := Load(writeGraph(t, sampleGraph))

	docs := g.Search("observability counters", 5)

	require.Len(t, docs, 1)
	// tag "observability" (+1.5) plus description "counters" (+1).
	assert.Equal(t, "metrics-sink", docs[0].Metadata["entity"])
	assert.InDelta(t, 0.625, docs[0].Score, 1e-9)
}

func TestSearchCardFormat(t *testing.T) {
	g := Load(writeGraph(t, sampleGraph))

	docs := g.Search("ingest", 1)

	require.Len(t, docs, 1)
	content := docs[0].Content
	assert.True(t, strings.HasPrefix(content, "Entity: ingest-pipeline\n"))
	assert.Contains(t, content, "Type: service\n")
	assert.Contains(t, content, "Description: Walks the project tree and indexes chunks\n")
	assert.Contains(t, content, "Depends on: chunker, vector-index\n")
	assert.Contains(t, content, "Feeds: query-engine\n")
	assert.Contains(t, content, "Docs: docs/ingest.md")
	assert.False(t, strings.HasSuffix(content, "\n"))
}

func TestSearchCardOmitsEmptySections(t *testing.T) {
	g := Load(writeGraph(t, sampleGraph))

	docs := g.Search("metrics", 1)

	require.Len(t, docs, 1)
	assert.NotContains(t, docs[0].Content, "Depends on:")
	assert.NotContains(t, docs[0].Content, "Docs:")
}

func TestSearchHonorsLimit(t *testing.T) {
	g := Load(writeGraph(t, sampleGraph))

	// "service" appears in no field, but "engine" and "pipeline" hit names.
	docs := g.Search("engine pipeline metrics", 2)

	assert.Len(t, docs, 2)
}

func TestSearchIgnoresShortTokens(t *testing.T) {
	g := Load(writeGraph(t, sampleGraph))

	assert.Nil(t, g.Search("a of at", 5))
}

func TestSearchScoreCapped(t *testing.T) {
	g := Load(writeGraph(t, `{"entities":[{
		"name": "alpha beta gamma delta epsilon",
		"type": "service",
		"description": "alpha beta gamma delta epsilon",
		"tags": ["alpha","beta","gamma","delta","epsilon"]
	}]}`))

	docs := g.Search("alpha beta gamma delta epsilon", 1)

	require.Len(t, docs, 1)
	// 5 tokens x (2 + 1 + 1.5) = 22.5 raw, clamped after scaling.
	assert.Equal(t, 1.0, docs[0].Score)
}
