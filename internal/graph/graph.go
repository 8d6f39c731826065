// Package graph serves scored lookups over a small static graph of named
// entities. The graph is hand-maintained project knowledge — components,
// services, datasets — loaded once from JSON; entity cards give the answer
// model relationship context no other retriever carries.
package graph

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ragweaver/ragweaver/internal/rag"
)

// Scoring weights per query token.
const (
	nameScore        = 2.0
	descriptionScore = 1.0
	tagScore         = 1.5

	// scoreScale maps accumulated hit scores into [0,1].
	scoreScale = 0.25

	// minTokenLen filters tokens too short to discriminate entities.
	minTokenLen = 3
)

// GraphFileName is the entity graph location relative to the project's
// .ragweaver directory.
const GraphFileName = "entities.json"

// Entity is one node of the graph.
type Entity struct {
	Name        string   `json:"name"`
	Type        string   `json:"type"`
	Description string   `json:"description"`
	Documents   []string `json:"documents,omitempty"`
	DependsOn   []string `json:"depends_on,omitempty"`
	Feeds       []string `json:"feeds,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type graphFile struct {
	Entities []Entity `json:"entities"`
}

// Graph answers entity lookups.
type Graph struct {
	entities []Entity
	loaded   bool
}

// Path returns where the entity graph lives for a project root.
func Path(root string) string {
	return filepath.Join(root, ".ragweaver", GraphFileName)
}

// Load reads the entity graph. Missing or unreadable files yield an empty,
// unavailable graph — entity retrieval is optional.
func Load(root string) *Graph {
	g := &Graph{}
	data, err := os.ReadFile(Path(root))
	if err != nil {
		return g
	}
	var parsed graphFile
	if err := json.Unmarshal(data, &parsed); err != nil {
		return g
	}
	g.entities = parsed.Entities
	g.loaded = true
	return g
}

// Available reports whether a graph was loaded.
func (g *Graph) Available() bool {
	return g != nil && g.loaded
}

// Size reports the number of entities.
func (g *Graph) Size() int {
	if g == nil {
		return 0
	}
	return len(g.entities)
}

// Search scores entities against the query tokens and returns the top limit
// as serialized cards tagged source=entity_graph.
func (g *Graph) Search(query string, limit int) []rag.Document {
	if !g.Available() || limit <= 0 {
		return nil
	}
	tokens := tokenize(query)
	if len(tokens) == 0 {
		return nil
	}

	type scored struct {
		ent   Entity
		score float64
	}
	var hits []scored
	for _, ent := range g.entities {
		score := scoreEntity(ent, tokens)
		if score > 0 {
			hits = append(hits, scored{ent: ent, score: score})
		}
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].score > hits[j].score })
	if len(hits) > limit {
		hits = hits[:limit]
	}

	docs := make([]rag.Document, 0, len(hits))
	for _, h := range hits {
		doc := rag.NewDocument(h.ent.Card(), rag.SourceEntityGraph)
		doc.Score = clampUnit(scoreScale * h.score)
		doc.Metadata = map[string]string{
			"entity": h.ent.Name,
			"type":   h.ent.Type,
		}
		docs = append(docs, doc)
	}
	return docs
}

func scoreEntity(ent Entity, tokens []string) float64 {
	name := strings.ToLower(ent.Name)
	desc := strings.ToLower(ent.Description)
	tags := make([]string, len(ent.Tags))
	for i, tag := range ent.Tags {
		tags[i] = strings.ToLower(tag)
	}

	var score float64
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			score += nameScore
		}
		if strings.Contains(desc, tok) {
			score += descriptionScore
		}
		for _, tag := range tags {
			if strings.Contains(tag, tok) {
				score += tagScore
				break
			}
		}
	}
	return score
}

// Card renders the entity as the text block handed to ranking and
// compression.
func (e Entity) Card() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Entity: %s\n", e.Name)
	fmt.Fprintf(&b, "Type: %s\n", e.Type)
	fmt.Fprintf(&b, "Description: %s\n", e.Description)
	if len(e.DependsOn) > 0 {
		fmt.Fprintf(&b, "Depends on: %s\n", strings.Join(e.DependsOn, ", "))
	}
	if len(e.Feeds) > 0 {
		fmt.Fprintf(&b, "Feeds: %s\n", strings.Join(e.Feeds, ", "))
	}
	if len(e.Tags) > 0 {
		fmt.Fprintf(&b, "Tags: %s\n", strings.Join(e.Tags, ", "))
	}
	if len(e.Documents) > 0 {
		fmt.Fprintf(&b, "Docs: %s\n", strings.Join(e.Documents, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func tokenize(query string) []string {
	seen := make(map[string]struct{})
	var tokens []string
	for _, tok := range strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !(r >= 'a' && r <= 'z') && !(r >= '0' && r <= '9') && r != '_'
	}) {
		if len(tok) < minTokenLen {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		tokens = append(tokens, tok)
	}
	return tokens
}

func clampUnit(v float64) float64 {
	if v > 1 {
		return 1
	}
	if v < 0 {
		return 0
	}
	return v
}
