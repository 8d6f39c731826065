package plan

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ragweaver/ragweaver/internal/rag"
)

func query(text string, intent rag.Intent) rag.Query {
	return rag.Query{Text: text, Analysis: rag.Analysis{Intent: intent}}
}

func TestPlanBaseDefaults(t *testing.T) {
	s := Plan(query("tell me about the project", rag.IntentGeneral), Limits{})

	assert.Equal(t, rag.ModeHybrid, s.Mode)
	assert.True(t, s.UseVector)
	assert.True(t, s.UseMemory)
	assert.True(t, s.UseKeywords)
	assert.False(t, s.UseCode)
	assert.True(t, s.UseGraph)
	assert.False(t, s.UseRecent)
	assert.False(t, s.UsePlanning)
	assert.Equal(t, 20, s.TopK)
	assert.Equal(t, 10, s.VectorNResults)
	assert.Equal(t, 20, s.MemoryLimit)
	assert.Equal(t, 3, s.MemoryConcepts)
	assert.Equal(t, 8, s.KeywordLimit)
	assert.Equal(t, 5, s.GraphLimit)
	assert.Equal(t, 8, s.CodeLimit)
	assert.Equal(t, 3, s.HalfLifeDays)
}

func TestPlanIntentAdjustments(t *testing.T) {
	tests := []struct {
		intent rag.Intent
		check  func(t *testing.T, s rag.Strategy)
	}{
		{rag.IntentCode, func(t *testing.T, s rag.Strategy) {
			assert.Equal(t, 12, s.TopK)
			assert.Equal(t, 15, s.VectorNResults)
			assert.Equal(t, 10, s.CodeLimit)
			assert.True(t, s.UseCode)
			assert.False(t, s.UseGraph)
		}},
		{rag.IntentStatus, func(t *testing.T, s rag.Strategy) {
			assert.Equal(t, 8, s.TopK)
			assert.Equal(t, 10, s.MemoryLimit)
			assert.True(t, s.UseGraph)
			assert.False(t, s.UseCode)
		}},
		{rag.IntentConfig, func(t *testing.T, s rag.Strategy) {
			assert.Equal(t, 10, s.TopK)
			assert.Equal(t, 8, s.VectorNResults)
			assert.False(t, s.UseGraph)
		}},
		{rag.IntentExplain, func(t *testing.T, s rag.Strategy) {
			assert.Equal(t, 30, s.TopK)
			assert.Equal(t, 30, s.MemoryLimit)
			assert.Equal(t, 15, s.VectorNResults)
			assert.True(t, s.UseGraph)
		}},
	}
	for _, tt := range tests {
		t.Run(string(tt.intent), func(t *testing.T) {
			tt.check(t, Plan(query("a question with no markers", tt.intent), Limits{}))
		})
	}
}

func TestPlanObjectiveMarkersNarrow(t *testing.T) {
	s := Plan(query("which file holds the chunking logic", rag.IntentExplain), Limits{})

	// Explain would set 30, but a pointed question caps at 10.
	assert.Equal(t, 10, s.TopK)
	assert.False(t, s.UseGraph)
}

func TestPlanObjectiveCapDoesNotRaise(t *testing.T) {
	s := Plan(query("which flag enables tracing", rag.IntentStatus), Limits{})

	// Status already plans 8; the cap never raises it.
	assert.Equal(t, 8, s.TopK)
}

func TestPlanLongQueryExpands(t *testing.T) {
	long := strings.Repeat("does the ingest stage respect the exclusion globs ", 3) // > 120 chars
	s := Plan(query(long, rag.IntentGeneral), Limits{})

	assert.Equal(t, 30, s.TopK)
	assert.Equal(t, 30, s.MemoryLimit)
}

func TestPlanGenericDefinitionalSkipsRetrieval(t *testing.T) {
	tests := []struct {
		text string
		want rag.Mode
	}{
		{"what is kubernetes", rag.ModeNone},
		{"define idempotency", rag.ModeNone},
		{"what's a bloom filter", rag.ModeNone},
		// Project tokens force retrieval.
		{"what is chunker.go", rag.ModeHybrid},
		{"what is internal/ingest", rag.ModeHybrid},
		{"what is half_life_days", rag.ModeHybrid},
		{"what is getUserById", rag.ModeHybrid},
		// Too long to be generic.
		{"what is the retry branch doing right now", rag.ModeHybrid},
		// Not a definitional prefix.
		{"how is kubernetes used here", rag.ModeHybrid},
	}
	for _, tt := range tests {
		s := Plan(query(tt.text, rag.IntentGeneral), Limits{})
		assert.Equal(t, tt.want, s.Mode, "text=%q", tt.text)
	}
}

func TestPlanPlanningTrigger(t *testing.T) {
	byMarker := Plan(query("describe the ingest flow", rag.IntentExplain), Limits{})
	assert.True(t, byMarker.UsePlanning)

	long := strings.Repeat("why does the second retry of the embedding batch sometimes stall ", 3) // > 160 chars
	byLength := Plan(query(long, rag.IntentGeneral), Limits{})
	assert.True(t, byLength.UsePlanning)

	short := Plan(query("cache ttl for status intent", rag.IntentConfig), Limits{})
	assert.False(t, short.UsePlanning)
}

func TestPlanTemporalEnablesRecent(t *testing.T) {
	q := rag.Query{
		Text: "what changed in ranking",
		Analysis: rag.Analysis{
			Intent:   rag.IntentGeneral,
			Temporal: rag.Temporal{Present: true, DaysBack: 3},
		},
	}

	assert.True(t, Plan(q, Limits{}).UseRecent)
}

func TestPlanLimitsOverrideRules(t *testing.T) {
	s := Plan(query("explain the ranking pipeline", rag.IntentExplain), Limits{
		TopK:         5,
		KeywordLimit: 2,
		GraphLimit:   1,
		CodeLimit:    4,
		HalfLifeDays: 14,
	})

	assert.Equal(t, 5, s.TopK)
	assert.Equal(t, 2, s.KeywordLimit)
	assert.Equal(t, 1, s.GraphLimit)
	assert.Equal(t, 4, s.CodeLimit)
	assert.Equal(t, 14, s.HalfLifeDays)
}

func TestPlanUnknownIntentTreatedAsGeneral(t *testing.T) {
	s := Plan(query("anything", rag.Intent("weird")), Limits{})

	assert.Equal(t, 20, s.TopK)
	assert.True(t, s.UseGraph)
	assert.False(t, s.UseCode)
}
