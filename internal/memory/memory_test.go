package memory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragweaver/ragweaver/internal/rag"
)

func longObservation(topic string) string {
	return fmt.Sprintf("The %s subsystem was refactored to use content-addressed keys so duplicate documents collapse deterministically across retriever runs.", topic)
}

func agentJSON(t *testing.T, entities []agentEntity) string {
	t.Helper()
	data, err := json.Marshal(agentPayload{Entities: entities})
	require.NoError(t, err)
	return string(data)
}

func newFakeClient(runner func(ctx context.Context, command string, args ...string) ([]byte, error)) *Client {
	c := NewClient(Config{Command: "mem-agent", Timeout: time.Second})
	c.runner = runner
	return c
}

// =============================================================================
// Acceptance path (a): well-formed JSON
// =============================================================================

func TestSearch_ParsesStructuredJSON(t *testing.T) {
	payload := agentJSON(t, []agentEntity{{
		Name:         "pipeline",
		EntityType:   "component",
		Observations: []string{longObservation("retrieval"), "too short"},
		CreatedAt:    "2026-08-20T10:00:00Z",
		UpdatedAt:    "2026-08-24T10:00:00Z",
	}})
	client := newFakeClient(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte("Searching memory...\n" + successMarker + " Found results\n" + payload + "\n"), nil
	})

	docs, err := client.Search(context.Background(), "retrieval pipeline", 10)

	require.NoError(t, err)
	require.Len(t, docs, 1, "observations at or under %d chars are dropped", minObservationChars)
	assert.Equal(t, rag.SourceMemory, docs[0].Source)
	assert.Equal(t, "pipeline", docs[0].Metadata["entity"])
	assert.Equal(t, "component", docs[0].Metadata["type"])
	assert.Equal(t, "2026-08-24T10:00:00Z", docs[0].Metadata["updatedAt"])
}

func TestSearch_StripsANSIBeforeParsing(t *testing.T) {
	payload := agentJSON(t, []agentEntity{{
		Name:         "cache",
		Observations: []string{longObservation("cache")},
	}})
	colored := "\x1b[32m" + successMarker + " ok\x1b[0m\n" + payload
	client := newFakeClient(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte(colored), nil
	})

	docs, err := client.Search(context.Background(), "cache", 10)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, "cache", docs[0].Metadata["entity"])
}

func TestSearch_RespectsLimit(t *testing.T) {
	payload := agentJSON(t, []agentEntity{{
		Name: "bulk",
		Observations: []string{
			longObservation("first"),
			longObservation("second"),
			longObservation("third"),
		},
	}})
	client := newFakeClient(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte(payload), nil
	})

	docs, err := client.Search(context.Background(), "bulk", 2)

	require.NoError(t, err)
	assert.Len(t, docs, 2)
}

// =============================================================================
// Acceptance path (b): truncated JSON → regex fallback
// =============================================================================

func TestSearch_TruncatedJSONFallsBackToRegex(t *testing.T) {
	obs := longObservation("fallback")
	truncated := fmt.Sprintf(`{"entities": [{"name": "x", "observations": ["%s", "cut off here`, obs)
	client := newFakeClient(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return []byte(truncated), nil
	})

	docs, err := client.Search(context.Background(), "anything", 10)

	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, obs, docs[0].Content)
	assert.Equal(t, rag.SourceMemory, docs[0].Source)
}

func TestParseAgentOutput_FallbackDeduplicatesObservations(t *testing.T) {
	obs := longObservation("duplicated")
	garbled := fmt.Sprintf(`junk "%s" more junk "%s" trailing`, obs, obs)

	docs := ParseAgentOutput([]byte(garbled))

	assert.Len(t, docs, 1)
}

// =============================================================================
// Acceptance paths (c) and (d): timeout and non-zero exit
// =============================================================================

func TestSearch_TimeoutIsAnError(t *testing.T) {
	client := newFakeClient(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	client.timeout = 10 * time.Millisecond

	docs, err := client.Search(context.Background(), "slow query", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory agent")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
	assert.Empty(t, docs)
}

func TestSearch_NonZeroExitIsAnError(t *testing.T) {
	client := newFakeClient(func(_ context.Context, _ string, _ ...string) ([]byte, error) {
		return nil, &exec.ExitError{}
	})

	docs, err := client.Search(context.Background(), "failing query", 10)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "memory agent")
	assert.Empty(t, docs)
}

func TestSearch_CallerCancellationPropagates(t *testing.T) {
	client := newFakeClient(func(ctx context.Context, _ string, _ ...string) ([]byte, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Search(ctx, "cancelled", 10)

	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSearch_DisabledClientReturnsNothing(t *testing.T) {
	client := NewClient(Config{}) // no command configured

	docs, err := client.Search(context.Background(), "anything", 10)

	require.NoError(t, err)
	assert.Empty(t, docs)
	assert.False(t, client.Enabled())
}

// =============================================================================
// JSON location
// =============================================================================

func TestLocateJSON_FindsPayloadAfterMarker(t *testing.T) {
	payload, ok := locateJSON("log line\n" + successMarker + ` done {"entities": []} trailing`)

	require.True(t, ok)
	assert.Equal(t, `{"entities": []}`, payload)
}

func TestLocateJSON_HandlesNestedBracesAndStrings(t *testing.T) {
	in := `{"entities": [{"name": "a{b}", "observations": ["x \" y"]}]} extra`

	payload, ok := locateJSON(in)

	require.True(t, ok)
	assert.True(t, strings.HasSuffix(payload, "]}"))
	assert.True(t, json.Valid([]byte(payload)))
}

func TestLocateJSON_UnbalancedReturnsFalse(t *testing.T) {
	_, ok := locateJSON(`{"entities": [{"name": "cut`)

	assert.False(t, ok)
}
