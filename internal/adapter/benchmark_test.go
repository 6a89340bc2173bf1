package adapter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/catface996/aiops-executor/internal/domain"
)

func TestDelayAwareAgent_ReplaysScriptWithDelay(t *testing.T) {
	script := Script{Chunks: []Chunk{
		{Kind: ChunkText, TextDelta: "a"},
		{Kind: ChunkFinal, TextDelta: "a"},
	}}
	agent := NewDelayAwareAgent(script, time.Millisecond)

	stream, err := agent.Invoke(context.Background(), domain.Worker{AgentRef: "w"}, "input")
	require.NoError(t, err)

	chunk, ok, err := stream.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChunkText, chunk.Kind)

	chunk, ok, err = stream.Next(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, ChunkFinal, chunk.Kind)

	_, ok, err = stream.Next(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDelayAwareAgent_CancellationDuringDelayEndsStreamPromptly(t *testing.T) {
	script := Script{Chunks: []Chunk{
		{Kind: ChunkText, TextDelta: "a"},
		{Kind: ChunkFinal, TextDelta: "a"},
	}}
	agent := NewDelayAwareAgent(script, time.Hour)

	stream, err := agent.Invoke(context.Background(), domain.Worker{AgentRef: "w"}, "input")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	_, ok, err := stream.Next(ctx)
	assert.False(t, ok)
	assert.NoError(t, err)
	assert.Less(t, time.Since(start), time.Second, "cancellation must end the stream promptly, not after the delay elapses")
}
