// Package adapter defines the Agent Invocation Adapter boundary (spec.md
// §6): given an agent definition and input text, produce a lazy, finite,
// non-restartable sequence of chunks. The executor only ever depends on
// this interface — never on a concrete LLM client — so tests can substitute
// a deterministic scripted adapter (see scripted.go).
package adapter

import (
	"context"

	"github.com/catface996/aiops-executor/internal/domain"
)

// ChunkKind discriminates the five chunk variants from spec.md §6.
type ChunkKind string

const (
	ChunkText       ChunkKind = "text"
	ChunkReasoning  ChunkKind = "reasoning"
	ChunkToolCall   ChunkKind = "tool_call"
	ChunkToolResult ChunkKind = "tool_result"
	ChunkFinal      ChunkKind = "final"
)

// Chunk is one element of an adapter's output stream.
type Chunk struct {
	Kind ChunkKind

	// ChunkText / ChunkReasoning / ChunkFinal
	TextDelta string

	// ChunkToolCall
	ToolName string
	CallID   string
	Args     map[string]any

	// ChunkToolResult
	Result map[string]any
}

// DispatchTeamTool is the reserved built-in tool name a global supervisor
// calls to hand a sub-instruction to a team (spec.md §4.4 step 3).
const DispatchTeamTool = "dispatch_team"

// DispatchWorkerTool is the reserved built-in tool name a team supervisor
// calls to hand a sub-instruction to a worker (spec.md §4.4 step 4).
const DispatchWorkerTool = "dispatch_worker"

// Stream is a lazy, finite, non-restartable sequence of chunks. Next blocks
// until the next chunk is ready, ctx is cancelled, or the stream ends. A
// false ok with a nil error means the stream ended normally (possibly
// without a final chunk, if cancellation cut it short per spec.md §6).
type Stream interface {
	Next(ctx context.Context) (chunk Chunk, ok bool, err error)
}

// Agent is the capability the executor invokes for every hierarchy node.
// input is the task (global supervisor) or the sub-instruction forwarded by
// a dispatch_team/dispatch_worker tool call (team supervisor / worker).
type Agent interface {
	Invoke(ctx context.Context, worker domain.Worker, input string) (Stream, error)
}

// Registry resolves an agent reference (domain.Worker.AgentRef, or the
// special supervisor refs below) to an invocable Agent.
type Registry interface {
	Resolve(agentRef string) (Agent, error)
}

// GlobalSupervisorRefPrefix and TeamSupervisorRefPrefix prefix the synthetic
// agent refs (followed by the hierarchy or team id) the executor uses to
// resolve the two supervisor tiers, which are not workers and so do not
// appear in domain.Worker.
const (
	GlobalSupervisorRefPrefix = "global-supervisor:"
	TeamSupervisorRefPrefix   = "team-supervisor:"
)
