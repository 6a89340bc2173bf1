package adapter

import (
	"context"
	"errors"
	"sync"

	"github.com/catface996/aiops-executor/internal/domain"
)

// Script is a fixed, ordered list of chunks a ScriptedAgent replays for a
// single Invoke call. A nil Err lets the stream end normally after the
// listed chunks; a non-nil Err is surfaced from Next after the chunks are
// exhausted, modelling an adapter that raises mid-stream (spec.md §4.4
// Failure semantics, scenario S4).
type Script struct {
	Chunks []Chunk
	Err    error
}

// ScriptedAgent is a deterministic Agent keyed by agent ref, used by tests
// to drive the executor through the S1-S6 scenarios without a real LLM
// backend. Mirrors the teacher's func-field mock style (MockLLMClient).
type ScriptedAgent struct {
	mu      sync.Mutex
	scripts map[string]Script
	calls   map[string]int
}

// NewScriptedAgent builds a registry-less scripted agent from a fixed map of
// agentRef -> Script.
func NewScriptedAgent(scripts map[string]Script) *ScriptedAgent {
	return &ScriptedAgent{scripts: scripts, calls: make(map[string]int)}
}

// Invoke implements Agent. It looks up the script by worker.AgentRef (or,
// for supervisors, by the ref passed via domain.Worker{AgentRef: ref}).
func (s *ScriptedAgent) Invoke(ctx context.Context, worker domain.Worker, input string) (Stream, error) {
	s.mu.Lock()
	script, ok := s.scripts[worker.AgentRef]
	s.calls[worker.AgentRef]++
	s.mu.Unlock()
	if !ok {
		return nil, errors.New("scripted adapter: no script for agent ref " + worker.AgentRef)
	}
	return &scriptedStream{ctx: ctx, script: script}, nil
}

// CallCount returns how many times Invoke was called for agentRef.
func (s *ScriptedAgent) CallCount(agentRef string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[agentRef]
}

type scriptedStream struct {
	ctx    context.Context
	script Script
	index  int
	err    error
}

func (s *scriptedStream) Next(ctx context.Context) (Chunk, bool, error) {
	if s.err != nil {
		return Chunk{}, false, nil
	}
	select {
	case <-ctx.Done():
		s.err = ctx.Err()
		return Chunk{}, false, nil
	default:
	}
	if s.index >= len(s.script.Chunks) {
		if s.script.Err != nil {
			err := s.script.Err
			s.script.Err = nil // surfaced exactly once
			return Chunk{}, false, err
		}
		return Chunk{}, false, nil
	}
	chunk := s.script.Chunks[s.index]
	s.index++
	return chunk, true, nil
}

// RegistryFunc adapts a function to Registry.
type RegistryFunc func(agentRef string) (Agent, error)

func (f RegistryFunc) Resolve(agentRef string) (Agent, error) { return f(agentRef) }

// SingleAgentRegistry resolves every ref to the same Agent — convenient when
// one ScriptedAgent owns every script in a test.
func SingleAgentRegistry(agent Agent) Registry {
	return RegistryFunc(func(string) (Agent, error) { return agent, nil })
}
