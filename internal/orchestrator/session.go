package orchestrator

import (
	"context"
	"sync"

	"llmd/internal/engine"
	"llmd/pkg/types"
)

// Session retains an ordered turn history for multi-turn exchanges. The
// system prompt is fixed at session creation; Reset clears history back to
// just that prompt.
type Session struct {
	orch   *Orchestrator
	model  string
	system string

	mu      sync.Mutex
	history []engine.Turn
}

// NewSession creates a session against the given model reference. An empty
// system prompt falls back to the generic assistant persona.
func (o *Orchestrator) NewSession(model, system string) *Session {
	if system == "" {
		system = defaultSystemPrompt
	}
	return &Session{orch: o, model: model, system: system}
}

// Send appends the user turn, runs the shared orchestration path with the
// accumulated history as context, appends the assistant turn, and returns
// the response text. History only advances on success.
func (s *Session) Send(ctx context.Context, prompt string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	history := make([]engine.Turn, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	res, err := s.orch.generate(ctx, types.QueryRequest{
		Model:  s.model,
		Prompt: prompt,
		System: s.system,
	}, history)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	s.history = append(s.history,
		engine.Turn{Role: "user", Content: prompt},
		engine.Turn{Role: "assistant", Content: res.Response},
	)
	s.mu.Unlock()
	return res.Response, nil
}

// SendStructured is Send with the structured-output coercion applied: the
// decoded value lands in out and the raw assistant turn is recorded in
// history.
func (s *Session) SendStructured(ctx context.Context, prompt string, out any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	history := make([]engine.Turn, len(s.history))
	copy(history, s.history)
	s.mu.Unlock()

	res, err := s.orch.generate(ctx, types.QueryRequest{
		Model:       s.model,
		Prompt:      prompt,
		System:      s.system + " " + structuredInstruction,
		Temperature: structuredTemperature,
	}, history)
	if err != nil {
		return err
	}
	if err := DecodeResponse(res.Response, out); err != nil {
		return err
	}

	s.mu.Lock()
	s.history = append(s.history,
		engine.Turn{Role: "user", Content: prompt},
		engine.Turn{Role: "assistant", Content: res.Response},
	)
	s.mu.Unlock()
	return nil
}

// Reset clears the turn history. The system prompt is retained.
func (s *Session) Reset() {
	s.mu.Lock()
	s.history = nil
	s.mu.Unlock()
}

// History returns a copy of the accumulated turns.
func (s *Session) History() []engine.Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]engine.Turn, len(s.history))
	copy(out, s.history)
	return out
}
