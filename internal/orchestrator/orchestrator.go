// Package orchestrator turns a model reference and a prompt into a
// generation: it resolves the reference through the registry (acquiring
// catalog ids on demand), settles the token budget and sampling defaults,
// delegates to the engine handle, and measures the call.
package orchestrator

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"llmd/internal/engine"
	"llmd/internal/memory"
	"llmd/internal/registry"
	"llmd/internal/resolver"
	"llmd/pkg/types"
)

const (
	// defaultSystemPrompt is substituted when a request carries none.
	defaultSystemPrompt = "You are a helpful assistant."
	// defaultTemperature applies to free-text queries.
	defaultTemperature = 0.7
	// approxCharsPerToken backs the documented approximation
	// approxTokens = len(response)/4; this is not a tokenizer count.
	approxCharsPerToken = 4
)

// Orchestrator coordinates registry, admission controller and engine for
// query execution.
type Orchestrator struct {
	reg         *registry.Registry
	adm         *memory.Controller
	log         zerolog.Logger
	defaultTemp float64
}

// New constructs an Orchestrator. temp overrides the free-text temperature
// default when positive.
func New(reg *registry.Registry, adm *memory.Controller, temp float64, log zerolog.Logger) *Orchestrator {
	if temp <= 0 {
		temp = defaultTemperature
	}
	return &Orchestrator{reg: reg, adm: adm, log: log, defaultTemp: temp}
}

// Respond executes a single-turn query against the model referenced by
// req.Model.
func (o *Orchestrator) Respond(ctx context.Context, req types.QueryRequest) (types.QueryResult, error) {
	return o.generate(ctx, req, nil)
}

// generate is the shared orchestration path for single-turn and session
// queries. history precedes the request prompt.
func (o *Orchestrator) generate(ctx context.Context, req types.QueryRequest, history []engine.Turn) (types.QueryResult, error) {
	ref, err := resolver.Classify(req.Model)
	if err != nil {
		return types.QueryResult{}, err
	}
	// Auto-acquire catalog ids that were never pulled.
	if ref.Kind == resolver.KindCatalogID && !o.reg.IsAvailable(ref.ID) {
		o.log.Info().Str("model", ref.ID).Msg("model not cached, acquiring")
		if err := o.reg.EnsureAvailable(ctx, ref.ID, false, nil); err != nil {
			return types.QueryResult{}, err
		}
	}

	info, err := o.reg.ModelInfo(req.Model)
	if err != nil {
		return types.QueryResult{}, err
	}
	handle, err := o.reg.Load(ctx, req.Model)
	if err != nil {
		return types.QueryResult{}, err
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = o.adm.RecommendedTokenBudget(uint64(info.SizeBytes))
	}
	system := req.System
	if system == "" {
		system = defaultSystemPrompt
	}
	temperature := req.Temperature
	if temperature <= 0 {
		temperature = o.defaultTemp
	}

	start := time.Now()
	text, err := handle.Generate(ctx, engine.Request{
		System:      system,
		History:     history,
		Prompt:      req.Prompt,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	dur := time.Since(start)
	if err != nil {
		if ctx.Err() != nil {
			return types.QueryResult{}, ctx.Err()
		}
		if engine.IsUnavailable(err) {
			return types.QueryResult{}, err
		}
		return types.QueryResult{}, queryFailedError{cause: err}
	}

	o.log.Info().
		Str("model", req.Model).
		Dur("dur", dur).
		Int("approx_tokens", len(text)/approxCharsPerToken).
		Msg("query complete")

	return types.QueryResult{
		Response:        text,
		ModelID:         info.ID,
		ModelPath:       info.Path,
		ApproxTokens:    len(text) / approxCharsPerToken,
		DurationSeconds: dur.Seconds(),
	}, nil
}
