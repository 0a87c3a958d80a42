// Package pipeline composes the hybrid router and the validator into the
// single entry point collaborators call: one utterance in, one validated
// Intent or a diagnosed rejection out.
//
// It also carries the one piece of cross-turn context this core accepts:
// the previous turn's validated Intent, used to resolve anaphoric machine
// references ("it", "that machine", "the other machine"). If resolution
// fails the prior intent is passed through untouched — no guessing.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/voltaic-labs/wattson/internal/intent"
	"github.com/voltaic-labs/wattson/internal/validate"
)

// Router is the parse side of the pipeline (the hybrid orchestrator).
type Router interface {
	Parse(ctx context.Context, utterance string) (*intent.RawCandidate, error)
}

// Pipeline wires parse and validate together.
type Pipeline struct {
	router    Router
	validator *validate.Validator
}

// New creates a Pipeline.
func New(router Router, validator *validate.Validator) *Pipeline {
	return &Pipeline{router: router, validator: validator}
}

// Process runs one utterance through parse and validation. prior is the
// previous turn's validated Intent, or nil on a fresh conversation.
func (p *Pipeline) Process(ctx context.Context, utterance string, prior *intent.Intent) (intent.ValidationResult, error) {
	start := time.Now()
	logger := slog.With("request_id", uuid.NewString())

	cand, err := p.router.Parse(ctx, utterance)
	if err != nil {
		return intent.ValidationResult{}, fmt.Errorf("parsing utterance: %w", err)
	}

	resolveAnaphora(utterance, cand, prior)

	res := p.validator.Validate(cand)
	logger.Info("utterance processed",
		"tier", cand.Tier,
		"intent", cand.Intent,
		"valid", res.Valid,
		"duration", time.Since(start))
	return res, nil
}

// anaphorSelf references the previously discussed machine; anaphorOther
// references its counterpart in a previous comparison.
var (
	anaphorSelf  = []string{"that machine", "the same machine", "that one", " it "}
	anaphorOther = []string{"the other machine", "the other one"}
)

// resolveAnaphora fills the candidate's machine entity from the prior
// intent when the utterance refers back to it and the current tiers
// extracted nothing. On any failure the candidate is left unchanged.
func resolveAnaphora(utterance string, cand *intent.RawCandidate, prior *intent.Intent) {
	if prior == nil || cand.Machine != "" || len(cand.Machines) > 0 {
		return
	}
	text := " " + strings.ToLower(utterance) + " "

	for _, a := range anaphorOther {
		if strings.Contains(text, a) {
			if other := otherMachine(prior); other != "" {
				cand.Machine = other
			}
			return
		}
	}
	for _, a := range anaphorSelf {
		if strings.Contains(text, a) && prior.Machine != "" {
			cand.Machine = prior.Machine
			return
		}
	}
}

// otherMachine picks the prior comparison's counterpart: the first
// machine in the prior list that is not the prior's primary machine.
func otherMachine(prior *intent.Intent) string {
	for _, m := range prior.Machines {
		if m != prior.Machine {
			return m
		}
	}
	return ""
}
