// Package parser defines the contract every intent-parsing tier implements.
//
// A tier takes one utterance and produces one RawCandidate. Wattson ships
// three tiers: heuristic (deterministic patterns), grammar (external
// fixed-vocabulary NLU service) and generative (external local LLM). The
// hybrid router owns when each tier is consulted and how its output is
// judged — tiers never call each other.
package parser

import (
	"context"

	"github.com/voltaic-labs/wattson/internal/intent"
)

// Parser is the single-capability interface for an intent-parsing tier.
type Parser interface {
	// Name returns the tier identifier (e.g. "grammar", "generative").
	Name() string

	// Parse extracts an intent/entity candidate from the utterance.
	// A non-nil error means the tier failed outright and the caller
	// should escalate; it never carries a usable candidate.
	Parse(ctx context.Context, utterance string) (*intent.RawCandidate, error)

	// Close releases any resources held by the tier.
	Close() error
}
