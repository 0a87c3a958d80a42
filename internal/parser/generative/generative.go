// Package generative adapts a local small-footprint language model as
// tier 3, the parser of last resort.
//
// It speaks both OpenAI-compatible chat completions and Ollama's
// /api/generate. The model's reply must be a JSON object satisfying the
// candidate schema; anything else — transport errors, timeouts,
// malformed output — degrades to intent=unknown, confidence=0. The
// adapter never returns an error from Parse: tier 3 always produces a
// candidate for validation.
package generative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"

	"github.com/voltaic-labs/wattson/internal/intent"
	"github.com/voltaic-labs/wattson/internal/parser"
)

// candidateSchema gates the model output. The intent enum mirrors the
// closed IntentType set plus "unknown"; extra properties are rejected so
// hallucinated fields never reach the validator.
const candidateSchema = `{
  "type": "object",
  "properties": {
    "intent": {
      "type": "string",
      "enum": ["energy_query", "power_query", "machine_status", "factory_overview",
               "comparison", "ranking", "cost_analysis", "forecast",
               "anomaly_detection", "baseline", "unknown"]
    },
    "confidence": {"type": "number", "minimum": 0, "maximum": 1},
    "machine": {"type": "string"},
    "machines": {"type": "array", "items": {"type": "string"}},
    "metric": {"type": "string"},
    "time_range": {"type": "string"}
  },
  "required": ["intent", "confidence"],
  "additionalProperties": false
}`

const systemPrompt = `You are an intent parser for a factory energy assistant.
Classify the user's utterance and extract entities.

Return ONLY a JSON object:
{"intent": "<energy_query|power_query|machine_status|factory_overview|comparison|ranking|cost_analysis|forecast|anomaly_detection|baseline|unknown>",
 "confidence": <0..1>,
 "machine": "<machine name if exactly one is mentioned>",
 "machines": ["<names if several are mentioned>"],
 "metric": "<power|energy|cost|efficiency|production|alerts>",
 "time_range": "<the time expression verbatim, e.g. 'last week'>"}

Omit entity fields you cannot fill. Do not invent machine names.`

// Config holds the local LLM settings.
type Config struct {
	Endpoint string
	Model    string
	Timeout  time.Duration
}

// Parser is the tier-3 generative adapter.
type Parser struct {
	endpoint string
	model    string
	client   *http.Client
	schema   *gojsonschema.Schema
}

var _ parser.Parser = (*Parser)(nil)

// New creates a generative parser from config.
func New(cfg Config) (*Parser, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "llama3"
	}
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(candidateSchema))
	if err != nil {
		return nil, fmt.Errorf("compiling candidate schema: %w", err)
	}
	return &Parser{
		endpoint: cfg.Endpoint,
		model:    model,
		client:   &http.Client{Timeout: timeout},
		schema:   schema,
	}, nil
}

// Name returns the tier identifier.
func (p *Parser) Name() string { return string(intent.TierGenerative) }

// Parse runs the model and returns a candidate. Per the tier-3 contract
// the error is always nil except for context cancellation; every
// internal failure degrades to an unknown/zero-confidence candidate.
func (p *Parser) Parse(ctx context.Context, utterance string) (*intent.RawCandidate, error) {
	start := time.Now()

	content, err := p.complete(ctx, utterance)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		slog.Warn("generative parse degraded", "error", err)
		return degraded(start), nil
	}

	cand, err := p.decode(content)
	if err != nil {
		slog.Warn("generative output rejected", "error", err)
		return degraded(start), nil
	}
	cand.Tier = intent.TierGenerative
	cand.RoutingLatency = time.Since(start)

	slog.Debug("generative parse complete",
		"intent", cand.Intent, "confidence", cand.Confidence, "latency", cand.RoutingLatency)
	return cand, nil
}

// Close is a no-op for the generative adapter.
func (p *Parser) Close() error { return nil }

func degraded(start time.Time) *intent.RawCandidate {
	return &intent.RawCandidate{
		Intent:         intent.TypeUnknown,
		Confidence:     0,
		Tier:           intent.TierGenerative,
		RoutingLatency: time.Since(start),
	}
}

// complete calls the model endpoint and extracts the text content.
func (p *Parser) complete(ctx context.Context, utterance string) (string, error) {
	var reqBody map[string]any
	if strings.HasSuffix(p.endpoint, "/api/generate") {
		// Ollama generate format.
		reqBody = map[string]any{
			"model":  p.model,
			"system": systemPrompt,
			"prompt": utterance,
			"stream": false,
			"format": "json",
		}
	} else {
		// OpenAI-compatible chat completions (Ollama, vLLM, llama.cpp).
		reqBody = map[string]any{
			"model": p.model,
			"messages": []map[string]string{
				{"role": "system", "content": systemPrompt},
				{"role": "user", "content": utterance},
			},
			"temperature": 0.1,
			"stream":      false,
		}
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("model request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return "", fmt.Errorf("model failed (status %d): %s", resp.StatusCode, respBody)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading model response: %w", err)
	}

	content := extractContent(data)
	if content == "" {
		return "", fmt.Errorf("empty model response")
	}
	return content, nil
}

// extractContent pulls the message text out of either response shape.
func extractContent(data []byte) string {
	var chatResp struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(data, &chatResp); err == nil && len(chatResp.Choices) > 0 {
		return chatResp.Choices[0].Message.Content
	}

	var ollamaResp struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(data, &ollamaResp); err == nil && ollamaResp.Response != "" {
		return ollamaResp.Response
	}
	return ""
}

// decode validates the model output against the candidate schema and
// maps it onto a RawCandidate.
func (p *Parser) decode(content string) (*intent.RawCandidate, error) {
	content = stripFences(content)

	result, err := p.schema.Validate(gojsonschema.NewStringLoader(content))
	if err != nil {
		return nil, fmt.Errorf("model output is not JSON: %w", err)
	}
	if !result.Valid() {
		msgs := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return nil, fmt.Errorf("model output violates schema: %s", strings.Join(msgs, "; "))
	}

	var out struct {
		Intent     string   `json:"intent"`
		Confidence float64  `json:"confidence"`
		Machine    string   `json:"machine"`
		Machines   []string `json:"machines"`
		Metric     string   `json:"metric"`
		TimeRange  string   `json:"time_range"`
	}
	if err := json.Unmarshal([]byte(content), &out); err != nil {
		return nil, fmt.Errorf("decoding model output: %w", err)
	}

	return &intent.RawCandidate{
		Intent:        intent.Type(out.Intent),
		Confidence:    out.Confidence,
		Machine:       out.Machine,
		Machines:      out.Machines,
		Metric:        out.Metric,
		TimeRangeText: out.TimeRange,
	}, nil
}

// stripFences removes markdown code fences some models wrap JSON in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	}
	return strings.TrimSpace(s)
}
