// Package grammar adapts an external fixed-vocabulary grammar/slot NLU
// service as tier 2 of the intent pipeline.
//
// The service (a Rhasspy-style engine) is a black box behind one HTTP
// call: POST {"text": …} returning an intent name, a confidence and a
// flat slot map. Wattson owns when to call it and how to judge the
// output, not how it infers.
package grammar

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/voltaic-labs/wattson/internal/intent"
	"github.com/voltaic-labs/wattson/internal/parser"
)

// intentNames maps the grammar engine's intent vocabulary onto the
// closed intent enumeration. Unknown names degrade to TypeUnknown so a
// misconfigured grammar can never smuggle a new intent type in.
var intentNames = map[string]intent.Type{
	"GetEnergy":       intent.TypeEnergyQuery,
	"GetPower":        intent.TypePowerQuery,
	"GetStatus":       intent.TypeMachineStatus,
	"FactoryOverview": intent.TypeFactoryOverview,
	"Compare":         intent.TypeComparison,
	"Rank":            intent.TypeRanking,
	"GetCost":         intent.TypeCostAnalysis,
	"Forecast":        intent.TypeForecast,
	"FindAnomalies":   intent.TypeAnomalyDetection,
	"GetBaseline":     intent.TypeBaseline,
}

// Config holds the grammar service settings.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// Parser is the tier-2 grammar adapter.
type Parser struct {
	endpoint string
	client   *http.Client
}

var _ parser.Parser = (*Parser)(nil)

// New creates a grammar parser from config.
func New(cfg Config) *Parser {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &Parser{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Name returns the tier identifier.
func (p *Parser) Name() string { return string(intent.TierGrammar) }

// serviceResponse is the grammar engine's wire format.
type serviceResponse struct {
	Intent struct {
		Name       string  `json:"name"`
		Confidence float64 `json:"confidence"`
	} `json:"intent"`
	Slots struct {
		Machine   string   `json:"machine,omitempty"`
		Machines  []string `json:"machines,omitempty"`
		Metric    string   `json:"metric,omitempty"`
		TimeRange string   `json:"time_range,omitempty"`
	} `json:"slots"`
}

// Parse sends the utterance to the grammar service and maps the reply
// onto a RawCandidate. Any transport or decoding failure is returned as
// an error; the hybrid router treats it as a tier failure and escalates.
func (p *Parser) Parse(ctx context.Context, utterance string) (*intent.RawCandidate, error) {
	start := time.Now()

	body, err := json.Marshal(map[string]string{"text": utterance})
	if err != nil {
		return nil, fmt.Errorf("marshalling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("grammar service request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("grammar service failed (status %d): %s", resp.StatusCode, respBody)
	}

	var sr serviceResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decoding grammar response: %w", err)
	}

	typ, ok := intentNames[sr.Intent.Name]
	if !ok {
		typ = intent.TypeUnknown
	}

	cand := &intent.RawCandidate{
		Intent:         typ,
		Confidence:     clamp01(sr.Intent.Confidence),
		Machine:        sr.Slots.Machine,
		Machines:       sr.Slots.Machines,
		Metric:         sr.Slots.Metric,
		TimeRangeText:  sr.Slots.TimeRange,
		Tier:           intent.TierGrammar,
		RoutingLatency: time.Since(start),
	}

	slog.Debug("grammar parse complete",
		"intent", cand.Intent, "confidence", cand.Confidence, "latency", cand.RoutingLatency)
	return cand, nil
}

// Close is a no-op for the grammar adapter.
func (p *Parser) Close() error { return nil }

func clamp01(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
