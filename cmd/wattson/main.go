// Wattson turns free-form natural-language utterances about factory
// energy state into validated, typed query intents.
//
// Usage:
//
//	wattson [flags]                       interactive mode: one utterance per stdin line
//	wattson --utterance "compressor-1 power yesterday"
//	wattson --config /path/to/wattson.yaml
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/voltaic-labs/wattson/internal/config"
	"github.com/voltaic-labs/wattson/internal/health"
	"github.com/voltaic-labs/wattson/internal/intent"
	"github.com/voltaic-labs/wattson/internal/parser/generative"
	"github.com/voltaic-labs/wattson/internal/parser/grammar"
	"github.com/voltaic-labs/wattson/internal/parser/heuristic"
	"github.com/voltaic-labs/wattson/internal/pipeline"
	"github.com/voltaic-labs/wattson/internal/registry"
	"github.com/voltaic-labs/wattson/internal/router"
	"github.com/voltaic-labs/wattson/internal/timerange"
	"github.com/voltaic-labs/wattson/internal/validate"
)

// version is set at build time via ldflags.
var version = "dev"

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configFile := flag.String("config", "", "path to config file (e.g. configs/wattson.yaml)")
	utterance := flag.String("utterance", "", "process a single utterance and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("wattson %s\n", version)
		os.Exit(0)
	}

	// Load configuration.
	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	// Setup structured logging.
	config.SetupLogging(cfg.Logging)
	slog.Info("wattson starting", "version", version)

	// Create root context with signal handling for graceful shutdown.
	ctx, cancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Machine whitelist, refreshed from the registry when configured.
	var fetcher registry.Fetcher
	if cfg.Registry.Endpoint != "" {
		fetcher = registry.NewHTTPFetcher(cfg.Registry.Endpoint, cfg.Registry.Token, cfg.Registry.Timeout)
		slog.Info("using machine registry", "endpoint", cfg.Registry.Endpoint,
			"refresh_interval", cfg.Registry.RefreshInterval)
	} else {
		slog.Info("no registry endpoint configured, using fallback whitelist",
			"machines", len(registry.FallbackMachines))
	}
	machines := registry.New(fetcher, cfg.Registry.RefreshInterval)
	go machines.Run(ctx)

	// Parser tiers.
	grammarTier := grammar.New(grammar.Config{
		Endpoint: cfg.Grammar.Endpoint,
		Timeout:  cfg.Grammar.Timeout,
	})
	generativeTier, err := generative.New(generative.Config{
		Endpoint: cfg.Generative.Endpoint,
		Model:    cfg.Generative.Model,
		Timeout:  cfg.Generative.Timeout,
	})
	if err != nil {
		slog.Error("failed to initialize generative tier", "error", err)
		os.Exit(1)
	}

	hybrid := router.New(
		heuristic.New(machines),
		grammarTier,
		generativeTier,
		cfg.Validation.GrammarThreshold,
	)
	defer hybrid.Close()

	validator := validate.New(machines, timerange.New(), validate.Options{
		GenerativeThreshold: cfg.Validation.GenerativeThreshold,
		GrammarThreshold:    cfg.Validation.GrammarThreshold,
		HeuristicThreshold:  cfg.Validation.HeuristicThreshold,
		FuzzyCutoff:         cfg.Validation.FuzzyCutoff,
		SuggestionFloor:     cfg.Validation.SuggestionFloor,
		AmbiguityBand:       cfg.Validation.AmbiguityBand,
		MaxSuggestions:      cfg.Validation.MaxSuggestions,
	})

	pipe := pipeline.New(hybrid, validator)

	// One-shot mode.
	if *utterance != "" {
		res, err := pipe.Process(ctx, *utterance, nil)
		if err != nil {
			slog.Error("processing failed", "error", err)
			os.Exit(1)
		}
		printResult(res)
		return
	}

	// Start health/metrics server.
	healthServer := health.New(cfg.Server.HealthPort)
	go func() {
		if err := healthServer.ListenAndServe(ctx); err != nil {
			slog.Error("health server failed", "error", err)
		}
	}()
	healthServer.SetReady(true)

	slog.Info("wattson ready, reading utterances from stdin")

	// Interactive mode: one utterance per line, prior intent carried
	// across turns for anaphora resolution.
	var prior *intent.Intent
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			slog.Info("shutdown signal received")
			return
		case line, ok := <-lines:
			if !ok {
				slog.Info("stdin closed, stopping")
				return
			}
			if line == "" {
				continue
			}
			res, err := pipe.Process(ctx, line, prior)
			if err != nil {
				slog.Error("processing failed", "error", err)
				continue
			}
			if res.Valid {
				prior = res.Intent
			}
			printResult(res)
		}
	}
}

func printResult(res intent.ValidationResult) {
	out, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		slog.Error("marshalling result", "error", err)
		return
	}
	fmt.Println(string(out))
}
