package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/usestring/apilearn/internal/catalog"
	"github.com/usestring/apilearn/internal/config"
	"github.com/usestring/apilearn/internal/engine"
	"github.com/usestring/apilearn/internal/logging"
	"github.com/usestring/apilearn/pkg/jsoncompact"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	cfg := config.Load()
	cleanup, err := logging.Setup(logging.Config{
		Level:      cfg.LogLevel,
		FilePath:   cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "logging setup:", err)
		os.Exit(1)
	}
	defer cleanup()

	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	if err := run(ctx, cfg, os.Args[1], os.Args[2:]); err != nil {
		slog.Error("command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: apilearn <command> [flags]

commands:
  learn  -har FILE [-url SEED] [-out DIR]   learn a capture and export artifacts
  rank   -har FILE -intent TEXT [-domain D] rank endpoints against an intent
  graph  -har FILE [-url SEED]              print the correlation graph
  call   -har FILE -index N [-url SEED]     replay one captured exchange
  chain  -har FILE -target N [-url SEED]    replay the dependency chain for a target`)
}

func run(ctx context.Context, cfg *config.Config, command string, args []string) error {
	switch command {
	case "learn":
		return cmdLearn(ctx, cfg, args)
	case "rank":
		return cmdRank(ctx, cfg, args)
	case "graph":
		return cmdGraph(ctx, cfg, args)
	case "call":
		return cmdCall(ctx, cfg, args)
	case "chain":
		return cmdChain(ctx, cfg, args)
	default:
		usage()
		return fmt.Errorf("unknown command %q", command)
	}
}

// newEngine loads the capture and runs the learning pipeline; every
// subcommand starts here.
func newEngine(ctx context.Context, cfg *config.Config, harPath, seedURL string) (*engine.Engine, error) {
	if harPath == "" {
		return nil, fmt.Errorf("-har is required")
	}
	data, err := os.ReadFile(harPath)
	if err != nil {
		return nil, fmt.Errorf("read capture: %w", err)
	}
	e, err := engine.New(cfg, slog.Default())
	if err != nil {
		return nil, err
	}
	if err := e.LearnHAR(ctx, data, seedURL); err != nil {
		return nil, err
	}
	return e, nil
}

func cmdLearn(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("learn", flag.ExitOnError)
	harPath := fs.String("har", "", "capture file (HAR)")
	seedURL := fs.String("url", "", "seed URL anchoring the target site")
	outDir := fs.String("out", ".", "output directory")
	fs.Parse(args)

	e, err := newEngine(ctx, cfg, *harPath, *seedURL)
	if err != nil {
		return err
	}
	defer e.Close()

	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		return err
	}

	cat := e.Catalog().Sanitized()
	if err := writeJSON(filepath.Join(*outDir, "catalog.json"), cat); err != nil {
		return err
	}
	if err := writeJSON(filepath.Join(*outDir, "graph.json"), e.GraphExport()); err != nil {
		return err
	}
	profileData, err := e.HeaderProfile().Marshal()
	if err != nil {
		return err
	}
	if err := os.WriteFile(filepath.Join(*outDir, "headers.json"), profileData, 0o644); err != nil {
		return err
	}
	if rec := e.CredentialRecord(); rec != nil {
		if err := writeJSON(filepath.Join(*outDir, "auth.json"), catalog.SanitizeRecord(rec)); err != nil {
			return err
		}
	}

	fmt.Printf("learned %d endpoints for %s\n", len(cat.Groups), cat.Service)
	return nil
}

func cmdRank(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("rank", flag.ExitOnError)
	harPath := fs.String("har", "", "capture file (HAR)")
	seedURL := fs.String("url", "", "seed URL")
	intent := fs.String("intent", "", "natural-language intent")
	domain := fs.String("domain", "", "anchor domain (defaults to the capture's base URL)")
	limit := fs.Int("limit", 10, "max results")
	fs.Parse(args)

	if *intent == "" {
		return fmt.Errorf("-intent is required")
	}
	e, err := newEngine(ctx, cfg, *harPath, *seedURL)
	if err != nil {
		return err
	}
	defer e.Close()

	results := e.Rank(*intent, *domain)
	if len(results) == 0 {
		fmt.Println("no rankable endpoints")
		return nil
	}
	if len(results) > *limit {
		results = results[:*limit]
	}
	for i, r := range results {
		fmt.Printf("%2d. %7.1f  %s %s\n", i+1, r.Score, r.Group.Method, r.Group.NormalizedPath)
	}
	return nil
}

func cmdGraph(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	harPath := fs.String("har", "", "capture file (HAR)")
	seedURL := fs.String("url", "", "seed URL")
	fs.Parse(args)

	e, err := newEngine(ctx, cfg, *harPath, *seedURL)
	if err != nil {
		return err
	}
	defer e.Close()

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(e.GraphExport())
}

func cmdCall(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("call", flag.ExitOnError)
	harPath := fs.String("har", "", "capture file (HAR)")
	seedURL := fs.String("url", "", "seed URL")
	index := fs.Int("index", -1, "capture index to replay")
	fs.Parse(args)

	if *index < 0 {
		return fmt.Errorf("-index is required")
	}
	e, err := newEngine(ctx, cfg, *harPath, *seedURL)
	if err != nil {
		return err
	}
	defer e.Close()

	res, err := e.Call(ctx, *index)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s -> %s (%d) via %s in %s\n",
		res.Call.Method, res.Call.URL, res.State, res.Status, res.Transport, res.Duration)
	if res.Body != "" {
		fmt.Println(bodyPreview(res.Body))
	}
	if res.Err != nil {
		return res.Err
	}
	return nil
}

func cmdChain(ctx context.Context, cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("chain", flag.ExitOnError)
	harPath := fs.String("har", "", "capture file (HAR)")
	seedURL := fs.String("url", "", "seed URL")
	target := fs.Int("target", -1, "capture index of the chain target")
	fs.Parse(args)

	if *target < 0 {
		return fmt.Errorf("-target is required")
	}
	e, err := newEngine(ctx, cfg, *harPath, *seedURL)
	if err != nil {
		return err
	}
	defer e.Close()

	result, trace, err := e.RunChain(ctx, *target)
	if err != nil {
		return err
	}
	for i, step := range result.Steps {
		fmt.Printf("step %d: %s %s -> %s (%d)\n",
			i+1, step.Call.Method, step.Call.URL, step.State, step.Status)
	}
	if !result.Success {
		fmt.Printf("chain failed at step %d (trace %s)\n", result.FailedStep, trace.ID)
		return fmt.Errorf("chain failed")
	}
	fmt.Printf("chain succeeded (trace %s)\n", trace.ID)
	return nil
}

// bodyPreview trims large JSON bodies for terminal output: long arrays
// keep their first items and oversized strings are truncated. Non-JSON
// bodies pass through unchanged.
func bodyPreview(body string) string {
	compacted, err := jsoncompact.Compact([]byte(body), jsoncompact.DefaultOptions())
	if err != nil {
		return body
	}
	return string(compacted)
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}
