// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/poiesic/recall"
	"github.com/poiesic/recall/config"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/reindex"
	"github.com/poiesic/recall/search"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "recall",
		Usage: "Workspace content ingestion and permission-aware retrieval",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Path to config file (default: ./recall.yaml, then ~/.config/recall/config.yaml)",
			},
		},
		Before: setup,
		Commands: []*cli.Command{
			{
				Name:      "ingest",
				Usage:     "Submit content events and wait for them to be applied",
				ArgsUsage: "<events.json>",
				Action:    ingestCommand,
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "drain-timeout",
						Usage: "Maximum time to wait for the queue to drain",
						Value: 5 * time.Minute,
					},
				},
			},
			{
				Name:      "search",
				Usage:     "Run a permission-aware hybrid search",
				ArgsUsage: "<query>",
				Action:    searchCommand,
				Flags:     queryFlags(),
			},
			{
				Name:      "ask",
				Usage:     "Answer a question from retrieved passages, with citations",
				ArgsUsage: "<question>",
				Action:    askCommand,
				Flags:     queryFlags(),
			},
			{
				Name:   "dead-letters",
				Usage:  "List ingestion jobs that exhausted their retries",
				Action: deadLettersCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "limit",
						Usage: "Maximum number of entries to show",
						Value: 20,
					},
				},
			},
			{
				Name:      "requeue",
				Usage:     "Revive a parked job for another round of attempts",
				ArgsUsage: "<job-id>",
				Action:    requeueCommand,
			},
			{
				Name:   "reindex",
				Usage:  "Re-embed all stored content with the configured embedding model",
				Action: reindexCommand,
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "Number of chunks per embedding call",
						Value: reindex.DefaultBatchSize,
					},
					&cli.IntFlag{
						Name:  "report-interval",
						Usage: "Report progress every N documents",
						Value: 10,
					},
					&cli.IntFlag{
						Name:  "max-retries",
						Usage: "Maximum retry attempts for failed operations",
						Value: 3,
					},
					&cli.DurationFlag{
						Name:  "retry-delay",
						Usage: "Base delay for exponential backoff",
						Value: 1 * time.Second,
					},
				},
			},
			{
				Name:   "init",
				Usage:  "Write a default config file",
				Action: initCommand,
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "path",
						Usage: "Where to write the config",
						Value: "recall.yaml",
					},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func queryFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:    "caller",
			Aliases: []string{"u"},
			Usage:   "Caller identity as provider:external_id (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:  "source",
			Usage: "Restrict results to a source system (repeatable)",
		},
		&cli.StringFlag{
			Name:  "path-prefix",
			Usage: "Restrict results to documents under a path prefix",
		},
		&cli.IntFlag{
			Name:  "limit",
			Usage: "Maximum number of results",
			Value: 10,
		},
	}
}

func loadConfig(c *cli.Context) (*config.AppConfig, error) {
	if path := c.String("config"); path != "" {
		return config.Load(path)
	}
	cfg, _, err := config.LoadDefault()
	return cfg, err
}

func openService(c *cli.Context) (*recall.Service, error) {
	cfg, err := loadConfig(c)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return recall.NewService(cfg)
}

func ingestCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one argument: path to a JSON events file (- for stdin)")
	}

	events, err := readEvents(c.Args().First())
	if err != nil {
		return err
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	for _, event := range events {
		job, err := svc.SubmitEvent(ctx, event)
		if err != nil {
			return fmt.Errorf("failed to submit %s/%s: %w", event.Source, event.ExternalID, err)
		}
		slog.Debug("event accepted", "jobId", job.Id, "key", job.Key.String())
	}
	fmt.Fprintf(os.Stderr, "Accepted %d events\n", len(events))

	// Drain synchronously so the command exits with everything applied.
	deadline := time.Now().Add(c.Duration("drain-timeout"))
	for {
		claimed, err := svc.ProcessNext(ctx)
		if err != nil {
			return err
		}
		if !claimed {
			depth, err := svc.QueueDepth(ctx)
			if err != nil {
				return err
			}
			if depth == 0 {
				break
			}
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("queue did not drain within %v", c.Duration("drain-timeout"))
		}
		time.Sleep(50 * time.Millisecond)
	}

	letters, err := svc.DeadLetters(ctx, len(events))
	if err != nil {
		return err
	}
	if len(letters) > 0 {
		fmt.Fprintf(os.Stderr, "%d events failed permanently; inspect with 'recall dead-letters'\n", len(letters))
	}
	fmt.Fprintln(os.Stderr, "Done")
	return nil
}

// readEvents parses a JSON array of content events from a file or stdin.
func readEvents(path string) ([]*core.Event, error) {
	var reader io.Reader
	if path == "-" {
		reader = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open events file: %w", err)
		}
		defer file.Close()
		reader = file
	}

	var events []*core.Event
	if err := json.NewDecoder(reader).Decode(&events); err != nil {
		return nil, fmt.Errorf("failed to parse events: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("no events found")
	}
	return events, nil
}

func buildRequest(c *cli.Context) (search.Request, error) {
	req := search.Request{
		Query: strings.Join(c.Args().Slice(), " "),
		Limit: c.Int("limit"),
		Filters: core.Filters{
			Sources:    c.StringSlice("source"),
			PathPrefix: c.String("path-prefix"),
		},
	}

	for _, caller := range c.StringSlice("caller") {
		provider, externalID, ok := strings.Cut(caller, ":")
		if !ok || provider == "" || externalID == "" {
			return req, fmt.Errorf("invalid caller %q: expected provider:external_id", caller)
		}
		req.Callers = append(req.Callers, core.Identity{Provider: provider, ExternalID: externalID})
	}
	return req, nil
}

func searchCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected a query")
	}
	req, err := buildRequest(c)
	if err != nil {
		return err
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	result, err := svc.Search(context.Background(), req)
	if err != nil {
		return err
	}

	if result.Abstained {
		fmt.Println("No confident results.")
		for _, need := range result.Needs {
			fmt.Printf("  - %s\n", need)
		}
		return nil
	}
	if result.Degraded {
		fmt.Fprintln(os.Stderr, "warning: partial results, one retrieval branch was unavailable")
	}

	for i, hit := range result.Hits {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, hit.Score, hit.Document.Title, hit.Document.Path)
		fmt.Printf("   %s\n", firstLine(hit.Chunk.Text))
	}
	return nil
}

func askCommand(c *cli.Context) error {
	if c.NArg() == 0 {
		return fmt.Errorf("expected a question")
	}
	req, err := buildRequest(c)
	if err != nil {
		return err
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	resp, err := svc.Ask(context.Background(), req)
	if err != nil {
		return err
	}

	fmt.Println(resp.Answer)
	if resp.Abstained {
		for _, need := range resp.Needs {
			fmt.Printf("  - %s\n", need)
		}
		return nil
	}

	fmt.Println()
	for i, citation := range resp.Citations {
		fmt.Printf("[%d] %s (%s)\n", i+1, citation.Title, citation.Path)
	}
	return nil
}

func deadLettersCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	letters, err := svc.DeadLetters(context.Background(), c.Int("limit"))
	if err != nil {
		return err
	}
	if len(letters) == 0 {
		fmt.Println("No dead letters.")
		return nil
	}

	for _, letter := range letters {
		fmt.Printf("%s  %s  attempts=%d  parked=%s\n  %s\n",
			letter.JobId, letter.Key.String(), letter.Attempts,
			letter.ParkedAt.Format(time.RFC3339), letter.Reason)
	}
	return nil
}

func requeueCommand(c *cli.Context) error {
	if c.NArg() != 1 {
		return fmt.Errorf("expected one argument: job id")
	}

	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	job, err := svc.Requeue(context.Background(), c.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("Requeued %s (%s)\n", job.Id, job.Key.String())
	return nil
}

func reindexCommand(c *cli.Context) error {
	svc, err := openService(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	reindexConfig := &reindex.Config{
		BatchSize:      c.Int("batch-size"),
		ReportInterval: c.Int("report-interval"),
		MaxRetries:     c.Int("max-retries"),
		RetryDelay:     c.Duration("retry-delay"),
	}
	if reindexConfig.ReportInterval <= 0 {
		return fmt.Errorf("report-interval must be greater than 0")
	}
	if reindexConfig.MaxRetries <= 0 {
		return fmt.Errorf("max-retries must be greater than 0")
	}

	if err := svc.Reindex(context.Background(), os.Stderr, reindexConfig); err != nil {
		return fmt.Errorf("reindex failed: %w", err)
	}
	return nil
}

func initCommand(c *cli.Context) error {
	path := c.String("path")
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("%s already exists", path)
	}

	cfg, err := config.Load("")
	if err != nil {
		return err
	}
	if err := config.Save(path, cfg); err != nil {
		return err
	}
	fmt.Printf("Wrote %s\n", path)
	return nil
}

func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	if len(text) > 160 {
		text = text[:160] + "…"
	}
	return text
}

func setup(c *cli.Context) error {
	// Optional .env for API tokens referenced by token_env in the config.
	_ = godotenv.Load()

	levelStr := strings.ToLower(c.String("log-level"))

	var level slog.Level
	switch levelStr {
	case "debug":
		level = slog.LevelDebug
	case "info":
		level = slog.LevelInfo
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		return fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", levelStr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
