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
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/poiesic/retrievit"
	"github.com/poiesic/retrievit/ai"
	"github.com/poiesic/retrievit/core"
	"github.com/poiesic/retrievit/search"
	"github.com/urfave/cli/v2"
)

func main() {
	dbFlag := &cli.StringFlag{
		Name:     "db",
		Aliases:  []string{"d"},
		Usage:    "Path to the database directory",
		Required: true,
	}
	hostFlag := &cli.StringFlag{
		Name:  "embedding-host",
		Usage: "Embedding service host URL",
		Value: "http://localhost:11434/v1",
	}
	modelFlag := &cli.StringFlag{
		Name:  "embedding-model",
		Usage: "Embedding model name",
		Value: "text-embedding-3-small",
	}
	dimensionFlag := &cli.IntFlag{
		Name:  "dimension",
		Usage: "Embedding vector dimension",
		Value: 1536,
	}

	app := &cli.App{
		Name:  "retrievit",
		Usage: "Hybrid keyword and semantic search over chunked content",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Aliases: []string{"l"},
				Usage:   "Set logging level (debug, info, warn, error)",
				Value:   "info",
			},
		},
		Before: setupLogger,
		Commands: []*cli.Command{
			{
				Name:   "ingest",
				Usage:  "Index a file (or stdin) under a source name",
				Action: ingestCommand,
				Flags: []cli.Flag{
					dbFlag, hostFlag, modelFlag, dimensionFlag,
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Source owner name the content is indexed under",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "kind",
						Usage: "Content kind (document or conversation)",
						Value: "document",
					},
					&cli.StringFlag{
						Name:    "file",
						Aliases: []string{"f"},
						Usage:   "File to ingest; reads stdin when omitted",
					},
				},
			},
			{
				Name:   "search",
				Usage:  "Run a hybrid search query",
				Action: searchCommand,
				Flags: []cli.Flag{
					dbFlag, hostFlag, modelFlag, dimensionFlag,
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of results",
						Value:   5,
					},
					&cli.Float64Flag{
						Name:  "lexical-weight",
						Usage: "Weight of the keyword signal",
						Value: 0.35,
					},
					&cli.Float64Flag{
						Name:  "vector-weight",
						Usage: "Weight of the semantic signal",
						Value: 0.65,
					},
					&cli.BoolFlag{
						Name:  "lexical-only",
						Usage: "Skip the embedding service and search keywords only",
					},
					&cli.StringSliceFlag{
						Name:  "kind",
						Usage: "Restrict results to chunk kinds (conversation, document)",
					},
				},
			},
			{
				Name:   "remove",
				Usage:  "Remove a source and all its chunks from the index",
				Action: removeCommand,
				Flags: []cli.Flag{
					dbFlag, hostFlag, modelFlag, dimensionFlag,
					&cli.StringFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Source owner name to remove",
						Required: true,
					},
				},
			},
			{
				Name:   "rebuild",
				Usage:  "Rebuild the derived indexes from the chunk store",
				Action: rebuildCommand,
				Flags:  []cli.Flag{dbFlag, hostFlag, modelFlag, dimensionFlag},
			},
			{
				Name:   "reembed",
				Usage:  "Regenerate every chunk embedding with the configured model",
				Action: reembedCommand,
				Flags:  []cli.Flag{dbFlag, hostFlag, modelFlag, dimensionFlag},
			},
			{
				Name:   "purge",
				Usage:  "Physically remove tombstoned chunks",
				Action: purgeCommand,
				Flags:  []cli.Flag{dbFlag, hostFlag, modelFlag, dimensionFlag},
			},
			{
				Name:   "recent",
				Usage:  "List the most recently ingested chunks",
				Action: recentCommand,
				Flags: []cli.Flag{
					dbFlag, hostFlag, modelFlag, dimensionFlag,
					&cli.IntFlag{
						Name:    "limit",
						Aliases: []string{"n"},
						Usage:   "Maximum number of chunks to list",
						Value:   10,
					},
				},
			},
			{
				Name:   "stats",
				Usage:  "Print store and index counters",
				Action: statsCommand,
				Flags:  []cli.Flag{dbFlag, hostFlag, modelFlag, dimensionFlag},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func openEngine(c *cli.Context) (*retrievit.Engine, error) {
	config := ai.NewConfig(
		ai.WithHost(c.String("embedding-host")),
		ai.WithModel(c.String("embedding-model")),
		ai.WithDimension(c.Int("dimension")),
	)
	return retrievit.NewEngine(c.String("db"), retrievit.WithAIConfig(config))
}

func ingestCommand(c *cli.Context) error {
	ctx := context.Background()

	kind, err := core.ParseChunkKind(c.String("kind"))
	if err != nil {
		return err
	}

	var content []byte
	if path := c.String("file"); path != "" {
		content, err = os.ReadFile(path)
	} else {
		content, err = io.ReadAll(os.Stdin)
	}
	if err != nil {
		return fmt.Errorf("failed to read content: %w", err)
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.NotifyContentChanged(ctx, c.String("source"), string(content), kind); err != nil {
		return fmt.Errorf("ingestion failed: %w", err)
	}
	if err := engine.WaitForIndexing(ctx); err != nil {
		return err
	}

	stats, err := engine.Stats(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "Indexed %q: %d active chunks, %d vectors\n",
		c.String("source"), stats.ActiveChunks, stats.Vectors)
	return nil
}

func searchCommand(c *cli.Context) error {
	ctx := context.Background()

	query := strings.Join(c.Args().Slice(), " ")
	if strings.TrimSpace(query) == "" {
		return fmt.Errorf("query is required")
	}

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	var opts []search.QueryOption
	if names := c.StringSlice("kind"); len(names) > 0 {
		kinds := make([]core.ChunkKind, 0, len(names))
		for _, name := range names {
			kind, err := core.ParseChunkKind(name)
			if err != nil {
				return fmt.Errorf("invalid kind %q: %w", name, err)
			}
			kinds = append(kinds, kind)
		}
		opts = append(opts, search.WithKinds(kinds...))
	}

	var results []*core.SearchResult
	if c.Bool("lexical-only") {
		results, err = engine.SearchLexical(ctx, query, c.Int("limit"), opts...)
	} else {
		weights := search.Weights{
			Lexical: c.Float64("lexical-weight"),
			Vector:  c.Float64("vector-weight"),
		}
		results, err = engine.Search(ctx, query, c.Int("limit"), weights, opts...)
	}
	if err != nil {
		return fmt.Errorf("search failed: %w", err)
	}

	fmt.Printf("Found %d hits\n", len(results))
	for i, hit := range results {
		fmt.Printf("%d: %s#%d [%0.3f] (lexical %0.3f, vector %0.3f)\n    %s\n",
			i+1, hit.Source.Owner, hit.Source.Position,
			hit.FusedScore, hit.LexicalScore, hit.VectorScore, hit.Snippet)
	}
	return nil
}

func removeCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.RemoveSource(context.Background(), c.String("source")); err != nil {
		return fmt.Errorf("remove failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Removed source %q\n", c.String("source"))
	return nil
}

func rebuildCommand(c *cli.Context) error {
	ctx := context.Background()

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	if err := engine.RebuildAll(ctx); err != nil {
		return fmt.Errorf("rebuild failed: %w", err)
	}
	if err := engine.WaitForIndexing(ctx); err != nil {
		return err
	}
	return printStats(ctx, engine)
}

func reembedCommand(c *cli.Context) error {
	ctx := context.Background()

	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	count, err := engine.ReembedAll(ctx)
	if err != nil {
		return fmt.Errorf("reembed failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Re-embedding %d chunks\n", count)
	return engine.WaitForIndexing(ctx)
}

func purgeCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	purged, err := engine.PurgeTombstoned(context.Background())
	if err != nil {
		return fmt.Errorf("purge failed: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Purged %d tombstoned chunks\n", purged)
	return nil
}

func recentCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	chunks, err := engine.ChunkRepository().ListRecent(context.Background(), c.Int("limit"))
	if err != nil {
		return fmt.Errorf("listing recent chunks failed: %w", err)
	}

	for _, chunk := range chunks {
		fmt.Printf("%s  %s#%d (%s)\n    %s\n",
			chunk.CreatedAt.Format(time.RFC3339),
			chunk.Source.Owner, chunk.Source.Position,
			chunk.Kind, firstLine(chunk.Text))
	}
	return nil
}

// firstLine truncates text to a single display line.
func firstLine(text string) string {
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	runes := []rune(text)
	if len(runes) > 120 {
		return string(runes[:120]) + "..."
	}
	return text
}

func statsCommand(c *cli.Context) error {
	engine, err := openEngine(c)
	if err != nil {
		return err
	}
	defer engine.Close()

	return printStats(context.Background(), engine)
}

func printStats(ctx context.Context, engine *retrievit.Engine) error {
	stats, err := engine.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Active chunks:      %d\n", stats.ActiveChunks)
	fmt.Printf("Tombstoned chunks:  %d\n", stats.TombstonedChunks)
	fmt.Printf("Lexical documents:  %d\n", stats.LexicalDocuments)
	fmt.Printf("Vectors:            %d\n", stats.Vectors)
	fmt.Printf("Pending embeddings: %d\n", stats.PendingEmbeddings)
	fmt.Printf("Vector dimension:   %d\n", stats.Dimension)
	return nil
}

func setupLogger(c *cli.Context) error {
	// Get log level from flag and normalize to lowercase
	levelStr := strings.ToLower(c.String("log-level"))

	// Map string to slog.Level
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

	// Configure slog with the specified level
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)

	return nil
}
