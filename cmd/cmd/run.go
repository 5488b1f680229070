package cmd

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"curator/internal/analyzer"
	"curator/internal/embeddings"
	"curator/internal/fetcher"
	"curator/internal/judge"
	"curator/internal/logger"
	"curator/internal/objectstore"
	"curator/internal/persistence"
	"curator/internal/pipeline"
	"curator/internal/review"
	"curator/internal/reviewer"
	"curator/internal/selector"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one curation cycle for the previous UTC day",
	RunE:  runPipeline,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

// runPipeline loads configuration, constructs every stage client, and
// executes one orchestrator run. It does not apply migrations; the
// migrate command does that. Its return value maps directly to the entry
// point's {statusCode, body} contract: nil means 200/"OK", a non-nil
// error means 500 with the error text as the body. A failed batch-log
// insert is logged and still counts as a completed run.
func runPipeline(cmd *cobra.Command, args []string) error {
	cfg := loadConfig()
	ctx := context.Background()

	connMaxLifetime, err := time.ParseDuration(cfg.Database.ConnMaxLifetime)
	if err != nil {
		return fmt.Errorf("invalid database.conn_max_lifetime: %w", err)
	}

	gateway, err := persistence.Open(ctx, cfg.Database.URL, cfg.Database.MaxOpenConns, cfg.Database.MaxIdleConns, connMaxLifetime)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer gateway.Close()

	embedClient, err := embeddings.NewClient(cfg.OpenAI.APIKey, cfg.OpenAI.EmbeddingModel, cfg.OpenAI.Dimensions, cfg.OpenAI.BatchSize)
	if err != nil {
		return fmt.Errorf("build embedding client: %w", err)
	}

	judgeClient, err := judge.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Pipeline.L3MaxRetries, cfg.Pipeline.BackoffBase, cfg.Pipeline.BackoffMax)
	if err != nil {
		return fmt.Errorf("build judgement client: %w", err)
	}

	reviewClient, err := review.NewClient(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Pipeline.PostL3MaxRetries, cfg.Pipeline.BackoffBase, cfg.Pipeline.BackoffMax)
	if err != nil {
		return fmt.Errorf("build review client: %w", err)
	}

	store, err := objectstore.New(ctx, cfg.ObjectStore.Bucket, cfg.ObjectStore.Region, cfg.ObjectStore.CDNDomain)
	if err != nil {
		return fmt.Errorf("build object store client: %w", err)
	}

	p := &pipeline.Pipeline{
		Fetcher:  fetcher.NewClient(cfg.Pipeline.ArxivRateLimit, cfg.Pipeline.ArxivMaxRetries, cfg.Pipeline.ArxivTimeout),
		Selector: selector.New(embedClient, gateway, cfg.Pipeline.L2Threshold),
		Analyzer: analyzer.New(judgeClient, gateway, cfg.Pipeline.L3Concurrency, cfg.Pipeline.L3RequestInterval),
		Reviewer: reviewer.New(reviewClient, gateway, store, cfg.Pipeline.PostL3Concurrency, cfg.Pipeline.FigureMinWidth, cfg.Pipeline.FigureMinHeight, 60*time.Second),
		Gateway:  gateway,
	}

	stats, err := p.Run(ctx, time.Now())
	if err != nil {
		logger.Warn("pipeline run completed without a persisted batch log", "error", err.Error())
	}
	if len(stats.Errors) > 0 {
		logger.Warn("pipeline run completed with stage errors", "errors", stats.Errors)
	}

	fmt.Fprintf(os.Stdout, "OK\n")
	return nil
}
