// Package pipeline is the orchestrator (C9): it runs L1 through Post-L3
// in sequence, records a batch log for the run, and never lets one
// stage's failure prevent the run from completing and being recorded.
package pipeline

import (
	"context"
	"fmt"
	"math"
	"time"

	"curator/internal/analyzer"
	"curator/internal/core"
	"curator/internal/fetcher"
	"curator/internal/logger"
	"curator/internal/persistence"
	"curator/internal/reviewer"
	"curator/internal/selector"
)

// Pipeline wires every stage client together behind one Run call.
type Pipeline struct {
	Fetcher  *fetcher.Client
	Selector *selector.Selector
	Analyzer *analyzer.Analyzer
	Reviewer *reviewer.Reviewer
	Gateway  *persistence.Gateway
}

// Stats summarizes one completed run, echoed to the log and persisted
// as a batch_logs row.
type Stats struct {
	L1RawCount        int
	L1DedupCount      int
	L2PassedCount     int
	L3RelevantCount   int
	FiguresExtracted  int
	Errors            []string
	BatchLogPersisted bool
}

// Run executes one full curation cycle for the given UTC day window. A
// stage failure is recorded in Stats.Errors as "{stage}: {cause}" and
// downstream stages proceed with an empty input rather than aborting
// the run, so that partial progress is still persisted and logged.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (Stats, error) {
	start := time.Now()
	dateStart, dateEnd := fetcher.ComputeDateRange(now)

	var errs []string
	var l1Raw, l1Dedup []core.Paper
	var l2Passed, l3Relevant []core.Paper
	figuresExtracted := 0

	l1Raw, err := p.Fetcher.Collect(ctx, dateStart, dateEnd)
	if err != nil {
		errs = append(errs, fmt.Sprintf("L1: %v", err))
	} else {
		l1Dedup = l1Raw
	}

	if len(l1Dedup) > 0 {
		l2Passed, err = p.Selector.Run(ctx, l1Dedup)
		if err != nil {
			errs = append(errs, fmt.Sprintf("L2: %v", err))
		}
	}

	if len(l2Passed) > 0 {
		l3Relevant, err = p.Analyzer.Run(ctx, l2Passed)
		if err != nil {
			errs = append(errs, fmt.Sprintf("L3: %v", err))
		}
	}

	if len(l3Relevant) > 0 {
		ids := make([]string, len(l3Relevant))
		for i, paper := range l3Relevant {
			ids[i] = paper.ArxivID
		}
		summaries, err := p.Gateway.FetchSummaries(ctx, ids)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Post-L3 summaries: %v", err))
			summaries = map[string]string{}
		}

		figuresExtracted, err = p.Reviewer.Run(ctx, l3Relevant, summaries)
		if err != nil {
			errs = append(errs, fmt.Sprintf("Post-L3: %v", err))
		}
	}

	stats := Stats{
		L1RawCount:       len(l1Raw),
		L1DedupCount:     len(l1Dedup),
		L2PassedCount:    len(l2Passed),
		L3RelevantCount:  len(l3Relevant),
		FiguresExtracted: figuresExtracted,
		Errors:           errs,
	}

	batchLog := buildBatchLog(now, dateStart, dateEnd, stats, time.Since(start))
	var runErr error
	if err := p.Gateway.InsertBatchLog(ctx, batchLog); err != nil {
		logger.Warn("failed to persist batch log", "error", err.Error())
		runErr = fmt.Errorf("insert batch log: %w", err)
	} else {
		stats.BatchLogPersisted = true
	}

	logger.Info("pipeline run complete",
		"l1_raw_count", stats.L1RawCount,
		"l1_dedup_count", stats.L1DedupCount,
		"l2_passed_count", stats.L2PassedCount,
		"l3_relevant_count", stats.L3RelevantCount,
		"figures_extracted", stats.FiguresExtracted,
		"error_count", len(stats.Errors),
		"batch_log_persisted", stats.BatchLogPersisted,
		"duration", time.Since(start).String(),
	)

	return stats, runErr
}

func buildBatchLog(now, dateStart, dateEnd time.Time, stats Stats, elapsed time.Duration) core.BatchLog {
	l2PassRate := rate(stats.L2PassedCount, stats.L1DedupCount)
	l3RelevanceRate := rate(stats.L3RelevantCount, stats.L2PassedCount)

	return core.BatchLog{
		ExecutionDate:     now.UTC().Format("2006-01-02"),
		DateRangeStart:    dateStart.Format(time.RFC3339),
		DateRangeEnd:      dateEnd.Format(time.RFC3339),
		L1RawCount:        stats.L1RawCount,
		L1DedupCount:      stats.L1DedupCount,
		L2InputCount:      stats.L1DedupCount,
		L2PassedCount:     stats.L2PassedCount,
		L2PassRate:        l2PassRate,
		L3InputCount:      stats.L2PassedCount,
		L3RelevantCount:   stats.L3RelevantCount,
		L3RelevanceRate:   l3RelevanceRate,
		FiguresExtracted:  stats.FiguresExtracted,
		Errors:            stats.Errors,
		ProcessingTimeSec: int(elapsed.Seconds()),
	}
}

// rate computes a percentage rounded to one decimal place, matching the
// batch log's ground-truth convention (round(n/d*100, 1)).
func rate(numerator, denominator int) float64 {
	if denominator == 0 {
		return 0
	}
	pct := float64(numerator) / float64(denominator) * 100
	return math.Round(pct*10) / 10
}
