// Package analyzer is the L3 relevance analyzer (C7): it runs the LLM
// judgement client over every L2-passed paper with bounded concurrency
// and per-worker pacing, then filters to the papers the model judged
// relevant.
package analyzer

import (
	"context"
	"sync"
	"time"

	"curator/internal/core"
	"curator/internal/logger"
)

// judgeClient is the subset of judge.Client that the analyzer needs;
// defined here so tests can substitute a fake without a live model.
type judgeClient interface {
	Judge(ctx context.Context, title, abstract string, bestCategoryID int, maxScore float64, hitCount int) (*core.L3Fields, error)
}

// gateway is the subset of persistence.Gateway the analyzer needs.
type gateway interface {
	UpdateL3(ctx context.Context, arxivID string, f core.L3Fields) error
}

// Analyzer runs L3 over a batch of L2-passed papers.
type Analyzer struct {
	judge       judgeClient
	gateway     gateway
	concurrency int
	interval    time.Duration
}

// New builds an L3 analyzer. concurrency bounds the number of
// in-flight judgement calls (K₃); interval is the per-worker pacing
// delay applied before each call (d₃).
func New(j judgeClient, g gateway, concurrency int, interval time.Duration) *Analyzer {
	return &Analyzer{judge: j, gateway: g, concurrency: concurrency, interval: interval}
}

// Run judges every input paper concurrently (bounded by K₃) and returns
// the subset the model marked relevant. A paper whose judgement never
// resolves (retries exhausted) is dropped with a logged warning, as is a
// persistence failure for that single paper; neither aborts the batch.
func (a *Analyzer) Run(ctx context.Context, papers []core.Paper) ([]core.Paper, error) {
	if len(papers) == 0 {
		return nil, nil
	}

	sem := make(chan struct{}, a.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	var relevant []core.Paper

	for _, p := range papers {
		p := p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			select {
			case <-ctx.Done():
				return
			case <-time.After(a.interval):
			}

			fields, err := a.judge.Judge(ctx, p.Title, p.Abstract, p.L2.BestCategoryID, p.L2.MaxScore, p.L2.HitCount)
			if err != nil {
				logger.Warn("L3 judgement error", "arxiv_id", p.ArxivID, "error", err.Error())
				return
			}
			if fields == nil {
				logger.Warn("L3 judgement exhausted retries", "arxiv_id", p.ArxivID)
				return
			}

			if err := a.gateway.UpdateL3(ctx, p.ArxivID, *fields); err != nil {
				logger.Warn("L3 persist failed", "arxiv_id", p.ArxivID, "error", err.Error())
				return
			}

			if fields.IsRelevant {
				p.L3 = fields
				mu.Lock()
				relevant = append(relevant, p)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	logger.Info("L3 complete", "input_count", len(papers), "relevant_count", len(relevant))
	return relevant, nil
}
