// Package reviewer is the Post-L3 full-text reviewer (C8): it downloads
// each L3-relevant paper's PDF once, then fans out the detail review
// (C4) and figure extraction concurrently, persisting both.
package reviewer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"curator/internal/core"
	"curator/internal/logger"
	"curator/internal/objectstore"
	"curator/internal/persistence"
	"curator/internal/review"
)

// Reviewer runs Post-L3 over a batch of L3-relevant papers.
type Reviewer struct {
	http        *http.Client
	review      *review.Client
	gateway     *persistence.Gateway
	store       *objectstore.Store
	concurrency int
	minWidth    int
	minHeight   int
}

// New builds a Post-L3 reviewer. concurrency bounds in-flight papers
// (K_P3); minWidth/minHeight are the figure size floor.
func New(reviewClient *review.Client, gateway *persistence.Gateway, store *objectstore.Store, concurrency, minWidth, minHeight int, pdfTimeout time.Duration) *Reviewer {
	return &Reviewer{
		http:        &http.Client{Timeout: pdfTimeout},
		review:      reviewClient,
		gateway:     gateway,
		store:       store,
		concurrency: concurrency,
		minWidth:    minWidth,
		minHeight:   minHeight,
	}
}

// Run processes every input paper concurrently (bounded by K_P3). It
// returns the total number of figures extracted across the batch; a
// single paper's failure (download, review, or figure extraction) is
// logged and skipped rather than aborting the batch.
func (r *Reviewer) Run(ctx context.Context, papers []core.Paper, summaries map[string]string) (int, error) {
	if len(papers) == 0 {
		return 0, nil
	}

	sem := make(chan struct{}, r.concurrency)
	var wg sync.WaitGroup
	var mu sync.Mutex
	figuresExtracted := 0

	for _, p := range papers {
		p := p
		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			n := r.processPaper(ctx, p, summaries[p.ArxivID])
			mu.Lock()
			figuresExtracted += n
			mu.Unlock()
		}()
	}
	wg.Wait()

	logger.Info("Post-L3 complete", "input_count", len(papers), "figures_extracted", figuresExtracted)
	return figuresExtracted, nil
}

func (r *Reviewer) processPaper(ctx context.Context, p core.Paper, priorSummary string) int {
	pdfBytes, err := r.downloadPDF(ctx, p.PDFURL)
	if err != nil {
		logger.Warn("Post-L3 PDF download failed", "arxiv_id", p.ArxivID, "error", err.Error())
		return 0
	}

	var wg sync.WaitGroup
	var detailReview *core.DetailReview
	var figures []core.Figure
	var figErr error

	wg.Add(2)
	go func() {
		defer wg.Done()
		dr, err := r.review.Review(ctx, p.Title, priorSummary, pdfBytes)
		if err != nil {
			logger.Warn("Post-L3 review failed", "arxiv_id", p.ArxivID, "error", err.Error())
			return
		}
		detailReview = dr
	}()
	go func() {
		defer wg.Done()
		figs, err := extractFigures(ctx, r.store, p.ArxivID, pdfBytes, r.minWidth, r.minHeight)
		if err != nil {
			figErr = err
			return
		}
		figures = figs
	}()
	wg.Wait()

	if detailReview != nil {
		if err := r.gateway.UpdateDetailReview(ctx, p.ArxivID, *detailReview); err != nil {
			logger.Warn("Post-L3 persist review failed", "arxiv_id", p.ArxivID, "error", err.Error())
		}
	}

	if figErr != nil {
		logger.Warn("Post-L3 figure extraction failed", "arxiv_id", p.ArxivID, "error", figErr.Error())
		return 0
	}
	if len(figures) > 0 {
		if err := r.gateway.UpsertFigures(ctx, p.ArxivID, figures); err != nil {
			logger.Warn("Post-L3 persist figures failed", "arxiv_id", p.ArxivID, "error", err.Error())
			return 0
		}
	}
	return len(figures)
}

// downloadPDF fetches the paper's PDF bytes, retrying once after a
// short gap on failure (matching the reference's two-attempt policy).
func (r *Reviewer) downloadPDF(ctx context.Context, url string) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := r.http.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			lastErr = fmt.Errorf("unexpected status %d", resp.StatusCode)
			continue
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return data, nil
	}
	return nil, fmt.Errorf("download pdf: %w", lastErr)
}
