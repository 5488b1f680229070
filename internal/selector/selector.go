// Package selector is the L2 vector selector (C6): it embeds each L1
// paper, upserts it with its embedding, scores it against the six fixed
// category anchors, and filters to the papers that clear the relevance
// threshold.
package selector

import (
	"context"
	"fmt"
	"strconv"

	"curator/internal/core"
	"curator/internal/logger"
)

const (
	weightMaxScore  = 0.6
	weightHitCount  = 0.3
	weightQueryHits = 0.1
	anchorCount     = 6
)

// embedder is the subset of embeddings.Client the selector needs.
type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// gateway is the subset of persistence.Gateway the selector needs.
type gateway interface {
	UpsertPaperWithEmbedding(ctx context.Context, p core.Paper, embedding []float64) error
	ScorePaperAgainstAnchors(ctx context.Context, arxivID string) ([]core.AnchorScore, error)
	UpdateL2(ctx context.Context, arxivID string, f core.L2Fields) error
}

// Selector runs L2 over a batch of L1 papers.
type Selector struct {
	embedder  embedder
	gateway   gateway
	threshold float64
}

// New builds an L2 selector against the given embedding client,
// persistence gateway, and relevance threshold τ.
func New(e embedder, g gateway, threshold float64) *Selector {
	return &Selector{embedder: e, gateway: g, threshold: threshold}
}

// Run embeds and scores every input paper, returning only those whose
// max cosine similarity against the anchor set meets the threshold.
func (s *Selector) Run(ctx context.Context, papers []core.Paper) ([]core.Paper, error) {
	if len(papers) == 0 {
		return nil, nil
	}

	texts := make([]string, len(papers))
	for i, p := range papers {
		texts[i] = p.Title + " " + p.Abstract
	}

	vectors, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("L2 embed: %w", err)
	}

	for i, p := range papers {
		if err := s.gateway.UpsertPaperWithEmbedding(ctx, p, vectors[i]); err != nil {
			return nil, fmt.Errorf("L2 upsert %s: %w", p.ArxivID, err)
		}
	}

	var passed []core.Paper
	for _, p := range papers {
		scores, err := s.gateway.ScorePaperAgainstAnchors(ctx, p.ArxivID)
		if err != nil {
			return nil, fmt.Errorf("L2 score %s: %w", p.ArxivID, err)
		}
		l2 := computeL2Fields(scores, len(p.MatchedQueries), s.threshold)
		if err := s.gateway.UpdateL2(ctx, p.ArxivID, l2); err != nil {
			return nil, fmt.Errorf("L2 persist %s: %w", p.ArxivID, err)
		}

		logger.Debug("L2 scored paper", "arxiv_id", p.ArxivID, "max_score", l2.MaxScore, "passed", l2.Passed)
		if l2.Passed {
			p.L2 = &l2
			passed = append(passed, p)
		}
	}

	logger.Info("L2 complete", "input_count", len(papers), "passed_count", len(passed))
	return passed, nil
}

// computeL2Fields derives max_score, best_category_id (argmax, ties
// broken by smallest category id since scores arrive ordered ascending
// by id), hit_count, importance_score, and the rounded per-category
// score map from one paper's anchor scores.
func computeL2Fields(scores []core.AnchorScore, queryHits int, threshold float64) core.L2Fields {
	var maxScore float64
	var bestCategoryID int
	hitCount := 0
	allScores := make(map[string]float64, len(scores))

	for _, s := range scores {
		allScores[strconv.Itoa(s.CategoryID)] = s.Similarity
		if s.Similarity > maxScore {
			maxScore = s.Similarity
			bestCategoryID = s.CategoryID
		}
		if s.Similarity >= threshold {
			hitCount++
		}
	}

	importance := weightMaxScore*maxScore +
		weightHitCount*(float64(hitCount)/anchorCount) +
		weightQueryHits*float64(min(queryHits, anchorCount))/anchorCount

	return core.L2Fields{
		BestCategoryID:  bestCategoryID,
		MaxScore:        maxScore,
		HitCount:        hitCount,
		ImportanceScore: importance,
		AllScores:       allScores,
		Passed:          maxScore >= threshold,
	}
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
