// Package persistence is the pipeline's only connection to the relational
// store (Postgres + pgvector). It owns the *sql.DB and exposes the
// upsert/update/fetch operations the later stages call; nothing else in
// the module touches the database directly.
package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lib/pq"

	"curator/internal/core"
	"curator/internal/result"
)

// Gateway is the persistence contract (C1) used by every later stage.
type Gateway struct {
	db *sql.DB
}

// Open connects to the configured Postgres instance and verifies
// reachability with a ping. Pool sizing mirrors the reference gateway's
// lazily-initialized single connection, made explicit and constructed up
// front at the orchestrator entry point instead.
func Open(ctx context.Context, dsn string, maxOpen, maxIdle int, connMaxLifetime time.Duration) (*Gateway, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(maxIdle)
	db.SetConnMaxLifetime(connMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Gateway{db: db}, nil
}

// Close releases the pooled connection. Safe to call even if Open failed
// to produce a usable gateway upstream; the caller is expected to defer
// this immediately after a successful Open.
func (g *Gateway) Close() error {
	if g == nil || g.db == nil {
		return nil
	}
	return g.db.Close()
}

func formatVector(embedding []float64) string {
	parts := make([]string, len(embedding))
	for i, v := range embedding {
		parts[i] = strconv.FormatFloat(v, 'f', -1, 64)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

// UpsertPaperWithEmbedding inserts a new paper row or, on arxiv_id
// conflict, merges matched_queries into the existing set and bumps
// updated_at. The embedding is not overwritten on conflict: per the
// reference behavior, a re-run after an upstream metadata correction will
// not re-embed (see DESIGN.md open-question decision).
func (g *Gateway) UpsertPaperWithEmbedding(ctx context.Context, p core.Paper, embedding []float64) error {
	_, err := g.db.ExecContext(ctx, `
		INSERT INTO papers (
			arxiv_id, title, abstract, authors, pdf_url,
			primary_category, all_categories, published_at,
			matched_queries, embedding
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::vector)
		ON CONFLICT (arxiv_id) DO UPDATE SET
			matched_queries = (
				SELECT ARRAY(
					SELECT DISTINCT unnest(papers.matched_queries || EXCLUDED.matched_queries)
				)
			),
			updated_at = NOW()
	`,
		p.ArxivID, p.Title, p.Abstract, pq.Array(p.Authors), p.PDFURL,
		p.PrimaryCategory, pq.Array(p.AllCategories), p.PublishedAt,
		pq.Array(p.MatchedQueries), formatVector(embedding),
	)
	if err != nil {
		return fmt.Errorf("upsert paper %s: %w", p.ArxivID, err)
	}
	return nil
}

// ScorePaperAgainstAnchors returns one (category_id, cosine_similarity) row
// per active anchor, ordered by category id ascending so that argmax
// tie-breaking is deterministic (smallest id wins).
func (g *Gateway) ScorePaperAgainstAnchors(ctx context.Context, arxivID string) ([]core.AnchorScore, error) {
	rows, err := g.db.QueryContext(ctx, `
		SELECT a.category_id, 1 - (p.embedding <=> a.embedding) AS cosine_similarity
		FROM papers p
		CROSS JOIN anchors a
		WHERE p.arxiv_id = $1 AND a.is_active = TRUE
		ORDER BY a.category_id
	`, arxivID)
	if err != nil {
		return nil, fmt.Errorf("score paper %s: %w", arxivID, err)
	}
	defer func() { _ = rows.Close() }()

	var scores []core.AnchorScore
	for rows.Next() {
		var s core.AnchorScore
		if err := rows.Scan(&s.CategoryID, &s.Similarity); err != nil {
			return nil, fmt.Errorf("scan anchor score for %s: %w", arxivID, err)
		}
		scores = append(scores, s)
	}
	return scores, rows.Err()
}

// UpdateL2 persists the L2 field group atomically (invariant 3).
func (g *Gateway) UpdateL2(ctx context.Context, arxivID string, f core.L2Fields) error {
	allScores, err := json.Marshal(roundedScoreStrings(f.AllScores))
	if err != nil {
		return fmt.Errorf("marshal all_scores for %s: %w", arxivID, err)
	}
	_, err = g.db.ExecContext(ctx, `
		UPDATE papers SET
			best_category_id = $1,
			max_score = $2,
			hit_count = $3,
			importance_score = $4,
			all_scores = $5,
			updated_at = NOW()
		WHERE arxiv_id = $6
	`, f.BestCategoryID, round4(f.MaxScore), f.HitCount, round4(f.ImportanceScore), allScores, arxivID)
	if err != nil {
		return fmt.Errorf("update L2 for %s: %w", arxivID, err)
	}
	return nil
}

// UpdateL3 persists the L3 field group atomically (invariant 4).
func (g *Gateway) UpdateL3(ctx context.Context, arxivID string, f core.L3Fields) error {
	_, err := g.db.ExecContext(ctx, `
		UPDATE papers SET
			is_relevant = $1,
			category_id = $2,
			confidence = $3,
			importance = $4,
			summary_ja = $5,
			reasoning = $6,
			updated_at = NOW()
		WHERE arxiv_id = $7
	`, f.IsRelevant, f.CategoryID, f.Confidence, f.Importance, f.SummaryJA, f.Reasoning, arxivID)
	if err != nil {
		return fmt.Errorf("update L3 for %s: %w", arxivID, err)
	}
	return nil
}

// UpdateDetailReview persists the Post-L3 review blob (invariant 5:
// detail_review != null implies is_relevant = true is enforced by the
// caller only invoking this for L3-relevant papers).
func (g *Gateway) UpdateDetailReview(ctx context.Context, arxivID string, review core.DetailReview) error {
	blob, err := json.Marshal(review)
	if err != nil {
		return fmt.Errorf("marshal detail review for %s: %w", arxivID, err)
	}
	_, err = g.db.ExecContext(ctx, `
		UPDATE papers SET detail_review = $1, updated_at = NOW() WHERE arxiv_id = $2
	`, blob, arxivID)
	if err != nil {
		return fmt.Errorf("update detail review for %s: %w", arxivID, err)
	}
	return nil
}

// UpsertFigures idempotently inserts or refreshes figure rows keyed by
// (paper_id, figure_index) (invariant 7, testable property 7).
func (g *Gateway) UpsertFigures(ctx context.Context, arxivID string, figures []core.Figure) error {
	if len(figures) == 0 {
		return nil
	}

	var paperID int64
	if err := g.db.QueryRowContext(ctx, `SELECT id FROM papers WHERE arxiv_id = $1`, arxivID).Scan(&paperID); err != nil {
		if err == sql.ErrNoRows {
			return result.Wrap(result.KindResourceMissing, fmt.Errorf("paper not found for figures: %s", arxivID))
		}
		return fmt.Errorf("lookup paper id for %s: %w", arxivID, err)
	}

	for _, fig := range figures {
		_, err := g.db.ExecContext(ctx, `
			INSERT INTO paper_figures (
				paper_id, figure_index, object_key, url, width, height, file_size_bytes, caption
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (paper_id, figure_index) DO UPDATE SET
				object_key = EXCLUDED.object_key,
				url = EXCLUDED.url,
				width = EXCLUDED.width,
				height = EXCLUDED.height,
				file_size_bytes = EXCLUDED.file_size_bytes,
				caption = EXCLUDED.caption
		`, paperID, fig.FigureIndex, fig.ObjectKey, fig.URL, fig.Width, fig.Height, fig.FileSizeBytes, fig.Caption)
		if err != nil {
			return fmt.Errorf("upsert figure %d for %s: %w", fig.FigureIndex, arxivID, err)
		}
	}
	return nil
}

// FetchSummaries returns the L3 Japanese summaries for the given preprint
// ids, keyed by id. Used by the orchestrator to hand Post-L3 the quick
// summary alongside each paper.
func (g *Gateway) FetchSummaries(ctx context.Context, arxivIDs []string) (map[string]string, error) {
	summaries := make(map[string]string, len(arxivIDs))
	if len(arxivIDs) == 0 {
		return summaries, nil
	}

	rows, err := g.db.QueryContext(ctx, `
		SELECT arxiv_id, COALESCE(summary_ja, '') FROM papers WHERE arxiv_id = ANY($1)
	`, pq.Array(arxivIDs))
	if err != nil {
		return nil, fmt.Errorf("fetch summaries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var id, summary string
		if err := rows.Scan(&id, &summary); err != nil {
			return nil, fmt.Errorf("scan summary row: %w", err)
		}
		summaries[id] = summary
	}
	return summaries, rows.Err()
}

// InsertBatchLog appends one batch-log record. Best-effort by the
// orchestrator's policy: a failure here is logged but does not change the
// pipeline's overall success status (see §7 propagation policy).
func (g *Gateway) InsertBatchLog(ctx context.Context, log core.BatchLog) error {
	errorsJSON, err := json.Marshal(log.Errors)
	if err != nil {
		return fmt.Errorf("marshal batch log errors: %w", err)
	}
	dateRange, err := json.Marshal(map[string]string{"start": log.DateRangeStart, "end": log.DateRangeEnd})
	if err != nil {
		return fmt.Errorf("marshal batch log date range: %w", err)
	}

	_, err = g.db.ExecContext(ctx, `
		INSERT INTO batch_logs (
			execution_date, date_range,
			l1_raw_count, l1_dedup_count,
			l2_input_count, l2_passed_count, l2_pass_rate,
			l3_input_count, l3_relevant_count, l3_relevance_rate,
			figures_extracted, errors, processing_time_sec
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		log.ExecutionDate, dateRange,
		log.L1RawCount, log.L1DedupCount,
		log.L2InputCount, log.L2PassedCount, log.L2PassRate,
		log.L3InputCount, log.L3RelevantCount, log.L3RelevanceRate,
		log.FiguresExtracted, errorsJSON, log.ProcessingTimeSec,
	)
	if err != nil {
		return fmt.Errorf("insert batch log: %w", err)
	}
	return nil
}

func round4(v float64) float64 {
	return float64(int64(v*10000+0.5)) / 10000
}

func roundedScoreStrings(scores map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(scores))
	for k, v := range scores {
		out[k] = round4(v)
	}
	return out
}
