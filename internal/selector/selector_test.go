package selector

import (
	"context"
	"math"
	"testing"

	"curator/internal/core"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i := range texts {
		out[i] = []float64{0.1, 0.2}
	}
	return out, nil
}

type fakeGateway struct {
	scores map[string][]core.AnchorScore
}

func (g *fakeGateway) UpsertPaperWithEmbedding(ctx context.Context, p core.Paper, embedding []float64) error {
	return nil
}

func (g *fakeGateway) ScorePaperAgainstAnchors(ctx context.Context, arxivID string) ([]core.AnchorScore, error) {
	return g.scores[arxivID], nil
}

func (g *fakeGateway) UpdateL2(ctx context.Context, arxivID string, f core.L2Fields) error {
	return nil
}

func TestSelectorRunFiltersByThreshold(t *testing.T) {
	g := &fakeGateway{scores: map[string][]core.AnchorScore{
		"pass": {{CategoryID: 1, Similarity: 0.55}},
		"fail": {{CategoryID: 1, Similarity: 0.10}},
	}}
	s := New(fakeEmbedder{}, g, 0.40)

	papers := []core.Paper{
		{ArxivID: "pass", Title: "A", MatchedQueries: []int{1}},
		{ArxivID: "fail", Title: "B", MatchedQueries: []int{1}},
	}

	passed, err := s.Run(context.Background(), papers)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if len(passed) != 1 || passed[0].ArxivID != "pass" {
		t.Fatalf("expected only 'pass' to survive, got %v", passed)
	}
	if passed[0].L2 == nil || !passed[0].L2.Passed {
		t.Error("expected surviving paper to carry its L2 fields")
	}
}

func TestSelectorRunEmptyInput(t *testing.T) {
	s := New(fakeEmbedder{}, &fakeGateway{}, 0.40)
	out, err := s.Run(context.Background(), nil)
	if err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if out != nil {
		t.Errorf("expected nil output for empty input, got %v", out)
	}
}

func TestComputeL2FieldsArgmaxAndTieBreak(t *testing.T) {
	scores := []core.AnchorScore{
		{CategoryID: 1, Similarity: 0.35},
		{CategoryID: 2, Similarity: 0.50},
		{CategoryID: 3, Similarity: 0.50},
		{CategoryID: 4, Similarity: 0.10},
	}

	f := computeL2Fields(scores, 2, 0.40)

	if f.BestCategoryID != 2 {
		t.Errorf("expected tie between 2 and 3 to resolve to the smaller id, got %d", f.BestCategoryID)
	}
	if !almostEqual(f.MaxScore, 0.50) {
		t.Errorf("MaxScore = %v, want 0.50", f.MaxScore)
	}
	if f.HitCount != 2 {
		t.Errorf("HitCount = %d, want 2 (categories 2 and 3 clear 0.40)", f.HitCount)
	}
	if !f.Passed {
		t.Error("expected Passed = true since MaxScore >= threshold")
	}
}

func TestComputeL2FieldsBelowThresholdFails(t *testing.T) {
	scores := []core.AnchorScore{
		{CategoryID: 1, Similarity: 0.10},
		{CategoryID: 2, Similarity: 0.20},
	}

	f := computeL2Fields(scores, 1, 0.40)
	if f.Passed {
		t.Error("expected Passed = false when no score meets the threshold")
	}
	if f.HitCount != 0 {
		t.Errorf("HitCount = %d, want 0", f.HitCount)
	}
}

func TestComputeL2FieldsAllScoresKeyedByCategory(t *testing.T) {
	scores := []core.AnchorScore{
		{CategoryID: 5, Similarity: 0.41},
	}
	f := computeL2Fields(scores, 0, 0.40)
	if got, ok := f.AllScores["5"]; !ok || !almostEqual(got, 0.41) {
		t.Errorf("AllScores[\"5\"] = %v, ok=%v, want 0.41", got, ok)
	}
}

func TestComputeL2FieldsImportanceScoreWeighting(t *testing.T) {
	scores := []core.AnchorScore{
		{CategoryID: 1, Similarity: 1.0},
	}
	// max_score=1.0, hit_count=1/6, query hits capped at anchorCount.
	f := computeL2Fields(scores, 6, 0.40)
	want := weightMaxScore*1.0 + weightHitCount*(1.0/6) + weightQueryHits*1.0
	if !almostEqual(f.ImportanceScore, want) {
		t.Errorf("ImportanceScore = %v, want %v", f.ImportanceScore, want)
	}
}
