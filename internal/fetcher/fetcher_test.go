package fetcher

import (
	"testing"
	"time"

	"curator/internal/core"
)

func TestComputeDateRange(t *testing.T) {
	now := time.Date(2026, 7, 31, 14, 22, 0, 0, time.UTC)
	start, end := ComputeDateRange(now)

	wantStart := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	wantEnd := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)
	if !start.Equal(wantStart) {
		t.Errorf("start = %v, want %v", start, wantStart)
	}
	if !end.Equal(wantEnd) {
		t.Errorf("end = %v, want %v", end, wantEnd)
	}
}

func TestExtractArxivIDModern(t *testing.T) {
	cases := map[string]string{
		"http://arxiv.org/abs/2507.12345v2": "2507.12345",
		"http://arxiv.org/abs/2507.12345":   "2507.12345",
	}
	for raw, want := range cases {
		if got := extractArxivID(raw); got != want {
			t.Errorf("extractArxivID(%q) = %q, want %q", raw, got, want)
		}
	}
}

func TestExtractArxivIDLegacy(t *testing.T) {
	got := extractArxivID("http://arxiv.org/abs/hep-ph/0601001v1")
	if got != "hep-ph/0601001" {
		t.Errorf("extractArxivID legacy = %q, want %q", got, "hep-ph/0601001")
	}
}

func TestExtractArxivIDUnrecognized(t *testing.T) {
	if got := extractArxivID("not-an-id"); got != "" {
		t.Errorf("expected empty string for unrecognized id, got %q", got)
	}
}

func TestNormalizeTextCollapsesWhitespace(t *testing.T) {
	got := normalizeText("  a paper\n  about   things  \t here  ")
	want := "a paper about things here"
	if got != want {
		t.Errorf("normalizeText = %q, want %q", got, want)
	}
}

func TestDeduplicateMergesMatchedQueries(t *testing.T) {
	papers := []core.Paper{
		{ArxivID: "2507.00001", Title: "A", MatchedQueries: []int{1}},
		{ArxivID: "2507.00002", Title: "B", MatchedQueries: []int{2}},
		{ArxivID: "2507.00001", Title: "A (dup from another query)", MatchedQueries: []int{4}},
	}

	out := deduplicate(papers)
	if len(out) != 2 {
		t.Fatalf("expected 2 deduplicated papers, got %d", len(out))
	}

	first := out[0]
	if first.ArxivID != "2507.00001" {
		t.Fatalf("expected first paper to keep original order, got %s", first.ArxivID)
	}
	if first.Title != "A" {
		t.Errorf("expected first-seen metadata to win, got title %q", first.Title)
	}
	if len(first.MatchedQueries) != 2 {
		t.Errorf("expected matched_queries to merge to 2 entries, got %v", first.MatchedQueries)
	}
}

func TestParseEntryFiltersOutsideDateRange(t *testing.T) {
	q := Query{CategoryID: 1, Name: "test"}
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	entry := atomEntry{
		ID:        "http://arxiv.org/abs/2507.12345v1",
		Title:     "Outside Range",
		Published: "2026-07-29T10:00:00Z",
	}

	_, ok := parseEntry(entry, q, start, end)
	if ok {
		t.Fatal("expected entry published before the range to be rejected")
	}
}

func TestParseEntryWithinRange(t *testing.T) {
	q := Query{CategoryID: 4, Name: "test"}
	start := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	end := time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC)

	entry := atomEntry{
		ID:        "http://arxiv.org/abs/2507.12345v1",
		Title:     "Inside   Range",
		Summary:   "An abstract.",
		Published: "2026-07-30T10:00:00Z",
		Links:     []atomLink{{Href: "http://arxiv.org/pdf/2507.12345v1", Title: "pdf"}},
	}

	paper, ok := parseEntry(entry, q, start, end)
	if !ok {
		t.Fatal("expected entry within range to be accepted")
	}
	if paper.ArxivID != "2507.12345" {
		t.Errorf("ArxivID = %q, want %q", paper.ArxivID, "2507.12345")
	}
	if paper.Title != "Inside Range" {
		t.Errorf("Title = %q, want normalized whitespace", paper.Title)
	}
	if paper.PDFURL == "" {
		t.Error("expected PDF link to be resolved")
	}
	if len(paper.MatchedQueries) != 1 || paper.MatchedQueries[0] != 4 {
		t.Errorf("MatchedQueries = %v, want [4]", paper.MatchedQueries)
	}
}
