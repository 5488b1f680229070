// Package fetcher is the L1 preprint fetcher (C5): it queries arXiv's
// Atom export for each fixed category query, parses entries, and
// deduplicates by preprint id across queries.
package fetcher

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
	"time"

	"curator/internal/core"
	"curator/internal/logger"
)

// Query is one of the six fixed arXiv category queries.
type Query struct {
	CategoryID int
	Name       string
	Query      string
	MaxResults int
}

// Queries is the fixed set of six category queries the fetcher runs
// every day, in order.
var Queries = []Query{
	{1, "Foundation Models & Architecture", "cat:cs.LG AND abs:(transformer OR \"mixture of experts\" OR architecture)", 50},
	{2, "Training & Tuning", "cat:cs.CL AND abs:(RLHF OR DPO OR LoRA OR fine-tuning)", 50},
	{3, "Application Engineering", "cat:cs.AI AND abs:(retrieval-augmented OR agent OR \"prompt optimization\")", 50},
	{4, "Infrastructure & Inference Optimization", "cat:cs.DC AND abs:(inference OR serving OR quantization OR \"kv cache\")", 50},
	{5, "Evaluation & Safety", "cat:cs.CL AND abs:(benchmark OR jailbreak OR hallucination OR bias)", 50},
	{6, "Regulation & Business", "cat:cs.CY AND abs:(\"AI policy\" OR copyright OR watermarking)", 30},
}

const arxivAPIBase = "http://export.arxiv.org/api/query"

var (
	modernIDPattern = regexp.MustCompile(`(\d{4}\.\d{4,5})(v\d+)?`)
	legacyIDPattern = regexp.MustCompile(`([a-z-]+/\d{7})(v\d+)?`)
)

// atomFeed mirrors the subset of arXiv's Atom export this fetcher reads.
type atomFeed struct {
	XMLName xml.Name    `xml:"feed"`
	Entries []atomEntry `xml:"entry"`
}

type atomEntry struct {
	ID        string         `xml:"id"`
	Title     string         `xml:"title"`
	Summary   string         `xml:"summary"`
	Published string         `xml:"published"`
	Authors   []atomAuthor   `xml:"author"`
	Links     []atomLink     `xml:"link"`
	Primary   atomCategory   `xml:"primary_category"`
	Categories []atomCategory `xml:"category"`
}

type atomAuthor struct {
	Name string `xml:"name"`
}

type atomLink struct {
	Href  string `xml:"href,attr"`
	Rel   string `xml:"rel,attr"`
	Title string `xml:"title,attr"`
}

type atomCategory struct {
	Term string `xml:"term,attr"`
}

// Client fetches and parses arXiv's Atom feed for each configured query.
type Client struct {
	http        *http.Client
	rateLimit   time.Duration
	maxRetries  int
}

// NewClient builds a fetcher client with the given inter-request rate
// limit (applied between queries) and HTTP timeout.
func NewClient(rateLimit time.Duration, maxRetries int, timeout time.Duration) *Client {
	return &Client{
		http:       &http.Client{Timeout: timeout},
		rateLimit:  rateLimit,
		maxRetries: maxRetries,
	}
}

// ComputeDateRange returns the [start, end) window for a run anchored at
// "now": the previous UTC calendar day, as UTC midnight bounds.
func ComputeDateRange(now time.Time) (start, end time.Time) {
	utcNow := now.UTC()
	today := time.Date(utcNow.Year(), utcNow.Month(), utcNow.Day(), 0, 0, 0, 0, time.UTC)
	start = today.AddDate(0, 0, -1)
	end = today
	return start, end
}

// Collect runs every fixed query in order, sleeping rateLimit between
// each, then deduplicates across queries by preprint id (merging
// matched_queries, keeping the first-seen paper's metadata). A query that
// fails (unexpected status, exhausted 503 retries, unparseable feed) is
// logged and contributes no papers; the remaining queries still run. An
// error is returned only when ctx is cancelled.
func (c *Client) Collect(ctx context.Context, start, end time.Time) ([]core.Paper, error) {
	var all []core.Paper
	for i, q := range Queries {
		papers, err := c.fetchQuery(ctx, q, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("arxiv query failed", "category_id", q.CategoryID, "name", q.Name, "error", err.Error())
			papers = nil
		}
		logger.Info("fetched arxiv query", "category_id", q.CategoryID, "name", q.Name, "count", len(papers))
		all = append(all, papers...)

		if i < len(Queries)-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.rateLimit):
			}
		}
	}
	return deduplicate(all), nil
}

func (c *Client) fetchQuery(ctx context.Context, q Query, start, end time.Time) ([]core.Paper, error) {
	dateQuery := fmt.Sprintf("%s+AND+submittedDate:[%s+TO+%s]",
		strings.ReplaceAll(q.Query, " ", "+"), arxivDateStamp(start), arxivDateStamp(end))
	url := fmt.Sprintf("%s?search_query=%s&start=0&sortBy=submittedDate&sortOrder=descending&max_results=%d",
		arxivAPIBase, dateQuery, q.MaxResults)

	var body []byte
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("request failed: %w", err)
		}
		if resp.StatusCode == http.StatusServiceUnavailable {
			resp.Body.Close()
			wait := c.rateLimit * time.Duration(pow3(attempt))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
			continue
		}
		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
		}
		data, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("read response body: %w", err)
		}
		body = data
		break
	}
	if body == nil {
		return nil, fmt.Errorf("exhausted %d retries against arXiv", c.maxRetries)
	}

	return parseEntries(body, q, start, end)
}

func parseEntries(body []byte, q Query, start, end time.Time) ([]core.Paper, error) {
	var feed atomFeed
	if err := xml.Unmarshal(body, &feed); err != nil {
		return nil, fmt.Errorf("parse atom feed: %w", err)
	}

	var papers []core.Paper
	for _, e := range feed.Entries {
		p, ok := parseEntry(e, q, start, end)
		if ok {
			papers = append(papers, p)
		}
	}
	return papers, nil
}

func parseEntry(e atomEntry, q Query, start, end time.Time) (core.Paper, bool) {
	published, err := parseDatetime(e.Published)
	if err != nil {
		return core.Paper{}, false
	}
	if published.Before(start) || !published.Before(end) {
		return core.Paper{}, false
	}

	id := extractArxivID(e.ID)
	if id == "" {
		return core.Paper{}, false
	}

	authors := make([]string, 0, len(e.Authors))
	for _, a := range e.Authors {
		authors = append(authors, a.Name)
	}

	var pdfURL string
	for _, l := range e.Links {
		if l.Title == "pdf" {
			pdfURL = l.Href
			break
		}
	}

	categories := make([]string, 0, len(e.Categories))
	for _, c := range e.Categories {
		categories = append(categories, c.Term)
	}

	return core.Paper{
		ArxivID:         id,
		Title:           normalizeText(e.Title),
		Abstract:        normalizeText(e.Summary),
		Authors:         authors,
		PDFURL:          pdfURL,
		PrimaryCategory: e.Primary.Term,
		AllCategories:   categories,
		PublishedAt:     published,
		MatchedQueries:  []int{q.CategoryID},
	}, true
}

// extractArxivID strips the abs/version suffix from an Atom entry id
// URL, handling both the modern (YYMM.NNNNN) and legacy (archive/NNNNNNN)
// identifier formats.
func extractArxivID(raw string) string {
	if m := modernIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	if m := legacyIDPattern.FindStringSubmatch(raw); m != nil {
		return m[1]
	}
	return ""
}

// arxivDateStamp formats a time as arXiv's submittedDate range boundary
// format (YYYYMMDDHHMM), per spec §4.5 step 2.
func arxivDateStamp(t time.Time) string {
	return t.UTC().Format("200601021504")
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func parseDatetime(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05Z", s)
}

// deduplicate merges papers sharing an arxiv id, keeping the first-seen
// paper's metadata and unioning matched_queries across occurrences.
func deduplicate(papers []core.Paper) []core.Paper {
	seen := make(map[string]int, len(papers))
	var out []core.Paper
	for _, p := range papers {
		if idx, ok := seen[p.ArxivID]; ok {
			out[idx].MatchedQueries = mergeInts(out[idx].MatchedQueries, p.MatchedQueries)
			continue
		}
		seen[p.ArxivID] = len(out)
		out = append(out, p)
	}
	return out
}

func mergeInts(a, b []int) []int {
	present := make(map[int]bool, len(a))
	for _, v := range a {
		present[v] = true
	}
	for _, v := range b {
		if !present[v] {
			a = append(a, v)
			present[v] = true
		}
	}
	return a
}

func pow3(n int) int64 {
	r := int64(1)
	for i := 0; i < n; i++ {
		r *= 3
	}
	return r
}
