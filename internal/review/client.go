// Package review is the full-text LLM review client (C4): given a
// paper's PDF bytes plus its quick L3 summary, produce the structured
// Post-L3 detail review.
package review

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/genai"

	"curator/internal/core"
)

const systemPrompt = `You are a senior AI research engineer writing a deep-dive review of a paper for a team of practitioners. You have the full PDF text and a short prior summary. Produce a structured review covering background, novelty, technical approach, theoretical grounding, experimental results, and business impact, tailored to three audiences (AI engineer, mathematician, business stakeholder) and three difficulty levels (beginner, intermediate, expert). Only include a section if the paper actually supports it with content; omit sections the paper does not address. If the PDF contains figures or tables, describe what each one shows.`

const userPromptTemplate = `## Paper
Title: %s
Prior one-line summary: %s

The full paper PDF is attached. Write the structured detail review.`

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"sections": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"key":     {Type: genai.TypeString},
					"title":   {Type: genai.TypeString},
					"content": {Type: genai.TypeString},
				},
				Required: []string{"key", "title", "content"},
			},
		},
		"perspectives": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"ai_engineer":   {Type: genai.TypeString},
				"mathematician": {Type: genai.TypeString},
				"business":      {Type: genai.TypeString},
			},
			Required: []string{"ai_engineer", "mathematician", "business"},
		},
		"levels": {
			Type: genai.TypeObject,
			Properties: map[string]*genai.Schema{
				"beginner":     {Type: genai.TypeString},
				"intermediate": {Type: genai.TypeString},
				"expert":       {Type: genai.TypeString},
			},
			Required: []string{"beginner", "intermediate", "expert"},
		},
		"figure_analysis": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"figure_index": {Type: genai.TypeInteger},
					"description":  {Type: genai.TypeString},
				},
				Required: []string{"figure_index", "description"},
			},
		},
		"one_line_takeaway": {Type: genai.TypeString},
	},
	Required: []string{"sections", "perspectives", "levels", "one_line_takeaway"},
}

// Client calls Gemini with the paper's PDF bytes inlined as a Part to
// produce the Post-L3 detail review.
type Client struct {
	gClient     *genai.Client
	model       string
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewClient builds a review client against the given model.
func NewClient(ctx context.Context, apiKey, model string, maxRetries int, backoffBase, backoffMax time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("review: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("review: create genai client: %w", err)
	}
	return &Client{
		gClient:     gc,
		model:       model,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}, nil
}

// Review generates the detail review for one relevant paper. It retries
// up to maxRetries times on parse failure or transport error, with the
// same backoff schedule as the judgement client.
func (c *Client) Review(ctx context.Context, title, priorSummary string, pdfBytes []byte) (*core.DetailReview, error) {
	prompt := fmt.Sprintf(userPromptTemplate, title, priorSummary)

	for attempt := 0; attempt < c.maxRetries; attempt++ {
		dr, err := c.callOnce(ctx, prompt, pdfBytes)
		if err == nil {
			return dr, nil
		}

		wait := backoffFor(c.backoffBase, c.backoffMax, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, nil
}

func (c *Client) callOnce(ctx context.Context, prompt string, pdfBytes []byte) (*core.DetailReview, error) {
	resp, err := c.gClient.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Parts: []*genai.Part{
			{InlineData: &genai.Blob{Data: pdfBytes, MIMEType: "application/pdf"}},
			{Text: prompt},
		}}},
		&genai.GenerateContentConfig{
			SystemInstruction: &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
			ResponseMIMEType:  "application/json",
			ResponseSchema:    responseSchema,
			Temperature:       genai.Ptr(float32(0.3)),
			MaxOutputTokens:   4096,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	var dr core.DetailReview
	if err := json.Unmarshal([]byte(text), &dr); err != nil {
		return nil, err
	}
	return &dr, nil
}

func backoffFor(base, max time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		return max
	}
	return d
}
