// Package judge is the LLM judgement client (C3): a structured-output
// call that returns a small JSON verdict for a (title, abstract,
// pre-filter context) input.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"google.golang.org/genai"

	"curator/internal/core"
)

const systemPrompt = `You are an expert AI/ML research curator specializing in systems engineering and infrastructure. Your task is to evaluate whether an academic paper is relevant to practitioners working on LLM systems, and if so, classify and summarize it.

## Categories
1. Foundation Models & Architecture — Model architectures (Transformer, Mamba, MoE, multimodal)
2. Training & Tuning — RLHF, DPO, LoRA, efficient training methods
3. Application Engineering — RAG, agents, multi-agent systems, prompt optimization
4. Infrastructure & Inference Optimization — Serving (vLLM, TGI), KV Cache, quantization, edge AI, distributed training [HIGHEST PRIORITY]
5. Evaluation & Safety — Benchmarks, jailbreak, hallucination, bias
6. Regulation & Business — AI policy, copyright, watermarking

## Evaluation Criteria
- The paper must contain ACTIONABLE technical insights for LLM engineers
- Pure linguistics, cognitive science, or social science papers should be marked as NOT relevant
- Papers about traditional ML (non-LLM) should be marked as NOT relevant unless they directly apply to LLM infrastructure
- Infrastructure papers (Category 4) should have a LOWER threshold for relevance — include if there is any systems-level insight

## Output Rules
- summary_ja: Write a single-line Japanese summary focusing on the TECHNICAL contribution. Max 100 characters.
- importance: Rate 1-5 based on novelty and practical impact for LLM engineers`

const userPromptTemplate = `## Paper
Title: %s
Abstract: %s

## Pre-filter Context
Best matching category: %d (%s)
Similarity score: %.4f
Categories hit (score >= 0.40): %d/6

Please evaluate this paper.`

var categoryNames = map[int]string{
	1: "Foundation Models & Architecture",
	2: "Training & Tuning",
	3: "Application Engineering",
	4: "Infrastructure & Inference Optimization",
	5: "Evaluation & Safety",
	6: "Regulation & Business",
}

var responseSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"is_relevant":            {Type: genai.TypeBoolean},
		"category_id":            {Type: genai.TypeInteger},
		"secondary_category_ids": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeInteger}},
		"confidence":             {Type: genai.TypeNumber},
		"importance":             {Type: genai.TypeInteger},
		"summary_ja":             {Type: genai.TypeString},
		"reasoning":              {Type: genai.TypeString},
	},
	Required: []string{"is_relevant", "category_id", "confidence", "importance", "summary_ja", "reasoning"},
}

// verdict mirrors the JSON shape returned by the model.
type verdict struct {
	IsRelevant           bool    `json:"is_relevant"`
	CategoryID           int     `json:"category_id"`
	SecondaryCategoryIDs []int   `json:"secondary_category_ids"`
	Confidence           float64 `json:"confidence"`
	Importance           int     `json:"importance"`
	SummaryJA            string  `json:"summary_ja"`
	Reasoning            string  `json:"reasoning"`
}

// Client calls Gemini in JSON mode to produce an L3 verdict.
type Client struct {
	gClient     *genai.Client
	model       string
	maxRetries  int
	backoffBase time.Duration
	backoffMax  time.Duration
}

// NewClient builds a judgement client against the given model.
func NewClient(ctx context.Context, apiKey, model string, maxRetries int, backoffBase, backoffMax time.Duration) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("judge: API key is required")
	}
	gc, err := genai.NewClient(ctx, &genai.ClientConfig{APIKey: apiKey, Backend: genai.BackendGeminiAPI})
	if err != nil {
		return nil, fmt.Errorf("judge: create genai client: %w", err)
	}
	return &Client{
		gClient:     gc,
		model:       model,
		maxRetries:  maxRetries,
		backoffBase: backoffBase,
		backoffMax:  backoffMax,
	}, nil
}

// Judge evaluates one L2-passed paper and returns its L3 fields. It
// retries up to maxRetries times with exponential backoff on parse
// failure, an empty response, or a transport error. Returning (nil, nil)
// means every retry was exhausted — the paper's verdict is absent, which
// is not itself an error that aborts L3 (§4.3).
func (c *Client) Judge(ctx context.Context, title, abstract string, bestCategoryID int, maxScore float64, hitCount int) (*core.L3Fields, error) {
	prompt := fmt.Sprintf(userPromptTemplate, title, abstract, bestCategoryID, categoryNames[bestCategoryID], maxScore, hitCount)

	var lastErr error
	for attempt := 0; attempt < c.maxRetries; attempt++ {
		v, err := c.callOnce(ctx, prompt)
		if err == nil {
			return &core.L3Fields{
				IsRelevant:           v.IsRelevant,
				CategoryID:           v.CategoryID,
				SecondaryCategoryIDs: v.SecondaryCategoryIDs,
				Confidence:           v.Confidence,
				Importance:           v.Importance,
				SummaryJA:            v.SummaryJA,
				Reasoning:            v.Reasoning,
			}, nil
		}
		lastErr = err

		wait := backoffFor(c.backoffBase, c.backoffMax, attempt)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	_ = lastErr
	return nil, nil
}

func (c *Client) callOnce(ctx context.Context, prompt string) (*verdict, error) {
	resp, err := c.gClient.Models.GenerateContent(ctx, c.model,
		[]*genai.Content{{Parts: []*genai.Part{{Text: prompt}}}},
		&genai.GenerateContentConfig{
			SystemInstruction:  &genai.Content{Parts: []*genai.Part{{Text: systemPrompt}}},
			ResponseMIMEType:   "application/json",
			ResponseSchema:     responseSchema,
			Temperature:        genai.Ptr(float32(0.1)),
			MaxOutputTokens:    500,
		},
	)
	if err != nil {
		return nil, fmt.Errorf("generate content: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return nil, fmt.Errorf("empty response")
	}

	var v verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, err
	}
	return &v, nil
}

func backoffFor(base, max time.Duration, attempt int) time.Duration {
	d := time.Duration(float64(base) * math.Pow(2, float64(attempt)))
	if d > max {
		return max
	}
	return d
}
