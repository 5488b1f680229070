// Package embeddings is the embedding client (C2): given a batch of
// texts, return one fixed-dimension dense vector per input, in order.
package embeddings

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// Client wraps the OpenAI embeddings endpoint. It is rate-limit unaware:
// it applies no pacing or retry of its own. Embed splits oversized
// batches into chunks of at most batchSize.
type Client struct {
	api        *openai.Client
	model      string
	dimensions int
	batchSize  int
}

// NewClient builds an embedding client for the given model. dimensions is
// the fixed D every vector must have (1536 in the reference); batchSize is
// the provider's batch cap M (≈2048), above which requests are chunked.
func NewClient(apiKey, model string, dimensions, batchSize int) (*Client, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("embeddings: API key is required")
	}
	if batchSize <= 0 {
		batchSize = 2048
	}
	return &Client{
		api:        openai.NewClient(apiKey),
		model:      model,
		dimensions: dimensions,
		batchSize:  batchSize,
	}, nil
}

// Embed returns one vector per input text, in input order. Oversized
// batches are split into contiguous chunks and concatenated; a failure on
// any chunk is fatal to the whole call (no partial result), matching the
// reference's "chunk failures are fatal to the whole L2 stage" contract.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	result := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := start + c.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := c.embedChunk(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embed chunk [%d:%d]: %w", start, end, err)
		}
		result = append(result, chunk...)
	}
	return result, nil
}

func (c *Client) embedChunk(ctx context.Context, texts []string) ([][]float64, error) {
	req := openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(c.model),
		Dimensions: c.dimensions,
	}
	resp, err := c.api.CreateEmbeddings(ctx, req)
	if err != nil {
		return nil, err
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding provider returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float64, len(texts))
	for _, d := range resp.Data {
		vec := make([]float64, len(d.Embedding))
		for i, f := range d.Embedding {
			vec[i] = float64(f)
		}
		out[d.Index] = vec
	}
	return out, nil
}
