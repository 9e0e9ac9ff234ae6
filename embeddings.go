package bud

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"
)

// defaultEmbeddingBatchSize is the number of inputs sent per request when
// batching large embedding jobs.
const defaultEmbeddingBatchSize = 100

// EmbeddingRequest is the request body for embeddings.
type EmbeddingRequest struct {
	Model          string   `json:"model"`
	Input          []string `json:"input"`
	EncodingFormat string   `json:"encoding_format,omitempty"`
	Dimensions     int      `json:"dimensions,omitempty"`
	User           string   `json:"user,omitempty"`
}

// Embedding is a single embedding vector with its position in the input.
type Embedding struct {
	Object    string    `json:"object"`
	Index     int       `json:"index"`
	Embedding []float64 `json:"embedding"`
}

// EmbeddingResponse is the response to an embedding request.
type EmbeddingResponse struct {
	Object string      `json:"object"`
	Model  string      `json:"model"`
	Data   []Embedding `json:"data"`
	Usage  Usage       `json:"usage"`
}

// EmbeddingsService creates embeddings against the gateway.
type EmbeddingsService struct {
	client *Client
}

// Create generates embeddings for the given inputs in a single request.
func (s *EmbeddingsService) Create(ctx context.Context, req *EmbeddingRequest) (*EmbeddingResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("bud: embeddings: model is required")
	}
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("bud: embeddings: at least one input is required")
	}
	var out EmbeddingResponse
	if err := s.client.post(ctx, "/v1/embeddings", req, &out); err != nil {
		return nil, fmt.Errorf("bud: embeddings: %w", err)
	}
	return &out, nil
}

// BatchOptions controls CreateBatches behavior.
type BatchOptions struct {
	// BatchSize is the number of inputs per request. Defaults to 100.
	BatchSize int
	// Concurrency limits in-flight requests. Defaults to 4.
	Concurrency int
}

// CreateBatches splits a large input set into batches, issues them
// concurrently, and merges the results back into input order. Usage counts
// are summed across batches. If any batch fails the whole call fails.
func (s *EmbeddingsService) CreateBatches(ctx context.Context, req *EmbeddingRequest, opts BatchOptions) (*EmbeddingResponse, error) {
	if req.Model == "" {
		return nil, fmt.Errorf("bud: embeddings: model is required")
	}
	if len(req.Input) == 0 {
		return nil, fmt.Errorf("bud: embeddings: at least one input is required")
	}
	batchSize := opts.BatchSize
	if batchSize <= 0 {
		batchSize = defaultEmbeddingBatchSize
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = 4
	}

	if len(req.Input) <= batchSize {
		return s.Create(ctx, req)
	}

	numBatches := (len(req.Input) + batchSize - 1) / batchSize
	results := make([]*EmbeddingResponse, numBatches)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for i := 0; i < numBatches; i++ {
		start := i * batchSize
		end := min(start+batchSize, len(req.Input))
		g.Go(func() error {
			batch := *req
			batch.Input = req.Input[start:end]
			resp, err := s.Create(ctx, &batch)
			if err != nil {
				return fmt.Errorf("batch %d: %w", i, err)
			}
			results[i] = resp
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("bud: embeddings batches: %w", err)
	}

	merged := &EmbeddingResponse{
		Object: "list",
		Model:  req.Model,
		Data:   make([]Embedding, 0, len(req.Input)),
	}
	offset := 0
	for _, resp := range results {
		for _, emb := range resp.Data {
			emb.Index += offset
			merged.Data = append(merged.Data, emb)
		}
		offset += len(resp.Data)
		merged.Usage.PromptTokens += resp.Usage.PromptTokens
		merged.Usage.CompletionTokens += resp.Usage.CompletionTokens
		merged.Usage.TotalTokens += resp.Usage.TotalTokens
	}
	return merged, nil
}
