package bud

import (
	"context"
	"fmt"
	"net/url"
)

// Model describes a model available through the gateway.
type Model struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ModelList is the response to a model listing request.
type ModelList struct {
	Object string  `json:"object"`
	Data   []Model `json:"data"`
}

// ModelsService lists and retrieves models.
type ModelsService struct {
	client *Client
}

// List returns the models available to the caller.
func (s *ModelsService) List(ctx context.Context) (*ModelList, error) {
	var out ModelList
	if err := s.client.get(ctx, "/v1/models", &out); err != nil {
		return nil, fmt.Errorf("bud: list models: %w", err)
	}
	return &out, nil
}

// Get retrieves a single model by ID.
func (s *ModelsService) Get(ctx context.Context, id string) (*Model, error) {
	if id == "" {
		return nil, fmt.Errorf("bud: get model: id is required")
	}
	var out Model
	if err := s.client.get(ctx, "/v1/models/"+url.PathEscape(id), &out); err != nil {
		return nil, fmt.Errorf("bud: get model %q: %w", id, err)
	}
	return &out, nil
}
