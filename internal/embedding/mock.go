package embedding

import (
	"context"
	"hash/fnv"
)

const mockDims = 64

// MockClient produces deterministic embeddings derived from the text so
// identical strings map to identical vectors and similar tests stay
// reproducible without network access.
type MockClient struct{}

func NewMockClient() *MockClient {
	return &MockClient{}
}

func (c *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, mockDims)
	h := fnv.New64a()
	_, _ = h.Write([]byte(text))
	seed := h.Sum64()
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed>>33)%1000) / 1000
	}
	return vec, nil
}
