package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockProvider generates deterministic embeddings for tests.
type MockProvider struct {
	dimension int
}

func NewMockProvider(dimension int) *MockProvider {
	return &MockProvider{dimension: dimension}
}

func (p *MockProvider) Dimension() int {
	return p.dimension
}

func (p *MockProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedDocument(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (p *MockProvider) EmbedDocument(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		hash := 0
		for _, c := range text {
			hash = hash*31 + int(c)
		}
		vec := make([]float32, p.dimension)
		for j := 0; j < p.dimension; j++ {
			vec[j] = float32((hash+j)%100) / 100.0
		}
		vectors[i] = vec
	}
	return vectors, nil
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a    []float32
		b    []float32
		want float64
	}{
		{name: "identical", a: []float32{1, 0, 0}, b: []float32{1, 0, 0}, want: 1},
		{name: "orthogonal", a: []float32{1, 0}, b: []float32{0, 1}, want: 0},
		{name: "opposite", a: []float32{1, 0}, b: []float32{-1, 0}, want: -1},
		{name: "mismatched lengths", a: []float32{1, 0}, b: []float32{1}, want: 0},
		{name: "zero vector", a: []float32{0, 0}, b: []float32{1, 1}, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, CosineSimilarity(tt.a, tt.b), 1e-9)
		})
	}
}

func TestMockProvider_Deterministic(t *testing.T) {
	p := NewMockProvider(64)

	first, err := p.EmbedQuery(context.Background(), "stable text")
	require.NoError(t, err)
	second, err := p.EmbedQuery(context.Background(), "stable text")
	require.NoError(t, err)

	assert.InDelta(t, 1.0, CosineSimilarity(first, second), 1e-6)
}
