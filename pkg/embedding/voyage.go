package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

const (
	voyageBaseURL = "https://api.voyageai.com/v1"

	// MaxBatchSize is the upstream per-request input limit.
	MaxBatchSize = 50
)

// voyageDimensions maps known models to their output dimension.
var voyageDimensions = map[string]int{
	"voyage-3":         1024,
	"voyage-3-large":   1024,
	"voyage-3-lite":    512,
	"voyage-code-3":    1024,
	"voyage-finance-2": 1024,
}

// VoyageProvider implements Provider for the Voyage AI embeddings API.
type VoyageProvider struct {
	baseURL    string
	apiKey     string
	model      string
	dimension  int
	httpClient *http.Client
}

// VoyageConfig configures a VoyageProvider.
type VoyageConfig struct {
	APIKey  string
	Model   string        // default voyage-3
	BaseURL string        // override for tests
	Timeout time.Duration // default 30s
}

// NewVoyageProvider creates a Voyage embedding provider. A missing API key
// fails here, before any network call is attempted.
func NewVoyageProvider(cfg VoyageConfig) (*VoyageProvider, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	model := cfg.Model
	if model == "" {
		model = "voyage-3"
	}
	dimension, ok := voyageDimensions[model]
	if !ok {
		dimension = 1024
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = voyageBaseURL
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &VoyageProvider{
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		model:      model,
		dimension:  dimension,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

func (p *VoyageProvider) Dimension() int {
	return p.dimension
}

type voyageRequest struct {
	Input     []string `json:"input"`
	Model     string   `json:"model"`
	InputType string   `json:"input_type"`
}

type voyageItem struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type voyageResponse struct {
	Data  []voyageItem `json:"data"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *VoyageProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.embed(ctx, []string{text}, InputQuery)
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedDocument embeds texts in document mode, splitting the input into
// batches of MaxBatchSize. Batches are issued sequentially; each response
// is re-sorted by its per-item index before concatenation, since the
// provider may reorder items.
func (p *VoyageProvider) EmbedDocument(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += MaxBatchSize {
		end := start + MaxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch, err := p.embed(ctx, texts[start:end], InputDocument)
		if err != nil {
			return nil, fmt.Errorf("batch %d-%d: %w", start, end, err)
		}
		vectors = append(vectors, batch...)
	}
	return vectors, nil
}

func (p *VoyageProvider) embed(ctx context.Context, texts []string, inputType InputType) ([][]float32, error) {
	body, err := json.Marshal(voyageRequest{Input: texts, Model: p.model, InputType: string(inputType)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to call Voyage API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("voyage API error (status %d): %s", resp.StatusCode, string(b))
	}

	var result voyageResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	if len(result.Data) == 0 {
		return nil, fmt.Errorf("voyage API returned no embeddings")
	}
	if len(result.Data) != len(texts) {
		return nil, fmt.Errorf("voyage API returned %d embeddings for %d inputs", len(result.Data), len(texts))
	}

	// Restore submission order. The API tags each item with its input
	// index and does not guarantee response ordering.
	sort.Slice(result.Data, func(i, j int) bool {
		return result.Data[i].Index < result.Data[j].Index
	})

	vectors := make([][]float32, len(result.Data))
	for i, item := range result.Data {
		if len(item.Embedding) == 0 {
			return nil, fmt.Errorf("voyage API returned empty embedding at index %d", item.Index)
		}
		vectors[i] = item.Embedding
	}
	return vectors, nil
}
