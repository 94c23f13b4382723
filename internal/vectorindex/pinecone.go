package vectorindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Pinecone is a minimal REST client to a Pinecone index. It queries
// with includeMetadata and trusts the index to return matches sorted
// by descending score.
type Pinecone struct {
	indexURL string
	apiKey   string
	client   *http.Client
}

// PineconeConfig configures the Pinecone index client.
type PineconeConfig struct {
	IndexURL string
	APIKey   string
	Timeout  time.Duration
}

// NewPinecone creates a Pinecone index client.
func NewPinecone(cfg PineconeConfig) (*Pinecone, error) {
	if cfg.IndexURL == "" {
		return nil, fmt.Errorf("pinecone: missing index URL")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("pinecone: missing API key")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &Pinecone{
		indexURL: strings.TrimRight(cfg.IndexURL, "/"),
		apiKey:   cfg.APIKey,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

type pineconeQuery struct {
	Vector          []float64 `json:"vector"`
	TopK            int       `json:"topK"`
	IncludeMetadata bool      `json:"includeMetadata"`
}

type pineconeResponse struct {
	Matches []struct {
		Score    float64        `json:"score"`
		Metadata map[string]any `json:"metadata"`
	} `json:"matches"`
}

// Query returns up to topK similar historical items for the vector.
// Any non-2xx response is an error; retrieval failures are fatal for
// the batch, not absorbed.
func (p *Pinecone) Query(ctx context.Context, vector []float64, topK int) ([]Match, error) {
	body, err := json.Marshal(pineconeQuery{
		Vector:          vector,
		TopK:            topK,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, fmt.Errorf("pinecone: encoding query: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.indexURL+"/query", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("pinecone: creating request: %w", err)
	}
	req.Header.Set("Api-Key", p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("pinecone: query request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("pinecone: query returned HTTP %d", resp.StatusCode)
	}

	var out pineconeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("pinecone: parsing response: %w", err)
	}

	matches := make([]Match, 0, len(out.Matches))
	for _, m := range out.Matches {
		matches = append(matches, Match{
			Score:    m.Score,
			Metadata: ParseMetadata(m.Metadata),
		})
	}
	return matches, nil
}
