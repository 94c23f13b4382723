// Package embedding converts free-text item descriptions into vectors
// for similarity retrieval.
package embedding

import "context"

// Embedder maps text to a fixed-length vector. Query text must be
// embedded under the same scheme as the indexed historical records.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float64, error)
}
