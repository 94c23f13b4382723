package embedding

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGeminiEmbedRequestShape(t *testing.T) {
	var captured struct {
		path    string
		key     string
		payload map[string]any
	}
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured.path = r.URL.Path
		captured.key = r.URL.Query().Get("key")
		json.NewDecoder(r.Body).Decode(&captured.payload)
		fmt.Fprint(w, `{"embedding":{"values":[0.1,0.2,0.3]}}`)
	}))
	defer ts.Close()

	g, err := NewGemini(GeminiConfig{BaseURL: ts.URL, APIKey: "secret"})
	require.NoError(t, err)

	vec, err := g.Embed(context.Background(), "tabique de ladrillo")
	require.NoError(t, err)
	assert.Equal(t, []float64{0.1, 0.2, 0.3}, vec)

	assert.Equal(t, "/models/text-embedding-004:embedContent", captured.path)
	assert.Equal(t, "secret", captured.key)
	// Queries must be embedded with retrieval-query intent to stay
	// consistent with the indexed corpus.
	assert.Equal(t, "RETRIEVAL_QUERY", captured.payload["taskType"])
}

func TestGeminiEmbedFailsLoudlyOnProviderError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusForbidden)
	}))
	defer ts.Close()

	g, err := NewGemini(GeminiConfig{BaseURL: ts.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "HTTP 403")
}

func TestGeminiEmbedRejectsEmptyVector(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `{"embedding":{"values":[]}}`)
	}))
	defer ts.Close()

	g, err := NewGemini(GeminiConfig{BaseURL: ts.URL, APIKey: "k"})
	require.NoError(t, err)

	_, err = g.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "empty embedding")
}

func TestNewGeminiRequiresKey(t *testing.T) {
	_, err := NewGemini(GeminiConfig{})
	assert.Error(t, err)
}
