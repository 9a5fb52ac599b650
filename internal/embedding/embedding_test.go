package embedding

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/config"
	"mediachat/internal/models"
)

type stubEmbedder struct {
	vec []float32
	err error
}

func (s stubEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		v, err := s.EmbedQuery(ctx, texts[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (s stubEmbedder) EmbedQuery(ctx context.Context, _ string) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	if _, ok := ctx.Deadline(); !ok {
		return nil, errors.New("expected a deadline")
	}
	return s.vec, nil
}

func TestEmbeddingFunc(t *testing.T) {
	fn := EmbeddingFunc(stubEmbedder{vec: []float32{1, 0}}, time.Second)
	vec, err := fn(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{1, 0}, vec)
}

func TestEmbeddingFuncErrors(t *testing.T) {
	fn := EmbeddingFunc(stubEmbedder{err: errors.New("dial tcp: connection refused")}, time.Second)
	_, err := fn(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)

	fn = EmbeddingFunc(stubEmbedder{err: context.DeadlineExceeded}, time.Second)
	_, err = fn(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrTimeout)

	fn = EmbeddingFunc(stubEmbedder{vec: nil}, time.Second)
	_, err = fn(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrBackendUnavailable)
}

func TestNewEmbedderUnknownProvider(t *testing.T) {
	_, err := NewEmbedder(&config.LLMConfig{Provider: "nope"})
	assert.Error(t, err)
}

func TestNewEmbedderOllama(t *testing.T) {
	e, err := NewEmbedder(&config.LLMConfig{Provider: "ollama", BaseURL: "http://127.0.0.1:1", Model: "nomic-embed-text"})
	require.NoError(t, err)
	assert.NotNil(t, e)
}

func TestHashEmbedder(t *testing.T) {
	h := NewHashEmbedder(64)
	ctx := context.Background()

	a, err := h.EmbedQuery(ctx, "Paris is the capital of France.")
	require.NoError(t, err)
	b, err := h.EmbedQuery(ctx, "paris IS the capital of france")
	require.NoError(t, err)
	assert.Len(t, a, 64)
	assert.InDeltaSlice(t, a, b, 1e-6)

	empty, err := h.EmbedQuery(ctx, "...")
	require.NoError(t, err)
	assert.InDelta(t, 1.0, empty[0], 1e-6)

	docs, err := h.EmbedDocuments(ctx, []string{"a", "b"})
	require.NoError(t, err)
	assert.Len(t, docs, 2)

	e, err := NewEmbedder(&config.LLMConfig{Provider: "hash"})
	require.NoError(t, err)
	assert.IsType(t, &HashEmbedder{}, e)
}

func TestHashEmbedderSmallDimension(t *testing.T) {
	for _, dim := range []int{0, 1} {
		h := &HashEmbedder{Dimension: dim}
		vec, err := h.EmbedQuery(context.Background(), "tiny vector")
		require.NoError(t, err)
		assert.Len(t, vec, 2)
	}
}
