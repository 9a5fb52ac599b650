package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"mediachat/internal/config"
	"mediachat/internal/llmservice"
	"mediachat/internal/models"
)

// NewEmbedder creates an embedder for the configured provider
func NewEmbedder(llmConfig *config.LLMConfig) (embeddings.Embedder, error) {
	log.Debug().Interface("config", map[string]string{
		"provider":        llmConfig.Provider,
		"base_url":        llmConfig.BaseURL,
		"embedding_model": llmConfig.Model,
	}).Msg("Creating embedder")

	var client embeddings.EmbedderClient
	switch llmConfig.Provider {
	case "hash":
		return NewHashEmbedder(0), nil
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create ollama embedder: %w", err)
		}
		client = llm
	case "openai":
		opts := []openai.Option{
			openai.WithModel(llmConfig.Model),
			openai.WithEmbeddingModel(llmConfig.Model),
			openai.WithToken(llmservice.Token(llmConfig.Key)),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, fmt.Errorf("failed to create openai embedder: %w", err)
		}
		client = llm
	default:
		return nil, fmt.Errorf("unsupported embedding provider: %s", llmConfig.Provider)
	}

	embedder, err := embeddings.NewEmbedder(client)
	if err != nil {
		return nil, fmt.Errorf("failed to create embedder: %w", err)
	}
	return embedder, nil
}

// EmbeddingFunc adapts a langchaingo embedder to chromem. Each call gets its
// own timeout and failures are reported as ErrBackendUnavailable or ErrTimeout.
func EmbeddingFunc(embedder embeddings.Embedder, timeout time.Duration) chromem.EmbeddingFunc {
	return func(ctx context.Context, text string) ([]float32, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		vec, err := embedder.EmbedQuery(ctx, text)
		if err != nil {
			return nil, models.Classify(models.ErrBackendUnavailable, "embed", err)
		}
		if len(vec) == 0 {
			return nil, fmt.Errorf("embed: %w: empty embedding", models.ErrBackendUnavailable)
		}
		return vec, nil
	}
}
