package llmservice

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"

	"mediachat/internal/config"
	"mediachat/internal/models"
)

// NewChatModel builds the chat backend. "openai" covers any OpenAI-compatible
// server, llama.cpp and OpenRouter included.
func NewChatModel(llmConfig *config.LLMConfig) (llms.Model, error) {
	log.Debug().Str("provider", llmConfig.Provider).Str("model", llmConfig.Model).Str("base_url", llmConfig.BaseURL).Msg("Creating chat model")
	switch llmConfig.Provider {
	case "ollama":
		opts := []ollama.Option{ollama.WithModel(llmConfig.Model)}
		if llmConfig.BaseURL != "" {
			opts = append(opts, ollama.WithServerURL(llmConfig.BaseURL))
		}
		llm, err := ollama.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	case "openai":
		opts := []openai.Option{
			openai.WithModel(llmConfig.Model),
			openai.WithToken(Token(llmConfig.Key)),
		}
		if llmConfig.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(llmConfig.BaseURL))
		}
		llm, err := openai.New(opts...)
		if err != nil {
			return nil, err
		}
		return llm, nil
	default:
		return nil, fmt.Errorf("unsupported chat provider: %s", llmConfig.Provider)
	}
}

// Token strips a "Bearer " prefix. Local OpenAI-compatible servers take any
// non-empty token.
func Token(key string) string {
	key = strings.TrimPrefix(key, "Bearer ")
	if key == "" {
		return "no-key"
	}
	return key
}

// GenerateContent makes one blocking backend call bounded by timeout and
// returns the first choice. Failures are ErrBackendUnavailable or ErrTimeout.
func GenerateContent(ctx context.Context, llm llms.Model, timeout time.Duration, messages []llms.MessageContent, opts ...llms.CallOption) (string, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()
	res, err := llm.GenerateContent(ctx, messages, opts...)
	if err != nil {
		return "", models.Classify(models.ErrBackendUnavailable, "generate", err)
	}
	if len(res.Choices) == 0 {
		return "", fmt.Errorf("generate: %w: empty response", models.ErrBackendUnavailable)
	}
	log.Debug().Dur("took", time.Since(start)).Int("messages", len(messages)).Msg("Generated content")
	return res.Choices[0].Content, nil
}

// MessagesFromTurns converts chat history into langchaingo messages.
func MessagesFromTurns(turns []models.ConversationTurn) []llms.MessageContent {
	messages := make([]llms.MessageContent, 0, len(turns))
	for _, turn := range turns {
		role := llms.ChatMessageTypeHuman
		if turn.Role == models.RoleAssistant {
			role = llms.ChatMessageTypeAI
		}
		messages = append(messages, llms.TextParts(role, turn.Content))
	}
	return messages
}
