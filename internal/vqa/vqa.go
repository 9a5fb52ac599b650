package vqa

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/llms"
	"google.golang.org/genai"

	"mediachat/internal/config"
	"mediachat/internal/llmservice"
	"mediachat/internal/models"
)

// maxImageBytes bounds images fetched over HTTP.
const maxImageBytes = 20 << 20

// Answerer answers a free-form question about an image.
type Answerer interface {
	Answer(ctx context.Context, image, question string) (string, error)
}

// New builds the answerer for cfg.VQA.Provider. "ollama" and "openai" go
// through langchaingo multimodal messages, "gemini" through the genai SDK.
func New(ctx context.Context, cfg *config.Config) (Answerer, error) {
	v := cfg.VQA
	switch v.Provider {
	case "ollama", "openai":
		llm, err := llmservice.NewChatModel(&config.LLMConfig{Provider: v.Provider, BaseURL: v.BaseURL, Key: v.Key, Model: v.Model})
		if err != nil {
			return nil, err
		}
		return NewModelAnswerer(llm, cfg.Timeouts.LLM), nil
	case "gemini":
		return NewGeminiAnswerer(ctx, v.Key, v.BaseURL, v.Model, cfg.Timeouts.LLM)
	default:
		return nil, fmt.Errorf("unsupported vqa provider: %s", v.Provider)
	}
}

// LoadImage reads image from disk, or fetches it when it is an http(s) URL,
// and sniffs its MIME type.
func LoadImage(ctx context.Context, image string) ([]byte, string, error) {
	var data []byte
	var err error
	if strings.HasPrefix(image, "http://") || strings.HasPrefix(image, "https://") {
		data, err = fetch(ctx, image)
	} else {
		data, err = os.ReadFile(image)
	}
	if err != nil {
		return nil, "", fmt.Errorf("%w: load image %s: %w", models.ErrIO, image, err)
	}
	mime := http.DetectContentType(data)
	if !strings.HasPrefix(mime, "image/") {
		return nil, "", fmt.Errorf("%w: %s is not an image (%s)", models.ErrParse, image, mime)
	}
	return data, mime, nil
}

func fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

// ModelAnswerer sends the image and question to a multimodal chat model.
type ModelAnswerer struct {
	llm     llms.Model
	timeout time.Duration
}

func NewModelAnswerer(llm llms.Model, timeout time.Duration) *ModelAnswerer {
	return &ModelAnswerer{llm: llm, timeout: timeout}
}

func (a *ModelAnswerer) Answer(ctx context.Context, image, question string) (string, error) {
	data, mime, err := LoadImage(ctx, image)
	if err != nil {
		return "", err
	}
	messages := []llms.MessageContent{{
		Role: llms.ChatMessageTypeHuman,
		Parts: []llms.ContentPart{
			llms.BinaryPart(mime, data),
			llms.TextPart(question),
		},
	}}
	log.Debug().Str("image", image).Str("mime", mime).Int("bytes", len(data)).Msg("Asking vision model")
	return llmservice.GenerateContent(ctx, a.llm, a.timeout, messages)
}

// GeminiAnswerer uses the Gemini API.
type GeminiAnswerer struct {
	client  *genai.Client
	model   string
	timeout time.Duration
}

// NewGeminiAnswerer creates a genai client. baseURL is only set to point at
// a proxy or a test server.
func NewGeminiAnswerer(ctx context.Context, apiKey, baseURL, model string, timeout time.Duration) (*GeminiAnswerer, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	cc := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize genai client: %w", err)
	}
	return &GeminiAnswerer{client: client, model: model, timeout: timeout}, nil
}

func (a *GeminiAnswerer) Answer(ctx context.Context, image, question string) (string, error) {
	data, mime, err := LoadImage(ctx, image)
	if err != nil {
		return "", err
	}
	if a.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.timeout)
		defer cancel()
	}

	contents := []*genai.Content{{
		Role: genai.RoleUser,
		Parts: []*genai.Part{
			genai.NewPartFromBytes(data, mime),
			genai.NewPartFromText(question),
		},
	}}
	resp, err := a.client.Models.GenerateContent(ctx, a.model, contents, nil)
	if err != nil {
		return "", models.Classify(models.ErrBackendUnavailable, "gemini generate", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", fmt.Errorf("gemini generate: %w: empty response", models.ErrBackendUnavailable)
	}
	return text, nil
}
