package vqa

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tmc/langchaingo/llms"

	"mediachat/internal/config"
	"mediachat/internal/models"
)

type visionLLM struct {
	parts []llms.ContentPart
}

func (v *visionLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, _ ...llms.CallOption) (*llms.ContentResponse, error) {
	v.parts = messages[0].Parts
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: "a red square"}}}, nil
}

func (v *visionLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, v, prompt, options...)
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := 0; x < 4; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 255, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func writeImage(t *testing.T, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "square.png")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func TestModelAnswerer(t *testing.T) {
	llm := &visionLLM{}
	data := pngBytes(t)

	answer, err := NewModelAnswerer(llm, time.Second).Answer(context.Background(), writeImage(t, data), "What colour is it?")
	require.NoError(t, err)
	assert.Equal(t, "a red square", answer)

	require.Len(t, llm.parts, 2)
	bin, ok := llm.parts[0].(llms.BinaryContent)
	require.True(t, ok)
	assert.Equal(t, "image/png", bin.MIMEType)
	assert.Equal(t, data, bin.Data)
	assert.Equal(t, llms.TextContent{Text: "What colour is it?"}, llm.parts[1])
}

func TestLoadImage(t *testing.T) {
	ctx := context.Background()

	_, _, err := LoadImage(ctx, filepath.Join(t.TempDir(), "missing.png"))
	assert.ErrorIs(t, err, models.ErrIO)

	_, _, err = LoadImage(ctx, writeImage(t, []byte("just some text")))
	assert.ErrorIs(t, err, models.ErrParse)

	data := pngBytes(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/square.png" {
			http.NotFound(w, r)
			return
		}
		w.Write(data)
	}))
	defer srv.Close()

	got, mime, err := LoadImage(ctx, srv.URL+"/square.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)
	assert.Equal(t, data, got)

	_, _, err = LoadImage(ctx, srv.URL+"/other.png")
	assert.ErrorIs(t, err, models.ErrIO)
}

func TestGeminiAnswerer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.True(t, strings.HasSuffix(r.URL.Path, "models/gemini-2.0-flash:generateContent"), r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candidates":[{"content":{"role":"model","parts":[{"text":"A red square."}]}}]}`))
	}))
	defer srv.Close()

	ctx := context.Background()
	a, err := NewGeminiAnswerer(ctx, "test-key", srv.URL+"/", "gemini-2.0-flash", time.Second)
	require.NoError(t, err)

	answer, err := a.Answer(ctx, writeImage(t, pngBytes(t)), "What is it?")
	require.NoError(t, err)
	assert.Equal(t, "A red square.", answer)
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	cfg := config.Default()
	cfg.VQA.Provider = "blip"
	_, err := New(context.Background(), cfg)
	assert.Error(t, err)

	cfg.VQA.Provider = "gemini"
	cfg.VQA.Key = ""
	_, err = New(context.Background(), cfg)
	assert.Error(t, err)
}
