package audio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"

	"mediachat/internal/models"
)

// Recognizer turns WAV audio into text.
type Recognizer interface {
	Recognize(ctx context.Context, audio io.Reader, filename string) (string, error)
}

// Speaker turns text into MP3 audio.
type Speaker interface {
	Speak(ctx context.Context, text string) (io.ReadCloser, error)
}

// WhisperClient talks to an OpenAI-compatible /audio/transcriptions endpoint
// (OpenAI, Groq, a local whisper.cpp server).
type WhisperClient struct {
	BaseURL  string
	Key      string
	Model    string
	Language string
	Client   *http.Client
}

type transcription struct {
	Text     string  `json:"text"`
	Language string  `json:"language,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// Recognize uploads the audio as multipart form data. Transport and HTTP
// failures are ErrService; the caller decides what an empty text means.
func (w *WhisperClient) Recognize(ctx context.Context, audio io.Reader, filename string) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", fmt.Errorf("create form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("%w: copy audio data: %w", models.ErrIO, err)
	}
	writer.WriteField("model", w.Model)
	writer.WriteField("response_format", "json")
	if w.Language != "" {
		writer.WriteField("language", w.Language)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(w.BaseURL, "/")+"/audio/transcriptions", &body)
	if err != nil {
		return "", fmt.Errorf("%w: create request: %w", models.ErrService, err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	if w.Key != "" {
		req.Header.Set("Authorization", "Bearer "+w.Key)
	}

	resp, err := w.client().Do(req)
	if err != nil {
		return "", models.Classify(models.ErrService, "whisper request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("%w: whisper status %d: %s", models.ErrService, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	var result transcription
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("%w: decode whisper response: %w", models.ErrService, err)
	}
	log.Debug().Int("text_len", len(result.Text)).Str("language", result.Language).Float64("duration", result.Duration).Msg("Transcription complete")
	return result.Text, nil
}

func (w *WhisperClient) client() *http.Client {
	if w.Client != nil {
		return w.Client
	}
	return http.DefaultClient
}

// TTSClient talks to an OpenAI-compatible /audio/speech endpoint.
type TTSClient struct {
	BaseURL string
	Key     string
	Model   string
	Voice   string
	Client  *http.Client
}

type speechRequest struct {
	Model          string `json:"model"`
	Input          string `json:"input"`
	Voice          string `json:"voice"`
	ResponseFormat string `json:"response_format"`
}

// Speak returns the MP3 body; the caller closes it.
func (t *TTSClient) Speak(ctx context.Context, text string) (io.ReadCloser, error) {
	payload, err := json.Marshal(speechRequest{Model: t.Model, Input: text, Voice: t.Voice, ResponseFormat: "mp3"})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(t.BaseURL, "/")+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %w", models.ErrService, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if t.Key != "" {
		req.Header.Set("Authorization", "Bearer "+t.Key)
	}

	client := t.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, models.Classify(models.ErrService, "tts request", err)
	}
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, fmt.Errorf("%w: tts status %d: %s", models.ErrService, resp.StatusCode, strings.TrimSpace(string(respBody)))
	}
	return resp.Body, nil
}
