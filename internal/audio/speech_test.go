package audio

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/models"
)

func TestWhisperClientRecognize(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "whisper-1", r.FormValue("model"))
		assert.Equal(t, "en", r.FormValue("language"))

		file, header, err := r.FormFile("file")
		require.NoError(t, err)
		defer file.Close()
		data, _ := io.ReadAll(file)
		assert.Equal(t, "clip.wav", header.Filename)
		assert.Equal(t, "RIFF", string(data))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"text":"hello world","language":"en"}`))
	}))
	defer srv.Close()

	client := &WhisperClient{BaseURL: srv.URL + "/v1/", Key: "secret", Model: "whisper-1", Language: "en"}
	text, err := client.Recognize(context.Background(), strings.NewReader("RIFF"), "clip.wav")
	require.NoError(t, err)
	assert.Equal(t, "hello world", text)
}

func TestWhisperClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	client := &WhisperClient{BaseURL: srv.URL, Model: "whisper-1"}
	_, err := client.Recognize(context.Background(), strings.NewReader("RIFF"), "clip.wav")
	assert.ErrorIs(t, err, models.ErrService)
	assert.ErrorContains(t, err, "quota exceeded")
}

func TestWhisperClientUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := &WhisperClient{BaseURL: url, Model: "whisper-1"}
	_, err := client.Recognize(context.Background(), strings.NewReader("RIFF"), "clip.wav")
	assert.ErrorIs(t, err, models.ErrService)
}

func TestTTSClientSpeak(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/audio/speech", r.URL.Path)
		var req speechRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, speechRequest{Model: "tts-1", Input: `say "hi"`, Voice: "alloy", ResponseFormat: "mp3"}, req)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3mp3"))
	}))
	defer srv.Close()

	client := &TTSClient{BaseURL: srv.URL, Model: "tts-1", Voice: "alloy"}
	body, err := client.Speak(context.Background(), `say "hi"`)
	require.NoError(t, err)
	defer body.Close()
	data, _ := io.ReadAll(body)
	assert.Equal(t, "ID3mp3", string(data))
}

func TestTTSClientHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad voice", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := (&TTSClient{BaseURL: srv.URL}).Speak(context.Background(), "hi")
	assert.ErrorIs(t, err, models.ErrService)
}
