package audio

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/models"
)

// copyConverter writes a fixed WAV payload instead of running ffmpeg.
type copyConverter struct {
	wav []byte
	err error
}

func (c copyConverter) Convert(_ context.Context, _, dst string) error {
	if c.err != nil {
		return c.err
	}
	return os.WriteFile(dst, c.wav, 0o644)
}

type fakeRecognizer struct {
	text string
	err  error
	got  int
}

func (f *fakeRecognizer) Recognize(_ context.Context, audio io.Reader, _ string) (string, error) {
	data, _ := io.ReadAll(audio)
	f.got = len(data)
	return f.text, f.err
}

type fakeSpeaker struct {
	err error
}

func (f fakeSpeaker) Speak(context.Context, string) (io.ReadCloser, error) {
	if f.err != nil {
		return nil, f.err
	}
	return io.NopCloser(strings.NewReader("ID3audio")), nil
}

func testWAV(t *testing.T) []byte {
	t.Helper()
	data, err := EncodeWAV(sineSamples(16000, 0.2), 16000)
	require.NoError(t, err)
	return data
}

func inputFile(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "voice.mp3")
	require.NoError(t, os.WriteFile(path, []byte("ID3fake"), 0o644))
	return path
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestTranscribe(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "temp_files")
	rec := &fakeRecognizer{text: "  turn left at the lights \n"}
	p := NewProcessor(copyConverter{wav: testWAV(t)}, rec, fakeSpeaker{}, tempDir, 0)

	text, err := p.Transcribe(context.Background(), inputFile(t))
	require.NoError(t, err)
	assert.Equal(t, "turn left at the lights", text)
	assert.Equal(t, 44+3200*2, rec.got)
	assertEmptyDir(t, tempDir)
}

func TestTranscribeErrors(t *testing.T) {
	convErr := models.Classify(models.ErrConversion, "ffmpeg", errors.New("exit status 1"))
	valid := testWAV(t)

	tests := []struct {
		name      string
		converter Converter
		rec       *fakeRecognizer
		want      error
	}{
		{"conversion fails", copyConverter{err: convErr}, &fakeRecognizer{text: "x"}, models.ErrConversion},
		{"empty output", copyConverter{}, &fakeRecognizer{text: "x"}, models.ErrConversion},
		{"not a wav", copyConverter{wav: []byte(strings.Repeat("x", 100))}, &fakeRecognizer{text: "x"}, models.ErrConversion},
		{"silence", copyConverter{wav: valid}, &fakeRecognizer{text: "   "}, models.ErrUnrecognizedSpeech},
		{"service down", copyConverter{wav: valid}, &fakeRecognizer{err: errors.New("connection refused")}, models.ErrService},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tempDir := filepath.Join(t.TempDir(), "temp_files")
			p := NewProcessor(tt.converter, tt.rec, fakeSpeaker{}, tempDir, 0)

			text, err := p.Transcribe(context.Background(), inputFile(t))
			assert.ErrorIs(t, err, tt.want)
			assert.Empty(t, text)
			assertEmptyDir(t, tempDir)
		})
	}
}

func TestTranscribeMissingFile(t *testing.T) {
	p := NewProcessor(copyConverter{}, &fakeRecognizer{}, fakeSpeaker{}, t.TempDir(), 0)

	_, err := p.Transcribe(context.Background(), filepath.Join(t.TempDir(), "missing.wav"))
	assert.ErrorIs(t, err, models.ErrIO)
	assert.Equal(t, "IOError", models.Kind(err))
}

func TestSynthesize(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "temp_files")
	p := NewProcessor(copyConverter{}, &fakeRecognizer{}, fakeSpeaker{}, tempDir, 0)

	path, err := p.Synthesize(context.Background(), "Paris.")
	require.NoError(t, err)
	assert.Equal(t, tempDir, filepath.Dir(path))
	assert.Equal(t, ".mp3", filepath.Ext(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "ID3audio", string(data))

	second, err := p.Synthesize(context.Background(), "Paris.")
	require.NoError(t, err)
	assert.NotEqual(t, path, second)
}

func TestSynthesizeErrors(t *testing.T) {
	tempDir := filepath.Join(t.TempDir(), "temp_files")
	p := NewProcessor(copyConverter{}, &fakeRecognizer{}, fakeSpeaker{err: errors.New("boom")}, tempDir, 0)

	_, err := p.Synthesize(context.Background(), "hello")
	assert.ErrorIs(t, err, models.ErrService)
	assertEmptyDir(t, tempDir)

	_, err = p.Synthesize(context.Background(), "  ")
	assert.ErrorIs(t, err, models.ErrService)
}
