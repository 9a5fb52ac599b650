package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mediachat/internal/config"
	"mediachat/internal/helper"
	"mediachat/internal/metrics"
	"mediachat/internal/models"
)

// Processor transcribes uploaded audio and synthesizes spoken answers.
type Processor struct {
	converter  Converter
	recognizer Recognizer
	speaker    Speaker
	tempDir    string
	timeout    time.Duration
}

func NewProcessor(converter Converter, recognizer Recognizer, speaker Speaker, tempDir string, timeout time.Duration) *Processor {
	return &Processor{
		converter:  converter,
		recognizer: recognizer,
		speaker:    speaker,
		tempDir:    tempDir,
		timeout:    timeout,
	}
}

// NewProcessorFromConfig wires ffmpeg and the HTTP speech clients.
func NewProcessorFromConfig(cfg *config.Config) *Processor {
	a := cfg.Audio
	return NewProcessor(
		NewFFmpeg(a.FFmpegPath, a.SampleRate, cfg.Timeouts.Conversion),
		&WhisperClient{BaseURL: a.STTBaseURL, Key: a.STTKey, Model: a.STTModel, Language: a.STTLanguage},
		&TTSClient{BaseURL: a.TTSBaseURL, Key: a.TTSKey, Model: a.TTSModel, Voice: a.TTSVoice},
		cfg.TempDir(),
		cfg.Timeouts.Speech,
	)
}

// Transcribe converts path to a temporary WAV file and sends it to the
// recognizer. The WAV file is removed on every path. Failures come back as
// typed errors, never as transcript text.
func (p *Processor) Transcribe(ctx context.Context, path string) (text string, err error) {
	defer func() {
		result := "ok"
		if err != nil {
			result = models.Kind(err)
		}
		metrics.TranscriptionsTotal.WithLabelValues(result).Inc()
	}()

	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: audio file %s: %w", models.ErrIO, path, err)
	}
	if err := helper.CreateFolder(p.tempDir); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrIO, err)
	}

	tmp, err := os.CreateTemp(p.tempDir, "transcribe-*.wav")
	if err != nil {
		return "", fmt.Errorf("%w: create temp wav: %w", models.ErrIO, err)
	}
	wavPath := tmp.Name()
	tmp.Close()
	defer func() {
		if err := os.Remove(wavPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn().Err(err).Str("file", wavPath).Msg("Failed to remove temp wav")
		}
	}()

	log.Info().Str("file", path).Msg("Converting audio")
	if err := p.converter.Convert(ctx, path, wavPath); err != nil {
		return "", err
	}

	data, err := os.ReadFile(wavPath)
	if err != nil {
		return "", fmt.Errorf("%w: read converted audio: %w", models.ErrConversion, err)
	}
	info, err := ValidateWAV(data)
	if err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrConversion, err)
	}
	log.Debug().Uint32("sample_rate", info.SampleRate).Float64("seconds", info.Duration).Msg("Converted audio")

	speechCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		speechCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	text, err = p.recognizer.Recognize(speechCtx, bytes.NewReader(data), filepath.Base(wavPath))
	if err != nil {
		return "", models.Classify(models.ErrService, "recognize", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%s: %w", filepath.Base(path), models.ErrUnrecognizedSpeech)
	}
	return text, nil
}

// Synthesize writes the spoken text to a new .mp3 file under the temp
// directory and returns its path. The caller owns the file.
func (p *Processor) Synthesize(ctx context.Context, text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: nothing to synthesize", models.ErrService)
	}
	if err := helper.CreateFolder(p.tempDir); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrIO, err)
	}

	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}
	body, err := p.speaker.Speak(ctx, text)
	if err != nil {
		return "", models.Classify(models.ErrService, "speak", err)
	}
	defer body.Close()

	out, err := os.CreateTemp(p.tempDir, "speech-*.mp3")
	if err != nil {
		return "", fmt.Errorf("%w: create speech file: %w", models.ErrIO, err)
	}
	n, err := io.Copy(out, body)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(out.Name())
		return "", models.Classify(models.ErrService, "read speech", err)
	}
	log.Debug().Str("file", out.Name()).Int64("bytes", n).Msg("Synthesized speech")
	return out.Name(), nil
}
