package audio

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"mediachat/internal/models"
)

// Converter turns any audio file into a mono PCM WAV file.
type Converter interface {
	Convert(ctx context.Context, src, dst string) error
}

// FFmpeg shells out to the ffmpeg binary.
type FFmpeg struct {
	Path       string
	SampleRate int
	Timeout    time.Duration
}

func NewFFmpeg(path string, sampleRate int, timeout time.Duration) *FFmpeg {
	if path == "" {
		path = "ffmpeg"
	}
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	return &FFmpeg{Path: path, SampleRate: sampleRate, Timeout: timeout}
}

// Convert runs `ffmpeg -i src -ar <rate> -ac 1 -y dst`. A non-zero exit is
// ErrConversion with ffmpeg's stderr attached.
func (f *FFmpeg) Convert(ctx context.Context, src, dst string) error {
	if f.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.Timeout)
		defer cancel()
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-i", src, "-ar", strconv.Itoa(f.SampleRate), "-ac", "1", "-y", dst}
	cmd := exec.CommandContext(ctx, f.Path, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	cmd.WaitDelay = 2 * time.Second

	log.Debug().Str("ffmpeg", f.Path).Strs("args", args).Msg("Running ffmpeg")
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			err = ctx.Err()
		}
		msg := strings.TrimSpace(stderr.String())
		if msg != "" {
			err = fmt.Errorf("%w: %s", err, msg)
		}
		return models.Classify(models.ErrConversion, "ffmpeg", err)
	}
	return nil
}
