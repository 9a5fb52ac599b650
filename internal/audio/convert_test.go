package audio

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mediachat/internal/models"
)

// fakeFFmpeg writes a shell script standing in for ffmpeg.
func fakeFFmpeg(t *testing.T, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script stand-in needs a POSIX shell")
	}
	path := filepath.Join(t.TempDir(), "ffmpeg")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+script), 0o755))
	return path
}

func TestFFmpegPassesArguments(t *testing.T) {
	dir := t.TempDir()
	argsFile := filepath.Join(dir, "args")
	// the destination is the last argument
	bin := fakeFFmpeg(t, `echo "$@" > `+argsFile+`
for last; do :; done
echo wav > "$last"
`)
	dst := filepath.Join(dir, "out.wav")

	require.NoError(t, NewFFmpeg(bin, 16000, time.Second).Convert(context.Background(), "in.mp3", dst))

	args, err := os.ReadFile(argsFile)
	require.NoError(t, err)
	assert.Contains(t, string(args), "-i in.mp3 -ar 16000 -ac 1 -y "+dst)
	assert.FileExists(t, dst)
}

func TestFFmpegFailureIsConversionError(t *testing.T) {
	bin := fakeFFmpeg(t, "echo 'in.mp3: Invalid data found when processing input' >&2\nexit 1\n")

	err := NewFFmpeg(bin, 16000, time.Second).Convert(context.Background(), "in.mp3", filepath.Join(t.TempDir(), "out.wav"))
	assert.ErrorIs(t, err, models.ErrConversion)
	assert.ErrorContains(t, err, "Invalid data found")
}

func TestFFmpegMissingBinary(t *testing.T) {
	err := NewFFmpeg(filepath.Join(t.TempDir(), "nope"), 0, 0).Convert(context.Background(), "in.mp3", "out.wav")
	assert.ErrorIs(t, err, models.ErrConversion)
}

func TestFFmpegTimeout(t *testing.T) {
	bin := fakeFFmpeg(t, "exec sleep 5\n")

	err := NewFFmpeg(bin, 16000, 50*time.Millisecond).Convert(context.Background(), "in.mp3", filepath.Join(t.TempDir(), "out.wav"))
	assert.ErrorIs(t, err, models.ErrTimeout)
}
