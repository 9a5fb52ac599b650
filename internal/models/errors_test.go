package models

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	err := Classify(ErrBackendUnavailable, "embed", errors.New("connection refused"))
	assert.ErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, "BackendUnavailable", Kind(err))

	err = Classify(ErrBackendUnavailable, "embed", fmt.Errorf("post: %w", context.DeadlineExceeded))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.NotErrorIs(t, err, ErrBackendUnavailable)
	assert.Equal(t, "Timeout", Kind(err))

	assert.NoError(t, Classify(ErrIO, "noop", nil))
	assert.Equal(t, "Unknown", Kind(errors.New("boom")))
	assert.Equal(t, "", Kind(nil))
}

func TestChunkIDStable(t *testing.T) {
	a := Chunk{Content: "Paris", Source: "a.pdf", Page: 1}
	b := a
	assert.Equal(t, a.ID(), b.ID())

	b.Page = 2
	assert.NotEqual(t, a.ID(), b.ID())
}
