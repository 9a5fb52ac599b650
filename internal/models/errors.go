package models

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrIO                 = errors.New("io error")
	ErrParse              = errors.New("parse error")
	ErrConversion         = errors.New("audio conversion error")
	ErrUnrecognizedSpeech = errors.New("unrecognized speech")
	ErrService            = errors.New("speech service error")
	ErrBackendUnavailable = errors.New("backend unavailable")
	ErrTimeout            = errors.New("timeout")
)

var kinds = []struct {
	err  error
	name string
}{
	{ErrTimeout, "Timeout"},
	{ErrIO, "IOError"},
	{ErrParse, "ParseError"},
	{ErrConversion, "ConversionError"},
	{ErrUnrecognizedSpeech, "UnrecognizedSpeech"},
	{ErrService, "ServiceError"},
	{ErrBackendUnavailable, "BackendUnavailable"},
}

// Kind names the error kind of err, or "Unknown".
func Kind(err error) string {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.name
		}
	}
	return "Unknown"
}

// Classify wraps err with kind, unless it came from an expired deadline, in
// which case it is wrapped with ErrTimeout instead.
func Classify(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w: %w", op, ErrTimeout, err)
	}
	return fmt.Errorf("%s: %w: %w", op, kind, err)
}
