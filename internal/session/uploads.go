package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"mediachat/internal/models"
)

// Accepted attachment extensions
var (
	ImageExtensions = []string{".jpg", ".jpeg", ".png"}
	AudioExtensions = []string{".wav", ".mp3"}
	PDFExtensions   = []string{".pdf"}
)

// ReadUpload loads a local file as an upload. With exts given, other
// extensions are rejected.
func ReadUpload(path string, exts ...string) (models.Upload, error) {
	if len(exts) > 0 {
		ext := strings.ToLower(filepath.Ext(path))
		ok := false
		for _, e := range exts {
			if ext == e {
				ok = true
				break
			}
		}
		if !ok {
			return models.Upload{}, fmt.Errorf("%s: unsupported file type, want one of %s", filepath.Base(path), strings.Join(exts, " "))
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return models.Upload{}, fmt.Errorf("%w: %w", models.ErrIO, err)
	}
	return models.Upload{Name: filepath.Base(path), Data: data}, nil
}

// ReadUploads loads every path, stopping at the first failure.
func ReadUploads(paths []string, exts ...string) ([]models.Upload, error) {
	uploads := make([]models.Upload, 0, len(paths))
	for _, path := range paths {
		up, err := ReadUpload(path, exts...)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, up)
	}
	return uploads, nil
}
