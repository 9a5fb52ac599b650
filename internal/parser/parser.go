package parser

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"mediachat/internal/helper"
	"mediachat/internal/models"
)

// Parser turns one file into page texts, index 0 being page 1.
type Parser func(filePath string) ([]string, error)

var parsers = map[string]Parser{
	".pdf":  parsePDF,
	".txt":  parseText,
	".md":   parseMarkdown,
	".docx": parseDOCX,
	".xlsx": parseXLSX,
	".xlsm": parseXLSM,
}

// Ingestor extracts uploads to disk and loads them as page-level documents.
type Ingestor struct {
	tempRoot   string
	extensions map[string]bool
}

// NewIngestor accepts files with the given extensions. Extensions without a
// parser are ignored.
func NewIngestor(tempRoot string, extensions []string) *Ingestor {
	accepted := make(map[string]bool)
	for _, ext := range extensions {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		if _, ok := parsers[ext]; !ok {
			log.Warn().Str("extension", ext).Msg("No parser for extension, ignoring")
			continue
		}
		accepted[ext] = true
	}
	return &Ingestor{tempRoot: tempRoot, extensions: accepted}
}

// Accepts reports whether name has an accepted extension.
func (in *Ingestor) Accepts(name string) bool {
	return in.extensions[strings.ToLower(filepath.Ext(name))]
}

// Extract writes every upload into a new directory under the temp root. The
// caller removes the directory.
func (in *Ingestor) Extract(uploads []models.Upload) (string, error) {
	if err := helper.CreateFolder(in.tempRoot); err != nil {
		return "", fmt.Errorf("%w: %w", models.ErrIO, err)
	}
	dir, err := os.MkdirTemp(in.tempRoot, "upload-")
	if err != nil {
		return "", fmt.Errorf("%w: create upload dir: %w", models.ErrIO, err)
	}

	seen := make(map[string]bool)
	for i, up := range uploads {
		name := helper.SanitizeFilename(up.Name)
		if seen[name] {
			name = fmt.Sprintf("%d_%s", i, name)
		}
		seen[name] = true

		if err := os.WriteFile(filepath.Join(dir, name), up.Data, 0o644); err != nil {
			os.RemoveAll(dir)
			return "", fmt.Errorf("%w: write %s: %w", models.ErrIO, name, err)
		}
	}
	log.Debug().Str("dir", dir).Int("files", len(uploads)).Msg("Extracted uploads")
	return dir, nil
}

// LoadDirectory parses every accepted file in dir into page documents.
// Unreadable files are skipped and logged; ErrParse is returned only when
// nothing could be loaded and at least one file failed.
func (in *Ingestor) LoadDirectory(dir string) ([]models.Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: read dir: %w", models.ErrIO, err)
	}

	var docs []models.Document
	var failed []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		ext := strings.ToLower(filepath.Ext(name))
		if !in.extensions[ext] {
			log.Debug().Str("file", name).Msg("Skipping unsupported file")
			continue
		}

		pages, err := parseFile(parsers[ext], filepath.Join(dir, name))
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("Skipping unreadable file")
			failed = append(failed, name)
			continue
		}
		for i, page := range pages {
			if strings.TrimSpace(page) == "" {
				continue
			}
			docs = append(docs, models.Document{
				Content:  page,
				Metadata: models.DocumentMetadata{Source: name, Page: i + 1},
			})
		}
	}

	if len(docs) == 0 && len(failed) > 0 {
		return nil, fmt.Errorf("%w: could not read %s", models.ErrParse, strings.Join(failed, ", "))
	}
	return docs, nil
}

// Ingest runs Extract, LoadDirectory and Split, and always removes the
// extracted files.
func (in *Ingestor) Ingest(uploads []models.Upload, chunkSize, overlap int) ([]models.Chunk, error) {
	dir, err := in.Extract(uploads)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := os.RemoveAll(dir); err != nil {
			log.Warn().Err(err).Str("dir", dir).Msg("Failed to remove upload dir")
		}
	}()

	docs, err := in.LoadDirectory(dir)
	if err != nil {
		return nil, err
	}
	chunks := Split(docs, chunkSize, overlap)
	log.Info().Int("documents", len(docs)).Int("chunks", len(chunks)).Msg("Ingested uploads")
	return chunks, nil
}

// parseFile guards against parsers that panic on malformed input.
func parseFile(p Parser, path string) (pages []string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", models.ErrParse, r)
		}
	}()
	pages, err = p(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrParse, err)
	}
	return pages, nil
}
