package chromemdb

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"

	"github.com/philippgille/chromem-go"
	"github.com/rs/zerolog/log"
	"github.com/tmc/langchaingo/embeddings"

	"mediachat/internal/config"
	"mediachat/internal/db"
	"mediachat/internal/embedding"
	"mediachat/internal/helper"
	"mediachat/internal/models"
)

var ErrClosed = errors.New("vector store is closed")

// metadata keys stored with every chunk
const (
	metaSource = "source"
	metaPage   = "page"
	metaIndex  = "chunk"
	metaStart  = "start"
)

// Store is a persistent chromem collection kept in sync with a record
// manager. It owns the database directory under the cache root.
type Store struct {
	db          *chromem.DB
	collection  *chromem.Collection
	records     *db.RecordManager
	dbPath      string
	keepOnClose bool

	mu     sync.Mutex
	closed bool
}

// IndexResult summarizes one Index call
type IndexResult struct {
	Added   int
	Skipped int
	Deleted int
}

// Open creates the database directory, the chromem collection and the
// record manager.
func Open(ctx context.Context, cfg *config.Config, embedder embeddings.Embedder) (*Store, error) {
	dbPath := cfg.DatabaseDir()
	if err := helper.CreateFolder(dbPath); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIO, err)
	}

	chromemDB, err := chromem.NewPersistentDB(filepath.Join(dbPath, "chromem"), cfg.VectorStore.Compress)
	if err != nil {
		return nil, fmt.Errorf("failed to create database: %w", err)
	}

	collection, err := chromemDB.GetOrCreateCollection(cfg.VectorStore.Collection, nil, embedding.EmbeddingFunc(embedder, cfg.Timeouts.Embedding))
	if err != nil {
		return nil, fmt.Errorf("failed to create/get collection: %w", err)
	}

	rmCfg := cfg.RecordManager
	if rmCfg.Driver == "sqlite" && rmCfg.DSN == "" {
		rmCfg.DSN = filepath.Join(dbPath, "records.sqlite")
	}
	records, err := db.OpenRecordManager(ctx, &rmCfg)
	if err != nil {
		return nil, err
	}

	log.Debug().Str("path", dbPath).Str("collection", collection.Name).Int("documents", collection.Count()).Msg("Opened vector store")
	return &Store{
		db:          chromemDB,
		collection:  collection,
		records:     records,
		dbPath:      dbPath,
		keepOnClose: cfg.VectorStore.KeepOnClose,
	}, nil
}

// Index writes chunks with full-resync semantics: unchanged chunks are not
// embedded again, and every record not part of this batch is deleted, so a
// re-uploaded document never leaves stale chunks behind.
func (s *Store) Index(ctx context.Context, chunks []models.Chunk) (IndexResult, error) {
	var res IndexResult
	if err := s.checkOpen(); err != nil {
		return res, err
	}

	generation, err := s.records.NextGeneration(ctx)
	if err != nil {
		return res, err
	}

	keys := make([]string, 0, len(chunks))
	groups := make([]string, 0, len(chunks))
	batch := make(map[string]models.Chunk, len(chunks))
	for _, c := range chunks {
		id := c.ID()
		if _, dup := batch[id]; dup {
			continue
		}
		batch[id] = c
		keys = append(keys, id)
		groups = append(groups, c.Source)
	}

	existing, err := s.records.Exists(ctx, keys)
	if err != nil {
		return res, err
	}

	var docs []chromem.Document
	for _, id := range keys {
		if existing[id] && s.has(ctx, id) {
			res.Skipped++
			continue
		}
		docs = append(docs, toDocument(id, batch[id]))
	}

	if len(docs) > 0 {
		if err := s.collection.AddDocuments(ctx, docs, runtime.NumCPU()); err != nil {
			return res, fmt.Errorf("failed to add documents: %w", err)
		}
	}
	res.Added = len(docs)

	if err := s.records.Update(ctx, keys, groups, generation); err != nil {
		return res, err
	}

	stale, err := s.records.ListKeys(ctx, generation)
	if err != nil {
		return res, err
	}
	if len(stale) > 0 {
		if err := s.collection.Delete(ctx, nil, nil, stale...); err != nil {
			return res, fmt.Errorf("failed to delete stale documents: %w", err)
		}
		if err := s.records.DeleteKeys(ctx, stale); err != nil {
			return res, err
		}
	}
	res.Deleted = len(stale)

	log.Info().Int("added", res.Added).Int("skipped", res.Skipped).Int("deleted", res.Deleted).Int64("generation", generation).Msg("Indexed chunks")
	return res, nil
}

// Retrieve returns at most k chunks ordered by decreasing similarity. An
// empty store yields an empty result.
func (s *Store) Retrieve(ctx context.Context, query string, k int) ([]models.SearchResult, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	count := s.collection.Count()
	if k > count {
		k = count
	}
	if k <= 0 || query == "" {
		return []models.SearchResult{}, nil
	}

	results, err := s.collection.Query(ctx, query, k, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to query by similarity: %w", err)
	}

	out := make([]models.SearchResult, 0, len(results))
	for _, r := range results {
		out = append(out, models.SearchResult{Chunk: fromResult(r), Similarity: r.Similarity})
	}
	return out, nil
}

// Count returns the number of stored chunks.
func (s *Store) Count() int {
	if s.checkOpen() != nil {
		return 0
	}
	return s.collection.Count()
}

// Close releases the record manager and removes the database directory
// unless it is configured to be kept. Calling Close again is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if err := s.records.Close(); err != nil {
		errs = append(errs, err)
	}
	if !s.keepOnClose {
		if err := os.RemoveAll(s.dbPath); err != nil {
			errs = append(errs, fmt.Errorf("%w: remove %s: %w", models.ErrIO, s.dbPath, err))
		}
		log.Debug().Str("path", s.dbPath).Msg("Removed vector store directory")
	}
	return errors.Join(errs...)
}

func (s *Store) checkOpen() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	return nil
}

func (s *Store) has(ctx context.Context, id string) bool {
	_, err := s.collection.GetByID(ctx, id)
	return err == nil
}

func toDocument(id string, c models.Chunk) chromem.Document {
	return chromem.Document{
		ID:      id,
		Content: c.Content,
		Metadata: map[string]string{
			metaSource: c.Source,
			metaPage:   strconv.Itoa(c.Page),
			metaIndex:  strconv.Itoa(c.Index),
			metaStart:  strconv.Itoa(c.Start),
		},
	}
}

func fromResult(r chromem.Result) models.Chunk {
	page, _ := strconv.Atoi(r.Metadata[metaPage])
	index, _ := strconv.Atoi(r.Metadata[metaIndex])
	start, _ := strconv.Atoi(r.Metadata[metaStart])
	return models.Chunk{
		Content: r.Content,
		Source:  r.Metadata[metaSource],
		Page:    page,
		Index:   index,
		Start:   start,
	}
}
