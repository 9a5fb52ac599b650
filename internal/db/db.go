package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/extra/bundebug"
	_ "modernc.org/sqlite"

	"mediachat/internal/config"
)

// Record remembers that a chunk key was written to the vector store during
// a given indexing generation.
type Record struct {
	bun.BaseModel `bun:"table:upsertion_records,alias:r"`
	Key           string    `bun:"key,pk"`
	Namespace     string    `bun:"namespace,pk"`
	GroupID       string    `bun:"group_id,notnull"`
	Generation    int64     `bun:"generation,notnull"`
	UpdatedAt     time.Time `bun:"updated_at,notnull"`
}

// RecordManager tracks which chunk keys are present in one vector store
// namespace so that re-indexing can skip unchanged chunks and delete stale
// ones.
type RecordManager struct {
	db        *bun.DB
	namespace string
}

func NewDB(sqldb *sql.DB, driver string, debug bool) (*bun.DB, error) {
	var db *bun.DB
	switch driver {
	case "sqlite":
		db = bun.NewDB(sqldb, sqlitedialect.New())
	case "postgres":
		db = bun.NewDB(sqldb, pgdialect.New())
	default:
		return nil, fmt.Errorf("unsupported record manager driver: %s", driver)
	}
	if debug {
		db.AddQueryHook(bundebug.NewQueryHook(bundebug.WithVerbose(true)))
	}
	return db, nil
}

// ConnectDB opens the database/sql handle for the configured driver. For
// sqlite the DSN is a file path.
func ConnectDB(cfg *config.RecordManagerConfig) (*sql.DB, error) {
	switch cfg.Driver {
	case "sqlite":
		sqldb, err := sql.Open("sqlite", cfg.DSN+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
		if err != nil {
			return nil, err
		}
		sqldb.SetMaxOpenConns(1)
		return sqldb, nil
	case "postgres":
		return sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.DSN))), nil
	default:
		return nil, fmt.Errorf("unsupported record manager driver: %s", cfg.Driver)
	}
}

// OpenRecordManager connects and creates the schema.
func OpenRecordManager(ctx context.Context, cfg *config.RecordManagerConfig) (*RecordManager, error) {
	sqldb, err := ConnectDB(cfg)
	if err != nil {
		return nil, err
	}
	db, err := NewDB(sqldb, cfg.Driver, cfg.Debug)
	if err != nil {
		sqldb.Close()
		return nil, err
	}
	rm := &RecordManager{db: db, namespace: cfg.Namespace}
	if err := rm.InitDB(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return rm, nil
}

func (rm *RecordManager) InitDB(ctx context.Context) error {
	_, err := rm.db.NewCreateTable().Model((*Record)(nil)).IfNotExists().Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create record table: %w", err)
	}
	return nil
}

// NextGeneration returns a generation number greater than any recorded one.
func (rm *RecordManager) NextGeneration(ctx context.Context) (int64, error) {
	var current int64
	err := rm.db.NewSelect().
		Model((*Record)(nil)).
		ColumnExpr("COALESCE(MAX(generation), 0)").
		Where("namespace = ?", rm.namespace).
		Scan(ctx, &current)
	if err != nil {
		return 0, fmt.Errorf("failed to read generation: %w", err)
	}
	return current + 1, nil
}

// Exists returns the subset of keys already recorded.
func (rm *RecordManager) Exists(ctx context.Context, keys []string) (map[string]bool, error) {
	found := make(map[string]bool, len(keys))
	if len(keys) == 0 {
		return found, nil
	}
	var existing []string
	err := rm.db.NewSelect().
		Model((*Record)(nil)).
		Column("key").
		Where("namespace = ?", rm.namespace).
		Where("key IN (?)", bun.In(keys)).
		Scan(ctx, &existing)
	if err != nil {
		return nil, fmt.Errorf("failed to look up records: %w", err)
	}
	for _, k := range existing {
		found[k] = true
	}
	return found, nil
}

// Update upserts keys with their group and the given generation.
func (rm *RecordManager) Update(ctx context.Context, keys, groupIDs []string, generation int64) error {
	if len(keys) != len(groupIDs) {
		return fmt.Errorf("keys and group ids length mismatch: %d != %d", len(keys), len(groupIDs))
	}
	if len(keys) == 0 {
		return nil
	}
	now := time.Now().UTC()
	records := make([]Record, len(keys))
	for i := range keys {
		records[i] = Record{
			Key:        keys[i],
			Namespace:  rm.namespace,
			GroupID:    groupIDs[i],
			Generation: generation,
			UpdatedAt:  now,
		}
	}
	_, err := rm.db.NewInsert().
		Model(&records).
		On("CONFLICT (key, namespace) DO UPDATE").
		Set("group_id = EXCLUDED.group_id").
		Set("generation = EXCLUDED.generation").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to upsert records: %w", err)
	}
	return nil
}

// ListKeys returns keys recorded before generation, optionally limited to
// the given groups.
func (rm *RecordManager) ListKeys(ctx context.Context, before int64, groupIDs ...string) ([]string, error) {
	q := rm.db.NewSelect().
		Model((*Record)(nil)).
		Column("key").
		Where("namespace = ?", rm.namespace).
		Where("generation < ?", before).
		Order("key")
	if len(groupIDs) > 0 {
		q = q.Where("group_id IN (?)", bun.In(groupIDs))
	}
	var keys []string
	if err := q.Scan(ctx, &keys); err != nil {
		return nil, fmt.Errorf("failed to list records: %w", err)
	}
	return keys, nil
}

// DeleteKeys removes keys from the namespace.
func (rm *RecordManager) DeleteKeys(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	_, err := rm.db.NewDelete().
		Model((*Record)(nil)).
		Where("namespace = ?", rm.namespace).
		Where("key IN (?)", bun.In(keys)).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete records: %w", err)
	}
	return nil
}

// Count returns the number of records in the namespace.
func (rm *RecordManager) Count(ctx context.Context) (int, error) {
	return rm.db.NewSelect().Model((*Record)(nil)).Where("namespace = ?", rm.namespace).Count(ctx)
}

func (rm *RecordManager) Close() error {
	log.Debug().Str("namespace", rm.namespace).Msg("Closing record manager")
	return rm.db.Close()
}
