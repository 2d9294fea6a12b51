package sqlstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	errx "github.com/intakeflow/server/internal/core/error"
	"github.com/intakeflow/server/internal/memory"
	logx "github.com/intakeflow/server/pkg/logger"
	"github.com/intakeflow/server/pkg/sqldb"
)

var validTable = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Backend stores memory items in a SQLite or Postgres table named after the
// collection. Embeddings are kept as JSON text so both dialects share a schema.
type Backend struct {
	db      *sql.DB
	dialect sqldb.Dialect
	table   string
}

var _ memory.Backend = (*Backend)(nil)

// New creates the collection table if needed.
func New(ctx context.Context, db *sql.DB, dialect sqldb.Dialect, collection string) (*Backend, error) {
	table := strings.ReplaceAll(collection, "-", "_")
	if !validTable.MatchString(table) {
		return nil, fmt.Errorf("sqlstore: invalid collection name %q", collection)
	}
	b := &Backend{db: db, dialect: dialect, table: table}
	if err := b.migrate(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

// Open connects to dsn and returns a backend for collection.
func Open(ctx context.Context, dsn, collection string) (*Backend, error) {
	db, dialect, err := sqldb.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	b, err := New(ctx, db, dialect, collection)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) migrate(ctx context.Context) error {
	stmts := []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id               TEXT PRIMARY KEY,
			text             TEXT NOT NULL,
			embedding        TEXT NOT NULL,
			metadata         TEXT NOT NULL DEFAULT '{}',
			created_at       TIMESTAMP NOT NULL,
			last_accessed_at TIMESTAMP NOT NULL,
			relevance_score  DOUBLE PRECISION NOT NULL DEFAULT 0
		)`, b.table),
		fmt.Sprintf(`CREATE INDEX IF NOT EXISTS idx_%s_created_at ON %s (created_at)`, b.table, b.table),
	}
	for _, s := range stmts {
		if _, err := b.db.ExecContext(ctx, s); err != nil {
			return fmt.Errorf("sqlstore: migrate %s: %w", b.table, err)
		}
	}
	return nil
}

func (b *Backend) Insert(ctx context.Context, item memory.Item) error {
	vec, err := json.Marshal(item.Embedding)
	if err != nil {
		return fmt.Errorf("marshal embedding: %w", err)
	}
	meta := []byte("{}")
	if item.Metadata != nil {
		if meta, err = json.Marshal(item.Metadata); err != nil {
			return fmt.Errorf("marshal metadata: %w", err)
		}
	}

	q := b.dialect.Rebind(fmt.Sprintf(
		`INSERT INTO %s (id, text, embedding, metadata, created_at, last_accessed_at, relevance_score)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`, b.table))
	err = b.inTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, q, item.ID, item.Text, string(vec), string(meta),
			item.CreatedAt.UTC(), item.LastAccessedAt.UTC(), item.RelevanceScore)
		return err
	})
	if err != nil {
		logx.Error().Err(err).Str("memory_id", item.ID).Msg("failed to insert memory item")
		return errx.WrapSQLStore("put", err)
	}
	return nil
}

func (b *Backend) List(ctx context.Context) ([]memory.Item, error) {
	q := fmt.Sprintf(`SELECT id, text, embedding, metadata, created_at, last_accessed_at, relevance_score FROM %s`, b.table)
	rows, err := b.db.QueryContext(ctx, q)
	if err != nil {
		return nil, errx.WrapSQLStore("list", err)
	}
	defer rows.Close()

	var out []memory.Item
	for rows.Next() {
		var (
			it        memory.Item
			vec, meta string
		)
		if err := rows.Scan(&it.ID, &it.Text, &vec, &meta, &it.CreatedAt, &it.LastAccessedAt, &it.RelevanceScore); err != nil {
			return nil, errx.WrapSQLStore("list", err)
		}
		if err := json.Unmarshal([]byte(vec), &it.Embedding); err != nil {
			logx.Warn().Err(err).Str("memory_id", it.ID).Msg("skipping memory item with unreadable embedding")
			continue
		}
		if meta != "" && meta != "{}" && meta != "null" {
			if err := json.Unmarshal([]byte(meta), &it.Metadata); err != nil {
				logx.Warn().Err(err).Str("memory_id", it.ID).Msg("ignoring unreadable memory metadata")
			}
		}
		it.CreatedAt = it.CreatedAt.UTC()
		it.LastAccessedAt = it.LastAccessedAt.UTC()
		out = append(out, it)
	}
	if err := rows.Err(); err != nil {
		return nil, errx.WrapSQLStore("list", err)
	}
	return out, nil
}

func (b *Backend) Delete(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
	q := b.dialect.Rebind(fmt.Sprintf(`DELETE FROM %s WHERE id IN (%s)`, b.table, placeholders))
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	var n int64
	err := b.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, q, args...)
		if err != nil {
			return err
		}
		n, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, errx.WrapSQLStore("evict", err)
	}
	return int(n), nil
}

func (b *Backend) Touch(ctx context.Context, accesses []memory.Access) error {
	if len(accesses) == 0 {
		return nil
	}
	q := b.dialect.Rebind(fmt.Sprintf(`UPDATE %s SET last_accessed_at = ?, relevance_score = ? WHERE id = ?`, b.table))
	err := b.inTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, q)
		if err != nil {
			return err
		}
		defer stmt.Close()
		for _, a := range accesses {
			if _, err := stmt.ExecContext(ctx, a.At.UTC(), a.Score, a.ID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errx.WrapSQLStore("touch", err)
	}
	return nil
}

func (b *Backend) Close() error {
	return b.db.Close()
}

func (b *Backend) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
