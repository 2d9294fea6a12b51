package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Dialect identifies the SQL flavour behind a *sql.DB.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

var openDB = sql.Open

var sqlitePragmas = []string{
	"PRAGMA journal_mode = WAL",
	"PRAGMA busy_timeout = 5000",
	"PRAGMA synchronous = NORMAL",
}

// IsSQL reports whether dsn names a database this package can open.
func IsSQL(dsn string) bool {
	_, _, err := parse(dsn)
	return err == nil
}

// Open connects to the database named by dsn.
//
// Accepted forms: postgres://, postgresql://, sqlite://<path>, file:<path>,
// :memory: and plain filesystem paths ending in .db, .sqlite or .sqlite3.
func Open(ctx context.Context, dsn string) (*sql.DB, Dialect, error) {
	dialect, source, err := parse(dsn)
	if err != nil {
		return nil, "", err
	}

	db, err := openDB(string(dialect), source)
	if err != nil {
		return nil, "", fmt.Errorf("sqldb: open %s: %w", dialect, err)
	}

	if dialect == SQLite {
		// each :memory: connection is a separate database
		if source == ":memory:" {
			db.SetMaxOpenConns(1)
		}
		for _, p := range sqlitePragmas {
			if source == ":memory:" && strings.Contains(p, "journal_mode") {
				continue
			}
			if _, err := db.ExecContext(ctx, p); err != nil {
				_ = db.Close()
				return nil, "", fmt.Errorf("sqldb: pragma %q: %w", p, err)
			}
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, "", fmt.Errorf("sqldb: ping %s: %w", dialect, err)
	}
	return db, dialect, nil
}

func parse(dsn string) (Dialect, string, error) {
	dsn = strings.TrimSpace(dsn)
	lower := strings.ToLower(dsn)
	switch {
	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		return Postgres, dsn, nil
	case strings.HasPrefix(lower, "sqlite://"):
		return SQLite, dsn[len("sqlite://"):], nil
	case strings.HasPrefix(lower, "file:"), dsn == ":memory:":
		return SQLite, dsn, nil
	case strings.HasSuffix(lower, ".db"), strings.HasSuffix(lower, ".sqlite"), strings.HasSuffix(lower, ".sqlite3"):
		return SQLite, dsn, nil
	}
	return "", "", fmt.Errorf("sqldb: unsupported connection string %q", redact(dsn))
}

// Rebind rewrites ? placeholders into the dialect's native form.
func (d Dialect) Rebind(query string) string {
	if d != Postgres {
		return query
	}
	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func redact(dsn string) string {
	if i := strings.Index(dsn, "@"); i >= 0 {
		if j := strings.Index(dsn, "://"); j >= 0 && j < i {
			return dsn[:j+3] + "***" + dsn[i:]
		}
	}
	return dsn
}
