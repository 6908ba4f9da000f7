package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/agentic-research/filetree/internal/logging"
)

const pingTimeout = 10 * time.Second

// dialect captures the SQL differences between the supported stores.
type dialect struct {
	driver string
	// tableQuery returns the stored name of the table matching $1, if any.
	tableQuery string
	// columnsQuery lists the column names of table $1.
	columnsQuery string
	numbered     bool // $1 placeholders instead of ?
}

var (
	sqliteDialect = dialect{
		driver:       "sqlite",
		tableQuery:   `SELECT name FROM sqlite_master WHERE type IN ('table', 'view') AND lower(name) = lower(?) LIMIT 1`,
		columnsQuery: `SELECT name FROM pragma_table_info(?)`,
	}
	postgresDialect = dialect{
		driver: "postgres",
		tableQuery: `SELECT table_name FROM information_schema.tables
			WHERE table_schema = current_schema() AND (table_name = $1 OR table_name = lower($1))
			ORDER BY table_name = $1 DESC LIMIT 1`,
		columnsQuery: `SELECT column_name FROM information_schema.columns
			WHERE table_schema = current_schema() AND table_name = $1 ORDER BY ordinal_position`,
		numbered: true,
	}
)

func (d dialect) placeholder(i int) string {
	if d.numbered {
		return "$" + strconv.Itoa(i)
	}
	return "?"
}

// quoteIdent quotes a table or column name. Both SQLite and PostgreSQL
// accept standard double-quoted identifiers.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// SQLStore reads and mutates a record table in SQLite or PostgreSQL.
type SQLStore struct {
	db      *sql.DB
	dialect dialect
	table   string
}

// OpenSQLite opens an existing SQLite database. A missing file is reported
// as ErrStoreUnavailable rather than silently creating an empty database.
func OpenSQLite(ctx context.Context, path, table string) (*SQLStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return openSQL(ctx, sqliteDialect, path, table)
}

// CreateSQLite opens a SQLite database for writing, creating the file and
// the record table when absent.
func CreateSQLite(ctx context.Context, path, table string) (*SQLStore, error) {
	s, err := openSQL(ctx, sqliteDialect, path, table)
	if err != nil {
		return nil, err
	}
	if err := s.EnsureTable(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

// OpenPostgres connects to a PostgreSQL database.
func OpenPostgres(ctx context.Context, dsn, table string) (*SQLStore, error) {
	return openSQL(ctx, postgresDialect, dsn, table)
}

func openSQL(ctx context.Context, d dialect, dsn, table string) (*SQLStore, error) {
	db, err := sql.Open(d.driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStoreUnavailable, d.driver, err)
	}
	if d.driver == "sqlite" {
		// One connection serializes writers and keeps pragmas in effect.
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(4)
	}

	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: ping %s: %v", ErrStoreUnavailable, d.driver, err)
	}
	if d.driver == "sqlite" {
		if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
		}
	}
	return &SQLStore{db: db, dialect: d, table: table}, nil
}

// Close releases the database handle.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// tableColumns resolves the stored table name and maps each known field to
// the column that carries it.
func (s *SQLStore) tableColumns(ctx context.Context, q queryer) (string, map[field]string, error) {
	var name string
	err := q.QueryRowContext(ctx, s.dialect.tableQuery, s.table).Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil, fmt.Errorf("%w: %s", ErrTableMissing, s.table)
	}
	if err != nil {
		return "", nil, fmt.Errorf("%w: lookup table %s: %v", ErrStoreUnavailable, s.table, err)
	}

	rows, err := q.QueryContext(ctx, s.dialect.columnsQuery, name)
	if err != nil {
		return "", nil, fmt.Errorf("%w: list columns: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	cols := make(map[field]string)
	ranks := make(map[field]int)
	for rows.Next() {
		var col string
		if err := rows.Scan(&col); err != nil {
			return "", nil, fmt.Errorf("%w: scan column: %v", ErrStoreUnavailable, err)
		}
		f, ok := matchField(col)
		if !ok {
			continue
		}
		r := aliasRank(f, col)
		if prev, seen := ranks[f]; !seen || r < prev {
			cols[f] = col
			ranks[f] = r
		}
	}
	if err := rows.Err(); err != nil {
		return "", nil, fmt.Errorf("%w: iterate columns: %v", ErrStoreUnavailable, err)
	}
	return name, cols, nil
}

// Load implements Source. Absent columns default every record's field to
// empty or nil.
func (s *SQLStore) Load(ctx context.Context) ([]Record, error) {
	table, cols, err := s.tableColumns(ctx, s.db)
	if err != nil {
		return nil, err
	}
	if _, ok := cols[fieldPath]; !ok {
		logging.Warn("record table has no path column; every row will be skipped",
			logging.String("table", table))
	}

	var fields []field
	var exprs []string
	for f := field(0); f < numFields; f++ {
		if col, ok := cols[f]; ok {
			fields = append(fields, f)
			exprs = append(exprs, quoteIdent(col))
		}
	}
	if len(exprs) == 0 {
		exprs = []string{"NULL"}
	}
	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + quoteIdent(table)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	raw := make([]any, len(exprs))
	dest := make([]any, len(exprs))
	for i := range raw {
		dest[i] = &raw[i]
	}

	var records []Record
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrStoreUnavailable, err)
		}
		var vals [numFields]any
		for i, f := range fields {
			vals[f] = raw[i]
		}
		records = append(records, recordFromValues(&vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate records: %v", ErrStoreUnavailable, err)
	}
	return records, nil
}

var (
	_ Source  = (*SQLStore)(nil)
	_ Mutator = (*SQLStore)(nil)
)
