package ingest

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/agentic-research/filetree/internal/graph"
	"github.com/agentic-research/filetree/internal/metrics"
)

// storedRow is the subset of a record a mutation inspects. raw values are
// kept verbatim so updates can address rows by what is actually stored.
type storedRow struct {
	rawPath   string
	rawParent string
	path      graph.Path
	parent    graph.Path
	kind      string
}

// EnsureTable creates the record table with the indexer's column names when
// it does not exist yet.
func (s *SQLStore) EnsureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		%s TEXT NOT NULL,
		%s TEXT,
		%s TEXT,
		%s TEXT,
		%s DOUBLE PRECISION,
		%s DOUBLE PRECISION,
		%s BIGINT
	)`, quoteIdent(s.table),
		quoteIdent(fieldAliases[fieldPath][0]),
		quoteIdent(fieldAliases[fieldParent][0]),
		quoteIdent(fieldAliases[fieldName][0]),
		quoteIdent(fieldAliases[fieldKind][0]),
		quoteIdent(fieldAliases[fieldCreated][0]),
		quoteIdent(fieldAliases[fieldModified][0]),
		quoteIdent(fieldAliases[fieldSize][0]),
	)
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", s.table, err)
	}
	return nil
}

// Insert appends records, writing only the columns the table has.
func (s *SQLStore) Insert(ctx context.Context, recs ...Record) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		table, cols, err := s.tableColumns(ctx, tx)
		if err != nil {
			return err
		}
		return s.insert(ctx, tx, table, cols, recs)
	})
}

func (s *SQLStore) insert(ctx context.Context, q queryer, table string, cols map[field]string, recs []Record) error {
	if _, ok := cols[fieldPath]; !ok {
		return fmt.Errorf("%w: %s has no path column", ErrTableMissing, table)
	}
	var fields []field
	var names, marks []string
	for f := field(0); f < numFields; f++ {
		if col, ok := cols[f]; ok {
			fields = append(fields, f)
			names = append(names, quoteIdent(col))
			marks = append(marks, s.dialect.placeholder(len(marks)+1))
		}
	}
	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quoteIdent(table), strings.Join(names, ", "), strings.Join(marks, ", "))

	for _, rec := range recs {
		args := make([]any, len(fields))
		for i, f := range fields {
			args[i] = recordValue(rec, f)
		}
		if _, err := q.ExecContext(ctx, stmt, args...); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Path, err)
		}
	}
	return nil
}

func recordValue(rec Record, f field) any {
	switch f {
	case fieldPath:
		return rec.Path
	case fieldParent:
		return rec.Parent
	case fieldName:
		return rec.Name
	case fieldKind:
		return rec.KindHint
	case fieldCreated:
		if rec.Created != nil {
			return *rec.Created
		}
	case fieldModified:
		if rec.Modified != nil {
			return *rec.Modified
		}
	case fieldSize:
		if rec.Size != nil {
			return *rec.Size
		}
	}
	return nil
}

// CreateFolder implements Mutator. It is idempotent: an existing record at
// the target path is reported with existed=true and nothing is written.
func (s *SQLStore) CreateFolder(ctx context.Context, parent, name string) (string, bool, error) {
	name = strings.TrimSpace(name)
	if err := validName(name); err != nil {
		return "", false, err
	}
	parentPath := graph.Parse(parent)
	target := parentPath.Join(name)

	var existed bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		table, cols, err := s.tableColumns(ctx, tx)
		if err != nil {
			return err
		}
		rows, err := s.storedRows(ctx, tx, table, cols)
		if err != nil {
			return err
		}
		for _, r := range rows {
			if r.path.Equal(target) {
				existed = true
				return nil
			}
		}
		now := float64(time.Now().UnixNano()) / 1e9
		return s.insert(ctx, tx, table, cols, []Record{{
			Path:     target.Slash(),
			Parent:   parentPath.Slash(),
			Name:     name,
			KindHint: "folder",
			Created:  &now,
			Modified: &now,
		}})
	})
	metrics.RecordMutation("create_folder", err)
	if err != nil {
		return "", false, err
	}
	return target.String(), existed, nil
}

// Rename implements Mutator. A file keeps its extension when newName has
// none. Directories, including ones that only exist by inference, carry
// every descendant path and declared parent along.
func (s *SQLStore) Rename(ctx context.Context, oldPath, newName string) (string, error) {
	newName = strings.TrimSpace(newName)
	if err := validName(newName); err != nil {
		return "", err
	}
	from := graph.Parse(oldPath)
	if from.IsZero() {
		return "", fmt.Errorf("%w: empty path", ErrInvalidPath)
	}

	var to graph.Path
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		table, cols, err := s.tableColumns(ctx, tx)
		if err != nil {
			return err
		}
		rows, err := s.storedRows(ctx, tx, table, cols)
		if err != nil {
			return err
		}

		var targets []storedRow
		descendants := false
		for _, r := range rows {
			switch {
			case r.path.Equal(from):
				targets = append(targets, r)
			case r.path.HasPrefix(from), r.parent.HasPrefix(from):
				descendants = true
			}
		}
		if len(targets) == 0 && !descendants {
			return fmt.Errorf("%w: %s", ErrNotFound, from)
		}

		isDir := len(targets) == 0 || descendants || !strings.Contains(from.Base(), ".")
		for _, r := range targets {
			if graph.IsDirLabel(r.kind) {
				isDir = true
			}
		}
		if !isDir && !strings.Contains(newName, ".") {
			if ext := graph.Suffix(from.Base()); ext != "" {
				newName += "." + ext
			}
		}
		to = from.Parent().Join(newName)

		if !to.Equal(from) {
			for _, r := range rows {
				if r.path.HasPrefix(to) {
					return fmt.Errorf("%w: %s", ErrExists, to)
				}
			}
		}

		pathCol := quoteIdent(cols[fieldPath])
		for _, raw := range distinct(targets, func(r storedRow) string { return r.rawPath }) {
			set := pathCol + " = " + s.dialect.placeholder(1)
			args := []any{to.Slash()}
			if col, ok := cols[fieldName]; ok {
				set += ", " + quoteIdent(col) + " = " + s.dialect.placeholder(2)
				args = append(args, newName)
			}
			args = append(args, raw)
			stmt := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
				quoteIdent(table), set, pathCol, s.dialect.placeholder(len(args)))
			if _, err := tx.ExecContext(ctx, stmt, args...); err != nil {
				return fmt.Errorf("rename %s: %w", raw, err)
			}
		}
		if !isDir {
			return nil
		}
		return s.rebaseDescendants(ctx, tx, table, cols, rows, from, to)
	})
	metrics.RecordMutation("rename", err)
	if err != nil {
		return "", err
	}
	return to.String(), nil
}

// rebaseDescendants rewrites every path and declared parent under from so
// it sits under to instead. Rows are addressed by their stored values, and
// paths and parents are rewritten independently.
func (s *SQLStore) rebaseDescendants(ctx context.Context, tx *sql.Tx, table string, cols map[field]string, rows []storedRow, from, to graph.Path) error {
	pathCol := quoteIdent(cols[fieldPath])
	pathStmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		quoteIdent(table), pathCol, s.dialect.placeholder(1), pathCol, s.dialect.placeholder(2))

	var under []storedRow
	for _, r := range rows {
		if len(r.path) > len(from) && r.path.HasPrefix(from) {
			under = append(under, r)
		}
	}
	for _, raw := range distinct(under, func(r storedRow) string { return r.rawPath }) {
		moved := graph.Normalize(raw).Rebase(from, to)
		if _, err := tx.ExecContext(ctx, pathStmt, moved.Slash(), raw); err != nil {
			return fmt.Errorf("move %s: %w", raw, err)
		}
	}

	parentCol, ok := cols[fieldParent]
	if !ok {
		return nil
	}
	parentStmt := fmt.Sprintf("UPDATE %s SET %s = %s WHERE %s = %s",
		quoteIdent(table), quoteIdent(parentCol), s.dialect.placeholder(1), quoteIdent(parentCol), s.dialect.placeholder(2))

	var children []storedRow
	for _, r := range rows {
		if r.parent.HasPrefix(from) {
			children = append(children, r)
		}
	}
	for _, raw := range distinct(children, func(r storedRow) string { return r.rawParent }) {
		moved := graph.Normalize(raw).Rebase(from, to)
		if _, err := tx.ExecContext(ctx, parentStmt, moved.Slash(), raw); err != nil {
			return fmt.Errorf("reparent %s: %w", raw, err)
		}
	}
	return nil
}

// Delete implements Mutator. Descendants go too when recursive is set or
// the target looks like a directory. If nothing sits at or under the path,
// records declaring it as their parent are removed instead.
func (s *SQLStore) Delete(ctx context.Context, path string, recursive bool) (int, error) {
	target := graph.Parse(path)
	if target.IsZero() {
		return 0, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	withDescendants := recursive || !strings.Contains(target.Base(), ".")

	var removed int
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		table, cols, err := s.tableColumns(ctx, tx)
		if err != nil {
			return err
		}
		rows, err := s.storedRows(ctx, tx, table, cols)
		if err != nil {
			return err
		}

		var byPath []storedRow
		for _, r := range rows {
			if r.path.Equal(target) || (withDescendants && r.path.HasPrefix(target)) {
				byPath = append(byPath, r)
			}
		}
		n, err := s.deleteWhere(ctx, tx, table, cols[fieldPath],
			distinct(byPath, func(r storedRow) string { return r.rawPath }))
		if err != nil {
			return err
		}
		removed += n

		if removed == 0 {
			if parentCol, ok := cols[fieldParent]; ok {
				var byParent []storedRow
				for _, r := range rows {
					if r.parent.Equal(target) {
						byParent = append(byParent, r)
					}
				}
				n, err := s.deleteWhere(ctx, tx, table, parentCol,
					distinct(byParent, func(r storedRow) string { return r.rawParent }))
				if err != nil {
					return err
				}
				removed += n
			}
		}
		if removed == 0 {
			return fmt.Errorf("%w: %s", ErrNotFound, target)
		}
		return nil
	})
	metrics.RecordMutation("delete", err)
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *SQLStore) deleteWhere(ctx context.Context, tx *sql.Tx, table, col string, values []string) (int, error) {
	stmt := fmt.Sprintf("DELETE FROM %s WHERE %s = %s",
		quoteIdent(table), quoteIdent(col), s.dialect.placeholder(1))
	total := 0
	for _, v := range values {
		res, err := tx.ExecContext(ctx, stmt, v)
		if err != nil {
			return 0, fmt.Errorf("delete %s: %w", v, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, err
		}
		total += int(n)
	}
	return total, nil
}

// storedRows reads the columns mutations need from every record.
func (s *SQLStore) storedRows(ctx context.Context, q queryer, table string, cols map[field]string) ([]storedRow, error) {
	pathCol, ok := cols[fieldPath]
	if !ok {
		return nil, fmt.Errorf("%w: %s has no path column", ErrTableMissing, table)
	}
	exprs := []string{quoteIdent(pathCol), "NULL", "NULL"}
	if col, ok := cols[fieldParent]; ok {
		exprs[1] = quoteIdent(col)
	}
	if col, ok := cols[fieldKind]; ok {
		exprs[2] = quoteIdent(col)
	}
	query := "SELECT " + strings.Join(exprs, ", ") + " FROM " + quoteIdent(table)

	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: query records: %v", ErrStoreUnavailable, err)
	}
	defer func() { _ = rows.Close() }() // safe to ignore

	var out []storedRow
	for rows.Next() {
		var rawPath, rawParent, kind any
		if err := rows.Scan(&rawPath, &rawParent, &kind); err != nil {
			return nil, fmt.Errorf("%w: scan record: %v", ErrStoreUnavailable, err)
		}
		r := storedRow{
			rawPath:   toString(rawPath),
			rawParent: toString(rawParent),
			kind:      toString(kind),
		}
		r.path = graph.Normalize(r.rawPath)
		r.parent = graph.Normalize(r.rawParent)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *SQLStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", ErrStoreUnavailable, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// distinct returns the sorted, de-duplicated non-empty keys of rows.
func distinct(rows []storedRow, key func(storedRow) string) []string {
	seen := make(map[string]struct{}, len(rows))
	var out []string
	for _, r := range rows {
		k := key(r)
		if k == "" {
			continue
		}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func validName(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidName)
	}
	if strings.ContainsAny(name, `/\|`) {
		return fmt.Errorf("%w: %q contains a path separator", ErrInvalidName, name)
	}
	return nil
}
