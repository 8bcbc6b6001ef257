// Copyright 2023 Sneller, Inc.
//
//  Licensed under the Apache License, Version 2.0 (the "License");
//  you may not use this file except in compliance with the License.
//  You may obtain a copy of the License at
//
//    http://www.apache.org/licenses/LICENSE-2.0
//
//  Unless required by applicable law or agreed to in writing, software
//  distributed under the License is distributed on an "AS IS" BASIS,
//  WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
//  See the License for the specific language governing permissions and
//  limitations under the License.

package lookup

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
)

// maxBatch is the number of ids
// bound to a single IN (...) query
const maxBatch = 500

// SQLite is a Source backed by a sqlite3
// database with one SQL table per named table,
// each with columns (id TEXT PRIMARY KEY, value TEXT).
type SQLite struct {
	db     *sql.DB
	tables []string
}

// validName reports whether name can be
// used unquoted as a table name
func validName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// OpenSQLite opens the database at path and
// creates any of the named tables that do
// not exist yet. Lookups return values in
// the order tables are given.
func OpenSQLite(path string, tables ...string) (*SQLite, error) {
	if len(tables) == 0 {
		return nil, fmt.Errorf("lookup: no tables given for %s", path)
	}
	for _, name := range tables {
		if !validName(name) {
			return nil, fmt.Errorf("lookup: invalid table name %q", name)
		}
	}
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("lookup: opening %s: %w", path, err)
	}
	for _, name := range tables {
		q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %q (id TEXT PRIMARY KEY, value TEXT NOT NULL)`, name)
		if _, err := db.Exec(q); err != nil {
			db.Close()
			return nil, fmt.Errorf("lookup: creating table %s: %w", name, err)
		}
	}
	return &SQLite{db: db, tables: append([]string(nil), tables...)}, nil
}

// Tables returns the table names in lookup order.
func (s *SQLite) Tables() []string { return s.tables }

func (s *SQLite) has(table string) bool {
	for _, name := range s.tables {
		if name == table {
			return true
		}
	}
	return false
}

// Put inserts or replaces entries in
// the named table in one transaction.
func (s *SQLite) Put(ctx context.Context, table string, entries map[string]string) error {
	if !s.has(table) {
		return fmt.Errorf("lookup: unknown table %q", table)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT OR REPLACE INTO %q (id, value) VALUES (?, ?)`, table))
	if err != nil {
		tx.Rollback()
		return err
	}
	defer stmt.Close()
	for id, val := range entries {
		if _, err := stmt.ExecContext(ctx, id, val); err != nil {
			tx.Rollback()
			return fmt.Errorf("lookup: inserting %s into %s: %w", id, table, err)
		}
	}
	return tx.Commit()
}

// Import copies every table of t into the
// database; tables unknown to s are skipped.
func (s *SQLite) Import(ctx context.Context, t *Tables) error {
	for _, name := range t.Names() {
		if !s.has(name) {
			continue
		}
		m, _ := t.Table(name)
		if err := s.Put(ctx, name, m); err != nil {
			return err
		}
	}
	return nil
}

// Lookup implements Source.Lookup.
func (s *SQLite) Lookup(ctx context.Context, ids []string) ([]Result, error) {
	out := make([]Result, len(ids))
	pos := make(map[string][]int, len(ids))
	for i, id := range ids {
		out[i] = Result{ID: id, Values: make([]Value, len(s.tables))}
		pos[id] = append(pos[id], i)
	}
	for j, table := range s.tables {
		for start := 0; start < len(ids); start += maxBatch {
			batch := ids[start:min(start+maxBatch, len(ids))]
			if err := s.query(ctx, table, batch, func(id, val string) {
				for _, i := range pos[id] {
					out[i].Values[j] = Value{String: val, OK: true}
				}
			}); err != nil {
				return nil, err
			}
		}
	}
	return out, nil
}

func (s *SQLite) query(ctx context.Context, table string, ids []string, fn func(id, val string)) error {
	var q strings.Builder
	fmt.Fprintf(&q, `SELECT id, value FROM %q WHERE id IN (`, table)
	args := make([]any, len(ids))
	for i := range ids {
		if i > 0 {
			q.WriteByte(',')
		}
		q.WriteByte('?')
		args[i] = ids[i]
	}
	q.WriteByte(')')
	rows, err := s.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return fmt.Errorf("lookup: querying %s: %w", table, err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, val string
		if err := rows.Scan(&id, &val); err != nil {
			return err
		}
		fn(id, val)
	}
	return rows.Err()
}

// Close closes the database.
func (s *SQLite) Close() error { return s.db.Close() }
