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

// Package lookup resolves record ids against
// one or more named key-value tables.
//
// A Source answers a batch of ids with one
// Value per backing table, in table order.
// Tables keeps the tables in memory and can
// be saved to and restored from a compressed
// snapshot file; SQLite keeps them in a
// database file.
package lookup

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/exp/maps"
)

// Value is the result of looking
// up one id in one table.
type Value struct {
	String string
	OK     bool
}

// Result holds the values for one id,
// one per table in table order.
type Result struct {
	ID     string
	Values []Value
}

// First returns the first value that is present.
func (r *Result) First() (string, bool) {
	for i := range r.Values {
		if r.Values[i].OK {
			return r.Values[i].String, true
		}
	}
	return "", false
}

// Found reports whether the id is
// present in any table.
func (r *Result) Found() bool {
	_, ok := r.First()
	return ok
}

// Source is implemented by id tables.
//
// Lookup returns one Result per id, in the
// order of ids. Implementations must be safe
// for concurrent use.
type Source interface {
	Lookup(ctx context.Context, ids []string) ([]Result, error)
}

// Tables is an in-memory Source.
// The zero value holds no tables and
// is ready to use.
type Tables struct {
	lock  sync.RWMutex
	names []string
	tabs  map[string]map[string]string
}

// NewTables returns an empty Tables.
func NewTables() *Tables {
	return &Tables{}
}

// Add appends a table or replaces the contents of
// an existing table with the same name. The entries
// are copied, so the caller may reuse m.
func (t *Tables) Add(name string, m map[string]string) {
	m = maps.Clone(m)
	if m == nil {
		m = make(map[string]string)
	}
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.tabs == nil {
		t.tabs = make(map[string]map[string]string)
	}
	if _, ok := t.tabs[name]; !ok {
		t.names = append(t.names, name)
	}
	t.tabs[name] = m
}

// Names returns the table names in table order.
func (t *Tables) Names() []string {
	t.lock.RLock()
	defer t.lock.RUnlock()
	return append([]string(nil), t.names...)
}

// Table returns a copy of the named table.
func (t *Tables) Table(name string) (map[string]string, bool) {
	t.lock.RLock()
	defer t.lock.RUnlock()
	m, ok := t.tabs[name]
	if !ok {
		return nil, false
	}
	return maps.Clone(m), true
}

// Len returns the total number of
// entries across all tables.
func (t *Tables) Len() int {
	t.lock.RLock()
	defer t.lock.RUnlock()
	n := 0
	for _, m := range t.tabs {
		n += len(m)
	}
	return n
}

// Replace atomically replaces the
// contents of t with those of other.
func (t *Tables) Replace(other *Tables) {
	other.lock.RLock()
	names := append([]string(nil), other.names...)
	tabs := maps.Clone(other.tabs)
	other.lock.RUnlock()

	t.lock.Lock()
	t.names = names
	t.tabs = tabs
	t.lock.Unlock()
}

// Lookup implements Source.Lookup.
func (t *Tables) Lookup(ctx context.Context, ids []string) ([]Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	t.lock.RLock()
	defer t.lock.RUnlock()
	out := make([]Result, len(ids))
	for i, id := range ids {
		vals := make([]Value, len(t.names))
		for j, name := range t.names {
			vals[j].String, vals[j].OK = t.tabs[name][id]
		}
		out[i] = Result{ID: id, Values: vals}
	}
	return out, nil
}

// String implements fmt.Stringer.
func (t *Tables) String() string {
	return fmt.Sprintf("lookup.Tables(%d tables, %d entries)", len(t.Names()), t.Len())
}
