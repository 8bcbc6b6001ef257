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

package ingest

import (
	"sync/atomic"
)

// Stats are the counters kept by a Service.
// Every field is updated atomically.
type Stats struct {
	// Frames is the number of signals
	// that led to a snapshot attempt.
	Frames atomic.Int64
	// Empty is the number of empty snapshots.
	Empty atomic.Int64
	// Duplicates is the number of frames
	// identical to the previous frame
	// from the same producer.
	Duplicates atomic.Int64
	// Dropped is the number of frames lost
	// to torn reads or malformed contents.
	Dropped atomic.Int64
	// Records is the number of
	// records parsed from frames.
	Records atomic.Int64
	// Skipped is the number of groups
	// that did not produce a record.
	Skipped atomic.Int64
	// New is the number of records whose
	// ids were not in stock in the previous
	// frame from the same producer.
	New atomic.Int64
	// Missing is the number of new ids
	// absent from every lookup table.
	Missing atomic.Int64
	// LookupErrors is the number of
	// failed lookup batches.
	LookupErrors atomic.Int64
	// Notified is the number of
	// messages handed to the notifier.
	Notified atomic.Int64
}

// Map returns the current value of
// every counter keyed by name.
func (s *Stats) Map() map[string]int64 {
	return map[string]int64{
		"frames":        s.Frames.Load(),
		"empty":         s.Empty.Load(),
		"duplicates":    s.Duplicates.Load(),
		"dropped":       s.Dropped.Load(),
		"records":       s.Records.Load(),
		"skipped":       s.Skipped.Load(),
		"new":           s.New.Load(),
		"missing":       s.Missing.Load(),
		"lookup_errors": s.LookupErrors.Load(),
		"notified":      s.Notified.Load(),
	}
}
