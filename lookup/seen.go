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
	"github.com/SnellerInc/shmingest/records"
)

// Seen tracks which ids each producer
// reported as in stock in its previous frame.
//
// Seen is not safe for concurrent use.
type Seen struct {
	prev map[uint32]map[uint32]struct{}
	// spare set recycled across updates
	spare map[uint32]struct{}
}

// NewSeen returns an empty Seen.
func NewSeen() *Seen {
	return &Seen{prev: make(map[uint32]map[uint32]struct{})}
}

// Update records recs as the current frame of
// producer and appends to dst the records whose
// ids were not present in that producer's
// previous frame. Records with a zero quantity
// are ignored, and an id repeated within recs
// is reported at most once.
func (s *Seen) Update(dst []records.Record, producer uint32, recs []records.Record) []records.Record {
	prev := s.prev[producer]
	cur := s.spare
	s.spare = nil
	if cur == nil {
		cur = make(map[uint32]struct{}, len(recs))
	}
	for _, r := range recs {
		if r.Quantity == 0 {
			continue
		}
		if _, dup := cur[r.ID]; dup {
			continue
		}
		cur[r.ID] = struct{}{}
		if _, ok := prev[r.ID]; !ok {
			dst = append(dst, r)
		}
	}
	s.prev[producer] = cur
	if prev != nil {
		clear(prev)
		s.spare = prev
	}
	return dst
}

// Forget drops the state kept for producer,
// so every id in its next frame is new.
func (s *Seen) Forget(producer uint32) {
	delete(s.prev, producer)
}

// Len returns the number of ids currently
// in stock for producer.
func (s *Seen) Len(producer uint32) int {
	return len(s.prev[producer])
}
