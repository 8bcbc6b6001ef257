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

// Package records extracts (id, quantity)
// pairs from decoded frame text.
//
// The text is a sequence of groups of the form
//
//	<id>-<quantity>-<field>-...|
//
// Only the first two fields of a group are read.
// Digits accumulate with uint32 wrap-around and
// any other byte inside a field is ignored. A field
// ends only at '-', so a group with fewer than two
// dashes runs on into the next group. Groups whose
// quantity is zero are skipped.
package records

import (
	"cmp"
	"strconv"

	"golang.org/x/exp/slices"
)

// Record is one in-stock item.
type Record struct {
	ID       uint32
	Quantity uint32
}

// Key returns the decimal form of the id,
// which is how ids are keyed in lookup tables.
func (r Record) Key() string {
	return strconv.FormatUint(uint64(r.ID), 10)
}

func (r Record) String() string {
	return "(" + r.Key() + ", " + strconv.FormatUint(uint64(r.Quantity), 10) + ")"
}

// Parse appends the records in src to dst.
func Parse(dst []Record, src []byte) []Record {
	var s Scanner
	s.Reset(src)
	for s.Next() {
		dst = append(dst, s.Record())
	}
	return dst
}

// Scanner reads records one group at a time.
type Scanner struct {
	src     []byte
	pos     int
	rec     Record
	groups  int
	skipped int
}

// Reset prepares s to scan src.
func (s *Scanner) Reset(src []byte) {
	*s = Scanner{src: src}
}

// Next advances to the next group with a
// non-zero quantity and reports whether
// one was found.
func (s *Scanner) Next() bool {
	src := s.src
	for s.pos < len(src) {
		var id, qty uint32
		i := s.pos
		for ; i < len(src) && src[i] != '-'; i++ {
			if c := src[i] - '0'; c <= 9 {
				id = id*10 + uint32(c)
			}
		}
		i++
		for ; i < len(src) && src[i] != '-'; i++ {
			if c := src[i] - '0'; c <= 9 {
				qty = qty*10 + uint32(c)
			}
		}
		for i < len(src) && src[i] != '|' {
			i++
		}
		s.pos = i + 1
		s.groups++
		if qty > 0 {
			s.rec = Record{ID: id, Quantity: qty}
			return true
		}
		s.skipped++
	}
	return false
}

// Record returns the record found
// by the last call to Next.
func (s *Scanner) Record() Record { return s.rec }

// Groups returns the number of groups scanned.
func (s *Scanner) Groups() int { return s.groups }

// Skipped returns the number of groups dropped
// because their quantity was zero or missing.
func (s *Scanner) Skipped() int { return s.skipped }

// SortByID sorts recs by id, keeping the
// relative order of records with equal ids.
func SortByID(recs []Record) {
	slices.SortStableFunc(recs, func(a, b Record) int {
		return cmp.Compare(a.ID, b.ID)
	})
}

// Dedupe sorts recs by id and removes all but
// the last record for each id, which is the
// most recent one in frame order.
func Dedupe(recs []Record) []Record {
	if len(recs) < 2 {
		return recs
	}
	slices.Reverse(recs)
	SortByID(recs)
	return slices.CompactFunc(recs, func(a, b Record) bool {
		return a.ID == b.ID
	})
}

// Format appends recs to dst in the
// group syntax, with extra as the
// third field of every group.
func Format(dst []byte, recs []Record, extra uint32) []byte {
	for _, r := range recs {
		dst = strconv.AppendUint(dst, uint64(r.ID), 10)
		dst = append(dst, '-')
		dst = strconv.AppendUint(dst, uint64(r.Quantity), 10)
		dst = append(dst, '-')
		dst = strconv.AppendUint(dst, uint64(extra), 10)
		dst = append(dst, '|')
	}
	return dst
}
