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

package shm

import (
	"errors"
	"fmt"
)

var (
	// ErrTornRead is returned by Snapshot when
	// the producer kept overwriting the record
	// while it was being copied.
	ErrTornRead = errors.New("shm: torn read")
	// ErrBadLength is returned by Snapshot when
	// the record declares a length that does
	// not fit in the segment.
	ErrBadLength = errors.New("shm: record length out of range")
	// ErrOutOfRange is returned by Segment
	// accessors for offsets outside the mapping.
	ErrOutOfRange = errors.New("shm: offset out of range")
	// ErrTooLarge is returned by Publish for
	// a frame larger than the segment capacity.
	ErrTooLarge = errors.New("shm: frame exceeds segment capacity")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("shm: closed")
)

// SegmentError is returned when a segment
// cannot be created, opened or mapped.
// It is not recoverable.
type SegmentError struct {
	Op   string
	Path string
	Err  error
}

func (s *SegmentError) Error() string {
	return fmt.Sprintf("shm: %s %s: %s", s.Op, s.Path, s.Err)
}

func (s *SegmentError) Unwrap() error { return s.Err }
