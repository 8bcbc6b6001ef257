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

package huffman

import (
	"errors"
	"fmt"
)

var (
	// ErrTruncated is returned when a frame
	// declares more bytes than it contains.
	ErrTruncated = errors.New("truncated frame")
	// ErrSymbolCount is returned when a frame
	// declares more than MaxSymbolEntries symbols.
	ErrSymbolCount = errors.New("symbol count out of range")
	// ErrAmbiguousCode is returned when the
	// bit stream cannot be resolved to a symbol
	// by either the code table or the tree.
	ErrAmbiguousCode = errors.New("no code matches bit stream")
	// ErrCursorOverflow is returned by Cursor.Push
	// when there is less than one byte of headroom.
	ErrCursorOverflow = errors.New("bit cursor overflow")
	// ErrCursorUnderflow is returned by Cursor.Peek
	// and Cursor.Consume when asked for more bits
	// than the cursor holds.
	ErrCursorUnderflow = errors.New("bit cursor underflow")
	// ErrWidth is returned by NewTable and NewDecoder
	// for a short-code width outside [1, MaxShortBits].
	ErrWidth = errors.New("short-code width out of range")
)

// State is the stage of frame decoding.
type State uint8

const (
	StateIdle State = iota
	StateParsingHeader
	StateBuildingTree
	StateDecoding
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateParsingHeader:
		return "parsing header"
	case StateBuildingTree:
		return "building tree"
	case StateDecoding:
		return "decoding"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// FrameError describes a malformed frame.
// Frame errors are recoverable: the frame
// is dropped and the decoder can be reused.
type FrameError struct {
	// State is the stage that failed.
	State State
	// Field names the header field
	// or payload region being read.
	Field string
	// Offset is the byte offset into
	// the frame at which the read began.
	Offset int
	// Err is the underlying cause.
	Err error
}

func (f *FrameError) Error() string {
	return fmt.Sprintf("huffman: %s: %s at offset %d: %s", f.State, f.Field, f.Offset, f.Err)
}

func (f *FrameError) Unwrap() error { return f.Err }
