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
	"encoding/binary"
)

const (
	// PrefixSize is the size of the opaque
	// frame prefix preceding the symbol count.
	PrefixSize = 8
	// EntrySize is the size of one
	// symbol table entry.
	EntrySize = 8
	// MaxSymbolEntries is the largest symbol
	// count accepted in a frame header.
	MaxSymbolEntries = 1 << 16

	reservedSize = 4
)

// Header is the parsed fixed portion of a frame.
type Header struct {
	// Prefix is the opaque leading 8 bytes.
	Prefix [PrefixSize]byte
	// Entries is the declared number
	// of symbol table entries.
	Entries int
	// PackedBits is the number of valid
	// bits in the payload.
	PackedBits uint32
	// PackedLen is the payload length in bytes.
	PackedLen uint32
	// PayloadOffset is the offset of the
	// first payload byte within the frame.
	PayloadOffset int
}

// reader is a bounds-checked little-endian
// reader over one frame; every failed read
// produces a *FrameError
type reader struct {
	buf   []byte
	off   int
	state State
}

func (r *reader) fail(field string, err error) error {
	return &FrameError{State: r.state, Field: field, Offset: r.off, Err: err}
}

func (r *reader) avail() int { return len(r.buf) - r.off }

func (r *reader) uint32(field string) (uint32, error) {
	if r.avail() < 4 {
		return 0, r.fail(field, ErrTruncated)
	}
	v := binary.LittleEndian.Uint32(r.buf[r.off:])
	r.off += 4
	return v, nil
}

func (r *reader) bytes(n int, field string) ([]byte, error) {
	if n < 0 || r.avail() < n {
		return nil, r.fail(field, ErrTruncated)
	}
	b := r.buf[r.off : r.off+n : r.off+n]
	r.off += n
	return b, nil
}

func (r *reader) skip(n int, field string) error {
	_, err := r.bytes(n, field)
	return err
}

// parseHeader reads the prefix and the symbol table
// into f, leaving r positioned at the packed length fields.
func parseHeader(r *reader, h *Header, f *FreqTable) error {
	r.state = StateParsingHeader
	f.Reset()
	prefix, err := r.bytes(PrefixSize, "prefix")
	if err != nil {
		return err
	}
	copy(h.Prefix[:], prefix)
	n, err := r.uint32("symbol count")
	if err != nil {
		return err
	}
	if n > MaxSymbolEntries {
		return r.fail("symbol count", ErrSymbolCount)
	}
	h.Entries = int(n)
	if r.avail() < h.Entries*EntrySize {
		return r.fail("symbol table", ErrTruncated)
	}
	for i := 0; i < h.Entries; i++ {
		ent, err := r.bytes(EntrySize, "symbol entry")
		if err != nil {
			return err
		}
		f.Add(ent[4], binary.LittleEndian.Uint32(ent))
	}
	return nil
}

// parseLengths reads the trailing length fields
// and returns the payload
func parseLengths(r *reader, h *Header) ([]byte, error) {
	var err error
	h.PackedBits, err = r.uint32("packed bits")
	if err != nil {
		return nil, err
	}
	h.PackedLen, err = r.uint32("packed length")
	if err != nil {
		return nil, err
	}
	if err := r.skip(reservedSize, "reserved"); err != nil {
		return nil, err
	}
	h.PayloadOffset = r.off
	if uint64(h.PackedLen) > uint64(r.avail()) {
		return nil, r.fail("payload", ErrTruncated)
	}
	return r.bytes(int(h.PackedLen), "payload")
}
