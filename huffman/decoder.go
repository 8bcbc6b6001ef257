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
	"fmt"
	"os"
	"unicode/utf8"
)

// Config configures a Decoder.
type Config struct {
	// ShortBits is the width of the direct-index
	// code table. Zero means DefaultShortBits.
	ShortBits uint
	// TrimToPackedBits stops decoding after
	// the header's packed bit count and decodes
	// the final window shorter than ShortBits
	// through the tree. When false, decoding stops
	// as soon as fewer than ShortBits bits remain
	// in the payload, and any trailing code in that
	// window is not emitted.
	TrimToPackedBits bool
}

// Decoder decodes frames. A Decoder may be
// reused for any number of frames, but it is
// not safe for concurrent use; each frame
// rebuilds the tree and code table from scratch.
type Decoder struct {
	cfg   Config
	state State
	hdr   Header
	freq  FreqTable
	tree  Tree
	table *Table
	cur   Cursor

	payload []byte
	pos     int
	refill  func() bool
}

// NewDecoder constructs a Decoder.
func NewDecoder(cfg Config) (*Decoder, error) {
	if cfg.ShortBits == 0 {
		cfg.ShortBits = DefaultShortBits
	}
	tab, err := NewTable(cfg.ShortBits)
	if err != nil {
		return nil, fmt.Errorf("huffman.NewDecoder: %w", err)
	}
	d := &Decoder{cfg: cfg, table: tab}
	d.refill = d.more
	return d, nil
}

// State returns the stage reached
// by the most recent call to Decode.
func (d *Decoder) State() State { return d.state }

// Header returns the header of the most recently
// decoded frame. Fields past the point of
// failure of a malformed frame are zero.
func (d *Decoder) Header() Header { return d.hdr }

// Codes appends the code of every symbol
// of the most recently decoded frame to dst.
func (d *Decoder) Codes(dst []Code) []Code { return d.tree.Codes(dst) }

// Table returns the code table built
// for the most recently decoded frame.
func (d *Decoder) Table() *Table { return d.table }

// Decode decodes frame into a new buffer.
func (d *Decoder) Decode(frame []byte) ([]byte, error) {
	return d.DecodeAppend(nil, frame)
}

// DecodeFile reads the frame stored
// in the file at path and decodes it.
func (d *Decoder) DecodeFile(path string) ([]byte, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return d.Decode(buf)
}

// DecodeAppend decodes frame and appends the
// decoded text to dst. Each symbol is emitted as
// the UTF-8 encoding of the code point with the
// same value, so symbols >= 0x80 occupy two bytes.
//
// Malformed frames produce a *FrameError; dst
// is returned unmodified in that case.
func (d *Decoder) DecodeAppend(dst, frame []byte) ([]byte, error) {
	d.hdr = Header{}
	d.payload = nil
	d.pos = 0
	d.cur.Reset()

	d.state = StateParsingHeader
	r := reader{buf: frame}
	if err := parseHeader(&r, &d.hdr, &d.freq); err != nil {
		d.state = StateFailed
		return dst, err
	}

	d.state = StateBuildingTree
	d.tree.Build(&d.freq)
	d.table.Reset()
	d.tree.Assign(d.table)

	d.state = StateDecoding
	r.state = StateDecoding
	payload, err := parseLengths(&r, &d.hdr)
	if err != nil {
		d.state = StateFailed
		return dst, err
	}
	if d.tree.Empty() {
		d.state = StateDone
		return dst, nil
	}
	d.payload = payload
	d.fill()

	start := len(dst)
	if d.cfg.TrimToPackedBits {
		dst, err = d.decodeTrimmed(dst)
	} else {
		dst, err = d.decodeWindows(dst)
	}
	d.payload = nil
	if err != nil {
		d.state = StateFailed
		return dst[:start], &FrameError{
			State:  StateDecoding,
			Field:  "payload",
			Offset: d.hdr.PayloadOffset + d.pos,
			Err:    err,
		}
	}
	d.state = StateDone
	return dst, nil
}

// decodeWindows decodes while at least one
// full table window of bits is available
func (d *Decoder) decodeWindows(dst []byte) ([]byte, error) {
	w := d.table.Width()
	for d.cur.n >= w {
		if e, ok := d.table.Lookup(d.cur.bits>>(d.cur.n-w), w); ok {
			d.cur.Consume(uint(e.Len))
			dst = emit(dst, e.Symbol)
		} else {
			sym, depth, ok := d.tree.Walk(&d.cur, ^uint(0), d.refill)
			if !ok {
				break
			}
			if depth <= w {
				return dst, ErrAmbiguousCode
			}
			dst = emit(dst, sym)
		}
		d.fill()
	}
	return dst, nil
}

// decodeTrimmed decodes exactly PackedBits bits
func (d *Decoder) decodeTrimmed(dst []byte) ([]byte, error) {
	w := d.table.Width()
	remain := uint64(d.hdr.PackedBits)
	if avail := uint64(len(d.payload)) * 8; remain > avail {
		remain = avail
	}
	for remain > 0 {
		window := d.cur.n >= w && remain >= uint64(w)
		if window {
			if e, ok := d.table.Lookup(d.cur.bits>>(d.cur.n-w), w); ok {
				d.cur.Consume(uint(e.Len))
				remain -= uint64(e.Len)
				dst = emit(dst, e.Symbol)
				d.fill()
				continue
			}
		}
		limit := ^uint(0)
		if remain < uint64(limit) {
			limit = uint(remain)
		}
		sym, depth, ok := d.tree.Walk(&d.cur, limit, d.refill)
		remain -= uint64(depth)
		if !ok {
			break
		}
		if window && depth <= w {
			return dst, ErrAmbiguousCode
		}
		dst = emit(dst, sym)
		d.fill()
	}
	return dst, nil
}

// fill pushes payload bytes while
// the cursor has a byte of headroom
func (d *Decoder) fill() {
	for d.cur.n <= maxFill && d.pos < len(d.payload) {
		d.cur.bits = d.cur.bits<<8 | uint64(d.payload[d.pos])
		d.cur.n += 8
		d.pos++
	}
}

func (d *Decoder) more() bool {
	d.fill()
	return d.cur.n > 0
}

func emit(dst []byte, sym byte) []byte {
	if sym < utf8.RuneSelf {
		return append(dst, sym)
	}
	return utf8.AppendRune(dst, rune(sym))
}
