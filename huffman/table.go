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

const (
	// DefaultShortBits is the default width
	// of the direct-index code table.
	DefaultShortBits = 8
	// MaxShortBits is the largest supported
	// direct-index width (a 64Ki-entry table).
	MaxShortBits = 16
)

// Entry is a resolved short code.
// An Entry with Len == 0 is empty.
type Entry struct {
	Symbol byte
	Len    uint8
}

// LongCode is a code longer than
// the table width.
type LongCode struct {
	Bits   uint64
	Len    uint8
	Symbol byte
}

// Table maps a fixed-width window of
// bits to the code that begins the window.
//
// Every code of length L <= Width() occupies
// 2^(Width()-L) consecutive slots: the slots
// whose top L bits equal the code. Codes longer
// than Width() are kept in a separate list.
type Table struct {
	width uint
	dense []Entry
	long  []LongCode
}

// NewTable returns an empty table
// indexed by width-bit windows.
func NewTable(width uint) (*Table, error) {
	if width == 0 || width > MaxShortBits {
		return nil, ErrWidth
	}
	return &Table{
		width: width,
		dense: make([]Entry, 1<<width),
	}, nil
}

// Width returns the direct-index width.
func (t *Table) Width() uint { return t.width }

// Reset removes every code.
func (t *Table) Reset() {
	clear(t.dense)
	t.long = t.long[:0]
}

// Insert adds the code consisting of the
// low length bits of code for sym.
// Zero-length codes are ignored.
func (t *Table) Insert(code uint64, length uint, sym byte) {
	if length == 0 {
		return
	}
	if length > t.width {
		t.long = append(t.long, LongCode{
			Bits:   code & mask(length),
			Len:    uint8(length),
			Symbol: sym,
		})
		return
	}
	free := t.width - length
	base := (code & mask(length)) << free
	e := Entry{Symbol: sym, Len: uint8(length)}
	for i := uint64(0); i < uint64(1)<<free; i++ {
		t.dense[base|i] = e
	}
}

// Lookup resolves the code at the top of a
// width-bit window. For width <= Width() the
// window is masked to Width() bits and looked up
// directly; a miss means the code is longer than
// Width(). Wider windows scan the long-code list.
func (t *Table) Lookup(bits uint64, width uint) (Entry, bool) {
	if width <= t.width {
		e := t.dense[bits&mask(t.width)]
		return e, e.Len != 0
	}
	bits &= mask(width)
	for i := range t.long {
		lc := &t.long[i]
		l := uint(lc.Len)
		if l > width {
			continue
		}
		if bits>>(width-l) == lc.Bits {
			return Entry{Symbol: lc.Symbol, Len: lc.Len}, true
		}
	}
	return Entry{}, false
}

// At returns the dense slot at index i.
func (t *Table) At(i int) Entry { return t.dense[i] }

// Long returns the codes longer than Width().
// The returned slice is only valid until
// the next call to Reset.
func (t *Table) Long() []LongCode { return t.long }

// mask returns a mask of the low n bits
func mask(n uint) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << n) - 1
}
