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

// Package framegen produces Huffman frames
// for tests and for the producer simulator.
//
// The encoder derives its codes from huffman.Tree,
// so frames it produces are decodable by
// construction; it exists to exercise the decoder,
// not as a general-purpose compressor.
package framegen

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/SnellerInc/shmingest/huffman"
)

// ErrNoCode is returned when the text contains
// a symbol that has no code in the table, which
// includes every symbol of a one-symbol table.
var ErrNoCode = errors.New("framegen: symbol has no code")

// Filler is the symbol appended by Pad.
// It is not a digit, '-' or '|', so trailing
// filler never forms a record.
const Filler = ' '

// Count returns a frequency table for text,
// with symbols in order of first occurrence.
func Count(text []byte) *huffman.FreqTable {
	var counts [256]uint32
	var order []byte
	for _, b := range text {
		if counts[b] == 0 {
			order = append(order, b)
		}
		counts[b]++
	}
	f := new(huffman.FreqTable)
	for _, b := range order {
		f.Add(b, counts[b])
	}
	return f
}

// Encode returns a frame containing text,
// using the frequencies of text itself.
func Encode(text []byte) ([]byte, error) {
	return EncodeTable(nil, Count(text), text)
}

// Pad appends enough Filler symbols to text that
// a decoder which does not decode the final short
// window still recovers all of the original text.
func Pad(text []byte, width uint) []byte {
	for i := uint(0); i < width; i++ {
		text = append(text, Filler)
	}
	return text
}

// EncodeTable appends to dst a frame that
// encodes text with the codes derived from f.
func EncodeTable(dst []byte, f *huffman.FreqTable, text []byte) ([]byte, error) {
	var t huffman.Tree
	t.Build(f)
	var codes [256]huffman.Code
	for _, c := range t.Codes(nil) {
		if c.Len > 64 {
			return nil, fmt.Errorf("framegen: code for %q is %d bits", c.Symbol, c.Len)
		}
		codes[c.Symbol] = c
	}
	var w bitWriter
	for _, b := range text {
		c := &codes[b]
		if c.Len == 0 {
			return nil, fmt.Errorf("%w: %q", ErrNoCode, b)
		}
		w.write(c.Bits, c.Len)
	}
	payload := w.flush()
	return Assemble(dst, [huffman.PrefixSize]byte{}, f.Symbols(), uint32(w.total), payload), nil
}

// Assemble appends a frame with the given
// fields to dst without validating them.
func Assemble(dst []byte, prefix [huffman.PrefixSize]byte, syms []huffman.Symbol, bits uint32, payload []byte) []byte {
	dst = append(dst, prefix[:]...)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(syms)))
	for _, s := range syms {
		dst = binary.LittleEndian.AppendUint32(dst, s.Count)
		dst = append(dst, s.Sym, 0, 0, 0)
	}
	dst = binary.LittleEndian.AppendUint32(dst, bits)
	dst = binary.LittleEndian.AppendUint32(dst, uint32(len(payload)))
	dst = append(dst, 0, 0, 0, 0)
	return append(dst, payload...)
}

// bitWriter packs bits most-significant first
type bitWriter struct {
	buf   []byte
	acc   byte
	n     uint
	total uint64
}

func (w *bitWriter) write(bits uint64, n uint) {
	for i := n; i > 0; i-- {
		w.acc = w.acc<<1 | byte(bits>>(i-1)&1)
		w.n++
		if w.n == 8 {
			w.buf = append(w.buf, w.acc)
			w.acc, w.n = 0, 0
		}
	}
	w.total += uint64(n)
}

func (w *bitWriter) flush() []byte {
	if w.n > 0 {
		w.buf = append(w.buf, w.acc<<(8-w.n))
		w.acc, w.n = 0, 0
	}
	return w.buf
}
