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
	cursorBits = 64
	// a byte may only be pushed while
	// the cursor holds at most this many bits
	maxFill = cursorBits - 8
)

// Cursor is a 64-bit accumulator over a byte
// stream that allows reads at bit granularity.
// Bytes enter at the low end; bits are read
// from the high (oldest) end.
//
// Only the low Len() bits of the accumulator
// are ever non-zero.
type Cursor struct {
	bits uint64
	n    uint
}

// Len returns the number of valid bits.
func (c *Cursor) Len() uint { return c.n }

// Headroom returns the number of bits
// that can be pushed before the cursor is full.
func (c *Cursor) Headroom() uint { return cursorBits - c.n }

// Reset discards all buffered bits.
func (c *Cursor) Reset() {
	c.bits = 0
	c.n = 0
}

// Push appends the 8 bits of b.
// It returns ErrCursorOverflow and leaves
// the cursor unchanged if fewer than 8 bits
// of headroom remain.
func (c *Cursor) Push(b byte) error {
	if c.n > maxFill {
		return ErrCursorOverflow
	}
	c.bits = (c.bits << 8) | uint64(b)
	c.n += 8
	return nil
}

// Peek returns the oldest k valid bits
// without consuming them.
func (c *Cursor) Peek(k uint) (uint64, error) {
	if k > c.n {
		return 0, ErrCursorUnderflow
	}
	if k == 0 {
		return 0, nil
	}
	return c.bits >> (c.n - k), nil
}

// Consume discards the oldest k valid bits.
func (c *Cursor) Consume(k uint) error {
	if k > c.n {
		return ErrCursorUnderflow
	}
	c.n -= k
	// for c.n == 64 the shift yields 0 and
	// the mask wraps to all ones
	c.bits &= (uint64(1) << c.n) - 1
	return nil
}
