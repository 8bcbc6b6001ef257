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
	"github.com/SnellerInc/shmingest/heap"
)

// Symbol is one frequency table entry.
type Symbol struct {
	Sym   byte
	Count uint32
}

// FreqTable maps symbols to occurrence counts
// and remembers the order in which symbols
// were first added. Tree construction depends
// on that order, so it is part of the table.
type FreqTable struct {
	syms []Symbol
	pos  [256]int16 // 1 + index into syms; 0 means absent
}

// Reset empties the table.
func (f *FreqTable) Reset() {
	f.syms = f.syms[:0]
	f.pos = [256]int16{}
}

// Add sets the count for sym. A symbol that is
// already present keeps its original position.
func (f *FreqTable) Add(sym byte, count uint32) {
	if p := f.pos[sym]; p != 0 {
		f.syms[p-1].Count = count
		return
	}
	f.syms = append(f.syms, Symbol{Sym: sym, Count: count})
	f.pos[sym] = int16(len(f.syms))
}

// Len returns the number of distinct symbols.
func (f *FreqTable) Len() int { return len(f.syms) }

// Symbols returns the entries in insertion order.
func (f *FreqTable) Symbols() []Symbol { return f.syms }

// Count returns the count recorded for sym.
func (f *FreqTable) Count(sym byte) (uint32, bool) {
	p := f.pos[sym]
	if p == 0 {
		return 0, false
	}
	return f.syms[p-1].Count, true
}

const none = -1

// node is a tree arena entry;
// leaves have left == right == none
type node struct {
	freq        uint64
	left, right int32
	sym         byte
}

func (n *node) leaf() bool { return n.left == none }

type queued struct {
	freq uint64
	seq  uint32
	idx  int32
}

// ties are broken by enqueue order, never by symbol value;
// any other order produces a different tree than the encoder's
func lessQueued(x, y queued) bool {
	if x.freq != y.freq {
		return x.freq < y.freq
	}
	return x.seq < y.seq
}

// Code is the bit pattern assigned to a symbol.
// The code occupies the low Len bits of Bits,
// first bit most significant.
type Code struct {
	Symbol byte
	Bits   uint64
	Len    uint
}

// Tree is a binary prefix-code tree stored
// in an arena. A Tree can be rebuilt any number
// of times; each Build discards the previous tree.
type Tree struct {
	nodes []node
	root  int32
	depth uint
	queue *heap.Queue[queued]
	stack []visit
}

type visit struct {
	idx   int32
	bits  uint64
	depth uint
}

// Build constructs the tree for f.
//
// Every symbol becomes a leaf; the two
// least-frequent entries are repeatedly merged
// into an internal node (first popped on the left)
// until one node remains.
func (t *Tree) Build(f *FreqTable) {
	t.nodes = t.nodes[:0]
	t.root = none
	t.depth = 0
	if t.queue == nil {
		t.queue = heap.New(256, lessQueued)
	} else {
		t.queue.Reset()
	}
	seq := uint32(0)
	for _, s := range f.syms {
		idx := int32(len(t.nodes))
		t.nodes = append(t.nodes, node{freq: uint64(s.Count), left: none, right: none, sym: s.Sym})
		t.queue.Push(queued{freq: uint64(s.Count), seq: seq, idx: idx})
		seq++
	}
	for t.queue.Len() > 1 {
		a := t.queue.Pop()
		b := t.queue.Pop()
		idx := int32(len(t.nodes))
		sum := a.freq + b.freq
		t.nodes = append(t.nodes, node{freq: sum, left: a.idx, right: b.idx})
		t.queue.Push(queued{freq: sum, seq: seq, idx: idx})
		seq++
	}
	if t.queue.Len() == 1 {
		t.root = t.queue.Pop().idx
	}
}

// Empty returns true if the tree has no
// reachable code, which is the case for zero
// symbols and for a single symbol (whose leaf
// is the root and has an empty code).
func (t *Tree) Empty() bool {
	return t.root == none || t.nodes[t.root].leaf()
}

// Depth returns the length of the longest
// code, as computed by the last call to
// Assign or Codes.
func (t *Tree) Depth() uint { return t.depth }

// Assign registers the code of every leaf in tab.
// Codes longer than 64 bits cannot be represented
// in a Table and are only reachable through Walk.
func (t *Tree) Assign(tab *Table) {
	t.visit(func(sym byte, bits uint64, depth uint) {
		if depth <= 64 {
			tab.Insert(bits, depth, sym)
		}
	})
}

// Codes appends the code of every leaf to dst
// in depth-first (left before right) order.
// As with Assign, leaves deeper than 64 bits
// are left out; Depth still reports them.
func (t *Tree) Codes(dst []Code) []Code {
	t.visit(func(sym byte, bits uint64, depth uint) {
		if depth <= 64 {
			dst = append(dst, Code{Symbol: sym, Bits: bits, Len: depth})
		}
	})
	return dst
}

// visit calls fn for each leaf with a
// non-empty path from the root
func (t *Tree) visit(fn func(sym byte, bits uint64, depth uint)) {
	t.depth = 0
	if t.root == none {
		return
	}
	t.stack = append(t.stack[:0], visit{idx: t.root})
	for len(t.stack) > 0 {
		v := t.stack[len(t.stack)-1]
		t.stack = t.stack[:len(t.stack)-1]
		n := &t.nodes[v.idx]
		if n.leaf() {
			if v.depth == 0 {
				continue
			}
			if v.depth > t.depth {
				t.depth = v.depth
			}
			fn(n.sym, v.bits, v.depth)
			continue
		}
		// push right first so that the
		// left subtree is visited first
		t.stack = append(t.stack,
			visit{idx: n.right, bits: v.bits<<1 | 1, depth: v.depth + 1},
			visit{idx: n.left, bits: v.bits << 1, depth: v.depth + 1})
	}
}

// Walk consumes bits from c one at a time,
// starting at the root and following left on 0
// and right on 1, until it reaches a leaf.
// When c runs out of bits, more is called
// (if non-nil) to refill it. Walk consumes at
// most limit bits.
//
// The returned depth is the number of bits consumed.
// ok is false if the bits ran out before a leaf
// was reached or the tree is empty.
func (t *Tree) Walk(c *Cursor, limit uint, more func() bool) (sym byte, depth uint, ok bool) {
	if t.root == none {
		return 0, 0, false
	}
	i := t.root
	for !t.nodes[i].leaf() {
		if depth == limit {
			return 0, depth, false
		}
		if c.n == 0 && (more == nil || !more()) {
			return 0, depth, false
		}
		c.n--
		bit := (c.bits >> c.n) & 1
		c.bits &= mask(c.n)
		if bit == 0 {
			i = t.nodes[i].left
		} else {
			i = t.nodes[i].right
		}
		depth++
	}
	return t.nodes[i].sym, depth, true
}
