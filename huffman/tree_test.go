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
	"math/rand"
	"reflect"
	"testing"
)

func codeString(c Code) string {
	return fmt.Sprintf("%c=%0*b", c.Symbol, int(c.Len), c.Bits)
}

func codeStrings(t *Tree) []string {
	var out []string
	for _, c := range t.Codes(nil) {
		out = append(out, codeString(c))
	}
	return out
}

func TestFreqTable(t *testing.T) {
	var f FreqTable
	f.Add('a', 1)
	f.Add('b', 2)
	f.Add('a', 5)
	want := []Symbol{{'a', 5}, {'b', 2}}
	if !reflect.DeepEqual(f.Symbols(), want) {
		t.Fatalf("got %v want %v", f.Symbols(), want)
	}
	if c, ok := f.Count('a'); !ok || c != 5 {
		t.Fatalf("Count('a') = %d, %v", c, ok)
	}
	if _, ok := f.Count('z'); ok {
		t.Fatal("Count('z') present")
	}
	f.Reset()
	if f.Len() != 0 {
		t.Fatalf("Len after Reset = %d", f.Len())
	}
	if _, ok := f.Count('a'); ok {
		t.Fatal("Count('a') present after Reset")
	}
}

func TestTreeCodes(t *testing.T) {
	run := func(syms []Symbol, want []string) {
		t.Helper()
		var f FreqTable
		for _, s := range syms {
			f.Add(s.Sym, s.Count)
		}
		var tree Tree
		tree.Build(&f)
		got := codeStrings(&tree)
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%v: got %v want %v", syms, got, want)
		}
	}
	run([]Symbol{{'a', 5}, {'b', 2}, {'c', 1}}, []string{"c=00", "b=01", "a=1"})
	// equal counts: insertion order decides, not symbol value
	run([]Symbol{{'x', 1}, {'y', 1}, {'z', 1}}, []string{"z=0", "x=10", "y=11"})
	run([]Symbol{{'z', 1}, {'x', 1}, {'y', 1}}, []string{"y=0", "z=10", "x=11"})
	// merged nodes rank after leaves of the same count
	run([]Symbol{{'a', 1}, {'b', 1}, {'c', 2}, {'d', 2}},
		[]string{"a=00", "b=01", "c=10", "d=11"})
}

func TestTreeDegenerate(t *testing.T) {
	var f FreqTable
	var tree Tree
	tree.Build(&f)
	if !tree.Empty() || len(tree.Codes(nil)) != 0 {
		t.Fatal("empty table produced codes")
	}
	f.Add('q', 100)
	tree.Build(&f)
	if !tree.Empty() {
		t.Fatal("single symbol tree is not empty")
	}
	if codes := tree.Codes(nil); len(codes) != 0 {
		t.Fatalf("single symbol got codes %v", codes)
	}
	var c Cursor
	c.Push(0xff)
	if _, _, ok := tree.Walk(&c, 64, nil); !ok {
		t.Fatal("walk of a leaf root should succeed immediately")
	}
	if c.Len() != 8 {
		t.Fatal("walk of a leaf root consumed bits")
	}
}

func TestTreeCodesTooLong(t *testing.T) {
	const depth = 70
	// a chain: internal node k holds leaf k on
	// the left and the next internal node on the
	// right, so leaf k has code 1^k 0
	var tree Tree
	for k := 0; k < depth; k++ {
		tree.nodes = append(tree.nodes,
			node{left: none, right: none, sym: byte(k)},
			node{left: int32(2 * k), right: int32(2*k + 3)})
	}
	tree.nodes = append(tree.nodes, node{left: none, right: none, sym: depth})
	tree.nodes[2*depth-1].right = 2 * depth
	tree.root = 1

	codes := tree.Codes(nil)
	if tree.Depth() != depth {
		t.Errorf("depth %d", tree.Depth())
	}
	if len(codes) != 64 {
		t.Fatalf("got %d codes, want the 64 that fit", len(codes))
	}
	for k, c := range codes {
		want := Code{Symbol: byte(k), Bits: (uint64(1)<<k - 1) << 1, Len: uint(k + 1)}
		if c != want {
			t.Fatalf("code %d: got %+v want %+v", k, c, want)
		}
	}
	tab, err := NewTable(8)
	if err != nil {
		t.Fatal(err)
	}
	tree.Assign(tab)
	if n := len(tab.Long()); n != 64-8 {
		t.Errorf("%d long codes", n)
	}
}

func TestTreeDeterministic(t *testing.T) {
	var f FreqTable
	for i := 0; i < 200; i++ {
		f.Add(byte(rand.Intn(256)), uint32(rand.Intn(50)+1))
	}
	var t1, t2 Tree
	t1.Build(&f)
	t2.Build(&f)
	c1, c2 := t1.Codes(nil), t2.Codes(nil)
	if !reflect.DeepEqual(c1, c2) {
		t.Fatal("codes differ between builds")
	}
	// rebuilding a used tree gives the same answer
	t1.Build(&f)
	if !reflect.DeepEqual(c1, t1.Codes(nil)) {
		t.Fatal("codes differ after rebuild")
	}
	// prefix-free
	for i := range c1 {
		for j := range c1 {
			if i == j || c1[i].Len > c1[j].Len {
				continue
			}
			if c1[j].Bits>>(c1[j].Len-c1[i].Len) == c1[i].Bits {
				t.Fatalf("%s is a prefix of %s", codeString(c1[i]), codeString(c1[j]))
			}
		}
	}
}

func TestTreeWalk(t *testing.T) {
	var f FreqTable
	f.Add('a', 5)
	f.Add('b', 2)
	f.Add('c', 1)
	var tree Tree
	tree.Build(&f)

	// 1 01 00 | 1 ...
	var c Cursor
	c.Push(0b10100100)
	want := []byte{'a', 'b', 'c', 'a'}
	for i, w := range want {
		sym, _, ok := tree.Walk(&c, 64, nil)
		if !ok || sym != w {
			t.Fatalf("walk %d: got %q %v want %q", i, sym, ok, w)
		}
	}
	// 00 remaining: the walk stops at the limit
	if _, depth, ok := tree.Walk(&c, 1, nil); ok || depth != 1 {
		t.Fatalf("limited walk: depth=%d ok=%v", depth, ok)
	}
	// a single 0 bit remains; the walk runs out
	if _, _, ok := tree.Walk(&c, 64, nil); ok {
		t.Fatal("walk past the end succeeded")
	}
	// refill mid-walk
	c.Reset()
	c.Push(0)
	c.Consume(7)
	refilled := false
	sym, depth, ok := tree.Walk(&c, 64, func() bool {
		if refilled {
			return false
		}
		refilled = true
		c.Push(0b10000000)
		return true
	})
	if !ok || sym != 'b' || depth != 2 {
		t.Fatalf("refill walk: %q depth=%d ok=%v", sym, depth, ok)
	}
}
