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
	"testing"
)

func TestNewTableWidth(t *testing.T) {
	for _, w := range []uint{0, MaxShortBits + 1} {
		if _, err := NewTable(w); !errors.Is(err, ErrWidth) {
			t.Errorf("width %d: got %v", w, err)
		}
	}
	if _, err := NewDecoder(Config{ShortBits: 17}); !errors.Is(err, ErrWidth) {
		t.Errorf("NewDecoder: got %v", err)
	}
}

func TestTableInsertLookup(t *testing.T) {
	tab, err := NewTable(4)
	if err != nil {
		t.Fatal(err)
	}
	tab.Insert(0b01, 2, 'x')
	tab.Insert(0b1, 1, 'y')
	tab.Insert(0b001, 3, 'w')
	tab.Insert(0b00001, 5, 'z')
	tab.Insert(0, 0, 'q') // ignored

	for i := 0; i < 16; i++ {
		e := tab.At(i)
		var want Entry
		switch {
		case i >= 8:
			want = Entry{Symbol: 'y', Len: 1}
		case i >= 4:
			want = Entry{Symbol: 'x', Len: 2}
		case i >= 2:
			want = Entry{Symbol: 'w', Len: 3}
		}
		if e != want {
			t.Errorf("slot %04b: got %+v want %+v", i, e, want)
		}
	}
	if _, ok := tab.Lookup(0b0001, 4); ok {
		t.Error("expected miss for a long code prefix")
	}
	// only the low W bits are significant
	if e, ok := tab.Lookup(0xf0|0b0110, 4); !ok || e.Symbol != 'x' {
		t.Errorf("got %+v %v", e, ok)
	}
	long := tab.Long()
	if len(long) != 1 || long[0] != (LongCode{Bits: 1, Len: 5, Symbol: 'z'}) {
		t.Fatalf("long codes: %+v", long)
	}
	if e, ok := tab.Lookup(0b00001, 5); !ok || e != (Entry{Symbol: 'z', Len: 5}) {
		t.Errorf("long lookup: %+v %v", e, ok)
	}
	if e, ok := tab.Lookup(0b0000111, 7); !ok || e.Symbol != 'z' {
		t.Errorf("wide long lookup: %+v %v", e, ok)
	}
	if _, ok := tab.Lookup(0b00000, 5); ok {
		t.Error("unexpected long match")
	}

	tab.Reset()
	for i := 0; i < 16; i++ {
		if tab.At(i).Len != 0 {
			t.Fatalf("slot %d not cleared", i)
		}
	}
	if len(tab.Long()) != 0 {
		t.Fatal("long codes not cleared")
	}
}

// every code of length L <= W owns exactly
// 2^(W-L) slots and no two codes overlap
func TestTableCompletion(t *testing.T) {
	var f FreqTable
	for i, c := range []uint32{40, 1, 7, 7, 3, 19, 2, 2, 11, 1, 5} {
		f.Add(byte('a'+i), c)
	}
	var tree Tree
	tree.Build(&f)
	for _, w := range []uint{4, 6, 8, 10} {
		tab, err := NewTable(w)
		if err != nil {
			t.Fatal(err)
		}
		tree.Assign(tab)
		owned := make(map[byte]int)
		for i := 0; i < 1<<w; i++ {
			e := tab.At(i)
			if e.Len != 0 {
				owned[e.Symbol]++
			}
		}
		total := 0
		for _, c := range tree.Codes(nil) {
			if c.Len > w {
				if owned[c.Symbol] != 0 {
					t.Errorf("w=%d: long code %q has dense slots", w, c.Symbol)
				}
				continue
			}
			want := 1 << (w - c.Len)
			if owned[c.Symbol] != want {
				t.Errorf("w=%d: %q owns %d slots, want %d", w, c.Symbol, owned[c.Symbol], want)
			}
			total += want
			base := c.Bits << (w - c.Len)
			for i := uint64(0); i < uint64(want); i++ {
				if e := tab.At(int(base | i)); e.Symbol != c.Symbol || uint(e.Len) != c.Len {
					t.Errorf("w=%d: slot %d = %+v, want %q/%d", w, base|i, e, c.Symbol, c.Len)
				}
			}
		}
		if len(tab.Long()) != 0 && w >= tree.Depth() {
			t.Errorf("w=%d >= depth %d but %d long codes", w, tree.Depth(), len(tab.Long()))
		}
		if w >= tree.Depth() && total != 1<<w {
			t.Errorf("w=%d: complete code fills %d of %d slots", w, total, 1<<w)
		}
	}
}
