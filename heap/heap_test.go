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

package heap

import (
	"math/rand"
	"testing"

	"golang.org/x/exp/slices"
)

func TestQueue(t *testing.T) {
	q := New(1000, func(x, y int) bool { return x < y })
	for q.Len() < 1000 {
		q.Push(rand.Int())
	}
	sorted := make([]int, 0, 1000)
	for q.Len() > 0 {
		sorted = append(sorted, q.Pop())
	}
	if !slices.IsSorted(sorted) {
		t.Fatal("not sorted")
	}

	q.Reset()
	if q.Len() != 0 {
		t.Fatalf("Len after Reset = %d", q.Len())
	}
	q.Push(3)
	q.Push(1)
	q.Push(2)
	if got := q.Peek(); got != 1 {
		t.Fatalf("Peek = %d, want 1", got)
	}
}

// ties must come out in insertion order
// when the ordering includes a sequence number
func TestQueueStableTies(t *testing.T) {
	type item struct {
		key, seq int
	}
	q := New(0, func(x, y item) bool {
		if x.key != y.key {
			return x.key < y.key
		}
		return x.seq < y.seq
	})
	for i := 0; i < 64; i++ {
		q.Push(item{key: i % 4, seq: i})
	}
	last := item{key: -1, seq: -1}
	for q.Len() > 0 {
		it := q.Pop()
		if it.key < last.key || (it.key == last.key && it.seq < last.seq) {
			t.Fatalf("popped %+v after %+v", it, last)
		}
		last = it
	}
}
