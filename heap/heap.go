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

// Package heap implements a generic
// slice-backed min-priority queue.
package heap

// Queue is a min-heap of T ordered by
// the Less function. The zero value is
// not usable; use New.
type Queue[T any] struct {
	items []T
	less  func(x, y T) bool
}

// New returns an empty Queue ordered by less
// with room for hint items before growing.
func New[T any](hint int, less func(x, y T) bool) *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0, hint),
		less:  less,
	}
}

// Len returns the number of queued items.
func (q *Queue[T]) Len() int { return len(q.items) }

// Reset empties the queue while
// retaining the backing storage.
func (q *Queue[T]) Reset() {
	clear(q.items)
	q.items = q.items[:0]
}

// Push adds item to the queue.
func (q *Queue[T]) Push(item T) {
	q.items = append(q.items, item)
	siftUp(q.items, len(q.items)-1, q.less)
}

// Peek returns the smallest item without
// removing it. It panics if the queue is empty.
func (q *Queue[T]) Peek() T {
	return q.items[0]
}

// Pop removes and returns the smallest item.
// It panics if the queue is empty.
func (q *Queue[T]) Pop() T {
	x := q.items
	ret := x[0]
	x[0] = x[len(x)-1]
	var zero T
	x[len(x)-1] = zero
	q.items = x[:len(x)-1]
	if len(q.items) > 0 {
		siftDown(q.items, 0, q.less)
	}
	return ret
}

func siftUp[T any](x []T, index int, less func(x, y T) bool) {
	for index > 0 {
		p := (index - 1) / 2
		if less(x[p], x[index]) {
			break
		}
		x[p], x[index] = x[index], x[p]
		index = p
	}
}

func siftDown[T any](x []T, index int, less func(x, y T) bool) {
	for {
		left := (index * 2) + 1
		right := left + 1
		if left >= len(x) {
			break
		}
		c := left
		if len(x) > right && less(x[right], x[left]) {
			c = right
		}
		if less(x[index], x[c]) {
			break
		}
		x[c], x[index] = x[index], x[c]
		index = c
	}
}
