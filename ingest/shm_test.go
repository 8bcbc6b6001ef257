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

//go:build unix

package ingest

import (
	"context"
	"testing"
	"time"

	"github.com/SnellerInc/shmingest/huffman"
	"github.com/SnellerInc/shmingest/lookup"
	"github.com/SnellerInc/shmingest/shm"
)

func TestSegment(t *testing.T) {
	cfg := shm.Config{
		Name:         "ingest",
		Dir:          t.TempDir(),
		Size:         1 << 16,
		ProducerID:   true,
		Generation:   true,
		PollInterval: 100 * time.Microsecond,
	}
	in, err := shm.Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	p, err := shm.Attach(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()

	dec, err := huffman.NewDecoder(huffman.Config{TrimToPackedBits: true})
	if err != nil {
		t.Fatal(err)
	}
	tabs := lookup.NewTables()
	tabs.Add("names", map[string]string{"7": "Seven", "8": "Eight"})
	var c collector
	s := New(in, dec, tabs, &c, WithPollTimeout(time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- s.Run(ctx) }()

	// ids 7 and 8 from two producers
	frames := [][]byte{frame(t, rec(7, 1)), frame(t, rec(8, 2))}
	for i, f := range frames {
		if err := p.Publish(uint32(i), f); err != nil {
			t.Fatal(err)
		}
		deadline := time.Now().Add(5 * time.Second)
		for s.Stats().Notified.Load() != int64(i+1) {
			if time.Now().After(deadline) {
				t.Fatalf("frame %d not processed: %v", i, s.Stats().Map())
			}
			time.Sleep(time.Millisecond)
		}
	}
	cancel()
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	got := c.take()
	want := []sent{
		{0, "Seven (7) in stock: 1"},
		{1, "Eight (8) in stock: 2"},
	}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Fatalf("got %v", got)
	}
}
