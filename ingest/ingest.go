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

// Package ingest implements the consumer loop
// that turns frames published in a shared segment
// into stock notifications.
//
// The loop waits for a signal, copies the record
// out of the segment, decodes the frame and parses
// the records in it. Records whose ids were not in
// stock in the producer's previous frame are looked
// up and announced from a separate goroutine, so a
// slow lookup or notifier never stalls decoding.
// Frames that cannot be read or decoded are logged,
// counted and dropped.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"sync"
	"time"

	"github.com/SnellerInc/shmingest/huffman"
	"github.com/SnellerInc/shmingest/lookup"
	"github.com/SnellerInc/shmingest/notify"
	"github.com/SnellerInc/shmingest/records"
	"github.com/SnellerInc/shmingest/shm"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"
)

const (
	// DefaultPollTimeout is the default
	// bound on a single wait for a signal.
	DefaultPollTimeout = 100 * time.Millisecond
	// DefaultLookupTimeout is the default
	// timeout of one lookup batch.
	DefaultLookupTimeout = 5 * time.Second
)

// Ingress is the consumer side of a
// segment. It is implemented by *shm.Ingress.
type Ingress interface {
	Wait(timeout time.Duration) (bool, error)
	Snapshot(dst []byte) (shm.Snapshot, error)
}

// Service runs the consumer loop.
type Service struct {
	in       Ingress
	dec      *huffman.Decoder
	src      lookup.Source
	notifier notify.Notifier
	logger   *log.Logger

	pollTimeout   time.Duration
	lookupTimeout time.Duration
	dedupe        bool

	// owned by the loop
	snap    []byte
	text    []byte
	recs    []records.Record
	scan    records.Scanner
	seen    *lookup.Seen
	digests map[uint32][blake2b.Size256]byte

	wg    sync.WaitGroup
	stats Stats
}

// Option is an optional argument to New.
type Option func(s *Service)

// WithLogger is an option that can be passed
// to New to have the Service log dropped frames
// and failed lookups. If no logger is set,
// nothing is logged.
func WithLogger(l *log.Logger) Option {
	return func(s *Service) {
		s.logger = l
	}
}

// WithPollTimeout sets the bound on a single wait
// for a signal, which is also the latency with which
// Run observes the cancellation of its context.
func WithPollTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.pollTimeout = d
	}
}

// WithLookupTimeout sets the timeout
// of a single lookup batch.
func WithLookupTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.lookupTimeout = d
	}
}

// WithDedupe enables or disables suppression of
// frames identical to the previous frame from the
// same producer. It is enabled by default.
func WithDedupe(on bool) Option {
	return func(s *Service) {
		s.dedupe = on
	}
}

func (s *Service) errorf(f string, args ...any) {
	if s.logger != nil {
		s.logger.Printf(f, args...)
	}
}

// New constructs a Service. The Service
// owns dec; src and n must be safe for
// concurrent use.
func New(in Ingress, dec *huffman.Decoder, src lookup.Source, n notify.Notifier, opts ...Option) *Service {
	s := &Service{
		in:            in,
		dec:           dec,
		src:           src,
		notifier:      n,
		pollTimeout:   DefaultPollTimeout,
		lookupTimeout: DefaultLookupTimeout,
		dedupe:        true,
		seen:          lookup.NewSeen(),
		digests:       make(map[uint32][blake2b.Size256]byte),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Stats returns the live counters of s.
func (s *Service) Stats() *Stats { return &s.stats }

// Run runs the consumer loop until ctx is
// canceled, then waits for pending dispatches
// and returns nil. Errors from waiting on the
// segment, and snapshot errors other than torn
// reads and bad lengths, stop the loop and are
// returned.
func (s *Service) Run(ctx context.Context) error {
	defer s.wg.Wait()
	for ctx.Err() == nil {
		ok, err := s.in.Wait(s.pollTimeout)
		if err != nil {
			return fmt.Errorf("ingest: waiting for a frame: %w", err)
		}
		if !ok {
			continue
		}
		if err := s.Process(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Process reads the current record from the
// segment and handles it. Frame-level failures
// are logged and counted; only failures of the
// segment itself are returned.
func (s *Service) Process(ctx context.Context) error {
	s.stats.Frames.Add(1)
	snap, err := s.in.Snapshot(s.snap)
	if err != nil {
		if errors.Is(err, shm.ErrTornRead) || errors.Is(err, shm.ErrBadLength) {
			s.stats.Dropped.Add(1)
			s.errorf("ingest: dropping frame: %s", err)
			return nil
		}
		return fmt.Errorf("ingest: snapshot: %w", err)
	}
	s.snap = snap.Frame
	if len(snap.Frame) == 0 {
		s.stats.Empty.Add(1)
		return nil
	}
	if s.dedupe {
		sum := blake2b.Sum256(snap.Frame)
		if prev, ok := s.digests[snap.Producer]; ok && prev == sum {
			s.stats.Duplicates.Add(1)
			return nil
		}
		s.digests[snap.Producer] = sum
	}
	s.text, err = s.dec.DecodeAppend(s.text[:0], snap.Frame)
	if err != nil {
		s.stats.Dropped.Add(1)
		// a bad frame says nothing about what is in stock
		delete(s.digests, snap.Producer)
		var fe *huffman.FrameError
		if errors.As(err, &fe) {
			s.errorf("ingest: producer %d generation %d: dropping frame: %s", snap.Producer, snap.Generation, fe)
		} else {
			s.errorf("ingest: producer %d: dropping frame: %s", snap.Producer, err)
		}
		return nil
	}
	s.recs = s.recs[:0]
	s.scan.Reset(s.text)
	for s.scan.Next() {
		s.recs = append(s.recs, s.scan.Record())
	}
	s.stats.Records.Add(int64(len(s.recs)))
	s.stats.Skipped.Add(int64(s.scan.Skipped()))

	fresh := s.seen.Update(nil, snap.Producer, s.recs)
	if len(fresh) == 0 {
		return nil
	}
	s.stats.New.Add(int64(len(fresh)))
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.dispatch(ctx, snap.Producer, fresh)
	}()
	return nil
}

// Message formats the notification for
// a record. name is the value found in the
// first table, or the id if that table has
// no entry for it.
func Message(name string, r records.Record) string {
	return name + " (" + r.Key() + ") in stock: " + strconv.FormatUint(uint64(r.Quantity), 10)
}

// dispatch runs outside the loop and
// only touches recs, which it owns
func (s *Service) dispatch(ctx context.Context, producer uint32, recs []records.Record) {
	ids := make([]string, len(recs))
	for i := range recs {
		ids[i] = recs[i].Key()
	}
	ctx = context.WithoutCancel(ctx)
	ctx, cancel := context.WithTimeout(ctx, s.lookupTimeout)
	defer cancel()
	res, err := s.src.Lookup(ctx, ids)
	if err != nil {
		s.stats.LookupErrors.Add(1)
		s.errorf("ingest: batch %s: lookup of %d ids from producer %d: %s", uuid.New(), len(ids), producer, err)
		return
	}
	if len(res) != len(recs) {
		s.stats.LookupErrors.Add(1)
		s.errorf("ingest: batch %s: lookup returned %d results for %d ids", uuid.New(), len(res), len(ids))
		return
	}
	for i := range res {
		if !res[i].Found() {
			s.stats.Missing.Add(1)
			continue
		}
		name := res[i].ID
		if len(res[i].Values) > 0 && res[i].Values[0].OK {
			name = res[i].Values[0].String
		}
		s.notifier.Notify(producer, Message(name, recs[i]))
		s.stats.Notified.Add(1)
	}
}
