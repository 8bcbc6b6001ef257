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

// Package shm implements a single-slot frame
// transport over a shared file mapping.
//
// A producer writes one record at a time into the
// segment and then signals the consumer, which copies
// the record out before decoding it. The record layout is
//
//	[generation:u64, optional][total:u32][producer:u32, optional][frame]
//
// where total counts the producer id and the frame.
// When the generation counter is present, writers
// increment it before and after each write (so it is
// odd while a write is in progress) and readers
// retry copies that straddle a change.
package shm

import (
	"errors"
	"fmt"
	"log"
	"net"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/SnellerInc/shmingest/usock"
)

// snapshotAttempts is the number of copies
// Snapshot tries before reporting ErrTornRead
const snapshotAttempts = 3

// Snapshot is a record copied out of the segment.
type Snapshot struct {
	// Generation is the generation counter
	// observed during the copy, or zero if
	// the segment has no counter.
	Generation uint64
	// Producer is the producer id, or
	// zero if records carry no id.
	Producer uint32
	// Frame is the frame payload. It is empty
	// if nothing has been published yet.
	Frame []byte
}

// Ingress is the consumer side of a segment.
// Wait and Snapshot must be called from
// a single goroutine.
type Ingress struct {
	cfg    Config
	lay    layout
	seg    *Segment
	sig    signal
	evfd   *os.File
	ctl    *net.UnixListener
	logger *log.Logger

	wg        sync.WaitGroup
	closeOnce sync.Once
	closeErr  error
}

// Option is an optional argument to Open.
type Option func(in *Ingress)

// WithLogger is an option that can be passed
// to Open to have the Ingress log diagnostics
// about producer connections. If no logger is
// set, nothing is logged.
func WithLogger(l *log.Logger) Option {
	return func(in *Ingress) {
		in.logger = l
	}
}

func (in *Ingress) errorf(f string, args ...any) {
	if in.logger != nil {
		in.logger.Printf(f, args...)
	}
}

// Open creates (or opens) and maps the
// segment described by cfg. Every failure
// is reported as a *SegmentError.
func Open(cfg Config, opts ...Option) (*Ingress, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &SegmentError{Op: "open", Path: cfg.Path(), Err: err}
	}
	cfg.setDefaults()
	seg, err := create(cfg.Path(), cfg.Size, cfg.Mode)
	if err != nil {
		return nil, err
	}
	in := &Ingress{cfg: cfg, lay: cfg.layout(), seg: seg}
	for _, o := range opts {
		o(in)
	}
	switch cfg.Signal {
	case SignalEventfd:
		in.evfd, err = eventfd()
		if err != nil {
			seg.Close()
			return nil, &SegmentError{Op: "eventfd", Path: cfg.Path(), Err: err}
		}
		in.sig = &eventSignal{f: in.evfd}
	case SignalPoll:
		in.sig, err = newPollSignal(seg, in.lay.gen, cfg.PollInterval)
		if err != nil {
			seg.Close()
			return nil, &SegmentError{Op: "open", Path: cfg.Path(), Err: err}
		}
	}
	if cfg.ControlSocket != "" {
		os.Remove(cfg.ControlSocket)
		l, err := net.ListenUnix("unix", &net.UnixAddr{Name: cfg.ControlSocket, Net: "unix"})
		if err != nil {
			in.sig.close()
			seg.Close()
			return nil, &SegmentError{Op: "listen", Path: cfg.ControlSocket, Err: err}
		}
		in.ctl = l
		in.wg.Add(1)
		go in.serve()
	}
	return in, nil
}

// Config returns the configuration
// with defaults applied.
func (in *Ingress) Config() Config { return in.cfg }

// Segment returns the underlying segment.
func (in *Ingress) Segment() *Segment { return in.seg }

// serve hands the segment and the eventfd
// to every producer that connects
func (in *Ingress) serve() {
	defer in.wg.Done()
	msg := encodeHello(&in.cfg)
	for {
		c, err := in.ctl.AcceptUnix()
		if err != nil {
			if !errors.Is(err, net.ErrClosed) {
				in.errorf("shm: control socket: %s", err)
			}
			return
		}
		if _, err := usock.WriteFiles(c, msg, in.seg.File(), in.evfd); err != nil {
			in.errorf("shm: handing segment to producer: %s", err)
		}
		c.Close()
	}
}

// Wait blocks until a producer signals a new
// record or timeout elapses, and reports
// whether a signal was received.
func (in *Ingress) Wait(timeout time.Duration) (bool, error) {
	if in.sig == nil {
		return false, ErrClosed
	}
	return in.sig.wait(timeout)
}

// Snapshot copies the current record out of
// the segment, reusing the storage of dst.
//
// A record whose declared length does not fit in
// the segment yields ErrBadLength. If the segment
// has a generation counter and every attempt to copy
// the record overlaps a write, Snapshot returns
// ErrTornRead. Both errors are transient.
func (in *Ingress) Snapshot(dst []byte) (Snapshot, error) {
	attempts := 1
	if in.lay.gen >= 0 {
		attempts = snapshotAttempts
	}
	for i := 0; i < attempts; i++ {
		snap, retry, err := in.read(dst)
		if !retry {
			return snap, err
		}
		runtime.Gosched()
	}
	return Snapshot{}, ErrTornRead
}

func (in *Ingress) read(dst []byte) (snap Snapshot, retry bool, err error) {
	var g1 uint64
	if in.lay.gen >= 0 {
		g1, err = in.seg.LoadUint64(in.lay.gen)
		if err != nil {
			return snap, false, err
		}
		if g1&1 != 0 {
			return snap, true, nil
		}
	}
	snap, err = in.copyRecord(dst)
	if in.lay.gen >= 0 {
		g2, gerr := in.seg.LoadUint64(in.lay.gen)
		if gerr != nil {
			return Snapshot{}, false, gerr
		}
		// a bad length read during a write
		// is a torn read, not a bad record
		if g2 != g1 {
			return Snapshot{}, true, nil
		}
		snap.Generation = g1
	}
	return snap, false, err
}

func (in *Ingress) copyRecord(dst []byte) (Snapshot, error) {
	var snap Snapshot
	total, err := in.seg.Uint32(in.lay.total)
	if err != nil {
		return snap, err
	}
	n := uint64(total)
	if in.lay.producer >= 0 && total != 0 {
		if total < 4 {
			return snap, fmt.Errorf("%w: total %d", ErrBadLength, total)
		}
		snap.Producer, err = in.seg.Uint32(in.lay.producer)
		if err != nil {
			return snap, err
		}
		n -= 4
	}
	if n > uint64(in.seg.Len()-in.lay.frame) {
		return snap, fmt.Errorf("%w: %d bytes in a %d byte segment", ErrBadLength, n, in.seg.Len())
	}
	snap.Frame, err = in.seg.CopyOut(dst[:0], in.lay.frame, int(n))
	return snap, err
}

// Close stops serving producers, closes the
// signal and unmaps the segment. The backing
// file is left in place. Close is idempotent.
func (in *Ingress) Close() error {
	in.closeOnce.Do(func() {
		if in.ctl != nil {
			in.ctl.Close()
			in.wg.Wait()
		}
		var errs []error
		if in.sig != nil {
			errs = append(errs, in.sig.close())
		}
		errs = append(errs, in.seg.Close())
		in.closeErr = errors.Join(errs...)
	})
	return in.closeErr
}
