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

package shm

import (
	"errors"
	"os"
	"time"
)

// signal wakes the consumer
// when a record is published
type signal interface {
	// wait blocks for at most timeout and
	// reports whether a post was observed
	wait(timeout time.Duration) (bool, error)
	post() error
	close() error
}

// pollSignal watches the generation counter
type pollSignal struct {
	seg      *Segment
	off      int
	interval time.Duration
	last     uint64
}

func newPollSignal(seg *Segment, off int, interval time.Duration) (*pollSignal, error) {
	last, err := seg.LoadUint64(off)
	if err != nil {
		return nil, err
	}
	return &pollSignal{seg: seg, off: off, interval: interval, last: last &^ 1}, nil
}

func (p *pollSignal) wait(timeout time.Duration) (bool, error) {
	deadline := time.Now().Add(timeout)
	for {
		g, err := p.seg.LoadUint64(p.off)
		if err != nil {
			return false, err
		}
		if g != p.last && g&1 == 0 {
			p.last = g
			return true, nil
		}
		remain := time.Until(deadline)
		if remain <= 0 {
			return false, nil
		}
		time.Sleep(min(p.interval, remain))
	}
}

// publishing a record bumps the
// generation, which is the signal itself
func (p *pollSignal) post() error  { return nil }
func (p *pollSignal) close() error { return nil }

// eventSignal is an eventfd(2) counter;
// a read returns and resets the counter,
// so a burst of posts wakes the consumer once
type eventSignal struct {
	f    *os.File
	rbuf [8]byte
	wbuf [8]byte
}

func (e *eventSignal) wait(timeout time.Duration) (bool, error) {
	if err := e.f.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return false, err
	}
	_, err := e.f.Read(e.rbuf[:])
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrDeadlineExceeded):
		return false, nil
	case errors.Is(err, os.ErrClosed):
		return false, ErrClosed
	default:
		return false, err
	}
}

func (e *eventSignal) post() error {
	e.wbuf = [8]byte{1}
	_, err := e.f.Write(e.wbuf[:])
	return err
}

func (e *eventSignal) close() error { return e.f.Close() }
