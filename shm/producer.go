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
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"os"
	"sync"
	"time"

	"github.com/SnellerInc/shmingest/usock"
)

const (
	helloMagic   = "SHM1"
	helloSize    = 16
	flagProducer = 1 << 0
	flagGen      = 1 << 1

	// DialTimeout bounds the control
	// socket handshake in Attach.
	DialTimeout = 5 * time.Second
)

var errHello = errors.New("malformed control message")

// hello: magic, flags:u32, size:u64
func encodeHello(c *Config) []byte {
	msg := make([]byte, helloSize)
	copy(msg, helloMagic)
	var flags uint32
	if c.ProducerID {
		flags |= flagProducer
	}
	if c.Generation {
		flags |= flagGen
	}
	binary.LittleEndian.PutUint32(msg[4:], flags)
	binary.LittleEndian.PutUint64(msg[8:], uint64(c.Size))
	return msg
}

func decodeHello(msg []byte, c *Config) error {
	if len(msg) != helloSize || string(msg[:4]) != helloMagic {
		return errHello
	}
	flags := binary.LittleEndian.Uint32(msg[4:])
	c.ProducerID = flags&flagProducer != 0
	c.Generation = flags&flagGen != 0
	c.Size = int(binary.LittleEndian.Uint64(msg[8:]))
	return nil
}

// Producer is the writing side of a segment.
// A segment supports one producer writing
// at a time; Publish is safe for concurrent
// use within one Producer.
type Producer struct {
	cfg Config
	lay layout
	seg *Segment
	sig signal

	lock sync.Mutex
}

// Attach maps an existing segment for writing.
//
// If cfg.ControlSocket is set, the segment and
// the eventfd are obtained from the consumer
// through the socket and the record layout is
// taken from the consumer's configuration.
// Otherwise the backing file is opened by path,
// which requires the poll signal.
func Attach(cfg Config) (*Producer, error) {
	if cfg.ControlSocket != "" {
		return attachControl(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return nil, &SegmentError{Op: "attach", Path: cfg.Path(), Err: err}
	}
	cfg.setDefaults()
	if cfg.Signal != SignalPoll {
		return nil, &SegmentError{Op: "attach", Path: cfg.Path(),
			Err: fmt.Errorf("signal %q requires a control socket", cfg.Signal)}
	}
	path := cfg.Path()
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, &SegmentError{Op: "attach", Path: path, Err: err}
	}
	seg, err := attach(f, path)
	if err != nil {
		return nil, err
	}
	return newProducer(cfg, seg, &pollSignal{})
}

func attachControl(cfg Config) (*Producer, error) {
	fail := func(err error) (*Producer, error) {
		return nil, &SegmentError{Op: "attach", Path: cfg.ControlSocket, Err: err}
	}
	conn, err := net.DialTimeout("unix", cfg.ControlSocket, DialTimeout)
	if err != nil {
		return fail(err)
	}
	defer conn.Close()
	uc := conn.(*net.UnixConn)
	uc.SetDeadline(time.Now().Add(DialTimeout))
	msg := make([]byte, helloSize+1)
	n, files, err := usock.ReadFiles(uc, msg, cfg.Path(), "eventfd")
	if err != nil {
		return fail(err)
	}
	if len(files) != 2 {
		usock.CloseAll(files)
		return fail(fmt.Errorf("expected 2 files, got %d", len(files)))
	}
	if err := decodeHello(msg[:n], &cfg); err != nil {
		usock.CloseAll(files)
		return fail(err)
	}
	cfg.Signal = SignalEventfd
	seg, err := attach(files[0], cfg.Path())
	if err != nil {
		files[1].Close()
		return nil, err
	}
	return newProducer(cfg, seg, &eventSignal{f: files[1]})
}

func newProducer(cfg Config, seg *Segment, sig signal) (*Producer, error) {
	lay := cfg.layout()
	if seg.Len() <= lay.frame {
		sig.close()
		seg.Close()
		return nil, &SegmentError{Op: "attach", Path: seg.Path(),
			Err: fmt.Errorf("segment of %d bytes is too small", seg.Len())}
	}
	return &Producer{cfg: cfg, lay: lay, seg: seg, sig: sig}, nil
}

// Config returns the producer's view
// of the segment configuration.
func (p *Producer) Config() Config { return p.cfg }

// Capacity returns the largest frame
// that Publish accepts.
func (p *Producer) Capacity() int { return p.seg.Len() - p.lay.frame }

// Publish writes frame, tagged with id if the
// segment carries producer ids, and signals
// the consumer.
func (p *Producer) Publish(id uint32, frame []byte) error {
	if len(frame) > p.Capacity() {
		return fmt.Errorf("%w: %d > %d", ErrTooLarge, len(frame), p.Capacity())
	}
	p.lock.Lock()
	err := p.write(id, frame)
	p.lock.Unlock()
	if err != nil {
		return err
	}
	return p.sig.post()
}

func (p *Producer) write(id uint32, frame []byte) error {
	if p.lay.gen >= 0 {
		if _, err := p.seg.AddUint64(p.lay.gen, 1); err != nil {
			return err
		}
	}
	var err error
	total := uint32(len(frame))
	if p.lay.producer >= 0 {
		total += 4
		err = p.seg.PutUint32(p.lay.producer, id)
	}
	if err == nil {
		err = p.seg.PutUint32(p.lay.total, total)
	}
	if err == nil {
		err = p.seg.CopyIn(p.lay.frame, frame)
	}
	if p.lay.gen >= 0 {
		// restore an even counter
		// when the write failed too
		if _, gerr := p.seg.AddUint64(p.lay.gen, 1); err == nil {
			err = gerr
		}
	}
	return err
}

// Close unmaps the segment and
// releases the signal.
func (p *Producer) Close() error {
	return errors.Join(p.sig.close(), p.seg.Close())
}
