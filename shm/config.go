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
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

const (
	// DefaultDir is where segments are
	// created when Config.Dir is empty.
	DefaultDir = "/dev/shm"
	// DefaultSize is the default segment size.
	DefaultSize = 1 << 20
	// DefaultPollInterval is the default
	// generation polling period.
	DefaultPollInterval = time.Millisecond
	// DefaultMode is the default permission
	// of the backing file. Producers attaching
	// by path from another user need a wider mode.
	DefaultMode os.FileMode = 0600

	// SignalEventfd wakes the consumer
	// through a shared eventfd(2).
	SignalEventfd = "eventfd"
	// SignalPoll wakes the consumer when
	// it observes a new generation.
	SignalPoll = "poll"
)

// Config describes a shared segment.
// Producers and the consumer must agree
// on every field except ControlSocket,
// PollInterval and Mode.
type Config struct {
	// Name is the segment name; the backing
	// file is Dir/Name.
	Name string
	// Dir is the directory holding the
	// backing file. Defaults to DefaultDir.
	Dir string
	// Size is the size of the mapping in bytes.
	Size int
	// ProducerID indicates that every record
	// carries a 4-byte producer identifier.
	ProducerID bool
	// Generation indicates that the segment
	// begins with an 8-byte generation counter
	// that producers bump before and after
	// writing a record.
	Generation bool
	// Signal is SignalEventfd or SignalPoll.
	Signal string
	// ControlSocket, if set, is the path of a
	// unix socket on which the consumer hands
	// the segment and the eventfd to producers.
	ControlSocket string
	// PollInterval is the generation polling
	// period for SignalPoll.
	PollInterval time.Duration
	// Mode is the permission of the backing
	// file, applied regardless of the umask.
	// Defaults to DefaultMode.
	Mode os.FileMode
}

// Path returns the path of the backing file.
func (c *Config) Path() string {
	dir := c.Dir
	if dir == "" {
		dir = DefaultDir
	}
	return filepath.Join(dir, c.Name)
}

func (c *Config) setDefaults() {
	if c.Size == 0 {
		c.Size = DefaultSize
	}
	if c.Signal == "" {
		c.Signal = SignalPoll
	}
	if c.PollInterval <= 0 {
		c.PollInterval = DefaultPollInterval
	}
	if c.Mode == 0 {
		c.Mode = DefaultMode
	}
}

// Validate checks c for consistency
// after applying defaults.
func (c *Config) Validate() error {
	cc := *c
	cc.setDefaults()
	if cc.Name == "" || strings.ContainsRune(cc.Name, filepath.Separator) {
		return fmt.Errorf("shm: invalid segment name %q", cc.Name)
	}
	l := cc.layout()
	if cc.Size <= l.frame {
		return fmt.Errorf("shm: size %d leaves no room for a frame", cc.Size)
	}
	if cc.Mode&^os.ModePerm != 0 {
		return fmt.Errorf("shm: mode %s is not a permission", cc.Mode)
	}
	if uint64(cc.Size) > 1<<32 {
		return fmt.Errorf("shm: size %d exceeds the 32-bit record length", cc.Size)
	}
	switch cc.Signal {
	case SignalEventfd:
	case SignalPoll:
		if !cc.Generation {
			return fmt.Errorf("shm: signal %q requires a generation counter", cc.Signal)
		}
	default:
		return fmt.Errorf("shm: unknown signal %q", cc.Signal)
	}
	if cc.ControlSocket != "" && cc.Signal != SignalEventfd {
		return fmt.Errorf("shm: control socket requires signal %q", SignalEventfd)
	}
	return nil
}

// layout holds the offsets of the record
// fields; absent fields have offset -1
type layout struct {
	gen, total, producer, frame int
}

func (c *Config) layout() layout {
	l := layout{gen: -1, producer: -1}
	off := 0
	if c.Generation {
		l.gen = off
		off += 8
	}
	l.total = off
	off += 4
	if c.ProducerID {
		l.producer = off
		off += 4
	}
	l.frame = off
	return l
}

// Capacity returns the largest frame
// that fits in the segment.
func (c Config) Capacity() int {
	c.setDefaults()
	return c.Size - c.layout().frame
}
