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
	"os"
	"sync"
	"sync/atomic"
	"unsafe"
)

// Segment is a bounds-checked view
// of a shared file mapping. Every accessor
// validates its offsets against the size
// of the mapping.
type Segment struct {
	path string
	f    *os.File
	mem  []byte

	once sync.Once
	err  error
}

// create opens or creates the file at path,
// sets its permission to mode, sizes it to
// size bytes and maps it
func create(path string, size int, mode os.FileMode) (*Segment, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, mode)
	if err != nil {
		return nil, &SegmentError{Op: "open", Path: path, Err: err}
	}
	// the umask applies to OpenFile but not to Chmod
	info, err := f.Stat()
	if err == nil && info.Mode().Perm() != mode {
		err = f.Chmod(mode)
	}
	if err != nil {
		f.Close()
		return nil, &SegmentError{Op: "chmod", Path: path, Err: err}
	}
	if err := f.Truncate(int64(size)); err != nil {
		f.Close()
		return nil, &SegmentError{Op: "truncate", Path: path, Err: err}
	}
	return mapSegment(f, path, size)
}

// attach maps an existing segment file;
// the mapping covers the whole file
func attach(f *os.File, path string) (*Segment, error) {
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, &SegmentError{Op: "stat", Path: path, Err: err}
	}
	return mapSegment(f, path, int(info.Size()))
}

func mapSegment(f *os.File, path string, size int) (*Segment, error) {
	if size <= 0 {
		f.Close()
		return nil, &SegmentError{Op: "mmap", Path: path, Err: ErrOutOfRange}
	}
	mem, err := mmap(f, size)
	if err != nil {
		f.Close()
		return nil, &SegmentError{Op: "mmap", Path: path, Err: err}
	}
	return &Segment{path: path, f: f, mem: mem}, nil
}

// Path returns the path of the backing file.
func (s *Segment) Path() string { return s.path }

// Len returns the size of the mapping.
func (s *Segment) Len() int { return len(s.mem) }

// File returns the backing file.
func (s *Segment) File() *os.File { return s.f }

func (s *Segment) check(off, n int) error {
	if s.mem == nil {
		return ErrClosed
	}
	if off < 0 || n < 0 || off > len(s.mem)-n {
		return ErrOutOfRange
	}
	return nil
}

// Uint32 reads a little-endian uint32 at off.
func (s *Segment) Uint32(off int) (uint32, error) {
	if err := s.check(off, 4); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(s.mem[off:]), nil
}

// PutUint32 writes a little-endian uint32 at off.
func (s *Segment) PutUint32(off int, v uint32) error {
	if err := s.check(off, 4); err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(s.mem[off:], v)
	return nil
}

func (s *Segment) word(off int) (*uint64, error) {
	if err := s.check(off, 8); err != nil {
		return nil, err
	}
	if off%8 != 0 {
		return nil, ErrOutOfRange
	}
	return (*uint64)(unsafe.Pointer(&s.mem[off])), nil
}

// LoadUint64 atomically loads the
// 8-byte aligned word at off.
func (s *Segment) LoadUint64(off int) (uint64, error) {
	p, err := s.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.LoadUint64(p), nil
}

// AddUint64 atomically adds delta to the
// 8-byte aligned word at off and returns
// the new value.
func (s *Segment) AddUint64(off int, delta uint64) (uint64, error) {
	p, err := s.word(off)
	if err != nil {
		return 0, err
	}
	return atomic.AddUint64(p, delta), nil
}

// CopyOut appends the n bytes at off to dst.
func (s *Segment) CopyOut(dst []byte, off, n int) ([]byte, error) {
	if err := s.check(off, n); err != nil {
		return dst, err
	}
	return append(dst, s.mem[off:off+n]...), nil
}

// CopyIn copies src to the mapping at off.
func (s *Segment) CopyIn(off int, src []byte) error {
	if err := s.check(off, len(src)); err != nil {
		return err
	}
	copy(s.mem[off:], src)
	return nil
}

// Close unmaps the segment and closes the
// backing file. It is safe to call more than once.
func (s *Segment) Close() error {
	s.once.Do(func() {
		mem := s.mem
		s.mem = nil
		s.err = unmap(mem)
		if err := s.f.Close(); s.err == nil {
			s.err = err
		}
	})
	return s.err
}
