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

// Package compr selects block compression
// algorithms by name.
package compr

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"unsafe"

	"github.com/klauspost/compress/s2"
	"github.com/klauspost/compress/zstd"
)

var (
	// ErrUnknown is returned for an
	// unrecognized algorithm name.
	ErrUnknown = errors.New("compr: unknown algorithm")
	// ErrSize is returned when a block does not
	// decompress to exactly the expected size.
	ErrSize = errors.New("compr: decompressed size mismatch")
)

// Compressor compresses whole blocks.
type Compressor interface {
	// Name is the name of the algorithm.
	Name() string
	// Compress appends the compressed
	// contents of src to dst.
	Compress(src, dst []byte) []byte
}

// Decompressor decompresses whole blocks.
type Decompressor interface {
	// Name is the name of the algorithm.
	Name() string
	// Decompress decompresses src into dst,
	// which must be exactly the size of the
	// decompressed data.
	//
	// Decompress is safe to call from
	// multiple goroutines.
	Decompress(src, dst []byte) error
}

// Names returns the supported algorithm names.
func Names() []string {
	return []string{"none", "s2", "zstd", "zstd-better"}
}

// Compression returns the Compressor for name,
// or nil if the name is not recognized.
func Compression(name string) Compressor {
	switch name {
	case "none":
		return none{}
	case "s2":
		return s2Codec{}
	case "zstd":
		return zstdCompressor{name: name, enc: zstdFast}
	case "zstd-better":
		return zstdCompressor{name: name, enc: zstdBetter}
	default:
		return nil
	}
}

// Decompression returns the Decompressor for name,
// or nil if the name is not recognized.
// Both zstd levels share one decompressor.
func Decompression(name string) Decompressor {
	switch name {
	case "none":
		return none{}
	case "s2":
		return s2Codec{}
	case "zstd", "zstd-better":
		return zstdDecompressor{name: name}
	default:
		return nil
	}
}

// Pack appends to dst the uvarint length
// of src followed by src compressed with c.
func Pack(c Compressor, src, dst []byte) []byte {
	dst = binary.AppendUvarint(dst, uint64(len(src)))
	return c.Compress(src, dst)
}

// Unpack reverses Pack. Blocks that declare more
// than limit decompressed bytes are rejected.
func Unpack(d Decompressor, src []byte, limit int) ([]byte, error) {
	size, n := binary.Uvarint(src)
	if n <= 0 {
		return nil, fmt.Errorf("compr: %s: bad block length", d.Name())
	}
	if size > uint64(limit) {
		return nil, fmt.Errorf("compr: %s: block of %d bytes exceeds limit %d", d.Name(), size, limit)
	}
	dst := make([]byte, size)
	if err := d.Decompress(src[n:], dst); err != nil {
		return nil, fmt.Errorf("compr: %s: %w", d.Name(), err)
	}
	return dst, nil
}

type none struct{}

func (none) Name() string { return "none" }

func (none) Compress(src, dst []byte) []byte { return append(dst, src...) }

func (none) Decompress(src, dst []byte) error {
	if len(src) != len(dst) {
		return ErrSize
	}
	copy(dst, src)
	return nil
}

var (
	zstdFast = sync.OnceValue(func() *zstd.Encoder {
		z, _ := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		return z
	})
	zstdBetter = sync.OnceValue(func() *zstd.Encoder {
		z, _ := zstd.NewWriter(nil,
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithEncoderConcurrency(1))
		return z
	})
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) {
		return zstd.NewReader(nil, zstd.WithDecoderConcurrency(0))
	})
)

type zstdCompressor struct {
	name string
	enc  func() *zstd.Encoder
}

func (z zstdCompressor) Name() string { return z.name }

func (z zstdCompressor) Compress(src, dst []byte) []byte {
	return z.enc().EncodeAll(src, dst)
}

type zstdDecompressor struct {
	name string
}

func (z zstdDecompressor) Name() string { return z.name }

func (z zstdDecompressor) Decompress(src, dst []byte) error {
	dec, err := zstdDecoder()
	if err != nil {
		return err
	}
	ret, err := dec.DecodeAll(src, dst[:0:len(dst)])
	if err != nil {
		return err
	}
	return sameBuffer(ret, dst)
}

type s2Codec struct{}

func (s2Codec) Name() string { return "s2" }

func (s2Codec) Compress(src, dst []byte) []byte {
	tail := dst[len(dst):cap(dst)]
	// s2 requires non-overlapping src and dst
	if overlaps(src, tail) {
		tail = nil
	}
	got := s2.Encode(tail, src)
	if len(tail) > 0 && len(got) > 0 && &tail[0] == &got[0] {
		return dst[:len(dst)+len(got)]
	}
	return append(dst, got...)
}

func (s2Codec) Decompress(src, dst []byte) error {
	ret, err := s2.Decode(dst[:0:len(dst)], src)
	if err != nil {
		return err
	}
	return sameBuffer(ret, dst)
}

// sameBuffer checks that a decoder filled
// dst exactly and did not reallocate it
func sameBuffer(ret, dst []byte) error {
	if len(ret) != len(dst) {
		return fmt.Errorf("%w: expected %d bytes, got %d", ErrSize, len(dst), len(ret))
	}
	if len(dst) > 0 && &ret[0] != &dst[0] {
		return fmt.Errorf("%w: output buffer reallocated", ErrSize)
	}
	return nil
}

func overlaps(a, b []byte) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	a0 := uintptr(unsafe.Pointer(&a[0]))
	a1 := a0 + uintptr(len(a))
	b0 := uintptr(unsafe.Pointer(&b[0]))
	b1 := b0 + uintptr(len(b))
	return a0 < b1 && b0 < a1
}
