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

package lookup

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/SnellerInc/shmingest/compr"
	"github.com/dchest/siphash"
	"github.com/sugawarayuuta/sonnet"
)

const (
	snapshotMagic = "SIDX"
	// MaxSnapshotSize is the largest
	// decompressed snapshot body accepted
	// by LoadSnapshot.
	MaxSnapshotSize = 1 << 30
)

var (
	// ErrExpired is returned by LoadSnapshot
	// when a snapshot is older than the
	// requested maximum age.
	ErrExpired = errors.New("lookup: snapshot expired")
	// ErrSnapshot is returned for snapshot
	// files that cannot be parsed or whose
	// checksum does not match.
	ErrSnapshot = errors.New("lookup: malformed snapshot")
)

func snapshotSum(buf []byte) uint64 {
	const (
		k0 = 0x5c8e3a1d07b4f266
		k1 = 0xe1f02d9a43c7b815
	)
	return siphash.Hash(k0, k1, buf)
}

type snapshotTable struct {
	Name    string            `json:"name"`
	Entries map[string]string `json:"entries"`
}

// snapshot layout:
//
//	magic "SIDX"
//	saved: u64 unix seconds
//	algo:  u8 length + compression name
//	body:  compr.Pack(JSON [{name, entries}, ...])
//	sum:   u64 siphash of everything above
func appendSnapshot(dst []byte, t *Tables, c compr.Compressor, now time.Time) ([]byte, error) {
	var body []snapshotTable
	for _, name := range t.Names() {
		m, _ := t.Table(name)
		body = append(body, snapshotTable{Name: name, Entries: m})
	}
	js, err := sonnet.Marshal(body)
	if err != nil {
		return dst, err
	}
	name := c.Name()
	start := len(dst)
	dst = append(dst, snapshotMagic...)
	dst = binary.LittleEndian.AppendUint64(dst, uint64(now.Unix()))
	dst = append(dst, byte(len(name)))
	dst = append(dst, name...)
	dst = compr.Pack(c, js, dst)
	return binary.LittleEndian.AppendUint64(dst, snapshotSum(dst[start:])), nil
}

func parseSnapshot(buf []byte, now time.Time, maxAge time.Duration) (*Tables, time.Time, error) {
	var saved time.Time
	if len(buf) < len(snapshotMagic)+9+8 || string(buf[:len(snapshotMagic)]) != snapshotMagic {
		return nil, saved, ErrSnapshot
	}
	tail := len(buf) - 8
	if binary.LittleEndian.Uint64(buf[tail:]) != snapshotSum(buf[:tail]) {
		return nil, saved, fmt.Errorf("%w: checksum mismatch", ErrSnapshot)
	}
	buf = buf[:tail]
	buf = buf[len(snapshotMagic):]
	saved = time.Unix(int64(binary.LittleEndian.Uint64(buf)), 0)
	buf = buf[8:]
	if maxAge > 0 && now.Sub(saved) > maxAge {
		return nil, saved, fmt.Errorf("%w: saved %s", ErrExpired, saved.UTC().Format(time.RFC3339))
	}
	n := int(buf[0])
	buf = buf[1:]
	if len(buf) < n {
		return nil, saved, ErrSnapshot
	}
	d := compr.Decompression(string(buf[:n]))
	if d == nil {
		return nil, saved, fmt.Errorf("%w: %w %q", ErrSnapshot, compr.ErrUnknown, buf[:n])
	}
	js, err := compr.Unpack(d, buf[n:], MaxSnapshotSize)
	if err != nil {
		return nil, saved, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	var body []snapshotTable
	if err := sonnet.Unmarshal(js, &body); err != nil {
		return nil, saved, fmt.Errorf("%w: %w", ErrSnapshot, err)
	}
	t := NewTables()
	for i := range body {
		t.Add(body[i].Name, body[i].Entries)
	}
	return t, saved, nil
}

// SaveSnapshot writes t to path, compressing
// the body with c. The file is replaced atomically.
func SaveSnapshot(path string, t *Tables, c compr.Compressor) error {
	buf, err := appendSnapshot(nil, t, c, time.Now())
	if err != nil {
		return err
	}
	f, err := os.CreateTemp(filepath.Dir(path), ".snapshot-*")
	if err != nil {
		return err
	}
	_, err = f.Write(buf)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(f.Name(), path)
	}
	if err != nil {
		os.Remove(f.Name())
	}
	return err
}

// LoadSnapshot reads a snapshot written by
// SaveSnapshot. If maxAge is positive and the
// snapshot was saved more than maxAge ago,
// LoadSnapshot returns ErrExpired.
func LoadSnapshot(path string, maxAge time.Duration) (*Tables, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	t, _, err := parseSnapshot(buf, time.Now(), maxAge)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
