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

//go:build linux

package usock

import (
	"bytes"
	"io"
	"os"
	"testing"
	"time"
)

func nfds(t *testing.T) int {
	t.Helper()
	dirents, err := os.ReadDir("/proc/self/fd")
	if err != nil {
		t.Fatal(err)
	}
	return len(dirents)
}

func TestFdLeak(t *testing.T) {
	start := nfds(t)
	one, two, err := SocketPair()
	if err != nil {
		t.Fatal(err)
	}
	if during := nfds(t); during != start+2 {
		t.Errorf("now have %d fds, expected %d", during, start+2)
	}
	one.Close()
	two.Close()
	if final := nfds(t); final != start {
		t.Errorf("final: have %d; wanted %d", final, start)
	}
}

func TestWriteFiles(t *testing.T) {
	msg := []byte("segment=ticks size=4096")

	r1, w1, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	r2, w2, err := os.Pipe()
	if err != nil {
		t.Fatal(err)
	}
	outer, inner, err := SocketPair()
	if err != nil {
		t.Fatal(err)
	}
	defer outer.Close()
	defer inner.Close()
	if err := outer.SetDeadline(time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	if _, err := WriteFiles(outer, msg, r1, r2); err != nil {
		t.Fatal(err)
	}
	// the receiver holds its own references
	r1.Close()
	r2.Close()

	buf := make([]byte, 2*len(msg))
	n, files, err := ReadFiles(inner, buf, "first", "second")
	if err != nil {
		t.Fatal(err)
	}
	defer CloseAll(files)
	if !bytes.Equal(buf[:n], msg) {
		t.Errorf("%q != %q", buf[:n], msg)
	}
	if len(files) != 2 {
		t.Fatalf("got %d files", len(files))
	}
	if files[0].Name() != "first" || files[1].Name() != "second" {
		t.Errorf("names %q %q", files[0].Name(), files[1].Name())
	}
	// order is preserved
	for i, w := range []*os.File{w1, w2} {
		want := []byte{byte('a' + i)}
		if _, err := w.Write(want); err != nil {
			t.Fatal(err)
		}
		w.Close()
		got, err := io.ReadAll(files[i])
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("file %d: got %q want %q", i, got, want)
		}
	}
}

func TestWriteNoFiles(t *testing.T) {
	outer, inner, err := SocketPair()
	if err != nil {
		t.Fatal(err)
	}
	defer outer.Close()
	defer inner.Close()
	if _, err := WriteFiles(outer, []byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 16)
	n, files, err := ReadFiles(inner, buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:n]) != "ping" || len(files) != 0 {
		t.Fatalf("got %q with %d files", buf[:n], len(files))
	}
	tooMany := make([]*os.File, MaxFiles+1)
	if _, err := WriteFiles(outer, []byte("x"), tooMany...); err == nil {
		t.Fatal("expected error for too many files")
	}
}
