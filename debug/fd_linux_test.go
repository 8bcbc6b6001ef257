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

package debug

import (
	"bytes"
	"context"
	"io"
	"log"
	"net"
	"net/http"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
)

func unixClient(sock string) *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
				return net.Dial("unix", sock)
			},
		},
	}
}

func get(t *testing.T, c *http.Client, path string) (int, []byte) {
	t.Helper()
	res, err := c.Get("http://localprofile" + path)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	buf, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatal(err)
	}
	return res.StatusCode, buf
}

func TestFd(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "sock")
	var outbuf bytes.Buffer
	lg := log.New(&outbuf, "", log.Lshortfile)
	l, err := net.Listen("unix", sock)
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	f, err := l.(*net.UnixListener).File()
	if err != nil {
		t.Fatal(err)
	}
	closer, err := Fd(int(f.Fd()), lg)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	Publish("debug_test_fd", func() any { return map[string]int64{"frames": 7} })
	c := unixClient(sock)
	code, buf := get(t, c, "/debug/pprof/cmdline")
	if code != 200 {
		t.Errorf("got status code %d", code)
	}
	t.Logf("got cmdline %s", buf)
	code, buf = get(t, c, "/debug/vars")
	if code != 200 {
		t.Fatalf("got status code %d", code)
	}
	if !strings.Contains(string(buf), `"debug_test_fd": {"frames":7}`) {
		t.Errorf("vars missing published counters: %s", buf)
	}

	// republishing replaces the function
	Publish("debug_test_fd", func() any { return 3 })
	_, buf = get(t, c, "/debug/vars")
	if !strings.Contains(string(buf), `"debug_test_fd": 3`) {
		t.Errorf("vars not replaced: %s", buf)
	}
}

func TestPathDebug(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "sock")
	var outbuf bytes.Buffer
	lg := log.New(&outbuf, "", log.Lshortfile)
	t.Cleanup(func() {
		if t.Failed() {
			t.Log(outbuf.String())
		}
	})

	// bind to a local socket path
	ok := func(ucred *syscall.Ucred) bool {
		t.Logf("got ucred %+v", ucred)
		return int(ucred.Pid) == syscall.Getpid() && SameUser(ucred)
	}
	closer, err := Path(sock, ok, lg)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()

	code, buf := get(t, unixClient(sock), "/debug/pprof/cmdline")
	if code != 200 {
		t.Fatalf("got status code %d %s", code, buf)
	}
	t.Logf("got cmdline %s", buf)

	if _, err := Path(sock, ok, lg); err == nil {
		t.Error("expected an error binding the same path twice")
	}
}

func TestPathReject(t *testing.T) {
	sock := filepath.Join(t.TempDir(), "sock")
	lg := log.New(io.Discard, "", 0)
	closer, err := Path(sock, func(*syscall.Ucred) bool { return false }, lg)
	if err != nil {
		t.Fatal(err)
	}
	defer closer.Close()
	c := unixClient(sock)
	if res, err := c.Get("http://localprofile/debug/vars"); err == nil {
		res.Body.Close()
		t.Fatal("expected the connection to be dropped")
	}
}
