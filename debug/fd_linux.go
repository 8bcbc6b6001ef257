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
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"syscall"
)

// Fd binds the debug handlers to the listening
// socket with the provided file descriptor and
// serves them asynchronously. If the server ever
// stops running, the error returned from
// http.Serve is logged to lg.
func Fd(fd int, lg *log.Logger) (io.Closer, error) {
	f := os.NewFile(uintptr(fd), "debug_sock")
	l, err := net.FileListener(f)
	f.Close()
	if err != nil {
		return nil, err
	}
	lg.Printf("binding debug handlers to fd=%d", fd)
	go serve(l, lg)
	return l, nil
}

func serve(l net.Listener, lg *log.Logger) {
	defer l.Close()
	lg.Printf("debug server: %s", http.Serve(l, Handler()))
}

type ruleListener struct {
	net.Listener
	ok func(*syscall.Ucred) bool
}

func (r *ruleListener) Accept() (net.Conn, error) {
	type sysconn interface {
		SyscallConn() (syscall.RawConn, error)
	}
	for {
		c, err := r.Listener.Accept()
		if err != nil {
			return nil, err
		}
		sc, err := c.(sysconn).SyscallConn()
		if err != nil {
			c.Close()
			return nil, err
		}
		var inner error
		var ucred *syscall.Ucred
		err = sc.Control(func(fd uintptr) {
			ucred, inner = syscall.GetsockoptUcred(int(fd), syscall.SOL_SOCKET, syscall.SO_PEERCRED)
		})
		if err == nil {
			err = inner
		}
		if err == nil && r.ok(ucred) {
			return c, nil
		}
		// drop connections we cannot
		// identify or do not accept
		c.Close()
	}
}

// SameUser accepts peers running
// as the current user.
func SameUser(u *syscall.Ucred) bool {
	return int(u.Uid) == os.Getuid()
}

// Path creates a unix socket at path and listens on it
// for debug connections. The ok() function is used to
// filter connections based on the credentials of the
// process on the other end of the connection.
//
// See also Fd, which uses a local file descriptor
// rather than a local unix socket path.
func Path(path string, ok func(*syscall.Ucred) bool, lg *log.Logger) (io.Closer, error) {
	l, err := net.Listen("unix", path)
	if err != nil {
		return nil, err
	}
	rl := &ruleListener{
		Listener: l,
		ok:       ok,
	}
	lg.Printf("binding debug handlers to unix socket %s", path)
	go serve(rl, lg)
	return rl, nil
}
