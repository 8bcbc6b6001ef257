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

//go:build unix

// Package usock implements a wrapper
// around the unix(7) SCM_RIGHTS API,
// which allows processes to exchange
// file handles over a unix(7) control socket.
package usock

import (
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/unix"
)

const Implemented = true

// MaxFiles is the largest number of
// files accepted in one message.
const MaxFiles = 8

// SocketPair returns a pair of connected unix sockets.
func SocketPair() (*net.UnixConn, *net.UnixConn, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_NONBLOCK|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, err
	}
	left, err := fd2unix(fds[0])
	if err != nil {
		unix.Close(fds[0])
		unix.Close(fds[1])
		return nil, nil, err
	}
	right, err := fd2unix(fds[1])
	if err != nil {
		left.Close()
		unix.Close(fds[1])
		return nil, nil, err
	}
	return left, right, nil
}

func fd2unix(fd int) (*net.UnixConn, error) {
	osf := os.NewFile(uintptr(fd), "")
	if osf == nil {
		return nil, fmt.Errorf("bad file descriptor %d", fd)
	}
	defer osf.Close() // net.FileConn will dup(2) the fd
	fc, err := net.FileConn(osf)
	if err != nil {
		return nil, err
	}
	uc, ok := fc.(*net.UnixConn)
	if !ok {
		fc.Close()
		return nil, fmt.Errorf("couldn't convert %T to net.UnixConn", fc)
	}
	return uc, nil
}

// withFds calls fn with the descriptors of files,
// holding each descriptor for the duration of the call
func withFds(files []*os.File, fds []int, fn func([]int)) error {
	if len(files) == 0 {
		fn(fds)
		return nil
	}
	rc, err := files[0].SyscallConn()
	if err != nil {
		return err
	}
	var inner error
	err = rc.Control(func(fd uintptr) {
		inner = withFds(files[1:], append(fds, int(fd)), fn)
	})
	if err != nil {
		return err
	}
	return inner
}

// WriteFiles writes msg to dst along with
// the provided file handles in an out-of-band
// control message. The caller retains ownership
// of files; the receiver gets duplicates.
func WriteFiles(dst *net.UnixConn, msg []byte, files ...*os.File) (int, error) {
	if len(files) > MaxFiles {
		return 0, fmt.Errorf("usock.WriteFiles: %d files exceeds limit of %d", len(files), MaxFiles)
	}
	var n int
	var reterr error
	err := withFds(files, make([]int, 0, len(files)), func(fds []int) {
		var oob []byte
		if len(fds) > 0 {
			oob = unix.UnixRights(fds...)
		}
		n, _, reterr = dst.WriteMsgUnix(msg, oob, nil)
	})
	if err != nil {
		return 0, err
	}
	return n, reterr
}

// ReadFiles reads a message from src into msg
// and converts any file descriptors passed
// alongside it into files named by names.
// Messages carrying more than MaxFiles
// descriptors are rejected.
func ReadFiles(src *net.UnixConn, msg []byte, names ...string) (int, []*os.File, error) {
	oob := make([]byte, unix.CmsgSpace(MaxFiles*4))
	n, oobn, _, _, err := src.ReadMsgUnix(msg, oob)
	if err != nil {
		return n, nil, err
	}
	oob = oob[:oobn]
	if len(oob) == 0 {
		return n, nil, nil
	}
	scm, err := unix.ParseSocketControlMessage(oob)
	if err != nil {
		return n, nil, err
	}
	var fds []int
	for i := range scm {
		got, err := unix.ParseUnixRights(&scm[i])
		if err != nil {
			closeFds(fds)
			return n, nil, fmt.Errorf("parsing unix rights: %w", err)
		}
		fds = append(fds, got...)
	}
	if len(fds) > MaxFiles {
		closeFds(fds)
		return n, nil, fmt.Errorf("control message sent %d fds", len(fds))
	}
	files := make([]*os.File, len(fds))
	for i, fd := range fds {
		unix.CloseOnExec(fd)
		name := "<socketconn>"
		if i < len(names) {
			name = names[i]
		}
		files[i] = os.NewFile(uintptr(fd), name)
	}
	return n, files, nil
}

func closeFds(fds []int) {
	for _, fd := range fds {
		unix.Close(fd)
	}
}

// CloseAll closes every non-nil file.
func CloseAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
