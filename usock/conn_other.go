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

//go:build !unix

package usock

import (
	"fmt"
	"net"
	"os"
	"runtime"
)

const Implemented = false

const MaxFiles = 8

func notImplemented(name string) error {
	return fmt.Errorf("usock.%s not implemented on %s", name, runtime.GOOS)
}

func SocketPair() (*net.UnixConn, *net.UnixConn, error) {
	return nil, nil, notImplemented("SocketPair")
}

func WriteFiles(dst *net.UnixConn, msg []byte, files ...*os.File) (int, error) {
	return 0, notImplemented("WriteFiles")
}

func ReadFiles(src *net.UnixConn, msg []byte, names ...string) (int, []*os.File, error) {
	return 0, nil, notImplemented("ReadFiles")
}

func CloseAll(files []*os.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
