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

// Package debug serves pprof profiles and
// expvar counters to local debugging clients.
package debug

import (
	"expvar"
	"net/http"
	"net/http/pprof"
	"sync"
)

var (
	publishLock sync.Mutex
	published   = make(map[string]func() any)
)

// Publish exposes the value returned by fn under
// name in /debug/vars. Publishing the same name
// again replaces the function.
func Publish(name string, fn func() any) {
	publishLock.Lock()
	defer publishLock.Unlock()
	_, ok := published[name]
	published[name] = fn
	if ok {
		return
	}
	expvar.Publish(name, expvar.Func(func() any {
		publishLock.Lock()
		f := published[name]
		publishLock.Unlock()
		return f()
	}))
}

// Handler returns a handler serving the pprof
// endpoints under /debug/pprof/ and the expvar
// counters at /debug/vars.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	mux.Handle("/debug/vars", expvar.Handler())
	return mux
}
