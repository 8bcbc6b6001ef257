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

// Package notify delivers stock messages
// to a destination chosen by the producer id.
//
// Delivery is best-effort: a Notifier never
// blocks its caller on the network, failures
// are logged, and nothing is retried.
package notify

// Notifier is implemented by
// message destinations.
type Notifier interface {
	// Notify queues msg for delivery to the
	// destination selected by dest. It does
	// not wait for the delivery to complete.
	Notify(dest uint32, msg string)
}

// Logger is the logging interface
// used by the notifiers.
type Logger interface {
	Printf(f string, args ...any)
}

// Log is a Notifier that writes
// every message to a Logger.
type Log struct {
	Logger Logger
}

// Notify implements Notifier.Notify.
func (l *Log) Notify(dest uint32, msg string) {
	if l.Logger != nil {
		l.Logger.Printf("notify[%d]: %s", dest, msg)
	}
}

// Multi sends every message to
// each of its Notifiers in turn.
type Multi []Notifier

// Notify implements Notifier.Notify.
func (m Multi) Notify(dest uint32, msg string) {
	for _, n := range m {
		n.Notify(dest, msg)
	}
}

// Func adapts a function to a Notifier.
type Func func(dest uint32, msg string)

// Notify implements Notifier.Notify.
func (f Func) Notify(dest uint32, msg string) { f(dest, msg) }
