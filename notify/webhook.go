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

package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sugawarayuuta/sonnet"
)

const (
	// DefaultMaxInFlight is the default bound
	// on concurrent webhook deliveries.
	DefaultMaxInFlight = 64
	// DefaultTimeout is the default timeout
	// of a single delivery.
	DefaultTimeout = 10 * time.Second
)

// ErrNoURL is returned by Send when
// the Webhook has no destinations.
var ErrNoURL = errors.New("notify: no webhook urls")

// Webhook posts messages as JSON objects
// of the form {"content": msg} to one of
// a list of URLs.
//
// The destination selector indexes URLs;
// selectors past the end of the list use
// the first URL.
type Webhook struct {
	// URLs are the destinations.
	URLs []string
	// Client is used for deliveries.
	// If nil, a client with DefaultTimeout
	// is used.
	Client *http.Client
	// MaxInFlight bounds the number of concurrent
	// deliveries; messages queued while the bound
	// is reached are dropped. Defaults to
	// DefaultMaxInFlight.
	MaxInFlight int
	// Logger, if non-nil, receives
	// delivery failures.
	Logger Logger

	init sync.Once
	sem  chan struct{}
	wg   sync.WaitGroup

	// statistics; accessed atomically
	sent, dropped, failed atomic.Int64
}

func (w *Webhook) errorf(f string, args ...any) {
	if w.Logger != nil {
		w.Logger.Printf(f, args...)
	}
}

func (w *Webhook) setup() {
	w.init.Do(func() {
		n := w.MaxInFlight
		if n <= 0 {
			n = DefaultMaxInFlight
		}
		w.sem = make(chan struct{}, n)
		if w.Client == nil {
			w.Client = &http.Client{Timeout: DefaultTimeout}
		}
	})
}

// URL returns the destination for dest.
func (w *Webhook) URL(dest uint32) (string, bool) {
	if len(w.URLs) == 0 {
		return "", false
	}
	if uint64(dest) >= uint64(len(w.URLs)) {
		return w.URLs[0], true
	}
	return w.URLs[dest], true
}

// Notify implements Notifier.Notify.
// The delivery runs in its own goroutine.
func (w *Webhook) Notify(dest uint32, msg string) {
	w.setup()
	select {
	case w.sem <- struct{}{}:
	default:
		w.dropped.Add(1)
		return
	}
	w.wg.Add(1)
	go func() {
		defer func() {
			<-w.sem
			w.wg.Done()
		}()
		if err := w.Send(context.Background(), dest, msg); err != nil {
			w.errorf("notify: %s", err)
		}
	}()
}

type payload struct {
	Content string `json:"content"`
}

// Send delivers msg synchronously.
func (w *Webhook) Send(ctx context.Context, dest uint32, msg string) error {
	w.setup()
	url, ok := w.URL(dest)
	if !ok {
		return ErrNoURL
	}
	body, err := sonnet.Marshal(&payload{Content: msg})
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		w.failed.Add(1)
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", uuid.New().String())
	res, err := w.Client.Do(req)
	if err != nil {
		w.failed.Add(1)
		return err
	}
	io.Copy(io.Discard, io.LimitReader(res.Body, 64*1024))
	res.Body.Close()
	if res.StatusCode/100 != 2 {
		w.failed.Add(1)
		return fmt.Errorf("notify: POST %s: %s", url, res.Status)
	}
	w.sent.Add(1)
	return nil
}

// Wait blocks until every delivery
// started by Notify has finished.
func (w *Webhook) Wait() { w.wg.Wait() }

// Stats returns the number of delivered,
// dropped and failed messages.
func (w *Webhook) Stats() (sent, dropped, failed int64) {
	return w.sent.Load(), w.dropped.Load(), w.failed.Load()
}
