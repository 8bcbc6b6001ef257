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

package shm

import (
	"bytes"
	"errors"
	"log"
	"path/filepath"
	"testing"
	"time"
)

func TestEventfdControl(t *testing.T) {
	dir := t.TempDir()
	var logbuf bytes.Buffer
	cfg := Config{
		Name:          "ticks",
		Dir:           dir,
		Size:          8192,
		ProducerID:    true,
		Generation:    true,
		Signal:        SignalEventfd,
		ControlSocket: filepath.Join(dir, "ctl"),
	}
	in, err := Open(cfg, WithLogger(log.New(&logbuf, "", 0)))
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()

	// the producer learns the layout from the consumer
	p, err := Attach(Config{Name: "ticks", Dir: dir, ControlSocket: cfg.ControlSocket})
	if err != nil {
		t.Fatal(err)
	}
	defer p.Close()
	pc := p.Config()
	if !pc.ProducerID || !pc.Generation || pc.Size != cfg.Size {
		t.Fatalf("producer config %+v", pc)
	}

	if ok, err := in.Wait(5 * time.Millisecond); ok || err != nil {
		t.Fatalf("Wait before publish: %v %v", ok, err)
	}
	// several posts before a wait coalesce
	for i := 0; i < 3; i++ {
		if err := p.Publish(uint32(i), []byte("frame")); err != nil {
			t.Fatal(err)
		}
	}
	if ok, err := in.Wait(time.Second); !ok || err != nil {
		t.Fatalf("Wait: %v %v", ok, err)
	}
	snap, err := in.Snapshot(nil)
	if err != nil {
		t.Fatal(err)
	}
	if string(snap.Frame) != "frame" || snap.Producer != 2 {
		t.Fatalf("snapshot %+v", snap)
	}
	if ok, _ := in.Wait(5 * time.Millisecond); ok {
		t.Fatal("posts did not coalesce")
	}

	// Close unblocks a pending Wait
	errc := make(chan error, 1)
	go func() {
		_, err := in.Wait(time.Minute)
		errc <- err
	}()
	time.Sleep(10 * time.Millisecond)
	in.Close()
	select {
	case err := <-errc:
		if !errors.Is(err, ErrClosed) {
			t.Fatalf("Wait after Close: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Wait not interrupted by Close")
	}
	if logbuf.Len() != 0 {
		t.Logf("log: %s", logbuf.String())
	}
}

func TestAttachEventfdWithoutSocket(t *testing.T) {
	cfg := Config{Name: "ticks", Dir: t.TempDir(), Signal: SignalEventfd}
	in, err := Open(cfg)
	if err != nil {
		t.Fatal(err)
	}
	defer in.Close()
	if _, err := Attach(cfg); err == nil {
		t.Fatal("expected error attaching to an eventfd segment by path")
	}
}
