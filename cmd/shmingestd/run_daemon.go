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

package main

import (
	"context"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/SnellerInc/shmingest/config"
	"github.com/SnellerInc/shmingest/debug"
	"github.com/SnellerInc/shmingest/huffman"
	"github.com/SnellerInc/shmingest/ingest"
	"github.com/SnellerInc/shmingest/lookup"
	"github.com/SnellerInc/shmingest/notify"
	"github.com/SnellerInc/shmingest/shm"
)

// source opens the lookup tables named by c.
// A snapshot source is reloaded by reload;
// closer is nil unless the source holds a database.
func source(c *config.Config) (src lookup.Source, reload func() error, closer io.Closer, err error) {
	if c.Lookup.SQLite != "" {
		db, err := lookup.OpenSQLite(c.Lookup.SQLite, c.Lookup.Tables...)
		if err != nil {
			return nil, nil, nil, err
		}
		return db, func() error { return nil }, db, nil
	}
	tabs, err := lookup.LoadSnapshot(c.Lookup.Snapshot, c.Lookup.MaxAge.D())
	if err != nil {
		return nil, nil, nil, err
	}
	reload = func() error {
		fresh, err := lookup.LoadSnapshot(c.Lookup.Snapshot, c.Lookup.MaxAge.D())
		if err != nil {
			return err
		}
		tabs.Replace(fresh)
		return nil
	}
	return tabs, reload, nil, nil
}

func notifier(c *config.Config, logger *log.Logger) (notify.Notifier, *notify.Webhook) {
	var out notify.Multi
	var wh *notify.Webhook
	if len(c.Notify.Webhooks) > 0 {
		wh = &notify.Webhook{
			URLs:        c.Notify.Webhooks,
			Client:      &http.Client{Timeout: c.Notify.Timeout.D()},
			MaxInFlight: c.Notify.MaxInFlight,
			Logger:      logger,
		}
		out = append(out, wh)
	}
	if c.Notify.Log || wh == nil {
		out = append(out, &notify.Log{Logger: logger})
	}
	if len(out) == 1 {
		return out[0], wh
	}
	return out, wh
}

func runDaemon(args []string) {
	daemonCmd := flag.NewFlagSet("daemon", flag.ExitOnError)
	configPath := daemonCmd.String("c", "", "configuration file (YAML); SHMINGEST_* variables override it")
	debugFd := daemonCmd.Int("debug", -1, "file descriptor to listen on for pprof debug activity")
	if daemonCmd.Parse(args) != nil {
		os.Exit(1)
	}
	logger := log.New(os.Stderr, "", log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal(err)
	}

	// if -debug=fd is provided, make /debug/* available
	if fd := *debugFd; fd >= 0 {
		if _, err := debug.Fd(fd, logger); err != nil {
			logger.Printf("warning: unable to bind to debug socket fd=%d: %s", fd, err)
		}
	}
	if cfg.DebugSocket != "" {
		l, err := debugSocket(cfg.DebugSocket, logger)
		if err != nil {
			logger.Printf("warning: unable to bind to debug socket %s: %s", cfg.DebugSocket, err)
		} else {
			defer l.Close()
		}
	}

	src, reload, closer, err := source(cfg)
	if err != nil {
		logger.Fatalf("opening lookup tables: %s", err)
	}
	if closer != nil {
		defer closer.Close()
	}

	dec, err := huffman.NewDecoder(cfg.DecoderConfig())
	if err != nil {
		logger.Fatal(err)
	}
	in, err := shm.Open(cfg.SegmentConfig(), shm.WithLogger(logger))
	if err != nil {
		// segment errors are fatal
		logger.Fatal(err)
	}
	defer in.Close()

	n, wh := notifier(cfg, logger)
	opts := append(cfg.IngestOptions(), ingest.WithLogger(logger))
	svc := ingest.New(in, dec, src, n, opts...)
	debug.Publish("ingest", func() any { return svc.Stats().Map() })
	if wh != nil {
		debug.Publish("webhook", func() any {
			sent, dropped, failed := wh.Stats()
			return map[string]int64{"sent": sent, "dropped": dropped, "failed": failed}
		})
	}

	// We'll accept graceful shutdowns when quit via SIGINT (Ctrl+C)
	// or SIGTERM; SIGHUP reloads a snapshot source
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	go func() {
		for range hup {
			if err := reload(); err != nil {
				logger.Printf("reloading lookup tables: %s", err)
			} else {
				logger.Printf("reloaded lookup tables")
			}
		}
	}()

	segc := cfg.SegmentConfig()
	logger.Printf("shmingest %s reading %s (signal %s)", version, segc.Path(), in.Config().Signal)
	err = svc.Run(ctx)
	signal.Stop(hup)
	if wh != nil {
		wh.Wait()
	}
	if err != nil {
		logger.Printf("consumer loop: %s", err)
		in.Close()
		os.Exit(1)
	}
	logger.Printf("shutting down: %v", svc.Stats().Map())
}
