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

package config

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/SnellerInc/shmingest/shm"
)

const sample = `
segment:
  name: ticks
  dir: /run/ticks
  size: 65536
  signal: eventfd
  control_socket: /run/ticks/ctl
  mode: "0660"
decoder:
  short_bits: 11
  trim_to_packed_bits: true
lookup:
  sqlite: /var/lib/ids.db
  tables: [names, aliases]
  timeout: 2
notify:
  webhooks:
    - https://hooks.example.com/a
    - https://hooks.example.com/b
  log: true
ingest:
  poll_timeout: 250ms
`

func TestParse(t *testing.T) {
	c, err := Parse([]byte(sample))
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}
	want := shm.Config{
		Name:          "ticks",
		Dir:           "/run/ticks",
		Size:          65536,
		ProducerID:    true,
		Generation:    true,
		Signal:        shm.SignalEventfd,
		ControlSocket: "/run/ticks/ctl",
		PollInterval:  shm.DefaultPollInterval,
		Mode:          0660,
	}
	if got := c.SegmentConfig(); got != want {
		t.Errorf("segment %+v", got)
	}
	if d := c.DecoderConfig(); d.ShortBits != 11 || !d.TrimToPackedBits {
		t.Errorf("decoder %+v", d)
	}
	if c.Lookup.Timeout.D() != 2*time.Second {
		t.Errorf("lookup timeout %s", c.Lookup.Timeout)
	}
	if c.Ingest.PollTimeout.D() != 250*time.Millisecond {
		t.Errorf("poll timeout %s", c.Ingest.PollTimeout)
	}
	if !c.Ingest.Dedupe || c.Lookup.Compression != "zstd" {
		t.Error("defaults not kept")
	}
	if len(c.Notify.Webhooks) != 2 || !c.Notify.Log {
		t.Errorf("notify %+v", c.Notify)
	}
	if len(c.IngestOptions()) != 3 {
		t.Error("ingest options")
	}

	// Marshal output parses back to the same config
	buf, err := c.Marshal()
	if err != nil {
		t.Fatal(err)
	}
	c2, err := Parse(buf)
	if err != nil {
		t.Fatalf("%s\n%s", err, buf)
	}
	if !reflect.DeepEqual(c, c2) {
		t.Errorf("round trip:\n%+v\n%+v", c, c2)
	}
}

func TestParseErrors(t *testing.T) {
	for _, text := range []string{
		"segment: {nmae: x}",
		"ingest: {poll_timeout: soon}",
		"decoder: [1, 2]",
		"segment: {mode: rwx}",
		`segment: {mode: "0999"}`,
	} {
		if _, err := Parse([]byte(text)); err == nil {
			t.Errorf("%q: expected error", text)
		}
	}
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		c := Default()
		c.Lookup.Snapshot = "/var/lib/ids.snap"
		return c
	}
	if err := base().Validate(); err != nil {
		t.Fatal(err)
	}
	cases := []struct {
		name string
		edit func(c *Config)
		msg  string
	}{
		{"short bits", func(c *Config) { c.Decoder.ShortBits = 17 }, "short_bits"},
		{"no lookup", func(c *Config) { c.Lookup.Snapshot = "" }, "required"},
		{"both lookups", func(c *Config) { c.Lookup.SQLite = "x.db" }, "exclusive"},
		{"no tables", func(c *Config) { c.Lookup.Snapshot, c.Lookup.SQLite = "", "x.db" }, "tables"},
		{"compression", func(c *Config) { c.Lookup.Compression = "lz4" }, "unknown"},
		{"webhook", func(c *Config) { c.Notify.Webhooks = []string{"ftp://x"} }, "http"},
		{"segment", func(c *Config) { c.Segment.Generation = false }, "generation"},
		{"poll timeout", func(c *Config) { c.Ingest.PollTimeout = 0 }, "poll_timeout"},
		{"mode", func(c *Config) { c.Segment.Mode = FileMode(os.ModeDir | 0600) }, "permission"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			c := base()
			tc.edit(c)
			err := c.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.msg) {
				t.Fatalf("expected error containing %q, got %v", tc.msg, err)
			}
		})
	}
}

func TestApplyEnv(t *testing.T) {
	env := map[string]string{
		"SHMINGEST_SEGMENT_NAME":    "env",
		"SHMINGEST_SEGMENT_SIZE":    "8192",
		"SHMINGEST_SEGMENT_MODE":    "0644",
		"SHMINGEST_SHORT_BITS":      "9",
		"SHMINGEST_WEBHOOKS":        "https://a, https://b,",
		"SHMINGEST_POLL_TIMEOUT":    "1s",
		"SHMINGEST_DEDUPE":          "false",
		"SHMINGEST_LOOKUP_SNAPSHOT": "/tmp/ids.snap",
		"UNRELATED":                 "x",
	}
	lookup := func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	}
	c := Default()
	if err := c.ApplyEnv(lookup); err != nil {
		t.Fatal(err)
	}
	if c.Segment.Name != "env" || c.Segment.Size != 8192 || c.Decoder.ShortBits != 9 {
		t.Errorf("segment %+v decoder %+v", c.Segment, c.Decoder)
	}
	if c.Segment.Mode != 0644 {
		t.Errorf("mode %s", c.Segment.Mode)
	}
	if !reflect.DeepEqual(c.Notify.Webhooks, []string{"https://a", "https://b"}) {
		t.Errorf("webhooks %q", c.Notify.Webhooks)
	}
	if c.Ingest.PollTimeout.D() != time.Second || c.Ingest.Dedupe {
		t.Errorf("ingest %+v", c.Ingest)
	}
	if err := c.Validate(); err != nil {
		t.Fatal(err)
	}

	env = map[string]string{
		"SHMINGEST_SEGMENT_SIZE": "big",
		"SHMINGEST_SHORT_BITS":   "300",
	}
	err := Default().ApplyEnv(lookup)
	if err == nil {
		t.Fatal("expected errors")
	}
	for _, name := range []string{"SHMINGEST_SEGMENT_SIZE", "SHMINGEST_SHORT_BITS"} {
		if !strings.Contains(err.Error(), name) {
			t.Errorf("error %q does not mention %s", err, name)
		}
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "shmingest.yaml")
	if err := os.WriteFile(path, []byte(sample), 0644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SHMINGEST_SEGMENT_NAME", "from-env")
	c, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if c.Segment.Name != "from-env" || c.Decoder.ShortBits != 11 {
		t.Errorf("loaded %+v", c)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
