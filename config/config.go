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

// Package config holds the daemon configuration.
//
// A configuration is built from Default, then a
// YAML file, then SHMINGEST_* environment variables,
// each overriding the previous one.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/SnellerInc/shmingest/compr"
	"github.com/SnellerInc/shmingest/huffman"
	"github.com/SnellerInc/shmingest/ingest"
	"github.com/SnellerInc/shmingest/notify"
	"github.com/SnellerInc/shmingest/shm"

	"sigs.k8s.io/yaml"
)

// Segment configures the shared segment.
type Segment struct {
	Name          string   `json:"name"`
	Dir           string   `json:"dir,omitempty"`
	Size          int      `json:"size"`
	ProducerID    bool     `json:"producer_id"`
	Generation    bool     `json:"generation"`
	Signal        string   `json:"signal"`
	ControlSocket string   `json:"control_socket,omitempty"`
	PollInterval  Duration `json:"poll_interval"`
	// Mode is the permission of the segment
	// file; widen it for producers running
	// as other users.
	Mode FileMode `json:"mode"`
}

// Decoder configures the frame decoder.
type Decoder struct {
	ShortBits        uint `json:"short_bits"`
	TrimToPackedBits bool `json:"trim_to_packed_bits"`
}

// Lookup configures the id tables.
// Exactly one of Snapshot and SQLite is set.
type Lookup struct {
	// Snapshot is the path of a
	// snapshot file to load at startup.
	Snapshot string `json:"snapshot,omitempty"`
	// MaxAge is the age past which
	// the snapshot is rejected; zero
	// accepts any age.
	MaxAge Duration `json:"max_age,omitempty"`
	// SQLite is the path of a database.
	SQLite string `json:"sqlite,omitempty"`
	// Tables are the table names in the
	// database, in lookup order.
	Tables []string `json:"tables,omitempty"`
	// Compression is used when
	// saving snapshots.
	Compression string `json:"compression"`
	// Timeout bounds one lookup batch.
	Timeout Duration `json:"timeout"`
}

// Notify configures message delivery.
type Notify struct {
	Webhooks    []string `json:"webhooks,omitempty"`
	MaxInFlight int      `json:"max_in_flight"`
	Timeout     Duration `json:"timeout"`
	// Log also writes every
	// message to the log.
	Log bool `json:"log"`
}

// Ingest configures the consumer loop.
type Ingest struct {
	PollTimeout Duration `json:"poll_timeout"`
	Dedupe      bool     `json:"dedupe"`
}

// Config is the daemon configuration.
type Config struct {
	Segment Segment `json:"segment"`
	Decoder Decoder `json:"decoder"`
	Lookup  Lookup  `json:"lookup"`
	Notify  Notify  `json:"notify"`
	Ingest  Ingest  `json:"ingest"`
	// DebugSocket, if set, is the path of a
	// unix socket serving pprof and expvar.
	DebugSocket string `json:"debug_socket,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Segment: Segment{
			Name:         "shmingest",
			Size:         shm.DefaultSize,
			ProducerID:   true,
			Generation:   true,
			Signal:       shm.SignalPoll,
			PollInterval: Duration(shm.DefaultPollInterval),
			Mode:         FileMode(shm.DefaultMode),
		},
		Decoder: Decoder{
			ShortBits: huffman.DefaultShortBits,
		},
		Lookup: Lookup{
			Compression: "zstd",
			Timeout:     Duration(ingest.DefaultLookupTimeout),
		},
		Notify: Notify{
			MaxInFlight: notify.DefaultMaxInFlight,
			Timeout:     Duration(notify.DefaultTimeout),
		},
		Ingest: Ingest{
			PollTimeout: Duration(ingest.DefaultPollTimeout),
			Dedupe:      true,
		},
	}
}

// Parse reads a YAML configuration on top of
// the defaults. Unknown fields are rejected.
func Parse(buf []byte) (*Config, error) {
	c := Default()
	if err := yaml.UnmarshalStrict(buf, c); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return c, nil
}

// Load reads the YAML file at path, applies
// the environment and validates the result.
// An empty path yields the defaults plus
// the environment.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		buf, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		c, err = Parse(buf)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := c.ApplyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Marshal returns c as YAML.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

type envVar struct {
	name string
	set  func(c *Config, v string) error
}

func setString(p func(c *Config) *string) func(*Config, string) error {
	return func(c *Config, v string) error {
		*p(c) = v
		return nil
	}
}

func setInt(p func(c *Config) *int) func(*Config, string) error {
	return func(c *Config, v string) error {
		n, err := strconv.Atoi(v)
		if err != nil {
			return err
		}
		*p(c) = n
		return nil
	}
}

func setBool(p func(c *Config) *bool) func(*Config, string) error {
	return func(c *Config, v string) error {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return err
		}
		*p(c) = b
		return nil
	}
}

func setDuration(p func(c *Config) *Duration) func(*Config, string) error {
	return func(c *Config, v string) error {
		return p(c).parse(v)
	}
}

func setList(p func(c *Config) *[]string) func(*Config, string) error {
	return func(c *Config, v string) error {
		var out []string
		for _, s := range strings.Split(v, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
		*p(c) = out
		return nil
	}
}

var envVars = []envVar{
	{"SHMINGEST_SEGMENT_NAME", setString(func(c *Config) *string { return &c.Segment.Name })},
	{"SHMINGEST_SEGMENT_DIR", setString(func(c *Config) *string { return &c.Segment.Dir })},
	{"SHMINGEST_SEGMENT_SIZE", setInt(func(c *Config) *int { return &c.Segment.Size })},
	{"SHMINGEST_PRODUCER_ID", setBool(func(c *Config) *bool { return &c.Segment.ProducerID })},
	{"SHMINGEST_GENERATION", setBool(func(c *Config) *bool { return &c.Segment.Generation })},
	{"SHMINGEST_SIGNAL", setString(func(c *Config) *string { return &c.Segment.Signal })},
	{"SHMINGEST_CONTROL_SOCKET", setString(func(c *Config) *string { return &c.Segment.ControlSocket })},
	{"SHMINGEST_POLL_INTERVAL", setDuration(func(c *Config) *Duration { return &c.Segment.PollInterval })},
	{"SHMINGEST_SEGMENT_MODE", func(c *Config, v string) error { return c.Segment.Mode.parse(v) }},
	{"SHMINGEST_SHORT_BITS", func(c *Config, v string) error {
		n, err := strconv.ParseUint(v, 10, 8)
		if err != nil {
			return err
		}
		c.Decoder.ShortBits = uint(n)
		return nil
	}},
	{"SHMINGEST_TRIM", setBool(func(c *Config) *bool { return &c.Decoder.TrimToPackedBits })},
	{"SHMINGEST_LOOKUP_SNAPSHOT", setString(func(c *Config) *string { return &c.Lookup.Snapshot })},
	{"SHMINGEST_LOOKUP_MAX_AGE", setDuration(func(c *Config) *Duration { return &c.Lookup.MaxAge })},
	{"SHMINGEST_LOOKUP_SQLITE", setString(func(c *Config) *string { return &c.Lookup.SQLite })},
	{"SHMINGEST_LOOKUP_TABLES", setList(func(c *Config) *[]string { return &c.Lookup.Tables })},
	{"SHMINGEST_WEBHOOKS", setList(func(c *Config) *[]string { return &c.Notify.Webhooks })},
	{"SHMINGEST_NOTIFY_LOG", setBool(func(c *Config) *bool { return &c.Notify.Log })},
	{"SHMINGEST_POLL_TIMEOUT", setDuration(func(c *Config) *Duration { return &c.Ingest.PollTimeout })},
	{"SHMINGEST_DEDUPE", setBool(func(c *Config) *bool { return &c.Ingest.Dedupe })},
	{"SHMINGEST_DEBUG_SOCKET", setString(func(c *Config) *string { return &c.DebugSocket })},
}

// ApplyEnv overrides fields of c with the
// SHMINGEST_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	var errs []error
	for i := range envVars {
		v, ok := lookup(envVars[i].name)
		if !ok {
			continue
		}
		if err := envVars[i].set(c, v); err != nil {
			errs = append(errs, fmt.Errorf("config: %s=%q: %w", envVars[i].name, v, err))
		}
	}
	return errors.Join(errs...)
}

// Validate checks c for consistency.
func (c *Config) Validate() error {
	var errs []error
	sc := c.SegmentConfig()
	if err := sc.Validate(); err != nil {
		errs = append(errs, err)
	}
	if b := c.Decoder.ShortBits; b < 1 || b > huffman.MaxShortBits {
		errs = append(errs, fmt.Errorf("config: short_bits %d not in [1, %d]", b, huffman.MaxShortBits))
	}
	switch l := &c.Lookup; {
	case l.Snapshot != "" && l.SQLite != "":
		errs = append(errs, errors.New("config: lookup.snapshot and lookup.sqlite are exclusive"))
	case l.Snapshot == "" && l.SQLite == "":
		errs = append(errs, errors.New("config: one of lookup.snapshot and lookup.sqlite is required"))
	case l.SQLite != "" && len(l.Tables) == 0:
		errs = append(errs, errors.New("config: lookup.sqlite requires lookup.tables"))
	}
	if compr.Compression(c.Lookup.Compression) == nil {
		errs = append(errs, fmt.Errorf("config: lookup.compression: %w %q", compr.ErrUnknown, c.Lookup.Compression))
	}
	for _, u := range c.Notify.Webhooks {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			errs = append(errs, fmt.Errorf("config: webhook %q is not an http(s) url", u))
		}
	}
	if c.Ingest.PollTimeout <= 0 {
		errs = append(errs, errors.New("config: ingest.poll_timeout must be positive"))
	}
	return errors.Join(errs...)
}

// SegmentConfig returns the shm configuration.
func (c *Config) SegmentConfig() shm.Config {
	s := &c.Segment
	return shm.Config{
		Name:          s.Name,
		Dir:           s.Dir,
		Size:          s.Size,
		ProducerID:    s.ProducerID,
		Generation:    s.Generation,
		Signal:        s.Signal,
		ControlSocket: s.ControlSocket,
		PollInterval:  s.PollInterval.D(),
		Mode:          s.Mode.M(),
	}
}

// DecoderConfig returns the huffman configuration.
func (c *Config) DecoderConfig() huffman.Config {
	return huffman.Config{
		ShortBits:        c.Decoder.ShortBits,
		TrimToPackedBits: c.Decoder.TrimToPackedBits,
	}
}

// IngestOptions returns the ingest options
// implied by c, not including the logger.
func (c *Config) IngestOptions() []ingest.Option {
	return []ingest.Option{
		ingest.WithPollTimeout(c.Ingest.PollTimeout.D()),
		ingest.WithLookupTimeout(c.Lookup.Timeout.D()),
		ingest.WithDedupe(c.Ingest.Dedupe),
	}
}
