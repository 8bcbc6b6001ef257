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

// Command framesim publishes synthetic
// inventory frames into a shared segment.
package main

import (
	"flag"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/SnellerInc/shmingest/config"
	"github.com/SnellerInc/shmingest/huffman"
	"github.com/SnellerInc/shmingest/internal/framegen"
	"github.com/SnellerInc/shmingest/records"
	"github.com/SnellerInc/shmingest/shm"
)

func main() {
	configPath := flag.String("c", "", "configuration file (YAML) shared with shmingestd")
	producer := flag.Uint("p", 1, "producer id")
	frames := flag.Int("n", 100, "number of frames to publish (0 means forever)")
	interval := flag.Duration("i", 100*time.Millisecond, "delay between frames")
	count := flag.Int("r", 16, "records per frame")
	ids := flag.Int("ids", 64, "size of the id space")
	extra := flag.Uint("extra", 1100000000, "trailing group appended to each record")
	seed := flag.Int64("seed", 0, "random seed (0 picks one)")
	flag.Parse()

	logger := log.New(os.Stderr, "", log.Lshortfile)
	// without a file only the segment settings
	// matter, so skip the daemon's validation
	cfg := config.Default()
	var err error
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
	} else {
		err = cfg.ApplyEnv(os.LookupEnv)
	}
	if err != nil {
		logger.Fatal(err)
	}
	p, err := shm.Attach(cfg.SegmentConfig())
	if err != nil {
		logger.Fatal(err)
	}
	defer p.Close()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	rng := rand.New(rand.NewSource(*seed))
	width := cfg.DecoderConfig().ShortBits
	if width == 0 {
		width = huffman.DefaultShortBits
	}
	var (
		recs []records.Record
		text []byte
	)
	for i := 0; *frames == 0 || i < *frames; i++ {
		recs = recs[:0]
		for j := 0; j < *count; j++ {
			recs = append(recs, records.Record{
				ID:       uint32(20000 + rng.Intn(*ids)),
				Quantity: uint32(rng.Intn(4)),
			})
		}
		text = records.Format(text[:0], recs, uint32(*extra))
		frame, err := framegen.Encode(framegen.Pad(text, width))
		if err != nil {
			logger.Fatalf("encoding frame %d: %s", i, err)
		}
		if err := p.Publish(uint32(*producer), frame); err != nil {
			logger.Fatalf("publishing frame %d: %s", i, err)
		}
		time.Sleep(*interval)
	}
	logger.Printf("published %d frames (seed %d)", *frames, *seed)
}
