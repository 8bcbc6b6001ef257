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
	"bufio"
	"flag"
	"fmt"
	"os"

	"github.com/SnellerInc/shmingest/huffman"
	"github.com/SnellerInc/shmingest/records"
)

// runDecode decodes frame files and
// prints the records found in them
func runDecode(args []string) {
	decodeCmd := flag.NewFlagSet("decode", flag.ExitOnError)
	width := decodeCmd.Uint("w", huffman.DefaultShortBits, "short code width in bits")
	trim := decodeCmd.Bool("trim", false, "decode exactly the packed bits of each frame")
	raw := decodeCmd.Bool("raw", false, "print the decoded text instead of records")
	codes := decodeCmd.Bool("codes", false, "print the code of every symbol")
	if decodeCmd.Parse(args) != nil {
		os.Exit(1)
	}
	dec, err := huffman.NewDecoder(huffman.Config{ShortBits: *width, TrimToPackedBits: *trim})
	if err != nil {
		exitf("%s", err)
	}
	o := bufio.NewWriter(os.Stdout)
	var recs []records.Record
	for _, arg := range decodeCmd.Args() {
		text, err := dec.DecodeFile(arg)
		if err != nil {
			exitf("%s: %s", arg, err)
		}
		if *codes {
			for _, c := range dec.Codes(nil) {
				fmt.Fprintf(o, "%q %0*b\n", c.Symbol, int(c.Len), c.Bits)
			}
		}
		if *raw {
			o.Write(text)
			o.WriteByte('\n')
			continue
		}
		recs = records.Parse(recs[:0], text)
		for _, r := range recs {
			fmt.Fprintln(o, r)
		}
	}
	if err := o.Flush(); err != nil {
		exitf("%s", err)
	}
}
