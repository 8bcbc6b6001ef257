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
	"fmt"
	"os"

	"github.com/SnellerInc/shmingest/compr"
	"github.com/SnellerInc/shmingest/lookup"

	"sigs.k8s.io/yaml"
)

// tableFile is the input of 'snapshot':
// a YAML or JSON list of named tables
type tableFile []struct {
	Name    string            `json:"name"`
	Entries map[string]string `json:"entries"`
}

func readTables(path string) (*lookup.Tables, error) {
	buf, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tf tableFile
	if err := yaml.UnmarshalStrict(buf, &tf); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	t := lookup.NewTables()
	for i := range tf {
		t.Add(tf[i].Name, tf[i].Entries)
	}
	return t, nil
}

// runSnapshot builds lookup tables from a table
// file, writing them as a snapshot or into a
// sqlite database, or dumps an existing snapshot
func runSnapshot(args []string) {
	snapCmd := flag.NewFlagSet("snapshot", flag.ExitOnError)
	out := snapCmd.String("o", "", "snapshot file to write")
	algo := snapCmd.String("z", "zstd", "snapshot compression (none, s2, zstd, zstd-better)")
	sqlite := snapCmd.String("sqlite", "", "sqlite database to import the tables into")
	dump := snapCmd.String("dump", "", "snapshot file to print as YAML")
	if snapCmd.Parse(args) != nil {
		os.Exit(1)
	}
	if *dump != "" {
		t, err := lookup.LoadSnapshot(*dump, 0)
		if err != nil {
			exitf("%s", err)
		}
		var tf tableFile
		for _, name := range t.Names() {
			m, _ := t.Table(name)
			tf = append(tf, struct {
				Name    string            `json:"name"`
				Entries map[string]string `json:"entries"`
			}{name, m})
		}
		buf, err := yaml.Marshal(tf)
		if err != nil {
			exitf("%s", err)
		}
		os.Stdout.Write(buf)
		return
	}
	if snapCmd.NArg() != 1 || (*out == "" && *sqlite == "") {
		exitf("usage: snapshot [-o file -z algo] [-sqlite db] tables.yaml")
	}
	t, err := readTables(snapCmd.Arg(0))
	if err != nil {
		exitf("%s", err)
	}
	if *out != "" {
		c := compr.Compression(*algo)
		if c == nil {
			exitf("%s: %q", compr.ErrUnknown, *algo)
		}
		if err := lookup.SaveSnapshot(*out, t, c); err != nil {
			exitf("writing %s: %s", *out, err)
		}
	}
	if *sqlite != "" {
		db, err := lookup.OpenSQLite(*sqlite, t.Names()...)
		if err != nil {
			exitf("%s", err)
		}
		defer db.Close()
		if err := db.Import(context.Background(), t); err != nil {
			exitf("importing into %s: %s", *sqlite, err)
		}
	}
	fmt.Fprintf(os.Stderr, "%s\n", t)
}
