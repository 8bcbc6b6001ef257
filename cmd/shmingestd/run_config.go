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
	"flag"
	"os"

	"github.com/SnellerInc/shmingest/config"
)

// runConfig prints the effective configuration
func runConfig(args []string) {
	configCmd := flag.NewFlagSet("config", flag.ExitOnError)
	configPath := configCmd.String("c", "", "configuration file (YAML)")
	if configCmd.Parse(args) != nil {
		os.Exit(1)
	}
	cfg, err := config.Load(*configPath)
	if err != nil {
		exitf("%s", err)
	}
	buf, err := cfg.Marshal()
	if err != nil {
		exitf("%s", err)
	}
	os.Stdout.Write(buf)
}
