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
	"fmt"
	"os"
	"strings"

	"github.com/SnellerInc/shmingest"
)

var version = "development"

func exitf(f string, args ...any) {
	fmt.Fprintf(os.Stderr, f, args...)
	if !strings.HasSuffix(f, "\n") {
		fmt.Fprintln(os.Stderr)
	}
	os.Exit(1)
}

func main() {
	args := os.Args[1:]
	build, ok := shmingest.ReadBuild()
	if len(args) > 0 {
		switch args[0] {
		case "-version":
			if ok && build.Version() != "" {
				fmt.Println(build.Version())
			} else {
				fmt.Println("version not available, please check -build")
			}
			return
		case "-build":
			if ok {
				fmt.Print(build)
			} else {
				fmt.Println("build info not available")
			}
			return
		}
	}

	if ok {
		if v := build.Version(); v != "" {
			version = v
		}
	}

	useSubCommand := len(args) > 0 && !strings.HasPrefix(args[0], "-")
	if useSubCommand {
		subCommand := args[0]
		args = args[1:]
		switch subCommand {
		case "daemon":
			runDaemon(args)
		case "decode":
			runDecode(args)
		case "snapshot":
			runSnapshot(args)
		case "config":
			runConfig(args)
		default:
			fmt.Fprintf(os.Stderr, "invalid sub-command '%v'\n", subCommand)
			os.Exit(1)
		}
	} else {
		runDaemon(args)
	}
}
