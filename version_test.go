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

package shmingest

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestBuild(t *testing.T) {
	bi := &debug.BuildInfo{
		GoVersion: "go1.21.5",
		Path:      "github.com/SnellerInc/shmingest/cmd/shmingestd",
		Deps: []*debug.Module{
			{Path: "github.com/dchest/siphash", Version: "v1.2.3"},
		},
		Settings: []debug.BuildSetting{
			{Key: "GOOS", Value: "linux"},
			{Key: "vcs", Value: "git"},
			{Key: "vcs.revision", Value: "4f2c9e1"},
			{Key: "vcs.time", Value: "2023-09-14T17:02:11Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	b := buildOf(bi)
	if v := b.Version(); v != "date: 2023-09-14T17:02:11Z, revision: 4f2c9e1+dirty" {
		t.Errorf("version %q", v)
	}
	if len(b.Settings) != 1 || b.Settings[0].Key != "GOOS" {
		t.Errorf("settings %v", b.Settings)
	}
	s := b.String()
	for _, want := range []string{
		"cmd/shmingestd (go1.21.5)",
		"decoder short_bits=8 max=16",
		"build GOOS=linux",
		"dep github.com/dchest/siphash v1.2.3",
	} {
		if !strings.Contains(s, want) {
			t.Errorf("missing %q in\n%s", want, s)
		}
	}

	// no version control data
	bi.Settings = bi.Settings[:1]
	if v := buildOf(bi).Version(); v != "" {
		t.Errorf("version %q", v)
	}
	bi.Settings = append(bi.Settings, debug.BuildSetting{Key: "vcs.revision", Value: "abc"})
	if v := buildOf(bi).Version(); v != "revision: abc" {
		t.Errorf("version %q", v)
	}
}
