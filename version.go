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

// Package shmingest holds build metadata shared
// by the shmingest commands. The implementation
// lives in the subpackages.
package shmingest

import (
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/SnellerInc/shmingest/huffman"
)

// Build describes how a binary was built.
type Build struct {
	Path      string
	GoVersion string
	Revision  string
	Time      string
	Modified  bool
	// Settings holds the build settings
	// other than version control ones.
	Settings []debug.BuildSetting
	Deps     []*debug.Module
}

// ReadBuild returns the build of the running binary.
func ReadBuild() (*Build, bool) {
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return nil, false
	}
	return buildOf(bi), true
}

func buildOf(bi *debug.BuildInfo) *Build {
	b := &Build{Path: bi.Path, GoVersion: bi.GoVersion, Deps: bi.Deps}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Revision = s.Value
		case "vcs.time":
			b.Time = s.Value
		case "vcs.modified":
			b.Modified = s.Value == "true"
		case "vcs":
		default:
			b.Settings = append(b.Settings, s)
		}
	}
	return b
}

// Version returns the commit date and revision
// of b, or "" if b has no version control data.
// A revision built from a modified tree carries
// a "+dirty" suffix.
func (b *Build) Version() string {
	var parts []string
	if b.Time != "" {
		parts = append(parts, "date: "+b.Time)
	}
	if b.Revision != "" {
		rev := b.Revision
		if b.Modified {
			rev += "+dirty"
		}
		parts = append(parts, "revision: "+rev)
	}
	return strings.Join(parts, ", ")
}

// String describes b one item per line,
// including the decoder defaults built
// into the binary.
func (b *Build) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", b.Path, b.GoVersion)
	if v := b.Version(); v != "" {
		fmt.Fprintf(&sb, "%s\n", v)
	}
	fmt.Fprintf(&sb, "decoder short_bits=%d max=%d\n", huffman.DefaultShortBits, huffman.MaxShortBits)
	for _, s := range b.Settings {
		fmt.Fprintf(&sb, "build %s=%s\n", s.Key, s.Value)
	}
	for _, d := range b.Deps {
		fmt.Fprintf(&sb, "dep %s %s\n", d.Path, d.Version)
	}
	return sb.String()
}
