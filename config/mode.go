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
	"fmt"
	"os"
	"strconv"
)

// FileMode is a permission written as an
// octal string like "0660". Plain numbers
// are read as they are, so a YAML octal
// literal such as 0660 works too.
type FileMode os.FileMode

// M returns m as an os.FileMode.
func (m FileMode) M() os.FileMode { return os.FileMode(m) }

func (m FileMode) String() string { return fmt.Sprintf("%#o", uint32(m)) }

// MarshalJSON implements json.Marshaler.
func (m FileMode) MarshalJSON() ([]byte, error) {
	return strconv.AppendQuote(nil, m.String()), nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *FileMode) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		s, err := strconv.Unquote(string(b))
		if err != nil {
			return err
		}
		return m.parse(s)
	}
	v, err := strconv.ParseUint(string(b), 10, 32)
	if err != nil {
		return fmt.Errorf("config: invalid mode %s", b)
	}
	*m = FileMode(v)
	return nil
}

func (m *FileMode) parse(s string) error {
	v, err := strconv.ParseUint(s, 8, 32)
	if err != nil {
		return fmt.Errorf("config: invalid mode %q", s)
	}
	*m = FileMode(v)
	return nil
}
