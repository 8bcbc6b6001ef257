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

// Package huffman decodes self-describing
// Huffman-coded frames.
//
// A frame has the following layout (all
// integers little-endian):
//
//	[0, 8)      opaque prefix
//	[8, 12)     symbol count N
//	N * 8       entries: count:u32, symbol:u8, 3 reserved bytes
//	4           packed_bits: valid bits in the payload
//	4           packed_len: payload length in bytes
//	4           reserved
//	packed_len  payload, most significant bit first
//
// The decoder rebuilds the code tree from the
// symbol counts exactly as the producer did:
// the two least-frequent nodes are merged
// repeatedly, with ties broken by the order in
// which nodes were queued. Codes up to the table
// width are resolved with a single table lookup;
// longer codes are resolved by walking the tree.
package huffman
