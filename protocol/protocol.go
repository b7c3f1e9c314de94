// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package protocol implements the chat system's length-prefixed text
// framing, pure functions with no I/O.
//
// Wire format: a single frame is <decimal-length>##<payload>, where ## is
// the length delimiter and <decimal-length> is the UTF-8 byte count of
// payload. payload is <KIND>$$<body>, where $$ is the type delimiter and
// body is omitted (along with the delimiter) when empty.
//
// Encode and EncodeMessage are pure functions; Splitter owns the only
// stateful piece, reassembling a byte stream that may be chopped at
// arbitrary points into a FIFO of complete payloads.
package protocol
