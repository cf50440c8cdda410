/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

// Package varint implements the QUIC variable-length integer encoding
// (RFC 9000 section 16): the two most significant bits of the first byte
// select a 1/2/4/8-byte encoding, covering the ranges 0..2^6-1, 0..2^14-1,
// 0..2^30-1 and 0..2^62-1 respectively.
package varint

import (
	"errors"
	"io"
)

// Max is the largest value representable by the QUIC variable-length
// integer encoding (2^62 - 1).
const Max = uint64(1)<<62 - 1

// ErrOverflow is returned by Encode when the value exceeds Max.
var ErrOverflow = errors.New("varint: value exceeds 2^62-1")

// Len returns the number of bytes Encode will produce for v.
func Len(v uint64) int {
	switch {
	case v <= 63:
		return 1
	case v <= 16383:
		return 2
	case v <= 1073741823:
		return 4
	default:
		return 8
	}
}

// Encode appends the QUIC varint encoding of v to dst and returns the
// extended slice. It returns ErrOverflow if v > Max.
func Encode(dst []byte, v uint64) ([]byte, error) {
	if v > Max {
		return dst, ErrOverflow
	}

	switch Len(v) {
	case 1:
		return append(dst, byte(v)), nil
	case 2:
		return append(dst, byte(v>>8)|0x40, byte(v)), nil
	case 4:
		return append(dst,
			byte(v>>24)|0x80, byte(v>>16), byte(v>>8), byte(v),
		), nil
	default:
		return append(dst,
			byte(v>>56)|0xc0, byte(v>>48), byte(v>>40), byte(v>>32),
			byte(v>>24), byte(v>>16), byte(v>>8), byte(v),
		), nil
	}
}

// Decode reads one QUIC varint from the front of src, returning the value,
// the number of bytes consumed, and an error if src is too short.
func Decode(src []byte) (val uint64, n int, err error) {
	if len(src) < 1 {
		return 0, 0, io.ErrUnexpectedEOF
	}

	ln := 1 << (src[0] >> 6)
	if len(src) < ln {
		return 0, 0, io.ErrUnexpectedEOF
	}

	val = uint64(src[0] & 0x3f)
	for i := 1; i < ln; i++ {
		val = (val << 8) | uint64(src[i])
	}

	return val, ln, nil
}
