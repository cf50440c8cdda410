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

// Package tracing implements spec.md §3/§4.11's trace context and span
// layer: a self-contained W3C traceparent codec plus a RAII-styled Span
// whose export path is wired to the real go.opentelemetry.io/otel SDK.
package tracing

import (
	"crypto/rand"
	"encoding/hex"
	"strings"
)

// FlagSampled is the W3C trace-flags bit indicating the trace should be
// recorded by the backend.
const FlagSampled uint8 = 0x01

// traceParentVersion is the only version byte this codec accepts, per
// spec.md §4.11's "validate version byte \"00\"".
const traceParentVersion = "00"

// Context is the W3C trace context of spec.md §3: a 16-byte trace id, an
// 8-byte span id, an optional 8-byte parent span id, and an 8-bit flags
// field whose bit 0 is the sampled flag.
type Context struct {
	TraceID      [16]byte
	SpanID       [8]byte
	hasParent    bool
	ParentSpanID [8]byte
	Flags        uint8
	valid        bool
}

// IsValid reports whether this context was produced by a successful parse
// or generation; zero-value Contexts are invalid.
func (c Context) IsValid() bool { return c.valid }

// Sampled reports the W3C trace-flags sampled bit.
func (c Context) Sampled() bool { return c.Flags&FlagSampled != 0 }

// HasParent reports whether this context carries a parent span id (set on
// contexts produced by NewChild, never on one parsed from a traceparent
// header, since the header format itself carries no parent field).
func (c Context) HasParent() bool { return c.hasParent }

// Parent returns the parent span id and whether one is set.
func (c Context) Parent() ([8]byte, bool) { return c.ParentSpanID, c.hasParent }

// NewRootContext generates a fresh, sampled trace context with no parent,
// using a cryptographically random trace id and span id (the idiomatic Go
// substitute for the original's random-byte helper).
func NewRootContext(sampled bool) Context {
	c := Context{valid: true}
	_, _ = rand.Read(c.TraceID[:])
	_, _ = rand.Read(c.SpanID[:])
	if sampled {
		c.Flags |= FlagSampled
	}
	return c
}

// NewChild derives a child context sharing this context's trace id, with
// a freshly generated span id and this context's span id recorded as the
// child's parent, per spec.md §4.11's create_child_span semantics.
func (c Context) NewChild() Context {
	child := Context{
		TraceID:      c.TraceID,
		Flags:        c.Flags,
		hasParent:    true,
		ParentSpanID: c.SpanID,
		valid:        c.valid,
	}
	_, _ = rand.Read(child.SpanID[:])
	return child
}

// ToTraceParent serializes the context to the W3C traceparent wire form
// "00-{32 hex}-{16 hex}-{2 hex}". Parent span id is never part of the wire
// form; it is local bookkeeping, not propagated.
func (c Context) ToTraceParent() string {
	if !c.valid {
		return ""
	}
	return traceParentVersion + "-" +
		hex.EncodeToString(c.TraceID[:]) + "-" +
		hex.EncodeToString(c.SpanID[:]) + "-" +
		hex.EncodeToString([]byte{c.Flags})
}

// ParseTraceParent validates the version byte and exact hex lengths of s
// and returns the parsed context. Per spec.md §4.11, any violation yields
// an invalid context rather than an error.
func ParseTraceParent(s string) Context {
	parts := strings.Split(s, "-")
	if len(parts) != 4 {
		return Context{}
	}
	if parts[0] != traceParentVersion {
		return Context{}
	}
	if len(parts[1]) != 32 || len(parts[2]) != 16 || len(parts[3]) != 2 {
		return Context{}
	}

	traceID, err := hex.DecodeString(parts[1])
	if err != nil {
		return Context{}
	}
	spanID, err := hex.DecodeString(parts[2])
	if err != nil {
		return Context{}
	}
	flags, err := hex.DecodeString(parts[3])
	if err != nil {
		return Context{}
	}

	var allZeroTrace, allZeroSpan = true, true
	for _, b := range traceID {
		if b != 0 {
			allZeroTrace = false
		}
	}
	for _, b := range spanID {
		if b != 0 {
			allZeroSpan = false
		}
	}
	if allZeroTrace || allZeroSpan {
		return Context{}
	}

	c := Context{valid: true, Flags: flags[0]}
	copy(c.TraceID[:], traceID)
	copy(c.SpanID[:], spanID)
	return c
}
