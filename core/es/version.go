package es

import (
	"fmt"
	"log/slog"
	"strings"
)

// Version is the position of an event within its stream.
// The first event of a stream has version 1; a head version of 0 means the
// stream holds no events. Versions are assigned by the store, never by callers.
type Version uint64

func (v Version) Uint64() uint64                         { return uint64(v) }
func (v Version) SlogAttr() slog.Attr                    { return newSlogVersionAttr("version", v) }
func (v Version) SlogAttrWithKey(key string) slog.Attr   { return newSlogVersionAttr(key, v) }
func newSlogVersionAttr(key string, v Version) slog.Attr { return slog.Uint64(key, uint64(v)) }

// StreamID identifies an append-only event stream.
type StreamID string

func (s StreamID) String() string { return string(s) }

// Category is the part of the stream id before the first '-', or the whole id.
// It is used as a low-cardinality label for logs and metrics.
func (s StreamID) Category() string {
	if i := strings.IndexByte(string(s), '-'); i > 0 {
		return string(s[:i])
	}
	return string(s)
}

func (s StreamID) SlogAttr() slog.Attr { return slog.String("stream", string(s)) }

type expectKind uint8

const (
	expectAny expectKind = iota
	expectExact
	expectNoStream
)

// ExpectedVersion is the precondition an append is checked against.
type ExpectedVersion struct {
	kind    expectKind
	version Version
}

// ExpectAny accepts any current head.
func ExpectAny() ExpectedVersion { return ExpectedVersion{kind: expectAny} }

// ExpectExact requires the head to be exactly v.
func ExpectExact(v Version) ExpectedVersion { return ExpectedVersion{kind: expectExact, version: v} }

// ExpectNoStream requires the stream to be empty.
func ExpectNoStream() ExpectedVersion { return ExpectedVersion{kind: expectNoStream} }

func (e ExpectedVersion) IsAny() bool      { return e.kind == expectAny }
func (e ExpectedVersion) IsNoStream() bool { return e.kind == expectNoStream }

// Exact returns the required head version and whether e is an exact expectation.
func (e ExpectedVersion) Exact() (Version, bool) { return e.version, e.kind == expectExact }

// Check verifies e against the current head of stream.
func (e ExpectedVersion) Check(stream StreamID, head Version) error {
	switch e.kind {
	case expectExact:
		if head == e.version {
			return nil
		}
	case expectNoStream:
		if head == 0 {
			return nil
		}
	default:
		return nil
	}
	return &ConflictError{StreamID: stream, Expected: e, Actual: head}
}

func (e ExpectedVersion) String() string {
	switch e.kind {
	case expectExact:
		return fmt.Sprintf("exact(%d)", e.version)
	case expectNoStream:
		return "no_stream"
	default:
		return "any"
	}
}

func (e ExpectedVersion) SlogAttr() slog.Attr { return slog.String("expected", e.String()) }

// ReadRange selects the events of a stream to read.
type ReadRange struct {
	from Version
}

// ReadAll selects every event of a stream.
func ReadAll() ReadRange { return ReadRange{from: 1} }

// ReadFromVersion selects events with version >= v.
func ReadFromVersion(v Version) ReadRange {
	if v == 0 {
		v = 1
	}
	return ReadRange{from: v}
}

// From returns the lowest version included in the range.
func (r ReadRange) From() Version {
	if r.from == 0 {
		return 1
	}
	return r.from
}

func (r ReadRange) Includes(v Version) bool { return v >= r.From() }

func (r ReadRange) String() string {
	if r.From() == 1 {
		return "all"
	}
	return fmt.Sprintf("from(%d)", r.from)
}
