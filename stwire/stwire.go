// Package stwire defines the binary wire encoding of Stable Network ledger
// transactions and their signed envelopes.
//
// The layout is a versionless tagged union: a one-byte discriminant selects
// the transaction variant, followed by that variant's fixed-order fields.
// Integers are fixed-width little-endian, strings and lists carry a 32-bit
// length prefix, and zero-payload variants (the currency tag) contribute no
// bytes. The encoding is canonical: two structurally equal values always
// serialize to identical bytes, since the envelope signature is computed
// over this exact byte string.
package stwire

import (
	"errors"
)

const (
	// MaxStringLength is the maximum allowed length for any
	// length-prefixed string or list on the wire. Anything larger is
	// treated as a malformed encoding rather than an allocation request.
	MaxStringLength = 65535
)

var (
	// ErrUnknownVariant is returned when a decoded discriminant doesn't
	// name a known union variant.
	ErrUnknownVariant = errors.New("unknown wire variant")

	// ErrMalformedEncoding is returned when a buffer is truncated,
	// carries trailing bytes, or otherwise doesn't match the fixed
	// layout. Decoding never returns a partially populated value.
	ErrMalformedEncoding = errors.New("malformed wire encoding")
)
