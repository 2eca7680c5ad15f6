package dbf

import "github.com/pkg/errors"

// Structural violations found while decoding a buffer. Each maps to exactly
// one invariant so callers can tell which part of the file is broken.
var (
	ErrTooSmall         = errors.New("dbf: buffer too small to be a valid file")
	ErrMalformedHeader  = errors.New("dbf: malformed header")
	ErrHeaderTooLarge   = errors.New("dbf: header length larger than file")
	ErrNoFields         = errors.New("dbf: no fields defined")
	ErrPayloadTruncated = errors.New("dbf: payload truncated, no room for a single record")
	ErrRecordOverflow   = errors.New("dbf: record extends beyond file size")

	// ErrRecordDeleted is returned by typed reads when the requested record
	// carries the deletion flag.
	ErrRecordDeleted = errors.New("dbf: record is deleted")
)
