// Package wajerr defines the typed error kinds used across the archive
// container format, the creation pipeline, and the HTTP serving core.
//
// Errors are small sentinel or struct values rather than one string-based
// error type, so that the HTTP boundary and the CLI boundary can each
// flatten them the way they need to without parsing strings.
package wajerr

import (
	"errors"
	"fmt"
)

// errorType is a comparable string-backed error, following the same
// pattern the container-format layer uses for its own sentinel errors.
type errorType string

func (e errorType) Error() string { return string(e) }

// FormatError sentinels: the archive does not conform to the expected
// schema.
const (
	ErrBadMagic        = errorType("waj: bad pack magic")
	ErrUnsupportedVer  = errorType("waj: unsupported pack version")
	ErrUnknownVariant  = errorType("waj: unknown entry variant tag")
	ErrMissingProperty = errorType("waj: schema missing expected property")
	ErrDuplicatePath   = errorType("waj: duplicate archive path")
	ErrTruncated       = errorType("waj: pack truncated or corrupt")
)

// NotFoundError: binary search found no matching entry. Never surfaced to
// an HTTP caller directly; the server converts it to the 404 fallback
// flow.
const ErrNotFound = errorType("waj: entry not found")

// RangeError: malformed or unsatisfiable Range header.
const (
	ErrRangeUnsatisfiable = errorType("waj: range not satisfiable")
	ErrRangeMultipart     = errorType("waj: multiple ranges not implemented")
)

// PackIDOutOfRange is raised when an entry references a pack_id that the
// manifest never declared at all (not merely missing on disk).
type PackIDOutOfRange struct {
	PackID      uint8
	DeclaredMax uint8
}

func (e PackIDOutOfRange) Error() string {
	return fmt.Sprintf("waj: pack_id %d exceeds declared pack count %d", e.PackID, e.DeclaredMax)
}

// MissingPack indicates a content pack the manifest declares is absent
// from the filesystem. The directory pack continues to function; callers
// convert this into the synthetic placeholder response rather than a 500.
type MissingPack struct {
	UUID     string
	Locator  string
	ContentP uint8
}

func (e MissingPack) Error() string {
	return fmt.Sprintf("waj: content pack %s (uuid %s) declared at %q is missing", fmtPackID(e.ContentP), e.UUID, e.Locator)
}

func fmtPackID(id uint8) string { return fmt.Sprintf("pack_id=%d", id) }

// IsMissingPack reports whether err is (or wraps) a MissingPack error.
func IsMissingPack(err error) bool {
	var mp MissingPack
	return errors.As(err, &mp)
}

// AsMissingPack reports whether err is (or wraps) a MissingPack error,
// returning the unwrapped value.
func AsMissingPack(err error) (MissingPack, bool) {
	var mp MissingPack
	ok := errors.As(err, &mp)
	return mp, ok
}
