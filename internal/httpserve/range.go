package httpserve

import (
	"strconv"
	"strings"

	"github.com/wajproject/waj/internal/wajerr"
)

// byteRange is a single resolved, satisfiable range, inclusive on both
// ends, within [0, size).
type byteRange struct {
	start, end int64 // inclusive
}

// parseRange implements the subset of RFC 7233 this server supports:
// exactly one range, parsed from a "bytes=" spec. Invalid syntax returns
// (nil, nil) so the caller serves a full 200, per spec.md §4.5. More than
// one range, or a range unsatisfiable against size, is reported via a
// wajerr sentinel the caller maps to 416.
func parseRange(header string, size int64) (*byteRange, error) {
	if header == "" {
		return nil, nil
	}
	const prefix = "bytes="
	if !strings.HasPrefix(header, prefix) {
		return nil, nil
	}
	spec := header[len(prefix):]
	parts := strings.Split(spec, ",")
	if len(parts) > 1 {
		return nil, wajerr.ErrRangeMultipart
	}
	part := strings.TrimSpace(parts[0])
	dash := strings.IndexByte(part, '-')
	if dash < 0 {
		return nil, nil
	}
	startStr, endStr := part[:dash], part[dash+1:]

	var start, end int64
	switch {
	case startStr == "" && endStr == "":
		return nil, nil
	case startStr == "":
		// suffix range: last N bytes
		n, err := strconv.ParseInt(endStr, 10, 64)
		if err != nil || n < 0 {
			return nil, nil
		}
		if n == 0 {
			return nil, wajerr.ErrRangeUnsatisfiable
		}
		start = size - n
		if start < 0 {
			start = 0
		}
		end = size - 1
	case endStr == "":
		s, err := strconv.ParseInt(startStr, 10, 64)
		if err != nil || s < 0 {
			return nil, nil
		}
		start = s
		end = size - 1
	default:
		s, err1 := strconv.ParseInt(startStr, 10, 64)
		e, err2 := strconv.ParseInt(endStr, 10, 64)
		if err1 != nil || err2 != nil || s < 0 {
			return nil, nil
		}
		if e < s {
			// spec.md §8 property 7: an inverted range (last-byte-pos <
			// first-byte-pos) is unsatisfiable, not malformed syntax.
			return nil, wajerr.ErrRangeUnsatisfiable
		}
		start, end = s, e
		if end > size-1 {
			end = size - 1
		}
	}

	if size == 0 || start >= size || start > end {
		return nil, wajerr.ErrRangeUnsatisfiable
	}
	return &byteRange{start: start, end: end}, nil
}
