// Package codec provides the pluggable cluster compression transforms used
// by a content pack: zstd, lz4, and a raw passthrough. The container
// format only ever stores a one-byte algorithm tag per cluster; the codec
// behind that tag is swappable without touching the container format.
package codec

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Tag identifies the compression algorithm applied to a cluster.
type Tag uint8

const (
	TagNone Tag = 0
	TagZstd Tag = 1
	TagLZ4  Tag = 2
)

func (t Tag) String() string {
	switch t {
	case TagNone:
		return "none"
	case TagZstd:
		return "zstd"
	case TagLZ4:
		return "lz4"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(t))
	}
}

// ParseTag maps a CLI/config algorithm name to its wire tag.
func ParseTag(name string) (Tag, error) {
	switch name {
	case "", "none":
		return TagNone, nil
	case "zstd":
		return TagZstd, nil
	case "lz4":
		return TagLZ4, nil
	default:
		return 0, fmt.Errorf("codec: unknown compression %q", name)
	}
}

// Compress returns the compressed form of raw under the given tag. For
// TagNone it returns raw unmodified.
func Compress(tag Tag, raw []byte) ([]byte, error) {
	switch tag {
	case TagNone:
		return raw, nil
	case TagZstd:
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, err
		}
		defer enc.Close()
		return enc.EncodeAll(raw, nil), nil
	case TagLZ4:
		var buf bytes.Buffer
		w := lz4.NewWriter(&buf)
		if _, err := w.Write(raw); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("codec: unsupported compression tag %d", tag)
	}
}

// Decompress reverses Compress. For TagZstd, uncompressedSize only
// pre-sizes the output buffer. For TagLZ4, the output is read into a
// buffer of exactly uncompressedSize bytes, so at most that many bytes are
// returned.
func Decompress(tag Tag, compressed []byte, uncompressedSize int64) ([]byte, error) {
	switch tag {
	case TagNone:
		return compressed, nil
	case TagZstd:
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer dec.Close()
		out := make([]byte, 0, uncompressedSize)
		return dec.DecodeAll(compressed, out)
	case TagLZ4:
		r := lz4.NewReader(bytes.NewReader(compressed))
		out := make([]byte, uncompressedSize)
		n, err := io.ReadFull(r, out)
		if err != nil && err != io.ErrUnexpectedEOF {
			return nil, err
		}
		return out[:n], nil
	default:
		return nil, fmt.Errorf("codec: unsupported compression tag %d", tag)
	}
}
