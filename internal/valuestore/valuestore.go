// Package valuestore implements the two value-store kinds a directory
// pack can hold: a Plain store (raw concatenation, handles are
// offset+length) and an Indexed store (deduplicated, interned, handles
// are a dense value_id).
package valuestore

import (
	"encoding/binary"

	"github.com/tidwall/hashmap"
)

// Kind distinguishes the two value-store flavors.
type Kind uint8

const (
	KindPlain   Kind = 0
	KindIndexed Kind = 1
)

// Handle addresses a value inside a store. For a Plain store, Offset and
// Length are byte offset/length into the concatenated buffer. For an
// Indexed store, Offset carries the dense value_id and Length is unused.
type Handle struct {
	Offset uint64
	Length uint32
}

// Builder accumulates values during creation; it is write-once.
type Builder struct {
	kind Kind

	// Plain
	buf []byte

	// Indexed
	interned []byte   // concatenation of values in insertion (value_id) order
	offsets  []uint32 // start offset of each value_id within interned
	dedup    *hashmap.Map[string, uint32]
}

// NewPlainBuilder creates a builder for a Plain value store.
func NewPlainBuilder() *Builder {
	return &Builder{kind: KindPlain}
}

// NewIndexedBuilder creates a builder for a deduplicated Indexed value
// store.
func NewIndexedBuilder() *Builder {
	return &Builder{kind: KindIndexed, dedup: hashmap.New[string, uint32](64)}
}

func (b *Builder) Kind() Kind { return b.kind }

// Put stores a value and returns the handle to retrieve it later.
func (b *Builder) Put(value []byte) Handle {
	switch b.kind {
	case KindPlain:
		off := uint64(len(b.buf))
		b.buf = append(b.buf, value...)
		return Handle{Offset: off, Length: uint32(len(value))}
	case KindIndexed:
		if id, ok := b.dedup.Get(string(value)); ok {
			return Handle{Offset: uint64(id)}
		}
		id := uint32(len(b.offsets))
		b.offsets = append(b.offsets, uint32(len(b.interned)))
		b.interned = append(b.interned, value...)
		b.dedup.Set(string(value), id)
		return Handle{Offset: uint64(id)}
	default:
		panic("valuestore: unknown kind")
	}
}

// Len returns the number of distinct entries accumulated (for an Indexed
// store) or the raw byte length (for a Plain store).
func (b *Builder) Len() int {
	if b.kind == KindIndexed {
		return len(b.offsets)
	}
	return len(b.buf)
}

// Serialize returns the on-disk region bytes for this store:
//
//	kind u8
//	dataLen u64
//	data[dataLen]
//
// Plain data is the raw concatenation. Indexed data is:
//
//	count u32
//	for each value in value_id order: len u32; bytes
func (b *Builder) Serialize() []byte {
	var data []byte
	switch b.kind {
	case KindPlain:
		data = b.buf
	case KindIndexed:
		count := len(b.offsets)
		data = make([]byte, 0, 4+count*4+len(b.interned))
		var tmp [4]byte
		binary.LittleEndian.PutUint32(tmp[:], uint32(count))
		data = append(data, tmp[:]...)
		for i := 0; i < count; i++ {
			start := b.offsets[i]
			end := uint32(len(b.interned))
			if i+1 < count {
				end = b.offsets[i+1]
			}
			binary.LittleEndian.PutUint32(tmp[:], end-start)
			data = append(data, tmp[:]...)
			data = append(data, b.interned[start:end]...)
		}
	}
	out := make([]byte, 0, 1+8+len(data))
	out = append(out, byte(b.kind))
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(data)))
	out = append(out, lenBuf[:]...)
	out = append(out, data...)
	return out
}

// Store is the read-side view over a serialized value store region.
type Store struct {
	kind Kind
	raw  []byte // Plain: raw buffer. Indexed: the `data` region (count + entries).

	// Indexed lookup acceleration: parsed once.
	indexedOffsets []uint32
	indexedData    []byte
}

// Parse reads one value store region starting at buf[0] and returns the
// store plus the number of bytes consumed.
func Parse(buf []byte) (*Store, int, error) {
	if len(buf) < 9 {
		return nil, 0, errTruncated
	}
	kind := Kind(buf[0])
	dataLen := binary.LittleEndian.Uint64(buf[1:9])
	end := 9 + int(dataLen)
	if end > len(buf) {
		return nil, 0, errTruncated
	}
	s := &Store{kind: kind, raw: buf[9:end]}
	if kind == KindIndexed {
		if len(s.raw) < 4 {
			return nil, 0, errTruncated
		}
		count := binary.LittleEndian.Uint32(s.raw[:4])
		off := uint32(4)
		offsets := make([]uint32, 0, count)
		for i := uint32(0); i < count; i++ {
			if int(off)+4 > len(s.raw) {
				return nil, 0, errTruncated
			}
			l := binary.LittleEndian.Uint32(s.raw[off : off+4])
			off += 4
			offsets = append(offsets, off)
			off += l
		}
		s.indexedOffsets = offsets
		s.indexedData = s.raw
	}
	return s, end, nil
}

var errTruncated = errTruncatedErr{}

type errTruncatedErr struct{}

func (errTruncatedErr) Error() string { return "valuestore: truncated region" }

// Get resolves a handle to its byte value.
func (s *Store) Get(h Handle) []byte {
	switch s.kind {
	case KindPlain:
		if h.Offset+uint64(h.Length) > uint64(len(s.raw)) {
			return nil
		}
		return s.raw[h.Offset : h.Offset+uint64(h.Length)]
	case KindIndexed:
		id := uint32(h.Offset)
		if int(id) >= len(s.indexedOffsets) {
			return nil
		}
		start := s.indexedOffsets[id]
		var end uint32
		if int(id)+1 < len(s.indexedOffsets) {
			// next entry's length prefix sits 4 bytes before its data
			end = s.indexedOffsets[id+1] - 4
		} else {
			end = uint32(len(s.indexedData))
		}
		return s.indexedData[start:end]
	default:
		return nil
	}
}
