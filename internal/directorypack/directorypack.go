// Package directorypack implements the DirectoryPack: the schema, value
// stores, entry store, and named indices (L1/L2 boundary).
package directorypack

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"

	"github.com/wajproject/waj/internal/entrystore"
	"github.com/wajproject/waj/internal/wajerr"
)

var Magic = [8]byte{'W', 'A', 'J', 'D', 'I', 'R', 'P', 'K'}

const Version = uint8(1)

// PackInfo describes a finalized pack for inclusion in a manifest.
type PackInfo struct {
	UUID     uuid.UUID
	PackID   uint8
	Size     uint64
	Checksum uint64
}

// Builder accumulates a directory pack during creation.
type Builder struct {
	entries *entrystore.Builder
	// named indices, declared after entries are sorted and finalized
	indexName  string
	indexFirst entrystore.EntryIdx
	indexCount uint32
}

func NewBuilder(entries *entrystore.Builder) *Builder {
	return &Builder{entries: entries}
}

// CreateIndex registers a named index spanning [first, first+count) of
// the (already sorted) entry store. WAJ only ever uses one index,
// "waj_entries", spanning the whole store.
func (b *Builder) CreateIndex(name string, first entrystore.EntryIdx, count uint32) {
	b.indexName = name
	b.indexFirst = first
	b.indexCount = count
}

// Serialize writes the full directory pack: header, value-store region,
// entry-store region, index region.
func (b *Builder) Serialize() ([]byte, PackInfo, error) {
	entryRegion, pathRegion, stringRegion := b.entries.Serialize()

	valueStoreRegion := serializeValueStoreRegion(pathRegion, stringRegion)
	indexRegion := serializeIndexRegion(b.indexName, b.indexFirst, b.indexCount)

	headerPlaceholder := make([]byte, headerFixedSize)
	valueStoreOffset := uint64(len(headerPlaceholder))
	entryStoreOffset := valueStoreOffset + uint64(len(valueStoreRegion))
	indexOffset := entryStoreOffset + uint64(len(entryRegion))
	totalSize := indexOffset + uint64(len(indexRegion))

	id := uuid.New()
	header := make([]byte, 0, headerFixedSize)
	header = append(header, Magic[:]...)
	header = append(header, Version)
	idBytes, _ := id.MarshalBinary()
	header = append(header, idBytes...)
	header = append(header, 0, 0, 0, 0) // free-data length = 0
	header = appendU64(header, valueStoreOffset)
	header = appendU64(header, entryStoreOffset)
	header = appendU64(header, indexOffset)
	header = appendU64(header, totalSize)
	if len(header) != headerFixedSize {
		return nil, PackInfo{}, fmt.Errorf("directorypack: header size drift: got %d want %d", len(header), headerFixedSize)
	}

	out := make([]byte, 0, totalSize)
	out = append(out, header...)
	out = append(out, valueStoreRegion...)
	out = append(out, entryRegion...)
	out = append(out, indexRegion...)

	info := PackInfo{
		UUID:     id,
		Size:     uint64(len(out)),
		Checksum: xxhash.Sum64(out),
	}
	return out, info, nil
}

// headerFixedSize: magic(8) + version(1) + uuid(16) + freeDataLen(4) +
// 4 offsets (8 bytes each).
const headerFixedSize = 8 + 1 + 16 + 4 + 4*8

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func serializeValueStoreRegion(pathRegion, stringRegion []byte) []byte {
	var out []byte
	out = appendU64(out, uint64(len(pathRegion)))
	out = append(out, pathRegion...)
	out = appendU64(out, uint64(len(stringRegion)))
	out = append(out, stringRegion...)
	return out
}

func parseValueStoreRegion(buf []byte) (pathRegion, stringRegion []byte, err error) {
	if len(buf) < 8 {
		return nil, nil, wajerr.ErrTruncated
	}
	pl := binary.LittleEndian.Uint64(buf[0:8])
	off := 8 + int(pl)
	if off > len(buf) {
		return nil, nil, wajerr.ErrTruncated
	}
	pathRegion = buf[8:off]
	if off+8 > len(buf) {
		return nil, nil, wajerr.ErrTruncated
	}
	sl := binary.LittleEndian.Uint64(buf[off : off+8])
	soff := off + 8
	if soff+int(sl) > len(buf) {
		return nil, nil, wajerr.ErrTruncated
	}
	stringRegion = buf[soff : soff+int(sl)]
	return pathRegion, stringRegion, nil
}

func serializeIndexRegion(name string, first entrystore.EntryIdx, count uint32) []byte {
	out := make([]byte, 0, 2+len(name)+1+4+4+4)
	var u16 [2]byte
	binary.LittleEndian.PutUint16(u16[:], 1) // numIndices = 1
	out = append(out, u16[:]...)

	binary.LittleEndian.PutUint16(u16[:], uint16(len(name)))
	out = append(out, u16[:]...)
	out = append(out, name...)
	out = append(out, 0) // keyPropertyTag: 0 = path

	var u32 [4]byte
	binary.LittleEndian.PutUint32(u32[:], 0) // entryStoreID: always 0
	out = append(out, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], count)
	out = append(out, u32[:]...)
	binary.LittleEndian.PutUint32(u32[:], uint32(first))
	out = append(out, u32[:]...)
	return out
}

type parsedIndex struct {
	name  string
	first entrystore.EntryIdx
	count uint32
}

func parseIndexRegion(buf []byte) ([]parsedIndex, error) {
	if len(buf) < 2 {
		return nil, wajerr.ErrTruncated
	}
	n := binary.LittleEndian.Uint16(buf[0:2])
	off := 2
	out := make([]parsedIndex, 0, n)
	for i := uint16(0); i < n; i++ {
		if off+2 > len(buf) {
			return nil, wajerr.ErrTruncated
		}
		nameLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
		if off+nameLen+1+4+4+4 > len(buf) {
			return nil, wajerr.ErrTruncated
		}
		name := string(buf[off : off+nameLen])
		off += nameLen
		off += 1 // keyPropertyTag, unused (path is the only sort key)
		off += 4 // entryStoreID, unused (single entry store)
		count := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		first := binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
		out = append(out, parsedIndex{name: name, first: entrystore.EntryIdx(first), count: count})
	}
	return out, nil
}

// Pack is the read-side view over a parsed directory pack.
type Pack struct {
	UUID    uuid.UUID
	Entries *entrystore.Reader
	indices map[string]*entrystore.Index
}

// Open parses a directory pack from its full byte region.
func Open(buf []byte) (*Pack, error) {
	if len(buf) < headerFixedSize {
		return nil, wajerr.ErrTruncated
	}
	if [8]byte(buf[0:8]) != Magic {
		return nil, wajerr.ErrBadMagic
	}
	version := buf[8]
	if version != Version {
		return nil, wajerr.ErrUnsupportedVer
	}
	id, err := uuid.FromBytes(buf[9:25])
	if err != nil {
		return nil, err
	}
	freeDataLen := binary.LittleEndian.Uint32(buf[25:29])
	cursor := 29 + int(freeDataLen)
	if cursor+4*8 > len(buf) {
		return nil, wajerr.ErrTruncated
	}
	valueStoreOffset := binary.LittleEndian.Uint64(buf[cursor : cursor+8])
	entryStoreOffset := binary.LittleEndian.Uint64(buf[cursor+8 : cursor+16])
	indexOffset := binary.LittleEndian.Uint64(buf[cursor+16 : cursor+24])
	totalSize := binary.LittleEndian.Uint64(buf[cursor+24 : cursor+32])
	if totalSize > uint64(len(buf)) {
		return nil, wajerr.ErrTruncated
	}

	pathRegion, stringRegion, err := parseValueStoreRegion(buf[valueStoreOffset:entryStoreOffset])
	if err != nil {
		return nil, err
	}
	entryRegion := buf[entryStoreOffset:indexOffset]
	reader, err := entrystore.NewReader(entryRegion, pathRegion, stringRegion)
	if err != nil {
		return nil, err
	}
	parsedIndices, err := parseIndexRegion(buf[indexOffset:totalSize])
	if err != nil {
		return nil, err
	}
	indices := make(map[string]*entrystore.Index, len(parsedIndices))
	for _, pi := range parsedIndices {
		indices[pi.name] = &entrystore.Index{
			Name:       pi.name,
			EntryStore: reader,
			First:      pi.first,
			Count:      pi.count,
		}
	}
	return &Pack{UUID: id, Entries: reader, indices: indices}, nil
}

// GetIndexByName returns the named index, if declared.
func (p *Pack) GetIndexByName(name string) (*entrystore.Index, bool) {
	ix, ok := p.indices[name]
	return ix, ok
}

// GetEntryReader returns the raw bytes of one entry record, or nil if
// idx is out of range.
func (p *Pack) GetEntryReader(idx entrystore.EntryIdx) []byte {
	return p.Entries.RawRecord(idx)
}
