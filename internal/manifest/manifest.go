// Package manifest implements ManifestPack: the list of pack descriptors
// (UUID, size, checksum, locator) that ties a directory pack and its
// content pack(s) together into one archive.
package manifest

import (
	"encoding/binary"

	"github.com/google/uuid"

	"github.com/wajproject/waj/internal/wajerr"
)

var Magic = [8]byte{'W', 'A', 'J', 'M', 'A', 'N', 'I', 'F'}

const Version = uint8(1)

// Descriptor describes one sub-pack. An empty Locator means the pack is
// embedded in the same container file, addressable via the container's
// tail table by PackID. A non-empty Locator is a path (relative to the
// manifest's own location) to a sibling file holding the pack's raw
// bytes from offset 0.
type Descriptor struct {
	PackID   uint8
	UUID     uuid.UUID
	Size     uint64
	Checksum uint64
	Locator  string
}

// Manifest is the parsed, in-memory form of a manifest pack.
type Manifest struct {
	Version     uint8
	Descriptors []Descriptor
}

// Serialize writes the manifest pack bytes.
func Serialize(descs []Descriptor) []byte {
	var out []byte
	out = append(out, Magic[:]...)
	out = append(out, Version)
	out = append(out, 0, 0, 0, 0) // free-data length = 0

	out = appendU32(out, uint32(len(descs)))
	for _, d := range descs {
		out = append(out, d.PackID)
		idBytes, _ := d.UUID.MarshalBinary()
		out = append(out, idBytes...)
		out = appendU64(out, d.Size)
		out = appendU64(out, d.Checksum)
		out = appendU16(out, uint16(len(d.Locator)))
		out = append(out, d.Locator...)
	}
	return out
}

// Parse reads a manifest pack from its full byte region.
func Parse(buf []byte) (*Manifest, error) {
	if len(buf) < 8+1+4 {
		return nil, wajerr.ErrTruncated
	}
	if [8]byte(buf[0:8]) != Magic {
		return nil, wajerr.ErrBadMagic
	}
	version := buf[8]
	if version != Version {
		return nil, wajerr.ErrUnsupportedVer
	}
	freeDataLen := binary.LittleEndian.Uint32(buf[9:13])
	off := 13 + int(freeDataLen)
	if off+4 > len(buf) {
		return nil, wajerr.ErrTruncated
	}
	count := binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4

	descs := make([]Descriptor, 0, count)
	for i := uint32(0); i < count; i++ {
		if off+1+16+8+8+2 > len(buf) {
			return nil, wajerr.ErrTruncated
		}
		packID := buf[off]
		off++
		id, err := uuid.FromBytes(buf[off : off+16])
		if err != nil {
			return nil, err
		}
		off += 16
		size := binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
		checksum := binary.LittleEndian.Uint64(buf[off : off+8])
		off += 8
		locLen := int(binary.LittleEndian.Uint16(buf[off : off+2]))
		off += 2
		if off+locLen > len(buf) {
			return nil, wajerr.ErrTruncated
		}
		locator := string(buf[off : off+locLen])
		off += locLen
		descs = append(descs, Descriptor{
			PackID:   packID,
			UUID:     id,
			Size:     size,
			Checksum: checksum,
			Locator:  locator,
		})
	}
	return &Manifest{Version: version, Descriptors: descs}, nil
}

func appendU64(b []byte, v uint64) []byte {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU32(b []byte, v uint32) []byte {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	return append(b, tmp[:]...)
}

func appendU16(b []byte, v uint16) []byte {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	return append(b, tmp[:]...)
}
