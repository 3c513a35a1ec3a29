// Package blob implements ContentPack: deduplicated, content-addressed,
// optionally compressed blob storage (L1).
package blob

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/tidwall/hashmap"
	"lukechampine.com/blake3"

	"github.com/wajproject/waj/internal/codec"
	"github.com/wajproject/waj/internal/wajerr"
)

var Magic = [8]byte{'W', 'A', 'J', 'C', 'O', 'N', 'T', 'P'}

const Version = uint8(1)

// DefaultClusterThreshold is the accumulated-uncompressed-size that
// triggers flushing the current cluster (spec.md §4.1's "implementation
// chosen, e.g. 4 MiB" example).
const DefaultClusterThreshold = 4 << 20

// minSavingsRatio: a cluster is stored raw (TagNone) when compression
// doesn't shrink it by at least this fraction.
const minSavingsRatio = 0.05

// ProgressSink receives dedup/ingest events during creation. The core
// never renders a progress bar itself (out of scope per spec.md §1); it
// only calls this interface.
type ProgressSink interface {
	CachedData(size int64)
	NewContent(size int64)
}

type noopSink struct{}

func (noopSink) CachedData(int64) {}
func (noopSink) NewContent(int64) {}

// NoopProgressSink is used when the caller doesn't care about progress.
var NoopProgressSink ProgressSink = noopSink{}

// PackInfo describes a finalized content pack for inclusion in a
// manifest.
type PackInfo struct {
	UUID     uuid.UUID
	PackID   uint8
	Size     uint64
	Checksum uint64
}

type pendingCluster struct {
	buf []byte
}

type blobLocation struct {
	clusterID uint32
	offset    uint64
	size      uint64
}

// Builder accumulates content during creation: add_content
// hash-deduplicates, buffers into the current cluster, and flushes
// clusters once the threshold is crossed.
type Builder struct {
	PackID          uint8
	ClusterThreshold int
	CompressionTag  codec.Tag
	Progress        ProgressSink

	dedup   *hashmap.Map[[32]byte, uint32]
	blobs   []blobLocation
	current pendingCluster
	done    []finishedCluster
}

type finishedCluster struct {
	tag              codec.Tag
	uncompressedSize uint64
	compressedSize   uint64
	data             []byte
}

// NewBuilder creates a content pack builder. packID must be >= 1 (0 is
// reserved for the directory pack).
func NewBuilder(packID uint8, compressionTag codec.Tag, progress ProgressSink) *Builder {
	if progress == nil {
		progress = NoopProgressSink
	}
	return &Builder{
		PackID:           packID,
		ClusterThreshold: DefaultClusterThreshold,
		CompressionTag:   compressionTag,
		Progress:         progress,
		dedup:            hashmap.New[[32]byte, uint32](64),
	}
}

// AddContent reads stream to completion, hash-deduplicating against
// previously added blobs, and returns its content_id.
func (b *Builder) AddContent(stream io.Reader) (uint32, error) {
	data, err := io.ReadAll(stream)
	if err != nil {
		return 0, fmt.Errorf("blob: reading content: %w", err)
	}
	digest := blake3.Sum256(data)
	if existing, ok := b.dedup.Get(digest); ok {
		b.Progress.CachedData(int64(len(data)))
		return existing, nil
	}

	id := uint32(len(b.blobs))
	b.dedup.Set(digest, id)

	loc := blobLocation{
		clusterID: uint32(len(b.done)),
		offset:    uint64(len(b.current.buf)),
		size:      uint64(len(data)),
	}
	b.current.buf = append(b.current.buf, data...)
	b.blobs = append(b.blobs, loc)
	b.Progress.NewContent(int64(len(data)))

	if len(b.current.buf) >= b.ClusterThreshold {
		if err := b.flushCluster(); err != nil {
			return 0, err
		}
	}
	return id, nil
}

func (b *Builder) flushCluster() error {
	if len(b.current.buf) == 0 {
		return nil
	}
	raw := b.current.buf
	tag := b.CompressionTag
	compressed, err := codec.Compress(tag, raw)
	if err != nil {
		return fmt.Errorf("blob: compressing cluster: %w", err)
	}
	if tag != codec.TagNone && float64(len(compressed)) > float64(len(raw))*(1-minSavingsRatio) {
		tag = codec.TagNone
		compressed = raw
	}
	b.done = append(b.done, finishedCluster{
		tag:              tag,
		uncompressedSize: uint64(len(raw)),
		compressedSize:   uint64(len(compressed)),
		data:             compressed,
	})
	b.current = pendingCluster{}
	return nil
}

// Len returns the number of distinct content blobs added so far.
func (b *Builder) Len() int { return len(b.blobs) }

// headerFixedSize: magic(8) + version(1) + uuid(16) + freeDataLen(4) +
// clusterCount(4) + blobCount(4) + 3 offsets (8 each).
const headerFixedSize = 8 + 1 + 16 + 4 + 4 + 4 + 3*8

// Finalize flushes any partial cluster and serializes the full content
// pack.
func (b *Builder) Finalize() ([]byte, PackInfo, error) {
	if err := b.flushCluster(); err != nil {
		return nil, PackInfo{}, err
	}

	clusterIndex := make([]byte, 0, len(b.done)*(1+8+8+8))
	var dataRegion bytes.Buffer
	var dataOffset uint64
	for _, c := range b.done {
		clusterIndex = append(clusterIndex, byte(c.tag))
		clusterIndex = appendU64(clusterIndex, c.uncompressedSize)
		clusterIndex = appendU64(clusterIndex, c.compressedSize)
		clusterIndex = appendU64(clusterIndex, dataOffset)
		dataRegion.Write(c.data)
		dataOffset += c.compressedSize
	}

	blobIndex := make([]byte, 0, len(b.blobs)*(4+8+8))
	for _, loc := range b.blobs {
		var tmp4 [4]byte
		binary.LittleEndian.PutUint32(tmp4[:], loc.clusterID)
		blobIndex = append(blobIndex, tmp4[:]...)
		blobIndex = appendU64(blobIndex, loc.offset)
		blobIndex = appendU64(blobIndex, loc.size)
	}

	headerPlaceholder := make([]byte, headerFixedSize)
	blobIndexOffset := uint64(len(headerPlaceholder))
	clusterIndexOffset := blobIndexOffset + uint64(len(blobIndex))
	clusterDataOffset := clusterIndexOffset + uint64(len(clusterIndex))
	totalSize := clusterDataOffset + uint64(dataRegion.Len())

	id := uuid.New()
	header := make([]byte, 0, headerFixedSize)
	header = append(header, Magic[:]...)
	header = append(header, Version)
	idBytes, _ := id.MarshalBinary()
	header = append(header, idBytes...)
	header = append(header, 0, 0, 0, 0) // free-data length = 0
	header = appendU32(header, uint32(len(b.done)))
	header = appendU32(header, uint32(len(b.blobs)))
	header = appendU64(header, blobIndexOffset)
	header = appendU64(header, clusterIndexOffset)
	header = appendU64(header, clusterDataOffset)
	if len(header) != headerFixedSize {
		return nil, PackInfo{}, fmt.Errorf("blob: header size drift: got %d want %d", len(header), headerFixedSize)
	}

	out := make([]byte, 0, totalSize)
	out = append(out, header...)
	out = append(out, blobIndex...)
	out = append(out, clusterIndex...)
	out = append(out, dataRegion.Bytes()...)

	info := PackInfo{
		UUID:     id,
		PackID:   b.PackID,
		Size:     uint64(len(out)),
		Checksum: xxhash.Sum64(out),
	}
	return out, info, nil
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

type clusterMeta struct {
	tag              codec.Tag
	uncompressedSize uint64
	compressedSize   uint64
	offset           uint64
}

type blobMeta struct {
	clusterID uint32
	offset    uint64
	size      uint64
}

// Pack is the read-side view over a parsed content pack. It is opened
// once and shared read-only across the server's worker pool (spec.md
// §5); the decompressed-cluster cache is the one piece of mutable state
// hanging off that otherwise-immutable view, so it is guarded by a
// mutex rather than relying on the workers' read-only assumption.
type Pack struct {
	UUID    uuid.UUID
	buf     []byte
	clusters []clusterMeta
	blobs   []blobMeta
	dataOffset uint64

	cacheMu sync.Mutex
	cache   map[uint32][]byte
}

// Open parses a content pack from its full byte region.
func Open(buf []byte) (*Pack, error) {
	if len(buf) < headerFixedSize {
		return nil, wajerr.ErrTruncated
	}
	if [8]byte(buf[0:8]) != Magic {
		return nil, wajerr.ErrBadMagic
	}
	if buf[8] != Version {
		return nil, wajerr.ErrUnsupportedVer
	}
	id, err := uuid.FromBytes(buf[9:25])
	if err != nil {
		return nil, err
	}
	freeDataLen := binary.LittleEndian.Uint32(buf[25:29])
	cursor := 29 + int(freeDataLen)
	if cursor+4+4+3*8 > len(buf) {
		return nil, wajerr.ErrTruncated
	}
	clusterCount := binary.LittleEndian.Uint32(buf[cursor : cursor+4])
	blobCount := binary.LittleEndian.Uint32(buf[cursor+4 : cursor+8])
	blobIndexOffset := binary.LittleEndian.Uint64(buf[cursor+8 : cursor+16])
	clusterIndexOffset := binary.LittleEndian.Uint64(buf[cursor+16 : cursor+24])
	clusterDataOffset := binary.LittleEndian.Uint64(buf[cursor+24 : cursor+32])

	blobs := make([]blobMeta, 0, blobCount)
	off := blobIndexOffset
	for i := uint32(0); i < blobCount; i++ {
		if off+20 > uint64(len(buf)) {
			return nil, wajerr.ErrTruncated
		}
		clusterID := binary.LittleEndian.Uint32(buf[off : off+4])
		blobOffset := binary.LittleEndian.Uint64(buf[off+4 : off+12])
		size := binary.LittleEndian.Uint64(buf[off+12 : off+20])
		blobs = append(blobs, blobMeta{clusterID: clusterID, offset: blobOffset, size: size})
		off += 20
	}

	clusters := make([]clusterMeta, 0, clusterCount)
	off = clusterIndexOffset
	for i := uint32(0); i < clusterCount; i++ {
		if off+25 > uint64(len(buf)) {
			return nil, wajerr.ErrTruncated
		}
		tag := codec.Tag(buf[off])
		uSize := binary.LittleEndian.Uint64(buf[off+1 : off+9])
		cSize := binary.LittleEndian.Uint64(buf[off+9 : off+17])
		dOff := binary.LittleEndian.Uint64(buf[off+17 : off+25])
		clusters = append(clusters, clusterMeta{tag: tag, uncompressedSize: uSize, compressedSize: cSize, offset: dOff})
		off += 25
	}

	return &Pack{
		UUID:       id,
		buf:        buf,
		clusters:   clusters,
		blobs:      blobs,
		dataOffset: clusterDataOffset,
		cache:      make(map[uint32][]byte),
	}, nil
}

// GetBytes returns the bytes for content_id, decompressing its cluster on
// first access and caching the decompressed cluster for subsequent
// blobs within it.
func (p *Pack) GetBytes(contentID uint32) ([]byte, error) {
	if int(contentID) >= len(p.blobs) {
		return nil, wajerr.ErrNotFound
	}
	loc := p.blobs[contentID]
	cluster, err := p.decompressedCluster(loc.clusterID)
	if err != nil {
		return nil, err
	}
	end := loc.offset + loc.size
	if end > uint64(len(cluster)) {
		return nil, wajerr.ErrTruncated
	}
	return cluster[loc.offset:end], nil
}

func (p *Pack) decompressedCluster(id uint32) ([]byte, error) {
	p.cacheMu.Lock()
	defer p.cacheMu.Unlock()

	if cached, ok := p.cache[id]; ok {
		return cached, nil
	}
	if int(id) >= len(p.clusters) {
		return nil, wajerr.ErrTruncated
	}
	meta := p.clusters[id]
	start := p.dataOffset + meta.offset
	end := start + meta.compressedSize
	if end > uint64(len(p.buf)) {
		return nil, wajerr.ErrTruncated
	}
	raw, err := codec.Decompress(meta.tag, p.buf[start:end], int64(meta.uncompressedSize))
	if err != nil {
		return nil, fmt.Errorf("blob: decompressing cluster %d: %w", id, err)
	}
	p.cache[id] = raw
	return raw, nil
}

// Size returns the uncompressed byte length of a blob without
// decompressing its cluster.
func (p *Pack) Size(contentID uint32) (int64, error) {
	if int(contentID) >= len(p.blobs) {
		return 0, wajerr.ErrNotFound
	}
	return int64(p.blobs[contentID].size), nil
}

// Count returns the number of distinct blobs in the pack.
func (p *Pack) Count() int { return len(p.blobs) }
