// Package container implements the root Container accessor: physical
// pack layout on disk (embedded tail-table or sibling files), pack_id
// resolution, and the trailing-embedded-archive open mode.
package container

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"k8s.io/klog/v2"

	"github.com/wajproject/waj/internal/blob"
	"github.com/wajproject/waj/internal/directorypack"
	"github.com/wajproject/waj/internal/manifest"
	"github.com/wajproject/waj/internal/wajerr"
)

// ConcatMode is the physical layout policy chosen at creation time.
type ConcatMode uint8

const (
	// OneFile: all packs embedded tail-to-tail in the output file.
	OneFile ConcatMode = iota
	// TwoFiles: content pack(s) stored as sibling "<out>.<pack_id>.wajc" files;
	// directory pack and manifest embedded.
	TwoFiles
	// NoConcat: directory pack, content pack(s), and manifest each in
	// their own sibling files.
	NoConcat
)

func (m ConcatMode) String() string {
	switch m {
	case OneFile:
		return "one-file"
	case TwoFiles:
		return "two-files"
	case NoConcat:
		return "no-concat"
	default:
		return "unknown"
	}
}

// trailerMagic marks the last 8 bytes of a container file that embeds its
// manifest (OneFile and TwoFiles modes).
var trailerMagic = [8]byte{'W', 'A', 'J', 'T', 'A', 'I', 'L', '1'}

// trailerSize: tailTableOffset(8) + manifestOffset(8) + manifestSize(8) + magic(8).
const trailerSize = 8 + 8 + 8 + 8

// WritePack is one pack's finalized bytes plus its manifest descriptor
// fields, ready to be laid out on disk.
type WritePack struct {
	PackID   uint8
	UUID     uuid.UUID
	Size     uint64
	Checksum uint64
	Bytes    []byte
}

// Write lays out a directory pack and its content packs into outPath
// according to mode, producing a container file (and, for TwoFiles /
// NoConcat, sibling files alongside it).
func Write(outPath string, mode ConcatMode, dirPack WritePack, contentPacks []WritePack) error {
	tmp := outPath + ".tmp"
	f, err := os.OpenFile(tmp, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("container: creating output file: %w", err)
	}
	cleanup := func() {
		f.Close()
		os.Remove(tmp)
	}

	var descs []manifest.Descriptor
	switch mode {
	case OneFile:
		offsets := make([]uint64, 0, 1+len(contentPacks))
		var cursor uint64
		if _, err := f.Write(dirPack.Bytes); err != nil {
			cleanup()
			return err
		}
		offsets = append(offsets, cursor)
		cursor += uint64(len(dirPack.Bytes))
		for _, cp := range contentPacks {
			if _, err := f.Write(cp.Bytes); err != nil {
				cleanup()
				return err
			}
			offsets = append(offsets, cursor)
			cursor += uint64(len(cp.Bytes))
		}

		tailTableOffset := cursor
		tailTable := serializeTailTable(offsets)
		if _, err := f.Write(tailTable); err != nil {
			cleanup()
			return err
		}
		cursor += uint64(len(tailTable))

		descs = append(descs, descriptorFor(dirPack, ""))
		for _, cp := range contentPacks {
			descs = append(descs, descriptorFor(cp, ""))
		}
		manifestBytes := manifest.Serialize(descs)
		manifestOffset := cursor
		if _, err := f.Write(manifestBytes); err != nil {
			cleanup()
			return err
		}

		if err := writeTrailer(f, tailTableOffset, manifestOffset, uint64(len(manifestBytes))); err != nil {
			cleanup()
			return err
		}

	case TwoFiles:
		if _, err := f.Write(dirPack.Bytes); err != nil {
			cleanup()
			return err
		}
		tailTableOffset := uint64(len(dirPack.Bytes))
		tailTable := serializeTailTable([]uint64{0})
		if _, err := f.Write(tailTable); err != nil {
			cleanup()
			return err
		}

		descs = append(descs, descriptorFor(dirPack, ""))
		for _, cp := range contentPacks {
			locator := contentPackLocator(outPath, cp.PackID)
			if err := os.WriteFile(locator, cp.Bytes, 0o644); err != nil {
				cleanup()
				return err
			}
			descs = append(descs, descriptorFor(cp, filepath.Base(locator)))
		}
		manifestBytes := manifest.Serialize(descs)
		manifestOffset := tailTableOffset + uint64(len(tailTable))
		if _, err := f.Write(manifestBytes); err != nil {
			cleanup()
			return err
		}
		if err := writeTrailer(f, tailTableOffset, manifestOffset, uint64(len(manifestBytes))); err != nil {
			cleanup()
			return err
		}

	case NoConcat:
		dirPath := outPath + ".wajd"
		if err := os.WriteFile(dirPath, dirPack.Bytes, 0o644); err != nil {
			cleanup()
			return err
		}
		descs = append(descs, descriptorFor(dirPack, filepath.Base(dirPath)))
		for _, cp := range contentPacks {
			locator := contentPackLocator(outPath, cp.PackID)
			if err := os.WriteFile(locator, cp.Bytes, 0o644); err != nil {
				cleanup()
				return err
			}
			descs = append(descs, descriptorFor(cp, filepath.Base(locator)))
		}
		manifestBytes := manifest.Serialize(descs)
		if _, err := f.Write(manifestBytes); err != nil {
			cleanup()
			return err
		}

	default:
		cleanup()
		return fmt.Errorf("container: unknown concat mode %v", mode)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, outPath); err != nil {
		os.Remove(tmp)
		return err
	}
	return nil
}

func contentPackLocator(outPath string, packID uint8) string {
	return fmt.Sprintf("%s.%d.wajc", outPath, packID)
}

func descriptorFor(p WritePack, locator string) manifest.Descriptor {
	return manifest.Descriptor{
		PackID:   p.PackID,
		UUID:     p.UUID,
		Size:     p.Size,
		Checksum: p.Checksum,
		Locator:  locator,
	}
}

func serializeTailTable(offsets []uint64) []byte {
	out := make([]byte, 0, 4+len(offsets)*8)
	var tmp4 [4]byte
	binary.LittleEndian.PutUint32(tmp4[:], uint32(len(offsets)))
	out = append(out, tmp4[:]...)
	for _, o := range offsets {
		var tmp8 [8]byte
		binary.LittleEndian.PutUint64(tmp8[:], o)
		out = append(out, tmp8[:]...)
	}
	return out
}

func writeTrailer(w io.Writer, tailTableOffset, manifestOffset, manifestSize uint64) error {
	var buf [trailerSize]byte
	binary.LittleEndian.PutUint64(buf[0:8], tailTableOffset)
	binary.LittleEndian.PutUint64(buf[8:16], manifestOffset)
	binary.LittleEndian.PutUint64(buf[16:24], manifestSize)
	copy(buf[24:32], trailerMagic[:])
	_, err := w.Write(buf[:])
	return err
}

// Container is the opened, read-only root accessor for an archive.
type Container struct {
	baseDir  string
	main     *os.File
	mainSize int64
	manifest *manifest.Manifest
	// embeddedOffsets maps pack_id -> absolute offset within main, for
	// packs whose manifest descriptor has an empty locator.
	embeddedOffsets map[uint8]uint64
	embeddedSizes   map[uint8]uint64

	// packMu guards dirPack/contentPacks: Container is opened once and
	// shared read-only across the server's worker pool (spec.md §5), but
	// pack-opening is lazy and memoized on first access, so concurrent
	// first requests for the same pack race without this lock.
	packMu       sync.Mutex
	dirPack      *directorypack.Pack
	contentPacks map[uint8]*blob.Pack
}

// Open opens an archive. path is either a OneFile/TwoFiles container
// (ending with the trailer magic) or, in NoConcat mode, the manifest
// file itself.
func Open(path string) (*Container, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	st, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}
	size := st.Size()
	klog.V(1).Infof("container: opening %s (%d bytes)", path, size)
	c := &Container{
		baseDir:         filepath.Dir(path),
		main:            f,
		mainSize:        size,
		embeddedOffsets: map[uint8]uint64{},
		embeddedSizes:   map[uint8]uint64{},
		contentPacks:    map[uint8]*blob.Pack{},
	}
	adviseRandomAccess(f)

	if size >= trailerSize {
		var trailer [trailerSize]byte
		if _, err := f.ReadAt(trailer[:], size-trailerSize); err == nil {
			if [8]byte(trailer[24:32]) == trailerMagic {
				tailTableOffset := binary.LittleEndian.Uint64(trailer[0:8])
				manifestOffset := binary.LittleEndian.Uint64(trailer[8:16])
				manifestSize := binary.LittleEndian.Uint64(trailer[16:24])

				manifestBytes := make([]byte, manifestSize)
				if _, err := f.ReadAt(manifestBytes, int64(manifestOffset)); err != nil {
					f.Close()
					return nil, err
				}
				m, err := manifest.Parse(manifestBytes)
				if err != nil {
					f.Close()
					return nil, err
				}
				c.manifest = m

				offsets, err := readTailTable(f, int64(tailTableOffset), int64(manifestOffset))
				if err != nil {
					f.Close()
					return nil, err
				}
				for _, d := range m.Descriptors {
					if d.Locator == "" {
						if int(d.PackID) >= len(offsets) {
							f.Close()
							return nil, fmt.Errorf("container: pack_id %d has no tail-table entry", d.PackID)
						}
						c.embeddedOffsets[d.PackID] = offsets[d.PackID]
						c.embeddedSizes[d.PackID] = d.Size
					}
				}
				return c, nil
			}
		}
	}

	// NoConcat mode: path is the manifest file itself, read from offset 0.
	manifestBytes := make([]byte, size)
	if _, err := f.ReadAt(manifestBytes, 0); err != nil {
		f.Close()
		return nil, err
	}
	m, err := manifest.Parse(manifestBytes)
	if err != nil {
		f.Close()
		return nil, err
	}
	c.manifest = m
	return c, nil
}

func readTailTable(r io.ReaderAt, offset, end int64) ([]uint64, error) {
	if offset < 0 || offset > end {
		return nil, wajerr.ErrTruncated
	}
	buf := make([]byte, end-offset)
	if _, err := r.ReadAt(buf, offset); err != nil {
		return nil, err
	}
	if len(buf) < 4 {
		return nil, wajerr.ErrTruncated
	}
	n := binary.LittleEndian.Uint32(buf[0:4])
	want := 4 + int(n)*8
	if want > len(buf) {
		return nil, wajerr.ErrTruncated
	}
	out := make([]uint64, n)
	for i := uint32(0); i < n; i++ {
		out[i] = binary.LittleEndian.Uint64(buf[4+i*8 : 12+i*8])
	}
	return out, nil
}

// Manifest returns the parsed manifest pack.
func (c *Container) Manifest() *manifest.Manifest { return c.manifest }

// readPack returns the raw bytes for a declared pack_id, opening a
// sibling file if the descriptor carries a locator.
func (c *Container) readPack(packID uint8) ([]byte, *manifest.Descriptor, error) {
	var desc *manifest.Descriptor
	for i := range c.manifest.Descriptors {
		if c.manifest.Descriptors[i].PackID == packID {
			desc = &c.manifest.Descriptors[i]
			break
		}
	}
	if desc == nil {
		return nil, nil, wajerr.PackIDOutOfRange{PackID: packID, DeclaredMax: uint8(len(c.manifest.Descriptors))}
	}
	if desc.Locator == "" {
		off, ok := c.embeddedOffsets[packID]
		if !ok {
			return nil, desc, fmt.Errorf("container: pack_id %d has no embedded offset", packID)
		}
		buf := make([]byte, desc.Size)
		if _, err := c.main.ReadAt(buf, int64(off)); err != nil {
			return nil, desc, err
		}
		return buf, desc, nil
	}

	siblingPath := filepath.Join(c.baseDir, desc.Locator)
	buf, err := os.ReadFile(siblingPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, desc, wajerr.MissingPack{UUID: desc.UUID.String(), Locator: desc.Locator, ContentP: packID}
		}
		return nil, desc, err
	}
	return buf, desc, nil
}

// DirectoryPack returns the (cached) opened directory pack, pack_id 0.
func (c *Container) DirectoryPack() (*directorypack.Pack, error) {
	c.packMu.Lock()
	defer c.packMu.Unlock()

	if c.dirPack != nil {
		return c.dirPack, nil
	}
	buf, _, err := c.readPack(0)
	if err != nil {
		return nil, err
	}
	p, err := directorypack.Open(buf)
	if err != nil {
		return nil, err
	}
	c.dirPack = p
	return p, nil
}

// ContentPack returns the (cached) opened content pack for packID, or a
// wajerr.MissingPack error if its backing file is declared but absent.
func (c *Container) ContentPack(packID uint8) (*blob.Pack, error) {
	c.packMu.Lock()
	defer c.packMu.Unlock()

	if p, ok := c.contentPacks[packID]; ok {
		return p, nil
	}
	buf, _, err := c.readPack(packID)
	if err != nil {
		return nil, err
	}
	p, err := blob.Open(buf)
	if err != nil {
		return nil, err
	}
	c.contentPacks[packID] = p
	return p, nil
}

// Close releases the underlying file handle.
func (c *Container) Close() error {
	return c.main.Close()
}
