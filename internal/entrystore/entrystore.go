// Package entrystore implements the fixed-record entry store (L2): a
// typed array of Content/Redirect entries addressed by EntryIdx, plus an
// ordered Index supporting binary search with a caller-supplied
// comparator.
//
// The schema here is fixed to the two WAJ variants named in the
// container format: Content and Redirect. A dynamic N-variant schema
// (as the source format models it with type-parameterized readers) is
// collapsed to a tagged discriminant plus a fixed-width union record,
// per the re-architecture guidance: a systems-language implementation
// models per-variant specialization with a tagged discriminant and small
// per-variant structs, not runtime polymorphism.
package entrystore

import (
	"encoding/binary"

	"github.com/wajproject/waj/internal/valuestore"
	"github.com/wajproject/waj/internal/wajerr"
)

// Variant is the one-byte discriminant stored in every record.
type Variant uint8

const (
	VariantContent  Variant = 0
	VariantRedirect Variant = 1
)

// RecordSize is the fixed width, in bytes, of every entry record.
const RecordSize = 31

// EntryIdx addresses a single record within an entry store.
type EntryIdx uint32

// ContentAddress is a 5-byte logical pointer into a content pack.
type ContentAddress struct {
	PackID    uint8
	ContentID uint32
}

// Entry is the materialized, typed view of one record.
type Entry struct {
	Path    []byte
	Variant Variant

	// valid when Variant == VariantContent
	MimeType []byte
	Content  ContentAddress

	// valid when Variant == VariantRedirect
	Target []byte
}

// Record is the pre-serialization representation a creator accumulates:
// path bytes plus variant payload, not yet bound to value-store handles.
type Record struct {
	Path     []byte
	Variant  Variant
	MimeType []byte          // Content
	Content  ContentAddress  // Content
	Target   []byte          // Redirect
}

// Builder accumulates Records and serializes them, along with the two
// backing value stores (path store: Plain; string store: Indexed, shared
// by mimetype and redirect-target strings since both are short, highly
// repeated ASCII tokens).
type Builder struct {
	records    []Record
	pathStore  *valuestore.Builder
	stringStore *valuestore.Builder
}

func NewBuilder() *Builder {
	return &Builder{
		pathStore:   valuestore.NewPlainBuilder(),
		stringStore: valuestore.NewIndexedBuilder(),
	}
}

// Add appends a record. Records are sorted only by the caller's
// SortStable call, and duplicate paths are rejected only by
// CheckNoDuplicates; Add preserves insertion order (needed for the
// stable sort precondition).
func (b *Builder) Add(r Record) {
	b.records = append(b.records, r)
}

func (b *Builder) Len() int { return len(b.records) }

// Records exposes the accumulated records for inspection (e.g. to detect
// an existing "index.html" path before deciding whether to synthesize a
// root redirect).
func (b *Builder) Records() []Record { return b.records }

// SortStable sorts records by path bytes, stably, as required before
// serialization (spec: stable sort is a precondition for binary search
// correctness over duplicate paths, though duplicates are now rejected
// outright — see CheckNoDuplicates).
func (b *Builder) SortStable() {
	stableSortByPath(b.records)
}

// CheckNoDuplicates rejects archives with two records sharing the same
// path. Must be called after SortStable.
func (b *Builder) CheckNoDuplicates() error {
	for i := 1; i < len(b.records); i++ {
		if string(b.records[i-1].Path) == string(b.records[i].Path) {
			return wajerr.ErrDuplicatePath
		}
	}
	return nil
}

func stableSortByPath(recs []Record) {
	// insertion sort is fine for typical site sizes and keeps stability
	// trivially obvious; creation is not a hot path per spec.md §5.
	for i := 1; i < len(recs); i++ {
		j := i
		for j > 0 && string(recs[j-1].Path) > string(recs[j].Path) {
			recs[j-1], recs[j] = recs[j], recs[j-1]
			j--
		}
	}
}

// Serialize returns the entry-store region bytes plus the two value
// store regions (path store, string store), in that order.
func (b *Builder) Serialize() (entryRegion, pathRegion, stringRegion []byte) {
	n := len(b.records)
	entryRegion = make([]byte, 8+n*RecordSize)
	binary.LittleEndian.PutUint32(entryRegion[0:4], uint32(n))
	binary.LittleEndian.PutUint32(entryRegion[4:8], RecordSize)

	for i, r := range b.records {
		off := 8 + i*RecordSize
		rec := entryRegion[off : off+RecordSize]

		pathHandle := b.pathStore.Put(r.Path)
		var prefix byte
		if len(r.Path) > 0 {
			prefix = r.Path[0]
		}
		rec[0] = prefix
		binary.LittleEndian.PutUint64(rec[1:9], pathHandle.Offset)
		binary.LittleEndian.PutUint32(rec[9:13], pathHandle.Length)
		rec[13] = byte(r.Variant)

		switch r.Variant {
		case VariantContent:
			strHandle := b.stringStore.Put(r.MimeType)
			rec[14] = r.Content.PackID
			binary.LittleEndian.PutUint32(rec[15:19], r.Content.ContentID)
			binary.LittleEndian.PutUint64(rec[19:27], strHandle.Offset)
			binary.LittleEndian.PutUint32(rec[27:31], strHandle.Length)
		case VariantRedirect:
			strHandle := b.stringStore.Put(r.Target)
			rec[14] = 0
			binary.LittleEndian.PutUint32(rec[15:19], 0)
			binary.LittleEndian.PutUint64(rec[19:27], strHandle.Offset)
			binary.LittleEndian.PutUint32(rec[27:31], strHandle.Length)
		}
	}
	return entryRegion, b.pathStore.Serialize(), b.stringStore.Serialize()
}

// Reader is the read-side view over a serialized entry store plus its two
// backing value stores.
type Reader struct {
	raw         []byte // records region, not including the 8-byte header
	count       uint32
	recordSize  uint32
	pathStore   *valuestore.Store
	stringStore *valuestore.Store
}

// NewReader parses an entry-store region plus its two value-store
// regions (as produced by Builder.Serialize, in the same order).
func NewReader(entryRegion, pathRegion, stringRegion []byte) (*Reader, error) {
	if len(entryRegion) < 8 {
		return nil, wajerr.ErrTruncated
	}
	count := binary.LittleEndian.Uint32(entryRegion[0:4])
	recSize := binary.LittleEndian.Uint32(entryRegion[4:8])
	want := 8 + int(count)*int(recSize)
	if want > len(entryRegion) {
		return nil, wajerr.ErrTruncated
	}
	pathStore, _, err := valuestore.Parse(pathRegion)
	if err != nil {
		return nil, err
	}
	stringStore, _, err := valuestore.Parse(stringRegion)
	if err != nil {
		return nil, err
	}
	return &Reader{
		raw:         entryRegion[8:want],
		count:       count,
		recordSize:  recSize,
		pathStore:   pathStore,
		stringStore: stringStore,
	}, nil
}

// Count returns the number of entries in the store.
func (r *Reader) Count() int { return int(r.count) }

// RawRecord returns the raw bytes of one record, or nil if idx is out of
// range. Mirrors DirectoryPack.get_entry_reader in spec.md §4.2.
func (r *Reader) RawRecord(idx EntryIdx) []byte {
	off := int(idx) * int(r.recordSize)
	if off < 0 || off+int(r.recordSize) > len(r.raw) {
		return nil
	}
	return r.raw[off : off+int(r.recordSize)]
}

// PathPrefix returns just the inline first byte of the path, without
// touching the value store. Used by PathComparator to short-circuit.
func (r *Reader) PathPrefix(idx EntryIdx) (byte, bool) {
	rec := r.RawRecord(idx)
	if rec == nil {
		return 0, false
	}
	return rec[0], true
}

// Path materializes the full path for idx.
func (r *Reader) Path(idx EntryIdx) []byte {
	rec := r.RawRecord(idx)
	if rec == nil {
		return nil
	}
	h := valuestore.Handle{
		Offset: binary.LittleEndian.Uint64(rec[1:9]),
		Length: binary.LittleEndian.Uint32(rec[9:13]),
	}
	return r.pathStore.Get(h)
}

// Entry materializes the full typed entry at idx.
func (r *Reader) Entry(idx EntryIdx) (Entry, error) {
	rec := r.RawRecord(idx)
	if rec == nil {
		return Entry{}, wajerr.ErrNotFound
	}
	e := Entry{Path: r.Path(idx), Variant: Variant(rec[13])}
	strHandle := valuestore.Handle{
		Offset: binary.LittleEndian.Uint64(rec[19:27]),
		Length: binary.LittleEndian.Uint32(rec[27:31]),
	}
	switch e.Variant {
	case VariantContent:
		e.MimeType = r.stringStore.Get(strHandle)
		e.Content = ContentAddress{
			PackID:    rec[14],
			ContentID: binary.LittleEndian.Uint32(rec[15:19]),
		}
	case VariantRedirect:
		e.Target = r.stringStore.Get(strHandle)
	default:
		return Entry{}, wajerr.ErrUnknownVariant
	}
	return e, nil
}

// Ordering is the three-way comparator result a binary search uses.
type Ordering int

const (
	Less    Ordering = -1
	Equal   Ordering = 0
	Greater Ordering = 1
)

// Comparator compares a candidate entry against some external target.
type Comparator func(idx EntryIdx) Ordering

// PathComparator builds a Comparator that orders entries by path bytes
// against target, short-circuiting on the inline prefix byte when it
// already decides the outcome.
func PathComparator(r *Reader, target []byte) Comparator {
	return func(idx EntryIdx) Ordering {
		prefix, ok := r.PathPrefix(idx)
		if !ok {
			return Greater
		}
		if len(target) == 0 {
			if prefix == 0 {
				// fall through to full compare; empty path has no prefix byte
			} else {
				return Greater
			}
		} else if prefix != target[0] {
			if prefix < target[0] {
				return Less
			}
			return Greater
		}
		path := r.Path(idx)
		switch {
		case string(path) < string(target):
			return Less
		case string(path) > string(target):
			return Greater
		default:
			return Equal
		}
	}
}

// Index is a named, ordered view over a contiguous entry range.
type Index struct {
	Name       string
	EntryStore *Reader
	First      EntryIdx
	Count      uint32
}

// Len returns the number of entries spanned by the index.
func (ix *Index) Len() int { return int(ix.Count) }

// At returns the EntryIdx of the i-th entry in sort order.
func (ix *Index) At(i int) EntryIdx { return ix.First + EntryIdx(i) }

// Find performs a binary search using cmp, returning the lowest-index
// entry that compares Equal, or (0, false) if none does.
func (ix *Index) Find(cmp Comparator) (EntryIdx, bool) {
	lo, hi := 0, int(ix.Count)
	result := -1
	for lo < hi {
		mid := lo + (hi-lo)/2
		switch cmp(ix.At(mid)) {
		case Less:
			lo = mid + 1
		case Greater:
			hi = mid
		case Equal:
			result = mid
			hi = mid // keep searching left for the first Equal
		}
	}
	if result < 0 {
		return 0, false
	}
	return ix.At(result), true
}

// Iterate calls fn for every EntryIdx in the index, in sort order,
// stopping early if fn returns false.
func (ix *Index) Iterate(fn func(EntryIdx) bool) {
	for i := 0; i < int(ix.Count); i++ {
		if !fn(ix.At(i)) {
			return
		}
	}
}
