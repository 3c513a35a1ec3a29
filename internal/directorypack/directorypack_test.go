package directorypack

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wajproject/waj/internal/entrystore"
)

func TestSerializeOpenRoundTrip(t *testing.T) {
	eb := entrystore.NewBuilder()
	eb.Add(entrystore.Record{
		Path:     []byte("index.html"),
		Variant:  entrystore.VariantContent,
		MimeType: []byte("text/html"),
		Content:  entrystore.ContentAddress{PackID: 1, ContentID: 0},
	})
	eb.Add(entrystore.Record{
		Path:    []byte(""),
		Variant: entrystore.VariantRedirect,
		Target:  []byte("index.html"),
	})
	eb.SortStable()
	require.NoError(t, eb.CheckNoDuplicates())

	b := NewBuilder(eb)
	b.CreateIndex("waj_entries", 0, uint32(eb.Len()))

	buf, info, err := b.Serialize()
	require.NoError(t, err)
	require.EqualValues(t, len(buf), info.Size)

	pack, err := Open(buf)
	require.NoError(t, err)
	require.Equal(t, info.UUID, pack.UUID)

	index, ok := pack.GetIndexByName("waj_entries")
	require.True(t, ok)
	require.Equal(t, 2, index.Len())

	idx, ok := index.Find(entrystore.PathComparator(pack.Entries, []byte("index.html")))
	require.True(t, ok)
	entry, err := pack.Entries.Entry(idx)
	require.NoError(t, err)
	require.Equal(t, entrystore.VariantContent, entry.Variant)
	require.Equal(t, "text/html", string(entry.MimeType))
}

func TestOpenRejectsBadMagic(t *testing.T) {
	_, err := Open([]byte("not a directory pack at all, too short"))
	require.Error(t, err)
}

func TestGetIndexByNameMissing(t *testing.T) {
	eb := entrystore.NewBuilder()
	eb.Add(entrystore.Record{Path: []byte("a"), Variant: entrystore.VariantContent})
	b := NewBuilder(eb)
	b.CreateIndex("waj_entries", 0, 1)
	buf, _, err := b.Serialize()
	require.NoError(t, err)

	pack, err := Open(buf)
	require.NoError(t, err)
	_, ok := pack.GetIndexByName("nonexistent")
	require.False(t, ok)
}
