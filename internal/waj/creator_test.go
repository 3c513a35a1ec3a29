package waj

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wajproject/waj/internal/codec"
	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/entrystore"
)

func writeTestSite(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html><body>hello</body></html>"), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "css"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "css", "app.css"), []byte("body { color: red; }"), 0o644))
	// byte-identical to index.html, to exercise dedup.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "copy.html"), []byte("<html><body>hello</body></html>"), 0o644))
	require.NoError(t, os.Symlink("index.html", filepath.Join(dir, "shortcut")))
	return dir
}

func TestFsCreatorRoundTrip(t *testing.T) {
	dir := writeTestSite(t)
	outDir := t.TempDir()
	outFile := filepath.Join(outDir, "site.waj")

	creator := NewFsCreator(CreatorConfig{
		Namer:       StripPrefixNamer{Prefix: dir},
		Compression: codec.TagZstd,
		ConcatMode:  container.OneFile,
	})
	require.NoError(t, creator.AddFromPath(dir))
	require.NoError(t, creator.Finalize(outFile))

	c, err := container.Open(outFile)
	require.NoError(t, err)
	defer c.Close()

	dirPack, err := c.DirectoryPack()
	require.NoError(t, err)
	index, ok := dirPack.GetIndexByName(IndexName)
	require.True(t, ok)

	// invariant 4: monotonically non-decreasing path order.
	var prev []byte
	index.Iterate(func(idx entrystore.EntryIdx) bool {
		p := dirPack.Entries.Path(idx)
		if prev != nil {
			require.LessOrEqual(t, string(prev), string(p))
		}
		prev = p
		return true
	})

	lookup := func(path string) entrystore.Entry {
		idx, ok := index.Find(entrystore.PathComparator(dirPack.Entries, []byte(path)))
		require.True(t, ok, path)
		entry, err := dirPack.Entries.Entry(idx)
		require.NoError(t, err)
		return entry
	}

	// invariant 1: round-trip content bytes and MIME type.
	entry := lookup("index.html")
	require.Equal(t, entrystore.VariantContent, entry.Variant)
	require.Equal(t, "text/html", string(entry.MimeType))
	pack, err := c.ContentPack(entry.Content.PackID)
	require.NoError(t, err)
	got, err := pack.GetBytes(entry.Content.ContentID)
	require.NoError(t, err)
	require.Equal(t, "<html><body>hello</body></html>", string(got))

	cssEntry := lookup("css/app.css")
	require.Equal(t, "text/css", string(cssEntry.MimeType))

	// invariant 2: redirect preservation, readlink target byte-for-byte.
	redirect := lookup("shortcut")
	require.Equal(t, entrystore.VariantRedirect, redirect.Variant)
	require.Equal(t, "index.html", string(redirect.Target))

	// invariant 3: deduplication, copy.html shares content_id with index.html.
	copyEntry := lookup("copy.html")
	require.Equal(t, entry.Content, copyEntry.Content)

	// root entry: no explicit main entry was declared and a top-level
	// index.html exists, so Finalize synthesizes a root redirect to it.
	root := lookup("")
	require.Equal(t, entrystore.VariantRedirect, root.Variant)
	require.Equal(t, "index.html", string(root.Target))
}

func TestFsCreatorRejectsDuplicatePaths(t *testing.T) {
	creator := NewFsCreator(CreatorConfig{
		Namer:       StripPrefixNamer{},
		Compression: codec.TagNone,
		ConcatMode:  container.OneFile,
	})
	creator.AddRedirect("dup", "a")
	creator.AddRedirect("dup", "b")

	outFile := filepath.Join(t.TempDir(), "out.waj")
	err := creator.Finalize(outFile)
	require.Error(t, err)
}

func TestFsCreatorExplicitMainEntry(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "main.html"), []byte("main page"), 0o644))

	creator := NewFsCreator(CreatorConfig{
		Namer:           StripPrefixNamer{Prefix: dir},
		Compression:     codec.TagNone,
		ConcatMode:      container.OneFile,
		MainEntryTarget: "main.html",
	})
	require.NoError(t, creator.AddFromPath(dir))

	outFile := filepath.Join(t.TempDir(), "out.waj")
	require.NoError(t, creator.Finalize(outFile))

	c, err := container.Open(outFile)
	require.NoError(t, err)
	defer c.Close()
	dirPack, err := c.DirectoryPack()
	require.NoError(t, err)
	index, ok := dirPack.GetIndexByName(IndexName)
	require.True(t, ok)

	idx, ok := index.Find(entrystore.PathComparator(dirPack.Entries, []byte("")))
	require.True(t, ok)
	entry, err := dirPack.Entries.Entry(idx)
	require.NoError(t, err)
	require.Equal(t, "main.html", string(entry.Target))
}
