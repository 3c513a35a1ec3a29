package container

import (
	"bytes"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wajproject/waj/internal/blob"
	"github.com/wajproject/waj/internal/codec"
	"github.com/wajproject/waj/internal/directorypack"
	"github.com/wajproject/waj/internal/entrystore"
	"github.com/wajproject/waj/internal/wajerr"
)

func makeWritePack(packID uint8, payload string) WritePack {
	return WritePack{
		PackID:   packID,
		UUID:     uuid.New(),
		Size:     uint64(len(payload)),
		Checksum: 0x1234,
		Bytes:    []byte(payload),
	}
}

func TestWriteOpenOneFile(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "archive.waj")

	dirPack := makeWritePack(0, "directory pack bytes")
	contentPack := makeWritePack(1, "content pack bytes")

	require.NoError(t, Write(out, OneFile, dirPack, []WritePack{contentPack}))

	c, err := Open(out)
	require.NoError(t, err)
	defer c.Close()

	require.Len(t, c.Manifest().Descriptors, 2)

	gotDir, desc, err := c.readPack(0)
	require.NoError(t, err)
	require.Equal(t, "directory pack bytes", string(gotDir))
	require.Equal(t, dirPack.UUID, desc.UUID)

	gotContent, _, err := c.readPack(1)
	require.NoError(t, err)
	require.Equal(t, "content pack bytes", string(gotContent))
}

func TestWriteOpenTwoFiles(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "archive.waj")

	dirPack := makeWritePack(0, "directory pack bytes")
	contentPack := makeWritePack(1, "content pack bytes")

	require.NoError(t, Write(out, TwoFiles, dirPack, []WritePack{contentPack}))
	require.FileExists(t, contentPackLocator(out, 1))

	c, err := Open(out)
	require.NoError(t, err)
	defer c.Close()

	gotContent, _, err := c.readPack(1)
	require.NoError(t, err)
	require.Equal(t, "content pack bytes", string(gotContent))
}

func TestWriteOpenNoConcat(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "archive.waj")

	dirPack := makeWritePack(0, "directory pack bytes")
	contentPack := makeWritePack(1, "content pack bytes")

	require.NoError(t, Write(out, NoConcat, dirPack, []WritePack{contentPack}))
	require.FileExists(t, out+".wajd")
	require.FileExists(t, contentPackLocator(out, 1))

	c, err := Open(out)
	require.NoError(t, err)
	defer c.Close()

	gotDir, _, err := c.readPack(0)
	require.NoError(t, err)
	require.Equal(t, "directory pack bytes", string(gotDir))
}

func TestOpenMissingSiblingReturnsMissingPack(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "archive.waj")

	dirPack := makeWritePack(0, "directory pack bytes")
	contentPack := makeWritePack(1, "content pack bytes")

	require.NoError(t, Write(out, TwoFiles, dirPack, []WritePack{contentPack}))
	require.NoError(t, os.Remove(contentPackLocator(out, 1)))

	c, err := Open(out)
	require.NoError(t, err)
	defer c.Close()

	_, _, err = c.readPack(1)
	require.True(t, wajerr.IsMissingPack(err))
}

// TestConcurrentPackAccess exercises the worker-pool access pattern of
// spec.md §5: many goroutines resolving DirectoryPack/ContentPack on the
// same opened Container concurrently must not race on the lazy-open
// caches.
func TestConcurrentPackAccess(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "archive.waj")

	entries := entrystore.NewBuilder()
	entries.Add(entrystore.Record{
		Path:     []byte("a.txt"),
		Variant:  entrystore.VariantContent,
		MimeType: []byte("text/plain"),
		Content:  entrystore.ContentAddress{PackID: 1, ContentID: 0},
	})
	entries.SortStable()
	require.NoError(t, entries.CheckNoDuplicates())

	dirBuilder := directorypack.NewBuilder(entries)
	dirBuilder.CreateIndex("waj_entries", 0, uint32(entries.Len()))
	dirBytes, dirInfo, err := dirBuilder.Serialize()
	require.NoError(t, err)

	contentBuilder := blob.NewBuilder(1, codec.TagNone, nil)
	_, err = contentBuilder.AddContent(bytes.NewReader([]byte("hello world")))
	require.NoError(t, err)
	contentBytes, contentInfo, err := contentBuilder.Finalize()
	require.NoError(t, err)

	require.NoError(t, Write(out, OneFile,
		WritePack{PackID: 0, UUID: dirInfo.UUID, Size: dirInfo.Size, Checksum: dirInfo.Checksum, Bytes: dirBytes},
		[]WritePack{{PackID: contentInfo.PackID, UUID: contentInfo.UUID, Size: contentInfo.Size, Checksum: contentInfo.Checksum, Bytes: contentBytes}},
	))

	c, err := Open(out)
	require.NoError(t, err)
	defer c.Close()

	const workers = 32
	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			// require's FailNow is unsafe off the test goroutine; assert
			// reports without aborting, which is safe from any goroutine.
			dp, err := c.DirectoryPack()
			assert.NoError(t, err)
			assert.NotNil(t, dp)

			cp, err := c.ContentPack(1)
			assert.NoError(t, err)
			data, err := cp.GetBytes(0)
			assert.NoError(t, err)
			assert.Equal(t, "hello world", string(data))
		}()
	}
	wg.Wait()
}

func TestConcatModeString(t *testing.T) {
	require.Equal(t, "one-file", OneFile.String())
	require.Equal(t, "two-files", TwoFiles.String())
	require.Equal(t, "no-concat", NoConcat.String())
}
