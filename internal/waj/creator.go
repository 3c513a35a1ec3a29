// Package waj binds the generic container-format layers (L1/L2) to the
// concrete WAJ schema and drives the creation pipeline and the HTTP
// serving core (L3).
package waj

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"k8s.io/klog/v2"

	"github.com/wajproject/waj/internal/blob"
	"github.com/wajproject/waj/internal/codec"
	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/directorypack"
	"github.com/wajproject/waj/internal/entrystore"
)

// IndexName is the one named index the WAJ schema declares, spanning the
// whole entry store in sorted path order.
const IndexName = "waj_entries"

// ContentPackID is the pack_id of the (sole, for now) content pack a
// creation run produces. 0 is reserved for the directory pack.
const ContentPackID uint8 = 1

// CreatorConfig configures a creation run.
type CreatorConfig struct {
	Namer           Namer
	Compression     codec.Tag
	ConcatMode      container.ConcatMode
	Progress        blob.ProgressSink
	MainEntryTarget string // e.g. "main.html"; empty disables an explicit root redirect
}

// FsCreator drives the filesystem-walk-to-archive pipeline described in
// spec.md §4.4.
type FsCreator struct {
	cfg     CreatorConfig
	content *blob.Builder
	entries *entrystore.Builder
}

// NewFsCreator creates a pipeline for a single output archive.
func NewFsCreator(cfg CreatorConfig) *FsCreator {
	if cfg.Progress == nil {
		cfg.Progress = blob.NoopProgressSink
	}
	return &FsCreator{
		cfg:     cfg,
		content: blob.NewBuilder(ContentPackID, cfg.Compression, cfg.Progress),
		entries: entrystore.NewBuilder(),
	}
}

// AddFromPath walks the filesystem subtree rooted at root, adding a
// Content or Redirect entry for each qualifying file, per spec.md §4.4
// step 1.
func (c *FsCreator) AddFromPath(root string) error {
	return filepath.WalkDir(root, func(fsPath string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("waj: walking %s: %w", fsPath, err)
		}
		if d.IsDir() {
			return nil
		}
		return c.addOne(fsPath, d)
	})
}

func (c *FsCreator) addOne(fsPath string, d fs.DirEntry) error {
	archivePath, ok := c.cfg.Namer.Name(fsPath)
	if !ok {
		return nil
	}

	info, err := d.Info()
	if err != nil {
		return fmt.Errorf("waj: stat %s: %w", fsPath, err)
	}

	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(fsPath)
		if err != nil {
			return fmt.Errorf("waj: readlink %s: %w", fsPath, err)
		}
		resolved := target
		if !filepath.IsAbs(resolved) {
			resolved = filepath.Join(filepath.Dir(fsPath), target)
		}
		targetInfo, err := os.Stat(resolved)
		if err != nil || targetInfo.IsDir() {
			// symlink to a directory, or broken link: skip.
			return nil
		}
		c.entries.Add(entrystore.Record{
			Path:    []byte(archivePath),
			Variant: entrystore.VariantRedirect,
			Target:  []byte(target),
		})
		return nil
	}

	if !info.Mode().IsRegular() {
		return nil
	}

	f, err := os.Open(fsPath)
	if err != nil {
		return fmt.Errorf("waj: open %s: %w", fsPath, err)
	}
	defer f.Close()

	peek := make([]byte, sniffWindow)
	n, _ := f.Read(peek)
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("waj: seek %s: %w", fsPath, err)
	}
	mime := DetectMIME(fsPath, peek[:n])

	contentID, err := c.content.AddContent(f)
	if err != nil {
		return fmt.Errorf("waj: adding content for %s: %w", fsPath, err)
	}

	c.entries.Add(entrystore.Record{
		Path:     []byte(archivePath),
		Variant:  entrystore.VariantContent,
		MimeType: []byte(mime),
		Content:  entrystore.ContentAddress{PackID: ContentPackID, ContentID: contentID},
	})
	return nil
}

// AddRedirect inserts an explicit redirect entry, e.g.
// AddRedirect("", "main.html") for a root redirect (spec.md §4.4 step 6).
func (c *FsCreator) AddRedirect(from, to string) {
	c.entries.Add(entrystore.Record{
		Path:    []byte(from),
		Variant: entrystore.VariantRedirect,
		Target:  []byte(to),
	})
}

func (c *FsCreator) hasPath(path string) bool {
	for _, r := range c.entries.Records() {
		if string(r.Path) == path {
			return true
		}
	}
	return false
}

// Finalize sorts, validates, serializes, and writes the archive to
// outPath. It implements spec.md §4.4 step 7, plus the §9 open-question
// resolution for a missing main entry: if the caller never declared a
// root redirect and "index.html" exists, one is synthesized with a
// logged warning; otherwise no root entry is added.
func (c *FsCreator) Finalize(outPath string) error {
	if c.cfg.MainEntryTarget != "" {
		c.AddRedirect("", c.cfg.MainEntryTarget)
	} else if !c.hasPath("") {
		if c.hasPath("index.html") {
			klog.Warningf("waj: no main entry declared; synthesizing root redirect to index.html")
			c.AddRedirect("", "index.html")
		} else {
			klog.Warningf("waj: no main entry declared and no index.html present; archive will have no root entry")
		}
	}

	c.entries.SortStable()
	if err := c.entries.CheckNoDuplicates(); err != nil {
		return err
	}

	dirBuilder := directorypack.NewBuilder(c.entries)
	dirBuilder.CreateIndex(IndexName, 0, uint32(c.entries.Len()))
	dirBytes, dirInfo, err := dirBuilder.Serialize()
	if err != nil {
		return fmt.Errorf("waj: serializing directory pack: %w", err)
	}

	contentBytes, contentInfo, err := c.content.Finalize()
	if err != nil {
		return fmt.Errorf("waj: serializing content pack: %w", err)
	}

	return container.Write(outPath, c.cfg.ConcatMode,
		container.WritePack{
			PackID:   0,
			UUID:     dirInfo.UUID,
			Size:     dirInfo.Size,
			Checksum: dirInfo.Checksum,
			Bytes:    dirBytes,
		},
		[]container.WritePack{{
			PackID:   contentInfo.PackID,
			UUID:     contentInfo.UUID,
			Size:     contentInfo.Size,
			Checksum: contentInfo.Checksum,
			Bytes:    contentBytes,
		}},
	)
}
