package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v2"

	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/entrystore"
	"github.com/wajproject/waj/internal/waj"
)

func newCmd_List() *cli.Command {
	return &cli.Command{
		Name:        "list",
		Usage:       "List the entries of a WAJ archive.",
		Description: "Print every path in a WAJ archive's waj_entries index, along with variant, MIME type, and size.",
		ArgsUsage:   "<archive>",
		Action: func(c *cli.Context) error {
			return runList(c)
		},
	}
}

func runList(c *cli.Context) error {
	if c.Args().Len() != 1 {
		return fmt.Errorf("list: exactly one archive path required")
	}
	path := c.Args().First()

	archive, err := container.Open(path)
	if err != nil {
		return fmt.Errorf("list: opening %s: %w", path, err)
	}
	defer archive.Close()

	dirPack, err := archive.DirectoryPack()
	if err != nil {
		return fmt.Errorf("list: %w", err)
	}
	index, ok := dirPack.GetIndexByName(waj.IndexName)
	if !ok {
		return fmt.Errorf("list: archive has no %q index", waj.IndexName)
	}

	var totalBytes int64
	for i := 0; i < index.Len(); i++ {
		entry, err := dirPack.Entries.Entry(index.At(i))
		if err != nil {
			return fmt.Errorf("list: %w", err)
		}
		size := printEntry(archive, entry)
		totalBytes += size
	}
	fmt.Printf("%d entries, %s total content\n", index.Len(), humanize.Bytes(uint64(totalBytes)))
	return nil
}

// printEntry prints one listing row and returns the entry's content size
// (0 for redirects).
func printEntry(archive *container.Container, entry entrystore.Entry) int64 {
	switch entry.Variant {
	case entrystore.VariantRedirect:
		fmt.Printf("%-40s redirect -> %s\n", displayPath(entry), string(entry.Target))
		return 0
	default:
		var size int64
		if pack, err := archive.ContentPack(entry.Content.PackID); err == nil {
			size, _ = pack.Size(entry.Content.ContentID)
		}
		fmt.Printf("%-40s %-24s %s\n", displayPath(entry), string(entry.MimeType), humanize.Bytes(uint64(size)))
		return size
	}
}

func displayPath(entry entrystore.Entry) string {
	if len(entry.Path) == 0 {
		return "/"
	}
	return string(entry.Path)
}
