package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/wajproject/waj/internal/codec"
	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/waj"
)

func newCmd_Create() *cli.Command {
	return &cli.Command{
		Name:        "create",
		Usage:       "Create a WAJ archive from a directory tree.",
		Description: "Walk a directory tree, sniff MIME types, deduplicate content, and write a self-describing WAJ archive.",
		ArgsUsage:   "<inputs...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "outfile", Aliases: []string{"o"}, Required: true, Usage: "output archive path"},
			&cli.StringFlag{Name: "basedir", Aliases: []string{"C"}, Usage: "base directory inputs are relative to"},
			&cli.StringFlag{Name: "strip-prefix", Usage: "filesystem prefix stripped from every input path"},
			&cli.StringFlag{Name: "main", Usage: "archive path the root (\"\") redirects to"},
			&cli.StringFlag{Name: "compression", Value: "zstd", Usage: "zstd|lz4|none"},
			&cli.StringFlag{Name: "layout", Value: "one-file", Usage: "one-file|two-files|no-concat"},
			&cli.BoolFlag{Name: "force", Usage: "overwrite an existing output file"},
		},
		Action: func(c *cli.Context) error {
			return runCreate(c)
		},
	}
}

func runCreate(c *cli.Context) error {
	outfile := c.String("outfile")
	if !c.Bool("force") {
		if _, err := os.Stat(outfile); err == nil {
			return fmt.Errorf("create: %s already exists (use --force)", outfile)
		}
	}

	tag, err := codec.ParseTag(c.String("compression"))
	if err != nil {
		return err
	}
	mode, err := parseConcatMode(c.String("layout"))
	if err != nil {
		return err
	}

	basedir := c.String("basedir")
	prefix := c.String("strip-prefix")
	if prefix == "" {
		prefix = basedir
	}
	if prefix != "" {
		if prefix, err = filepath.Abs(prefix); err != nil {
			return err
		}
	}

	bar := newBarProgressSink("waj create")
	creator := waj.NewFsCreator(waj.CreatorConfig{
		Namer:           waj.StripPrefixNamer{Prefix: prefix},
		Compression:     tag,
		ConcatMode:      mode,
		Progress:        bar,
		MainEntryTarget: c.String("main"),
	})

	inputs := c.Args().Slice()
	if len(inputs) == 0 {
		if basedir == "" {
			return fmt.Errorf("create: no inputs given and no --basedir set")
		}
		inputs = []string{"."}
	}

	for _, in := range inputs {
		if basedir != "" && !filepath.IsAbs(in) {
			in = filepath.Join(basedir, in)
		}
		abs, err := filepath.Abs(in)
		if err != nil {
			return err
		}
		klog.Infof("waj create: walking %s", abs)
		if err := creator.AddFromPath(abs); err != nil {
			return fmt.Errorf("create: %w", err)
		}
	}

	if err := creator.Finalize(outfile); err != nil {
		return fmt.Errorf("create: %w", err)
	}
	klog.Infof("waj create: wrote %s", outfile)
	return nil
}

func parseConcatMode(name string) (container.ConcatMode, error) {
	switch name {
	case "", "one-file":
		return container.OneFile, nil
	case "two-files":
		return container.TwoFiles, nil
	case "no-concat":
		return container.NoConcat, nil
	default:
		return 0, fmt.Errorf("create: unknown layout %q", name)
	}
}
