package main

import (
	"context"
	"fmt"
	"time"

	"github.com/urfave/cli/v2"
	"k8s.io/klog/v2"

	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/httpserve"
)

func newCmd_Serve() *cli.Command {
	return &cli.Command{
		Name:        "serve",
		Usage:       "Serve one or more WAJ archives over HTTP.",
		Description: "Run the worker-pool HTTP serving core over one or more opened archives.",
		ArgsUsage:   "<archive...>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "addr", Aliases: []string{"a"}, Value: "127.0.0.1:8080", Usage: "listen address"},
			&cli.IntFlag{Name: "threads", Aliases: []string{"t"}, Usage: "worker pool size (default: NumCPU)"},
			&cli.StringFlag{Name: "router", Value: "single", Usage: "single|host|path"},
			&cli.StringFlag{Name: "config", Usage: "YAML/JSON file describing a host or path router mapping"},
		},
		Action: func(c *cli.Context) error {
			return runServe(c)
		},
	}
}

func runServe(c *cli.Context) error {
	archivePaths := c.Args().Slice()
	if len(archivePaths) == 0 {
		return fmt.Errorf("serve: at least one archive path required")
	}

	routerKind := c.String("router")
	configPath := c.String("config")

	var router httpserve.Router
	switch routerKind {
	case "single":
		if len(archivePaths) != 1 {
			return fmt.Errorf("serve: --router single requires exactly one archive")
		}
		archive, err := container.Open(archivePaths[0])
		if err != nil {
			return fmt.Errorf("serve: opening %s: %w", archivePaths[0], err)
		}
		router = httpserve.SingleRouter{Archive: archive}

	case "host":
		cfg, err := LoadServeConfig(configPath)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		byHost, err := openNamedArchives(cfg.Hosts)
		if err != nil {
			return err
		}
		router = httpserve.HostRouter{ByHost: byHost}

	case "path":
		cfg, err := LoadServeConfig(configPath)
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		byPath, err := openNamedArchives(cfg.Paths)
		if err != nil {
			return err
		}
		router = httpserve.SubPathRouter{ByFirstSegment: byPath}

	default:
		return fmt.Errorf("serve: unknown router %q", routerKind)
	}

	handler := httpserve.NewHandler(router)
	srv := httpserve.NewServer(handler, c.Int("threads"))

	go func() {
		<-c.Context.Done()
		klog.Info("waj serve: shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			klog.Errorf("waj serve: shutdown: %v", err)
		}
	}()

	klog.Infof("waj serve: listening on %s", c.String("addr"))
	return srv.ListenAndServe(c.String("addr"))
}

func openNamedArchives(byName map[string]string) (map[string]*container.Container, error) {
	out := make(map[string]*container.Container, len(byName))
	for name, path := range byName {
		archive, err := container.Open(path)
		if err != nil {
			return nil, fmt.Errorf("serve: opening %s (%s): %w", name, path, err)
		}
		out[name] = archive
	}
	return out, nil
}
