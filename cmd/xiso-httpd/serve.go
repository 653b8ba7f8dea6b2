package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"golang.org/x/net/netutil"
	"golang.org/x/sync/errgroup"

	"github.com/wilkovatch/http-xiso-wrapper/internal/bufferpool"
	"github.com/wilkovatch/http-xiso-wrapper/internal/isroot"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/facade"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/iprange"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/logutil"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/patch"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/server"
)

type logFlags struct {
	Verbose bool `help:"Enable debug log messages."`
	JSONLog bool `help:"Output log messages in json format."`
}

func (lf *logFlags) setupLogger() {
	level := slog.LevelInfo
	if lf.Verbose {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if lf.JSONLog {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})
	} else {
		handler = tint.NewHandler(colorable.NewColorable(os.Stdout), &tint.Options{
			Level:   level,
			NoColor: !isatty.IsTerminal(os.Stdout.Fd()),
		})
	}

	handler = &server.SlogContextHandler{Handler: handler}

	slog.SetDefault(slog.New(handler))
}

type serveCmd struct {
	DVDPath string `arg:"" help:"Input image, directory of extracted files, or zip archive to serve." type:"path"`

	ListenAddr            string           `help:"HTTP listen address." default:"127.0.0.1:8000"`
	Patches               []string         `help:"Patch files to apply (.json / .ips / .jmp)." type:"existingfile"`
	PatchDir              string           `help:"Directory scanned for patch files at startup." type:"existingdir" optional:""`
	ApplyMediaPatch       bool             `help:"Force the media-check bypass patch even for zero-origin images."`
	DebugServerListenAddr string           `help:"Enables debug server (with pprof) if provided."`
	ReadTimeout           time.Duration    `help:"Timeout for reading requests. Connection will be closed on expiration." default:"10m"`
	WriteTimeout          time.Duration    `help:"Timeout for outgoing data. Connection will be closed on expiration." default:"10m"`
	MaxClients            int              `help:"Limit amount of connected clients. Negative or zero means no limit."`
	ClientWhitelist       *iprange.IPRange `help:"Optional client IP whitelist. Formats: single IPv4/v6 ('192.168.0.2'), IPv4/v6 CIDR ('192.168.0.1/24'), IPv4 + subnet mask ('192.168.0.1/255.255.255.0), IPv4/IPv6 range ('192.168.0.1-192.168.0.255')."`
	BufferSize            int              `help:"Size of buffer for data transfer." type:"binsize" default:"1MiB"`

	logFlags
}

func (c *serveCmd) Run() error {
	c.setupLogger()

	if isroot.IsRoot() {
		slog.Warn("Running as root is not recommended")
	}

	cache := facade.NewCache(facade.Options{
		Patches:         loadPatches(c.Patches, c.PatchDir),
		ForceMediaPatch: c.ApplyMediaPatch,
		Logger:          slog.Default(),
	})
	defer cache.Close()

	s := &server.Server{
		Handler: &server.Handler{
			Cache:      cache,
			Path:       c.DVDPath,
			BufferPool: bufferpool.NewBufferPool(c.BufferSize),
		},
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error { return c.debugServer(ctx) })
	eg.Go(func() error { return c.server(ctx, s) })

	if err := eg.Wait(); err != nil && !isShutdown(err) {
		return err
	}
	return nil
}

func (c *serveCmd) server(ctx context.Context, s *server.Server) error {
	socket, err := net.Listen("tcp", c.ListenAddr)
	if err != nil {
		return fmt.Errorf("listen failed: %w", err)
	}

	slog.Info("Listening...", "addr", logutil.ListenAddressValue(socket.Addr()))

	if c.MaxClients > 0 {
		socket = netutil.LimitListener(socket, c.MaxClients)
	}
	if c.ClientWhitelist != nil {
		socket = iprange.FilterListener(socket, c.ClientWhitelist, false)
	}

	go func() {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	return s.Serve(socket)
}

func (c *serveCmd) debugServer(ctx context.Context) error {
	if c.DebugServerListenAddr == "" {
		return nil
	}

	socket, err := net.Listen("tcp", c.DebugServerListenAddr)
	if err != nil {
		return fmt.Errorf("debug server listen failed: %w", err)
	}

	slog.Info("Debug server listening...", "addr", logutil.ListenAddressValue(socket.Addr()))

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	return http.Serve(socket, nil)
}

func isShutdown(err error) bool {
	return err == nil || errors.Is(err, net.ErrClosed) || errors.Is(err, context.Canceled)
}

// loadPatches parses every patch file named on the command line plus
// every recognized file in the patch directory. Unparseable files are
// dropped with a log; the rest are served.
func loadPatches(files []string, dir string) []patch.Patch {
	paths := append([]string(nil), files...)

	if dir != "" {
		entries, err := os.ReadDir(dir)
		if err != nil {
			slog.Warn("Patch directory unreadable", "dir", dir, logutil.ErrorAttr(err))
		}
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			switch strings.ToLower(filepath.Ext(e.Name())) {
			case ".json", ".ips", ".jmp":
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
	}

	var patches []patch.Patch
	for _, p := range paths {
		parsed, err := patch.ParseFile(p)
		switch {
		case err != nil:
			slog.Warn("Unable to load patch", "patch", p, logutil.ErrorAttr(err))
		case parsed == nil:
			slog.Warn("Not a recognized patch format", "patch", p)
		default:
			slog.Info("Loaded patch", "patch", parsed.Name, "title_id", parsed.TitleID)
			patches = append(patches, *parsed)
		}
	}
	return patches
}
