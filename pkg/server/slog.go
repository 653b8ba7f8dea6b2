package server

import (
	"context"
	"log/slog"
	"net"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/logutil"
)

type remoteAddrKey struct{}

// ContextWithRemoteAddr stamps the peer address on a connection's
// context; the HTTP server installs it via ConnContext.
func ContextWithRemoteAddr(ctx context.Context, addr net.Addr) context.Context {
	return context.WithValue(ctx, remoteAddrKey{}, addr)
}

func RemoteAddrFromContext(ctx context.Context) (net.Addr, bool) {
	addr, ok := ctx.Value(remoteAddrKey{}).(net.Addr)
	return addr, ok
}

// SlogContextHandler wraps slog.Handler to inject the peer address
// carried by a request context.
type SlogContextHandler struct {
	slog.Handler
}

func (h *SlogContextHandler) Handle(ctx context.Context, rec slog.Record) error {
	if addr, ok := RemoteAddrFromContext(ctx); ok {
		rec.AddAttrs(logutil.StringerAttr("remote", addr))
	}

	return h.Handler.Handle(ctx, rec)
}

func (h *SlogContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &SlogContextHandler{Handler: h.Handler.WithAttrs(attrs)}
}

func (h *SlogContextHandler) WithGroup(name string) slog.Handler {
	return &SlogContextHandler{Handler: h.Handler.WithGroup(name)}
}
