// Package server exposes a facade.Cache over HTTP: GET/HEAD with byte
// range support, streaming synthesized XISO bytes to the emulator.
package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

// Server wraps net/http with the module's connection-scoped context
// plumbing. Listener construction (limiting, filtering) is the caller's
// concern; Serve just runs the accept loop.
type Server struct {
	Handler      http.Handler
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	srv *http.Server
}

func (s *Server) Serve(ln net.Listener) error {
	s.srv = &http.Server{
		Handler:      s.Handler,
		ReadTimeout:  s.ReadTimeout,
		WriteTimeout: s.WriteTimeout,
		ConnContext: func(ctx context.Context, c net.Conn) context.Context {
			return ContextWithRemoteAddr(ctx, c.RemoteAddr())
		},
	}

	if err := s.srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight responses and stops the accept loop.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown(ctx)
}
