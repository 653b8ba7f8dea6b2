package server

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"regexp"
	"strconv"
	"time"

	"github.com/wilkovatch/http-xiso-wrapper/pkg/facade"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/logutil"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

// Handler serves synthesized XISO bytes for a single input path. The URL
// path segment names the image (the emulator treats the URL as a DVD
// path) but only one input is served per process, so it is validated and
// otherwise ignored.
type Handler struct {
	Cache *facade.Cache
	Path  string

	BufferPool httputil.BufferPool
}

const defaultBufferSize = 1024 * 1024

var byteRangeRe = regexp.MustCompile(`^bytes=(\d+)-(\d*)$`)

// parseByteRange extracts FIRST and LAST from "bytes=FIRST-LAST"; LAST
// may be absent (-1). An inverted range is malformed.
func parseByteRange(s string) (first, last int64, err error) {
	m := byteRangeRe.FindStringSubmatch(s)
	if m == nil {
		return 0, 0, fmt.Errorf("invalid byte range %q", s)
	}

	first, err = strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid byte range %q: %w", s, err)
	}

	last = -1
	if m[2] != "" {
		last, err = strconv.ParseInt(m[2], 10, 64)
		if err != nil {
			return 0, 0, fmt.Errorf("invalid byte range %q: %w", s, err)
		}
		if last < first {
			return 0, 0, fmt.Errorf("invalid byte range %q", s)
		}
	}

	return first, last, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	log := slog.Default()
	if addr, ok := RemoteAddrFromContext(r.Context()); ok {
		log = log.With(logutil.StringerAttr("remote", addr))
	}

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if r.URL.Path == "" || r.URL.Path == "/" {
		http.Error(w, "file not found", http.StatusNotFound)
		return
	}

	pl, err := h.Cache.Open(h.Path)
	switch {
	case err == nil:
		// pass
	case errors.Is(err, facade.ErrInputNotFound), errors.Is(err, facade.ErrUnrecognizedFormat):
		log.Warn("Input rejected", "path", h.Path, logutil.ErrorAttr(err))
		http.Error(w, "file not found", http.StatusNotFound)
		return
	default:
		log.Error("Input open failed", "path", h.Path, logutil.ErrorAttr(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	total := int64(pl.Mat.TotalSize())

	var first, last int64
	status := http.StatusOK

	if rangeHdr := r.Header.Get("Range"); rangeHdr != "" {
		first, last, err = parseByteRange(rangeHdr)
		if err != nil {
			log.Warn("Malformed range", "range", rangeHdr)
			http.Error(w, "invalid byte range", http.StatusBadRequest)
			return
		}
		if first >= total {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", total))
			http.Error(w, "requested range not satisfiable", http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if last < 0 || last >= total {
			last = total - 1
		}

		status = http.StatusPartialContent
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", first, last, total))
	} else {
		first, last = 0, total-1
	}

	length := last - first + 1

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	w.Header().Set("Last-Modified", time.Now().UTC().Format(http.TimeFormat))
	w.WriteHeader(status)

	if r.Method == http.MethodHead {
		return
	}

	log.Debug("Serving range", "first", first, "last", last, "total", total)

	if err := h.copyRange(r, w, pl, first, last+1); err != nil {
		// Headers are out; all we can do is drop the connection.
		log.Error("Materialization aborted", logutil.ErrorAttr(err))
	}
}

// copyRange streams [first, end) of the materialized output, driving the
// reader until the final byte or client disconnect. Disconnection is
// cooperative via the request context and never corrupts shared state.
func (h *Handler) copyRange(r *http.Request, w io.Writer, pl *facade.Pipeline, first, end int64) error {
	buf := h.buffer()
	if h.BufferPool != nil {
		defer h.BufferPool.Put(buf)
	}

	src := pl.Mat.RangeReader(xiso.SizeBytes(first), xiso.SizeBytes(end))

	for {
		if err := r.Context().Err(); err != nil {
			return err
		}

		n, err := src.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return werr
			}
		}
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
	}
}

func (h *Handler) buffer() []byte {
	if h.BufferPool != nil {
		return h.BufferPool.Get()
	}
	return make([]byte, defaultBufferSize)
}
