package server_test

import (
	"encoding/binary"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wilkovatch/http-xiso-wrapper/internal/bufferpool"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/facade"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/server"
	"github.com/wilkovatch/http-xiso-wrapper/pkg/xiso"
)

func newTestServer(t *testing.T) (*httptest.Server, *facade.Pipeline) {
	t.Helper()

	root := t.TempDir()

	xbe := make([]byte, 1024)
	copy(xbe, "XBEH")
	binary.LittleEndian.PutUint16(xbe[280:], 300)
	require.NoError(t, os.WriteFile(filepath.Join(root, "default.xbe"), xbe, 0o644))

	cache := facade.NewCache(facade.Options{})
	t.Cleanup(func() { _ = cache.Close() })

	pl, err := cache.Open(root)
	require.NoError(t, err)

	srv := httptest.NewServer(&server.Handler{
		Cache:      cache,
		Path:       root,
		BufferPool: bufferpool.NewBufferPool(64 * 1024),
	})
	t.Cleanup(srv.Close)

	return srv, pl
}

func get(t *testing.T, url, rangeHdr string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if rangeHdr != "" {
		req.Header.Set("Range", rangeHdr)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func TestFullDownload(t *testing.T) {
	srv, pl := newTestServer(t)
	total := int64(pl.Mat.TotalSize())

	resp := get(t, srv.URL+"/game.iso", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, strconv.FormatInt(total, 10), resp.Header.Get("Content-Length"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.EqualValues(t, total, len(body), "whole stream must be produced down to the final byte")

	want, err := pl.Mat.Read(0, xiso.SizeBytes(total))
	require.NoError(t, err)
	assert.Equal(t, want, body)
}

func TestRangedDownload(t *testing.T) {
	srv, pl := newTestServer(t)
	total := int64(pl.Mat.TotalSize())

	resp := get(t, srv.URL+"/game.iso", "bytes=0-9")
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("bytes 0-9/%d", total), resp.Header.Get("Content-Range"))
	assert.Equal(t, "10", resp.Header.Get("Content-Length"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	want, err := pl.Mat.Read(0, 10)
	require.NoError(t, err)
	assert.Equal(t, want, body)
}

func TestRangeCoversHeaderSector(t *testing.T) {
	srv, _ := newTestServer(t)

	first := 32 * 2048
	resp := get(t, srv.URL+"/game.iso", fmt.Sprintf("bytes=%d-%d", first, first+19))
	require.Equal(t, http.StatusPartialContent, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "MICROSOFT*XBOX*MEDIA", string(body))
}

func TestOpenEndedRange(t *testing.T) {
	srv, pl := newTestServer(t)
	total := int64(pl.Mat.TotalSize())

	resp := get(t, srv.URL+"/game.iso", fmt.Sprintf("bytes=%d-", total-100))
	assert.Equal(t, http.StatusPartialContent, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("bytes %d-%d/%d", total-100, total-1, total), resp.Header.Get("Content-Range"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Len(t, body, 100)
}

func TestRangePastEnd(t *testing.T) {
	srv, pl := newTestServer(t)
	total := int64(pl.Mat.TotalSize())

	resp := get(t, srv.URL+"/game.iso", fmt.Sprintf("bytes=%d-", total))
	assert.Equal(t, http.StatusRequestedRangeNotSatisfiable, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("bytes */%d", total), resp.Header.Get("Content-Range"))
}

func TestMalformedRanges(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, hdr := range []string{"bytes=abc-def", "bytes=-5", "octets=0-9", "bytes=9-3"} {
		resp := get(t, srv.URL+"/game.iso", hdr)
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "header %q", hdr)
	}
}

func TestHead(t *testing.T) {
	srv, pl := newTestServer(t)
	total := int64(pl.Mat.TotalSize())

	resp, err := http.Head(srv.URL + "/game.iso")
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, strconv.FormatInt(total, 10), resp.Header.Get("Content-Length"))
	assert.Equal(t, "bytes", resp.Header.Get("Accept-Ranges"))

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Empty(t, body)
}

func TestMethodNotAllowed(t *testing.T) {
	srv, _ := newTestServer(t)

	resp, err := http.Post(srv.URL+"/game.iso", "text/plain", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestEmptyPathRejected(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := get(t, srv.URL+"/", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestMissingInput(t *testing.T) {
	cache := facade.NewCache(facade.Options{})
	srv := httptest.NewServer(&server.Handler{
		Cache: cache,
		Path:  filepath.Join(os.TempDir(), "does-not-exist-anywhere.iso"),
	})
	defer srv.Close()

	resp := get(t, srv.URL+"/game.iso", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
