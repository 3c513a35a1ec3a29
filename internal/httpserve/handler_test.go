package httpserve

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wajproject/waj/internal/codec"
	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/waj"
)

func buildArchive(t *testing.T, files map[string]string) *container.Container {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		full := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}

	creator := waj.NewFsCreator(waj.CreatorConfig{
		Namer:       waj.StripPrefixNamer{Prefix: dir},
		Compression: codec.TagZstd,
		ConcatMode:  container.OneFile,
	})
	require.NoError(t, creator.AddFromPath(dir))

	out := filepath.Join(t.TempDir(), "site.waj")
	require.NoError(t, creator.Finalize(out))

	c, err := container.Open(out)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestHandlerServesContent(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"index.html": "<html>home</html>",
		"css/app.css": "body{}",
	})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "text/html", rec.Header().Get("Content-Type"))
	require.Equal(t, "<html>home</html>", rec.Body.String())
	require.NotEmpty(t, rec.Header().Get("ETag"))
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))
}

func TestHandlerHeadOmitsBody(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "<html>home</html>"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodHead, "/index.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, rec.Body.String())
	require.Equal(t, "17", rec.Header().Get("Content-Length"))
}

func TestHandlerRootRedirect(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "home"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusFound, rec.Code)
	require.Equal(t, "/index.html", rec.Header().Get("Location"))
}

func TestHandlerNotFoundFallback(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"index.html": "home",
		"404.html":   "not found here",
	})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/nope.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Equal(t, "not found here", rec.Body.String())
}

func TestHandlerNotFoundNoFallback(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "home"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/nope.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, rec.Body.String())
}

func TestHandlerETagRevalidation(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "home"})
	h := NewHandler(SingleRouter{Archive: archive})

	req1 := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, req1)
	etag := rec1.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req2 := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req2.Header.Set("If-None-Match", etag)
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusNotModified, rec2.Code)
	require.Empty(t, rec2.Body.String())
}

func TestHandlerByteRange(t *testing.T) {
	archive := buildArchive(t, map[string]string{"file.txt": "0123456789"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.Header.Set("Range", "bytes=2-4")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusPartialContent, rec.Code)
	require.Equal(t, "234", rec.Body.String())
	require.Equal(t, "bytes 2-4/10", rec.Header().Get("Content-Range"))
	require.Equal(t, "3", rec.Header().Get("Content-Length"))
}

func TestHandlerByteRangeUnsatisfiable(t *testing.T) {
	archive := buildArchive(t, map[string]string{"file.txt": "0123456789"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.Header.Set("Range", "bytes=500-600")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
	require.Equal(t, "bytes */10", rec.Header().Get("Content-Range"))
}

func TestHandlerMultipartRangeRejected(t *testing.T) {
	archive := buildArchive(t, map[string]string{"file.txt": "0123456789"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/file.txt", nil)
	req.Header.Set("Range", "bytes=0-1,2-3")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusRequestedRangeNotSatisfiable, rec.Code)
}

func TestHandlerRejectsUnsupportedMethod(t *testing.T) {
	archive := buildArchive(t, map[string]string{"index.html": "home"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodPost, "/index.html", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHandlerBadRouterYieldsBadRequest(t *testing.T) {
	h := NewHandler(HostRouter{ByHost: map[string]*container.Container{}})

	req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
	req.Host = "unknown.example.com"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerTrailingSlashResolvesIndex(t *testing.T) {
	archive := buildArchive(t, map[string]string{"blog/index.html": "blog home"})
	h := NewHandler(SingleRouter{Archive: archive})

	req := httptest.NewRequest(http.MethodGet, "/blog/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "blog home", rec.Body.String())
}
