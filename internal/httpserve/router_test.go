package httpserve

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/wajproject/waj/internal/container"
)

func TestSingleRouterResolvesEveryRequest(t *testing.T) {
	archive := &container.Container{}
	r := SingleRouter{Archive: archive}

	req := httptest.NewRequest(http.MethodGet, "/a/b/c.html", nil)
	got, inPath, ok := r.Resolve(req)
	require.True(t, ok)
	require.Same(t, archive, got)
	require.Equal(t, "/a/b/c.html", inPath)
}

func TestHostRouter(t *testing.T) {
	siteA := &container.Container{}
	siteB := &container.Container{}
	r := HostRouter{ByHost: map[string]*container.Container{
		"a.example.com": siteA,
		"b.example.com": siteB,
	}}

	t.Run("matches host, strips port", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		req.Host = "a.example.com:8080"
		got, inPath, ok := r.Resolve(req)
		require.True(t, ok)
		require.Same(t, siteA, got)
		require.Equal(t, "/index.html", inPath)
	})

	t.Run("unknown host", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		req.Host = "unknown.example.com"
		_, _, ok := r.Resolve(req)
		require.False(t, ok)
	})

	t.Run("empty host", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/index.html", nil)
		req.Host = ""
		_, _, ok := r.Resolve(req)
		require.False(t, ok)
	})
}

func TestSubPathRouter(t *testing.T) {
	siteA := &container.Container{}
	r := SubPathRouter{ByFirstSegment: map[string]*container.Container{
		"siteA": siteA,
	}}

	t.Run("known segment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/siteA/css/app.css", nil)
		got, inPath, ok := r.Resolve(req)
		require.True(t, ok)
		require.Same(t, siteA, got)
		require.Equal(t, "/css/app.css", inPath)
	})

	t.Run("root of known segment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/siteA", nil)
		got, inPath, ok := r.Resolve(req)
		require.True(t, ok)
		require.Same(t, siteA, got)
		require.Equal(t, "/", inPath)
	})

	t.Run("unknown segment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/siteB/index.html", nil)
		_, _, ok := r.Resolve(req)
		require.False(t, ok)
	})
}
