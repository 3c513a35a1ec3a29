package httpserve

import (
	"net/http"
	"strings"

	"github.com/wajproject/waj/internal/container"
)

// Router picks which archive serves a request and the in-archive path to
// look up within it (spec.md §4.5 "Routing").
type Router interface {
	Resolve(r *http.Request) (archive *container.Container, inPath string, ok bool)
}

// SingleRouter serves every request from one archive; the in-archive path
// is the request URL itself.
type SingleRouter struct {
	Archive *container.Container
}

func (s SingleRouter) Resolve(r *http.Request) (*container.Container, string, bool) {
	return s.Archive, r.URL.Path, true
}

// HostRouter dispatches on the Host header. An absent or unrecognized host
// resolves to ok=false, which the server turns into a 400.
type HostRouter struct {
	ByHost map[string]*container.Container
}

func (h HostRouter) Resolve(r *http.Request) (*container.Container, string, bool) {
	host := r.Host
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}
	if host == "" {
		return nil, "", false
	}
	a, ok := h.ByHost[host]
	if !ok {
		return nil, "", false
	}
	return a, r.URL.Path, true
}

// SubPathRouter splits the URL into /<first>/<rest>, using <first> as the
// archive key and <rest> as the in-archive path.
type SubPathRouter struct {
	ByFirstSegment map[string]*container.Container
}

func (s SubPathRouter) Resolve(r *http.Request) (*container.Container, string, bool) {
	p := strings.TrimPrefix(r.URL.Path, "/")
	first, rest, _ := strings.Cut(p, "/")
	a, ok := s.ByFirstSegment[first]
	if !ok {
		return nil, "", false
	}
	return a, "/" + rest, true
}
