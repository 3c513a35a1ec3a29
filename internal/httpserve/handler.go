// Package httpserve implements the serving core: a worker-pool HTTP
// listener, request routing, binary-search entry resolution, and response
// construction (content, redirect, range, ETag, 404 fallback, missing-pack
// degradation).
package httpserve

import (
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"k8s.io/klog/v2"

	"github.com/wajproject/waj/internal/container"
	"github.com/wajproject/waj/internal/entrystore"
	"github.com/wajproject/waj/internal/waj"
	"github.com/wajproject/waj/internal/wajerr"
)

// notFoundPath is the well-known fallback entry looked up when no variant
// of the requested URL resolves (spec.md §4.5 step 6).
const notFoundPath = "404.html"

const missingPackSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="200" height="80">` +
	`<text x="10" y="40" font-family="sans-serif" font-size="14">content pack unavailable</text></svg>`

// Handler adapts a Router into an http.Handler implementing the per-request
// pipeline of spec.md §4.5.
type Handler struct {
	Router    Router
	requestID atomic.Uint64
}

func NewHandler(router Router) *Handler {
	return &Handler{Router: router}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := h.requestID.Add(1)
	w.Header().Set("X-Request-Id", strconv.FormatUint(id, 10))

	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		klog.Warningf("httpserve[%d]: rejecting method %s", id, r.Method)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	archive, inPath, ok := h.Router.Resolve(r)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	dirPack, err := archive.DirectoryPack()
	if err != nil {
		klog.Errorf("httpserve[%d]: opening directory pack: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	index, ok := dirPack.GetIndexByName(waj.IndexName)
	if !ok {
		klog.Errorf("httpserve[%d]: archive has no %q index", id, waj.IndexName)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	etagMatch := ifNoneMatchMatches(r.Header.Get("If-None-Match"), dirPack.UUID.String())

	for _, candidate := range urlVariants(inPath) {
		idx, found := index.Find(entrystore.PathComparator(dirPack.Entries, []byte(candidate)))
		if !found {
			continue
		}
		entry, err := dirPack.Entries.Entry(idx)
		if err != nil {
			klog.Errorf("httpserve[%d]: materializing entry: %v", id, err)
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		h.respondEntry(w, r, id, archive, dirPack.UUID.String(), entry, etagMatch)
		return
	}

	// 404 fallback.
	idx, found := index.Find(entrystore.PathComparator(dirPack.Entries, []byte(notFoundPath)))
	if !found {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	entry, err := dirPack.Entries.Entry(idx)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.respondEntryWithStatus(w, r, id, archive, dirPack.UUID.String(), entry, etagMatch, http.StatusNotFound)
}

// urlVariants implements spec.md §4.5 step 4.
func urlVariants(rawPath string) []string {
	raw := strings.TrimPrefix(rawPath, "/")
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		decoded = raw
	}

	stripped := decoded
	if i := strings.IndexByte(stripped, '?'); i >= 0 {
		stripped = stripped[:i]
	}

	seen := map[string]bool{}
	var out []string
	add := func(p string) {
		if !seen[p] {
			seen[p] = true
			out = append(out, p)
		}
	}
	add(decoded)
	add(stripped)
	if strings.HasSuffix(decoded, "/") {
		add(decoded + "index.html")
	}
	if strings.HasSuffix(stripped, "/") {
		add(stripped + "index.html")
	}
	return out
}

func ifNoneMatchMatches(header, archiveUUID string) bool {
	if header == "" {
		return false
	}
	want := fmt.Sprintf(`W/"%s"`, archiveUUID)
	for _, tok := range strings.Split(header, ",") {
		if strings.TrimSpace(tok) == want {
			return true
		}
	}
	return false
}

func (h *Handler) respondEntry(w http.ResponseWriter, r *http.Request, id uint64, archive *container.Container, archiveUUID string, entry entrystore.Entry, etagMatch bool) {
	h.respondEntryWithStatus(w, r, id, archive, archiveUUID, entry, etagMatch, http.StatusOK)
}

func (h *Handler) respondEntryWithStatus(w http.ResponseWriter, r *http.Request, id uint64, archive *container.Container, archiveUUID string, entry entrystore.Entry, etagMatch bool, okStatus int) {
	if entry.Variant == entrystore.VariantRedirect {
		target := "/" + (&url.URL{Path: string(entry.Target)}).EscapedPath()
		w.Header().Set("Location", target)
		w.WriteHeader(http.StatusFound)
		return
	}

	pack, err := archive.ContentPack(entry.Content.PackID)
	if err != nil {
		if mp, ok := wajerr.AsMissingPack(err); ok {
			respondMissingPack(w, string(entry.MimeType), mp)
			return
		}
		klog.Errorf("httpserve[%d]: opening content pack: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	size, err := pack.Size(entry.Content.ContentID)
	if err != nil {
		klog.Errorf("httpserve[%d]: content size: %v", id, err)
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	etag := fmt.Sprintf(`W/"%s"`, archiveUUID)
	header := w.Header()
	header.Set("Content-Type", string(entry.MimeType))
	header.Set("Cache-Control", "max-age=86400, must-revalidate")
	header.Set("ETag", etag)
	header.Set("Accept-Ranges", "bytes")

	if etagMatch {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	if rangeHeader := r.Header.Get("Range"); rangeHeader != "" {
		br, err := parseRange(rangeHeader, size)
		switch {
		case err == wajerr.ErrRangeUnsatisfiable || err == wajerr.ErrRangeMultipart:
			header.Set("Content-Range", fmt.Sprintf("bytes */%d", size))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		case err != nil:
			// unreachable: parseRange only returns the two sentinels above.
			w.WriteHeader(http.StatusInternalServerError)
			return
		case br != nil:
			data, err := pack.GetBytes(entry.Content.ContentID)
			if err != nil {
				klog.Errorf("httpserve[%d]: reading content: %v", id, err)
				w.WriteHeader(http.StatusInternalServerError)
				return
			}
			header.Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", br.start, br.end, size))
			header.Set("Content-Length", strconv.FormatInt(br.end-br.start+1, 10))
			w.WriteHeader(http.StatusPartialContent)
			if r.Method != http.MethodHead {
				w.Write(data[br.start : br.end+1])
			}
			return
		}
		// br == nil, err == nil: malformed syntax, fall through to full 200.
	}

	header.Set("Content-Length", strconv.FormatInt(size, 10))
	w.WriteHeader(okStatus)
	if r.Method == http.MethodHead {
		return
	}
	data, err := pack.GetBytes(entry.Content.ContentID)
	if err != nil {
		klog.Errorf("httpserve[%d]: reading content: %v", id, err)
		return
	}
	w.Write(data)
}

// respondMissingPack implements spec.md §4.5's degraded-placeholder
// response when a declared content pack is absent from disk.
func respondMissingPack(w http.ResponseWriter, mime string, mp wajerr.MissingPack) {
	header := w.Header()
	header.Set("Cache-Control", "no-cache")
	switch mime {
	case "text/html", "text/css", "application/javascript":
		header.Set("Content-Type", "text/html")
		body := fmt.Sprintf("<h1>Missing contentPack %s</h1><p>locator: %s</p>", mp.UUID, mp.Locator)
		header.Set("Content-Length", strconv.Itoa(len(body)))
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte(body))
	default:
		header.Set("Content-Type", "image/svg+xml")
		header.Set("Content-Length", strconv.Itoa(len(missingPackSVG)))
		// 253 is non-standard; net/http's WriteHeader accepts any code.
		w.WriteHeader(253)
		w.Write([]byte(missingPackSVG))
	}
}
