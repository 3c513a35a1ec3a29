package waj

import (
	"bytes"
	"path/filepath"
	"strings"
)

// extensionMimeTypes is the extension-based MIME guess table consulted
// before the content-sniffing fallback. This exact two-step algorithm
// (extension table, then a 100-byte "contains html" sniff) is mandated
// by the archive format's creation semantics, not a place to substitute
// a general-purpose sniffing library.
var extensionMimeTypes = map[string]string{
	".html": "text/html",
	".htm":  "text/html",
	".css":  "text/css",
	".js":   "application/javascript",
	".mjs":  "application/javascript",
	".json": "application/json",
	".svg":  "image/svg+xml",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".gif":  "image/gif",
	".webp": "image/webp",
	".ico":  "image/x-icon",
	".woff": "font/woff",
	".woff2": "font/woff2",
	".ttf":  "font/ttf",
	".otf":  "font/otf",
	".txt":  "text/plain",
	".xml":  "application/xml",
	".wasm": "application/wasm",
	".pdf":  "application/pdf",
	".mp4":  "video/mp4",
	".webm": "video/webm",
	".mp3":  "audio/mpeg",
	".map":  "application/json",
}

// sniffWindow is the byte window examined for the "contains html" sniff
// per spec.md §4.4 step 2.
const sniffWindow = 100

// DetectMIME implements the creation pipeline's MIME detection: an
// extension-based guess first; if none, peek up to sniffWindow bytes and
// fall back to text/html if "html" appears, else
// application/octet-stream.
func DetectMIME(path string, peek []byte) string {
	ext := strings.ToLower(filepath.Ext(path))
	if mt, ok := extensionMimeTypes[ext]; ok {
		return mt
	}
	window := peek
	if len(window) > sniffWindow {
		window = window[:sniffWindow]
	}
	if bytes.Contains(window, []byte("html")) {
		return "text/html"
	}
	return "application/octet-stream"
}
