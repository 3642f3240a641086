// Package site serves the embedded operator landing page.
package site

import (
	"context"
	"net/http"
)

// Register attaches the landing page at exactly "/" and its assets under
// /site/. Other unmatched paths keep answering 404.
func Register(_ context.Context, mux *http.ServeMux) {
	if mux == nil {
		panic("mux is nil")
	}

	files := http.FileServer(FS())
	mux.Handle("GET /{$}", files)
	mux.Handle("GET /site/", http.StripPrefix("/site", files))
}
