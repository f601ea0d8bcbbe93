// Package web embeds the chat page (dist/) and provides an HTTP handler
// that serves it as a single-page application (SPA) under a path prefix.
package web

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// SPAHandler returns an http.Handler that serves the embedded chat page
// mounted at prefix. It serves static files from dist/, and falls back to
// index.html for any path that doesn't match a file.
func SPAHandler(prefix string) http.Handler {
	subFS, err := fs.Sub(distFS, "dist")
	if err != nil {
		panic("web: failed to create sub filesystem: " + err.Error())
	}

	fileServer := http.FileServer(http.FS(subFS))
	prefix = strings.TrimSuffix(prefix, "/")

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := strings.TrimPrefix(strings.TrimPrefix(r.URL.Path, prefix), "/")
		if path == "" {
			path = "index.html"
		}

		r2 := r.Clone(r.Context())
		r2.URL.Path = "/" + path

		// Check if file exists in the embedded FS.
		if f, err := subFS.Open(path); err == nil {
			if closeErr := f.Close(); closeErr != nil {
				slog.Debug("web: failed to close embedded file", "path", path, "error", closeErr)
			}
			if path == "index.html" {
				r2.URL.Path = "/"
			}
			fileServer.ServeHTTP(w, r2)
			return
		}

		// Not found: serve index.html for client-side routing.
		r2.URL.Path = "/"
		fileServer.ServeHTTP(w, r2)
	})
}
