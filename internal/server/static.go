// Package server serves the bundled front-end with single-page-app routing
// semantics.
package server

import (
	"net/http"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

// staticHandler serves files from a directory. Paths that do not match a file
// fall back to index.html so client-side routes resolve; when the index is
// missing too, it responds 404.
type staticHandler struct {
	dir    string
	logger zerolog.Logger
}

// NewStaticHandler creates the static file handler rooted at dir.
func NewStaticHandler(dir string, logger zerolog.Logger) http.Handler {
	return &staticHandler{dir: dir, logger: logger}
}

func (s *staticHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Clean the path to keep requests inside the static root.
	rel := filepath.Clean(r.URL.Path)

	if rel != "/" && rel != "." {
		candidate := filepath.Join(s.dir, rel)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			http.ServeFile(w, r, candidate)
			return
		}
	}

	index := filepath.Join(s.dir, "index.html")
	if _, err := os.Stat(index); err != nil {
		http.Error(w, "index.html not found", http.StatusNotFound)
		return
	}

	http.ServeFile(w, r, index)
}
