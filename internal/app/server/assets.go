package server

import (
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// assetsHandler serves static files from dir. Directories and missing files
// are 404s; there is no index fallback since pages are rendered server-side.
type assetsHandler struct {
	dir string
}

func (h assetsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.NotFound(w, r)
		return
	}

	name := filepath.Clean("/" + strings.TrimPrefix(r.URL.Path, "/"))
	path := filepath.Join(h.dir, filepath.FromSlash(name))
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		http.NotFound(w, r)
		return
	}

	w.Header().Set("Cache-Control", "public, max-age=3600")
	http.ServeFile(w, r, path)
}
