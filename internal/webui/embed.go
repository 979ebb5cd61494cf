// Package webui embeds and serves the browser pages: the live pipeline
// viewer and the login form.
package webui

import (
	"embed"
	"io/fs"
	"net/http"
	"strings"
)

//go:embed all:dist
var distFS embed.FS

// Handler serves the viewer. Paths naming an embedded file get that file;
// everything else gets index.html so the viewer can route client side.
func Handler() http.Handler {
	return newPageHandler(dist(), "index.html")
}

// LoginHandler serves the login form.
func LoginHandler() http.Handler {
	return newPageHandler(dist(), "login.html")
}

func dist() fs.FS {
	sub, err := fs.Sub(distFS, "dist")
	if err != nil {
		// Unreachable with a valid embed directive.
		panic(err)
	}
	return sub
}

// newPageHandler serves files from root, falling back to page. The page is
// written directly; routing it through http.FileServer redirects
// "/index.html" to "./".
func newPageHandler(root fs.FS, page string) http.Handler {
	fileServer := http.FileServer(http.FS(root))
	body, _ := fs.ReadFile(root, page)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimPrefix(r.URL.Path, "/")
		if name != "" && !strings.HasSuffix(name, ".html") {
			if f, err := root.Open(name); err == nil {
				_ = f.Close()
				fileServer.ServeHTTP(w, r)
				return
			}
		}

		if body == nil {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	})
}
