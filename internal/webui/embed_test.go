package webui

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
)

func serve(h http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, http.NoBody))
	return rec
}

func TestHandler_ServesViewer(t *testing.T) {
	rec := serve(Handler(), "/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "/relay.js")
}

func TestHandler_FallbackForClientRoutes(t *testing.T) {
	rec := serve(Handler(), "/sessions-view/abc")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Active sessions")
}

func TestHandler_ServesAssets(t *testing.T) {
	rec := serve(Handler(), "/relay.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/css")
}

func TestLoginHandler(t *testing.T) {
	rec := serve(LoginHandler(), "/login")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "/auth/login")
}

func TestPageHandler_MissingPage(t *testing.T) {
	h := newPageHandler(fstest.MapFS{}, "index.html")
	assert.Equal(t, http.StatusNotFound, serve(h, "/").Code)
}

func TestPageHandler_HTMLFilesAlwaysGetThePage(t *testing.T) {
	root := fstest.MapFS{
		"index.html": {Data: []byte("index")},
		"other.html": {Data: []byte("other")},
	}
	rec := serve(newPageHandler(root, "index.html"), "/other.html")
	assert.Equal(t, "index", rec.Body.String())
}
