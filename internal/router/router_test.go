package router

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
)

func newReq(raw string) *httpparser.Request {
	p := httpparser.New(1 << 20)
	p.Feed([]byte(raw))
	return &p.Request
}

func TestRouteStaticGet(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))

	srv := &config.ServerConfig{Root: dir, IndexFiles: []string{"index.html"}}
	resp := Route(srv, newReq("GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "<h1>hi</h1>", string(resp.Body))
}

func TestRouteMethodNotAllowed(t *testing.T) {
	srv := &config.ServerConfig{
		Root: t.TempDir(),
		Locations: []*config.LocationConfig{
			{PathPrefix: "/upload", AllowedMethods: map[string]bool{"GET": true}},
		},
	}
	resp := Route(srv, newReq("DELETE /upload/x HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, 405, resp.StatusCode)
}

func TestRoutePayloadTooLarge(t *testing.T) {
	srv := &config.ServerConfig{
		Root: t.TempDir(),
		Locations: []*config.LocationConfig{
			{PathPrefix: "/p", AllowedMethods: map[string]bool{"POST": true}, ClientMaxBodySize: config.Limit(10)},
		},
	}
	req := newReq("POST /p HTTP/1.1\r\nHost: x\r\nContent-Type: application/x-www-form-urlencoded\r\n\r\n")
	req.Body = make([]byte, 100)
	resp := Route(srv, req)
	require.Equal(t, 413, resp.StatusCode)
}

func TestRouteRedirect(t *testing.T) {
	srv := &config.ServerConfig{
		Root: t.TempDir(),
		Locations: []*config.LocationConfig{
			{PathPrefix: "/old", Redirect: &config.Redirect{URL: "/new", Code: 301}},
		},
	}
	resp := Route(srv, newReq("GET /old HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, 301, resp.StatusCode)
	require.Equal(t, "/new", resp.Headers.Get("Location"))
}
