package handlers

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
)

func newReq(method, target string) *httpparser.Request {
	p := httpparser.New(1 << 20)
	p.Feed([]byte(method + " " + target + " HTTP/1.1\r\nHost: x\r\n\r\n"))
	return &p.Request
}

func TestGetServesStaticFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<h1>hi</h1>"), 0o644))
	loc := &config.EffectiveLocation{Root: dir, IndexFiles: []string{"index.html"}}

	resp := Get(newReq("GET", "/"), loc)
	require.Equal(t, 200, resp.StatusCode)
	require.Equal(t, "<h1>hi</h1>", string(resp.Body))
	require.Equal(t, "text/html", resp.Headers.Get("Content-Type"))
}

func TestGetDirectoryTraversalIs404(t *testing.T) {
	loc := &config.EffectiveLocation{Root: t.TempDir()}
	resp := Get(newReq("GET", "/../etc/passwd"), loc)
	require.Equal(t, 404, resp.StatusCode)
}

func TestGetMissingFileIs404(t *testing.T) {
	loc := &config.EffectiveLocation{Root: t.TempDir()}
	resp := Get(newReq("GET", "/nope.html"), loc)
	require.Equal(t, 404, resp.StatusCode)
}

func TestHeadHasEmptyBody(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))
	loc := &config.EffectiveLocation{Root: dir}
	resp := Head(newReq("HEAD", "/a.txt"), loc)
	require.Equal(t, 200, resp.StatusCode)
	require.Empty(t, resp.Body)
	require.Equal(t, "5", resp.Headers.Get("Content-Length"))
}

func TestPutCreatesThenUpdates(t *testing.T) {
	dir := t.TempDir()
	loc := &config.EffectiveLocation{Root: dir}

	req := newReq("PUT", "/f.txt")
	req.Body = []byte("v1")
	resp := Put(req, loc)
	require.Equal(t, 201, resp.StatusCode)

	req2 := newReq("PUT", "/f.txt")
	req2.Body = []byte("v2")
	resp2 := Put(req2, loc)
	require.Equal(t, 200, resp2.StatusCode)

	data, err := os.ReadFile(filepath.Join(dir, "f.txt"))
	require.NoError(t, err)
	require.Equal(t, "v2", string(data))
}

func TestDeleteThenGetIs404(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "f.txt"), []byte("x"), 0o644))
	loc := &config.EffectiveLocation{Root: dir}

	del := Delete(newReq("DELETE", "/f.txt"), loc)
	require.Equal(t, 200, del.StatusCode)

	get := Get(newReq("GET", "/f.txt"), loc)
	require.Equal(t, 404, get.StatusCode)
}

func TestDeleteDirectoryIs403(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "sub"), 0o755))
	loc := &config.EffectiveLocation{Root: dir}
	resp := Delete(newReq("DELETE", "/sub"), loc)
	require.Equal(t, 403, resp.StatusCode)
}

func TestPostURLEncodedEcho(t *testing.T) {
	loc := &config.EffectiveLocation{}
	req := newReq("POST", "/echo")
	req.Headers.Add("Content-Type", "application/x-www-form-urlencoded")
	req.Body = []byte("name=a+b&x=1")
	resp := Post(req, loc)
	require.Equal(t, 200, resp.StatusCode)
	require.Contains(t, string(resp.Body), "a b")
}

func TestPostUnsupportedContentTypeIs400(t *testing.T) {
	loc := &config.EffectiveLocation{}
	req := newReq("POST", "/echo")
	req.Headers.Add("Content-Type", "application/octet-stream")
	resp := Post(req, loc)
	require.Equal(t, 400, resp.StatusCode)
}
