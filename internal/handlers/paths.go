// Package handlers implements the request-method specific semantics against
// a resolved effective location: GET, HEAD, POST, PUT, DELETE.
package handlers

import (
	"path/filepath"
	"strings"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/response"
)

// unsafePath reports whether path contains a traversal/structure-disclosure
// hazard: "..", "//", a backslash, or a null byte. These always map to
// 404, never 403, to avoid revealing filesystem structure.
func unsafePath(path string) bool {
	return strings.Contains(path, "..") ||
		strings.Contains(path, "//") ||
		strings.Contains(path, "\\") ||
		strings.ContainsRune(path, 0)
}

// resolveFSPath computes the filesystem path for a request path already
// validated by unsafePath: the location root joined with the request path.
func resolveFSPath(loc *config.EffectiveLocation, reqPath string) string {
	return filepath.Join(loc.Root, filepath.FromSlash(reqPath))
}

func notFound() *response.Response {
	return response.New(404).WithHeader("Content-Type", "text/html").WithBody([]byte("<h1>404 Not Found</h1>"))
}

func forbidden() *response.Response {
	return response.New(403).WithHeader("Content-Type", "text/html").WithBody([]byte("<h1>403 Forbidden</h1>"))
}

func internalError() *response.Response {
	return response.New(500).WithHeader("Content-Type", "text/html").WithBody([]byte("<h1>500 Internal Server Error</h1>"))
}
