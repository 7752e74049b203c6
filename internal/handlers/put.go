package handlers

import (
	"os"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Put writes the request body to the resolved path: 201 if it did
// not exist before, 200 if it did, Content-Length: 0 either way.
func Put(req *httpparser.Request, loc *config.EffectiveLocation) *response.Response {
	reqPath := req.Path()
	if unsafePath(reqPath) {
		return notFound()
	}
	fsPath := resolveFSPath(loc, reqPath)

	status := 201
	if _, err := os.Stat(fsPath); err == nil {
		status = 200
	}

	if err := os.WriteFile(fsPath, req.Body, 0o644); err != nil {
		if os.IsPermission(err) {
			return forbidden()
		}
		return internalError()
	}

	r := response.New(status)
	r.WithHeader("Content-Length", "0")
	return r
}
