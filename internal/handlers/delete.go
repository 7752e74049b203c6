package handlers

import (
	"os"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Delete removes the target: 404 if missing, 403 if a directory, otherwise
// unlink and 200 with a short plain-text body.
func Delete(req *httpparser.Request, loc *config.EffectiveLocation) *response.Response {
	reqPath := req.Path()
	if unsafePath(reqPath) {
		return notFound()
	}
	fsPath := resolveFSPath(loc, reqPath)

	info, err := os.Stat(fsPath)
	if err != nil {
		return notFound()
	}
	if info.IsDir() {
		return forbidden()
	}
	if err := os.Remove(fsPath); err != nil {
		return internalError()
	}

	r := response.New(200).WithHeader("Content-Type", "text/plain")
	r.WithBody([]byte("deleted\n"))
	r.CloseAfter = true
	return r
}
