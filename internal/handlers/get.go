package handlers

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/mimetypes"
	"github.com/nginx-go/httpd/internal/response"
)

// Get serves static files and directories, delegates CGI targets, and
// honors configured redirects.
func Get(req *httpparser.Request, loc *config.EffectiveLocation) *response.Response {
	return get(req, loc, true)
}

// Head implements HEAD: identical to GET but with an empty body.
func Head(req *httpparser.Request, loc *config.EffectiveLocation) *response.Response {
	return get(req, loc, false)
}

func get(req *httpparser.Request, loc *config.EffectiveLocation, withBody bool) *response.Response {
	if loc.Redirect != nil {
		return redirectResponse(loc.Redirect)
	}

	reqPath := req.Path()
	if unsafePath(reqPath) {
		return notFound()
	}
	if d := cgiDirective(loc, reqPath); d != nil {
		r := response.New(200)
		r.CGIDirective = d
		return r
	}

	fsPath := resolveFSPath(loc, reqPath)
	info, err := os.Stat(fsPath)
	if err != nil {
		if os.IsNotExist(err) {
			return notFound()
		}
		return forbidden()
	}

	if info.IsDir() {
		return serveDirectory(req.Path(), loc, fsPath, withBody)
	}
	return serveFile(fsPath, info.Size(), withBody)
}

func serveDirectory(urlPath string, loc *config.EffectiveLocation, dirPath string, withBody bool) *response.Response {
	for _, idx := range loc.IndexFiles {
		candidate := filepath.Join(dirPath, idx)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return serveFile(candidate, info.Size(), withBody)
		}
	}
	if !loc.Autoindex {
		return notFound()
	}
	entries, err := os.ReadDir(dirPath)
	if err != nil {
		return forbidden()
	}
	body := renderAutoindex(urlPath, entries)
	r := response.New(200).WithHeader("Content-Type", "text/html")
	if withBody {
		r.WithBody(body)
	} else {
		r.WithHeader("Content-Length", strconv.Itoa(len(body)))
	}
	return r
}

func serveFile(fsPath string, size int64, withBody bool) *response.Response {
	r := response.New(200).WithHeader("Content-Type", mimetypes.Lookup(fsPath))
	if !withBody {
		r.WithHeader("Content-Length", strconv.FormatInt(size, 10))
		return r
	}
	data, err := os.ReadFile(fsPath)
	if err != nil {
		if os.IsPermission(err) {
			return forbidden()
		}
		if size > 0 {
			return internalError()
		}
		return forbidden()
	}
	return r.WithBody(data)
}

func redirectResponse(redir *config.Redirect) *response.Response {
	r := response.New(redir.Code).WithHeader("Location", redir.URL)
	r.WithBody(nil)
	return r
}

