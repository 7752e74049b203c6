// Package router selects the location for a parsed request, applies the
// per-location pre-checks, and dispatches to the method handler.
package router

import (
	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/handlers"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Route resolves srv's matching location for req.Path(), applies the
// pre-checks (method allow-list, body size, redirect), and either returns a
// direct response or one carrying a CGI directive.
func Route(srv *config.ServerConfig, req *httpparser.Request) *response.Response {
	loc := config.MatchLocation(srv, req.Path())
	eff := config.Resolve(srv, loc)

	if eff.Redirect != nil {
		r := response.New(eff.Redirect.Code).WithHeader("Location", eff.Redirect.URL)
		r.WithBody(nil)
		return r
	}

	if !eff.AllowedMethods[req.Method] {
		return methodNotAllowed(eff)
	}

	// A zero limit means "no limit at this scope" (client_max_body_size 0 in
	// the grammar), distinct from an unset location inheriting its server's
	// value via config.MaxBodySize upstream of Resolve.
	if eff.ClientMaxBodySize > 0 && int64(len(req.Body)) > eff.ClientMaxBodySize {
		return payloadTooLarge()
	}

	handler, ok := handlers.Table[req.Method]
	if !ok {
		return methodNotAllowed(eff)
	}
	return handler(req, eff)
}

func methodNotAllowed(eff *config.EffectiveLocation) *response.Response {
	allow := ""
	for _, m := range []string{"GET", "HEAD", "POST", "PUT", "DELETE"} {
		if eff.AllowedMethods[m] {
			if allow != "" {
				allow += ", "
			}
			allow += m
		}
	}
	r := response.New(405).WithHeader("Content-Type", "text/html")
	if allow != "" {
		r.WithHeader("Allow", allow)
	}
	return r.WithBody([]byte("<h1>405 Method Not Allowed</h1>"))
}

func payloadTooLarge() *response.Response {
	return response.New(413).WithHeader("Content-Type", "text/html").WithBody([]byte("<h1>413 Payload Too Large</h1>"))
}
