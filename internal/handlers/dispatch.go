package handlers

import (
	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Handler is a method-specific handler: request + effective location in,
// response (or CGI directive, carried on the response) out.
type Handler func(req *httpparser.Request, loc *config.EffectiveLocation) *response.Response

// Table maps a request method to its handler.
var Table = map[string]Handler{
	"GET":    Get,
	"HEAD":   Head,
	"POST":   Post,
	"PUT":    Put,
	"DELETE": Delete,
}
