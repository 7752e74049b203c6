package handlers

import (
	"path/filepath"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/response"
)

// cgiDirective reports whether reqPath's extension is keyed in the
// location's cgi_handlers, returning the directive the CGI orchestrator
// needs to fork the interpreter against the resolved script.
func cgiDirective(loc *config.EffectiveLocation, reqPath string) *response.CGIDirective {
	if len(loc.CGIHandlers) == 0 {
		return nil
	}
	ext := filepath.Ext(reqPath)
	interpreter, ok := loc.CGIHandlers[ext]
	if !ok {
		return nil
	}
	return &response.CGIDirective{
		ScriptPath:      resolveFSPath(loc, reqPath),
		InterpreterPath: interpreter,
	}
}
