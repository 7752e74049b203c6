package cgi

import (
	"fmt"
	"strconv"
	"strings"
)

// buildEnviron builds the CGI/1.1 environment: the standard request
// metadata variables, PATH_INFO/REMOTE_ADDR/SERVER_NAME/SERVER_PORT, and
// every other request header as HTTP_<UPPER_SNAKE>.
func buildEnviron(env Env, contentLength int) []string {
	vars := map[string]string{
		"GATEWAY_INTERFACE": "CGI/1.1",
		"SERVER_PROTOCOL":   "HTTP/1.1",
		"SERVER_SOFTWARE":   "nginx-go/httpd",
		"REQUEST_METHOD":    env.Method,
		"SCRIPT_FILENAME":   env.ScriptPath,
		"SCRIPT_NAME":       scriptName(env.Target),
		"QUERY_STRING":      env.QueryString,
		"PATH_INFO":         pathInfo(env.Target, env.ScriptPath),
		"REMOTE_ADDR":       env.RemoteAddr,
		"SERVER_NAME":       env.ServerName,
		"SERVER_PORT":       strconv.Itoa(env.ServerPort),
	}

	if ct, ok := env.Headers.Get("Content-Type"); ok {
		vars["CONTENT_TYPE"] = ct
	}
	if contentLength > 0 {
		vars["CONTENT_LENGTH"] = strconv.Itoa(contentLength)
	}

	for _, name := range env.Headers.Names() {
		if strings.EqualFold(name, "Content-Type") || strings.EqualFold(name, "Content-Length") {
			continue
		}
		v, ok := env.Headers.Get(name)
		if !ok {
			continue
		}
		vars[httpEnvName(name)] = v
	}

	out := make([]string, 0, len(vars))
	for k, v := range vars {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	return out
}

func httpEnvName(header string) string {
	upper := strings.ToUpper(header)
	return "HTTP_" + strings.ReplaceAll(upper, "-", "_")
}

func scriptName(target string) string {
	if i := strings.IndexByte(target, '?'); i >= 0 {
		return target[:i]
	}
	return target
}

func pathInfo(target, scriptPath string) string {
	name := scriptName(target)
	base := scriptPath[strings.LastIndexByte(scriptPath, '/')+1:]
	if i := strings.Index(name, base); i >= 0 {
		return name[i+len(base):]
	}
	return ""
}
