package handlers

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Post handles CGI delegation, multipart/form-data upload
// (first file part only), application/x-www-form-urlencoded echo, or 400 for
// anything else.
func Post(req *httpparser.Request, loc *config.EffectiveLocation) *response.Response {
	reqPath := req.Path()
	if unsafePath(reqPath) {
		return notFound()
	}
	if d := cgiDirective(loc, reqPath); d != nil {
		r := response.New(200)
		r.CGIDirective = d
		return r
	}

	contentType, _ := req.Headers.Get("Content-Type")
	mediaType, params := parseContentType(contentType)

	switch mediaType {
	case "multipart/form-data":
		boundary, ok := params["boundary"]
		if !ok {
			return badRequest("missing multipart boundary")
		}
		return handleMultipart(req.Body, boundary, loc)
	case "application/x-www-form-urlencoded":
		return handleURLEncoded(req.Body)
	default:
		return badRequest("unsupported content type")
	}
}

func badRequest(msg string) *response.Response {
	return response.New(400).WithHeader("Content-Type", "text/plain").WithBody([]byte(msg))
}

func parseContentType(header string) (string, map[string]string) {
	parts := strings.Split(header, ";")
	if len(parts) == 0 {
		return "", nil
	}
	mediaType := strings.ToLower(strings.TrimSpace(parts[0]))
	params := map[string]string{}
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		params[strings.ToLower(strings.TrimSpace(kv[0]))] = strings.Trim(strings.TrimSpace(kv[1]), `"`)
	}
	return mediaType, params
}

// handleMultipart finds the first part whose Content-Disposition header
// carries a filename (parts without one are skipped), slices that part's
// body, and saves it to loc.UploadPath. The upload directory must pre-exist; no directories are
// created.
func handleMultipart(body []byte, boundary string, loc *config.EffectiveLocation) *response.Response {
	delim := []byte("--" + boundary)
	parts := bytes.Split(body, delim)

	for _, part := range parts {
		part = bytes.TrimPrefix(part, []byte("\r\n"))
		if len(part) == 0 || bytes.Equal(bytes.TrimSpace(part), []byte("--")) {
			continue
		}
		headerEnd := bytes.Index(part, []byte("\r\n\r\n"))
		if headerEnd < 0 {
			continue
		}
		header := string(part[:headerEnd])
		partBody := bytes.TrimSuffix(part[headerEnd+4:], []byte("\r\n"))

		filename := contentDispositionFilename(header)
		if filename == "" {
			continue
		}
		if loc.UploadPath == "" {
			return internalError()
		}
		dest := filepath.Join(loc.UploadPath, filepath.Base(filename))
		if err := os.WriteFile(dest, partBody, 0o644); err != nil {
			return internalError()
		}
		return confirmationPage(fmt.Sprintf("Uploaded %s (%d bytes)", filename, len(partBody)))
	}
	return badRequest("no file part found")
}

func contentDispositionFilename(header string) string {
	for _, line := range strings.Split(header, "\r\n") {
		if !strings.HasPrefix(strings.ToLower(line), "content-disposition:") {
			continue
		}
		for _, field := range strings.Split(line, ";") {
			field = strings.TrimSpace(field)
			if strings.HasPrefix(field, "filename=") {
				return strings.Trim(strings.TrimPrefix(field, "filename="), `"`)
			}
		}
	}
	return ""
}

func handleURLEncoded(body []byte) *response.Response {
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return badRequest("malformed form body")
	}
	var b strings.Builder
	b.WriteString("<html><body><h1>Form received</h1><ul>")
	for key, vs := range values {
		for _, v := range vs {
			fmt.Fprintf(&b, "<li>%s = %s</li>", key, v)
		}
	}
	b.WriteString("</ul></body></html>")
	return confirmationPage(b.String())
}

func confirmationPage(body string) *response.Response {
	r := response.New(200).WithHeader("Content-Type", "text/html")
	r.WithBody([]byte(body))
	return r
}
