package cgi

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/nginx-go/httpd/internal/response"
)

// parseDocumentResponse parses a CGI document response: split at the first
// CRLFCRLF (or LFLF), headers become response
// headers with one special name (Status), default status 200, and
// Content-Length is always recomputed from the body to guarantee framing.
func parseDocumentResponse(accumulator []byte) *response.Response {
	sep := []byte("\r\n\r\n")
	idx := bytes.Index(accumulator, sep)
	sepLen := 4
	if idx < 0 {
		sep = []byte("\n\n")
		idx = bytes.Index(accumulator, sep)
		sepLen = 2
	}

	resp := response.New(200)
	var body []byte

	if idx < 0 {
		resp.WithHeader("Content-Type", "text/plain")
		body = accumulator
	} else {
		headerBlock := string(accumulator[:idx])
		body = accumulator[idx+sepLen:]
		for _, line := range splitLines(headerBlock) {
			if line == "" {
				continue
			}
			colon := strings.IndexByte(line, ':')
			if colon < 0 {
				continue
			}
			name := strings.TrimSpace(line[:colon])
			value := strings.TrimSpace(line[colon+1:])
			if strings.EqualFold(name, "Status") {
				code, reason := parseStatusHeader(value)
				resp.StatusCode = code
				resp.Reason = reason
				continue
			}
			resp.Headers.Add(name, value)
		}
	}

	resp.WithBody(body)
	return resp
}

func splitLines(block string) []string {
	block = strings.ReplaceAll(block, "\r\n", "\n")
	return strings.Split(block, "\n")
}

func parseStatusHeader(value string) (int, string) {
	parts := strings.SplitN(value, " ", 2)
	code, err := strconv.Atoi(parts[0])
	if err != nil {
		return 200, "OK"
	}
	reason := "OK"
	if len(parts) == 2 && parts[1] != "" {
		reason = parts[1]
	} else {
		reason = response.ReasonPhrase(code)
	}
	return code, reason
}
