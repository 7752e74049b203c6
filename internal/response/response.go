// Package response defines the HTTP response value produced by the router,
// the method handlers, and the CGI orchestrator's document-response parser.
package response

import (
	"fmt"
	"net/textproto"
)

// CGIDirective is not an HTTP message: it is a command telling the reactor
// to run a CGI subprocess instead of writing a response directly.
type CGIDirective struct {
	ScriptPath      string
	InterpreterPath string
}

// Cookie is one Set-Cookie response value.
type Cookie struct {
	Name  string
	Value string
}

// Response is either a complete HTTP response, or (when CGIDirective is set)
// a command to the CGI orchestrator.
type Response struct {
	StatusCode   int
	Reason       string
	Headers      textproto.MIMEHeader
	Body         []byte
	SetCookies   []Cookie
	CGIDirective *CGIDirective
	CloseAfter   bool
}

// New builds a response with an initialized header map.
func New(status int) *Response {
	return &Response{
		StatusCode: status,
		Reason:     ReasonPhrase(status),
		Headers:    textproto.MIMEHeader{},
	}
}

// WithBody sets the body and a matching Content-Length header.
func (r *Response) WithBody(body []byte) *Response {
	r.Body = body
	r.Headers.Set("Content-Length", fmt.Sprintf("%d", len(body)))
	return r
}

// WithHeader sets a single-valued header.
func (r *Response) WithHeader(name, value string) *Response {
	r.Headers.Set(name, value)
	return r
}

// ReasonPhrase returns the standard reason phrase for a status code.
func ReasonPhrase(code int) string {
	if p, ok := reasonPhrases[code]; ok {
		return p
	}
	return "Unknown"
}

var reasonPhrases = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	301: "Moved Permanently",
	302: "Found",
	303: "See Other",
	307: "Temporary Redirect",
	308: "Permanent Redirect",
	400: "Bad Request",
	403: "Forbidden",
	404: "Not Found",
	405: "Method Not Allowed",
	413: "Payload Too Large",
	500: "Internal Server Error",
	502: "Bad Gateway",
	504: "Gateway Timeout",
}

// Build serializes the response to wire bytes, CRLF-separated.
func (r *Response) Build() []byte {
	buf := make([]byte, 0, len(r.Body)+256)
	buf = append(buf, fmt.Sprintf("HTTP/1.1 %d %s\r\n", r.StatusCode, r.Reason)...)
	for name, values := range r.Headers {
		for _, v := range values {
			buf = append(buf, fmt.Sprintf("%s: %s\r\n", name, v)...)
		}
	}
	for _, c := range r.SetCookies {
		buf = append(buf, fmt.Sprintf("Set-Cookie: %s=%s\r\n", c.Name, c.Value)...)
	}
	buf = append(buf, "\r\n"...)
	buf = append(buf, r.Body...)
	return buf
}
