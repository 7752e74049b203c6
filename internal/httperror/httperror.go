// Package httperror renders HTML error-page bodies (custom, when a
// ServerConfig provides one, else a built-in default), substituting
// {STATUS_CODE} and {REASON}.
package httperror

import (
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/response"
)

// PageCache is process-wide state: it is created empty at startup, loads
// each configured error_page file on first use, and is torn down at
// shutdown. It is only ever touched from the reactor's single thread; load
// still takes the mutex below on every lookup, cache hits included.
type PageCache struct {
	mu    sync.Mutex
	pages map[string][]byte // file path -> contents
}

// NewPageCache returns an empty, ready-to-use page cache.
func NewPageCache() *PageCache {
	return &PageCache{pages: map[string][]byte{}}
}

func (c *PageCache) load(path string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.pages[path]; ok {
		return b, true
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, false
	}
	c.pages[path] = b
	return b, true
}

// CustomBody returns the substituted body of srv's configured error_page for
// status, if one exists and is readable. Used by the reactor to replace the
// default body on any error response whose status has a page configured.
func (c *PageCache) CustomBody(srv *config.ServerConfig, status int) ([]byte, bool) {
	if srv == nil {
		return nil, false
	}
	path, ok := srv.ErrorPages[status]
	if !ok {
		return nil, false
	}
	raw, ok := c.load(path)
	if !ok {
		return nil, false
	}
	return []byte(substitute(string(raw), status)), true
}

// Render builds the error response for status, using srv's configured
// error_page for that status if present, else a built-in default body.
// Placeholders {STATUS_CODE} and {REASON} are substituted either way.
func (c *PageCache) Render(srv *config.ServerConfig, status int) *response.Response {
	body, ok := c.CustomBody(srv, status)
	if !ok {
		body = []byte(substitute(defaultErrorPage, status))
	}

	resp := response.New(status)
	resp.WithHeader("Content-Type", "text/html")
	resp.WithBody(body)
	return resp
}

func substitute(body string, status int) string {
	body = strings.ReplaceAll(body, "{STATUS_CODE}", strconv.Itoa(status))
	return strings.ReplaceAll(body, "{REASON}", response.ReasonPhrase(status))
}

const defaultErrorPage = `<html>
<head><title>{STATUS_CODE} {REASON}</title></head>
<body>
<h1>{STATUS_CODE} {REASON}</h1>
</body>
</html>
`
