package httpparser

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseSimpleGet(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("GET /index.html HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "GET", p.Request.Method)
	require.Equal(t, "/index.html", p.Request.RequestTarget)
	host, ok := p.Request.Headers.Get("host")
	require.True(t, ok)
	require.Equal(t, "x", host)
}

func TestParsePartialThenComplete(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("GET / HTTP/1.1\r\nHost: "))
	require.Equal(t, StateHeaders, p.State())
	p.Feed([]byte("x\r\n\r\n"))
	require.Equal(t, StateComplete, p.State())
}

func TestParseContentLengthBody(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("POST /p HTTP/1.1\r\nHost: x\r\nContent-Length: 5\r\n\r\nhello"))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "hello", string(p.Request.Body))
}

func TestParsePayloadTooLarge(t *testing.T) {
	p := New(10)
	p.Feed([]byte("POST /p HTTP/1.1\r\nHost: x\r\nContent-Length: 100\r\n\r\n"))
	require.Equal(t, StateError, p.State())
	require.Equal(t, ErrPayloadTooLarge, p.ErrKind)
}

func TestParseChunkedBody(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("POST /u HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "hello", string(p.Request.Body))
}

func TestParseChunkedExceedsMax(t *testing.T) {
	p := New(3)
	p.Feed([]byte("POST /u HTTP/1.1\r\nHost: x\r\nTransfer-Encoding: chunked\r\n\r\n5\r\nhello\r\n0\r\n\r\n"))
	require.Equal(t, StateError, p.State())
	require.Equal(t, ErrPayloadTooLarge, p.ErrKind)
}

func TestParseUnknownMethod(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("FOO / HTTP/1.1\r\n\r\n"))
	require.Equal(t, StateError, p.State())
	require.Equal(t, ErrBadRequest, p.ErrKind)
}

func TestParseMalformedHeader(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("GET / HTTP/1.1\r\nNoColonHere\r\n\r\n"))
	require.Equal(t, StateError, p.State())
	require.Equal(t, ErrBadRequest, p.ErrKind)
}

func TestResetRestoresInitialState(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))
	require.Equal(t, StateComplete, p.State())
	p.Reset()
	require.Equal(t, StateRequestLine, p.State())
	require.Empty(t, p.Request.Method)
}

func TestCookiesParsed(t *testing.T) {
	p := New(1 << 20)
	p.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\nCookie: a=1; b=2\r\n\r\n"))
	require.Equal(t, StateComplete, p.State())
	require.Equal(t, "1", p.Request.Cookies["a"])
	require.Equal(t, "2", p.Request.Cookies["b"])
}
