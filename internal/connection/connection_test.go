package connection

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

func TestQueueResponseFillsWriteBufferAndResetsParser(t *testing.T) {
	c := New(3, 9, 1<<20, "127.0.0.1:1234")
	c.Parser.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\n"))

	resp := response.New(200).WithBody([]byte("hi"))
	c.QueueResponse(resp)

	require.Equal(t, PhaseWriting, c.Phase)
	require.Contains(t, string(c.PendingWrite()), "HTTP/1.1 200 OK")
	require.Contains(t, string(c.PendingWrite()), "hi")
	require.Equal(t, httpparser.StateRequestLine, c.Parser.State())
}

func TestQueueResponsePreservesPipelinedOverflow(t *testing.T) {
	c := New(3, 9, 1<<20, "127.0.0.1:1234")
	c.Parser.Feed([]byte("GET / HTTP/1.1\r\nHost: x\r\n\r\nGET /next HTTP/1.1\r\nHost: x\r\n\r\n"))

	c.QueueResponse(response.New(200).WithBody(nil))

	require.Equal(t, "/next", c.Parser.Request.Path())
}

func TestAdvanceReportsDrain(t *testing.T) {
	c := New(3, 9, 1<<20, "")
	c.QueueResponse(response.New(204).WithBody(nil))
	full := len(c.PendingWrite())
	require.False(t, c.Advance(full-1))
	require.True(t, c.Advance(1))
	require.Empty(t, c.PendingWrite())
}

func TestFailCGISynthesizesErrorResponse(t *testing.T) {
	c := New(3, 9, 1<<20, "")
	c.FailCGI(502)
	require.Equal(t, PhaseWriting, c.Phase)
	require.Contains(t, string(c.PendingWrite()), "502")
}

func TestQueueResponseHonorsCloseAfter(t *testing.T) {
	c := New(3, 9, 1<<20, "")
	resp := response.New(200).WithBody(nil)
	resp.CloseAfter = true
	c.QueueResponse(resp)
	require.True(t, c.ShouldCloseAfterWrite)
}
