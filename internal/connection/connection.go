// Package connection holds the per-client Connection: its write buffer,
// parser, and lifecycle phase, exclusively owned by the reactor's
// connection table.
package connection

import (
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Phase is the connection's lifecycle position.
type Phase int

const (
	PhaseReading Phase = iota
	PhaseWriting
	PhaseCGIActive
	PhaseClosed
)

// Connection is created on accept success and destroyed on disconnect,
// error, or explicit close.
type Connection struct {
	FD int

	WriteBuffer []byte
	writeCursor int

	Phase Phase

	Parser *httpparser.Parser

	ShouldCloseAfterWrite bool
	BoundServerFD         int
	MaxBodySize           int64

	RemoteAddr string
}

// New creates a connection freshly accepted on listenerFD.
func New(fd, listenerFD int, maxBodySize int64, remoteAddr string) *Connection {
	return &Connection{
		FD:            fd,
		Phase:         PhaseReading,
		Parser:        httpparser.New(maxBodySize),
		BoundServerFD: listenerFD,
		MaxBodySize:   maxBodySize,
		RemoteAddr:    remoteAddr,
	}
}

// QueueResponse fills the write buffer from resp and transitions to
// Writing, resetting the parser for the next request on this connection.
// Any bytes already buffered past this request (a pipelined second
// request) are preserved across the reset.
func (c *Connection) QueueResponse(resp *response.Response) {
	c.WriteBuffer = append(c.WriteBuffer, resp.Build()...)
	c.writeCursor = 0
	c.Phase = PhaseWriting
	if resp.CloseAfter {
		c.ShouldCloseAfterWrite = true
	}
	overflow := c.Parser.TakeOverflow()
	c.Parser.Reset()
	if len(overflow) > 0 {
		c.Parser.Feed(overflow)
	}
}

// DeliverCGIResponse implements cgi.Sink: the orchestrator calls this when
// the child's document response has been parsed into an HTTP response.
func (c *Connection) DeliverCGIResponse(resp *response.Response) {
	c.QueueResponse(resp)
}

// FailCGI implements cgi.Sink: the orchestrator calls this on a CGI
// failure, synthesizing a plain status response.
func (c *Connection) FailCGI(status int) {
	resp := response.New(status)
	resp.WithHeader("Content-Type", "text/html")
	resp.WithBody([]byte("<h1>" + resp.Reason + "</h1>"))
	c.QueueResponse(resp)
}

// PendingWrite returns the unsent tail of the write buffer.
func (c *Connection) PendingWrite() []byte {
	return c.WriteBuffer[c.writeCursor:]
}

// Advance records n bytes as sent. It reports whether the buffer has fully
// drained.
func (c *Connection) Advance(n int) (drained bool) {
	c.writeCursor += n
	if c.writeCursor >= len(c.WriteBuffer) {
		c.WriteBuffer = c.WriteBuffer[:0]
		c.writeCursor = 0
		return true
	}
	return false
}
