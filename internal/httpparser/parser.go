package httpparser

import (
	"strconv"
	"strings"
)

// State is the parser's current phase. The zero value is RequestLine.
type State int

const (
	StateRequestLine State = iota
	StateHeaders
	StateBody
	StateChunked
	StateComplete
	StateError
)

type chunkSubstate int

const (
	chunkSize chunkSubstate = iota
	chunkData
	chunkDataCRLF
	chunkTrailers
)

var validMethods = map[string]bool{
	"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true,
}

// ErrorKind classifies why the parser entered StateError, so the reactor can
// map it to the right status code without string matching.
type ErrorKind int

const (
	ErrBadRequest ErrorKind = iota
	ErrPayloadTooLarge
)

// Parser is a re-entrant streaming HTTP/1.1 parser. Each Feed call appends
// to an internal buffer and advances as far as possible; it may return with
// the state unchanged if only partial data is available.
type Parser struct {
	state State
	buf   []byte

	Request Request

	bodyRemaining int64
	totalBody     int64
	maxBodySize   int64

	chunkState chunkSubstate
	chunkLeft  int64

	ErrKind ErrorKind
	ErrMsg  string
}

// New returns a parser ready to parse a request, enforcing maxBodySize
// octets of total body.
func New(maxBodySize int64) *Parser {
	p := &Parser{maxBodySize: maxBodySize}
	p.reset()
	return p
}

// State reports the parser's current phase.
func (p *Parser) State() State { return p.state }

// Reset restores initial state for keep-alive reuse.
func (p *Parser) Reset() {
	p.reset()
}

// TakeOverflow returns and clears any bytes already buffered past the just
// completed request (a pipelined second request arriving in the same
// read), so the caller can resubmit them to Feed after Reset.
func (p *Parser) TakeOverflow() []byte {
	overflow := p.buf
	p.buf = nil
	return overflow
}

func (p *Parser) reset() {
	p.state = StateRequestLine
	p.buf = p.buf[:0]
	p.Request = Request{Headers: newHeaders()}
	p.bodyRemaining = 0
	p.totalBody = 0
	p.chunkState = chunkSize
	p.chunkLeft = 0
	p.ErrKind = 0
	p.ErrMsg = ""
}

func (p *Parser) fail(kind ErrorKind, msg string) {
	p.state = StateError
	p.ErrKind = kind
	p.ErrMsg = msg
}

// Feed appends newly read bytes and advances the state machine as far as
// possible. It never blocks and never reads beyond what was handed to it.
func (p *Parser) Feed(data []byte) {
	if p.state == StateComplete || p.state == StateError {
		return
	}
	p.buf = append(p.buf, data...)
	for p.advance() {
	}
}

// advance attempts one state transition; it returns true if it made
// progress and should be called again.
func (p *Parser) advance() bool {
	switch p.state {
	case StateRequestLine:
		return p.parseRequestLine()
	case StateHeaders:
		return p.parseHeaderLine()
	case StateBody:
		return p.parseBody()
	case StateChunked:
		return p.parseChunked()
	default:
		return false
	}
}

// takeLine extracts the bytes up to (not including) the next CRLF, removing
// them (and the CRLF) from buf. ok is false if no full line is buffered yet.
func (p *Parser) takeLine() (line string, ok bool) {
	idx := indexCRLF(p.buf)
	if idx < 0 {
		return "", false
	}
	line = string(p.buf[:idx])
	p.buf = p.buf[idx+2:]
	return line, true
}

func indexCRLF(b []byte) int {
	for i := 0; i+1 < len(b); i++ {
		if b[i] == '\r' && b[i+1] == '\n' {
			return i
		}
	}
	return -1
}

func (p *Parser) parseRequestLine() bool {
	line, ok := p.takeLine()
	if !ok {
		return false
	}
	parts := strings.SplitN(line, " ", 3)
	if len(parts) != 3 {
		p.fail(ErrBadRequest, "malformed request line")
		return false
	}
	method, target, version := parts[0], parts[1], parts[2]
	if !validMethods[method] {
		p.fail(ErrBadRequest, "unknown method")
		return false
	}
	if version != "HTTP/1.1" && version != "HTTP/1.0" {
		p.fail(ErrBadRequest, "unsupported version")
		return false
	}
	p.Request.Method = method
	p.Request.RequestTarget = target
	p.Request.Version = version
	p.state = StateHeaders
	return true
}

func (p *Parser) parseHeaderLine() bool {
	line, ok := p.takeLine()
	if !ok {
		return false
	}
	if line == "" {
		return p.finishHeaders()
	}
	colon := strings.IndexByte(line, ':')
	if colon <= 0 {
		p.fail(ErrBadRequest, "malformed header line")
		return false
	}
	name := line[:colon]
	value := strings.Trim(line[colon+1:], " \t")
	if name == "" {
		p.fail(ErrBadRequest, "empty header name")
		return false
	}
	p.Request.Headers.Add(name, value)
	if strings.EqualFold(name, "Cookie") {
		parseCookies(&p.Request, value)
	}
	return true
}

func parseCookies(r *Request, header string) {
	if r.Cookies == nil {
		r.Cookies = map[string]string{}
	}
	for _, part := range strings.Split(header, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if i := strings.IndexByte(part, '='); i >= 0 {
			r.Cookies[part[:i]] = part[i+1:]
		}
	}
}

func (p *Parser) finishHeaders() bool {
	if te, ok := p.Request.Headers.Get("Transfer-Encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		p.state = StateChunked
		p.chunkState = chunkSize
		return true
	}
	if cl, ok := p.Request.Headers.Get("Content-Length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			p.fail(ErrBadRequest, "malformed Content-Length")
			return false
		}
		if n > p.maxBodySize {
			p.fail(ErrPayloadTooLarge, "payload too large")
			return false
		}
		if n > 0 {
			p.bodyRemaining = n
			p.state = StateBody
			return true
		}
	}
	p.state = StateComplete
	return false
}

func (p *Parser) parseBody() bool {
	if len(p.buf) == 0 {
		return false
	}
	take := p.bodyRemaining
	if take > int64(len(p.buf)) {
		take = int64(len(p.buf))
	}
	p.Request.Body = append(p.Request.Body, p.buf[:take]...)
	p.buf = p.buf[take:]
	p.bodyRemaining -= take
	if p.bodyRemaining == 0 {
		p.state = StateComplete
	}
	return false
}

func (p *Parser) parseChunked() bool {
	switch p.chunkState {
	case chunkSize:
		line, ok := p.takeLine()
		if !ok {
			return false
		}
		line = strings.TrimSpace(strings.SplitN(line, ";", 2)[0])
		size, err := strconv.ParseInt(line, 16, 64)
		if err != nil || size < 0 {
			p.fail(ErrBadRequest, "malformed chunk size")
			return false
		}
		if size == 0 {
			p.chunkState = chunkTrailers
			return true
		}
		p.chunkLeft = size
		p.chunkState = chunkData
		return true
	case chunkData:
		if len(p.buf) == 0 {
			return false
		}
		take := p.chunkLeft
		if take > int64(len(p.buf)) {
			take = int64(len(p.buf))
		}
		p.totalBody += take
		if p.totalBody > p.maxBodySize {
			p.fail(ErrPayloadTooLarge, "payload too large")
			return false
		}
		p.Request.Body = append(p.Request.Body, p.buf[:take]...)
		p.buf = p.buf[take:]
		p.chunkLeft -= take
		if p.chunkLeft == 0 {
			p.chunkState = chunkDataCRLF
		}
		return true
	case chunkDataCRLF:
		if len(p.buf) < 2 {
			return false
		}
		if p.buf[0] != '\r' || p.buf[1] != '\n' {
			p.fail(ErrBadRequest, "malformed chunk terminator")
			return false
		}
		p.buf = p.buf[2:]
		p.chunkState = chunkSize
		return true
	case chunkTrailers:
		line, ok := p.takeLine()
		if !ok {
			return false
		}
		if line == "" {
			p.state = StateComplete
			return false
		}
		// Trailer header content is discarded.
		return true
	}
	return false
}
