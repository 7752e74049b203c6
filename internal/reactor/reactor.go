package reactor

import (
	"math"
	"strconv"
	"strings"
	"sync"

	"github.com/hashicorp/go-multierror"
	"golang.org/x/sys/unix"

	"github.com/nginx-go/httpd/internal/cgi"
	"github.com/nginx-go/httpd/internal/config"
	"github.com/nginx-go/httpd/internal/connection"
	"github.com/nginx-go/httpd/internal/httperror"
	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/logging"
	"github.com/nginx-go/httpd/internal/response"
	"github.com/nginx-go/httpd/internal/router"
	"github.com/nginx-go/httpd/internal/session"
)

const maxEvents = 256

// sessionCookie is the name of the opaque session-affinity cookie the
// reactor assigns to clients that don't already carry one.
const sessionCookie = "SESSID"

// Reactor is the connection manager: one epoll instance, a set of
// bound listeners, the connection table keyed by client fd, and the CGI
// orchestrator sharing the same multiplexer.
type Reactor struct {
	mux       *Multiplexer
	listenMu  sync.Mutex // guards listeners/servers during concurrent AddListener calls at startup
	listeners map[int]*Listener              // listener fd -> listener
	servers   map[int][]*config.ServerConfig // listener fd -> candidate servers
	conns     map[int]*connection.Connection
	cgiOrch   *cgi.Orchestrator
	errPages  *httperror.PageCache
	sessions  *session.Store
	running   bool

	// wake pipe: Stop (which may run off the reactor goroutine, e.g. from
	// the coordinator's signal handler) writes a byte here to break Run out
	// of its blocking Wait; the running flag itself is only ever touched on
	// the reactor goroutine.
	wakeRead  int
	wakeWrite int
}

// New builds a reactor with a fresh epoll instance, CGI orchestrator, and
// the process-wide error-page and session stores.
func New() (*Reactor, error) {
	mux, err := NewMultiplexer()
	if err != nil {
		return nil, err
	}
	var pipe [2]int
	if err := unix.Pipe2(pipe[:], unix.O_NONBLOCK|unix.O_CLOEXEC); err != nil {
		mux.Close()
		return nil, err
	}
	r := &Reactor{
		mux:       mux,
		listeners: map[int]*Listener{},
		servers:   map[int][]*config.ServerConfig{},
		conns:     map[int]*connection.Connection{},
		errPages:  httperror.NewPageCache(),
		sessions:  session.NewStore(),
		wakeRead:  pipe[0],
		wakeWrite: pipe[1],
	}
	if err := mux.Register(r.wakeRead, true, false); err != nil {
		unix.Close(pipe[0])
		unix.Close(pipe[1])
		mux.Close()
		return nil, err
	}
	r.cgiOrch = cgi.New(mux, logging.Log.WithField("component", "cgi"))
	return r, nil
}

// AddListener binds and registers a listener serving the given candidate
// server configs (every ServerConfig sharing this listener's host:port).
func (r *Reactor) AddListener(host string, port, backlog int, candidates []*config.ServerConfig) error {
	l, err := Bind(host, port, backlog)
	if err != nil {
		return err
	}
	if err := r.mux.Register(l.FD, true, false); err != nil {
		l.Close()
		return err
	}
	r.listenMu.Lock()
	r.listeners[l.FD] = l
	r.servers[l.FD] = candidates
	r.listenMu.Unlock()
	logging.Log.WithField("addr", host+":"+strconv.Itoa(port)).Info("reactor: listening")
	return nil
}

// Listeners exposes the bound listener fds, for shutdown teardown.
func (r *Reactor) Listeners() []*Listener {
	out := make([]*Listener, 0, len(r.listeners))
	for _, l := range r.listeners {
		out = append(out, l)
	}
	return out
}

// Run drives the event loop until Stop is called or Wait returns a fatal
// error.
func (r *Reactor) Run() error {
	r.running = true
	buf := make([]unix.EpollEvent, maxEvents)
	for r.running {
		events, err := r.mux.Wait(-1, buf)
		if err != nil {
			return err
		}
		for _, ev := range events {
			r.dispatch(ev)
		}
	}
	return nil
}

// Stop requests the loop exit after the current batch of events. Safe to
// call from any goroutine: the wake pipe breaks Run out of a blocked Wait.
func (r *Reactor) Stop() {
	_, _ = unix.Write(r.wakeWrite, []byte{0})
}

// Close releases every listener, connection, and the multiplexer itself,
// aggregating teardown errors rather than stopping at the first one.
func (r *Reactor) Close() error {
	var result *multierror.Error
	for fd := range r.conns {
		r.closeConn(fd)
	}
	for fd, l := range r.listeners {
		r.mux.Unregister(fd)
		l.Close()
	}
	r.mux.Unregister(r.wakeRead)
	unix.Close(r.wakeRead)
	unix.Close(r.wakeWrite)
	if err := r.mux.Close(); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (r *Reactor) dispatch(ev Event) {
	if ev.FD == r.wakeRead {
		buf := make([]byte, 16)
		for {
			if n, err := unix.Read(r.wakeRead, buf); n <= 0 || err != nil {
				break
			}
		}
		r.running = false
		return
	}
	if l, ok := r.listeners[ev.FD]; ok {
		r.onAccept(l)
		return
	}
	if clientFD, ok := r.cgiOrch.OwnerOf(ev.FD); ok {
		r.onCGIEvent(ev, clientFD)
		return
	}
	conn, ok := r.conns[ev.FD]
	if !ok {
		return
	}
	if ev.Error || ev.Hangup {
		if !ev.Readable || conn.Phase != connection.PhaseReading {
			r.closeConn(ev.FD)
			return
		}
	}
	// Handlers are gated on the connection's phase: the parser is never fed
	// while a response is draining or a CGI run is in flight, and the write
	// path only runs while a response is actually queued. The next parse
	// cycle starts in onWritable, after the prior response has fully
	// flushed.
	if ev.Readable && conn.Phase == connection.PhaseReading {
		r.onReadable(conn)
	}
	if ev.Writable && conn.Phase == connection.PhaseWriting {
		r.onWritable(conn)
	}
}

// onAccept drains the listener's accept queue: edge-triggered
// readiness means every pending connection must be accepted before
// returning, or the loop would never be woken again for the ones left
// behind.
func (r *Reactor) onAccept(l *Listener) {
	for {
		fd, remoteAddr, err := l.Accept()
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK || err == unix.EINTR {
				return
			}
			if err == unix.EMFILE || err == unix.ENFILE {
				logging.Log.WithError(err).Warn("reactor: fd exhaustion on accept, listener stays live")
				return
			}
			logging.Log.WithError(err).Warn("reactor: accept failed")
			return
		}
		conn := connection.New(fd, l.FD, maxBodySizeFor(r.servers[l.FD]), remoteAddr)
		if err := r.mux.Register(fd, true, false); err != nil {
			unix.Close(fd)
			continue
		}
		r.conns[fd] = conn
		logging.ForConn(fd).WithField("remote", remoteAddr).Debug("reactor: accepted")
	}
}

// maxBodySizeFor returns the parser-level Content-Length ceiling for a
// freshly accepted connection: the largest of 1MiB and its candidate
// servers' limits (1MiB when there are no candidates). A candidate with a
// client_max_body_size of 0 means "no limit" at that scope, so any such
// candidate makes the whole connection unlimited rather than flooring it
// back to 1MiB; a server that never sets the directive also has 0.
func maxBodySizeFor(candidates []*config.ServerConfig) int64 {
	var max int64 = 1 << 20
	for _, s := range candidates {
		if s.ClientMaxBodySize == 0 {
			return math.MaxInt64
		}
		if s.ClientMaxBodySize > max {
			max = s.ClientMaxBodySize
		}
	}
	return max
}

func (r *Reactor) onReadable(conn *connection.Connection) {
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(conn.FD, buf)
		if n > 0 {
			conn.Parser.Feed(buf[:n])
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				break
			}
			r.closeConn(conn.FD)
			return
		}
		if n == 0 {
			r.closeConn(conn.FD)
			return
		}
		if conn.Parser.State() == httpparser.StateComplete || conn.Parser.State() == httpparser.StateError {
			break
		}
	}
	r.maybeHandleRequest(conn)
}

// maybeHandleRequest acts once the parser reaches a terminal state. It runs
// from onReadable, and from onWritable once the prior response has fully
// flushed (for a pipelined request already parsed from QueueResponse's
// overflow), so responses are always written in the order their requests
// arrived.
func (r *Reactor) maybeHandleRequest(conn *connection.Connection) {
	switch conn.Parser.State() {
	case httpparser.StateComplete:
		r.handleRequest(conn)
	case httpparser.StateError:
		status := 400
		if conn.Parser.ErrKind == httpparser.ErrPayloadTooLarge {
			status = 413
		}
		resp := r.errPages.Render(r.serverFor(conn), status)
		resp.CloseAfter = true
		conn.QueueResponse(resp)
		r.beginWrite(conn)
	}
}

func (r *Reactor) serverFor(conn *connection.Connection) *config.ServerConfig {
	candidates := r.servers[conn.BoundServerFD]
	if len(candidates) == 0 {
		return nil
	}
	host, _ := conn.Parser.Request.Headers.Get("Host")
	srv := config.MatchServer(candidates, candidates[0].Host, candidates[0].Port, hostOnly(host))
	if srv == nil {
		srv = candidates[0]
	}
	return srv
}

func hostOnly(hostHeader string) string {
	for i := 0; i < len(hostHeader); i++ {
		if hostHeader[i] == ':' {
			return hostHeader[:i]
		}
	}
	return hostHeader
}

func (r *Reactor) handleRequest(conn *connection.Connection) {
	srv := r.serverFor(conn)
	if srv == nil {
		resp := r.errPages.Render(nil, 404)
		resp.CloseAfter = true
		conn.QueueResponse(resp)
		r.beginWrite(conn)
		return
	}
	resp := router.Route(srv, &conn.Parser.Request)
	if resp.CGIDirective != nil {
		r.startCGI(conn, srv, resp.CGIDirective)
		return
	}
	if resp.StatusCode >= 400 {
		if body, ok := r.errPages.CustomBody(srv, resp.StatusCode); ok {
			resp.WithHeader("Content-Type", "text/html").WithBody(body)
		}
	}
	if requestWantsClose(&conn.Parser.Request) {
		resp.CloseAfter = true
	}
	r.assignSession(conn, resp)
	conn.QueueResponse(resp)
	r.beginWrite(conn)
}

// requestWantsClose reports whether the connection should close after this
// response: HTTP/1.1 defaults
// to keep-alive unless Connection: close is present; HTTP/1.0 defaults to
// close unless Connection: keep-alive is present.
func requestWantsClose(req *httpparser.Request) bool {
	v, ok := req.Headers.Get("Connection")
	if ok {
		v = strings.TrimSpace(v)
		if strings.EqualFold(v, "close") {
			return true
		}
		if strings.EqualFold(v, "keep-alive") {
			return false
		}
	}
	return req.Version == "HTTP/1.0"
}

// assignSession issues a new session-affinity cookie on resp whenever the
// request carries no SESSID cookie. Existing sessions are left
// untouched; this only ever mutates resp, never blocks the reactor.
func (r *Reactor) assignSession(conn *connection.Connection, resp *response.Response) {
	if _, ok := conn.Parser.Request.Cookies[sessionCookie]; ok {
		return
	}
	id := r.sessions.Create()
	resp.SetCookies = append(resp.SetCookies, response.Cookie{Name: sessionCookie, Value: id})
}

func (r *Reactor) startCGI(conn *connection.Connection, srv *config.ServerConfig, directive *response.CGIDirective) {
	req := &conn.Parser.Request
	env := cgi.Env{
		Method:      req.Method,
		Target:      req.RequestTarget,
		QueryString: req.Query(),
		Headers:     req.Headers,
		ScriptPath:  directive.ScriptPath,
		ServerName:  srv.Host,
		ServerPort:  srv.Port,
		RemoteAddr:  conn.RemoteAddr,
	}
	if requestWantsClose(req) {
		conn.ShouldCloseAfterWrite = true
	}
	conn.Phase = connection.PhaseCGIActive
	if err := r.cgiOrch.Start(conn.FD, directive, req.Body, env, conn, conn.MaxBodySize); err != nil {
		logging.ForConn(conn.FD).WithError(err).Warn("reactor: cgi start failed")
		conn.FailCGI(500)
		r.beginWrite(conn)
	}
}

func (r *Reactor) onCGIEvent(ev Event, clientFD int) {
	if ev.Writable {
		r.cgiOrch.OnWritable(clientFD)
	}
	if ev.Readable {
		r.cgiOrch.OnReadable(clientFD)
	}
	if ev.Hangup || ev.Error {
		r.cgiOrch.OnHangup(clientFD)
	}
	if conn, ok := r.conns[clientFD]; ok && conn.Phase == connection.PhaseWriting {
		r.beginWrite(conn)
	}
}

// beginWrite arms writable-only interest for conn and attempts an immediate
// write, since the socket is very likely already writable. Read interest is
// deliberately dropped while the response drains: new request bytes stay in
// the kernel buffer until onWritable re-arms readable on full flush, so a
// pipelined request can never be dispatched while a response is in flight.
func (r *Reactor) beginWrite(conn *connection.Connection) {
	if err := r.mux.Modify(conn.FD, false, true); err != nil {
		r.closeConn(conn.FD)
		return
	}
	r.onWritable(conn)
}

func (r *Reactor) onWritable(conn *connection.Connection) {
	for {
		pending := conn.PendingWrite()
		if len(pending) == 0 {
			break
		}
		n, err := unix.Write(conn.FD, pending)
		if n > 0 {
			conn.Advance(n)
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			r.closeConn(conn.FD)
			return
		}
		if n == 0 {
			return
		}
	}
	if conn.ShouldCloseAfterWrite {
		r.closeConn(conn.FD)
		return
	}
	conn.Phase = connection.PhaseReading
	if err := r.mux.Modify(conn.FD, true, false); err != nil {
		r.closeConn(conn.FD)
		return
	}
	// A pipelined request may already have completed parsing against the
	// overflow QueueResponse fed back into the reset parser; handle it now
	// instead of waiting for another readable event that may never come.
	if conn.Parser.State() == httpparser.StateComplete || conn.Parser.State() == httpparser.StateError {
		r.maybeHandleRequest(conn)
	}
}

func (r *Reactor) closeConn(fd int) {
	conn, ok := r.conns[fd]
	if !ok {
		return
	}
	if conn.Phase == connection.PhaseCGIActive {
		r.cgiOrch.Cancel(fd)
	}
	r.mux.Unregister(fd)
	unix.Close(fd)
	delete(r.conns, fd)
	conn.Phase = connection.PhaseClosed
	logging.ForConn(fd).Debug("reactor: closed")
}
