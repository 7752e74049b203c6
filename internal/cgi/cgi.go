// Package cgi implements the asynchronous CGI/1.1 subprocess orchestrator:
// request body streamed to the child's stdin while its stdout is
// streamed back, both pumped through the same reactor that drives client
// sockets; no blocking wait ever stalls the loop.
package cgi

import (
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	"github.com/nginx-go/httpd/internal/httpparser"
	"github.com/nginx-go/httpd/internal/response"
)

// Multiplexer is the subset of the reactor's readiness multiplexer the
// orchestrator needs to register/modify/unregister pipe fds. It is declared
// here, not imported from the reactor package, so this package stays
// dependency-free of the reactor (the reactor depends on cgi, not the other
// way around).
type Multiplexer interface {
	Register(fd int, readable, writable bool) error
	Modify(fd int, readable, writable bool) error
	Unregister(fd int)
}

// Sink receives the finalized response (or failure) for the connection that
// owns a CGI run. Connection implements this without importing this package.
type Sink interface {
	DeliverCGIResponse(resp *response.Response)
	FailCGI(status int)
}

// runState is the per-connection CGI run: child pid, two pipe fds, the pending
// request body slice still to be written, and the accumulated stdout bytes.
type runState struct {
	pid int

	stdinFD  int // parent's write end of in_pipe; -1 once closed
	stdoutFD int // parent's read end of out_pipe; -1 once closed

	pendingBody []byte
	accumulator []byte
	maxOutput   int64

	cmd *exec.Cmd
	log *logrus.Entry
}

// Orchestrator owns the pipe-binding table mapping a
// child pipe fd back to the client fd that owns it.
type Orchestrator struct {
	mux   Multiplexer
	sinks map[int]Sink   // client fd -> sink
	state map[int]*runState // client fd -> cgi state
	pipes map[int]int    // pipe fd -> client fd
	log   *logrus.Entry
}

// New returns an orchestrator bound to the reactor's multiplexer.
func New(mux Multiplexer, log *logrus.Entry) *Orchestrator {
	return &Orchestrator{
		mux:   mux,
		sinks: map[int]Sink{},
		state: map[int]*runState{},
		pipes: map[int]int{},
		log:   log,
	}
}

// Env describes the pieces of the request needed to build the CGI
// environment, independent of the httpparser.Request type so this package's
// public surface stays narrow.
type Env struct {
	Method      string
	Target      string
	QueryString string
	Headers     httpparser.Headers
	ScriptPath  string
	ServerName  string
	ServerPort  int
	RemoteAddr  string
}

// Start forks the interpreter (or the script directly, if no interpreter is
// configured) against directive, wiring its stdin/stdout into the reactor.
// maxOutput bounds the accumulated stdout: once crossed, the child is
// killed and a 500 synthesized rather than letting an unbounded CGI script
// grow the accumulator forever.
func (o *Orchestrator) Start(clientFD int, directive *response.CGIDirective, body []byte, env Env, sink Sink, maxOutput int64) error {
	inRead, inWrite, err := os.Pipe()
	if err != nil {
		return errors.Wrap(err, "cgi: create stdin pipe")
	}
	outRead, outWrite, err := os.Pipe()
	if err != nil {
		inRead.Close()
		inWrite.Close()
		return errors.Wrap(err, "cgi: create stdout pipe")
	}

	name := directive.InterpreterPath
	args := []string{directive.ScriptPath}
	if name == "" {
		name = directive.ScriptPath
		args = nil
	}
	cmd := exec.Command(name, args...)
	cmd.Dir = filepath.Dir(directive.ScriptPath)
	cmd.Stdin = inRead
	cmd.Stdout = outWrite
	cmd.Stderr = nil
	cmd.Env = buildEnviron(env, len(body))
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		inRead.Close()
		inWrite.Close()
		outRead.Close()
		outWrite.Close()
		return errors.Wrap(err, "cgi: fork/exec failed")
	}
	// The child owns these ends now; the parent must not keep them open or
	// it will never observe EOF.
	inRead.Close()
	outWrite.Close()

	if err := unix.SetNonblock(int(inWrite.Fd()), true); err != nil {
		o.abort(cmd, inWrite, outRead)
		return errors.Wrap(err, "cgi: set stdin non-blocking")
	}
	if err := unix.SetNonblock(int(outRead.Fd()), true); err != nil {
		o.abort(cmd, inWrite, outRead)
		return errors.Wrap(err, "cgi: set stdout non-blocking")
	}

	st := &runState{
		pid:         cmd.Process.Pid,
		stdinFD:     int(inWrite.Fd()),
		stdoutFD:    int(outRead.Fd()),
		pendingBody: body,
		maxOutput:   maxOutput,
		cmd:         cmd,
		log:         o.log.WithField("pid", cmd.Process.Pid).WithField("script", directive.ScriptPath),
	}

	o.sinks[clientFD] = sink
	o.state[clientFD] = st
	o.pipes[st.stdoutFD] = clientFD
	if err := o.mux.Register(st.stdoutFD, true, false); err != nil {
		o.reap(st)
		o.teardown(clientFD)
		return errors.Wrap(err, "cgi: register stdout pipe")
	}

	if len(body) > 0 {
		o.pipes[st.stdinFD] = clientFD
		if err := o.mux.Register(st.stdinFD, false, true); err != nil {
			o.reap(st)
			o.teardown(clientFD)
			return errors.Wrap(err, "cgi: register stdin pipe")
		}
	} else {
		unix.Close(st.stdinFD)
		st.stdinFD = -1
	}

	st.log.Debug("cgi: started")
	return nil
}

func (o *Orchestrator) abort(cmd *exec.Cmd, files ...*os.File) {
	for _, f := range files {
		f.Close()
	}
	if cmd.Process != nil {
		_ = cmd.Process.Kill()
		_, _ = cmd.Process.Wait()
	}
}

// OwnerOf resolves a pipe fd the reactor observed readiness on back to the
// client fd that owns it.
func (o *Orchestrator) OwnerOf(pipeFD int) (int, bool) {
	clientFD, ok := o.pipes[pipeFD]
	return clientFD, ok
}

// OnWritable pumps pending request body into the child's stdin. When
// exhausted, it unregisters and closes the input pipe, signalling EOF.
func (o *Orchestrator) OnWritable(clientFD int) {
	st, ok := o.state[clientFD]
	if !ok || st.stdinFD < 0 {
		return
	}
	for len(st.pendingBody) > 0 {
		n, err := unix.Write(st.stdinFD, st.pendingBody)
		if n > 0 {
			st.pendingBody = st.pendingBody[n:]
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			st.log.WithError(err).Warn("cgi: stdin write failed")
			break
		}
		if n == 0 {
			break
		}
	}
	o.closeStdin(clientFD, st)
}

func (o *Orchestrator) closeStdin(clientFD int, st *runState) {
	if st.stdinFD < 0 {
		return
	}
	delete(o.pipes, st.stdinFD)
	o.mux.Unregister(st.stdinFD)
	unix.Close(st.stdinFD)
	st.stdinFD = -1
}

// OnReadable appends newly available stdout bytes to the accumulator. A
// zero-length read means EOF: reap the child and finalize. If the accumulator crosses the
// run's maxOutput bound first, the child is killed and the run fails with
// 500 instead of growing the accumulator without limit.
func (o *Orchestrator) OnReadable(clientFD int) {
	st, ok := o.state[clientFD]
	if !ok {
		return
	}
	buf := make([]byte, 64*1024)
	for {
		n, err := unix.Read(st.stdoutFD, buf)
		if n > 0 {
			st.accumulator = append(st.accumulator, buf[:n]...)
			if int64(len(st.accumulator)) > st.maxOutput {
				st.log.Warn("cgi: output exceeded body-size bound, killing child")
				o.killForOverflow(clientFD, st)
				return
			}
		}
		if err != nil {
			if err == unix.EAGAIN || err == unix.EWOULDBLOCK {
				return
			}
			break
		}
		if n == 0 {
			o.reap(st)
			o.finalize(clientFD)
			return
		}
	}
}

// killForOverflow terminates a run whose output crossed maxOutput and
// synthesizes 500, bypassing finalize's normal document-response parsing
// since the accumulated bytes are no longer trustworthy as a whole response.
func (o *Orchestrator) killForOverflow(clientFD int, st *runState) {
	sink := o.sinks[clientFD]
	o.reap(st)
	o.teardown(clientFD)
	if sink != nil {
		sink.FailCGI(500)
	}
}

// OnHangup handles a hangup on the output side: close it, reap the child
// (SIGKILL + non-blocking wait so the reactor never stalls), and finalize.
func (o *Orchestrator) OnHangup(clientFD int) {
	st, ok := o.state[clientFD]
	if !ok {
		return
	}
	if st.stdoutFD >= 0 {
		delete(o.pipes, st.stdoutFD)
		o.mux.Unregister(st.stdoutFD)
		unix.Close(st.stdoutFD)
		st.stdoutFD = -1
	}
	o.reap(st)
	o.finalize(clientFD)
}

// reap kills and collects the child without ever blocking the reactor.
// SIGKILL usually makes the child exit
// before the caller returns from Signal, so a single WNOHANG wait reaps it
// immediately; the rare child still dying under load falls to
// startBackgroundReaper instead of stalling here.
func (o *Orchestrator) reap(st *runState) {
	if st.cmd.Process == nil {
		return
	}
	pid := st.cmd.Process.Pid
	_ = st.cmd.Process.Signal(syscall.SIGKILL)
	var ws syscall.WaitStatus
	if wpid, err := syscall.Wait4(pid, &ws, syscall.WNOHANG, nil); err == nil && wpid == pid {
		return
	}
	startBackgroundReaper()
}

var reaperOnce sync.Once

// startBackgroundReaper launches, once per process, the single goroutine
// that collects any child reap missed its immediate WNOHANG check on (one
// still dying under SIGKILL, or one whose hangup event was coalesced away).
// It never reports back to the reactor or an individual CGI run (the exit
// status of a killed child is already discarded by finalize), so it carries
// none of the cross-goroutine synchronization the reactor's single-threaded
// design avoids on the request/response path.
func startBackgroundReaper() {
	reaperOnce.Do(func() {
		go func() {
			for {
				var ws syscall.WaitStatus
				_, err := syscall.Wait4(-1, &ws, 0, nil)
				if err != nil {
					if err == syscall.EINTR {
						continue
					}
					time.Sleep(time.Second)
				}
			}
		}()
	})
}

func (o *Orchestrator) finalize(clientFD int) {
	st, ok := o.state[clientFD]
	if !ok {
		return
	}
	sink := o.sinks[clientFD]
	o.teardown(clientFD)

	if len(st.accumulator) == 0 {
		if sink != nil {
			sink.FailCGI(500)
		}
		return
	}
	resp := parseDocumentResponse(st.accumulator)
	if sink != nil {
		sink.DeliverCGIResponse(resp)
	}
}

// Cancel tears down an in-flight CGI run when the owning connection closes
// mid-CGI.
func (o *Orchestrator) Cancel(clientFD int) {
	st, ok := o.state[clientFD]
	if !ok {
		return
	}
	o.reap(st)
	o.teardown(clientFD)
}

func (o *Orchestrator) teardown(clientFD int) {
	st, ok := o.state[clientFD]
	if !ok {
		return
	}
	if st.stdinFD >= 0 {
		delete(o.pipes, st.stdinFD)
		o.mux.Unregister(st.stdinFD)
		unix.Close(st.stdinFD)
	}
	if st.stdoutFD >= 0 {
		delete(o.pipes, st.stdoutFD)
		o.mux.Unregister(st.stdoutFD)
		unix.Close(st.stdoutFD)
	}
	delete(o.state, clientFD)
	delete(o.sinks, clientFD)
}
