package reactor

import (
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nginx-go/httpd/internal/config"
)

func newLoopbackServer(t *testing.T, root string) []*config.ServerConfig {
	t.Helper()
	return []*config.ServerConfig{{
		Host:       "127.0.0.1",
		Port:       0,
		Root:       root,
		IndexFiles: []string{"index.html"},
		Default:    true,
	}}
}

// startReactor binds servers on an ephemeral loopback port, runs the loop in
// a goroutine, and returns a dialed client connection.
func startReactor(t *testing.T, servers []*config.ServerConfig) net.Conn {
	t.Helper()

	r, err := New()
	require.NoError(t, err)
	require.NoError(t, r.AddListener("127.0.0.1", 0, 16, servers))

	l := r.Listeners()[0]
	servers[0].Port = l.Port

	done := make(chan struct{})
	go func() {
		_ = r.Run()
		close(done)
	}()
	t.Cleanup(func() {
		r.Stop()
		<-done
	})

	conn, err := net.DialTimeout("tcp", "127.0.0.1:"+portString(l.Port), 2*time.Second)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestReactorServesStaticFileEndToEnd(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644))

	conn := startReactor(t, newLoopbackServer(t, dir))

	_, err := conn.Write([]byte("GET / HTTP/1.1\r\nHost: 127.0.0.1\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 4096)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	n, err := readUntilEOF(conn, buf)
	require.NoError(t, err)
	require.Contains(t, string(buf[:n]), "200")
	require.Contains(t, string(buf[:n]), "hello")
}

func TestReactorKeepAliveSecondRequest(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644))

	conn := startReactor(t, newLoopbackServer(t, dir))

	req := "GET / HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n"

	_, err := conn.Write([]byte(req))
	require.NoError(t, err)
	first := readUntil(t, conn, "hello")
	require.Contains(t, first, "HTTP/1.1 200 OK")

	// Same connection, identical request: keep-alive must have reset the
	// parser and re-armed read interest.
	_, err = conn.Write([]byte(req))
	require.NoError(t, err)
	second := readUntil(t, conn, "hello")
	require.Contains(t, second, "HTTP/1.1 200 OK")
}

// TestReactorPipelinedStaticThenCGI sends two requests in one TCP segment:
// an ordinary static GET followed by a CGI GET. The second must not be
// dispatched until the first response has fully flushed, and the CGI child
// must see the request's query string in its environment.
func TestReactorPipelinedStaticThenCGI(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("hello"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "cgi-bin"), 0o755))

	script := "#!/bin/sh\n" +
		"echo \"Content-Type: text/plain\"\n" +
		"echo \"\"\n" +
		"printf \"query=%s\" \"$QUERY_STRING\"\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cgi-bin", "echo.sh"), []byte(script), 0o755))

	servers := newLoopbackServer(t, dir)
	servers[0].Locations = []*config.LocationConfig{{
		PathPrefix:     "/cgi-bin",
		AllowedMethods: map[string]bool{"GET": true},
		CGIHandlers:    map[string]string{".sh": "/bin/sh"},
	}}

	conn := startReactor(t, servers)

	_, err := conn.Write([]byte(
		"GET / HTTP/1.1\r\nHost: 127.0.0.1\r\n\r\n" +
			"GET /cgi-bin/echo.sh?q=1 HTTP/1.1\r\nHost: 127.0.0.1\r\nConnection: close\r\n\r\n"))
	require.NoError(t, err)

	buf := make([]byte, 64*1024)
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	n, err := readUntilEOF(conn, buf)
	require.NoError(t, err)
	got := string(buf[:n])

	require.Equal(t, 2, strings.Count(got, "HTTP/1.1 200 OK"))
	require.Contains(t, got, "hello")
	require.Contains(t, got, "query=q=1")
	// Responses arrive in request order: the static body strictly before
	// the CGI body.
	require.Less(t, strings.Index(got, "hello"), strings.Index(got, "query=q=1"))
}

// readUntil reads from conn until the accumulated bytes contain want,
// returning everything read so far.
func readUntil(t *testing.T, conn net.Conn, want string) string {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got []byte
	buf := make([]byte, 4096)
	for !strings.Contains(string(got), want) {
		n, err := conn.Read(buf)
		got = append(got, buf[:n]...)
		require.NoError(t, err)
	}
	return string(got)
}

func readUntilEOF(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return total, err
		}
	}
}

func portString(p int) string {
	if p == 0 {
		return "0"
	}
	var out []byte
	for p > 0 {
		out = append([]byte{byte('0' + p%10)}, out...)
		p /= 10
	}
	return string(out)
}
