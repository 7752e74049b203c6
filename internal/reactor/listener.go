package reactor

import (
	"github.com/pkg/errors"
	"golang.org/x/sys/unix"
)

// Listener is a bound, listening, non-blocking TCP endpoint.
type Listener struct {
	FD   int
	Host string
	Port int
}

// Bind creates a non-blocking TCP listener with address reuse enabled, at
// the raw fd level so the reactor can register it directly.
func Bind(host string, port, backlog int) (*Listener, error) {
	fd, err := unix.Socket(unix.AF_INET, unix.SOCK_STREAM|unix.SOCK_NONBLOCK, 0)
	if err != nil {
		return nil, errors.Wrap(err, "reactor: socket")
	}
	if err := unix.SetsockoptInt(fd, unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "reactor: SO_REUSEADDR")
	}

	addr, err := resolveIPv4(host)
	if err != nil {
		unix.Close(fd)
		return nil, err
	}
	sa := &unix.SockaddrInet4{Port: port, Addr: addr}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrapf(err, "reactor: bind %s:%d", host, port)
	}
	if backlog <= 0 {
		backlog = 128
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "reactor: listen")
	}
	if port == 0 {
		if sa, err := unix.Getsockname(fd); err == nil {
			if in4, ok := sa.(*unix.SockaddrInet4); ok {
				port = in4.Port
			}
		}
	}
	return &Listener{FD: fd, Host: host, Port: port}, nil
}

func resolveIPv4(host string) ([4]byte, error) {
	var out [4]byte
	if host == "" || host == "0.0.0.0" || host == "*" {
		return out, nil
	}
	ip, err := parseIPv4(host)
	if err != nil {
		return out, errors.Wrapf(err, "reactor: invalid host %q", host)
	}
	return ip, nil
}

func parseIPv4(host string) ([4]byte, error) {
	var out [4]byte
	parts := [4]int{}
	idx := 0
	cur := 0
	digits := 0
	for i := 0; i <= len(host); i++ {
		if i == len(host) || host[i] == '.' {
			if digits == 0 || idx > 3 {
				return out, errors.Errorf("malformed IPv4 address %q", host)
			}
			parts[idx] = cur
			idx++
			cur = 0
			digits = 0
			continue
		}
		c := host[i]
		if c < '0' || c > '9' {
			return out, errors.Errorf("malformed IPv4 address %q", host)
		}
		cur = cur*10 + int(c-'0')
		digits++
	}
	if idx != 4 {
		return out, errors.Errorf("malformed IPv4 address %q", host)
	}
	for i, p := range parts {
		if p < 0 || p > 255 {
			return out, errors.Errorf("malformed IPv4 address %q", host)
		}
		out[i] = byte(p)
	}
	return out, nil
}

// Accept returns a non-blocking client fd and its remote address, or
// unix.EAGAIN if no connection is pending. EINTR and EAGAIN are non-fatal;
// the caller loops until WouldBlock.
func (l *Listener) Accept() (fd int, remoteAddr string, err error) {
	nfd, sa, err := unix.Accept4(l.FD, unix.SOCK_NONBLOCK)
	if err != nil {
		return -1, "", err
	}
	return nfd, formatSockaddr(sa), nil
}

func formatSockaddr(sa unix.Sockaddr) string {
	if in4, ok := sa.(*unix.SockaddrInet4); ok {
		a := in4.Addr
		return ipv4String(a) + ":" + itoa(in4.Port)
	}
	return ""
}

func ipv4String(a [4]byte) string {
	return itoa(int(a[0])) + "." + itoa(int(a[1])) + "." + itoa(int(a[2])) + "." + itoa(int(a[3]))
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [8]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

// Close is idempotent.
func (l *Listener) Close() {
	unix.Close(l.FD)
}
