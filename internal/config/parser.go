package config

import (
	"net"
	"strconv"
	"strings"

	"github.com/docker/go-units"
	"github.com/pkg/errors"
)

// ParseFile tokenizes and parses raw configuration source into the set of
// virtual servers it declares.
func ParseFile(src string) ([]*ServerConfig, error) {
	tokens, err := Tokenize(src)
	if err != nil {
		return nil, err
	}
	root, _, err := parseBlock(tokens, 0)
	if err != nil {
		return nil, err
	}

	var servers []*ServerConfig
	seenDefault := map[string]bool{}
	for _, st := range root.body {
		if st.block == nil || st.block.name != "server" {
			return nil, errors.Errorf("config: only 'server' blocks are allowed at top level (line %d)", stLine(st))
		}
		srv, err := parseServer(*st.block)
		if err != nil {
			return nil, err
		}
		key := srv.Host + ":" + strconv.Itoa(srv.Port)
		if !seenDefault[key] {
			srv.Default = true
			seenDefault[key] = true
		}
		servers = append(servers, srv)
	}
	if len(servers) == 0 {
		return nil, errors.New("config: no server blocks declared")
	}
	return servers, nil
}

func stLine(st statement) int {
	if st.directive != nil {
		return st.directive.line
	}
	return st.block.line
}

func parseServer(b block) (*ServerConfig, error) {
	srv := &ServerConfig{
		Host:       "0.0.0.0",
		Port:       80,
		ErrorPages: map[int]string{},
	}
	for _, st := range b.body {
		if st.block != nil {
			if st.block.name != "location" {
				return nil, errors.Errorf("config: unexpected block %q at line %d", st.block.name, st.block.line)
			}
			loc, err := parseLocation(*st.block)
			if err != nil {
				return nil, err
			}
			srv.Locations = append(srv.Locations, loc)
			continue
		}
		d := st.directive
		if len(d.words) == 0 {
			continue
		}
		name, args := d.words[0], d.words[1:]
		switch name {
		case "listen":
			if len(args) != 1 {
				return nil, errors.Errorf("config: listen takes one argument (line %d)", d.line)
			}
			host, port, err := parseListen(args[0])
			if err != nil {
				return nil, errors.Wrapf(err, "config: line %d", d.line)
			}
			srv.Host, srv.Port = host, port
		case "host":
			if len(args) != 1 {
				return nil, errors.Errorf("config: host takes one argument (line %d)", d.line)
			}
			srv.Host = args[0]
		case "server_name":
			srv.ServerNames = append(srv.ServerNames, args...)
		case "root":
			if len(args) != 1 {
				return nil, errors.Errorf("config: root takes one argument (line %d)", d.line)
			}
			srv.Root = args[0]
		case "index":
			srv.IndexFiles = append(srv.IndexFiles, args...)
		case "client_max_body_size":
			if len(args) != 1 {
				return nil, errors.Errorf("config: client_max_body_size takes one argument (line %d)", d.line)
			}
			n, err := units.RAMInBytes(args[0])
			if err != nil {
				return nil, errors.Wrapf(err, "config: line %d", d.line)
			}
			if n < 0 {
				return nil, errors.Errorf("config: client_max_body_size must be >= 0 (line %d)", d.line)
			}
			srv.ClientMaxBodySize = n
		case "error_page":
			if len(args) < 2 {
				return nil, errors.Errorf("config: error_page needs one or more codes and a path (line %d)", d.line)
			}
			path := args[len(args)-1]
			for _, codeStr := range args[:len(args)-1] {
				code, err := strconv.Atoi(codeStr)
				if err != nil {
					return nil, errors.Wrapf(err, "config: error_page code (line %d)", d.line)
				}
				srv.ErrorPages[code] = path
			}
		default:
			return nil, errors.Errorf("config: unknown server directive %q (line %d)", name, d.line)
		}
	}
	if srv.Port < 1 || srv.Port > 65535 {
		return nil, errors.Errorf("config: invalid port %d", srv.Port)
	}
	if srv.ClientMaxBodySize < 0 {
		return nil, errors.New("config: client_max_body_size must be >= 0")
	}
	return srv, nil
}

func parseListen(arg string) (host string, port int, err error) {
	if h, p, e := net.SplitHostPort(arg); e == nil {
		portN, e2 := strconv.Atoi(p)
		if e2 != nil {
			return "", 0, errors.Errorf("invalid port %q", p)
		}
		return h, portN, nil
	}
	if portN, e := strconv.Atoi(arg); e == nil {
		return "0.0.0.0", portN, nil
	}
	return arg, 80, nil
}

func parseLocation(b block) (*LocationConfig, error) {
	if b.arg == "" || b.arg[0] != '/' {
		return nil, errors.Errorf("config: location path must start with '/' (line %d)", b.line)
	}
	loc := &LocationConfig{
		PathPrefix:  b.arg,
		CGIHandlers: map[string]string{},
	}
	for _, st := range b.body {
		if st.block != nil {
			return nil, errors.Errorf("config: location blocks cannot nest (line %d)", st.block.line)
		}
		d := st.directive
		if len(d.words) == 0 {
			continue
		}
		name, args := d.words[0], d.words[1:]
		switch name {
		case "allowed_methods":
			loc.AllowedMethods = map[string]bool{}
			for _, m := range args {
				m = strings.ToUpper(m)
				if !validMethods[m] {
					return nil, errors.Errorf("config: unknown method %q (line %d)", m, d.line)
				}
				loc.AllowedMethods[m] = true
			}
		case "root":
			if len(args) != 1 {
				return nil, errors.Errorf("config: root takes one argument (line %d)", d.line)
			}
			loc.Root = args[0]
		case "index":
			loc.IndexFiles = append(loc.IndexFiles, args...)
		case "autoindex":
			if len(args) != 1 {
				return nil, errors.Errorf("config: autoindex takes one argument (line %d)", d.line)
			}
			loc.Autoindex = args[0] == "on"
		case "client_max_body_size":
			if len(args) != 1 {
				return nil, errors.Errorf("config: client_max_body_size takes one argument (line %d)", d.line)
			}
			n, err := units.RAMInBytes(args[0])
			if err != nil {
				return nil, errors.Wrapf(err, "config: line %d", d.line)
			}
			loc.ClientMaxBodySize = Limit(n)
		case "upload_store":
			if len(args) != 1 {
				return nil, errors.Errorf("config: upload_store takes one argument (line %d)", d.line)
			}
			loc.UploadPath = args[0]
		case "cgi_assign":
			if len(args) != 2 {
				return nil, errors.Errorf("config: cgi_assign needs extension and interpreter (line %d)", d.line)
			}
			ext := args[0]
			if !strings.HasPrefix(ext, ".") {
				ext = "." + ext
			}
			loc.CGIHandlers[ext] = args[1]
		case "return":
			if len(args) != 2 {
				return nil, errors.Errorf("config: return needs a code and a url (line %d)", d.line)
			}
			code, err := strconv.Atoi(args[0])
			if err != nil {
				return nil, errors.Wrapf(err, "config: return code (line %d)", d.line)
			}
			if code < 300 || code > 399 {
				return nil, errors.Errorf("config: return code must be in [300,399] (line %d)", d.line)
			}
			loc.Redirect = &Redirect{URL: args[1], Code: code}
		default:
			return nil, errors.Errorf("config: unknown location directive %q (line %d)", name, d.line)
		}
	}
	return loc, nil
}

var validMethods = map[string]bool{"GET": true, "HEAD": true, "POST": true, "PUT": true, "DELETE": true}
