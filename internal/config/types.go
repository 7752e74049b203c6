// Package config holds the parsed representation of the server's
// configuration file and the tokenizer/parser that builds it from the
// nginx-like grammar described by the wire format.
package config

// Redirect is a location's configured (url, code) redirect target.
type Redirect struct {
	URL  string
	Code int
}

// ListenerSpec identifies one bound, listening TCP endpoint. Immutable once
// the coordinator has bound it.
type ListenerSpec struct {
	Host    string
	Port    int
	Backlog int
}

// MaxBodySize distinguishes "inherit from the enclosing scope" from an
// explicit "no limit" (0), which a plain int collapses.
type MaxBodySize struct {
	set   bool
	bytes int64
}

// NoLimit constructs an explicit, no-inherit "unlimited" body size.
func NoLimit() MaxBodySize { return MaxBodySize{set: true, bytes: 0} }

// Limit constructs an explicit body-size limit in bytes.
func Limit(bytes int64) MaxBodySize { return MaxBodySize{set: true, bytes: bytes} }

// IsSet reports whether this scope set its own client_max_body_size.
func (m MaxBodySize) IsSet() bool { return m.set }

// Bytes returns the configured limit; meaningless unless IsSet.
func (m MaxBodySize) Bytes() int64 { return m.bytes }

// LocationConfig is a URI path-prefix scope within a virtual server.
type LocationConfig struct {
	PathPrefix         string
	Root               string
	IndexFiles         []string
	AllowedMethods     map[string]bool
	Autoindex          bool
	ClientMaxBodySize  MaxBodySize
	CGIHandlers        map[string]string // extension (with leading '.') -> interpreter path
	UploadPath         string
	Redirect           *Redirect
}

// ServerConfig is one virtual host.
type ServerConfig struct {
	Host              string
	Port              int
	ServerNames       []string
	Root              string
	IndexFiles        []string
	ClientMaxBodySize int64
	ErrorPages        map[int]string // status code -> file path
	Locations         []*LocationConfig
	Default           bool
}

// EffectiveLocation is a LocationConfig with unset fields resolved against
// its containing ServerConfig, per the GLOSSARY definition.
type EffectiveLocation struct {
	PathPrefix        string
	Root              string
	IndexFiles        []string
	AllowedMethods    map[string]bool
	Autoindex         bool
	ClientMaxBodySize int64
	CGIHandlers       map[string]string
	UploadPath        string
	Redirect          *Redirect
}

var defaultAllowedMethods = map[string]bool{"GET": true, "HEAD": true}

// Resolve produces the effective location for loc (nil means "no location
// matched: synthesize the server's implicit root location").
func Resolve(srv *ServerConfig, loc *LocationConfig) *EffectiveLocation {
	if loc == nil {
		return &EffectiveLocation{
			PathPrefix:        "/",
			Root:              srv.Root,
			IndexFiles:        srv.IndexFiles,
			AllowedMethods:    defaultAllowedMethods,
			ClientMaxBodySize: srv.ClientMaxBodySize,
		}
	}
	root := loc.Root
	if root == "" {
		root = srv.Root
	}
	index := loc.IndexFiles
	if len(index) == 0 {
		index = srv.IndexFiles
	}
	if len(index) == 0 {
		index = []string{"index.html", "index.htm"}
	}
	methods := loc.AllowedMethods
	if len(methods) == 0 {
		methods = defaultAllowedMethods
	}
	maxBody := srv.ClientMaxBodySize
	if loc.ClientMaxBodySize.IsSet() {
		maxBody = loc.ClientMaxBodySize.Bytes()
	}
	return &EffectiveLocation{
		PathPrefix:        loc.PathPrefix,
		Root:              root,
		IndexFiles:        index,
		AllowedMethods:    methods,
		Autoindex:         loc.Autoindex,
		ClientMaxBodySize: maxBody,
		CGIHandlers:       loc.CGIHandlers,
		UploadPath:        loc.UploadPath,
		Redirect:          loc.Redirect,
	}
}

// MatchLocation resolves the longest matching path_prefix location for uri.
// The prefix must be followed by end-of-string or
// '/' (or be the root "/" prefix itself). Ties are broken by insertion order
// (the first-seen location of the longest length wins).
func MatchLocation(srv *ServerConfig, uri string) *LocationConfig {
	var best *LocationConfig
	for _, l := range srv.Locations {
		p := l.PathPrefix
		if !hasPrefixBoundary(uri, p) {
			continue
		}
		if best == nil || len(p) > len(best.PathPrefix) {
			best = l
		}
	}
	return best
}

func hasPrefixBoundary(uri, prefix string) bool {
	if len(uri) < len(prefix) || uri[:len(prefix)] != prefix {
		return false
	}
	if prefix == "/" {
		return true
	}
	return len(uri) == len(prefix) || uri[len(prefix)] == '/'
}

// MatchServer picks the ServerConfig bound to (host, port) whose
// server_names contains hostHeader, falling back to the (host,port)
// default.
func MatchServer(servers []*ServerConfig, boundHost string, boundPort int, hostHeader string) *ServerConfig {
	var fallback *ServerConfig
	for _, s := range servers {
		if s.Host != boundHost || s.Port != boundPort {
			continue
		}
		if fallback == nil || s.Default {
			fallback = s
		}
		for _, name := range s.ServerNames {
			if name == hostHeader {
				return s
			}
		}
	}
	return fallback
}
