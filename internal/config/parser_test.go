package config

import (
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
# comment
server {
	listen 8080;
	server_name example.com www.example.com;
	root ./www;
	index index.html;
	client_max_body_size 10m;
	error_page 500 502 503 /50x.html;

	location / {
		allowed_methods GET HEAD;
		autoindex on;
	}

	location /upload {
		allowed_methods GET POST;
		upload_store ./uploads;
		client_max_body_size 0;
	}

	location /cgi-bin {
		allowed_methods GET POST;
		cgi_assign .py /usr/bin/python3;
	}

	location /old {
		return 301 /new;
	}
}
`

func TestParseFile(t *testing.T) {
	servers, err := ParseFile(sampleConfig)
	require.NoError(t, err)
	require.Len(t, servers, 1)

	srv := servers[0]
	require.Equal(t, 8080, srv.Port)
	require.ElementsMatch(t, []string{"example.com", "www.example.com"}, srv.ServerNames)
	require.Equal(t, int64(10*1024*1024), srv.ClientMaxBodySize)
	require.Equal(t, "/50x.html", srv.ErrorPages[500])
	require.Equal(t, "/50x.html", srv.ErrorPages[503])
	require.True(t, srv.Default)
	require.Len(t, srv.Locations, 4)

	upload := MatchLocation(srv, "/upload/file.txt")
	require.NotNil(t, upload)
	require.Equal(t, "/upload", upload.PathPrefix)
	require.True(t, upload.ClientMaxBodySize.IsSet())
	require.Equal(t, int64(0), upload.ClientMaxBodySize.Bytes())

	cgi := MatchLocation(srv, "/cgi-bin/s.py")
	require.NotNil(t, cgi)
	require.Equal(t, "/usr/bin/python3", cgi.CGIHandlers[".py"])

	old := MatchLocation(srv, "/old")
	require.NotNil(t, old)
	require.Equal(t, 301, old.Redirect.Code)

	// "location /" matches every URI, so an otherwise unmatched path falls to it.
	fallback := MatchLocation(srv, "/unmatched")
	require.Equal(t, "/", fallback.PathPrefix)
}

func TestMatchLocationLongestPrefixAndBoundary(t *testing.T) {
	srv := &ServerConfig{
		Locations: []*LocationConfig{
			{PathPrefix: "/"},
			{PathPrefix: "/images"},
			{PathPrefix: "/images/thumbs"},
		},
	}

	require.Equal(t, "/images/thumbs", MatchLocation(srv, "/images/thumbs/a.png").PathPrefix)
	require.Equal(t, "/images", MatchLocation(srv, "/images/a.png").PathPrefix)
	// "/imagesxyz" must not match "/images": boundary check.
	require.Equal(t, "/", MatchLocation(srv, "/imagesxyz").PathPrefix)
}

func TestParseFileRejectsBadPort(t *testing.T) {
	_, err := ParseFile(`server { listen 99999; }`)
	require.Error(t, err)
}

func TestMatchServerPrefersServerName(t *testing.T) {
	a := &ServerConfig{Host: "0.0.0.0", Port: 80, ServerNames: []string{"a.test"}, Default: true}
	b := &ServerConfig{Host: "0.0.0.0", Port: 80, ServerNames: []string{"b.test"}}
	servers := []*ServerConfig{a, b}

	require.Same(t, b, MatchServer(servers, "0.0.0.0", 80, "b.test"))
	require.Same(t, a, MatchServer(servers, "0.0.0.0", 80, "unknown.test"))
}
