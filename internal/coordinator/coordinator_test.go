package coordinator

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nginx-go/httpd/internal/config"
)

func TestGroupByAddrMergesSharedEndpoints(t *testing.T) {
	a := &config.ServerConfig{Host: "0.0.0.0", Port: 80, ServerNames: []string{"a.test"}}
	b := &config.ServerConfig{Host: "0.0.0.0", Port: 80, ServerNames: []string{"b.test"}}
	c := &config.ServerConfig{Host: "127.0.0.1", Port: 8080}

	eps := groupByAddr([]*config.ServerConfig{a, b, c})
	require.Len(t, eps, 2)

	require.Equal(t, "0.0.0.0", eps[0].host)
	require.Equal(t, 80, eps[0].port)
	require.Len(t, eps[0].candidates, 2)

	require.Equal(t, "127.0.0.1", eps[1].host)
	require.Equal(t, 8080, eps[1].port)
	require.Len(t, eps[1].candidates, 1)
}
