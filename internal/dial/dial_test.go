package dial

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StartiOne/upstream-proxy/internal/domain"
)

func TestDialerDialsTCP(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, _ := ln.Accept()
		accepted <- conn
	}()

	host, portStr, err := net.SplitHostPort(ln.Addr().String())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	d := New()
	conn, err := d.Dial(context.Background(), domain.Endpoint{Kind: domain.EndpointTCP, Host: host, Port: port})
	require.NoError(t, err)
	defer conn.Close()

	server := <-accepted
	defer server.Close()
	assert.NotNil(t, server)
}
