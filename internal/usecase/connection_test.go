package usecase

import (
	"bufio"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/StartiOne/upstream-proxy/internal/dial"
	"github.com/StartiOne/upstream-proxy/internal/domain"
	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
	"github.com/StartiOne/upstream-proxy/internal/interface/connection"
)

func newTestServer(t *testing.T, entries []domain.RouteEntry) (*Server, net.Listener) {
	t.Helper()
	s := New(connection.New(), dial.New(), nil)
	require.NoError(t, s.SetConfig(entries))
	s.Start()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go s.Serve(ln)
	t.Cleanup(func() { ln.Close() })
	return s, ln
}

func startEchoBackend(t *testing.T) net.Listener {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go io.Copy(conn, conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln
}

func backendEndpoint(t *testing.T, ln net.Listener) domain.Endpoint {
	t.Helper()
	tcpAddr := ln.Addr().(*net.TCPAddr)
	return domain.Endpoint{Kind: domain.EndpointTCP, Host: "127.0.0.1", Port: tcpAddr.Port}
}

func TestPlainRouteForwardsToBackend(t *testing.T) {
	backend := startEchoBackend(t)
	_, ln := newTestServer(t, []domain.RouteEntry{
		{Hostnames: []string{"a.example"}, Endpoint: backendEndpoint(t, backend)},
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET /x HTTP/1.1\r\nHost: a.example\r\nContent-Length: 0\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "GET /x HTTP/1.1")
}

func TestUnknownHostNoWildcardRespondsWith404(t *testing.T) {
	_, ln := newTestServer(t, []domain.RouteEntry{
		{Hostnames: []string{"a.example"}, Endpoint: domain.Endpoint{Kind: domain.EndpointTCP, Host: "127.0.0.1", Port: 1}},
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: b.example\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\n", string(resp))
}

func TestInactiveServerRespondsWith503(t *testing.T) {
	s, ln := newTestServer(t, nil)
	s.Stop()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	resp, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.1 503 Service Unavailable\r\n\r\n", string(resp))
}

func TestWildcardFallback(t *testing.T) {
	backend := startEchoBackend(t)
	_, ln := newTestServer(t, []domain.RouteEntry{
		{Hostnames: []string{domain.Wildcard}, Endpoint: backendEndpoint(t, backend)},
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: unknown.example\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, "GET / HTTP/1.1")
}

func TestRequestInterceptorInjectsHeader(t *testing.T) {
	backend := startEchoBackend(t)
	s, ln := newTestServer(t, []domain.RouteEntry{
		{Hostnames: []string{"a.example"}, Endpoint: backendEndpoint(t, backend)},
	})
	s.AddRequestInterceptor(func(msg *httpmsg.Message) {
		msg.Headers.Add("X-Proxy", "1")
	})

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: a.example\r\n\r\n"))
	require.NoError(t, err)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	reader := bufio.NewReader(conn)
	var headLines []string
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		if line == "\r\n" {
			break
		}
		headLines = append(headLines, line)
	}
	assert.Contains(t, headLines, "x-proxy: 1\r\n")
}

func TestDialFailureConsultsRegistered503Callback(t *testing.T) {
	dead, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	deadPort := dead.Addr().(*net.TCPAddr).Port
	require.NoError(t, dead.Close())

	s, ln := newTestServer(t, []domain.RouteEntry{
		{Hostnames: []string{"a.example"}, Endpoint: domain.Endpoint{Kind: domain.EndpointTCP, Host: "127.0.0.1", Port: deadPort}},
	})

	called := make(chan string, 1)
	require.NoError(t, s.SetCallbacks(domain.Callbacks{
		503: func(client net.Conn, host string) {
			called <- host
			client.Close()
		},
	}))

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("GET / HTTP/1.1\r\nHost: a.example\r\n\r\n"))
	require.NoError(t, err)

	select {
	case host := <-called:
		assert.Equal(t, "a.example", host)
	case <-time.After(2 * time.Second):
		t.Fatal("registered 503 callback was never invoked")
	}
}

func TestBulkDisconnectClosesOnlyTargetHost(t *testing.T) {
	backendA := startEchoBackend(t)
	backendB := startEchoBackend(t)
	s, ln := newTestServer(t, []domain.RouteEntry{
		{Hostnames: []string{"a.example"}, Endpoint: backendEndpoint(t, backendA)},
		{Hostnames: []string{"b.example"}, Endpoint: backendEndpoint(t, backendB)},
	})

	connect := func(host string) net.Conn {
		c, err := net.Dial("tcp", ln.Addr().String())
		require.NoError(t, err)
		_, err = c.Write([]byte("GET / HTTP/1.1\r\nHost: " + host + "\r\n\r\n"))
		require.NoError(t, err)
		return c
	}

	a1 := connect("a.example")
	defer a1.Close()
	a2 := connect("a.example")
	defer a2.Close()
	b1 := connect("b.example")
	defer b1.Close()

	time.Sleep(100 * time.Millisecond)

	closed := s.DisconnectClients("a.example")
	assert.Equal(t, 2, closed)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, 1, s.tracker.Count())
}
