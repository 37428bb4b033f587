// Package handler adapts a raw TCP listener to the usecase.Server
// connection lifecycle engine.
package handler

import (
	"net"

	"github.com/StartiOne/upstream-proxy/internal/domain"
	"github.com/StartiOne/upstream-proxy/internal/usecase"
)

// ProxyHandler owns the listening socket for one usecase.Server.
type ProxyHandler struct {
	server *usecase.Server
	logger domain.Logger
}

// NewProxyHandler binds handler to server, logging through logger.
func NewProxyHandler(server *usecase.Server, logger domain.Logger) *ProxyHandler {
	return &ProxyHandler{server: server, logger: logger}
}

// ListenAndServe opens a TCP listener on addr and runs the accept loop
// until Accept returns an error. The listener is not exposed to
// callers, so nothing outside this call closes it.
func (h *ProxyHandler) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return h.Serve(ln)
}

// Serve runs the accept loop against an already-open listener. Useful
// for tests that want a specific ephemeral port (net.Listen("tcp",
// "127.0.0.1:0")) or a non-TCP listener.
func (h *ProxyHandler) Serve(ln net.Listener) error {
	if h.logger != nil {
		h.logger.Info("proxy listening", map[string]interface{}{"addr": ln.Addr().String()})
	}
	return h.server.Serve(ln)
}
