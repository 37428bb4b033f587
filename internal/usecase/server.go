// Package usecase wires message parsing, routing, and dialing into the
// connection lifecycle engine and the control surface that operates it.
package usecase

import (
	"sync"
	"sync/atomic"

	"github.com/StartiOne/upstream-proxy/internal/dial"
	"github.com/StartiOne/upstream-proxy/internal/domain"
	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
)

// Server holds the proxy's process-wide mutable state: the active
// flag, the route configuration, the interceptor pipeline, the
// resolver override, the error callbacks, and the connection tracker.
// Reads happen on every accepted connection;
// writes happen rarely from control operations, so state is held behind
// atomics and per-field read-write locks rather than a single coarse
// lock.
type Server struct {
	active atomic.Bool

	configMu sync.RWMutex
	config   []domain.RouteEntry
	table    atomic.Pointer[domain.RouteTable]

	resolverMu sync.RWMutex
	resolver   domain.Resolver // nil means "use the default resolver over table"

	interceptors domain.InterceptorPipeline

	callbacksMu sync.RWMutex
	callbacks   domain.Callbacks

	tracker domain.Tracker
	dialer  *dial.Dialer
	logger  domain.Logger
}

// New creates an inactive Server (GetStatus returns Passive until Start
// is called) with an empty route table and no callbacks.
func New(tracker domain.Tracker, dialer *dial.Dialer, logger domain.Logger) *Server {
	s := &Server{tracker: tracker, dialer: dialer, logger: logger}
	s.table.Store(domain.BuildRouteTable(nil))
	return s
}

// Start flips the active flag on. It does not itself open a listener;
// pair it with Serve.
func (s *Server) Start() {
	s.active.Store(true)
}

// Stop flips the active flag off. Connections already being serviced by
// Serve are left running; only future accepts are turned away with 503.
func (s *Server) Stop() {
	s.active.Store(false)
}

// GetStatus reports whether the server is currently accepting
// connections for real (Active) or turning them away with 503 (Passive).
func (s *Server) GetStatus() domain.Status {
	if s.active.Load() {
		return domain.Active
	}
	return domain.Passive
}

// GetConfig returns the route entries most recently installed by
// SetConfig, in the shape they were supplied (hostname groups intact).
func (s *Server) GetConfig() []domain.RouteEntry {
	s.configMu.RLock()
	defer s.configMu.RUnlock()
	out := make([]domain.RouteEntry, len(s.config))
	copy(out, s.config)
	return out
}

// SetConfig atomically replaces the route table built from entries.
// Construction cannot fail (duplicate hostnames resolve last-entry-wins),
// so this always succeeds; it returns error to satisfy the control
// surface's "catch failures, return status" contract for future
// stricter resolvers.
func (s *Server) SetConfig(entries []domain.RouteEntry) error {
	s.configMu.Lock()
	s.config = entries
	s.configMu.Unlock()
	s.table.Store(domain.BuildRouteTable(entries))
	return nil
}

// GetRoutes returns a snapshot of the currently active hostname ->
// endpoint bindings (the flattened form of GetConfig).
func (s *Server) GetRoutes() map[string]domain.Endpoint {
	return s.table.Load().Snapshot()
}

// SetRouteResolver installs r in place of the default table-backed
// resolver. Passing nil restores the default.
func (s *Server) SetRouteResolver(r domain.Resolver) {
	s.resolverMu.Lock()
	s.resolver = r
	s.resolverMu.Unlock()
}

func (s *Server) resolve(msg *httpmsg.Message) (domain.Endpoint, bool) {
	s.resolverMu.RLock()
	r := s.resolver
	s.resolverMu.RUnlock()
	if r != nil {
		return r(msg)
	}
	return domain.DefaultResolver(s.table.Load())(msg)
}

// GetCallbacks returns a copy of the currently installed error callbacks.
func (s *Server) GetCallbacks() domain.Callbacks {
	s.callbacksMu.RLock()
	defer s.callbacksMu.RUnlock()
	out := make(domain.Callbacks, len(s.callbacks))
	for k, v := range s.callbacks {
		out[k] = v
	}
	return out
}

// SetCallbacks atomically replaces the server's status-code callbacks.
func (s *Server) SetCallbacks(cb domain.Callbacks) error {
	s.callbacksMu.Lock()
	s.callbacks = cb
	s.callbacksMu.Unlock()
	return nil
}

func (s *Server) callbackFor(code int) domain.ErrorCallback {
	s.callbacksMu.RLock()
	defer s.callbacksMu.RUnlock()
	return s.callbacks[code]
}

// AddRequestInterceptor appends t to the request-side pipeline.
func (s *Server) AddRequestInterceptor(t domain.Transform) {
	s.interceptors.Request.Append(t)
}

// AddResponseInterceptor appends t to the response-side pipeline.
func (s *Server) AddResponseInterceptor(t domain.Transform) {
	s.interceptors.Response.Append(t)
}

// DisconnectClients force-closes every tracked connection charged to
// host, returning how many were closed.
func (s *Server) DisconnectClients(host string) int {
	return s.tracker.CloseHost(host)
}

// DisconnectAllClients force-closes every tracked connection.
func (s *Server) DisconnectAllClients() int {
	return s.tracker.CloseAll()
}
