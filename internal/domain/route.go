package domain

import (
	"strconv"

	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
)

// EndpointKind tags which variant an Endpoint holds.
type EndpointKind int

const (
	// EndpointTCP dials Host:Port over TCP.
	EndpointTCP EndpointKind = iota
	// EndpointIPC dials a local IPC socket (a Unix domain socket on
	// POSIX, a named pipe on Windows). Path already carries any
	// OS-specific prefix the platform requires — see internal/dial.
	EndpointIPC
)

// Endpoint is a backend address the proxy can dial: either a TCP
// host:port pair or a local IPC path.
type Endpoint struct {
	Kind EndpointKind
	Host string
	Port int
	Path string
}

func (e Endpoint) String() string {
	if e.Kind == EndpointIPC {
		return "ipc:" + e.Path
	}
	return e.Host + ":" + strconv.Itoa(e.Port)
}

// Wildcard is the route-table key that matches any virtual host with
// no more specific entry.
const Wildcard = "*"

// RouteTable is an immutable snapshot mapping virtual hostname to
// endpoint, built wholesale by BuildRouteTable and replaced wholesale on
// reconfiguration. The zero value is an empty table.
type RouteTable struct {
	entries map[string]Endpoint
}

// RouteEntry is one line of the configuration sequence BuildRouteTable consumes:
// every hostname in Hostnames is bound to the same Endpoint.
type RouteEntry struct {
	Hostnames []string
	Endpoint  Endpoint
}

// BuildRouteTable constructs an immutable RouteTable from a sequence
// of entries. If the same hostname appears in more than one entry, the
// last entry wins rather than rejecting the configuration.
func BuildRouteTable(entries []RouteEntry) *RouteTable {
	m := make(map[string]Endpoint, len(entries))
	for _, e := range entries {
		for _, host := range e.Hostnames {
			m[host] = e.Endpoint
		}
	}
	return &RouteTable{entries: m}
}

// Lookup returns the endpoint bound to host, falling back to the
// wildcard entry if host has no specific binding.
func (t *RouteTable) Lookup(host string) (Endpoint, bool) {
	if t == nil {
		return Endpoint{}, false
	}
	if ep, ok := t.entries[host]; ok {
		return ep, true
	}
	if ep, ok := t.entries[Wildcard]; ok {
		return ep, true
	}
	return Endpoint{}, false
}

// Snapshot returns a copy of the table's host -> endpoint bindings, for
// GetRoutes.
func (t *RouteTable) Snapshot() map[string]Endpoint {
	out := make(map[string]Endpoint, len(t.entries))
	for k, v := range t.entries {
		out[k] = v
	}
	return out
}

// Resolver is a pure function from a parsed request to an
// endpoint-or-none. The default implementation resolves by Host header
// against a RouteTable; callers may install any replacement with the
// same contract via Server.SetRouteResolver.
type Resolver func(msg *httpmsg.Message) (Endpoint, bool)

// DefaultResolver returns a Resolver that looks up the request's Host
// header (colon-and-port stripped) in table, falling back to the
// wildcard entry.
func DefaultResolver(table *RouteTable) Resolver {
	return func(msg *httpmsg.Message) (Endpoint, bool) {
		return table.Lookup(msg.Host())
	}
}
