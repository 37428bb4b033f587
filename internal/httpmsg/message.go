// Package httpmsg implements the proxy's HTTP/1.x message model: a
// structured message value, an incremental parser that frames such
// messages out of arbitrary byte chunks, and a serializer that turns a
// (possibly intercepted) message back into wire bytes.
package httpmsg

import (
	"strings"

	"golang.org/x/net/http/httpguts"
)

// HeaderField is a single header occurrence, in the order it was seen.
type HeaderField struct {
	Name  string // normalized to lowercase
	Value string // preserved verbatim
}

// Headers is an ordered, case-insensitive multi-association of header
// name to value. Duplicate headers retain every occurrence, in input
// order; iteration order matches registration order.
type Headers struct {
	fields []HeaderField
}

// Add appends a header occurrence, normalizing name to lowercase.
func (h *Headers) Add(name, value string) {
	h.fields = append(h.fields, HeaderField{Name: strings.ToLower(name), Value: value})
}

// Get returns the first value registered for name, case-insensitively.
func (h *Headers) Get(name string) (string, bool) {
	name = strings.ToLower(name)
	for _, f := range h.fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return "", false
}

// Values returns every value registered for name, in registration order.
func (h *Headers) Values(name string) []string {
	name = strings.ToLower(name)
	var out []string
	for _, f := range h.fields {
		if f.Name == name {
			out = append(out, f.Value)
		}
	}
	return out
}

// Set replaces all existing occurrences of name with a single value,
// preserving the position of the first existing occurrence (or
// appending if none existed). Used by interceptors that want
// replace-in-place semantics rather than append semantics.
func (h *Headers) Set(name, value string) {
	name = strings.ToLower(name)
	for i, f := range h.fields {
		if f.Name == name {
			h.fields[i].Value = value
			h.removeAllExcept(name, i)
			return
		}
	}
	h.Add(name, value)
}

func (h *Headers) removeAllExcept(name string, keep int) {
	out := h.fields[:0:0]
	for i, f := range h.fields {
		if f.Name == name && i != keep {
			continue
		}
		out = append(out, f)
	}
	h.fields = out
}

// Del removes every occurrence of name.
func (h *Headers) Del(name string) {
	name = strings.ToLower(name)
	out := h.fields[:0:0]
	for _, f := range h.fields {
		if f.Name != name {
			out = append(out, f)
		}
	}
	h.fields = out
}

// Fields returns the ordered list of header occurrences.
func (h *Headers) Fields() []HeaderField {
	return h.fields
}

// HasToken reports whether name's values, taken as a comma-separated
// token list per RFC 7230, contain token case-insensitively. Used for
// headers such as Connection, where "Connection: keep-alive, Upgrade"
// must match "upgrade".
func (h *Headers) HasToken(name, token string) bool {
	return httpguts.HeaderValuesContainsToken(h.Values(name), token)
}

// Message is the structured HTTP/1.x message the parser emits and the
// serializer consumes. Exactly one of {Method, StatusCode} is
// populated: Method+URL on the request side, StatusCode+StatusReason
// on the response side.
type Message struct {
	VersionMajor int
	VersionMinor int

	// Request side.
	Method string
	URL    string

	// Response side.
	StatusCode   int
	StatusReason string

	Headers Headers

	// Upgrade carries the Upgrade: token when present (e.g.
	// "websocket"); empty when the message does not request/confirm a
	// protocol upgrade.
	Upgrade string

	// KeepAliveHint reflects whether the connection should remain open
	// per the message's own framing (HTTP/1.1 default-keep-alive vs.
	// explicit Connection: close). It is informational only; the
	// transducer does not act on it directly.
	KeepAliveHint bool
}

// IsRequest reports whether this message is a request (as opposed to a
// response).
func (m *Message) IsRequest() bool {
	return m.Method != ""
}

// IsUpgradeResponse reports whether this message is a 101 Switching
// Protocols response carrying an Upgrade token.
func (m *Message) IsUpgradeResponse() bool {
	return !m.IsRequest() && m.StatusCode == 101 && m.Upgrade != ""
}

// Host returns the virtual host extracted from the Host header, with
// any ":port" suffix stripped. Empty if no Host header is present.
func (m *Message) Host() string {
	v, ok := m.Headers.Get("host")
	if !ok {
		return ""
	}
	if i := strings.IndexByte(v, ':'); i >= 0 {
		return v[:i]
	}
	return v
}
