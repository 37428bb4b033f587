// Package transducer implements a streaming transducer: a bidirectional
// byte pump that parses the traffic it carries while
// framing is possible, and falls back to byte-for-byte passthrough once
// a connection has latched into an upgraded, opaque protocol.
package transducer

import (
	"io"
	"sync/atomic"

	"github.com/StartiOne/upstream-proxy/internal/domain"
	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
)

// httpProtocol is the sentinel stored in a ProtocolCell while a
// connection is still being framed as HTTP/1.x.
const httpProtocol = "http"

// ProtocolCell is the per-connection "protocol" flag shared between a
// connection's two Transducers (request-side and response-side). Either
// side may latch it away from httpProtocol on a 101 response; from that
// moment both directions stop consulting their parser.
type ProtocolCell struct {
	v atomic.Value
}

// NewProtocolCell returns a cell initialized to the unlatched HTTP state.
func NewProtocolCell() *ProtocolCell {
	c := &ProtocolCell{}
	c.v.Store(httpProtocol)
	return c
}

// IsHTTP reports whether the cell is still in the unlatched state.
func (c *ProtocolCell) IsHTTP() bool {
	return c.v.Load().(string) == httpProtocol
}

// Latch switches the cell to proto (the Upgrade token of the 101
// response that triggered the switch). Latching is one-way: nothing
// ever restores httpProtocol on a live connection.
func (c *ProtocolCell) Latch(proto string) {
	c.v.Store(proto)
}

// HeadersHook is consulted synchronously from inside the transducer's
// OnHeaders event, before anything is written to the sink. The
// request-side hook is where route resolution and the backend dial
// happen: by the time the hook returns, SetSink must have been called
// on success, or the returned error aborts the message and is
// surfaced to Feed's caller.
type HeadersHook func(msg *httpmsg.Message) error

// Transducer is one direction of one proxied connection. Construct one
// per direction with a parser Side matching the traffic it carries
// (client->backend is RequestSide, backend->client is ResponseSide),
// sharing a single ProtocolCell between the pair.
type Transducer struct {
	protocol     *ProtocolCell
	parser       *httpmsg.Parser
	interceptors *domain.InterceptorList
	onHeaders    HeadersHook

	sink io.Writer
	err  error
}

// New creates a Transducer for side, applying transforms from
// interceptors to every framed message before it reaches sink (set
// later via SetSink if not yet known, e.g. on the request side where the
// backend isn't dialed until the first message's headers arrive).
func New(side httpmsg.Side, interceptors *domain.InterceptorList, protocol *ProtocolCell) *Transducer {
	t := &Transducer{protocol: protocol, interceptors: interceptors}
	t.parser = httpmsg.NewParser(side, httpmsg.Callbacks{
		OnHeaders: t.handleHeaders,
		OnBody:    t.handleBody,
	})
	return t
}

// SetSink installs (or replaces) the writer that framed output and
// opaque passthrough bytes are written to. Safe to call from inside a
// HeadersHook.
func (t *Transducer) SetSink(w io.Writer) {
	t.sink = w
}

// SetHeadersHook installs the hook invoked on every framed message's
// headers-complete event, before the serialized head is emitted.
func (t *Transducer) SetHeadersHook(hook HeadersHook) {
	t.onHeaders = hook
}

// NoteRequestMethod forwards the most recently framed request's method
// to the underlying parser, so a response-side transducer can apply
// HEAD's "no body regardless of headers" rule.
func (t *Transducer) NoteRequestMethod(method string) {
	t.parser.NoteRequestMethod(method)
}

// Feed advances the transducer with the next chunk read off the wire.
// In opaque mode it writes data through untouched. In framed mode it
// feeds the parser, whose events drive interceptor application, the
// headers hook, and serialized/raw output.
func (t *Transducer) Feed(data []byte) error {
	if !t.protocol.IsHTTP() {
		_, err := t.sink.Write(data)
		return err
	}

	t.err = nil
	rest, err := t.parser.Feed(data)
	if err != nil {
		return err
	}
	if t.err != nil {
		return t.err
	}
	if len(rest) > 0 {
		// The parser stopped mid-read on an upgrade latch;
		// anything left over never goes through the parser again.
		if !t.protocol.IsHTTP() {
			if _, werr := t.sink.Write(rest); werr != nil {
				return werr
			}
		}
	}
	return nil
}

// Flush reports any bytes still buffered for an incomplete head when
// the connection's read side reaches EOF, so the caller can forward
// them verbatim instead of silently dropping them.
func (t *Transducer) Flush() []byte {
	if !t.protocol.IsHTTP() {
		return nil
	}
	return t.parser.Flush()
}

func (t *Transducer) handleHeaders(msg *httpmsg.Message) {
	t.interceptors.Apply(msg)

	if t.onHeaders != nil {
		if err := t.onHeaders(msg); err != nil {
			t.err = err
			t.parser.RequestStop()
			return
		}
	}

	if t.sink != nil {
		if _, err := t.sink.Write(httpmsg.Serialize(msg)); err != nil {
			t.err = err
			t.parser.RequestStop()
			return
		}
	}

	if msg.IsUpgradeResponse() {
		t.protocol.Latch(msg.Upgrade)
		t.parser.RequestStop()
	}
}

func (t *Transducer) handleBody(chunk []byte) {
	if t.err != nil || t.sink == nil {
		return
	}
	if _, err := t.sink.Write(chunk); err != nil {
		t.err = err
	}
}
