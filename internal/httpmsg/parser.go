package httpmsg

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMalformed is returned by Feed when the input cannot be framed as
// an HTTP/1.x message.
var ErrMalformed = errors.New("httpmsg: malformed message")

// maxHeadSize bounds how much unparsed head data the parser will
// buffer before giving up; it exists so a peer that never sends a
// terminating CRLFCRLF cannot grow the buffer without limit.
const maxHeadSize = 64 * 1024

type bodyMode int

const (
	bodyModeNone bodyMode = iota
	bodyModeContentLength
	bodyModeChunked
	bodyModeUntilClose
)

type chunkState int

const (
	chunkSize chunkState = iota
	chunkData
	chunkDataCRLF
	chunkTrailer
	chunkDone
)

// Callbacks receives the events a Parser emits while framing a stream
// of HTTP/1.x messages. OnHeaders is invoked exactly once per message,
// when the request/status line and all headers have been framed.
// OnBody is invoked zero or more times with a slice into the buffer
// that was most recently fed (or, when a head spanned several Feed
// calls, into a temporary copy joining the retained head bytes with
// the newly fed data).
type Callbacks struct {
	OnHeaders func(msg *Message)
	OnBody    func(chunk []byte)
}

// Parser incrementally frames a stream of HTTP/1.x messages (all
// requests, or all responses, depending on Side) out of arbitrarily
// chunked input. It retains partial state across Feed calls.
type Parser struct {
	side      Side
	callbacks Callbacks

	headBuf []byte // accumulates bytes until the head terminator is found

	inBody   bool
	mode     bodyMode
	remain   int64 // bodyModeContentLength: bytes left
	cstate   chunkState
	chunkLen int64

	// lastMethodHEAD records whether the most recently noted request
	// method was HEAD, used only when parsing the *response*
	// side's body-framing rules for no-body statuses; the two sides
	// otherwise never share state.
	lastMethodHEAD bool

	// stopped is set by RequestStop from inside an OnHeaders callback to
	// tell Feed to hand back any unconsumed suffix of its input instead
	// of continuing to parse it. Used when a caller latches into opaque
	// passthrough mid-message (a 101 response) and the bytes following
	// the head in the same read must not be touched by this parser.
	stopped bool
}

// RequestStop tells the in-progress Feed call to stop consuming input
// after the callback currently running returns, handing back whatever
// of its argument remains unparsed. Only meaningful when called from
// within an OnHeaders callback.
func (p *Parser) RequestStop() {
	p.stopped = true
}

// Side selects whether a Parser frames requests or responses.
type Side int

const (
	RequestSide Side = iota
	ResponseSide
)

// NewParser creates a Parser for the given side.
func NewParser(side Side, cb Callbacks) *Parser {
	return &Parser{side: side, callbacks: cb}
}

// NoteRequestMethod lets the response-side parser of a connection know
// the method of the request it is the response to, so HEAD's "no body
// regardless of headers" rule can be applied. Request-side parsers
// ignore this.
func (p *Parser) NoteRequestMethod(method string) {
	p.lastMethodHEAD = strings.EqualFold(method, "HEAD")
}

// Feed advances the parser with the next chunk of bytes read off the
// wire. It may invoke OnHeaders and/or OnBody any number of times
// before returning. It returns ErrMalformed if data cannot be framed as
// a well-formed HTTP/1.x head; once that happens the parser must not be
// fed again. If an OnHeaders callback calls RequestStop, Feed stops
// parsing immediately and returns the unconsumed suffix of data as rest
// so the caller can forward it without further framing.
func (p *Parser) Feed(data []byte) (rest []byte, err error) {
	p.stopped = false
	for len(data) > 0 {
		if !p.inBody {
			consumed, head, tail, found, err := scanHead(p.headBuf, data)
			if err != nil {
				return nil, err
			}
			if !found {
				p.headBuf = append(p.headBuf, data...)
				if len(p.headBuf) > maxHeadSize {
					return nil, fmt.Errorf("%w: head exceeds %d bytes", ErrMalformed, maxHeadSize)
				}
				return nil, nil
			}
			msg, err := parseHead(p.side, head)
			if err != nil {
				return nil, err
			}
			p.headBuf = nil
			p.beginBody(msg)
			if p.callbacks.OnHeaders != nil {
				p.callbacks.OnHeaders(msg)
			}
			data = tail
			_ = consumed
			if p.stopped {
				return data, nil
			}
			if !p.inBody {
				// No body at all (e.g. 204): loop again in case data
				// already contains the next message.
				continue
			}
			if len(data) == 0 {
				return nil, nil
			}
		}

		n, done := p.feedBody(data)
		data = data[n:]
		if done {
			p.inBody = false
		}
	}
	return nil, nil
}

// Flush is called on end-of-input (half-close or connection error). If
// any bytes remain buffered for an incomplete head, it returns them as
// a single tail chunk so no data is silently dropped; the caller is
// expected to forward that tail verbatim.
func (p *Parser) Flush() []byte {
	if p.inBody || len(p.headBuf) == 0 {
		return nil
	}
	tail := p.headBuf
	p.headBuf = nil
	return tail
}

func (p *Parser) beginBody(msg *Message) {
	p.cstate = chunkSize
	p.chunkLen = 0

	noBody := !msg.IsRequest() && (msg.StatusCode/100 == 1 || msg.StatusCode == 204 || msg.StatusCode == 304 || p.lastMethodHEAD)
	if noBody {
		p.mode = bodyModeNone
		p.inBody = false
		return
	}

	if te, ok := msg.Headers.Get("transfer-encoding"); ok && strings.Contains(strings.ToLower(te), "chunked") {
		p.mode = bodyModeChunked
		p.inBody = true
		return
	}
	if cl, ok := msg.Headers.Get("content-length"); ok {
		n, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
		if err != nil || n < 0 {
			n = 0
		}
		p.remain = n
		p.mode = bodyModeContentLength
		p.inBody = n > 0
		return
	}
	if msg.IsRequest() {
		p.mode = bodyModeNone
		p.inBody = false
		return
	}
	// Response with neither framing header: body runs until the
	// connection closes.
	p.mode = bodyModeUntilClose
	p.inBody = true
}

// feedBody consumes as much of data as the current body-framing mode
// allows, emitting OnBody callbacks, and reports how many bytes were
// consumed and whether the body (and therefore the message) is complete.
func (p *Parser) feedBody(data []byte) (consumed int, done bool) {
	switch p.mode {
	case bodyModeContentLength:
		n := int64(len(data))
		if n >= p.remain {
			n = p.remain
		}
		if n > 0 && p.callbacks.OnBody != nil {
			p.callbacks.OnBody(data[:n])
		}
		p.remain -= n
		if p.remain == 0 {
			return int(n), true
		}
		return int(n), false
	case bodyModeUntilClose:
		if len(data) > 0 && p.callbacks.OnBody != nil {
			p.callbacks.OnBody(data)
		}
		return len(data), false
	case bodyModeChunked:
		return p.feedChunked(data)
	default:
		return len(data), true
	}
}

func (p *Parser) feedChunked(data []byte) (consumed int, done bool) {
	total := 0
	for total < len(data) {
		rest := data[total:]
		switch p.cstate {
		case chunkSize:
			i := bytes.Index(rest, []byte("\r\n"))
			if i < 0 {
				return total, false
			}
			line := string(rest[:i])
			if semi := strings.IndexByte(line, ';'); semi >= 0 {
				line = line[:semi]
			}
			n, err := strconv.ParseInt(strings.TrimSpace(line), 16, 64)
			if err != nil || n < 0 {
				n = 0
			}
			p.chunkLen = n
			total += i + 2
			if n == 0 {
				p.cstate = chunkTrailer
			} else {
				p.cstate = chunkData
			}
		case chunkData:
			avail := int64(len(rest))
			n := p.chunkLen
			if avail < n {
				n = avail
			}
			if n > 0 && p.callbacks.OnBody != nil {
				p.callbacks.OnBody(rest[:n])
			}
			total += int(n)
			p.chunkLen -= n
			if p.chunkLen == 0 {
				p.cstate = chunkDataCRLF
			} else {
				return total, false
			}
		case chunkDataCRLF:
			if len(rest) < 2 {
				return total, false
			}
			total += 2
			p.cstate = chunkSize
		case chunkTrailer:
			i := bytes.Index(rest, []byte("\r\n"))
			if i < 0 {
				return total, false
			}
			total += i + 2
			if i == 0 {
				p.cstate = chunkDone
				return total, true
			}
		case chunkDone:
			return total, true
		}
	}
	return total, false
}

// scanHead looks for the blank-line head terminator across the
// already-buffered head and the newly fed data, without copying data
// into buffered unless necessary. On success it returns the full head
// (header buffer, data-prefix) concatenated, the remaining unconsumed
// suffix of data (which may be non-empty body bytes), and found=true.
func scanHead(buffered, data []byte) (consumed int, head []byte, rest []byte, found bool, err error) {
	const term = "\r\n\r\n"
	if len(buffered) == 0 {
		if i := bytes.Index(data, []byte(term)); i >= 0 {
			return i + 4, data[:i], data[i+4:], true, nil
		}
		// also guard against a lone "\n\n" terminator for leniency
		if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
			return i + 2, data[:i], data[i+2:], true, nil
		}
		return 0, nil, data, false, nil
	}
	combined := append(append([]byte{}, buffered...), data...)
	if i := bytes.Index(combined, []byte(term)); i >= 0 {
		return i + 4, combined[:i], combined[i+4:], true, nil
	}
	if i := bytes.Index(combined, []byte("\n\n")); i >= 0 {
		return i + 2, combined[:i], combined[i+2:], true, nil
	}
	return 0, nil, data, false, nil
}

func parseHead(side Side, head []byte) (*Message, error) {
	lines := strings.Split(string(head), "\n")
	if len(lines) == 0 {
		return nil, fmt.Errorf("%w: empty head", ErrMalformed)
	}
	startLine := strings.TrimRight(lines[0], "\r")
	msg := &Message{}

	switch side {
	case RequestSide:
		parts := strings.SplitN(startLine, " ", 3)
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w: bad request line %q", ErrMalformed, startLine)
		}
		msg.Method = parts[0]
		msg.URL = parts[1]
		major, minor, err := parseVersion(parts[2])
		if err != nil {
			return nil, err
		}
		msg.VersionMajor, msg.VersionMinor = major, minor
	case ResponseSide:
		parts := strings.SplitN(startLine, " ", 3)
		if len(parts) < 2 {
			return nil, fmt.Errorf("%w: bad status line %q", ErrMalformed, startLine)
		}
		major, minor, err := parseVersion(parts[0])
		if err != nil {
			return nil, err
		}
		msg.VersionMajor, msg.VersionMinor = major, minor
		code, err := strconv.Atoi(parts[1])
		if err != nil {
			return nil, fmt.Errorf("%w: bad status code %q", ErrMalformed, parts[1])
		}
		msg.StatusCode = code
		if len(parts) == 3 {
			msg.StatusReason = parts[2]
		}
	}

	for _, line := range lines[1:] {
		line = strings.TrimRight(line, "\r")
		if line == "" {
			continue
		}
		i := strings.IndexByte(line, ':')
		if i < 0 {
			return nil, fmt.Errorf("%w: bad header line %q", ErrMalformed, line)
		}
		name := strings.TrimSpace(line[:i])
		value := strings.TrimSpace(line[i+1:])
		if name == "" {
			return nil, fmt.Errorf("%w: empty header name", ErrMalformed)
		}
		msg.Headers.Add(name, value)
	}

	if up, ok := msg.Headers.Get("upgrade"); ok {
		isUpgradeResponse := !msg.IsRequest() && msg.StatusCode == 101
		if isUpgradeResponse || msg.Headers.HasToken("connection", "upgrade") {
			msg.Upgrade = up
		}
	}

	msg.KeepAliveHint = !msg.Headers.HasToken("connection", "close") &&
		(msg.VersionMajor > 1 || (msg.VersionMajor == 1 && msg.VersionMinor >= 1) || msg.Headers.HasToken("connection", "keep-alive"))

	return msg, nil
}

func parseVersion(tok string) (major, minor int, err error) {
	const prefix = "HTTP/"
	if !strings.HasPrefix(tok, prefix) {
		return 0, 0, fmt.Errorf("%w: bad version %q", ErrMalformed, tok)
	}
	tok = tok[len(prefix):]
	parts := strings.SplitN(tok, ".", 2)
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("%w: bad version %q", ErrMalformed, tok)
	}
	if len(parts) == 2 {
		minor, err = strconv.Atoi(parts[1])
		if err != nil {
			return 0, 0, fmt.Errorf("%w: bad version %q", ErrMalformed, tok)
		}
	}
	return major, minor, nil
}
