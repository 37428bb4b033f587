package usecase

import (
	"context"
	"errors"
	"net"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/StartiOne/upstream-proxy/internal/domain"
	"github.com/StartiOne/upstream-proxy/internal/httpmsg"
	"github.com/StartiOne/upstream-proxy/internal/transducer"
)

const readBufferSize = 32 * 1024

// Serve runs the accept loop against ln until it is closed, servicing
// each connection in its own goroutine. It does not itself flip the
// active flag; call Start (before or after Serve) to begin actually
// admitting connections instead of turning them away with 503.
func (s *Server) Serve(ln net.Listener) error {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return err
		}
		go s.handleConn(conn)
	}
}

// handleConn implements the per-connection lifecycle:
// reject inactive-server connections, frame the first request, resolve
// and dial a backend, then pump bytes bidirectionally through a pair of
// transducers until either side closes or errors.
func (s *Server) handleConn(client net.Conn) {
	corrID := uuid.NewString()

	if s.GetStatus() != domain.Active {
		s.respondError(client, "", &domain.ErrInactive{}, corrID)
		client.Close()
		return
	}

	protocol := transducer.NewProtocolCell()
	reqT := transducer.New(httpmsg.RequestSide, &s.interceptors.Request, protocol)
	respT := transducer.New(httpmsg.ResponseSide, &s.interceptors.Response, protocol)

	var (
		backend net.Conn
		connID  domain.ConnID
		host    string
	)

	reqT.SetHeadersHook(func(msg *httpmsg.Message) error {
		if backend != nil {
			// Only the first request routes and dials; later requests
			// on this connection go to the same backend.
			respT.NoteRequestMethod(msg.Method)
			return nil
		}
		host = msg.Host()
		ep, ok := s.resolve(msg)
		if !ok {
			return &domain.ErrNoRoute{Host: host}
		}
		conn, err := s.dialer.Dial(context.Background(), ep)
		if err != nil {
			return &domain.ErrDialFailed{Host: host, Err: err}
		}
		backend = conn
		connID = s.tracker.Add(client, host)
		reqT.SetSink(backend)
		respT.SetSink(client)
		respT.NoteRequestMethod(msg.Method)
		if s.logger != nil {
			s.logger.Info("connection established", map[string]interface{}{
				"correlation_id": corrID,
				"connection_id":  connID,
				"host":           host,
				"endpoint":       ep.String(),
			})
		}
		return nil
	})

	buf := make([]byte, readBufferSize)
	var handshakeErr error
	for backend == nil {
		n, err := client.Read(buf)
		if err != nil {
			client.Close()
			return
		}
		if ferr := reqT.Feed(buf[:n]); ferr != nil {
			var noRoute *domain.ErrNoRoute
			var dialFailed *domain.ErrDialFailed
			if errors.As(ferr, &noRoute) || errors.As(ferr, &dialFailed) {
				handshakeErr = ferr
			} else {
				handshakeErr = &domain.ErrMalformedRequest{Err: ferr}
			}
			break
		}
	}

	if handshakeErr != nil {
		if s.respondError(client, host, handshakeErr, corrID) {
			return
		}
		client.Close()
		return
	}

	var teardownOnce sync.Once
	teardown := func() {
		teardownOnce.Do(func() {
			s.tracker.Remove(connID)
			client.Close()
			backend.Close()
		})
	}
	defer teardown()

	g := new(errgroup.Group)
	g.Go(func() error {
		err := pump(client, reqT, backend)
		teardown()
		return err
	})
	g.Go(func() error {
		err := pump(backend, respT, client)
		teardown()
		return err
	})
	if err := g.Wait(); err != nil && s.logger != nil {
		s.logger.Debug("connection ended", map[string]interface{}{
			"correlation_id": corrID,
			"connection_id":  connID,
			"host":           host,
			"reason":         err.Error(),
		})
	}
}

// pump reads src until EOF or error, feeding every chunk to t (which
// forwards framed heads, raw body bytes, or, once latched, the entire
// opaque stream to dst). On clean EOF it flushes any bytes the parser
// was still buffering for an incomplete head and forwards them verbatim
// before half-closing dst, so a peer that stops mid-message never loses
// data it already sent.
func pump(src net.Conn, t *transducer.Transducer, dst net.Conn) error {
	buf := make([]byte, readBufferSize)
	for {
		n, err := src.Read(buf)
		if n > 0 {
			if ferr := t.Feed(buf[:n]); ferr != nil {
				return ferr
			}
		}
		if err != nil {
			if tail := t.Flush(); len(tail) > 0 {
				dst.Write(tail)
			}
			closeWrite(dst)
			return nil
		}
	}
}

func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
		return
	}
	conn.Close()
}

// respondError maps a handshake failure to the fixed wire error
// taxonomy, consulting a user callback for 503 if one is registered.
// It reports true when such a callback ran and so owns client; the
// caller must then neither write to nor close client.
func (s *Server) respondError(client net.Conn, host string, err error, corrID string) bool {
	var noRoute *domain.ErrNoRoute
	var dialFailed *domain.ErrDialFailed
	var malformed *domain.ErrMalformedRequest
	var inactive *domain.ErrInactive

	switch {
	case errors.As(err, &noRoute):
		if s.logger != nil {
			s.logger.Info("no route for host", map[string]interface{}{"correlation_id": corrID, "host": host})
		}
		client.Write(httpmsg.ErrorResponse(404))
	case errors.As(err, &dialFailed):
		if cb := s.callbackFor(503); cb != nil {
			cb(client, host)
			return true
		}
		if s.logger != nil {
			s.logger.Error("backend dial failed", err, map[string]interface{}{"correlation_id": corrID, "host": host})
		}
		client.Write(httpmsg.ErrorResponse(503))
	case errors.As(err, &inactive):
		if s.logger != nil {
			s.logger.Info("rejected connection while inactive", map[string]interface{}{"correlation_id": corrID})
		}
		client.Write(httpmsg.ErrorResponse(503))
	case errors.As(err, &malformed):
		if s.logger != nil {
			s.logger.Info("malformed first request", map[string]interface{}{"correlation_id": corrID, "error": err.Error()})
		}
		client.Write(httpmsg.ErrorResponse(400))
	default:
		if s.logger != nil {
			s.logger.Info("unhandled handshake error", map[string]interface{}{"correlation_id": corrID, "error": err.Error()})
		}
		client.Write(httpmsg.ErrorResponse(400))
	}
	return false
}
