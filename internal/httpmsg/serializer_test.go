package httpmsg

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSerializeRequest(t *testing.T) {
	msg := &Message{Method: "GET", URL: "/x", VersionMajor: 1, VersionMinor: 1}
	msg.Headers.Add("Host", "a.example")
	msg.Headers.Add("X-Proxy", "1")

	got := string(Serialize(msg))
	assert.Equal(t, "GET /x HTTP/1.1\r\nhost: a.example\r\nx-proxy: 1\r\n\r\n", got)
}

func TestSerializeResponseDefaultReason(t *testing.T) {
	msg := &Message{StatusCode: 404, VersionMajor: 1, VersionMinor: 1}
	got := string(Serialize(msg))
	assert.Equal(t, "HTTP/1.1 404 Not Found\r\n\r\n", got)
}

func TestSerializeResponsePreservesExplicitReason(t *testing.T) {
	msg := &Message{StatusCode: 200, StatusReason: "Superb", VersionMajor: 1, VersionMinor: 1}
	got := string(Serialize(msg))
	assert.Equal(t, "HTTP/1.1 200 Superb\r\n\r\n", got)
}

func TestErrorResponseCollapsesUnknownCodes(t *testing.T) {
	assert.Equal(t, []byte("HTTP/1.1 404 Not Found\r\n\r\n"), ErrorResponse(404))
	assert.Equal(t, []byte("HTTP/1.1 500 Internal Server Error\r\n\r\n"), ErrorResponse(999))
}
