package httpmsg

import (
	"fmt"
	"strconv"
	"strings"
)

// Serialize converts a structured Message back into wire bytes: a
// request- or status-line, each header line in registration order,
// and the terminating blank line. It never recomputes framing headers
// (Content-Length, Transfer-Encoding) — interceptors that change the
// body are responsible for keeping those consistent.
func Serialize(msg *Message) []byte {
	var b strings.Builder

	if msg.IsRequest() {
		fmt.Fprintf(&b, "%s %s HTTP/%d.%d\r\n", msg.Method, msg.URL, msg.VersionMajor, msg.VersionMinor)
	} else {
		reason := msg.StatusReason
		if reason == "" {
			reason = ReasonPhrase(msg.StatusCode)
		}
		fmt.Fprintf(&b, "HTTP/%d.%d %s %s\r\n", msg.VersionMajor, msg.VersionMinor, strconv.Itoa(msg.StatusCode), reason)
	}

	for _, f := range msg.Headers.Fields() {
		fmt.Fprintf(&b, "%s: %s\r\n", f.Name, f.Value)
	}
	b.WriteString("\r\n")

	return []byte(b.String())
}
