package httpmsg

import "fmt"

// reasonPhrases covers the status codes this proxy can itself emit,
// plus the 101 it must recognize on the way through. Unknown codes
// collapse to 500 Internal Server Error.
var reasonPhrases = map[int]string{
	101: "Switching Protocols",
	200: "OK",
	400: "Bad Request",
	404: "Not Found",
	500: "Internal Server Error",
	502: "Bad Gateway",
	503: "Service Unavailable",
}

// ReasonPhrase returns the IANA reason phrase for code, or the 500
// phrase if code is not one of the fixed set the proxy emits.
func ReasonPhrase(code int) string {
	if p, ok := reasonPhrases[code]; ok {
		return p
	}
	return reasonPhrases[500]
}

// ErrorResponse renders one of the proxy's own error responses:
// "HTTP/1.1 <code> <reason>\r\n\r\n" with no body. Codes outside
// {400,404,500,502,503} collapse to 500.
func ErrorResponse(code int) []byte {
	switch code {
	case 400, 404, 500, 502, 503:
	default:
		code = 500
	}
	return []byte(fmt.Sprintf("HTTP/1.1 %d %s\r\n\r\n", code, ReasonPhrase(code)))
}
