//go:build windows

package dial

import (
	"context"
	"net"

	"github.com/Microsoft/go-winio"
)

// pipePrefix is the reserved namespace Windows named pipes live under.
const pipePrefix = `\\.\pipe\`

func dialIPC(ctx context.Context, path string) (net.Conn, error) {
	return winio.DialPipeContext(ctx, path)
}

// NormalizeIPCPath ensures path carries the reserved named-pipe prefix
// Windows requires, leaving an already-prefixed path untouched.
func NormalizeIPCPath(path string) string {
	if len(path) >= 2 && path[:2] == `\\` {
		return path
	}
	return pipePrefix + path
}
