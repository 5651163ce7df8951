//go:build windows

package linker

import (
	"errors"
	"net"
	"os"
	"time"

	"github.com/Microsoft/go-winio"
)

func socketPath(channel string) string {
	return `\\.\pipe\` + channel
}

func listenChannel(path string) (net.Listener, error) {
	return winio.ListenPipe(path, nil)
}

func dialChannel(path string) (net.Conn, error) {
	timeout := 2 * time.Second
	return winio.DialPipe(path, &timeout)
}

func retryable(err error) bool {
	// The pipe does not exist until the server calls ListenPipe; a busy
	// pipe also clears up once the server accepts.
	return os.IsNotExist(err) || errors.Is(err, winio.ErrTimeout)
}

func removeArtifact(string) {
	// Named pipes disappear with their last handle; nothing to unlink.
}
