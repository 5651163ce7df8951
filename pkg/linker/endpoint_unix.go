//go:build !windows

package linker

import (
	"errors"
	"net"
	"os"
	"syscall"
)

// socketPath maps a channel name to its rendezvous address. The scheme is a
// de facto ABI: independent implementations interoperate only if they agree
// on it.
func socketPath(channel string) string {
	return "/tmp/" + channel + ".sock"
}

// listenChannel binds the channel's unix socket. A leftover socket file from
// a dead server is removed first so restarting on the same channel works
// without manual cleanup.
func listenChannel(path string) (net.Listener, error) {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	return net.Listen("unix", path)
}

// dialChannel is a single connect attempt.
func dialChannel(path string) (net.Conn, error) {
	return net.Dial("unix", path)
}

// retryable reports whether a dial failure means the server has not bound
// yet, which the connect backoff loop should wait out.
func retryable(err error) bool {
	return errors.Is(err, syscall.ENOENT) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		os.IsNotExist(err)
}

// removeArtifact unlinks the server's socket file.
func removeArtifact(path string) {
	_ = os.Remove(path)
}
