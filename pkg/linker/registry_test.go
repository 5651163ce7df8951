package linker

import (
	"io"
	"net"
	"testing"

	"go.uber.org/zap"
)

// drainingPipe returns the registry-side end of a net.Pipe whose far end is
// continuously drained, so broadcast writes do not block.
func drainingPipe(t *testing.T) net.Conn {
	t.Helper()
	near, far := net.Pipe()
	go func() { _, _ = io.Copy(io.Discard, far) }()
	t.Cleanup(func() { near.Close(); far.Close() })
	return near
}

func TestRegistryAddRemove(t *testing.T) {
	r := newRegistry(zap.NewNop())
	pc := r.add(drainingPipe(t))
	if r.size() != 1 {
		t.Fatalf("size after add: %d", r.size())
	}
	if !r.remove(pc.id) {
		t.Fatalf("remove reported missing connection")
	}
	if r.remove(pc.id) {
		t.Fatalf("second remove should be a no-op")
	}
	if r.size() != 0 {
		t.Fatalf("size after remove: %d", r.size())
	}
}

func TestBroadcastBestEffort(t *testing.T) {
	r := newRegistry(zap.NewNop())
	r.add(drainingPipe(t))
	r.add(drainingPipe(t))

	// a dead peer: close both ends so the write fails immediately
	near, far := net.Pipe()
	near.Close()
	far.Close()
	r.add(near)

	if r.size() != 3 {
		t.Fatalf("size before broadcast: %d", r.size())
	}
	delivered := r.broadcast([]byte("frame"))
	if delivered != 2 {
		t.Fatalf("delivered %d, want 2", delivered)
	}
	if r.size() != 2 {
		t.Fatalf("dead connection not dropped: size %d", r.size())
	}

	// the survivors still get the next broadcast
	if delivered := r.broadcast([]byte("frame2")); delivered != 2 {
		t.Fatalf("second broadcast delivered %d, want 2", delivered)
	}
}

func TestCloseAll(t *testing.T) {
	r := newRegistry(zap.NewNop())
	r.add(drainingPipe(t))
	r.add(drainingPipe(t))
	r.closeAll()
	if r.size() != 0 {
		t.Fatalf("size after closeAll: %d", r.size())
	}
}
