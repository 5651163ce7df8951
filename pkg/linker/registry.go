package linker

import (
	"net"
	"sync/atomic"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// registry tracks the server's live client connections for broadcast and
// cleanup. It holds non-owning references; the read loops own their conns.
type registry struct {
	conns  *xsync.MapOf[uint64, *peerConn]
	nextID atomic.Uint64
	log    *zap.Logger
}

func newRegistry(log *zap.Logger) *registry {
	return &registry{
		conns: xsync.NewMapOf[uint64, *peerConn](),
		log:   log,
	}
}

func (r *registry) add(c net.Conn) *peerConn {
	pc := &peerConn{id: r.nextID.Add(1), c: c}
	r.conns.Store(pc.id, pc)
	activeConnections.Inc()
	return pc
}

// remove drops a connection from the table. Returns false when it was
// already gone, so disconnect cleanup stays idempotent.
func (r *registry) remove(id uint64) bool {
	if _, ok := r.conns.LoadAndDelete(id); !ok {
		return false
	}
	activeConnections.Dec()
	return true
}

func (r *registry) size() int { return r.conns.Size() }

// broadcast writes one frame to every live connection, best-effort. A failed
// writer is dropped and closed without aborting delivery to the rest.
// Returns the number of peers written.
func (r *registry) broadcast(frame []byte) int {
	delivered := 0
	r.conns.Range(func(id uint64, pc *peerConn) bool {
		if err := pc.writeFrame(frame); err != nil {
			r.log.Warn("broadcast write failed, dropping connection",
				zap.Uint64("conn", id), zap.Error(err))
			if r.remove(id) {
				connectionsDropped.Inc()
			}
			_ = pc.Close()
			return true
		}
		delivered++
		return true
	})
	return delivered
}

func (r *registry) closeAll() {
	r.conns.Range(func(id uint64, pc *peerConn) bool {
		r.remove(id)
		_ = pc.Close()
		return true
	})
}
