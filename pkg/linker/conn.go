package linker

import (
	"net"
	"sync"
)

// peerConn is one established byte-stream endpoint. The write mutex keeps
// concurrent sends from interleaving frames; each frame goes out in a single
// Write so stream order matches send order.
type peerConn struct {
	id  uint64
	c   net.Conn
	wmu sync.Mutex
}

func (p *peerConn) writeFrame(frame []byte) error {
	p.wmu.Lock()
	defer p.wmu.Unlock()
	_, err := p.c.Write(frame)
	return err
}

func (p *peerConn) Close() error { return p.c.Close() }
