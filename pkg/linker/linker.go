// Package linker implements a bidirectional event bus between one server
// and one-or-more clients over a local unix domain socket (named pipe on
// Windows). Peers emit named events with a payload; the other side
// dispatches them to registered handlers.
package linker

import (
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"unixlink/pkg/config"
	"unixlink/pkg/protocol"
	"unixlink/pkg/protocol/codec"
)

// SendCallback reports the outcome of one send: the failure (if any) and
// whether delivery was handed to the transport.
type SendCallback func(err error, ok bool)

// readBufSize is the per-read chunk for the accumulation decoder.
const readBufSize = 4096

// closeJoinTimeout bounds how long Close waits for loop goroutines.
const closeJoinTimeout = 2 * time.Second

// Linker is the transport+dispatch facade. One instance lives through one
// Init -> Close cycle; it is not reusable after Close.
//
// All public methods communicate failure through boolean results (plus the
// optional send callback); none of them panic across the API boundary.
type Linker struct {
	cfg    *config.Config
	retry  config.RetryConfig
	log    *zap.Logger
	wcodec codec.Codec

	role    config.Role
	channel string
	path    string

	router *router
	reg    *registry

	running     atomic.Bool
	initialized atomic.Bool
	closed      atomic.Bool

	ln   net.Listener // server side
	conn *peerConn    // client side
	wg   sync.WaitGroup
}

// New constructs an uninitialized Linker from cfg (nil means defaults).
// Call Init (or InitAsync) to bind or connect.
func New(cfg *config.Config) *Linker {
	if cfg == nil {
		cfg = config.Default()
	}
	log := zap.NewNop()
	if cfg.Debug {
		log = zap.L().Named("linker")
	}

	reg := codec.NewRegistry()
	if c, err := codec.CBOR(); err == nil {
		reg.Register(c)
	}
	wc := reg.Get(cfg.ContentType)
	if wc == nil {
		wc = codec.JSON()
	}

	// Hand-built configs may skip Validate; fall back to the default
	// policy rather than a zero-attempt connect loop.
	retry := cfg.Retry
	if retry.MaxAttempts <= 0 || retry.InitialBackoff <= 0 ||
		retry.Multiplier < 1 || retry.MaxBackoff < retry.InitialBackoff {
		retry = config.Default().Retry
	}

	return &Linker{cfg: cfg, retry: retry, log: log, wcodec: wc}
}

// CreateServer builds a Linker and binds it as the server of channel.
func CreateServer(channel string) (*Linker, bool) {
	l := New(nil)
	return l, l.Init(string(config.RoleServer), channel)
}

// CreateClient builds a Linker and connects it as a client of channel.
func CreateClient(channel string) (*Linker, bool) {
	l := New(nil)
	return l, l.Init(string(config.RoleClient), channel)
}

// Init binds (server) or connects with retry (client) on the channel.
// It returns false on invalid configuration or transport failure, leaving
// the Linker uninitialized and safe to retry. A closed Linker cannot be
// re-initialized.
func (l *Linker) Init(role, channel string) bool {
	if l.closed.Load() {
		l.log.Warn("init on closed linker")
		return false
	}
	if l.initialized.Load() {
		l.log.Warn("init on already initialized linker")
		return false
	}

	r, err := config.ParseRole(role)
	if err != nil {
		l.log.Warn("init failed", zap.Error(err))
		return false
	}
	channel = strings.TrimSpace(channel)
	if channel == "" {
		l.log.Warn("init failed: empty channel name")
		return false
	}

	l.role = r
	l.channel = channel
	l.path = socketPath(channel)
	l.router = newRouter(r, l.log)

	switch r {
	case config.RoleServer:
		if !l.startServer() {
			return false
		}
	case config.RoleClient:
		if !l.connectClient() {
			return false
		}
	}

	l.initialized.Store(true)
	return true
}

// InitAsync performs Init without blocking the caller; the single result is
// delivered on the returned channel.
func (l *Linker) InitAsync(role, channel string) <-chan bool {
	ch := make(chan bool, 1)
	go func() { ch <- l.Init(role, channel) }()
	return ch
}

func (l *Linker) startServer() bool {
	ln, err := listenChannel(l.path)
	if err != nil {
		l.log.Warn("bind failed", zap.String("path", l.path), zap.Error(err))
		return false
	}
	l.ln = ln
	l.reg = newRegistry(l.log)
	l.running.Store(true)
	l.log.Info("server listening", zap.String("path", l.path))

	l.wg.Add(1)
	go l.acceptLoop()
	return true
}

func (l *Linker) connectClient() bool {
	delay := l.retry.InitialBackoff
	var lastErr error
	for attempt := 0; attempt < l.retry.MaxAttempts; attempt++ {
		c, err := dialChannel(l.path)
		if err == nil {
			l.conn = &peerConn{c: c}
			l.running.Store(true)
			l.log.Info("client connected", zap.String("path", l.path))
			l.wg.Add(1)
			go l.readLoop(l.conn)
			return true
		}
		lastErr = err
		if !retryable(err) {
			break
		}
		time.Sleep(delay)
		delay = time.Duration(float64(delay) * l.retry.Multiplier)
		if delay > l.retry.MaxBackoff {
			delay = l.retry.MaxBackoff
		}
	}
	l.log.Warn("connect failed", zap.String("path", l.path), zap.Error(lastErr))
	return false
}

// acceptLoop admits client connections until the listener is closed. Each
// accepted connection gets its own read loop goroutine.
func (l *Linker) acceptLoop() {
	defer l.wg.Done()
	for {
		c, err := l.ln.Accept()
		if err != nil {
			if !l.running.Load() || errors.Is(err, net.ErrClosed) {
				return
			}
			l.log.Warn("accept failed", zap.Error(err))
			continue
		}
		pc := l.reg.add(c)
		l.log.Debug("client connected", zap.Uint64("conn", pc.id))
		l.wg.Add(1)
		go l.readLoop(pc)
	}
}

// readLoop feeds raw reads through the frame decoder and dispatches every
// complete envelope. It owns its connection: on disconnect or a fatal
// protocol error it unregisters (server side) and closes it, without
// touching the rest of the linker.
func (l *Linker) readLoop(pc *peerConn) {
	defer l.wg.Done()
	defer func() {
		if l.role == config.RoleServer {
			if l.reg.remove(pc.id) {
				connectionsDropped.Inc()
			}
		}
		_ = pc.Close()
	}()

	dec := protocol.NewDecoder()
	buf := make([]byte, readBufSize)
	for {
		n, err := pc.c.Read(buf)
		if n > 0 {
			_, _ = dec.Write(buf[:n])
			if !l.drainFrames(pc, dec) {
				return
			}
		}
		if err != nil {
			if l.running.Load() && !errors.Is(err, io.EOF) && !errors.Is(err, net.ErrClosed) {
				l.log.Warn("read failed", zap.Uint64("conn", pc.id), zap.Error(err))
			}
			return
		}
	}
}

// drainFrames dispatches every complete frame buffered in dec. It returns
// false on a poisoned stream (oversized frame), which kills the connection;
// a merely malformed envelope is logged and skipped.
func (l *Linker) drainFrames(pc *peerConn, dec *protocol.Decoder) bool {
	for {
		body, err := dec.Next()
		if err != nil {
			l.log.Warn("protocol error, dropping connection",
				zap.Uint64("conn", pc.id), zap.Error(err))
			return false
		}
		if body == nil {
			return true
		}
		framesReceived.Inc()
		env, err := protocol.DecodeEnvelope(l.wcodec, body)
		if err != nil {
			l.log.Warn("discarding malformed frame", zap.Error(err))
			continue
		}
		l.router.dispatch(env.Event, env.Payload)
	}
}

// Send emits one event to the peer (server: broadcast to every connected
// client). The optional callback receives the failure and outcome; the
// boolean result mirrors it. Send never panics and never blocks on a dead
// peer: individual broadcast failures are absorbed by the registry.
func (l *Linker) Send(event string, payload any, cb ...SendCallback) bool {
	err := l.send(event, payload)
	ok := err == nil
	for _, f := range cb {
		if f != nil {
			f(err, ok)
		}
	}
	if err != nil {
		l.log.Warn("send failed", zap.String("event", event), zap.Error(err))
	}
	return ok
}

// SendAsync runs Send on its own goroutine and reports through cb.
func (l *Linker) SendAsync(event string, payload any, cb SendCallback) {
	go func() {
		err := l.send(event, payload)
		if cb != nil {
			cb(err, err == nil)
		}
	}()
}

func (l *Linker) send(event string, payload any) error {
	if !l.running.Load() {
		return errors.New("linker not initialized or already closed")
	}
	env := protocol.Envelope{Event: l.router.outbound(event), Payload: payload}
	frame, err := protocol.EncodeFrame(l.wcodec, &env)
	if err != nil {
		return err
	}

	if l.role == config.RoleServer {
		n := l.reg.broadcast(frame)
		framesSent.Add(n)
		return nil
	}
	if err := l.conn.writeFrame(frame); err != nil {
		return fmt.Errorf("write to server: %w", err)
	}
	framesSent.Inc()
	return nil
}

// Receive registers a persistent handler for a logical event name. Every
// matching message from the peer invokes it, in registration order relative
// to other handlers for the same event.
func (l *Linker) Receive(event string, h Handler) {
	if h == nil || l.router == nil {
		return
	}
	l.router.subscribe(event, h)
}

// ReceiveOnce registers a handler that fires on the next matching message
// only and is removed atomically at dispatch.
func (l *Linker) ReceiveOnce(event string, h Handler) {
	if h == nil || l.router == nil {
		return
	}
	l.router.subscribeOnce(event, h)
}

// Close shuts the Linker down: stops the accept/read loops, closes every
// connection, releases the socket (unlinking the server's path artifact),
// and discards registered handlers. It is idempotent and irreversible.
func (l *Linker) Close() {
	if !l.closed.CompareAndSwap(false, true) {
		return
	}
	l.running.Store(false)

	if l.ln != nil {
		_ = l.ln.Close()
	}
	if l.conn != nil {
		_ = l.conn.Close()
	}
	if l.reg != nil {
		l.reg.closeAll()
	}
	if l.role == config.RoleServer && l.path != "" {
		removeArtifact(l.path)
	}
	if l.router != nil {
		l.router.reset()
	}
	l.initialized.Store(false)

	// Loops exit once their sockets error out; bound the join anyway so a
	// wedged syscall cannot hang the caller.
	done := make(chan struct{})
	go func() {
		l.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(closeJoinTimeout):
		l.log.Warn("timed out waiting for loops to stop")
	}
	l.log.Info("linker closed", zap.String("channel", l.channel))
}

// Role returns the configured role ("" before Init).
func (l *Linker) Role() string { return string(l.role) }

// Channel returns the channel name ("" before Init).
func (l *Linker) Channel() string { return l.channel }

// IsRunning reports whether the transport loops are live.
func (l *Linker) IsRunning() bool { return l.running.Load() }

// IsInitialized reports whether Init completed and Close has not run.
func (l *Linker) IsInitialized() bool { return l.initialized.Load() }

// Connections reports the number of live client connections (server only).
func (l *Linker) Connections() int {
	if l.reg == nil {
		return 0
	}
	return l.reg.size()
}
