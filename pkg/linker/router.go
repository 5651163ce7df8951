package linker

import (
	"sync"

	"go.uber.org/zap"

	"unixlink/pkg/config"
)

// Handler receives one event payload. Handlers run on the connection's read
// goroutine; a panic inside one is recovered, logged, and does not affect
// other handlers or the read loop.
type Handler func(payload any)

// router owns both handler tables and the role-aware event namespacing.
//
// Callers use logical (unprefixed) event names. On the wire every name
// carries the sender's role marker, so a server's send("x") pairs with a
// client's receive("x") and the two directions can never collide. subscribe
// therefore keys by the opposite role's marker: a server only ever receives
// what a client sent.
type router struct {
	role config.Role
	log  *zap.Logger

	mu       sync.Mutex
	handlers map[string][]Handler
	once     map[string][]Handler
}

func newRouter(role config.Role, log *zap.Logger) *router {
	return &router{
		role:     role,
		log:      log,
		handlers: make(map[string][]Handler),
		once:     make(map[string][]Handler),
	}
}

// outbound returns the wire name for an event this peer sends.
func (r *router) outbound(event string) string {
	return r.role.Marker() + "-" + event
}

// inbound returns the wire name this peer receives the event under.
func (r *router) inbound(event string) string {
	return r.role.Opposite().Marker() + "-" + event
}

func (r *router) subscribe(event string, h Handler) {
	name := r.inbound(event)
	r.mu.Lock()
	r.handlers[name] = append(r.handlers[name], h)
	r.mu.Unlock()
}

func (r *router) subscribeOnce(event string, h Handler) {
	name := r.inbound(event)
	r.mu.Lock()
	r.once[name] = append(r.once[name], h)
	r.mu.Unlock()
}

// dispatch runs the handlers registered for a decoded wire event name.
//
// The one-shot list is removed and the persistent list copied inside one
// critical section, then both run outside the lock: a handler that calls
// back into subscribe or send cannot deadlock against dispatch, and a
// one-shot set fires exactly once no matter how many frames race in.
func (r *router) dispatch(event string, payload any) {
	r.mu.Lock()
	oneshots := r.once[event]
	delete(r.once, event)
	var persistent []Handler
	if hs := r.handlers[event]; len(hs) > 0 {
		persistent = make([]Handler, len(hs))
		copy(persistent, hs)
	}
	r.mu.Unlock()

	for _, h := range oneshots {
		r.invoke(event, h, payload)
	}
	for _, h := range persistent {
		r.invoke(event, h, payload)
	}
}

func (r *router) invoke(event string, h Handler, payload any) {
	defer func() {
		if rec := recover(); rec != nil {
			dispatchErrors.Inc()
			r.log.Error("handler panicked",
				zap.String("event", event), zap.Any("panic", rec))
		}
	}()
	h(payload)
}

// reset discards every registered handler. Used by Close; the tables are
// not reusable afterwards by contract.
func (r *router) reset() {
	r.mu.Lock()
	r.handlers = make(map[string][]Handler)
	r.once = make(map[string][]Handler)
	r.mu.Unlock()
}
