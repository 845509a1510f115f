package events

import (
	"context"
	"sync"

	"github.com/pitabwire/util"
	"github.com/rs/xid"

	"github.com/fixlocal/appcore/workerpool"
)

// Handler consumes an emitted event. Handlers must not assume which
// goroutine they run on; dispatch may be asynchronous.
type Handler func(ctx context.Context, payload any)

// Manager is a small in-process pub/sub mechanism. State holders emit
// named events when they change; consumers such as a UI layer subscribe
// instead of polling.
type Manager interface {
	// Subscribe registers a handler for an event name and returns a
	// subscription id usable with Unsubscribe.
	Subscribe(name string, handler Handler) string

	// Unsubscribe removes a subscription by id.
	Unsubscribe(id string)

	// Emit dispatches payload to every handler subscribed to name.
	// Emission never fails; handler panics are logged and contained.
	Emit(ctx context.Context, name string, payload any)
}

type subscription struct {
	name    string
	handler Handler
}

type manager struct {
	pool workerpool.Manager

	mu   sync.RWMutex
	subs map[string]map[string]*subscription // name -> id -> subscription
	ids  map[string]string                   // id -> name
}

// NewManager creates an event manager. When pool is nil dispatch runs on
// the emitting goroutine.
func NewManager(pool workerpool.Manager) Manager {
	return &manager{
		pool: pool,
		subs: make(map[string]map[string]*subscription),
		ids:  make(map[string]string),
	}
}

func (m *manager) Subscribe(name string, handler Handler) string {
	id := xid.New().String()

	m.mu.Lock()
	defer m.mu.Unlock()

	byID, ok := m.subs[name]
	if !ok {
		byID = make(map[string]*subscription)
		m.subs[name] = byID
	}
	byID[id] = &subscription{name: name, handler: handler}
	m.ids[id] = name

	return id
}

func (m *manager) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name, ok := m.ids[id]
	if !ok {
		return
	}
	delete(m.ids, id)
	delete(m.subs[name], id)
	if len(m.subs[name]) == 0 {
		delete(m.subs, name)
	}
}

func (m *manager) Emit(ctx context.Context, name string, payload any) {
	m.mu.RLock()
	handlers := make([]Handler, 0, len(m.subs[name]))
	for _, sub := range m.subs[name] {
		handlers = append(handlers, sub.handler)
	}
	m.mu.RUnlock()

	for _, handler := range handlers {
		m.dispatch(ctx, name, handler, payload)
	}
}

func (m *manager) dispatch(ctx context.Context, name string, handler Handler, payload any) {
	run := func() {
		defer func() {
			if r := recover(); r != nil {
				util.Log(ctx).WithField("name", name).WithField("panic", r).
					Error("event handler panicked")
			}
		}()
		handler(ctx, payload)
	}

	if m.pool == nil {
		run()
		return
	}

	if err := m.pool.Submit(ctx, run); err != nil {
		// Pool saturated or context done; deliver on the emitting goroutine
		// so subscribers never miss a state change.
		util.Log(ctx).WithError(err).WithField("name", name).
			Debug("event dispatch fell back to synchronous delivery")
		run()
	}
}
