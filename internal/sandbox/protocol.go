package sandbox

import (
	"sync"
)

// MessageKind identifies a protocol message
type MessageKind string

const (
	// realm -> host
	MessageSuccess      MessageKind = "success"
	MessageError        MessageKind = "error"
	MessageLog          MessageKind = "log"
	MessageEvent        MessageKind = "event"
	MessageFunctionCall MessageKind = "functionCall"

	// host -> realm
	MessageFunctionResult MessageKind = "functionResult"
	MessageFunctionError  MessageKind = "functionError"
)

// Message is one unit of traffic between host and realm. Every message
// carries the execution it belongs to; callback traffic also carries a call id.
type Message struct {
	Kind        MessageKind `json:"type"`
	ExecutionID string      `json:"executionId"`
	CallID      string      `json:"callId,omitempty"`
	Name        string      `json:"name,omitempty"`
	Args        []any       `json:"args,omitempty"`
	Result      any         `json:"result,omitempty"`
	Error       string      `json:"error,omitempty"`
	Log         *Log        `json:"log,omitempty"`
	Event       *Event      `json:"event,omitempty"`
}

// Port is the host end of a realm's message channel. Realm messages are
// dispatched in arrival order by a single goroutine to every subscriber.
type Port struct {
	inbound chan Message
	deliver func(Message)

	mu        sync.RWMutex
	listeners map[uint64]func(Message)
	nextID    uint64

	done    chan struct{}
	stopped chan struct{}
	once    sync.Once
}

func newPort(buffer int, deliver func(Message)) *Port {
	p := &Port{
		inbound:   make(chan Message, buffer),
		deliver:   deliver,
		listeners: make(map[uint64]func(Message)),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go p.dispatch()
	return p
}

// Subscribe registers a listener for realm messages. The returned function
// removes it; once it returns the listener is guaranteed not to be running.
func (p *Port) Subscribe(fn func(Message)) (unsubscribe func()) {
	p.mu.Lock()
	p.nextID++
	key := p.nextID
	p.listeners[key] = fn
	p.mu.Unlock()

	return func() {
		p.mu.Lock()
		delete(p.listeners, key)
		p.mu.Unlock()
	}
}

// Post sends a host message into the realm
func (p *Port) Post(msg Message) {
	select {
	case <-p.done:
		return
	default:
	}
	p.deliver(msg)
}

// emit queues a realm message for the host. Messages emitted after the port
// closed are dropped.
func (p *Port) emit(msg Message) {
	select {
	case p.inbound <- msg:
	case <-p.done:
	}
}

func (p *Port) dispatch() {
	defer close(p.stopped)
	for {
		select {
		case msg := <-p.inbound:
			p.mu.RLock()
			for _, fn := range p.listeners {
				fn(msg)
			}
			p.mu.RUnlock()
		case <-p.done:
			return
		}
	}
}

func (p *Port) close() {
	p.once.Do(func() {
		close(p.done)
	})
	<-p.stopped
}
