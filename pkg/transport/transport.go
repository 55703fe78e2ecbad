package transport

import (
	"errors"
	"sync"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// Transport errors.
var (
	ErrClosed      = errors.New("transport: closed")
	ErrUnknownConn = errors.New("transport: unknown connection")
	ErrTooLarge    = errors.New("transport: datagram too large")
)

// ConnID identifies one remote endpoint of a transport. IDs are assigned by
// the driver and never reused while the transport is open.
type ConnID uint64

// HostConn is the connection ID a client-side transport reports for its
// single link to the host.
const HostConn ConnID = 1

// EventKind is the type of a transport event.
type EventKind uint8

const (
	EventConnect EventKind = iota
	EventDisconnect
	EventData
)

// String returns the event kind name.
func (k EventKind) String() string {
	switch k {
	case EventConnect:
		return "Connect"
	case EventDisconnect:
		return "Disconnect"
	case EventData:
		return "Data"
	default:
		return "Unknown"
	}
}

// Event is something that happened on a transport since the last Poll.
type Event struct {
	Kind   EventKind
	Conn   ConnID
	Remote string
	Data   []byte
}

// Transport moves raw datagrams between this process and remote endpoints.
// Drivers buffer events from their background goroutines; Poll drains them
// on the caller's goroutine. Send and Poll are safe for concurrent use.
//
// Connect and Disconnect events report remote activity only. Disconnect
// called locally does not produce an event.
type Transport interface {
	// Send queues data for conn. The channel is advisory; datagram drivers
	// send every channel the same way.
	Send(conn ConnID, channel protocol.Channel, data []byte) error

	// Poll returns the next buffered event.
	Poll() (Event, bool)

	// Disconnect closes the link to conn.
	Disconnect(conn ConnID) error

	// Close releases the transport and every link.
	Close() error
}

// queue is the lock-protected hand-off between driver goroutines and Poll.
type queue struct {
	mu     sync.Mutex
	events []Event
	head   int
}

func (q *queue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

func (q *queue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.events) {
		return Event{}, false
	}
	e := q.events[q.head]
	q.events[q.head] = Event{}
	q.head++
	if q.head == len(q.events) {
		q.events = q.events[:0]
		q.head = 0
	}
	return e, true
}

func (q *queue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events) - q.head
}
