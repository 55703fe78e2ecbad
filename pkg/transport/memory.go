package transport

import (
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/vango-dev/peerlink/pkg/protocol"
)

// DropFunc decides whether an in-memory datagram is lost. conn is the
// client's connection ID at the host; toHost gives the direction.
type DropFunc func(conn ConnID, toHost bool, channel protocol.Channel, data []byte) bool

// MemoryHub connects one host transport to any number of client transports
// inside the process. Delivery is immediate and in order unless a DropFunc
// discards the datagram.
type MemoryHub struct {
	mu      sync.Mutex
	host    *Memory
	clients map[ConnID]*Memory
	nextID  ConnID
	drop    DropFunc
}

// NewMemoryHub creates a hub with its host transport.
func NewMemoryHub() *MemoryHub {
	h := &MemoryHub{clients: make(map[ConnID]*Memory)}
	h.host = &Memory{hub: h, host: true}
	return h
}

// Host returns the host side of the hub.
func (h *MemoryHub) Host() *Memory {
	return h.host
}

// SetDrop installs a loss function. nil delivers everything.
func (h *MemoryHub) SetDrop(fn DropFunc) {
	h.mu.Lock()
	h.drop = fn
	h.mu.Unlock()
}

// Dial creates a client transport linked to the host. Both sides observe a
// Connect event.
func (h *MemoryHub) Dial() (*Memory, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.host.closed {
		return nil, ErrClosed
	}
	h.nextID++
	c := &Memory{hub: h, id: h.nextID}
	h.clients[c.id] = c

	remote := fmt.Sprintf("mem:%d", c.id)
	h.host.q.push(Event{Kind: EventConnect, Conn: c.id, Remote: remote})
	c.q.push(Event{Kind: EventConnect, Conn: HostConn, Remote: "mem:host"})
	return c, nil
}

// Memory is one side of a MemoryHub.
type Memory struct {
	hub    *MemoryHub
	host   bool
	id     ConnID
	closed bool
	q      queue
}

// Pending returns the number of undelivered events.
func (m *Memory) Pending() int {
	return m.q.len()
}

// Send implements Transport.
func (m *Memory) Send(conn ConnID, channel protocol.Channel, data []byte) error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.closed {
		return ErrClosed
	}

	if !m.host && h.clients[m.id] != m {
		return ErrClosed
	}

	var dst *Memory
	link, from := conn, HostConn
	if m.host {
		dst = h.clients[conn]
	} else if conn == HostConn {
		dst = h.host
		link, from = m.id, m.id
	}
	if dst == nil || dst.closed {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	if h.drop != nil && h.drop(link, !m.host, channel, data) {
		return nil
	}
	dst.q.push(Event{Kind: EventData, Conn: from, Data: slices.Clone(data)})
	return nil
}

// Poll implements Transport.
func (m *Memory) Poll() (Event, bool) {
	return m.q.pop()
}

// Disconnect implements Transport. The other side observes a Disconnect
// event.
func (m *Memory) Disconnect(conn ConnID) error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	if m.host {
		c, ok := h.clients[conn]
		if !ok {
			return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
		}
		h.unlink(c, false)
		return nil
	}
	if conn != HostConn || h.clients[m.id] != m {
		return fmt.Errorf("%w: %d", ErrUnknownConn, conn)
	}
	h.unlink(m, true)
	return nil
}

// Close implements Transport. Closing the host disconnects every client.
func (m *Memory) Close() error {
	h := m.hub
	h.mu.Lock()
	defer h.mu.Unlock()
	if m.closed {
		return nil
	}
	if m.host {
		for _, id := range slices.Sorted(maps.Keys(h.clients)) {
			h.unlink(h.clients[id], false)
		}
	} else if h.clients[m.id] == m {
		h.unlink(m, true)
	}
	m.closed = true
	return nil
}

// unlink removes client c and notifies the side that did not initiate.
// Callers hold h.mu.
func (h *MemoryHub) unlink(c *Memory, byClient bool) {
	delete(h.clients, c.id)
	if byClient {
		h.host.q.push(Event{Kind: EventDisconnect, Conn: c.id, Remote: fmt.Sprintf("mem:%d", c.id)})
		return
	}
	c.q.push(Event{Kind: EventDisconnect, Conn: HostConn, Remote: "mem:host"})
	c.closed = true
}
