// Package bridge connects presentation clients to a session over a local
// WebSocket.
//
// The Hub fans session notifications out to every connected socket. Each
// socket may also send command requests, which the Server executes against
// a Controller and answers on the same socket. A small HTTP surface
// (/healthz, /api/snapshot, /api/friends/{id}/messages) serves clients that
// only need to poll.
package bridge

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient"
)

// sendBufferSize is the number of outbound frames queued per socket before
// the socket is considered too slow and dropped.
const sendBufferSize = 256

// Envelope is the frame written to sockets for notifications.
type Envelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type peer struct {
	id   uuid.UUID
	conn *websocket.Conn
	send chan []byte
}

type directFrame struct {
	peerID uuid.UUID
	frame  []byte
}

// Hub tracks connected sockets and broadcasts to them.
type Hub struct {
	peers      map[uuid.UUID]*peer
	register   chan *peer
	unregister chan *peer
	broadcast  chan []byte
	direct     chan directFrame
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a hub. Run must be started before peers connect.
func NewHub() *Hub {
	return &Hub{
		peers:      make(map[uuid.UUID]*peer),
		register:   make(chan *peer),
		unregister: make(chan *peer),
		broadcast:  make(chan []byte, sendBufferSize),
		direct:     make(chan directFrame, sendBufferSize),
		done:       make(chan struct{}),
	}
}

// Run serves registrations and broadcasts until ctx is done, then closes
// every peer.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for id, p := range h.peers {
				close(p.send)
				delete(h.peers, id)
			}
			h.mu.Unlock()
			return

		case p := <-h.register:
			h.mu.Lock()
			h.peers[p.id] = p
			count := len(h.peers)
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "Hub.Run",
				"peer_id":  p.id,
				"peers":    count,
			}).Info("Presentation client connected")

		case p := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.peers[p.id]; ok {
				delete(h.peers, p.id)
				close(p.send)
			}
			h.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function": "Hub.Run",
				"peer_id":  p.id,
			}).Info("Presentation client disconnected")

		case d := <-h.direct:
			h.mu.Lock()
			if p, ok := h.peers[d.peerID]; ok {
				select {
				case p.send <- d.frame:
				default:
					logrus.WithFields(logrus.Fields{
						"function": "Hub.Run",
						"peer_id":  d.peerID,
					}).Warn("Dropping slow presentation client")
					close(p.send)
					delete(h.peers, d.peerID)
				}
			}
			h.mu.Unlock()

		case frame := <-h.broadcast:
			h.mu.Lock()
			for id, p := range h.peers {
				select {
				case p.send <- frame:
				default:
					logrus.WithFields(logrus.Fields{
						"function": "Hub.Run",
						"peer_id":  id,
					}).Warn("Dropping slow presentation client")
					close(p.send)
					delete(h.peers, id)
				}
			}
			h.mu.Unlock()
		}
	}
}

// Notify implements toxclient.Notifier. It never blocks the session loop:
// when the broadcast queue is full the notification is dropped.
func (h *Hub) Notify(n toxclient.Notification) {
	frame, err := json.Marshal(Envelope{Type: string(n.Kind), Data: n.Payload})
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Hub.Notify",
			"kind":     n.Kind,
			"error":    err.Error(),
		}).Error("Failed to encode notification")
		return
	}

	select {
	case h.broadcast <- frame:
	default:
		logrus.WithFields(logrus.Fields{
			"function": "Hub.Notify",
			"kind":     n.Kind,
		}).Warn("Broadcast queue full, dropping notification")
	}
}

// Len returns the number of connected peers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// sendTo queues frame for a single peer.
func (h *Hub) sendTo(id uuid.UUID, frame []byte) {
	select {
	case h.direct <- directFrame{peerID: id, frame: frame}:
	case <-h.done:
	}
}

// join registers p. It reports false once the hub has stopped.
func (h *Hub) join(p *peer) bool {
	select {
	case h.register <- p:
		return true
	case <-h.done:
		return false
	}
}

// leave unregisters p.
func (h *Hub) leave(p *peer) {
	select {
	case h.unregister <- p:
	case <-h.done:
	}
}
