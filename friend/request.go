package friend

import (
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
)

// Request is an incoming friend request awaiting a decision.
type Request struct {
	PublicKey engine.PublicKey
	Message   string
	Timestamp time.Time
}

// RequestManager holds incoming friend requests until the user accepts or
// declines them. Requests are keyed by sender public key; a repeated request
// updates the pending entry.
type RequestManager struct {
	mu           sync.RWMutex
	pending      map[engine.PublicKey]*Request
	timeProvider TimeProvider
}

// NewRequestManager creates an empty request manager.
func NewRequestManager() *RequestManager {
	return NewRequestManagerWithTimeProvider(defaultTimeProvider)
}

// NewRequestManagerWithTimeProvider creates a request manager with a custom clock.
func NewRequestManagerWithTimeProvider(tp TimeProvider) *RequestManager {
	if tp == nil {
		tp = defaultTimeProvider
	}
	return &RequestManager{
		pending:      make(map[engine.PublicKey]*Request),
		timeProvider: tp,
	}
}

// AddRequest records a request and reports whether the sender was new.
func (m *RequestManager) AddRequest(pk engine.PublicKey, message string) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.timeProvider.Now()
	if existing, ok := m.pending[pk]; ok {
		existing.Message = message
		existing.Timestamp = now
		logrus.WithFields(logrus.Fields{
			"function":   "AddRequest",
			"public_key": pk.Short(),
		}).Debug("Duplicate friend request updated")
		return *existing, false
	}

	req := &Request{PublicKey: pk, Message: message, Timestamp: now}
	m.pending[pk] = req
	return *req, true
}

// GetPendingRequests returns all pending requests, oldest first.
func (m *RequestManager) GetPendingRequests() []Request {
	m.mu.RLock()
	out := make([]Request, 0, len(m.pending))
	for _, r := range m.pending {
		out = append(out, *r)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].PublicKey.Hex() < out[j].PublicKey.Hex()
	})
	return out
}

// Take removes and returns the pending request from pk.
func (m *RequestManager) Take(pk engine.PublicKey) (Request, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.pending[pk]
	if !ok {
		return Request{}, false
	}
	delete(m.pending, pk)
	return *r, true
}

// Clear removes all pending friend requests.
func (m *RequestManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = make(map[engine.PublicKey]*Request)
}
