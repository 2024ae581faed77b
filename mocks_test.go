package toxclient

import (
	"context"
	"errors"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/opd-ai/toxclient/config"
	"github.com/opd-ai/toxclient/engine"
	"github.com/opd-ai/toxclient/engine/sim"
	"github.com/opd-ai/toxclient/factory"
	"github.com/opd-ai/toxclient/messaging"
)

// recorder is a Notifier that keeps every notification. panicOn makes the
// first notification of that kind panic. blockOn makes notifications of
// that kind wait until release is closed.
type recorder struct {
	mu       sync.Mutex
	notes    []Notification
	panicOn  NotificationKind
	panicked bool
	blockOn  NotificationKind
	blocked  chan struct{}
	release  chan struct{}
}

func (r *recorder) Notify(n Notification) {
	r.mu.Lock()
	if r.panicOn != "" && n.Kind == r.panicOn && !r.panicked {
		r.panicked = true
		r.mu.Unlock()
		panic("notifier exploded")
	}
	r.notes = append(r.notes, n)
	block := r.blockOn != "" && n.Kind == r.blockOn
	r.mu.Unlock()
	if block {
		close(r.blocked)
		<-r.release
	}
}

// blockUntilReleased arms the recorder to stall the first notification of
// kind. The stall ends when the test does.
func (r *recorder) blockUntilReleased(t *testing.T, kind NotificationKind) <-chan struct{} {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.blockOn = kind
	r.blocked = make(chan struct{})
	r.release = make(chan struct{})
	t.Cleanup(func() { close(r.release) })
	return r.blocked
}

func (r *recorder) count(kind NotificationKind) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, note := range r.notes {
		if note.Kind == kind {
			n++
		}
	}
	return n
}

func (r *recorder) last(kind NotificationKind) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.notes) - 1; i >= 0; i-- {
		if r.notes[i].Kind == kind {
			return r.notes[i], true
		}
	}
	return Notification{}, false
}

// memStore is an in-memory messaging.Store.
type memStore struct {
	mu       sync.Mutex
	msgs     []messaging.Message
	closed   bool
	closeErr error
	openPath string
}

func (s *memStore) AppendMessage(_ context.Context, contactKey, text, senderKey string, ts time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, messaging.ErrStoreClosed
	}
	id := int64(len(s.msgs) + 1)
	s.msgs = append(s.msgs, messaging.Message{
		ID:         id,
		ContactKey: contactKey,
		SenderKey:  senderKey,
		Text:       text,
		Timestamp:  ts,
	})
	return id, nil
}

func (s *memStore) QueryRecentMessages(_ context.Context, contactKey string, limit int) ([]messaging.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, messaging.ErrStoreClosed
	}
	var out []messaging.Message
	for _, m := range s.msgs {
		if m.ContactKey == contactKey {
			out = append(out, m)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

func (s *memStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return s.closeErr
}

func (s *memStore) messages() []messaging.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]messaging.Message(nil), s.msgs...)
}

func (s *memStore) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeClock is a file.TimeProvider moved by hand.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Since(t time.Time) time.Duration {
	return c.Now().Sub(t)
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// harness wires a Client to a simulated engine, a memStore and a recorder.
type harness struct {
	t       *testing.T
	dir     string
	cfg     *config.Config
	client  *Client
	sim     *sim.Engine
	store   *memStore
	notes   *recorder
	clock   *fakeClock
	profile string
	// setup runs on the simulated engine right after it is created.
	setup func(*sim.Engine)
	// createErr, when set, is returned instead of creating an engine.
	createErr error
	storeErr  error
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Default()
	cfg.DataDir = dir
	cfg.DownloadDir = filepath.Join(dir, "downloads")
	cfg.SetPath(filepath.Join(dir, config.FileName))
	return &harness{
		t:     t,
		dir:   dir,
		cfg:   cfg,
		store: &memStore{},
		notes: &recorder{},
		clock: newFakeClock(),
	}
}

func (h *harness) build() *Client {
	h.t.Helper()
	f := factory.WithConstructor(func(opts engine.Options) (engine.Engine, error) {
		if h.createErr != nil {
			return nil, h.createErr
		}
		e, err := sim.NewEngine(opts)
		if err != nil {
			return nil, err
		}
		e.SetInterval(time.Millisecond)
		if h.setup != nil {
			h.setup(e)
		}
		h.sim = e
		return e, nil
	})

	c, err := New(Options{
		Config:  h.cfg,
		Profile: h.profile,
		Factory: f,
		OpenStore: func(_ context.Context, path string) (messaging.Store, error) {
			if h.storeErr != nil {
				return nil, h.storeErr
			}
			h.store.openPath = path
			return h.store, nil
		},
		Notifier:     h.notes,
		TimeProvider: h.clock,
	})
	require.NoError(h.t, err)
	h.client = c
	return c
}

// start builds and starts the client. The client is shut down when the
// test ends.
func (h *harness) start() *Client {
	h.t.Helper()
	c := h.build()
	require.NoError(h.t, c.Start(context.Background()))
	h.t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = c.Shutdown(ctx)
	})
	return c
}

// run starts the loop in the background.
func (h *harness) run() {
	h.t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.client.Run(ctx) }()
	h.t.Cleanup(func() {
		cancel()
		<-done
	})
}

// step injects events and runs one tick on the test goroutine.
func (h *harness) step(events ...engine.Event) {
	h.sim.Inject(events...)
	h.client.tick()
}

func testKey(b byte) engine.PublicKey {
	var pk engine.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}

var errBoom = errors.New("boom")
