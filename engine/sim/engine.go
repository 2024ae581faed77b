// Package sim provides an in-memory engine.Engine.
//
// It performs no networking. Events are injected by the caller and returned
// by the next Iterate; every outbound call (messages, chunks, control
// messages, offers) is recorded so tests can assert on it. The client's
// -simulate mode runs against it as well.
package sim

import (
	"crypto/rand"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
)

// DefaultInterval is the iteration interval reported unless SetInterval is used.
const DefaultInterval = 50 * time.Millisecond

// SentMessage records a SendMessage call.
type SentMessage struct {
	FriendID uint32
	Type     engine.MessageType
	Text     string
}

// SentChunk records a FileSendChunk call.
type SentChunk struct {
	FriendID uint32
	FileID   uint32
	Position uint64
	Data     []byte
}

// ControlCall records a FileControl call.
type ControlCall struct {
	FriendID uint32
	FileID   uint32
	Control  engine.FileControl
}

// FileOffer records a FileSend call.
type FileOffer struct {
	FriendID uint32
	FileID   uint32
	Kind     engine.FileKind
	Size     uint64
	Hash     [32]byte
	Filename string
}

// Bootstrap records a Bootstrap call.
type Bootstrap struct {
	Host      string
	Port      uint16
	PublicKey string
}

type simFriend struct {
	ID            uint32 `json:"id"`
	PublicKey     string `json:"public_key"`
	Name          string `json:"name"`
	StatusMessage string `json:"status_message"`
}

type saveState struct {
	PublicKey     string      `json:"public_key"`
	Name          string      `json:"name"`
	StatusMessage string      `json:"status_message"`
	Friends       []simFriend `json:"friends"`
}

// Engine is a scriptable engine.Engine. It is safe for concurrent use so
// tests can inject events while a client loop is running.
type Engine struct {
	mu sync.Mutex

	interval      time.Duration
	publicKey     engine.PublicKey
	name          string
	statusMessage string
	status        engine.UserStatus

	friends    map[uint32]*simFriend
	nextFileID map[uint32]uint32
	pending    []engine.Event
	closed     bool

	// Failure injection. A non-nil value is returned by the matching call.
	BootstrapErr error
	SendChunkErr error
	FileSendErr  error
	SaveErr      error

	Messages   []SentMessage
	Chunks     []SentChunk
	Controls   []ControlCall
	Offers     []FileOffer
	Bootstraps []Bootstrap
	Iterations int
}

// ErrClosed is returned by calls made after Close.
var ErrClosed = errors.New("simulated engine closed")

// New is an engine.Constructor producing a simulated engine. Non-empty
// SaveData must be the output of a previous SaveData call.
func New(opts engine.Options) (engine.Engine, error) {
	return NewEngine(opts)
}

// NewEngine is New with the concrete return type.
func NewEngine(opts engine.Options) (*Engine, error) {
	logrus.Warn("SIMULATION ENGINE - NO NETWORK TRAFFIC")

	e := &Engine{
		interval:   DefaultInterval,
		friends:    make(map[uint32]*simFriend),
		nextFileID: make(map[uint32]uint32),
	}

	if len(opts.SaveData) == 0 {
		if _, err := rand.Read(e.publicKey[:]); err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrCreate, err)
		}
		return e, nil
	}

	var state saveState
	if err := json.Unmarshal(opts.SaveData, &state); err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrLoad, err)
	}
	pk, err := engine.ParsePublicKey(state.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", engine.ErrLoad, err)
	}
	e.publicKey = pk
	e.name = state.Name
	e.statusMessage = state.StatusMessage
	for i := range state.Friends {
		f := state.Friends[i]
		e.friends[f.ID] = &f
	}
	return e, nil
}

// SetInterval changes the reported iteration interval.
func (e *Engine) SetInterval(d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.interval = d
}

// SetSelf sets the local name and status message.
func (e *Engine) SetSelf(name, statusMessage string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
	e.statusMessage = statusMessage
}

// AddFriend registers a friend directly, as if loaded from save data.
func (e *Engine) AddFriend(publicKey engine.PublicKey, name, statusMessage string) uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	id := e.lowestFreeID()
	e.friends[id] = &simFriend{ID: id, PublicKey: publicKey.Hex(), Name: name, StatusMessage: statusMessage}
	return id
}

// Inject queues events for the next Iterate.
func (e *Engine) Inject(events ...engine.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = append(e.pending, events...)
}

// Pending returns how many injected events have not been delivered yet.
func (e *Engine) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.pending)
}

func (e *Engine) lowestFreeID() uint32 {
	var id uint32
	for {
		if _, ok := e.friends[id]; !ok {
			return id
		}
		id++
	}
}

func (e *Engine) IterationInterval() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.interval
}

// Iterate returns and clears the injected events.
func (e *Engine) Iterate() []engine.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Iterations++
	events := e.pending
	e.pending = nil
	return events
}

func (e *Engine) Bootstrap(host string, port uint16, publicKeyHex string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Bootstraps = append(e.Bootstraps, Bootstrap{Host: host, Port: port, PublicKey: publicKeyHex})
	return e.BootstrapErr
}

func (e *Engine) SelfAddress() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	// public key + zero nospam + zero checksum
	return e.publicKey.Upper() + "000000000000"
}

func (e *Engine) SelfPublicKey() engine.PublicKey {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.publicKey
}

func (e *Engine) SelfName() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.name
}

func (e *Engine) SelfStatusMessage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.statusMessage
}

func (e *Engine) SetName(name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.name = name
	return nil
}

func (e *Engine) SetStatusMessage(message string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusMessage = message
	return nil
}

func (e *Engine) SelfStatus() engine.UserStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

func (e *Engine) FriendList() []uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]uint32, 0, len(e.friends))
	for id := range e.friends {
		ids = append(ids, id)
	}
	return ids
}

func (e *Engine) friend(friendID uint32) (*simFriend, error) {
	f, ok := e.friends[friendID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", engine.ErrFriendNotFound, friendID)
	}
	return f, nil
}

func (e *Engine) FriendName(friendID uint32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := e.friend(friendID)
	if err != nil {
		return "", err
	}
	return f.Name, nil
}

func (e *Engine) FriendStatusMessage(friendID uint32) (string, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := e.friend(friendID)
	if err != nil {
		return "", err
	}
	return f.StatusMessage, nil
}

func (e *Engine) FriendPublicKey(friendID uint32) (engine.PublicKey, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, err := e.friend(friendID)
	if err != nil {
		return engine.PublicKey{}, err
	}
	return engine.ParsePublicKey(f.PublicKey)
}

// FriendAdd accepts a 76 character Tox address; only the leading public key is used.
func (e *Engine) FriendAdd(address, message string) (uint32, error) {
	if len(address) < engine.PublicKeySize*2 {
		return 0, fmt.Errorf("address too short: %d characters", len(address))
	}
	pk, err := engine.ParsePublicKey(address[:engine.PublicKeySize*2])
	if err != nil {
		return 0, err
	}
	return e.FriendAddNoRequest(pk)
}

func (e *Engine) FriendAddNoRequest(publicKey engine.PublicKey) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, f := range e.friends {
		if f.PublicKey == publicKey.Hex() {
			return id, errors.New("already a friend")
		}
	}
	id := e.lowestFreeID()
	e.friends[id] = &simFriend{ID: id, PublicKey: publicKey.Hex()}
	return id, nil
}

func (e *Engine) FriendDelete(friendID uint32) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.friend(friendID); err != nil {
		return err
	}
	delete(e.friends, friendID)
	return nil
}

func (e *Engine) SendMessage(friendID uint32, messageType engine.MessageType, text string) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, err := e.friend(friendID); err != nil {
		return 0, err
	}
	e.Messages = append(e.Messages, SentMessage{FriendID: friendID, Type: messageType, Text: text})
	return uint32(len(e.Messages)), nil
}

func (e *Engine) FileSend(friendID uint32, kind engine.FileKind, size uint64, fileID [32]byte, filename string) (uint32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FileSendErr != nil {
		return 0, e.FileSendErr
	}
	if _, err := e.friend(friendID); err != nil {
		return 0, err
	}
	id := e.nextFileID[friendID]
	e.nextFileID[friendID] = id + 1
	e.Offers = append(e.Offers, FileOffer{
		FriendID: friendID,
		FileID:   id,
		Kind:     kind,
		Size:     size,
		Hash:     fileID,
		Filename: filename,
	})
	return id, nil
}

func (e *Engine) FileSendChunk(friendID, fileID uint32, position uint64, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.SendChunkErr != nil {
		return e.SendChunkErr
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	e.Chunks = append(e.Chunks, SentChunk{FriendID: friendID, FileID: fileID, Position: position, Data: buf})
	return nil
}

func (e *Engine) FileControl(friendID, fileID uint32, control engine.FileControl) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.Controls = append(e.Controls, ControlCall{FriendID: friendID, FileID: fileID, Control: control})
	return nil
}

// SaveData serializes identity and friends as JSON.
func (e *Engine) SaveData() ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrClosed
	}
	if e.SaveErr != nil {
		return nil, e.SaveErr
	}
	state := saveState{
		PublicKey:     e.publicKey.Hex(),
		Name:          e.name,
		StatusMessage: e.statusMessage,
	}
	for _, f := range e.friends {
		state.Friends = append(state.Friends, *f)
	}
	return json.Marshal(state)
}

func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
}

// Closed reports whether Close was called.
func (e *Engine) Closed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// Snapshot helpers return copies so callers can inspect without racing the loop.

func (e *Engine) SentChunks() []SentChunk {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SentChunk(nil), e.Chunks...)
}

func (e *Engine) SentControls() []ControlCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]ControlCall(nil), e.Controls...)
}

func (e *Engine) SentOffers() []FileOffer {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]FileOffer(nil), e.Offers...)
}

func (e *Engine) SentMessages() []SentMessage {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]SentMessage(nil), e.Messages...)
}
