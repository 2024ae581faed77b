// Package toxadapter implements engine.Engine on top of
// github.com/opd-ai/toxcore.
//
// toxcore reports activity through registered callbacks. The adapter
// registers every callback exactly once at construction, converts each
// invocation into the matching engine.Event value and queues it; Iterate
// runs one toxcore tick and hands back everything queued since the previous
// call. Callback closures therefore never escape into client code.
package toxadapter

import (
	"fmt"
	"sync"
	"time"

	"github.com/opd-ai/toxcore"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/toxclient/engine"
)

// Adapter wraps a toxcore instance.
type Adapter struct {
	tox *toxcore.Tox

	mu      sync.Mutex
	pending []engine.Event

	// toxcore does not expose the local presence, so the adapter remembers it.
	status engine.UserStatus
}

// New is an engine.Constructor. With non-empty opts.SaveData the instance is
// restored from it and any decoding failure is returned as engine.ErrLoad.
func New(opts engine.Options) (engine.Engine, error) {
	toxOpts := toxcore.NewOptions()
	toxOpts.UDPEnabled = opts.UDPEnabled
	toxOpts.IPv6Enabled = opts.IPv6Enabled
	toxOpts.LocalDiscovery = opts.LocalDiscovery
	toxOpts.TCPPort = opts.TCPPort
	if opts.Proxy.Type != engine.ProxyTypeNone {
		toxOpts.Proxy = &toxcore.ProxyOptions{
			Type: convertProxyType(opts.Proxy.Type),
			Host: opts.Proxy.Host,
			Port: opts.Proxy.Port,
		}
	}

	logrus.WithFields(logrus.Fields{
		"function":        "toxadapter.New",
		"udp_enabled":     opts.UDPEnabled,
		"ipv6_enabled":    opts.IPv6Enabled,
		"local_discovery": opts.LocalDiscovery,
		"proxy_type":      opts.Proxy.Type,
		"from_savedata":   len(opts.SaveData) > 0,
	}).Info("Creating toxcore instance")

	var (
		tox *toxcore.Tox
		err error
	)
	if len(opts.SaveData) > 0 {
		tox, err = toxcore.NewFromSavedata(toxOpts, opts.SaveData)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrLoad, err)
		}
	} else {
		tox, err = toxcore.New(toxOpts)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", engine.ErrCreate, err)
		}
	}

	a := &Adapter{tox: tox}
	a.registerCallbacks()
	return a, nil
}

func (a *Adapter) push(ev engine.Event) {
	a.mu.Lock()
	a.pending = append(a.pending, ev)
	a.mu.Unlock()
}

func (a *Adapter) registerCallbacks() {
	a.tox.OnConnectionStatus(func(status toxcore.ConnectionStatus) {
		a.push(engine.SelfConnectionStatus{Status: convertConnection(status)})
	})
	a.tox.OnFriendRequest(func(publicKey [32]byte, message string) {
		a.push(engine.FriendRequest{PublicKey: engine.PublicKey(publicKey), Message: message})
	})
	a.tox.OnFriendMessageDetailed(func(friendID uint32, message string, messageType toxcore.MessageType) {
		mt := engine.MessageTypeNormal
		if messageType == toxcore.MessageTypeAction {
			mt = engine.MessageTypeAction
		}
		a.push(engine.FriendMessage{FriendID: friendID, Type: mt, Message: message})
	})
	a.tox.OnFriendName(func(friendID uint32, name string) {
		a.push(engine.FriendName{FriendID: friendID, Name: name})
	})
	a.tox.OnFriendStatusMessage(func(friendID uint32, message string) {
		a.push(engine.FriendStatusMessage{FriendID: friendID, Message: message})
	})
	a.tox.OnFriendStatus(func(friendID uint32, status toxcore.FriendStatus) {
		a.push(engine.FriendStatus{FriendID: friendID, Status: convertFriendStatus(status)})
	})
	a.tox.OnFriendConnectionStatus(func(friendID uint32, status toxcore.ConnectionStatus) {
		a.push(engine.FriendConnectionStatus{FriendID: friendID, Status: convertConnection(status)})
	})
	a.tox.OnFileRecv(func(friendID, fileID, kind uint32, fileSize uint64, filename string) {
		a.push(engine.FileRecv{
			FriendID: friendID,
			FileID:   fileID,
			FileKind: engine.FileKind(kind),
			Size:     fileSize,
			Filename: filename,
		})
	})
	a.tox.OnFileRecvChunk(func(friendID, fileID uint32, position uint64, data []byte) {
		// toxcore may reuse its receive buffer after the callback returns.
		buf := make([]byte, len(data))
		copy(buf, data)
		a.push(engine.FileRecvChunk{FriendID: friendID, FileID: fileID, Position: position, Data: buf})
	})
	a.tox.OnFileChunkRequest(func(friendID, fileID uint32, position uint64, length int) {
		a.push(engine.FileChunkRequest{FriendID: friendID, FileID: fileID, Position: position, Length: length})
	})
}

// IterationInterval implements engine.Engine.
func (a *Adapter) IterationInterval() time.Duration {
	return a.tox.IterationInterval()
}

// Iterate runs one toxcore tick and drains the queued events.
func (a *Adapter) Iterate() []engine.Event {
	a.tox.Iterate()

	a.mu.Lock()
	events := a.pending
	a.pending = nil
	a.mu.Unlock()
	return events
}

// Bootstrap implements engine.Engine.
func (a *Adapter) Bootstrap(host string, port uint16, publicKeyHex string) error {
	return a.tox.Bootstrap(host, port, publicKeyHex)
}

func (a *Adapter) SelfAddress() string { return a.tox.SelfGetAddress() }

func (a *Adapter) SelfPublicKey() engine.PublicKey {
	return engine.PublicKey(a.tox.SelfGetPublicKey())
}

func (a *Adapter) SelfName() string          { return a.tox.SelfGetName() }
func (a *Adapter) SelfStatusMessage() string { return a.tox.SelfGetStatusMessage() }
func (a *Adapter) SetName(name string) error { return a.tox.SelfSetName(name) }
func (a *Adapter) SetStatusMessage(message string) error {
	return a.tox.SelfSetStatusMessage(message)
}

func (a *Adapter) SelfStatus() engine.UserStatus {
	return a.status
}

func (a *Adapter) FriendList() []uint32 {
	return a.tox.GetFriendList()
}

func (a *Adapter) FriendName(friendID uint32) (string, error) {
	f, err := a.tox.GetFriend(friendID)
	if err != nil {
		return "", fmt.Errorf("%w: %d", engine.ErrFriendNotFound, friendID)
	}
	return f.Name, nil
}

func (a *Adapter) FriendStatusMessage(friendID uint32) (string, error) {
	f, err := a.tox.GetFriend(friendID)
	if err != nil {
		return "", fmt.Errorf("%w: %d", engine.ErrFriendNotFound, friendID)
	}
	return f.StatusMessage, nil
}

func (a *Adapter) FriendPublicKey(friendID uint32) (engine.PublicKey, error) {
	pk, err := a.tox.GetFriendPublicKey(friendID)
	if err != nil {
		return engine.PublicKey{}, fmt.Errorf("%w: %d", engine.ErrFriendNotFound, friendID)
	}
	return engine.PublicKey(pk), nil
}

func (a *Adapter) FriendAdd(address, message string) (uint32, error) {
	return a.tox.AddFriend(address, message)
}

func (a *Adapter) FriendAddNoRequest(publicKey engine.PublicKey) (uint32, error) {
	return a.tox.AddFriendByPublicKey(publicKey)
}

func (a *Adapter) FriendDelete(friendID uint32) error {
	return a.tox.DeleteFriend(friendID)
}

func (a *Adapter) SendMessage(friendID uint32, messageType engine.MessageType, text string) (uint32, error) {
	mt := toxcore.MessageTypeNormal
	if messageType == engine.MessageTypeAction {
		mt = toxcore.MessageTypeAction
	}
	return a.tox.FriendSendMessage(friendID, text, mt)
}

func (a *Adapter) FileSend(friendID uint32, kind engine.FileKind, size uint64, fileID [32]byte, filename string) (uint32, error) {
	return a.tox.FileSend(friendID, uint32(kind), size, fileID, filename)
}

func (a *Adapter) FileSendChunk(friendID, fileID uint32, position uint64, data []byte) error {
	return a.tox.FileSendChunk(friendID, fileID, position, data)
}

func (a *Adapter) FileControl(friendID, fileID uint32, control engine.FileControl) error {
	return a.tox.FileControl(friendID, fileID, convertFileControl(control))
}

// SaveData implements engine.Engine.
func (a *Adapter) SaveData() ([]byte, error) {
	data := a.tox.GetSavedata()
	if len(data) == 0 {
		return nil, fmt.Errorf("toxcore returned empty savedata")
	}
	return data, nil
}

// Close stops the toxcore instance.
func (a *Adapter) Close() {
	logrus.WithField("function", "toxadapter.Close").Info("Killing toxcore instance")
	a.tox.Kill()
}
