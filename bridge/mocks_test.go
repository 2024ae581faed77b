package bridge

import (
	"context"
	"errors"
	"sync"

	"github.com/opd-ai/toxclient"
	"github.com/opd-ai/toxclient/messaging"
)

type call struct {
	name string
	args []any
}

// fakeController records every call and returns canned results.
type fakeController struct {
	mu    sync.Mutex
	calls []call
	err   error
	snap  toxclient.Snapshot
	msgs  []messaging.View
}

func (f *fakeController) record(name string, args ...any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call{name: name, args: args})
	return f.err
}

func (f *fakeController) lastCall() (call, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return call{}, false
	}
	return f.calls[len(f.calls)-1], true
}

func (f *fakeController) State() toxclient.State { return toxclient.StateRunning }

func (f *fakeController) Snapshot(ctx context.Context) (toxclient.Snapshot, error) {
	return f.snap, f.record("Snapshot")
}

func (f *fakeController) SendMessage(ctx context.Context, friendID uint32, text string) error {
	return f.record("SendMessage", friendID, text)
}

func (f *fakeController) SetName(ctx context.Context, name string) error {
	return f.record("SetName", name)
}

func (f *fakeController) SetStatusMessage(ctx context.Context, message string) error {
	return f.record("SetStatusMessage", message)
}

func (f *fakeController) SendFile(ctx context.Context, friendID uint32, path string) (toxclient.TransferPayload, error) {
	return toxclient.TransferPayload{FriendID: friendID, FileName: path}, f.record("SendFile", friendID, path)
}

func (f *fakeController) SendFriendRequest(ctx context.Context, address, message string) (uint32, error) {
	return 7, f.record("SendFriendRequest", address, message)
}

func (f *fakeController) AcceptFriendRequest(ctx context.Context, publicKeyHex string) (uint32, error) {
	return 8, f.record("AcceptFriendRequest", publicKeyHex)
}

func (f *fakeController) DeclineFriendRequest(ctx context.Context, publicKeyHex string) error {
	return f.record("DeclineFriendRequest", publicKeyHex)
}

func (f *fakeController) RemoveFriend(ctx context.Context, friendID uint32) error {
	return f.record("RemoveFriend", friendID)
}

func (f *fakeController) LoadMessages(ctx context.Context, friendID uint32, limit int) ([]messaging.View, error) {
	return f.msgs, f.record("LoadMessages", friendID, limit)
}

func (f *fakeController) SelectFriend(ctx context.Context, friendID uint32) error {
	return f.record("SelectFriend", friendID)
}

func (f *fakeController) CancelTransfer(ctx context.Context, friendID, fileID uint32) error {
	return f.record("CancelTransfer", friendID, fileID)
}

var errNope = errors.New("nope")
