package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/opd-ai/toxclient"
	"github.com/opd-ai/toxclient/messaging"
)

// Controller is the session surface the bridge drives. *toxclient.Client
// implements it.
type Controller interface {
	State() toxclient.State
	Snapshot(ctx context.Context) (toxclient.Snapshot, error)
	SendMessage(ctx context.Context, friendID uint32, text string) error
	SetName(ctx context.Context, name string) error
	SetStatusMessage(ctx context.Context, message string) error
	SendFile(ctx context.Context, friendID uint32, path string) (toxclient.TransferPayload, error)
	SendFriendRequest(ctx context.Context, address, message string) (uint32, error)
	AcceptFriendRequest(ctx context.Context, publicKeyHex string) (uint32, error)
	DeclineFriendRequest(ctx context.Context, publicKeyHex string) error
	RemoveFriend(ctx context.Context, friendID uint32) error
	LoadMessages(ctx context.Context, friendID uint32, limit int) ([]messaging.View, error)
	SelectFriend(ctx context.Context, friendID uint32) error
	CancelTransfer(ctx context.Context, friendID, fileID uint32) error
}

var _ Controller = (*toxclient.Client)(nil)

// ErrUnknownCommand is returned for a request type with no handler.
var ErrUnknownCommand = errors.New("unknown command")

// Request is a command frame sent by a presentation client.
type Request struct {
	// ID is echoed in the Response so the sender can match it.
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// Response answers one Request.
type Response struct {
	ID    string `json:"id"`
	Type  string `json:"type"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  any    `json:"data,omitempty"`
}

// ResponseType is the Type of every Response frame.
const ResponseType = "result"

type friendArgs struct {
	FriendID uint32 `json:"friendId"`
}

type messageArgs struct {
	FriendID uint32 `json:"friendId"`
	Text     string `json:"text"`
}

type nameArgs struct {
	Name string `json:"name"`
}

type statusMessageArgs struct {
	StatusMessage string `json:"statusMessage"`
}

type fileArgs struct {
	FriendID uint32 `json:"friendId"`
	Path     string `json:"path"`
}

type requestArgs struct {
	Address string `json:"address"`
	Message string `json:"message"`
}

type keyArgs struct {
	PublicKey string `json:"publicKey"`
}

type historyArgs struct {
	FriendID uint32 `json:"friendId"`
	Limit    int    `json:"limit"`
}

type transferArgs struct {
	FriendID uint32 `json:"friendId"`
	FileID   uint32 `json:"fileId"`
}

type idResult struct {
	FriendID uint32 `json:"friendId"`
}

func decode[T any](raw json.RawMessage) (T, error) {
	var v T
	if len(raw) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode arguments: %w", err)
	}
	return v, nil
}

// Execute runs req against ctrl and builds the response.
func Execute(ctx context.Context, ctrl Controller, req Request) Response {
	data, err := execute(ctx, ctrl, req)
	resp := Response{ID: req.ID, Type: ResponseType, OK: err == nil, Data: data}
	if err != nil {
		resp.Error = err.Error()
	}
	return resp
}

func execute(ctx context.Context, ctrl Controller, req Request) (any, error) {
	switch req.Type {
	case "snapshot":
		return ctrl.Snapshot(ctx)

	case "send-message":
		args, err := decode[messageArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.SendMessage(ctx, args.FriendID, args.Text)

	case "set-name":
		args, err := decode[nameArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.SetName(ctx, args.Name)

	case "set-status-message":
		args, err := decode[statusMessageArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.SetStatusMessage(ctx, args.StatusMessage)

	case "send-file":
		args, err := decode[fileArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return ctrl.SendFile(ctx, args.FriendID, args.Path)

	case "send-friend-request":
		args, err := decode[requestArgs](req.Data)
		if err != nil {
			return nil, err
		}
		id, err := ctrl.SendFriendRequest(ctx, args.Address, args.Message)
		if err != nil {
			return nil, err
		}
		return idResult{FriendID: id}, nil

	case "accept-friend-request":
		args, err := decode[keyArgs](req.Data)
		if err != nil {
			return nil, err
		}
		id, err := ctrl.AcceptFriendRequest(ctx, args.PublicKey)
		if err != nil {
			return nil, err
		}
		return idResult{FriendID: id}, nil

	case "decline-friend-request":
		args, err := decode[keyArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.DeclineFriendRequest(ctx, args.PublicKey)

	case "remove-friend":
		args, err := decode[friendArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.RemoveFriend(ctx, args.FriendID)

	case "load-messages":
		args, err := decode[historyArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return ctrl.LoadMessages(ctx, args.FriendID, args.Limit)

	case "select-friend":
		args, err := decode[friendArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.SelectFriend(ctx, args.FriendID)

	case "cancel-transfer":
		args, err := decode[transferArgs](req.Data)
		if err != nil {
			return nil, err
		}
		return nil, ctrl.CancelTransfer(ctx, args.FriendID, args.FileID)

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownCommand, req.Type)
	}
}
