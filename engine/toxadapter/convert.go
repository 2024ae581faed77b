package toxadapter

import (
	"github.com/opd-ai/toxcore"

	"github.com/opd-ai/toxclient/engine"
)

func convertConnection(s toxcore.ConnectionStatus) engine.ConnectionStatus {
	switch s {
	case toxcore.ConnectionTCP:
		return engine.ConnectionTCP
	case toxcore.ConnectionUDP:
		return engine.ConnectionUDP
	default:
		return engine.ConnectionNone
	}
}

// convertFriendStatus maps toxcore presence onto the three client states.
// toxcore's Online means "available", which the client shows as none.
func convertFriendStatus(s toxcore.FriendStatus) engine.UserStatus {
	switch s {
	case toxcore.FriendStatusAway:
		return engine.UserStatusAway
	case toxcore.FriendStatusBusy:
		return engine.UserStatusBusy
	default:
		return engine.UserStatusNone
	}
}

func convertFileControl(c engine.FileControl) toxcore.FileControl {
	switch c {
	case engine.FileControlPause:
		return toxcore.FileControlPause
	case engine.FileControlCancel:
		return toxcore.FileControlCancel
	default:
		return toxcore.FileControlResume
	}
}

func convertProxyType(t engine.ProxyType) toxcore.ProxyType {
	switch t {
	case engine.ProxyTypeHTTP:
		return toxcore.ProxyTypeHTTP
	case engine.ProxyTypeSOCKS5:
		return toxcore.ProxyTypeSOCKS5
	default:
		return toxcore.ProxyTypeNone
	}
}
