package toxadapter

import (
	"testing"

	"github.com/opd-ai/toxcore"
	"github.com/stretchr/testify/assert"

	"github.com/opd-ai/toxclient/engine"
)

func TestConvertConnection(t *testing.T) {
	assert.Equal(t, engine.ConnectionNone, convertConnection(toxcore.ConnectionNone))
	assert.Equal(t, engine.ConnectionTCP, convertConnection(toxcore.ConnectionTCP))
	assert.Equal(t, engine.ConnectionUDP, convertConnection(toxcore.ConnectionUDP))
}

func TestConvertFriendStatus(t *testing.T) {
	tests := []struct {
		in   toxcore.FriendStatus
		want engine.UserStatus
	}{
		{toxcore.FriendStatusNone, engine.UserStatusNone},
		{toxcore.FriendStatusOnline, engine.UserStatusNone},
		{toxcore.FriendStatusAway, engine.UserStatusAway},
		{toxcore.FriendStatusBusy, engine.UserStatusBusy},
	}
	for _, tt := range tests {
		if got := convertFriendStatus(tt.in); got != tt.want {
			t.Errorf("convertFriendStatus(%d) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestConvertFileControl(t *testing.T) {
	assert.Equal(t, toxcore.FileControlResume, convertFileControl(engine.FileControlResume))
	assert.Equal(t, toxcore.FileControlPause, convertFileControl(engine.FileControlPause))
	assert.Equal(t, toxcore.FileControlCancel, convertFileControl(engine.FileControlCancel))
}

func TestConvertProxyType(t *testing.T) {
	assert.Equal(t, toxcore.ProxyTypeNone, convertProxyType(engine.ProxyTypeNone))
	assert.Equal(t, toxcore.ProxyTypeHTTP, convertProxyType(engine.ProxyTypeHTTP))
	assert.Equal(t, toxcore.ProxyTypeSOCKS5, convertProxyType(engine.ProxyTypeSOCKS5))
}
