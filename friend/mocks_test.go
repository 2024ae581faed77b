package friend

import (
	"time"

	"github.com/opd-ai/toxclient/engine"
)

// mockTimeProvider is a mock implementation of TimeProvider for testing.
type mockTimeProvider struct {
	fixedTime time.Time
}

func (m *mockTimeProvider) Now() time.Time {
	return m.fixedTime
}

func testKey(b byte) engine.PublicKey {
	var pk engine.PublicKey
	for i := range pk {
		pk[i] = b
	}
	return pk
}
