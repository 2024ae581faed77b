package friend

import (
	"time"

	"github.com/opd-ai/toxclient/engine"
)

// TimeProvider abstracts time for deterministic testing.
type TimeProvider interface {
	Now() time.Time
}

// DefaultTimeProvider uses the standard library time functions.
type DefaultTimeProvider struct{}

// Now returns the current time.
func (DefaultTimeProvider) Now() time.Time { return time.Now() }

var defaultTimeProvider TimeProvider = DefaultTimeProvider{}

// Friend is one contact as the client sees it.
type Friend struct {
	ID               uint32
	PublicKey        engine.PublicKey
	Name             string
	StatusMessage    string
	Status           engine.UserStatus
	ConnectionStatus engine.ConnectionStatus
	// Unread counts messages received since the conversation was last selected.
	Unread   int
	LastSeen time.Time
}

// IsOnline checks if the friend is currently online.
func (f Friend) IsOnline() bool {
	return f.ConnectionStatus.Online()
}

// DisplayName is the name, or a short form of the public key while the
// friend has not told us a name yet.
func (f Friend) DisplayName() string {
	if f.Name != "" {
		return f.Name
	}
	return f.PublicKey.Short()
}

// View is the JSON form sent to presentation clients.
type View struct {
	ID               uint32 `json:"id"`
	PublicKey        string `json:"publicKey"`
	Name             string `json:"name"`
	StatusMessage    string `json:"statusMessage"`
	Status           string `json:"status"`
	ConnectionStatus string `json:"connectionStatus"`
	Online           bool   `json:"online"`
	Unread           int    `json:"unread"`
	// LastSeen is the Unix time in milliseconds of the last connection
	// change, or zero if none was seen.
	LastSeen int64 `json:"lastSeen,omitempty"`
}

// View converts f for presentation.
func (f Friend) View() View {
	var lastSeen int64
	if !f.LastSeen.IsZero() {
		lastSeen = f.LastSeen.UnixMilli()
	}
	return View{
		ID:               f.ID,
		PublicKey:        f.PublicKey.Upper(),
		Name:             f.Name,
		StatusMessage:    f.StatusMessage,
		Status:           f.Status.String(),
		ConnectionStatus: f.ConnectionStatus.String(),
		Online:           f.IsOnline(),
		Unread:           f.Unread,
		LastSeen:         lastSeen,
	}
}

// Patch names the fields of one partial update. Nil fields are untouched.
type Patch struct {
	Name             *string
	StatusMessage    *string
	Status           *engine.UserStatus
	ConnectionStatus *engine.ConnectionStatus
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Name == nil && p.StatusMessage == nil && p.Status == nil && p.ConnectionStatus == nil
}

// Fields lists the names of the fields the patch sets, for logging.
func (p Patch) Fields() []string {
	var fields []string
	if p.Name != nil {
		fields = append(fields, "name")
	}
	if p.StatusMessage != nil {
		fields = append(fields, "status_message")
	}
	if p.Status != nil {
		fields = append(fields, "status")
	}
	if p.ConnectionStatus != nil {
		fields = append(fields, "connection_status")
	}
	return fields
}

func (p Patch) apply(f *Friend, now time.Time) {
	if p.Name != nil {
		f.Name = *p.Name
	}
	if p.StatusMessage != nil {
		f.StatusMessage = *p.StatusMessage
	}
	if p.Status != nil {
		f.Status = *p.Status
	}
	if p.ConnectionStatus != nil {
		f.ConnectionStatus = *p.ConnectionStatus
		f.LastSeen = now
	}
}

// NamePatch builds a patch setting only the name.
func NamePatch(name string) Patch { return Patch{Name: &name} }

// StatusMessagePatch builds a patch setting only the status message.
func StatusMessagePatch(msg string) Patch { return Patch{StatusMessage: &msg} }

// StatusPatch builds a patch setting only the presence.
func StatusPatch(s engine.UserStatus) Patch { return Patch{Status: &s} }

// ConnectionPatch builds a patch setting only the connection tier.
func ConnectionPatch(c engine.ConnectionStatus) Patch { return Patch{ConnectionStatus: &c} }
