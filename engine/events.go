package engine

// Event is one engine notification delivered by Iterate. The set of
// implementations is closed; the unexported marker keeps other packages
// from adding variants.
type Event interface {
	// Kind is a stable name used in logs.
	Kind() string
	isEvent()
}

// SelfConnectionStatus reports a change in the local node's DHT connection.
type SelfConnectionStatus struct {
	Status ConnectionStatus
}

// FriendRequest is an incoming friend request.
type FriendRequest struct {
	PublicKey PublicKey
	Message   string
}

// FriendMessage is a chat message from a friend.
type FriendMessage struct {
	FriendID uint32
	Type     MessageType
	Message  string
}

// FriendName reports a friend's new display name.
type FriendName struct {
	FriendID uint32
	Name     string
}

// FriendStatusMessage reports a friend's new free-text status.
type FriendStatusMessage struct {
	FriendID uint32
	Message  string
}

// FriendStatus reports a friend's new presence.
type FriendStatus struct {
	FriendID uint32
	Status   UserStatus
}

// FriendConnectionStatus reports a friend's new connection tier.
type FriendConnectionStatus struct {
	FriendID uint32
	Status   ConnectionStatus
}

// FileRecv is an incoming transfer offer.
type FileRecv struct {
	FriendID uint32
	FileID   uint32
	FileKind FileKind
	Size     uint64
	Filename string
}

// FileRecvChunk carries bytes of an incoming transfer at an explicit
// position. An empty Data marks the end of the transfer.
type FileRecvChunk struct {
	FriendID uint32
	FileID   uint32
	Position uint64
	Data     []byte
}

// FileChunkRequest asks for Length bytes of an outgoing transfer at
// Position. Length zero marks the end of the transfer.
type FileChunkRequest struct {
	FriendID uint32
	FileID   uint32
	Position uint64
	Length   int
}

// FileRecvControl is a control message sent by the peer for a transfer.
type FileRecvControl struct {
	FriendID uint32
	FileID   uint32
	Control  FileControl
}

func (SelfConnectionStatus) Kind() string   { return "self_connection_status" }
func (FriendRequest) Kind() string          { return "friend_request" }
func (FriendMessage) Kind() string          { return "friend_message" }
func (FriendName) Kind() string             { return "friend_name" }
func (FriendStatusMessage) Kind() string    { return "friend_status_message" }
func (FriendStatus) Kind() string           { return "friend_status" }
func (FriendConnectionStatus) Kind() string { return "friend_connection_status" }
func (FileRecv) Kind() string               { return "file_recv" }
func (FileRecvChunk) Kind() string          { return "file_recv_chunk" }
func (FileChunkRequest) Kind() string       { return "file_chunk_request" }
func (FileRecvControl) Kind() string        { return "file_recv_control" }

func (SelfConnectionStatus) isEvent()   {}
func (FriendRequest) isEvent()          {}
func (FriendMessage) isEvent()          {}
func (FriendName) isEvent()             {}
func (FriendStatusMessage) isEvent()    {}
func (FriendStatus) isEvent()           {}
func (FriendConnectionStatus) isEvent() {}
func (FileRecv) isEvent()               {}
func (FileRecvChunk) isEvent()          {}
func (FileChunkRequest) isEvent()       {}
func (FileRecvControl) isEvent()        {}
