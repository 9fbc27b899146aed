package proto

// Kind discriminates the envelope variants multiplexed on a session stream.
type Kind string

const (
	// KindHandshake must be the first envelope on a stream and carries the
	// sender's user id in from_user_id.
	KindHandshake Kind = "HANDSHAKE"
	// KindSendDirect is a user-to-user message (to_user_id + text).
	KindSendDirect Kind = "SEND_DIRECT"
	// KindSendGroup is a message to a group (group + text).
	KindSendGroup Kind = "SEND_GROUP"
	// KindAck is server→client only and reports a delivery outcome in text.
	KindAck Kind = "ACK"
)

// ServerID is the from_user_id stamped on server-originated envelopes.
const ServerID = "server"

// Envelope is the single wire type exchanged on a session stream.
type Envelope struct {
	Kind       Kind   `json:"kind"`
	MessageID  string `json:"message_id,omitempty"`
	FromUserID string `json:"from_user_id,omitempty"`
	ToUserID   string `json:"to_user_id,omitempty"`
	Group      string `json:"group,omitempty"`
	Text       string `json:"text,omitempty"`
	SentTS     int64  `json:"sent_ts,omitempty"` // unix ms
}
