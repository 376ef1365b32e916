package hub

import (
	"github.com/call-deck/backend/internal/session"
)

type MessageType string

const (
	MsgSnapshot         MessageType = "snapshot"
	MsgSessionChanged   MessageType = "session_changed"
	MsgSessionRemoved   MessageType = "session_removed"
	MsgConnectionStatus MessageType = "connection_status"
	MsgFatalDisconnect  MessageType = "fatal_disconnect"
)

type Message struct {
	Type    MessageType `json:"type"`
	Seq     uint64      `json:"seq"`
	Payload interface{} `json:"payload,omitempty"`
}

type SnapshotPayload struct {
	Sessions []*session.CallSession `json:"sessions"`
	Upstream string                 `json:"upstream"`
}

type SessionChangedPayload struct {
	SessionID string               `json:"sessionId"`
	Previous  session.Phase        `json:"previous"`
	Current   session.Phase        `json:"current"`
	Session   *session.CallSession `json:"session"`
}

type SessionRemovedPayload struct {
	SessionID string `json:"sessionId"`
}

type ConnectionStatusPayload struct {
	State string `json:"state"`
}
