// Package server defines the JSON frames exchanged over the WebSocket and
// utility helpers that are reused across client and hub logic.
package server

import (
	"strings"

	"github.com/Tyrowin/friendchat/internal/room"
	"github.com/Tyrowin/friendchat/internal/session"
)

// Inbound event names.
const (
	eventSend  = "send"
	eventJoin  = "join"
	eventLeave = "leave"
)

// Outbound event names.
const (
	eventIncoming = "incoming"
	eventAck      = "ack"
)

// InboundFrame is a request sent by a client over the WebSocket.
type InboundFrame struct {
	Event    string  `json:"event"`
	Message  string  `json:"message,omitempty"`
	Receiver string  `json:"receiver,omitempty"`
	RoomID   room.ID `json:"room_id,omitempty"`
}

// OutboundFrame is a notice or acknowledgement sent to a client.
type OutboundFrame struct {
	Event    string           `json:"event"`
	Text     string           `json:"text,omitempty"`
	Severity session.Severity `json:"severity,omitempty"`
	Request  string           `json:"request,omitempty"`
	RoomID   room.ID          `json:"room_id,omitempty"`
	Error    string           `json:"error,omitempty"`
}

func noticeFrame(n session.Notice) OutboundFrame {
	return OutboundFrame{Event: eventIncoming, Text: n.Text, Severity: n.Severity}
}

func ackFrame(request string, id room.ID, err error) OutboundFrame {
	f := OutboundFrame{Event: eventAck, Request: request, RoomID: id}
	if err != nil {
		f.Error = err.Error()
	}
	return f
}

// isExpectedCloseError checks if an error is expected during connection closure.
func isExpectedCloseError(err error) bool {
	if err == nil {
		return true
	}
	errStr := err.Error()
	return strings.Contains(errStr, "use of closed network connection") ||
		strings.Contains(errStr, "websocket: close sent") ||
		strings.Contains(errStr, "broken pipe")
}
