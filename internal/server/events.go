// Package server defines the JSON event envelope and payload types exchanged
// over the realtime channel.
package server

import "encoding/json"

// Realtime event names. Inbound events are sent by clients; outbound events
// are broadcast to room members.
const (
	EventJoinGroup   = "join_group"
	EventLeaveGroup  = "leave_group"
	EventSendMessage = "send_message"

	EventUserJoined = "user_joined"
	EventUserLeft   = "user_left"
	EventNewMessage = "new_message"
)

// Event is the envelope for every realtime frame: an event name plus an
// event-specific JSON payload.
type Event struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// JoinGroupData is the payload of join_group and leave_group events.
type JoinGroupData struct {
	GroupID  string `json:"groupId"`
	Username string `json:"username"`
}

// SendMessageData is the payload of a send_message event.
type SendMessageData struct {
	GroupID  string `json:"groupId"`
	Message  string `json:"message"`
	Username string `json:"username"`
}

// UserNotice is the payload of user_joined and user_left broadcasts.
type UserNotice struct {
	Username string `json:"username"`
	Message  string `json:"message"`
}

// ChatMessage is the payload of a new_message broadcast. Messages are not
// stored; each one exists only for the duration of the fan-out.
type ChatMessage struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Sender    string `json:"sender"`
	Timestamp string `json:"timestamp"`
	GroupID   string `json:"groupId"`
}

// marshalEvent wraps a payload in the event envelope and encodes it.
func marshalEvent(event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Event{Event: event, Data: payload})
}
