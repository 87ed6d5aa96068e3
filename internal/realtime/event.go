package realtime

import "encoding/json"

// Client to server.
const (
	EventJoinConversation  = "join-conversation"
	EventLeaveConversation = "leave-conversation"
	EventSendMessage       = "send-message"
	EventSendSystemMessage = "send-system-message"
)

// Server to client.
const (
	EventNewMessage       = "new-message"
	EventNewSystemMessage = "new-system-message"
	EventJoined           = "joined"
	EventError            = "error"
)

// Event is one broadcast. Origin and ExcludeUser keep an ordinary message
// away from whoever sent it; system events leave both empty.
type Event struct {
	Name    string
	Payload interface{}
	// Origin is the id of the client connection that produced the event.
	Origin string
	// ExcludeUser skips every connection of this user.
	ExcludeUser string
}

// Frame is the wire envelope in both directions.
type Frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

func encode(name string, payload interface{}) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Frame{Event: name, Data: data})
}

// ErrorPayload is sent with EventError.
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
