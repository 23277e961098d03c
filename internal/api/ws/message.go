package ws

import "encoding/json"

// MessageSnapshot tags a frame carrying a dashboard snapshot.
const MessageSnapshot = "snapshot"

// Message is one frame sent to dashboard subscribers. It uses the same
// {type, data} framing as the task backend's board stream.
type Message struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

func snapshotFrame(payload []byte) ([]byte, error) {
	return json.Marshal(Message{Type: MessageSnapshot, Data: payload})
}
