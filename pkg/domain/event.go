package domain

// EventTypeTimeout is the type of the synthetic inactivity event.
const EventTypeTimeout = "timeout"

// Event is an incoming message for a conversation.
type Event struct {
	ID      string         `json:"id,omitempty"`
	Type    string         `json:"type"`
	Channel string         `json:"channel,omitempty"`
	Text    string         `json:"text,omitempty"`
	Payload map[string]any `json:"payload,omitempty"`
}

// IsTimeout reports whether the event is the synthetic inactivity event.
func (e Event) IsTimeout() bool {
	return e.Type == EventTypeTimeout
}

// Bindings exposes the event to expressions and templates with lowercase keys.
func (e Event) Bindings() map[string]any {
	payload := e.Payload
	if payload == nil {
		payload = map[string]any{}
	}
	return map[string]any{
		"id":      e.ID,
		"type":    e.Type,
		"channel": e.Channel,
		"text":    e.Text,
		"payload": payload,
	}
}
