package events

import "time"

// Callback data values carried by the manual-creation confirmation buttons.
const (
	CallbackConfirmYes = "case:yes"
	CallbackConfirmNo  = "case:no"
)

// ForwardOrigin describes the original sender of a forwarded message.
type ForwardOrigin struct {
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Username  string `json:"username,omitempty"`
}

// InboundMessage is one chat message delivered by a transport adapter.
type InboundMessage struct {
	ChatID     int64          `json:"chat_id"`
	MessageID  int            `json:"message_id"`
	Text       string         `json:"text,omitempty"`
	Caption    string         `json:"caption,omitempty"`
	Forward    *ForwardOrigin `json:"forward,omitempty"`
	ReceivedAt time.Time      `json:"received_at"`
}

// Content returns the message text, falling back to the media caption.
func (m InboundMessage) Content() string {
	if m.Text != "" {
		return m.Text
	}
	return m.Caption
}

// CallbackQuery is one inline-button press delivered by a transport adapter.
type CallbackQuery struct {
	ID        string `json:"id"`
	ChatID    int64  `json:"chat_id"`
	MessageID int    `json:"message_id"`
	Data      string `json:"data"`
}
