package cases

import (
	"strings"
	"time"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/events"
)

const (
	manualCustomerInfo = "manually created"
	noTextPlaceholder  = "message has no text (possibly media)"
	noTextFallback     = "messages contain no text"
	problemSeparator   = "\n---\n"

	statusOpen = "Open"
)

// Record is the assembled payload of one completed case, ready for the sink.
type Record struct {
	Timestamp    time.Time
	OperatorName string
	CustomerInfo string
	ProblemText  string
	Status       string
}

// BuildRecord assembles the durable record for a completed case.
//
// Cell values are sanitized here, before they reach any tabular consumer.
func BuildRecord(c *Case, operatorName string, now time.Time) Record {
	messages := c.Messages()

	return Record{
		Timestamp:    now,
		OperatorName: SanitizeCell(strings.TrimSpace(operatorName)),
		CustomerInfo: SanitizeCell(customerInfo(c.Manual(), messages)),
		ProblemText:  SanitizeCell(problemText(messages)),
		Status:       statusOpen,
	}
}

// customerInfo identifies the customer from the first message's forward
// origin, or marks the case as manually created when there is none.
func customerInfo(manual bool, messages []events.InboundMessage) string {
	if manual || len(messages) == 0 || messages[0].Forward == nil {
		return manualCustomerInfo
	}

	origin := messages[0].Forward
	parts := make([]string, 0, 3)
	if origin.FirstName != "" {
		parts = append(parts, origin.FirstName)
	}
	if origin.LastName != "" {
		parts = append(parts, origin.LastName)
	}
	if origin.Username != "" {
		parts = append(parts, "(@"+origin.Username+")")
	}
	if len(parts) == 0 {
		return manualCustomerInfo
	}

	return strings.Join(parts, " ")
}

// problemText joins the queued message texts in arrival order. Messages
// without text or caption keep their slot as a placeholder line.
func problemText(messages []events.InboundMessage) string {
	parts := make([]string, 0, len(messages))
	for _, msg := range messages {
		content := msg.Content()
		if content == "" {
			content = noTextPlaceholder
		}
		parts = append(parts, content)
	}

	joined := strings.Join(parts, problemSeparator)
	if strings.TrimSpace(joined) == "" {
		return noTextFallback
	}

	return joined
}

// SanitizeCell defuses spreadsheet formula injection: values that a sheet
// would interpret as a formula get a literal apostrophe prefix.
func SanitizeCell(value string) string {
	if value == "" {
		return value
	}

	switch value[0] {
	case '=', '+', '-', '@':
		return "'" + value
	default:
		return value
	}
}
