package channel

import (
	"context"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/events"
)

// Handler consumes inbound transport events. Implementations must contain
// their own failures; adapters do not inspect handler outcomes.
type Handler interface {
	HandleMessage(ctx context.Context, msg events.InboundMessage)
	HandleCallback(ctx context.Context, cb events.CallbackQuery)
}

// Adapter bridges one external transport (for example Telegram) into the bot.
type Adapter interface {
	Name() string
	Run(context.Context, Handler) error
}
