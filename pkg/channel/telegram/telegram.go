package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/channel"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/config"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/events"
)

const channelName = "telegram"
const messagePreviewLimit = 240

const greetingText = "Перешлите сообщение клиента, чтобы открыть обращение, " +
	"или отправьте текст для создания обращения вручную."

// Adapter bridges Telegram updates into bot events and implements the
// dispatcher's outbound Transport.
type Adapter struct {
	bot *telego.Bot
	log *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter
// instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("telegram.token is required")
	}

	bot, err := telego.NewBot(token)
	if err != nil {
		return nil, fmt.Errorf("initialize telegram bot: %w", err)
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		bot: bot,
		log: log.With("component", "channel.telegram"),
	}, nil
}

// Name returns the channel identifier used in logs.
func (a *Adapter) Name() string {
	return channelName
}

// Run starts Telegram long polling and feeds updates to the handler. Each
// update is handled on its own goroutine so one conversation's slow sink
// write never blocks another's events.
func (a *Adapter) Run(ctx context.Context, handler channel.Handler) error {
	if handler == nil {
		return errors.New("handler is required")
	}

	updates, err := a.bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			switch {
			case update.Message != nil:
				go a.dispatchMessage(ctx, handler, update.Message)
			case update.CallbackQuery != nil:
				go a.dispatchCallback(ctx, handler, update.CallbackQuery)
			}
		}
	}
}

func (a *Adapter) dispatchMessage(ctx context.Context, handler channel.Handler, message *telego.Message) {
	chatID := message.Chat.ID

	if strings.TrimSpace(message.Text) == "/start" {
		if err := a.Send(ctx, chatID, greetingText); err != nil {
			a.log.Error("Failed to send greeting", "chat_id", chatID, "error", err)
		}
		return
	}

	inbound := events.InboundMessage{
		ChatID:     chatID,
		MessageID:  message.MessageID,
		Text:       message.Text,
		Caption:    message.Caption,
		Forward:    forwardOrigin(message.ForwardOrigin),
		ReceivedAt: time.Now(),
	}

	a.log.Info("Received message", "chat_id", chatID,
		"forwarded", inbound.Forward != nil, "content", previewText(inbound.Content()))

	handler.HandleMessage(ctx, inbound)
}

func (a *Adapter) dispatchCallback(ctx context.Context, handler channel.Handler, query *telego.CallbackQuery) {
	if query.Message == nil {
		a.log.Debug("Ignoring callback without message", "callback_id", query.ID)
		return
	}

	cb := events.CallbackQuery{
		ID:        query.ID,
		ChatID:    query.Message.GetChat().ID,
		MessageID: query.Message.GetMessageID(),
		Data:      query.Data,
	}

	a.log.Info("Received callback", "chat_id", cb.ChatID, "data", cb.Data)

	handler.HandleCallback(ctx, cb)
}

// forwardOrigin extracts the forwarded-from identity out of the various
// Telegram origin shapes. Hidden users only expose a display name; chats
// and channels expose their title.
func forwardOrigin(origin telego.MessageOrigin) *events.ForwardOrigin {
	switch o := origin.(type) {
	case *telego.MessageOriginUser:
		return &events.ForwardOrigin{
			FirstName: o.SenderUser.FirstName,
			LastName:  o.SenderUser.LastName,
			Username:  o.SenderUser.Username,
		}
	case *telego.MessageOriginHiddenUser:
		return &events.ForwardOrigin{FirstName: o.SenderUserName}
	case *telego.MessageOriginChat:
		return &events.ForwardOrigin{FirstName: o.SenderChat.Title}
	case *telego.MessageOriginChannel:
		return &events.ForwardOrigin{FirstName: o.Chat.Title}
	default:
		return nil
	}
}

// Send delivers a plain text message.
func (a *Adapter) Send(ctx context.Context, chatID int64, text string) error {
	_, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text))
	return err
}

// SendConfirmation delivers text with inline yes/no buttons.
func (a *Adapter) SendConfirmation(ctx context.Context, chatID int64, text string) error {
	keyboard := tu.InlineKeyboard(
		tu.InlineKeyboardRow(
			tu.InlineKeyboardButton("Да").WithCallbackData(events.CallbackConfirmYes),
			tu.InlineKeyboardButton("Нет").WithCallbackData(events.CallbackConfirmNo),
		),
	)

	_, err := a.bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text).WithReplyMarkup(keyboard))
	return err
}

// AnswerCallback acknowledges an inline-button press.
func (a *Adapter) AnswerCallback(ctx context.Context, callbackID string, text string) error {
	return a.bot.AnswerCallbackQuery(ctx, &telego.AnswerCallbackQueryParams{
		CallbackQueryID: callbackID,
		Text:            text,
	})
}

// ClearConfirmation edits the yes/no buttons off an answered confirmation.
func (a *Adapter) ClearConfirmation(ctx context.Context, chatID int64, messageID int) error {
	_, err := a.bot.EditMessageReplyMarkup(ctx, &telego.EditMessageReplyMarkupParams{
		ChatID:    tu.ID(chatID),
		MessageID: messageID,
	})
	return err
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	return trimmed[:messagePreviewLimit] + "..."
}
