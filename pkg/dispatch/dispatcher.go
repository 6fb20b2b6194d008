// Package dispatch routes inbound chat events through the per-conversation
// case state machine and drives user-facing prompts.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/cases"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/events"
	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/sink"
)

// Transport is the outbound chat surface the dispatcher drives.
type Transport interface {
	Send(ctx context.Context, chatID int64, text string) error
	// SendConfirmation sends text with inline yes/no buttons carrying
	// events.CallbackConfirmYes / events.CallbackConfirmNo.
	SendConfirmation(ctx context.Context, chatID int64, text string) error
	AnswerCallback(ctx context.Context, callbackID string, text string) error
	// ClearConfirmation removes the inline buttons from an earlier
	// confirmation message.
	ClearConfirmation(ctx context.Context, chatID int64, messageID int) error
}

// User-facing texts. The bot speaks Russian to its operators.
const (
	textAskNameSingle   = "Принято сообщение. Введите имя оператора:"
	textAskNamePlural   = "Принято %d сообщений, они будут объединены. Введите имя оператора:"
	textNameEmpty       = "Имя оператора не может быть пустым. Введите имя оператора:"
	textConfirmManual   = "Сообщение не является пересланным. Создать обращение вручную?"
	textManualCancelled = "Создание обращения отменено."
	textOverloaded      = "Слишком много открытых обращений, попробуйте позже."
	textSinkFailed      = "Не удалось сохранить обращение. Обратитесь к администратору."
	textStaleAction     = "Действие устарело."
	textCaseSaved       = "Обращение %s зарегистрировано. Оператор: %s"
)

// Dispatcher owns event routing for all conversations. It is safe for
// concurrent use; per-case ordering is enforced by the case's own lock.
type Dispatcher struct {
	ctx       context.Context
	registry  *cases.Registry
	sink      sink.Sink
	transport Transport
	delay     time.Duration
	log       *slog.Logger
	now       func() time.Time
}

// New builds a dispatcher. ctx outlives individual events and scopes
// timer-initiated outbound sends.
func New(ctx context.Context, registry *cases.Registry, snk sink.Sink, transport Transport, groupingDelay time.Duration, log *slog.Logger) *Dispatcher {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		log = slog.Default()
	}

	return &Dispatcher{
		ctx:       ctx,
		registry:  registry,
		sink:      snk,
		transport: transport,
		delay:     groupingDelay,
		log:       log.With("component", "dispatch"),
		now:       time.Now,
	}
}

// HandleMessage routes one inbound message. Precedence: name capture for a
// case awaiting its name, then the manual-creation branch for unforwarded
// messages without a case, then content collection.
func (d *Dispatcher) HandleMessage(ctx context.Context, msg events.InboundMessage) {
	defer d.containPanic("message", msg.ChatID)

	key := msg.ChatID

	if c, ok := d.registry.Get(key); ok && c.AwaitingName() {
		d.handleName(ctx, c, msg)
		return
	}

	if msg.Forward == nil {
		if _, ok := d.registry.Get(key); !ok {
			d.startManualCase(ctx, msg)
			return
		}
	}

	d.collectContent(ctx, msg)
}

// HandleCallback applies a manual-creation confirmation. Confirmations for
// conversations without a manual case are stale and absorbed.
func (d *Dispatcher) HandleCallback(ctx context.Context, cb events.CallbackQuery) {
	defer d.containPanic("callback", cb.ChatID)

	c, ok := d.registry.Get(cb.ChatID)
	if !ok || !c.Manual() {
		d.log.Debug("Ignoring stale confirmation", "chat_id", cb.ChatID, "data", cb.Data)
		d.answer(ctx, cb.ID, textStaleAction)
		return
	}

	d.answer(ctx, cb.ID, "")
	if err := d.transport.ClearConfirmation(ctx, cb.ChatID, cb.MessageID); err != nil {
		d.log.Debug("Failed to clear confirmation buttons", "chat_id", cb.ChatID, "error", err)
	}

	switch cb.Data {
	case events.CallbackConfirmYes:
		if !c.BeginAwaitName() {
			d.log.Debug("Confirmation for case already awaiting name", "chat_id", cb.ChatID)
			return
		}
		d.askName(ctx, cb.ChatID, c.Len())
	case events.CallbackConfirmNo:
		d.registry.Remove(cb.ChatID)
		d.send(ctx, cb.ChatID, textManualCancelled)
	default:
		d.log.Warn("Unknown confirmation payload", "chat_id", cb.ChatID, "data", cb.Data)
	}
}

// startManualCase opens an unconfirmed manual case holding this message and
// asks the user whether to proceed.
func (d *Dispatcher) startManualCase(ctx context.Context, msg events.InboundMessage) {
	c, created := d.registry.GetOrCreate(msg.ChatID, true)
	if !created {
		// Another event for this conversation won the race; fold the
		// message into the existing case instead.
		d.collectContent(ctx, msg)
		return
	}

	c.Append(msg)
	d.log.Info("Manual case proposed", "chat_id", msg.ChatID)

	if err := d.transport.SendConfirmation(ctx, msg.ChatID, textConfirmManual); err != nil {
		d.log.Error("Failed to send manual confirmation", "chat_id", msg.ChatID, "error", err)
	}
}

// collectContent appends the message to the conversation's case and restarts
// the grouping window, creating the case when admission allows.
func (d *Dispatcher) collectContent(ctx context.Context, msg events.InboundMessage) {
	key := msg.ChatID

	c, created, admitted := d.registry.AdmitAndCreate(key, false)
	if !admitted {
		d.log.Warn("Registry at capacity, refusing new case", "chat_id", key, "pending", d.registry.Len())
		d.send(ctx, key, textOverloaded)
		return
	}
	if created {
		d.log.Info("Case opened", "chat_id", key)
	}

	fire := func(epoch uint64) { d.onDebounceFire(key, epoch) }
	if !c.AppendAndReset(msg, d.delay, fire) {
		// The grouping window closed between routing and append; the
		// message is the operator name after all.
		d.handleName(ctx, c, msg)
		return
	}

	d.log.Debug("Message collected", "chat_id", key, "messages", c.Len())
}

// onDebounceFire runs when a grouping window elapses undisturbed. Stale
// epochs and removed cases are silent no-ops.
func (d *Dispatcher) onDebounceFire(key int64, epoch uint64) {
	defer d.containPanic("debounce", key)

	c, ok := d.registry.Get(key)
	if !ok {
		d.log.Debug("Debounce fired for removed case", "chat_id", key)
		return
	}
	if !c.TryFire(epoch) {
		d.log.Debug("Debounce fired with stale epoch", "chat_id", key, "epoch", epoch)
		return
	}

	d.log.Info("Grouping window closed", "chat_id", key, "messages", c.Len())
	d.askName(d.ctx, key, c.Len())
}

// handleName consumes the operator name, assembles the record and hands the
// case to the sink. Success and sink failure both release the case; only a
// validation failure keeps it alive.
func (d *Dispatcher) handleName(ctx context.Context, c *cases.Case, msg events.InboundMessage) {
	name := strings.TrimSpace(msg.Text)
	if name == "" {
		d.send(ctx, msg.ChatID, textNameEmpty)
		return
	}

	removed := d.registry.Remove(c.Key())
	if removed == nil {
		// Swept or completed concurrently; nothing left to record.
		d.log.Debug("Name received for removed case", "chat_id", msg.ChatID)
		return
	}

	rec := cases.BuildRecord(removed, name, d.now())

	caseID, err := d.sink.Append(ctx, rec)
	if err != nil {
		d.log.Error("Sink append failed", "chat_id", msg.ChatID, "error", err)
		d.send(ctx, msg.ChatID, textSinkFailed)
		return
	}

	d.log.Info("Case recorded", "chat_id", msg.ChatID, "case_id", caseID, "operator", name)
	d.send(ctx, msg.ChatID, fmt.Sprintf(textCaseSaved, caseID, name))
}

// askName prompts for the operator name with count-aware phrasing.
func (d *Dispatcher) askName(ctx context.Context, chatID int64, count int) {
	text := textAskNameSingle
	if count > 1 {
		text = fmt.Sprintf(textAskNamePlural, count)
	}

	d.send(ctx, chatID, text)
}

func (d *Dispatcher) send(ctx context.Context, chatID int64, text string) {
	if err := d.transport.Send(ctx, chatID, text); err != nil {
		d.log.Error("Failed to send message", "chat_id", chatID, "error", err)
	}
}

func (d *Dispatcher) answer(ctx context.Context, callbackID string, text string) {
	if err := d.transport.AnswerCallback(ctx, callbackID, text); err != nil {
		d.log.Debug("Failed to answer callback", "error", err)
	}
}

// containPanic keeps one event's fault from taking down the dispatcher.
func (d *Dispatcher) containPanic(kind string, chatID int64) {
	if r := recover(); r != nil {
		d.log.Error("Recovered from event handler panic", "kind", kind, "chat_id", chatID, "panic", r)
	}
}
