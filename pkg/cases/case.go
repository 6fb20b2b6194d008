package cases

import (
	"sync"
	"time"

	"github.com/ShadowEagleDev/TelegramGoogleSheetsBot/pkg/events"
)

// Case is the in-flight grouping state for one conversation.
//
// All mutable state is guarded by mu. The debounce timer is epoch-fenced:
// every reset bumps the epoch, and a fired callback may only commit the
// awaiting-name transition while its captured epoch is still current.
type Case struct {
	key       int64
	createdAt time.Time
	manual    bool

	mu           sync.Mutex
	messages     []events.InboundMessage
	awaitingName bool
	epoch        uint64
	timer        *time.Timer
}

func newCase(key int64, manual bool, now time.Time) *Case {
	return &Case{
		key:       key,
		createdAt: now,
		manual:    manual,
	}
}

// Key returns the conversation key owning this case.
func (c *Case) Key() int64 {
	return c.key
}

// CreatedAt returns the creation timestamp used for TTL expiry.
func (c *Case) CreatedAt() time.Time {
	return c.createdAt
}

// Manual reports whether the case originated from an explicit
// create-manually confirmation rather than a forwarded message.
func (c *Case) Manual() bool {
	return c.manual
}

// AwaitingName reports whether the next message from this conversation
// is the operator name rather than case content.
func (c *Case) AwaitingName() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.awaitingName
}

// Len returns the number of collected messages.
func (c *Case) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.messages)
}

// Messages returns a copy of the collected messages in arrival order.
func (c *Case) Messages() []events.InboundMessage {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]events.InboundMessage, len(c.messages))
	copy(out, c.messages)
	return out
}

// Append adds one message without touching the debounce timer. Used while
// seeding a case before its first schedule.
func (c *Case) Append(msg events.InboundMessage) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// AppendAndReset appends content and restarts the grouping window in one
// critical section. The previous pending callback is invalidated before the
// new one is scheduled, so a stale fire can never commit.
//
// Returns false without appending when the case already awaits a name; the
// caller must then treat the message as the operator name instead.
func (c *Case) AppendAndReset(msg events.InboundMessage, delay time.Duration, fire func(epoch uint64)) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.awaitingName {
		return false
	}

	c.messages = append(c.messages, msg)

	if c.timer != nil {
		c.timer.Stop()
	}
	c.epoch++
	epoch := c.epoch
	c.timer = time.AfterFunc(delay, func() { fire(epoch) })

	return true
}

// TryFire commits the awaiting-name transition for a debounce callback.
// It refuses when the captured epoch was superseded, the transition already
// happened, or the case was disposed.
func (c *Case) TryFire(epoch uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if epoch != c.epoch || c.awaitingName {
		return false
	}

	c.awaitingName = true
	return true
}

// BeginAwaitName forces the awaiting-name transition outside the debounce
// path (manual confirmation accepted). Any pending callback is invalidated.
// Returns false when the case already awaits a name.
func (c *Case) BeginAwaitName() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.awaitingName {
		return false
	}

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.epoch++
	c.awaitingName = true
	return true
}

// dispose stops the pending timer and fences off late callbacks.
// Safe to call more than once.
func (c *Case) dispose() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	// Bump the epoch so a callback that already fired but has not yet
	// reached TryFire observes staleness.
	c.epoch++
}
