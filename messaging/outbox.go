package messaging

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// MessageState is the delivery state of an outbox message.
type MessageState uint8

const (
	// MessageStatePending means the message is recorded but not delivered.
	MessageStatePending MessageState = iota
	// MessageStateSent means the message was delivered.
	MessageStateSent
	// MessageStateFailed means forwarding failed.
	MessageStateFailed
)

// String returns the state name.
func (s MessageState) String() string {
	switch s {
	case MessageStatePending:
		return "pending"
	case MessageStateSent:
		return "sent"
	case MessageStateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Message is one recorded system message.
type Message struct {
	ID          uint32
	Channel     string
	Lines       []string
	Attachments []Attachment
	Timestamp   time.Time
	State       MessageState
	Err         error
}

// DeliveryCallback is called when a message settles.
type DeliveryCallback func(message Message)

// Outbox records messages and optionally forwards them to another Sender.
type Outbox struct {
	forward  Sender
	now      func() time.Time
	messages []Message
	nextID   uint32
	callback DeliveryCallback

	mu sync.Mutex
}

// NewOutbox creates an outbox. forward may be nil, in which case every
// message counts as sent once recorded.
func NewOutbox(forward Sender) *Outbox {
	return &Outbox{
		forward: forward,
		now:     time.Now,
		nextID:  1,
	}
}

// OnDelivery registers a callback for settled messages.
func (o *Outbox) OnDelivery(cb DeliveryCallback) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.callback = cb
}

// Send records the message and forwards it.
func (o *Outbox) Send(ctx context.Context, channel string, lines []string, attachments []Attachment) error {
	if len(lines) == 0 && len(attachments) == 0 {
		return ErrEmptyMessage
	}
	if channel == "" {
		return fmt.Errorf("send: empty channel")
	}

	o.mu.Lock()
	msg := Message{
		ID:          o.nextID,
		Channel:     channel,
		Lines:       append([]string(nil), lines...),
		Attachments: append([]Attachment(nil), attachments...),
		Timestamp:   o.now(),
		State:       MessageStatePending,
	}
	o.nextID++
	o.messages = append(o.messages, msg)
	forward := o.forward
	o.mu.Unlock()

	var err error
	if forward != nil {
		err = forward.Send(ctx, channel, lines, attachments)
	}

	state := MessageStateSent
	if err != nil {
		state = MessageStateFailed
		err = fmt.Errorf("forward message %d: %w", msg.ID, err)
	}
	o.settle(msg.ID, state, err)

	logrus.WithFields(logrus.Fields{
		"function": "Outbox.Send",
		"channel":  channel,
		"id":       msg.ID,
		"lines":    len(lines),
		"state":    state.String(),
	}).Debug("System message recorded")

	return err
}

func (o *Outbox) settle(id uint32, state MessageState, err error) {
	o.mu.Lock()
	var settled Message
	for i := range o.messages {
		if o.messages[i].ID == id {
			o.messages[i].State = state
			o.messages[i].Err = err
			settled = o.messages[i]
			break
		}
	}
	cb := o.callback
	o.mu.Unlock()

	if cb != nil {
		cb(settled)
	}
}

// Messages returns every recorded message in send order.
func (o *Outbox) Messages() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.messages...)
}

// ForChannel returns the messages recorded for channel.
func (o *Outbox) ForChannel(channel string) []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	var out []Message
	for _, m := range o.messages {
		if m.Channel == channel {
			out = append(out, m)
		}
	}
	return out
}

// Texts returns the joined text of each message recorded for channel.
func (o *Outbox) Texts(channel string) []string {
	var out []string
	for _, m := range o.ForChannel(channel) {
		out = append(out, strings.Join(m.Lines, "\n"))
	}
	return out
}
