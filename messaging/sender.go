package messaging

import (
	"context"
	"errors"
)

// ErrEmptyMessage indicates a send with no text and no attachments.
var ErrEmptyMessage = errors.New("message has no lines or attachments")

// Attachment is a file sent along with a message.
type Attachment struct {
	Name string
	MIME string
	Data []byte
}

// Sender posts messages into a conversation.
type Sender interface {
	Send(ctx context.Context, channel string, lines []string, attachments []Attachment) error
}
