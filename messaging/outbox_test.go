package messaging

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingSender struct {
	err   error
	calls int
}

func (f *failingSender) Send(context.Context, string, []string, []Attachment) error {
	f.calls++
	return f.err
}

func TestOutboxRecordsMessages(t *testing.T) {
	o := NewOutbox(nil)
	fixed := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	o.now = func() time.Time { return fixed }

	var settled []Message
	o.OnDelivery(func(m Message) { settled = append(settled, m) })

	ctx := context.Background()
	require.NoError(t, o.Send(ctx, "chat-1", []string{"call started at 12:00"}, nil))
	require.NoError(t, o.Send(ctx, "chat-2", []string{"Missed call"}, nil))
	require.NoError(t, o.Send(ctx, "chat-1", []string{"line one", "line two"}, nil))

	msgs := o.Messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, uint32(1), msgs[0].ID)
	assert.Equal(t, fixed, msgs[0].Timestamp)
	assert.Equal(t, MessageStateSent, msgs[0].State)

	assert.Len(t, o.ForChannel("chat-1"), 2)
	assert.Equal(t, []string{"call started at 12:00", "line one\nline two"}, o.Texts("chat-1"))
	assert.Len(t, settled, 3)
}

func TestOutboxRejectsEmpty(t *testing.T) {
	o := NewOutbox(nil)
	assert.ErrorIs(t, o.Send(context.Background(), "chat-1", nil, nil), ErrEmptyMessage)
	assert.Error(t, o.Send(context.Background(), "", []string{"x"}, nil))
	assert.Empty(t, o.Messages())
}

func TestOutboxForwardFailure(t *testing.T) {
	backend := &failingSender{err: errors.New("backend down")}
	o := NewOutbox(backend)

	err := o.Send(context.Background(), "chat-1", []string{"Missed call"}, []Attachment{{Name: "a.txt"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, backend.err)
	assert.Equal(t, 1, backend.calls)

	msgs := o.Messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, MessageStateFailed, msgs[0].State)
	assert.Equal(t, "failed", msgs[0].State.String())
	assert.Len(t, msgs[0].Attachments, 1)
}

func TestOutboxCopiesInput(t *testing.T) {
	o := NewOutbox(nil)
	lines := []string{"original"}
	require.NoError(t, o.Send(context.Background(), "chat-1", lines, nil))
	lines[0] = "mutated"
	assert.Equal(t, []string{"original"}, o.Messages()[0].Lines)
}
