package mailer

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/reawakened/rw-backend/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	mu   sync.Mutex
	msgs []Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.msgs = append(s.msgs, msg)
	return s.err
}

func (s *recordingSender) Messages() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.msgs...)
}

type blockingSender struct {
	release chan struct{}
}

func (s blockingSender) Send(ctx context.Context, _ Message) error {
	select {
	case <-s.release:
	case <-ctx.Done():
	}
	return nil
}

func TestDispatcher_DeliversAndDrainsOnClose(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatcherConfig{RatePerSecond: 100}, logging.Discard())

	for i := 0; i < 3; i++ {
		d.Enqueue(Message{To: "a@x.com", Subject: "hi"})
	}
	d.Close()

	assert.Len(t, sender.Messages(), 3)

	// Enqueue after Close is a no-op.
	d.Enqueue(Message{To: "late@x.com"})
	assert.Len(t, sender.Messages(), 3)
}

func TestDispatcher_SendErrorsAreCounted(t *testing.T) {
	sender := &recordingSender{err: errors.New("smtp: 554 rejected")}
	d := NewDispatcher(sender, DispatcherConfig{RatePerSecond: 100}, logging.Discard())

	d.Enqueue(Message{To: "a@x.com"})
	d.Close()

	assert.Equal(t, uint64(1), d.Failed())
}

func TestDispatcher_DropsWhenFull(t *testing.T) {
	sender := blockingSender{release: make(chan struct{})}
	d := NewDispatcher(sender, DispatcherConfig{BufferSize: 1, RatePerSecond: 100}, logging.Discard())

	// The worker picks up the first message and blocks; the second fills the
	// buffer; the third is dropped.
	d.Enqueue(Message{To: "1@x.com"})
	require.Eventually(t, func() bool { return len(d.ch) == 0 }, time.Second, time.Millisecond)
	d.Enqueue(Message{To: "2@x.com"})
	d.Enqueue(Message{To: "3@x.com"})

	assert.Equal(t, uint64(1), d.Dropped())

	close(sender.release)
	d.Close()
}

func TestEnqueue_NilDispatcher(t *testing.T) {
	var d *Dispatcher
	assert.NotPanics(t, func() {
		d.Enqueue(Message{To: "a@x.com"})
		d.Close()
	})
}

func TestNotifier_RendersLinks(t *testing.T) {
	sender := &recordingSender{}
	d := NewDispatcher(sender, DispatcherConfig{RatePerSecond: 100}, logging.Discard())
	n := Notifier{Dispatcher: d, BaseURL: "https://reawakened.app/"}

	require.NoError(t, n.SendVerification("a@x.com", "Ada", "tok123"))
	require.NoError(t, n.SendPasswordReset("a@x.com", "Ada", "tok456"))
	require.NoError(t, n.SendWelcome("a@x.com", "Ada"))
	d.Close()

	msgs := sender.Messages()
	require.Len(t, msgs, 3)
	assert.Contains(t, msgs[0].Body, "https://reawakened.app/verify-email?token=tok123")
	assert.Contains(t, msgs[0].Body, "Hi Ada,")
	assert.Contains(t, msgs[1].Body, "https://reawakened.app/reset-password?token=tok456")
	assert.Equal(t, "Welcome to Reawakened", msgs[2].Subject)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Ada Lovelace", DisplayName("ada@x.com", "ada", "lovelace"))
	assert.Equal(t, "Grace", DisplayName("grace@x.com", " grace ", ""))
	assert.Equal(t, "Joseph", DisplayName("joseph@x.com", "", ""))
}

func TestEnvelopeAddress(t *testing.T) {
	assert.Equal(t, "no-reply@reawakened.app", envelopeAddress("Reawakened <no-reply@reawakened.app>"))
	assert.Equal(t, "plain@x.com", envelopeAddress("plain@x.com"))
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, LogSender{Logger: logging.Discard()}.Send(context.Background(), Message{To: "a@x.com"}))
}
