package consumer

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotkeeper/libs/kafkax"
	"github.com/segmentio/kafka-go"
)

type fakeReader struct {
	msgs      chan kafka.Message
	mu        sync.Mutex
	committed []string
	closed    bool
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	case m, ok := <-r.msgs:
		if !ok {
			<-ctx.Done()
			return kafka.Message{}, ctx.Err()
		}
		return m, nil
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, kafkax.ExtractEventMeta(m).EventID)
	}
	return nil
}

func (r *fakeReader) Committed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.committed...)
}

func (r *fakeReader) Close() error {
	r.closed = true
	return nil
}

type memInbox struct {
	mu        sync.Mutex
	seen      map[string]bool
	forgotten []string
}

func (i *memInbox) Record(_ context.Context, id, _ string) (bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.seen[id] {
		return false, nil
	}
	i.seen[id] = true
	return true, nil
}

func (i *memInbox) Forget(_ context.Context, id string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.seen, id)
	i.forgotten = append(i.forgotten, id)
	return nil
}

func message(id string) kafka.Message {
	return kafka.Message{
		Topic:   "business.staff.upserted.v1",
		Key:     []byte("staff"),
		Headers: kafkax.EventMeta{EventID: id, EventType: "business.staff.upserted.v1"}.Headers(),
	}
}

// recorder is a handler that fails each event id a configured number of times
// and closes done once total deliveries reach want.
type recorder struct {
	mu      sync.Mutex
	handled []string
	fail    map[string]int
	want    int
	done    chan struct{}
}

func newRecorder(want int, fail map[string]int) *recorder {
	return &recorder{fail: fail, want: want, done: make(chan struct{})}
}

func (h *recorder) handle(_ context.Context, msg kafka.Message) error {
	id := kafkax.ExtractEventMeta(msg).EventID
	h.mu.Lock()
	defer h.mu.Unlock()
	h.handled = append(h.handled, id)
	if len(h.handled) == h.want {
		close(h.done)
	}
	if h.fail[id] != 0 {
		if h.fail[id] > 0 {
			h.fail[id]--
		}
		return errors.New("boom")
	}
	return nil
}

func (h *recorder) Handled() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.handled...)
}

func startConsumer(t *testing.T, c *Consumer) (context.CancelFunc, <-chan struct{}) {
	t.Helper()
	c.backoff = time.Millisecond
	c.maxBackoff = 4 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	finished := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(finished)
	}()
	return cancel, finished
}

func waitFor(t *testing.T, done <-chan struct{}) {
	t.Helper()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for messages")
	}
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestConsumerRetriesFailuresBeforeCommitting(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := &fakeReader{msgs: make(chan kafka.Message, 4)}
	inbox := &memInbox{seen: map[string]bool{}}
	h := newRecorder(5, map[string]int{"evt-bad": 2})
	c := NewWithReader(logger, inbox, reader, h.handle)

	reader.msgs <- message("evt-1")
	reader.msgs <- message("evt-1")
	reader.msgs <- message("evt-bad")
	reader.msgs <- message("evt-2")

	cancel, finished := startConsumer(t, c)
	waitFor(t, h.done)
	// evt-2 is the last delivery; give its commit a moment before stopping.
	deadline := time.Now().Add(2 * time.Second)
	for len(reader.Committed()) < 4 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-finished

	if got := h.Handled(); !equal(got, []string{"evt-1", "evt-bad", "evt-bad", "evt-bad", "evt-2"}) {
		t.Fatalf("unexpected handled sequence %v", got)
	}
	if got := reader.Committed(); !equal(got, []string{"evt-1", "evt-1", "evt-bad", "evt-2"}) {
		t.Fatalf("expected duplicates committed and evt-bad committed once after success, got %v", got)
	}
	if !equal(inbox.forgotten, []string{"evt-bad", "evt-bad"}) {
		t.Fatalf("expected each failed attempt to be forgotten, got %v", inbox.forgotten)
	}
	if !reader.closed {
		t.Fatal("expected reader to be closed on shutdown")
	}
}

func TestConsumerDropsAfterMaxAttempts(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := &fakeReader{msgs: make(chan kafka.Message, 2)}
	inbox := &memInbox{seen: map[string]bool{}}
	h := newRecorder(4, map[string]int{"evt-poison": -1})
	c := NewWithReader(logger, inbox, reader, h.handle)
	c.maxAttempts = 3

	reader.msgs <- message("evt-poison")
	reader.msgs <- message("evt-2")

	cancel, finished := startConsumer(t, c)
	waitFor(t, h.done)
	deadline := time.Now().Add(2 * time.Second)
	for len(reader.Committed()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	cancel()
	<-finished

	if got := h.Handled(); !equal(got, []string{"evt-poison", "evt-poison", "evt-poison", "evt-2"}) {
		t.Fatalf("expected three attempts then the next event, got %v", got)
	}
	if got := reader.Committed(); !equal(got, []string{"evt-poison", "evt-2"}) {
		t.Fatalf("expected poison event committed after giving up, got %v", got)
	}
}

func TestConsumerLeavesFailingMessageUncommittedOnShutdown(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reader := &fakeReader{msgs: make(chan kafka.Message, 1)}
	inbox := &memInbox{seen: map[string]bool{}}
	h := newRecorder(2, map[string]int{"evt-bad": -1})
	c := NewWithReader(logger, inbox, reader, h.handle)
	c.maxAttempts = 1000

	reader.msgs <- message("evt-bad")

	cancel, finished := startConsumer(t, c)
	waitFor(t, h.done)
	cancel()
	<-finished

	if got := reader.Committed(); len(got) != 0 {
		t.Fatalf("expected no commit for an unfinished message, got %v", got)
	}
	inbox.mu.Lock()
	defer inbox.mu.Unlock()
	if inbox.seen["evt-bad"] {
		t.Fatal("expected failed event to be released from the inbox")
	}
}
