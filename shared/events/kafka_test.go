package events_test

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/pavitra93/go-simulation-admin/shared/events"
	"github.com/pavitra93/go-simulation-admin/shared/logging"
	"github.com/pavitra93/go-simulation-admin/shared/models"
)

type fakeWriter struct {
	mu      sync.Mutex
	msgs    []kafka.Message
	closed  bool
	started chan struct{}
	release chan struct{}
}

func (w *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if w.started != nil {
		w.started <- struct{}{}
		<-w.release
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.closed = true
	return nil
}

func (w *fakeWriter) messages() []kafka.Message {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]kafka.Message(nil), w.msgs...)
}

func event(action events.Action) events.ChangeEvent {
	return events.ChangeEvent{
		ID:         uuid.New(),
		Table:      "users",
		Action:     action,
		TenantRef:  uuid.New(),
		EntityRef:  uuid.New(),
		OccurredAt: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaPublisherWritesKeyedMessages(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	w := &fakeWriter{}
	p := events.NewKafkaPublisher(w, "entity-changes", 2, 10, log)

	ctx := logging.WithContext(context.Background(), log.WithField("request_id", "req-7"))
	e := event(events.ActionCreated)
	c.Assert(p.Publish(ctx, e), qt.IsNil)
	c.Assert(p.Close(), qt.IsNil)

	msgs := w.messages()
	c.Assert(msgs, qt.HasLen, 1)
	msg := msgs[0]
	c.Assert(msg.Topic, qt.Equals, "entity-changes")
	c.Assert(string(msg.Key), qt.Equals, e.TenantRef.String())
	c.Assert(header(msg, "event_type"), qt.Equals, "users.created")
	c.Assert(header(msg, "tenant_id"), qt.Equals, e.TenantRef.String())

	var got events.ChangeEvent
	c.Assert(json.Unmarshal(msg.Value, &got), qt.IsNil)
	c.Assert(got.EntityRef, qt.Equals, e.EntityRef)
	c.Assert(got.RequestID, qt.Equals, "req-7")
	c.Assert(w.closed, qt.IsTrue)
}

func TestKafkaPublisherQueueFull(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	w := &fakeWriter{started: make(chan struct{}, 1), release: make(chan struct{})}
	p := events.NewKafkaPublisher(w, "entity-changes", 1, 1, log)
	ctx := context.Background()

	c.Assert(p.Publish(ctx, event(events.ActionCreated)), qt.IsNil)
	<-w.started
	c.Assert(p.Publish(ctx, event(events.ActionUpdated)), qt.IsNil)
	c.Assert(p.Publish(ctx, event(events.ActionDeleted)), qt.Equals, events.ErrQueueFull)

	close(w.release)
	done := make(chan struct{})
	go func() {
		for range w.started {
		}
		close(done)
	}()
	c.Assert(p.Close(), qt.IsNil)
	close(w.started)
	<-done
	c.Assert(w.messages(), qt.HasLen, 2)
}

func TestKafkaPublisherClosed(t *testing.T) {
	c := qt.New(t)
	p := events.NewKafkaPublisher(&fakeWriter{}, "entity-changes", 1, 1, nil)

	c.Assert(p.Close(), qt.IsNil)
	c.Assert(p.Close(), qt.IsNil)
	c.Assert(p.Publish(context.Background(), event(events.ActionCreated)), qt.Equals, events.ErrClosed)
}

func TestChange(t *testing.T) {
	c := qt.New(t)
	ref := uuid.New()
	u := &models.User{Email: "a@b.test"}
	u.BindTenant(ref)
	u.Stamp()

	e := events.Change(u, events.ActionUpdated)
	c.Assert(e.Table, qt.Equals, "users")
	c.Assert(e.TenantRef, qt.Equals, ref)
	c.Assert(e.EntityRef, qt.Equals, u.LogicalID)
	c.Assert(e.OccurredAt, qt.Equals, u.UpdatedAt)
	c.Assert(e.ID, qt.Not(qt.Equals), uuid.Nil)

	tn := &models.Tenant{Slug: "acme"}
	tn.Stamp()
	c.Assert(events.Change(tn, events.ActionCreated).TenantRef, qt.Equals, tn.LogicalID)
}

func TestMemoryPublisher(t *testing.T) {
	c := qt.New(t)
	var p events.MemoryPublisher
	c.Assert(p.Publish(context.Background(), event(events.ActionCreated), event(events.ActionDeleted)), qt.IsNil)
	c.Assert(p.Events(), qt.HasLen, 2)
	c.Assert(events.NopPublisher{}.Publish(context.Background(), event(events.ActionCreated)), qt.IsNil)
}
