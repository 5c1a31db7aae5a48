package events

import (
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"notifyd/internal/platform/models"
)

type fakeReader struct {
	mu        sync.Mutex
	messages  []kafka.Message
	committed []int64
	cancel    context.CancelFunc
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.messages) == 0 {
		r.cancel()
		return kafka.Message{}, ctx.Err()
	}
	msg := r.messages[0]
	r.messages = r.messages[1:]
	return msg, nil
}

func (r *fakeReader) CommitMessages(ctx context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error { return nil }

func TestConsumer_ProcessesAndCommits(t *testing.T) {
	h := newHarness(newRule("rule_1", 0, 1, models.RuleAction{Type: models.ActionNotifyChannel, ChannelID: "ops"}))

	valid, _ := json.Marshal(models.Event{
		ID:             "evt_1",
		OrganizationID: "org_1",
		TriggerType:    models.TriggerBackupFailed,
		ScopeKey:       "agent-a",
		OccurredAt:     h.now,
	})
	invalid, _ := json.Marshal(models.Event{OrganizationID: "org_1", TriggerType: "disk_full", ScopeKey: "a"})

	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		messages: []kafka.Message{
			{Offset: 1, Value: valid},
			{Offset: 2, Value: []byte("{not json")},
			{Offset: 3, Value: invalid},
		},
		cancel: cancel,
	}

	c := newConsumer(reader, "domain-events", h.processor)
	if err := c.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(reader.committed) != 3 {
		t.Errorf("committed offsets = %v, want all three", reader.committed)
	}
	if len(h.channels.sent) != 1 {
		t.Errorf("notifications = %d, want 1", len(h.channels.sent))
	}
}

func TestDecodeEvent(t *testing.T) {
	event, err := decodeEvent([]byte(`{"id":"evt_9","organization_id":"org_1","trigger_type":"sla_breach","scope_key":"repo-1","occurred_at":"2026-03-01T08:00:00Z","data":{"minutes":42}}`))
	if err != nil {
		t.Fatalf("decodeEvent() error = %v", err)
	}
	if event.ID != "evt_9" || event.TriggerType != models.TriggerSLABreach || event.Data["minutes"] != float64(42) {
		t.Errorf("decodeEvent() = %+v", event)
	}

	if _, err := decodeEvent([]byte("[]")); err == nil {
		t.Error("decodeEvent() accepted a JSON array")
	}
}
