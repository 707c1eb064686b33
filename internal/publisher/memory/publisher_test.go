package memory

import (
	"context"
	"testing"
)

func TestPublishRecordsMessages(t *testing.T) {
	t.Parallel()

	pub := New()

	id, err := pub.Publish(context.Background(), "deploy-events", map[string]string{"release_id": "rel-1"})
	if err != nil {
		t.Fatalf("Publish() error = %v", err)
	}
	if id == "" {
		t.Fatalf("expected a message ID")
	}

	msgs := pub.Messages()
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].Topic != "deploy-events" {
		t.Fatalf("unexpected topic %q", msgs[0].Topic)
	}
}

func TestMessagesReturnsCopy(t *testing.T) {
	t.Parallel()

	pub := New()
	if _, err := pub.Publish(context.Background(), "a", nil); err != nil {
		t.Fatalf("Publish() error = %v", err)
	}

	got := pub.Messages()
	got[0].Topic = "mutated"

	if pub.Messages()[0].Topic != "a" {
		t.Fatalf("expected internal state to be unaffected by caller mutation")
	}
}
