package message_broker

import (
	"context"
	"testing"
	"time"
)

func TestPublishSubscribeRoundTrip(t *testing.T) {
	ctx := context.Background()
	broker := NewChannelMessageBroker()
	defer broker.Close()

	messages, err := broker.Subscribe(ctx, "chat.cancel", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	payload := []byte(`{"conversation_id":"abc"}`)
	if err := broker.Publish(ctx, "chat.cancel", "", payload); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-messages:
		if msg.Topic != "chat.cancel" || string(msg.Payload) != string(payload) {
			t.Errorf("received %+v, want the published payload", msg)
		}
		if msg.Timestamp.IsZero() {
			t.Error("message carries no timestamp")
		}
	case <-time.After(time.Second):
		t.Fatal("published message never arrived")
	}
}

func TestRoutingKeysIsolateChannels(t *testing.T) {
	ctx := context.Background()
	broker := NewChannelMessageBroker()
	defer broker.Close()

	a, _ := broker.Subscribe(ctx, "topic", "a")
	if err := broker.Publish(ctx, "topic", "b", []byte("for b")); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-a:
		t.Errorf("routing key a received message for b: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}

	if broker.TopicCount() != 2 {
		t.Errorf("TopicCount = %d, want 2", broker.TopicCount())
	}
}

func TestClosedBrokerRejectsOperations(t *testing.T) {
	ctx := context.Background()
	broker := NewChannelMessageBroker()

	messages, err := broker.Subscribe(ctx, "topic", "")
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if err := broker.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := broker.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}

	if _, ok := <-messages; ok {
		t.Error("subscriber channel still open after Close")
	}
	if err := broker.Publish(ctx, "topic", "", []byte("late")); err == nil {
		t.Error("Publish after Close succeeded")
	}
	if _, err := broker.Subscribe(ctx, "topic", ""); err == nil {
		t.Error("Subscribe after Close succeeded")
	}
}
