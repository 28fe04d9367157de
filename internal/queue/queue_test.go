package queue

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestSerializeRoundTrip(t *testing.T) {
	msg := Message{Type: "verification.pending", Body: []byte(`{"a":"b|c"}`)}
	got := deserialize(serialize(msg))
	if got.Type != msg.Type || string(got.Body) != string(msg.Body) {
		t.Fatalf("got %+v, want %+v", got, msg)
	}
	if got := deserialize("bare"); got.Type != "" || string(got.Body) != "bare" {
		t.Fatalf("untagged message decoded as %+v", got)
	}
}

func TestInMemoryPublishConsume(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(1)
	if err := q.Publish(ctx, Message{Type: "t", Body: []byte("1")}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if err := q.Publish(ctx, Message{Type: "t", Body: []byte("2")}); !errors.Is(err, ErrFull) {
		t.Fatalf("second Publish err = %v, want ErrFull", err)
	}

	ch, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("Consume: %v", err)
	}
	select {
	case msg := <-ch:
		if string(msg.Body) != "1" {
			t.Fatalf("body = %q", msg.Body)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for message")
	}
}
