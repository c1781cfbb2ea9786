package core

import (
	"context"
	"testing"
	"time"
)

func startHub(t *testing.T) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(nil)
	go hub.Run(ctx)
	return hub
}

func TestHubJoinPublishAndLeave(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "u1", "alice")
	bob := NewClient("c2", "u2", "bob")
	hub.RegisterClient(alice)
	hub.RegisterClient(bob)

	group := ConversationGroup(7)
	hub.Join(alice, group)
	hub.Join(bob, group)
	mustEvent(t, alice.Events, EventJoined)
	mustEvent(t, bob.Events, EventJoined)

	payload := MessagePayload{ConversationID: 7, Content: "hi", SenderName: "alice", SentAt: time.Now()}
	if err := hub.Publish(group, EventReceiveMessage, payload); err != nil {
		t.Fatalf("publish: %v", err)
	}

	for _, c := range []*Client{alice, bob} {
		ev := mustEvent(t, c.Events, EventPublished)
		got, ok := ev.Payload.(MessagePayload)
		if !ok || ev.Name != EventReceiveMessage || got.Content != "hi" || ev.Group != group {
			t.Fatalf("unexpected published event for %s: %+v", c.Name, ev)
		}
	}

	hub.Leave(bob, group)
	mustEvent(t, bob.Events, EventLeft)

	if err := hub.Publish(group, EventReceiveMessage, MessagePayload{Content: "only alice"}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	ev := mustEvent(t, alice.Events, EventPublished)
	if ev.Payload.(MessagePayload).Content != "only alice" {
		t.Fatalf("unexpected payload: %+v", ev.Payload)
	}
	assertNoEvent(t, bob.Events)
}

func TestHubPublishPreservesOrderWithinGroup(t *testing.T) {
	hub := startHub(t)

	viewer := NewClient("c1", "u1", "viewer")
	hub.RegisterClient(viewer)
	group := ConversationGroup(1)
	hub.Join(viewer, group)
	mustEvent(t, viewer.Events, EventJoined)

	for i := range 10 {
		if err := hub.Publish(group, EventReceiveMessage, MessagePayload{MessageID: int64(i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}
	for i := range 10 {
		ev := mustEvent(t, viewer.Events, EventPublished)
		if got := ev.Payload.(MessagePayload).MessageID; got != int64(i) {
			t.Fatalf("expected message %d, got %d", i, got)
		}
	}
}

func TestHubPublishToEmptyGroupIsNoop(t *testing.T) {
	hub := startHub(t)

	if err := hub.Publish(ConversationGroup(99), EventReceiveMessage, MessagePayload{}); err != nil {
		t.Fatalf("publish to empty group should not fail: %v", err)
	}
}

func TestHubDoubleJoinProducesError(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "u1", "alice")
	hub.RegisterClient(alice)

	hub.Join(alice, ConversationGroup(1))
	hub.Join(alice, ConversationGroup(1))

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeAlreadyJoined {
		t.Fatalf("expected already_joined error, got %+v", ev)
	}
}

func TestHubLeaveUnknownGroupError(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "u1", "alice")
	hub.RegisterClient(alice)

	hub.Leave(alice, ConversationGroup(404))

	ev := mustEvent(t, alice.Events, EventError)
	if ev.Error == nil || ev.Error.Code != ErrCodeGroupNotFound {
		t.Fatalf("expected group_not_found error, got %+v", ev)
	}
}

func TestHubUnregisterClosesEvents(t *testing.T) {
	hub := startHub(t)

	alice := NewClient("c1", "u1", "alice")
	hub.RegisterClient(alice)
	hub.Join(alice, ConversationGroup(1))
	mustEvent(t, alice.Events, EventJoined)

	hub.UnregisterClient(alice)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-alice.Events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel was not closed after unregister")
		}
	}
}

func TestHubSlowConsumerDoesNotBlockOthers(t *testing.T) {
	hub := startHub(t)

	slow := NewClient("c1", "u1", "slow")
	fast := NewClient("c2", "u2", "fast")
	hub.RegisterClient(slow)
	hub.RegisterClient(fast)
	group := ConversationGroup(3)
	hub.Join(slow, group)
	hub.Join(fast, group)
	mustEvent(t, fast.Events, EventJoined)

	// Never drain slow; publish more than its buffer holds.
	total := clientEventBuffer * 2
	received := 0
	for i := range total {
		if err := hub.Publish(group, EventReceiveMessage, MessagePayload{MessageID: int64(i)}); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
		mustEvent(t, fast.Events, EventPublished)
		received++
	}
	if received != total {
		t.Fatalf("fast consumer received %d of %d", received, total)
	}
}

func TestConversationGroupRoundTrip(t *testing.T) {
	key := ConversationGroup(42)
	if key != "conversation:42" {
		t.Fatalf("unexpected key %q", key)
	}
	id, err := ParseConversationGroup(key)
	if err != nil || id != 42 {
		t.Fatalf("parse %q: id=%d err=%v", key, id, err)
	}
	if _, err := ParseConversationGroup("room:1"); err == nil {
		t.Fatal("expected error for foreign key")
	}
}
