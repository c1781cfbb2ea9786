package core

import (
	"context"
	"strconv"
	"testing"
)

func benchmarkGroupPublish(b *testing.B, viewers int) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(nil)
	go hub.Run(ctx)

	group := ConversationGroup(1)
	clients := make([]*Client, 0, viewers)
	for i := range viewers {
		c := NewClient("c"+strconv.Itoa(i), "u"+strconv.Itoa(i), "")
		hub.RegisterClient(c)
		hub.Join(c, group)
		<-c.Events // joined
		clients = append(clients, c)
	}

	// Drain events for all but the first viewer to avoid drops.
	target := clients[0]
	for _, c := range clients[1:] {
		go func(cl *Client) {
			for range cl.Events {
			}
		}(c)
	}

	payload := MessagePayload{ConversationID: 1, Content: "payload"}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		for hub.Publish(group, EventReceiveMessage, payload) != nil {
		}
		<-target.Events
	}
}

func BenchmarkGroupPublish_2(b *testing.B)   { benchmarkGroupPublish(b, 2) }
func BenchmarkGroupPublish_10(b *testing.B)  { benchmarkGroupPublish(b, 10) }
func BenchmarkGroupPublish_100(b *testing.B) { benchmarkGroupPublish(b, 100) }
