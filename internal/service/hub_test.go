package service_test

import (
	"context"
	"testing"
	"time"

	"github.com/digkill/faithtrain/internal/service"
)

func TestHubDeliversToSubscriber(t *testing.T) {
	hub := service.NewStateHub()
	mine, cancel := hub.Subscribe(1)
	defer cancel()
	theirs, cancelTheirs := hub.Subscribe(2)
	defer cancelTheirs()

	hub.Publish(service.StateChange{UserID: 1, Topic: service.TopicBalance, Payload: int64(5)})

	select {
	case change := <-mine:
		if change.Topic != service.TopicBalance || change.Payload != int64(5) {
			t.Fatalf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("no change delivered")
	}
	select {
	case change := <-theirs:
		t.Fatalf("other user received %+v", change)
	default:
	}
}

func TestHubCancelClosesChannel(t *testing.T) {
	hub := service.NewStateHub()
	ch, cancel := hub.Subscribe(1)
	cancel()
	cancel()
	if _, ok := <-ch; ok {
		t.Fatal("channel still open")
	}
	hub.Publish(service.StateChange{UserID: 1, Topic: service.TopicStreak})
}

func TestHubDropsWhenFull(t *testing.T) {
	hub := service.NewStateHub()
	ch, cancel := hub.Subscribe(1)
	defer cancel()
	for i := 0; i < 100; i++ {
		hub.Publish(service.StateChange{UserID: 1, Topic: service.TopicUsage})
	}
	if len(ch) != cap(ch) {
		t.Fatalf("buffered %d of %d", len(ch), cap(ch))
	}
}

func TestNilHubPublish(t *testing.T) {
	var hub *service.StateHub
	hub.Publish(service.StateChange{UserID: 1})
}

func TestServicesPublishChanges(t *testing.T) {
	e := newEngine(t)
	uid := e.user(t, 1)
	ch, cancel := e.hub.Subscribe(uid)
	defer cancel()

	e.fund(t, uid, 25)
	select {
	case change := <-ch:
		if change.Topic != service.TopicBalance || change.Payload != int64(25) {
			t.Fatalf("change = %+v", change)
		}
	case <-time.After(time.Second):
		t.Fatal("credit did not publish")
	}

	if _, err := e.streaks.Refresh(context.Background(), uid); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if change := <-ch; change.Topic != service.TopicStreak {
		t.Fatalf("topic = %q", change.Topic)
	}
}
