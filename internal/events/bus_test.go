package events

import (
	"testing"
	"time"
)

func TestPublishReachesAllSubscribers(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	sub1 := bus.Subscribe(4)
	sub2 := bus.Subscribe(4)

	bus.Publish(DuelAccepted, map[string]string{"duel_id": "d1"})

	for _, sub := range []<-chan Event{sub1, sub2} {
		select {
		case evt := <-sub:
			if evt.Type != DuelAccepted {
				t.Errorf("got type %s, want %s", evt.Type, DuelAccepted)
			}
			if evt.Data["duel_id"] != "d1" {
				t.Errorf("got data %v", evt.Data)
			}
			if evt.OccurredAt.IsZero() {
				t.Error("event timestamp not set")
			}
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestPublishDoesNotBlockOnSlowSubscriber(t *testing.T) {
	bus := NewBus()
	defer bus.Close()

	bus.Subscribe(1) // never drained

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			bus.Publish(GroupsMatched, nil)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Publish blocked on a full subscriber")
	}
}

func TestCloseIsIdempotentAndStopsDelivery(t *testing.T) {
	bus := NewBus()
	sub := bus.Subscribe(1)

	bus.Close()
	bus.Close()

	bus.Publish(DuelCompleted, nil)

	if _, ok := <-sub; ok {
		t.Fatal("subscriber channel should be closed with no pending events")
	}
}
