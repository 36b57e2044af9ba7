package eventbus

import (
	"testing"
	"time"
)

func TestPublishFansOutAndDrops(t *testing.T) {
	b := New()
	a, unsubA := b.Subscribe(1)
	c, unsubC := b.Subscribe(4)
	defer unsubC()

	Emit(b, TopicDispatch, DispatchEvent{Channel: "chan", Outcome: OutcomeSent})
	Emit(b, TopicDispatch, DispatchEvent{Channel: "chan", Outcome: OutcomeFailed})

	if got := len(c); got != 2 {
		t.Fatalf("roomy subscriber got %d events", got)
	}
	ev := <-a
	if ev.Type != TopicDispatch || ev.Time.IsZero() {
		t.Fatalf("unexpected event %+v", ev)
	}
	if d, ok := ev.Data.(DispatchEvent); !ok || d.Outcome != OutcomeSent {
		t.Fatalf("unexpected payload %+v", ev.Data)
	}
	if Dropped(b) != 1 {
		t.Fatalf("dropped=%d want 1", Dropped(b))
	}

	unsubA()
	unsubA()
	Emit(b, TopicReload, ReloadEvent{Channels: 1})
	select {
	case _, ok := <-a:
		if ok {
			t.Fatalf("expected closed channel after unsubscribe")
		}
	case <-time.After(time.Second):
		t.Fatalf("closed channel should not block")
	}
}

func TestNilAndNopBus(t *testing.T) {
	Emit(nil, TopicReload, nil)
	n := Nop()
	Emit(n, TopicReload, nil)
	ch, unsub := n.Subscribe(1)
	defer unsub()
	if _, ok := <-ch; ok {
		t.Fatalf("nop subscription must be closed")
	}
}
