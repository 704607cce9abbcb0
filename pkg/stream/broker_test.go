package stream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codelab-platform/agent-control-plane/pkg/cache"
)

func TestBroadcastDeliversToLocalSubscriber(t *testing.T) {
	b := NewBroker(cache.New(time.Minute))
	ch, unsubscribe := b.Subscribe("u1", "s1")
	defer unsubscribe()

	err := b.Broadcast(context.Background(), "s1", "task.started", map[string]any{"task_id": "t0"})
	require.NoError(t, err)

	select {
	case ev := <-ch:
		assert.Equal(t, "task.started", ev.Type)
		assert.Equal(t, "t0", ev.Payload["task_id"])
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := NewBroker(cache.New(time.Minute))
	ch, unsubscribe := b.Subscribe("u1", "s1")
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok)
}

func TestReplayReturnsChronologicalOrderAfterSince(t *testing.T) {
	b := NewBroker(cache.New(time.Minute))
	before := time.Now()

	_ = b.Broadcast(context.Background(), "s2", "a", map[string]any{"i": 1})
	time.Sleep(2 * time.Millisecond)
	cutoff := time.Now()
	time.Sleep(2 * time.Millisecond)
	_ = b.Broadcast(context.Background(), "s2", "b", map[string]any{"i": 2})
	_ = b.Broadcast(context.Background(), "s2", "c", map[string]any{"i": 3})

	replayed := b.Replay("s2", cutoff)
	require.Len(t, replayed, 2)
	assert.Equal(t, "b", replayed[0].Type)
	assert.Equal(t, "c", replayed[1].Type)

	all := b.Replay("s2", before.Add(-time.Hour))
	assert.Len(t, all, 3)
}

func TestBroadcastToOwnerReachesEverySessionOfThatOwner(t *testing.T) {
	b := NewBroker(cache.New(time.Minute))
	ch1, unsub1 := b.Subscribe("owner1", "s10")
	defer unsub1()
	ch2, unsub2 := b.Subscribe("owner1", "s11")
	defer unsub2()
	ch3, unsub3 := b.Subscribe("owner2", "s12")
	defer unsub3()

	err := b.BroadcastToOwner(context.Background(), "owner1", "approval_required", map[string]any{"approval_id": "a1"})
	require.NoError(t, err)

	for _, ch := range []<-chan Event{ch1, ch2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "approval_required", ev.Type)
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for event")
		}
	}

	select {
	case <-ch3:
		t.Fatal("owner2's session should not receive owner1's broadcast")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestReplayHonorsMaxBufferSize(t *testing.T) {
	b := NewBroker(cache.New(time.Minute))
	for i := 0; i < MaxBufferSize+10; i++ {
		_ = b.Broadcast(context.Background(), "s3", "e", map[string]any{"i": i})
	}
	all := b.Replay("s3", time.Time{})
	assert.Len(t, all, MaxBufferSize)
	// oldest retained event should be the 11th broadcast (index 10)
	assert.Equal(t, float64(10), all[0].Payload["i"])
}
