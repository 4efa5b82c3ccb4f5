package flow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/docbot/internal/protocol"
)

type handlerFunc func(ctx context.Context, in protocol.Inbound)

func (f handlerFunc) Handle(ctx context.Context, in protocol.Inbound) { f(ctx, in) }

func TestQueuePreservesPerSenderOrder(t *testing.T) {
	var mu sync.Mutex
	var got []string
	q := NewQueue(context.Background(), handlerFunc(func(_ context.Context, in protocol.Inbound) {
		time.Sleep(time.Millisecond)
		mu.Lock()
		got = append(got, in.ID)
		mu.Unlock()
	}), nil)

	want := []string{"m1", "m2", "m3", "m4", "m5"}
	for _, id := range want {
		require.True(t, q.Enqueue(protocol.Inbound{ID: id, From: "a"}))
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Close(ctx))

	assert.Equal(t, want, got)
	assert.Zero(t, q.Depth())
}

func TestQueueRunsSendersInParallel(t *testing.T) {
	bHandled := make(chan struct{})
	aDone := make(chan struct{})
	q := NewQueue(context.Background(), handlerFunc(func(_ context.Context, in protocol.Inbound) {
		switch in.From {
		case "a":
			// a can only finish once b made progress on its own goroutine.
			select {
			case <-bHandled:
			case <-time.After(5 * time.Second):
			}
			close(aDone)
		case "b":
			close(bHandled)
		}
	}), nil)

	q.Enqueue(protocol.Inbound{ID: "1", From: "a"})
	q.Enqueue(protocol.Inbound{ID: "2", From: "b"})

	select {
	case <-aDone:
	case <-time.After(5 * time.Second):
		t.Fatal("sender a never finished")
	}
	select {
	case <-bHandled:
	default:
		t.Fatal("sender b was blocked behind sender a")
	}
	require.NoError(t, q.Close(context.Background()))
}

func TestQueueSurvivesHandlerPanic(t *testing.T) {
	var mu sync.Mutex
	var handled []string
	q := NewQueue(context.Background(), handlerFunc(func(_ context.Context, in protocol.Inbound) {
		if in.ID == "bad" {
			panic("boom")
		}
		mu.Lock()
		handled = append(handled, in.ID)
		mu.Unlock()
	}), nil)

	q.Enqueue(protocol.Inbound{ID: "bad", From: "a"})
	q.Enqueue(protocol.Inbound{ID: "good", From: "a"})
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []string{"good"}, handled)
}

func TestQueueRejectsAfterClose(t *testing.T) {
	q := NewQueue(context.Background(), handlerFunc(func(context.Context, protocol.Inbound) {}), nil)
	require.NoError(t, q.Close(context.Background()))
	assert.False(t, q.Enqueue(protocol.Inbound{ID: "late", From: "a"}))
}

func TestQueueCloseHonoursDeadline(t *testing.T) {
	release := make(chan struct{})
	q := NewQueue(context.Background(), handlerFunc(func(context.Context, protocol.Inbound) {
		<-release
	}), nil)
	q.Enqueue(protocol.Inbound{ID: "slow", From: "a"})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Close(ctx), context.DeadlineExceeded)
	close(release)
}

func TestQueueFeedsDispatcher(t *testing.T) {
	h := newHarness(t, Options{})
	q := NewQueue(context.Background(), h.d, nil)
	q.Enqueue(protocol.Inbound{ID: "wamid.q1", From: sender, Kind: protocol.KindText, Text: "merge"})
	q.Enqueue(protocol.Inbound{ID: "wamid.q2", From: sender, Kind: protocol.KindText, Text: "status"})
	require.NoError(t, q.Close(context.Background()))

	assert.Equal(t, []string{"wamid.q1", "wamid.q2"}, h.chat.seen)
	assert.Equal(t, h.text.Text("status_collecting", 0), h.chat.last().text)
}
