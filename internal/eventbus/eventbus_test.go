package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublishSubscribeFiltering(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(Filter{Topics: []string{TopicAlarmStateChange}})
	defer cancel()

	b.Publish(TopicMetricUpdate, "G|N||M", "should not arrive")
	b.Publish(TopicAlarmStateChange, "G|N||M", "should arrive")

	select {
	case e := <-ch:
		assert.Equal(t, TopicAlarmStateChange, e.Topic)
		assert.Equal(t, "should arrive", e.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}

	select {
	case e := <-ch:
		t.Fatalf("unexpected second event: %+v", e)
	default:
	}
}

func TestSlowSubscriberDropsRatherThanBlocks(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(Filter{})
	defer cancel()

	for i := 0; i < subscriberBuffer+10; i++ {
		done := make(chan struct{})
		go func() {
			b.Publish(TopicMetricUpdate, "", i)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Publish blocked on a full subscriber buffer")
		}
	}
	// drain; channel should have at most subscriberBuffer items queued
	count := 0
drain:
	for {
		select {
		case <-ch:
			count++
		default:
			break drain
		}
	}
	assert.LessOrEqual(t, count, subscriberBuffer)
}

func TestReplaySinceReturnsOrderedTail(t *testing.T) {
	b := New()
	e1 := b.Publish(TopicMetricUpdate, "", 1)
	_ = b.Publish(TopicMetricUpdate, "", 2)
	e3 := b.Publish(TopicMetricUpdate, "", 3)

	replay := b.ReplaySince(e1.Seq, Filter{})
	require.Len(t, replay, 2)
	assert.Equal(t, 2, replay[0].Payload)
	assert.Equal(t, e3.Payload, replay[1].Payload)
}

func TestIdentityPrefixFilter(t *testing.T) {
	b := New()
	ch, cancel := b.Subscribe(Filter{IdentityPrefix: "G1|N1|"})
	defer cancel()

	b.Publish(TopicMetricUpdate, "G2|N1||M", "other node")
	b.Publish(TopicMetricUpdate, "G1|N1||M", "matching")

	select {
	case e := <-ch:
		assert.Equal(t, "matching", e.Payload)
	case <-time.After(time.Second):
		t.Fatal("timed out")
	}
}
