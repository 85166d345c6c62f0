package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		client.Close()
		mr.Close()
	})
	return client
}

func TestIntentEvent_JSON(t *testing.T) {
	expires := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	event := &IntentEvent{
		Type:                  EventIntentCompleted,
		OrganizationID:        7,
		IntentID:              "3f1c",
		Provider:              "gateway_a",
		Plan:                  "pro",
		State:                 "completed",
		SubscriptionStatus:    "active",
		SubscriptionExpiresAt: &expires,
	}

	data, err := json.Marshal(event)
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Contains(t, raw, "organization_id")
	assert.Contains(t, raw, "intent_id")
	assert.Contains(t, raw, "subscription_expires_at")
}

func TestIntentEvent_OmitEmpty(t *testing.T) {
	data, err := json.Marshal(&IntentEvent{Type: EventIntentFailed, State: "failed"})
	require.NoError(t, err)

	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &raw))

	_, hasStatus := raw["subscription_status"]
	_, hasExpiry := raw["subscription_expires_at"]
	assert.False(t, hasStatus, "failed events carry no subscription status")
	assert.False(t, hasExpiry, "failed events carry no expiry")
}

func TestPublisherSubscriber(t *testing.T) {
	client := setupTestRedis(t)

	publisher := NewPublisher(client)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *IntentEvent, 1)
	go func() {
		subscriber.Subscribe(ctx, func(event *IntentEvent) {
			received <- event
		})
	}()

	require.Eventually(t, func() bool {
		n, err := client.PubSubNumSub(ctx, ChannelBillingEvents).Result()
		return err == nil && n[ChannelBillingEvents] == 1
	}, 2*time.Second, 10*time.Millisecond)

	err := publisher.PublishIntentEvent(ctx, &IntentEvent{
		Type:           EventIntentCompleted,
		OrganizationID: 42,
		IntentID:       "intent-1",
		State:          "completed",
	})
	require.NoError(t, err)

	select {
	case event := <-received:
		assert.Equal(t, int64(42), event.OrganizationID)
		assert.Equal(t, "intent-1", event.IntentID)
		assert.Equal(t, EventIntentCompleted, event.Type)
		assert.False(t, event.OccurredAt.IsZero())
	case <-ctx.Done():
		t.Fatal("timeout waiting for event")
	}
}

func TestSubscriber_StopsOnCancel(t *testing.T) {
	client := setupTestRedis(t)
	subscriber := NewSubscriber(client)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- subscriber.Subscribe(ctx, func(*IntentEvent) {})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}
