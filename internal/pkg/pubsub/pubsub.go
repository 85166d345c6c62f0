package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	ChannelBillingEvents = "billing_events"
)

// 事件类型
const (
	EventIntentCompleted = "intent_completed"
	EventIntentFailed    = "intent_failed"
)

// IntentEvent 支付意图进入终态后广播的事件
type IntentEvent struct {
	Type                  string     `json:"type"`
	OrganizationID        int64      `json:"organization_id"`
	IntentID              string     `json:"intent_id"`
	Provider              string     `json:"provider"`
	Plan                  string     `json:"plan"`
	State                 string     `json:"state"`
	SubscriptionStatus    string     `json:"subscription_status,omitempty"`
	SubscriptionExpiresAt *time.Time `json:"subscription_expires_at,omitempty"`
	OccurredAt            time.Time  `json:"occurred_at"`
}

// Publisher Redis 发布者
type Publisher struct {
	client *redis.Client
}

// NewPublisher 创建发布者
func NewPublisher(client *redis.Client) *Publisher {
	return &Publisher{client: client}
}

// PublishIntentEvent 发布意图状态事件
func (p *Publisher) PublishIntentEvent(ctx context.Context, event *IntentEvent) error {
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal intent event: %w", err)
	}

	return p.client.Publish(ctx, ChannelBillingEvents, data).Err()
}

// Subscriber Redis 订阅者
type Subscriber struct {
	client *redis.Client
}

// NewSubscriber 创建订阅者
func NewSubscriber(client *redis.Client) *Subscriber {
	return &Subscriber{client: client}
}

// Subscribe 订阅计费事件，直到 ctx 结束
func (s *Subscriber) Subscribe(ctx context.Context, handler func(*IntentEvent)) error {
	pubsub := s.client.Subscribe(ctx, ChannelBillingEvents)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe: %w", err)
	}

	ch := pubsub.Channel()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var event IntentEvent
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				continue // 忽略解析错误
			}

			handler(&event)
		}
	}
}
