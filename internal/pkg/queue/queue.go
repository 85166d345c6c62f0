package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Queue 渠道侧已下单但本地未落库的订单，留给外部对账工具处理
type Queue struct {
	client    *redis.Client
	queueName string
}

type OrphanOrderMessage struct {
	Provider          string    `json:"provider"`
	ProviderOrderID   string    `json:"provider_order_id"`
	MerchantReference string    `json:"merchant_reference"`
	OrganizationID    int64     `json:"organization_id"`
	Plan              string    `json:"plan"`
	Amount            int64     `json:"amount"`
	Currency          string    `json:"currency"`
	Reason            string    `json:"reason"`
	CreatedAt         time.Time `json:"created_at"`
}

func NewQueue(client *redis.Client, queueName string) *Queue {
	return &Queue{
		client:    client,
		queueName: queueName,
	}
}

// Push 记录一个孤立订单
func (q *Queue) Push(ctx context.Context, msg *OrphanOrderMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.LPush(ctx, q.queueName, data).Err()
}

// Requeue 放回一条已出队的订单，下次仍最先取出
func (q *Queue) Requeue(ctx context.Context, msg *OrphanOrderMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	return q.client.RPush(ctx, q.queueName, data).Err()
}

// Pop 取出最早的孤立订单（阻塞），超时返回 nil
func (q *Queue) Pop(ctx context.Context, timeout time.Duration) (*OrphanOrderMessage, error) {
	result, err := q.client.BRPop(ctx, timeout, q.queueName).Result()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to pop from queue: %w", err)
	}

	if len(result) < 2 {
		return nil, nil
	}

	var msg OrphanOrderMessage
	if err := json.Unmarshal([]byte(result[1]), &msg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal message: %w", err)
	}

	return &msg, nil
}

// Peek 按入队顺序查看最早的 n 条，不出队
func (q *Queue) Peek(ctx context.Context, n int64) ([]*OrphanOrderMessage, error) {
	if n <= 0 {
		return nil, nil
	}

	items, err := q.client.LRange(ctx, q.queueName, -n, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}

	msgs := make([]*OrphanOrderMessage, 0, len(items))
	for i := len(items) - 1; i >= 0; i-- {
		var msg OrphanOrderMessage
		if err := json.Unmarshal([]byte(items[i]), &msg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal message: %w", err)
		}
		msgs = append(msgs, &msg)
	}

	return msgs, nil
}

// Length 获取队列长度
func (q *Queue) Length(ctx context.Context) (int64, error) {
	return q.client.LLen(ctx, q.queueName).Result()
}
