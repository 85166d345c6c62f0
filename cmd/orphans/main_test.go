package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/madrasah_billing_server/internal/pkg/queue"
	"github.com/qs3c/madrasah_billing_server/internal/testutil"
)

func seedOrphans(t *testing.T, q *queue.Queue, ids ...string) {
	t.Helper()
	for _, id := range ids {
		require.NoError(t, q.Push(context.Background(), &queue.OrphanOrderMessage{
			Provider:        "gateway_a",
			ProviderOrderID: id,
			OrganizationID:  3,
			Amount:          99900,
			Currency:        "INR",
			Reason:          "duplicate",
			CreatedAt:       time.Now().UTC(),
		}))
	}
}

func decodeLines(t *testing.T, out *bytes.Buffer) []string {
	t.Helper()
	var ids []string
	for _, line := range strings.Split(strings.TrimSpace(out.String()), "\n") {
		if line == "" {
			continue
		}
		var msg queue.OrphanOrderMessage
		require.NoError(t, json.Unmarshal([]byte(line), &msg))
		ids = append(ids, msg.ProviderOrderID)
	}
	return ids
}

func TestDrain_DryRun(t *testing.T) {
	_, rdb := testutil.SetupTestRedis(t)
	q := queue.NewQueue(rdb, "billing:orphaned_orders")
	seedOrphans(t, q, "order_1", "order_2")

	var out bytes.Buffer
	n, err := drain(context.Background(), q, json.NewEncoder(&out), 10, true)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"order_1", "order_2"}, decodeLines(t, &out))

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), length)
}

func TestDrain_RemovesUpToLimit(t *testing.T) {
	_, rdb := testutil.SetupTestRedis(t)
	q := queue.NewQueue(rdb, "billing:orphaned_orders")
	seedOrphans(t, q, "order_1", "order_2", "order_3")

	var out bytes.Buffer
	n, err := drain(context.Background(), q, json.NewEncoder(&out), 2, false)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"order_1", "order_2"}, decodeLines(t, &out))

	length, err := q.Length(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), length)
}

type failingEncoder struct {
	failOn string
}

func (e failingEncoder) Encode(v interface{}) error {
	if msg, ok := v.(*queue.OrphanOrderMessage); ok && msg.ProviderOrderID == e.failOn {
		return errors.New("stdout closed")
	}
	return nil
}

func TestDrain_EncodeFailureKeepsOrder(t *testing.T) {
	_, rdb := testutil.SetupTestRedis(t)
	q := queue.NewQueue(rdb, "billing:orphaned_orders")
	seedOrphans(t, q, "order_1", "order_2", "order_3")

	n, err := drain(context.Background(), q, failingEncoder{failOn: "order_2"}, 10, false)
	require.Error(t, err)
	assert.Equal(t, 1, n)

	var out bytes.Buffer
	_, err = drain(context.Background(), q, json.NewEncoder(&out), 10, true)
	require.NoError(t, err)
	assert.Equal(t, []string{"order_2", "order_3"}, decodeLines(t, &out))
}
