package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"asset_lending_tool/lending"
	"asset_lending_tool/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestRedisPublisher_Emit(t *testing.T) {
	rdb := testutil.SetupTestRedis(t)
	ctx := context.Background()

	sub := rdb.Subscribe(ctx, "lending:events")
	t.Cleanup(func() { _ = sub.Close() })
	_, err := sub.Receive(ctx)
	require.NoError(t, err)

	ev := lending.Event{
		Kind:       lending.EventLoanOverdue,
		LoanID:     "loan-1",
		EmployeeID: "emp-1",
		AssetNames: []string{"Laptop"},
		OccurredAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	require.NoError(t, NewRedisPublisher(rdb, "lending:events").Emit(ctx, ev))

	select {
	case msg := <-sub.Channel():
		var got lending.Event
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &got))
		assert.Equal(t, ev, got)
	case <-time.After(5 * time.Second):
		t.Fatal("no message received")
	}
}

func TestLogSink_Emit(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	sink := NewLogSink(zap.New(core))

	require.NoError(t, sink.Emit(context.Background(), lending.Event{Kind: lending.EventLoanClosed, LoanID: "loan-9"}))

	entries := logs.FilterField(zap.String("loan_id", "loan-9")).All()
	require.Len(t, entries, 1)
	assert.Equal(t, "lending event", entries[0].Message)
}
