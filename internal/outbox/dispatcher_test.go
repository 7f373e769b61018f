package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"
)

type stubWriter struct {
	calls map[string][]kafka.Message
	order []string
	err   error
}

func (s *stubWriter) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	if s.err != nil {
		return s.err
	}
	if s.calls == nil {
		s.calls = make(map[string][]kafka.Message)
	}
	s.order = append(s.order, topic)
	s.calls[topic] = append(s.calls[topic], msgs...)
	return nil
}

func headerValue(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestDeliverGroupsByTopic(t *testing.T) {
	writer := &stubWriter{}
	messages := []Message{
		{EventID: 1, AggregateID: "10", EventType: "run.synced", Topic: "run_events", PartitionKey: "activity:1", Payload: json.RawMessage(`{"run_id":10}`)},
		{EventID: 2, AggregateID: "11", EventType: "audit", Topic: "audit_events", PartitionKey: "activity:2", Payload: json.RawMessage(`{}`)},
		{EventID: 3, AggregateID: "12", EventType: "run.synced", Topic: "run_events", PartitionKey: "activity:3", Payload: json.RawMessage(`{"run_id":12}`)},
	}

	require.NoError(t, deliver(context.Background(), writer, messages))
	require.Equal(t, []string{"run_events", "audit_events"}, writer.order)
	require.Len(t, writer.calls["run_events"], 2)
	require.Len(t, writer.calls["audit_events"], 1)

	first := writer.calls["run_events"][0]
	require.Equal(t, "activity:1", string(first.Key))
	require.JSONEq(t, `{"run_id":10}`, string(first.Value))
	require.Equal(t, "run.synced", headerValue(first, "event_type"))
	require.Equal(t, "10", headerValue(first, "aggregate_id"))
}

func TestDeliverPropagatesWriterError(t *testing.T) {
	writer := &stubWriter{err: errors.New("broker unavailable")}
	err := deliver(context.Background(), writer, []Message{{EventID: 1, Topic: "run_events"}})
	require.EqualError(t, err, "broker unavailable")
}

func TestEventIDs(t *testing.T) {
	require.Equal(t, []int64{4, 9}, eventIDs([]Message{{EventID: 4}, {EventID: 9}}))
	require.Empty(t, eventIDs(nil))
}

func TestCountByTopic(t *testing.T) {
	runBefore := testutil.ToFloat64(deliveredCounter.WithLabelValues("count_run_events"))
	auditBefore := testutil.ToFloat64(deliveredCounter.WithLabelValues("count_audit_events"))

	countByTopic(deliveredCounter, []Message{
		{EventID: 1, Topic: "count_run_events"},
		{EventID: 2, Topic: "count_audit_events"},
		{EventID: 3, Topic: "count_run_events"},
	})

	require.Equal(t, runBefore+2, testutil.ToFloat64(deliveredCounter.WithLabelValues("count_run_events")))
	require.Equal(t, auditBefore+1, testutil.ToFloat64(deliveredCounter.WithLabelValues("count_audit_events")))
}
