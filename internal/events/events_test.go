package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestEventJSONRoundTrip(t *testing.T) {
	original := New("run-1", &PositionClosedData{
		Ticker:             "AAPL",
		BuyDate:            "2024-01-02",
		SellDate:           "2024-03-01",
		Shares:             10,
		BuyDateValue:       1850,
		SellValue:          1800,
		PerformancePercent: -2.7,
	})

	data, err := json.Marshal(original)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type":"POSITION_CLOSED"`)
	assert.Contains(t, string(data), `"sell_date":"2024-03-01"`)

	var decoded Event
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, original.ID, decoded.ID)
	assert.Equal(t, "run-1", decoded.RunID)

	closed, ok := decoded.Data.(*PositionClosedData)
	require.True(t, ok)
	assert.Equal(t, "AAPL", closed.Ticker)
	assert.Equal(t, 1800.0, closed.SellValue)
}

func TestEventUnmarshal_UnknownType(t *testing.T) {
	var e Event
	err := json.Unmarshal([]byte(`{"type":"SOMETHING","data":{"x":1}}`), &e)
	assert.Error(t, err)
}

func TestKafkaPublisher_KeysByTicker(t *testing.T) {
	writer := &fakeWriter{}
	pub := newKafkaPublisher(writer, "portfolio-events", zerolog.Nop())

	err := pub.Publish(context.Background(), New("run-1", &PositionOpenedData{Ticker: "MSFT", Shares: 3}))
	require.NoError(t, err)

	require.Len(t, writer.messages, 1)
	msg := writer.messages[0]
	assert.Equal(t, "MSFT", string(msg.Key))
	assert.Equal(t, "event_type", msg.Headers[0].Key)
	assert.Equal(t, "POSITION_OPENED", string(msg.Headers[0].Value))

	require.NoError(t, pub.Close())
	assert.True(t, writer.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	writer := &fakeWriter{err: errors.New("broker down")}
	pub := newKafkaPublisher(writer, "portfolio-events", zerolog.Nop())

	err := pub.Publish(context.Background(), New("", &RunCompletedData{Date: "2024-03-01"}))
	assert.ErrorContains(t, err, "broker down")

	err = pub.Publish(context.Background(), Event{Type: RunCompleted})
	assert.Error(t, err)
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), New("", &RunCompletedData{})))
	assert.NoError(t, p.Close())
}
