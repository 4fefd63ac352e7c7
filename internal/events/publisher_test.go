package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/logger"
	"github.com/yourusername/grade-market/internal/models"
)

type fakeWriter struct {
	messages []kafka.Message
	err      error
	closed   bool
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, msgs...)
	return nil
}

func (f *fakeWriter) Close() error {
	f.closed = true
	return nil
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestPublishBetPlaced(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, logger.Discard())
	fixed := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	tx := "0xabc"
	bet := &models.Bet{
		BetID:           9,
		UserID:          uuid.New(),
		CourseCode:      "CS101",
		GradeThreshold:  90,
		BetAmount:       decimal.NewFromInt(10),
		BetAmountNative: decimal.RequireFromString("0.01"),
		ContractAddress: "0xcontract",
		TransactionHash: &tx,
		PlacedAt:        fixed,
	}

	require.NoError(t, p.PublishBetPlaced(context.Background(), bet))
	require.Len(t, w.messages, 1)

	msg := w.messages[0]
	assert.Equal(t, "0xcontract", string(msg.Key))
	assert.Equal(t, TypeBetPlaced, header(msg, "type"))
	assert.Equal(t, "9", header(msg, "bet_id"))

	var env Envelope
	require.NoError(t, json.Unmarshal(msg.Value, &env))
	assert.Equal(t, TypeBetPlaced, env.Type)
	assert.Equal(t, fixed, env.Timestamp)
	_, err := uuid.Parse(env.ID)
	assert.NoError(t, err)

	var evt BetPlaced
	require.NoError(t, json.Unmarshal(env.Data, &evt))
	assert.Equal(t, int64(9), evt.BetID)
	assert.Equal(t, "0xabc", evt.TransactionHash)
	assert.True(t, evt.BetAmountNative.Equal(decimal.RequireFromString("0.01")))
}

func TestPublishCourseResolvedKeyFallback(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, logger.Discard())

	require.NoError(t, p.PublishCourseResolved(context.Background(), CourseResolved{
		UserID: "u1", CourseCode: "MATH101", Grade: 88,
	}))
	require.Len(t, w.messages, 1)
	assert.Equal(t, "u1/MATH101", string(w.messages[0].Key))
}

func TestPublishWriteFailure(t *testing.T) {
	w := &fakeWriter{err: assert.AnError}
	p := newKafkaPublisher(w, logger.Discard())

	err := p.PublishOddsUpdated(context.Background(), OddsUpdated{CourseID: "c1", Mode: "seed"})
	require.Error(t, err)
	assert.ErrorIs(t, err, assert.AnError)
}

func TestNewReturnsNopWhenDisabled(t *testing.T) {
	pub := New(&config.EventsConfig{Enabled: false}, logger.Discard())
	assert.IsType(t, NopPublisher{}, pub)
	assert.NoError(t, pub.PublishBetPlaced(context.Background(), &models.Bet{}))

	pub = New(&config.EventsConfig{Enabled: true, Brokers: []string{"localhost:9092"}, Topic: "grade-market"}, logger.Discard())
	assert.IsType(t, &KafkaPublisher{}, pub)
}

func TestClose(t *testing.T) {
	w := &fakeWriter{}
	p := newKafkaPublisher(w, logger.Discard())
	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}
