// Package events publishes market lifecycle events to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/yourusername/grade-market/internal/config"
	"github.com/yourusername/grade-market/internal/models"
)

// Event types carried in the "type" header
const (
	TypeBetPlaced      = "bet.placed"
	TypeCourseResolved = "course.resolved"
	TypeOddsUpdated    = "odds.updated"
)

// Publisher emits lifecycle events. Publishing is best effort: callers log
// failures and never roll back ledger state because of them.
type Publisher interface {
	PublishBetPlaced(ctx context.Context, bet *models.Bet) error
	PublishCourseResolved(ctx context.Context, evt CourseResolved) error
	PublishOddsUpdated(ctx context.Context, evt OddsUpdated) error
	Close() error
}

// Envelope wraps every event payload
type Envelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// BetPlaced is emitted after a bet is recorded in the ledger
type BetPlaced struct {
	BetID           int64           `json:"bet_id"`
	UserID          string          `json:"user_id"`
	CourseCode      string          `json:"course_code"`
	GradeThreshold  float64         `json:"grade_threshold"`
	BetAmount       decimal.Decimal `json:"bet_amount"`
	BetAmountNative decimal.Decimal `json:"bet_amount_native"`
	ContractAddress string          `json:"contract_address"`
	TransactionHash string          `json:"transaction_hash,omitempty"`
	PlacedAt        time.Time       `json:"placed_at"`
}

// CourseResolved is emitted after a course's final grade is recorded
type CourseResolved struct {
	UserID          string  `json:"user_id"`
	CourseCode      string  `json:"course_code"`
	Grade           float64 `json:"grade"`
	ContractAddress string  `json:"contract_address,omitempty"`
	ResolvedBets    []int64 `json:"resolved_bets"`
	FailedBets      []int64 `json:"failed_bets"`
}

// OddsUpdated is emitted after probabilities are written for a course
type OddsUpdated struct {
	CourseID   string    `json:"course_id"`
	CourseCode string    `json:"course_code"`
	Mode       string    `json:"mode"`
	Thresholds []float64 `json:"thresholds"`
}

// kafkaWriter is the subset of kafka.Writer the publisher needs
type kafkaWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaPublisher writes events to a single Kafka topic
type KafkaPublisher struct {
	writer kafkaWriter
	logger *logrus.Entry
	now    func() time.Time
}

// NewKafkaPublisher creates a publisher from configuration
func NewKafkaPublisher(cfg *config.EventsConfig, log *logrus.Logger) *KafkaPublisher {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		MaxAttempts:  3,
		BatchTimeout: 50 * time.Millisecond,
	}

	return newKafkaPublisher(writer, log)
}

func newKafkaPublisher(w kafkaWriter, log *logrus.Logger) *KafkaPublisher {
	return &KafkaPublisher{
		writer: w,
		logger: log.WithField("component", "events"),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// PublishBetPlaced publishes a bet placement keyed by its escrow contract
func (p *KafkaPublisher) PublishBetPlaced(ctx context.Context, bet *models.Bet) error {
	evt := BetPlaced{
		BetID:           bet.BetID,
		UserID:          bet.UserID.String(),
		CourseCode:      bet.CourseCode,
		GradeThreshold:  bet.GradeThreshold,
		BetAmount:       bet.BetAmount,
		BetAmountNative: bet.BetAmountNative,
		ContractAddress: bet.ContractAddress,
		PlacedAt:        bet.PlacedAt,
	}
	if bet.TransactionHash != nil {
		evt.TransactionHash = *bet.TransactionHash
	}

	return p.publish(ctx, TypeBetPlaced, bet.ContractAddress, evt, kafka.Header{
		Key: "bet_id", Value: []byte(strconv.FormatInt(bet.BetID, 10)),
	})
}

// PublishCourseResolved publishes a course resolution keyed by its escrow contract
func (p *KafkaPublisher) PublishCourseResolved(ctx context.Context, evt CourseResolved) error {
	key := evt.ContractAddress
	if key == "" {
		key = evt.UserID + "/" + evt.CourseCode
	}
	return p.publish(ctx, TypeCourseResolved, key, evt)
}

// PublishOddsUpdated publishes an odds write keyed by course
func (p *KafkaPublisher) PublishOddsUpdated(ctx context.Context, evt OddsUpdated) error {
	return p.publish(ctx, TypeOddsUpdated, evt.CourseID, evt)
}

func (p *KafkaPublisher) publish(ctx context.Context, eventType, key string, data interface{}, headers ...kafka.Header) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", eventType, err)
	}

	env := Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: p.now(),
		Data:      raw,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event envelope: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(key),
		Value: payload,
		Headers: append([]kafka.Header{
			{Key: "event_id", Value: []byte(env.ID)},
			{Key: "type", Value: []byte(eventType)},
			{Key: "timestamp", Value: []byte(env.Timestamp.Format(time.RFC3339))},
		}, headers...),
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		EventsFailed.WithLabelValues(eventType).Inc()
		return fmt.Errorf("failed to write %s event: %w", eventType, err)
	}

	EventsPublished.WithLabelValues(eventType).Inc()
	p.logger.WithFields(logrus.Fields{
		"event_id": env.ID,
		"type":     eventType,
		"key":      key,
	}).Debug("Published event")

	return nil
}

// Close flushes and closes the Kafka writer
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) PublishBetPlaced(context.Context, *models.Bet) error         { return nil }
func (NopPublisher) PublishCourseResolved(context.Context, CourseResolved) error { return nil }
func (NopPublisher) PublishOddsUpdated(context.Context, OddsUpdated) error       { return nil }
func (NopPublisher) Close() error                                                { return nil }

// New returns a Kafka publisher when events are enabled and a NopPublisher otherwise
func New(cfg *config.EventsConfig, log *logrus.Logger) Publisher {
	if cfg == nil || !cfg.Enabled {
		return NopPublisher{}
	}
	return NewKafkaPublisher(cfg, log)
}
