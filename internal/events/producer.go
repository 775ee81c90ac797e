package events

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/orzi-eg/storefront/pkg/models"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

const (
	OrderSubmittedTopic = "order.submitted"
)

type OrderSubmittedEvent struct {
	Order       models.OrderRecord `json:"order"`
	SubmittedAt time.Time          `json:"submitted_at"`
	EventTime   time.Time          `json:"event_time"`
}

type KafkaProducer struct {
	producer sarama.SyncProducer
	logger   *logrus.Logger
}

func NewKafkaProducer(brokers string, logger *logrus.Logger) (*KafkaProducer, error) {
	config := sarama.NewConfig()
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5
	config.Producer.Return.Successes = true
	config.Version = sarama.V2_6_0_0

	producer, err := sarama.NewSyncProducer(strings.Split(brokers, ","), config)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create kafka producer")
	}

	return NewProducerFromSync(producer, logger), nil
}

// NewProducerFromSync wraps an existing sarama producer, e.g. a mock.
func NewProducerFromSync(producer sarama.SyncProducer, logger *logrus.Logger) *KafkaProducer {
	return &KafkaProducer{
		producer: producer,
		logger:   logger,
	}
}

func (p *KafkaProducer) PublishOrderSubmitted(ctx context.Context, event OrderSubmittedEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event.EventTime = time.Now()

	data, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal order submitted event")
	}

	// Keyed by phone so repeat orders from one customer share a partition.
	msg := &sarama.ProducerMessage{
		Topic: OrderSubmittedTopic,
		Key:   sarama.StringEncoder(event.Order.Phone),
		Value: sarama.ByteEncoder(data),
	}

	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return errors.Wrap(err, "failed to send order submitted event")
	}

	p.logger.WithFields(logrus.Fields{
		"topic":       OrderSubmittedTopic,
		"partition":   partition,
		"offset":      offset,
		"governorate": event.Order.Governorate,
		"style":       event.Order.BraceletStyle,
	}).Info("Event published to Kafka")

	return nil
}

func (p *KafkaProducer) Close() error {
	return p.producer.Close()
}
