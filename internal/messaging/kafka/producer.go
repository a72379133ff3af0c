package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

const clientID = "payrecon"

var errProducerClosed = errors.New("kafka producer is not initialized")

// ProducerOption настраивает sarama.Config перед созданием producer.
type ProducerOption func(*sarama.Config)

// WithProducerRetries переопределяет число повторов отправки внутри sarama.
func WithProducerRetries(n int) ProducerOption {
	return func(c *sarama.Config) {
		if n >= 0 {
			c.Producer.Retry.Max = n
		}
	}
}

// WithCompression задаёт кодек сжатия.
func WithCompression(codec sarama.CompressionCodec) ProducerOption {
	return func(c *sarama.Config) { c.Producer.Compression = codec }
}

// producerConfig включает идемпотентную запись с acks=all, чтобы повторы sarama не давали дублей.
func producerConfig(opts ...ProducerOption) *sarama.Config {
	c := sarama.NewConfig()
	c.ClientID = clientID
	c.Producer.RequiredAcks = sarama.WaitForAll
	c.Producer.Retry.Max = 5
	c.Producer.Retry.Backoff = 200 * time.Millisecond
	c.Producer.Return.Successes = true
	c.Producer.Compression = sarama.CompressionSnappy
	c.Producer.Idempotent = true
	c.Net.MaxOpenRequests = 1
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Producer отправляет сообщения синхронно: ошибка брокера сразу видна вызывающему.
type Producer struct {
	sync   sarama.SyncProducer
	logger *log.Entry
}

// NewProducer подключается к брокерам.
func NewProducer(brokers []string, opts ...ProducerOption) (*Producer, error) {
	sp, err := sarama.NewSyncProducer(brokers, producerConfig(opts...))
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka producer: %w", err)
	}
	return NewProducerFromSync(sp, nil), nil
}

// NewProducerFromSync оборачивает готовый sarama.SyncProducer, например mocks.SyncProducer.
func NewProducerFromSync(sp sarama.SyncProducer, logger *log.Entry) *Producer {
	if logger == nil {
		logger = log.WithField("component", "kafka-producer")
	}
	return &Producer{sync: sp, logger: logger}
}

// PublishEvent отправляет event как JSON.
func (p *Producer) PublishEvent(topic, key string, event any) error {
	value, err := jsonMarshal(event)
	if err != nil {
		return err
	}
	return p.Send(topic, key, value, nil)
}

// Send отправляет значение как есть. Пустой key: партицию выбирает sarama.
func (p *Producer) Send(topic, key string, value []byte, headers []sarama.RecordHeader) error {
	if p == nil || p.sync == nil {
		return errProducerClosed
	}

	msg := &sarama.ProducerMessage{
		Topic:     topic,
		Value:     sarama.ByteEncoder(value),
		Headers:   headers,
		Timestamp: time.Now().UTC(),
	}
	if key != "" {
		msg.Key = sarama.StringEncoder(key)
	}

	entry := p.logger.WithFields(log.Fields{"topic": topic, "key": key})
	partition, offset, err := p.sync.SendMessage(msg)
	if err != nil {
		entry.WithError(err).Error("kafka send failed")
		return fmt.Errorf("send to %s: %w", topic, err)
	}
	entry.WithFields(log.Fields{"partition": partition, "offset": offset}).Debug("kafka message sent")
	return nil
}

// Close дожидается отправки буфера и закрывает соединения.
func (p *Producer) Close() error {
	if p == nil || p.sync == nil {
		return nil
	}
	if err := p.sync.Close(); err != nil {
		return fmt.Errorf("failed to close kafka producer: %w", err)
	}
	return nil
}

// jsonRaw возвращает payload как есть, если это валидный JSON, иначе null.
func jsonRaw(payload []byte) json.RawMessage {
	if len(payload) == 0 || !json.Valid(payload) {
		return json.RawMessage("null")
	}
	return json.RawMessage(payload)
}
