package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/payrecon/internal/service/reconcile"
)

const (
	defaultMaxRetries = 3
	// defaultRedeliveryDelay — пауза перед повторным чтением сообщения, которое не удалось ни обработать, ни переотправить.
	defaultRedeliveryDelay = time.Second
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent помечает ошибку как неустранимую повтором: сообщение сразу уходит в DLQ.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent сообщает, что ошибку нет смысла повторять.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}

// Consumer читает топики consumer group'ой.
// Неудачное сообщение переотправляется в тот же топик с увеличенным x-retry-count,
// после maxRetries или при Permanent-ошибке уходит в DLQ.
type Consumer struct {
	consumer   sarama.ConsumerGroup
	topics     []string
	handler    MessageHandler
	logger     *log.Entry
	producer   *Producer
	dlqTopic   string
	maxRetries int
	redelivery time.Duration
	wg         sync.WaitGroup
}

// ConsumerOption настраивает Consumer.
type ConsumerOption func(*Consumer)

// WithRetryProducer задаёт producer для повторов и DLQ. Без него неудачные сообщения не коммитятся.
func WithRetryProducer(producer *Producer) ConsumerOption {
	return func(c *Consumer) { c.producer = producer }
}

// WithMaxRetries задаёт число повторов до DLQ.
func WithMaxRetries(n int) ConsumerOption {
	return func(c *Consumer) {
		if n >= 0 {
			c.maxRetries = n
		}
	}
}

// WithRedeliveryDelay задаёт паузу перед повторным чтением необработанного сообщения.
func WithRedeliveryDelay(d time.Duration) ConsumerOption {
	return func(c *Consumer) {
		if d >= 0 {
			c.redelivery = d
		}
	}
}

// WithDLQTopic переопределяет топик DLQ.
func WithDLQTopic(topic string) ConsumerOption {
	return func(c *Consumer) {
		if topic != "" {
			c.dlqTopic = topic
		}
	}
}

// WithConsumerLogger задаёт logger.
func WithConsumerLogger(logger *log.Entry) ConsumerOption {
	return func(c *Consumer) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewConsumer подключается к брокерам и создаёт consumer group.
func NewConsumer(brokers []string, groupID string, topics []string, handler MessageHandler, opts ...ConsumerOption) (*Consumer, error) {
	config := sarama.NewConfig()
	config.ClientID = clientID
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, topics, handler, opts...), nil
}

func newConsumer(group sarama.ConsumerGroup, topics []string, handler MessageHandler, opts ...ConsumerOption) *Consumer {
	c := &Consumer{
		consumer:   group,
		topics:     topics,
		handler:    handler,
		logger:     log.WithField("component", "kafka-consumer"),
		dlqTopic:   TopicDeadLetterQueue,
		maxRetries: defaultMaxRetries,
		redelivery: defaultRedeliveryDelay,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start запускает чтение в фоне до отмены ctx.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume возвращается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает consumer group и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте сессии.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error { return nil }

// Cleanup вызывается при завершении сессии.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim обрабатывает сообщения партиции.
// Offset коммитится только за обработанным, переотправленным или ушедшим в DLQ сообщением.
// Если не удалось ни одно из этого, claim завершается с ошибкой: sarama закрывает
// сессию, и следующий Consume читает партицию заново с последнего закоммиченного offset.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			entry := c.logger.WithFields(log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			})

			if err := c.handle(session.Context(), message); err != nil {
				if session.Context().Err() != nil {
					return nil
				}
				entry.WithError(err).Error("message processing failed, partition will be re-read")
				c.waitRedelivery(session.Context())
				return fmt.Errorf("topic %s partition %d offset %d: %w", message.Topic, message.Partition, message.Offset, err)
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

func (c *Consumer) waitRedelivery(ctx context.Context) {
	if c.redelivery <= 0 {
		return
	}
	timer := time.NewTimer(c.redelivery)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

func (c *Consumer) handle(ctx context.Context, message *sarama.ConsumerMessage) error {
	err := c.handler(ctx, message)
	if err == nil {
		return nil
	}
	if ctx.Err() != nil || c.producer == nil {
		return err
	}

	retries := retryCount(message)
	if !IsPermanent(err) && retries < c.maxRetries {
		if retryErr := c.requeue(message, retries+1); retryErr != nil {
			return fmt.Errorf("requeue after %v: %w", err, retryErr)
		}
		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": retries + 1,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, requeued")
		return nil
	}

	if dlqErr := c.sendToDLQ(message, err, retries); dlqErr != nil {
		return fmt.Errorf("send to DLQ after %v: %w", err, dlqErr)
	}
	c.logger.WithError(err).WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": retries,
	}).Warn("message sent to DLQ")
	return nil
}

func (c *Consumer) requeue(message *sarama.ConsumerMessage, attempt int) error {
	headers := make([]sarama.RecordHeader, 0, len(message.Headers)+1)
	for _, h := range message.Headers {
		if h == nil || string(h.Key) == HeaderRetryCount {
			continue
		}
		headers = append(headers, *h)
	}
	headers = append(headers, sarama.RecordHeader{Key: []byte(HeaderRetryCount), Value: []byte(strconv.Itoa(attempt))})
	return c.producer.Send(message.Topic, string(message.Key), message.Value, headers)
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, retries int) error {
	failedAt := time.Now().UTC()
	headers := []sarama.RecordHeader{
		{Key: []byte(HeaderOriginalTopic), Value: []byte(message.Topic)},
		{Key: []byte(HeaderErrorMessage), Value: []byte(processingErr.Error())},
		{Key: []byte(HeaderFailedAt), Value: []byte(failedAt.Format(time.RFC3339))},
	}
	value, err := jsonMarshal(DeadLetter{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		RetryCount:        retries,
		FailedAt:          failedAt,
	})
	if err != nil {
		return err
	}
	return c.producer.Send(c.dlqTopic, string(message.Key), value, headers)
}

func retryCount(message *sarama.ConsumerMessage) int {
	for _, header := range message.Headers {
		if header != nil && string(header.Key) == HeaderRetryCount {
			if count, err := strconv.Atoi(string(header.Value)); err == nil && count >= 0 {
				return count
			}
		}
	}
	return 0
}

// Reconciler — получатель уведомлений Mollie.
type Reconciler interface {
	Reconcile(ctx context.Context, n reconcile.Notification) error
}

// NotificationHandler передаёт уведомления из TopicMollieNotifications на сверку.
// Нечитаемое сообщение помечается Permanent.
func NotificationHandler(reconciler Reconciler) MessageHandler {
	return func(ctx context.Context, message *sarama.ConsumerMessage) error {
		n, err := ParseNotification(message)
		if err != nil {
			return Permanent(err)
		}
		return reconciler.Reconcile(ctx, reconcile.Notification{
			PaymentMethodID: n.PaymentMethodID,
			ExternalOrderID: n.ExternalOrderID,
		})
	}
}
