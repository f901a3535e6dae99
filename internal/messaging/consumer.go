package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.uber.org/zap"

	"github.com/earnzy/earnzy-push/internal/push"
	"github.com/earnzy/earnzy-push/internal/service"
)

const consumerTag = "earnzy-push-consumer"

// Ingester queues a decoded push message for processing.
type Ingester interface {
	Ingest(ctx context.Context, transport string, msg *push.Message) (string, error)
}

// Consumer reads push messages from a durable RabbitMQ queue.
type Consumer struct {
	conn        *amqp.Connection
	logger      *zap.Logger
	queueName   string
	concurrency int
	processor   *Processor
	stopChannel chan struct{}
	stopOnce    sync.Once
	wg          sync.WaitGroup
}

func NewConsumer(conn *amqp.Connection, logger *zap.Logger, queueName string, concurrency int, processor *Processor) *Consumer {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Consumer{
		conn:        conn,
		logger:      logger.Named("consumer"),
		queueName:   queueName,
		concurrency: concurrency,
		processor:   processor,
		stopChannel: make(chan struct{}),
	}
}

// Start declares the queue and blocks until Stop is called or the delivery
// channel closes.
func (c *Consumer) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("error opening channel: %w", err)
	}
	defer ch.Close()

	q, err := ch.QueueDeclare(
		c.queueName,
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,
	)
	if err != nil {
		return fmt.Errorf("error declaring queue %s: %w", c.queueName, err)
	}

	if err := ch.Qos(c.concurrency, 0, false); err != nil {
		return fmt.Errorf("error setting qos: %w", err)
	}

	msgs, err := ch.Consume(q.Name, consumerTag, false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("error registering consumer: %w", err)
	}

	c.logger.Info("Consumer started", zap.String("queue", q.Name), zap.Int("concurrency", c.concurrency))

	c.wg.Add(c.concurrency)
	for i := 0; i < c.concurrency; i++ {
		go func(workerID int) {
			defer c.wg.Done()
			log := c.logger.With(zap.Int("worker_id", workerID))
			for {
				select {
				case <-ctx.Done():
					return
				case d, ok := <-msgs:
					if !ok {
						log.Info("Delivery channel closed")
						return
					}
					c.processor.ProcessMessage(ctx, d)
				}
			}
		}(i)
	}

	done := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(done)
	}()

	select {
	case <-c.stopChannel:
		cancel()
		<-done
	case <-done:
	}

	c.logger.Info("Consumer stopped")
	return nil
}

func (c *Consumer) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopChannel)
	})
}

// Processor turns one delivery into a queued push message.
type Processor struct {
	logger   *zap.Logger
	ingester Ingester
	timeout  time.Duration
}

func NewProcessor(logger *zap.Logger, ingester Ingester, timeout time.Duration) *Processor {
	return &Processor{
		logger:   logger.Named("processor"),
		ingester: ingester,
		timeout:  timeout,
	}
}

// ProcessMessage acks accepted messages. Malformed JSON is nacked without
// requeue; an ingest failure is requeued unless the payload itself was empty.
func (p *Processor) ProcessMessage(ctx context.Context, d amqp.Delivery) {
	var msg push.Message
	if err := json.Unmarshal(d.Body, &msg); err != nil {
		p.logger.Error("Error decoding push message",
			zap.Error(err),
			zap.Uint64("delivery_tag", d.DeliveryTag))
		if ackErr := d.Nack(false, false); ackErr != nil {
			p.logger.Error("Error nacking message", zap.Error(ackErr), zap.Uint64("delivery_tag", d.DeliveryTag))
		}
		return
	}

	ingestCtx := ctx
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ingestCtx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	id, err := p.ingester.Ingest(ingestCtx, "amqp", &msg)
	if err != nil {
		requeue := !errors.Is(err, service.ErrEmptyMessage) && ctx.Err() == nil
		p.logger.Error("Error ingesting message",
			zap.Error(err),
			zap.Bool("requeue", requeue),
			zap.Uint64("delivery_tag", d.DeliveryTag))
		if ackErr := d.Nack(false, requeue); ackErr != nil {
			p.logger.Error("Error nacking message", zap.Error(ackErr), zap.Uint64("delivery_tag", d.DeliveryTag))
		}
		return
	}

	if ackErr := d.Ack(false); ackErr != nil {
		p.logger.Error("Error acking message", zap.Error(ackErr), zap.Uint64("delivery_tag", d.DeliveryTag))
		return
	}
	p.logger.Debug("Message accepted", zap.String("message_id", id), zap.Uint64("delivery_tag", d.DeliveryTag))
}
