package background

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// DeclareQueues sets up queue, queue.retry (TTL dead-lettering back to the
// main queue) and queue.dlq.
func DeclareQueues(ch *amqp.Channel, queue string) error {
	retryQ := queue + ".retry"
	dlqQ := queue + ".dlq"

	if _, err := ch.QueueDeclare(dlqQ, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare %s: %w", dlqQ, err)
	}
	if _, err := ch.QueueDeclare(retryQ, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": queue,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", retryQ, err)
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, amqp.Table{
		"x-dead-letter-exchange":    "",
		"x-dead-letter-routing-key": dlqQ,
	}); err != nil {
		return fmt.Errorf("declare %s: %w", queue, err)
	}
	return nil
}

// RabbitPublisher dispatches jobs to a RabbitMQ queue consumed by cmd/worker.
type RabbitPublisher struct {
	mu    sync.Mutex
	conn  *amqp.Connection
	ch    *amqp.Channel
	queue string
}

func NewRabbitPublisher(url, queue string) (*RabbitPublisher, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, err
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}
	if err := DeclareQueues(ch, queue); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return nil, err
	}
	return &RabbitPublisher{conn: conn, ch: ch, queue: queue}, nil
}

func (p *RabbitPublisher) Dispatch(ctx context.Context, job Job) error {
	if err := job.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(job)
	if err != nil {
		return err
	}

	cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	// amqp channels are not safe for concurrent publishes.
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ch.PublishWithContext(cctx,
		"",
		p.queue,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			MessageId:    job.ID,
			Type:         job.Kind,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

func (p *RabbitPublisher) Close(ctx context.Context) error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// Delivery is the part of amqp.Delivery the consumer acts on.
type Delivery interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

// HandleDelivery decodes and runs one message, acking on success and
// dead-lettering anything undecodable or failed.
func HandleDelivery(ctx context.Context, d Delivery, body []byte, handler Handler, logger Logger) {
	var job Job
	if err := json.Unmarshal(body, &job); err != nil || job.Validate() != nil {
		logger.Warn("Dropping bad job message", "error", err)
		_ = d.Nack(false, false)
		return
	}

	start := time.Now()
	if err := handler(ctx, job); err != nil {
		logger.Error("Job failed", "job_id", job.ID, "kind", job.Kind, "cost", time.Since(start), "error", err)
		_ = d.Nack(false, false)
		return
	}
	if err := d.Ack(false); err != nil {
		logger.Error("Ack failed", "job_id", job.ID, "error", err)
	}
}

// Consume runs concurrency workers over queue until ctx is cancelled.
func Consume(ctx context.Context, ch *amqp.Channel, queue string, concurrency int, handler Handler, logger Logger) error {
	if err := ch.Qos(concurrency, 0, false); err != nil {
		return fmt.Errorf("qos: %w", err)
	}
	msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("consume: %w", err)
	}

	deliveries := make(chan amqp.Delivery, concurrency*2)
	var wg sync.WaitGroup
	wg.Add(concurrency)
	for i := 0; i < concurrency; i++ {
		go func() {
			defer wg.Done()
			for d := range deliveries {
				d := d
				HandleDelivery(ctx, &d, d.Body, handler, logger)
			}
		}()
	}

	defer func() {
		close(deliveries)
		wg.Wait()
	}()

	for {
		select {
		case <-ctx.Done():
			logger.Info("Consumer shutting down", "queue", queue)
			return nil
		case d, ok := <-msgs:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			deliveries <- d
		}
	}
}

var (
	_ Dispatcher = (*RabbitPublisher)(nil)
	_ Dispatcher = (*Pool)(nil)
)
