package mq

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/tasklist/apiserver/config"
)

// RabbitMQClient publishes account events to a fanout exchange per event
// channel. A durable queue with the channel's name is bound to each exchange
// for regular consumers; tails bind private queues of their own.
type RabbitMQClient struct {
	conn            *amqp.Connection
	channel         *amqp.Channel
	queueDurable    bool
	queueAutoDelete bool

	// amqp channels are not safe for concurrent publishes.
	mu       sync.Mutex
	declared map[string]bool
}

// NewRabbitMQClient constructs a RabbitMQ client from config.
func NewRabbitMQClient(cfg config.RabbitMQConfig) (*RabbitMQClient, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("rabbitmq url is required")
	}

	conn, err := amqp.Dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, err
	}

	if cfg.PrefetchCount > 0 {
		if err := ch.Qos(cfg.PrefetchCount, 0, false); err != nil {
			_ = ch.Close()
			_ = conn.Close()
			return nil, err
		}
	}

	return &RabbitMQClient{
		conn:            conn,
		channel:         ch,
		queueDurable:    cfg.QueueDurable,
		queueAutoDelete: cfg.QueueAutoDelete,
		declared:        make(map[string]bool),
	}, nil
}

// Publish sends a JSON message to the channel's exchange.
func (r *RabbitMQClient) Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error) {
	if strings.TrimSpace(channel) == "" {
		return "", errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.ensureQueue(channel); err != nil {
		return "", err
	}

	messageID := attrs["event_id"]
	if messageID == "" {
		messageID = uuid.NewString()
	}
	err := r.channel.PublishWithContext(ctx, channel, "", false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: deliveryMode(r.queueDurable),
		MessageId:    messageID,
		Timestamp:    time.Now().UTC(),
		Headers:      attributesToHeaders(attrs),
		Body:         data,
	})
	if err != nil {
		return "", err
	}
	return messageID, nil
}

// Subscribe consumes messages from the named queue until ctx is done.
func (r *RabbitMQClient) Subscribe(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	r.mu.Lock()
	err := r.ensureQueue(channel)
	var deliveries <-chan amqp.Delivery
	consumerTag := "consumer-" + uuid.NewString()
	if err == nil {
		deliveries, err = r.channel.Consume(channel, consumerTag, false, false, false, false, nil)
	}
	r.mu.Unlock()
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	return consume(ctx, deliveries, func(delivery amqp.Delivery) error {
		if err := handler(ctx, toMessage(delivery)); err != nil {
			_ = delivery.Nack(false, true)
			return nil
		}
		_ = delivery.Ack(false)
		return nil
	})
}

// Tail copies messages published to channel from now on into an exclusive
// queue that is removed when the tail stops. Regular consumers of the
// channel's durable queue still receive every message.
func (r *RabbitMQClient) Tail(ctx context.Context, channel string, handler Handler) error {
	if strings.TrimSpace(channel) == "" {
		return errors.New("rabbitmq channel is required")
	}

	consumerTag := "tail-" + uuid.NewString()
	r.mu.Lock()
	deliveries, err := r.declareTail(channel, consumerTag)
	r.mu.Unlock()
	if err != nil {
		return err
	}
	defer func() {
		_ = r.channel.Cancel(consumerTag, false)
	}()

	return consume(ctx, deliveries, func(delivery amqp.Delivery) error {
		return handler(ctx, toMessage(delivery))
	})
}

func (r *RabbitMQClient) declareTail(channel, consumerTag string) (<-chan amqp.Delivery, error) {
	if err := r.ensureQueue(channel); err != nil {
		return nil, err
	}
	queue, err := r.channel.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return nil, fmt.Errorf("declare tail queue: %w", err)
	}
	if err := r.channel.QueueBind(queue.Name, "", channel, false, nil); err != nil {
		return nil, fmt.Errorf("bind tail queue: %w", err)
	}
	return r.channel.Consume(queue.Name, consumerTag, true, true, false, false, nil)
}

func consume(ctx context.Context, deliveries <-chan amqp.Delivery, handle func(amqp.Delivery) error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case delivery, ok := <-deliveries:
			if !ok {
				return errors.New("rabbitmq delivery channel closed")
			}
			if err := handle(delivery); err != nil {
				return err
			}
		}
	}
}

func toMessage(delivery amqp.Delivery) Message {
	return Message{
		ID:         delivery.MessageId,
		Data:       delivery.Body,
		Attributes: headersToAttributes(delivery.Headers),
	}
}

// Close closes the underlying channel and connection.
func (r *RabbitMQClient) Close() error {
	if r.channel != nil {
		_ = r.channel.Close()
	}
	if r.conn != nil {
		return r.conn.Close()
	}
	return nil
}

// ensureQueue declares the channel's fanout exchange and binds the durable
// queue of the same name to it.
func (r *RabbitMQClient) ensureQueue(name string) error {
	if r.declared[name] {
		return nil
	}
	if err := r.channel.ExchangeDeclare(name, amqp.ExchangeFanout, r.queueDurable, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", name, err)
	}
	if _, err := r.channel.QueueDeclare(name, r.queueDurable, r.queueAutoDelete, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", name, err)
	}
	if err := r.channel.QueueBind(name, "", name, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", name, err)
	}
	r.declared[name] = true
	return nil
}

func deliveryMode(durable bool) uint8 {
	if durable {
		return amqp.Persistent
	}
	return amqp.Transient
}

func attributesToHeaders(attrs map[string]string) amqp.Table {
	headers := amqp.Table{}
	for key, value := range attrs {
		headers[key] = value
	}
	return headers
}

func headersToAttributes(headers amqp.Table) map[string]string {
	if len(headers) == 0 {
		return nil
	}
	attrs := make(map[string]string, len(headers))
	for key, value := range headers {
		switch typed := value.(type) {
		case string:
			attrs[key] = typed
		case []byte:
			attrs[key] = string(typed)
		default:
			attrs[key] = fmt.Sprint(value)
		}
	}
	return attrs
}
