package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/sirupsen/logrus"
)

// Handler processes one delivery. Returning an error requeues the message.
type Handler func(body []byte, routingKey string) error

// Client defines the messaging client interface
type Client interface {
	// PublishJSON publishes a JSON message to the exchange with the given routing key
	PublishJSON(ctx context.Context, routingKey string, data interface{}) error

	// DeclareQueue declares a queue with the given name
	DeclareQueue(name string) error

	// BindQueue binds a queue to the exchange with the given routing key
	BindQueue(queueName, routingKey string) error

	// Consume consumes messages from the given queue until ctx is done
	Consume(ctx context.Context, queueName string, handler Handler) error

	// PurgeQueue drops every pending message of a queue
	PurgeQueue(name string) error

	// Close closes the connection
	Close() error
}

// RabbitMQClient implements the Client interface using RabbitMQ
type RabbitMQClient struct {
	mu      sync.RWMutex
	conn    *amqp.Connection
	channel *amqp.Channel
	config  *config.RabbitMQConfig
	log     *logrus.Logger
	closed  bool
}

// NewRabbitMQClient creates a new RabbitMQ client
func NewRabbitMQClient(cfg *config.RabbitMQConfig, log *logrus.Logger) (*RabbitMQClient, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("rabbitmq URL is required")
	}

	if cfg.Exchange == "" {
		return nil, fmt.Errorf("rabbitmq exchange name is required")
	}

	client := &RabbitMQClient{
		config: cfg,
		log:    log,
	}

	if err := client.connect(); err != nil {
		return nil, err
	}

	return client, nil
}

// connect establishes a connection to RabbitMQ
func (c *RabbitMQClient) connect() error {
	conn, err := amqp.Dial(c.config.URL)
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to open a channel: %w", err)
	}

	err = ch.ExchangeDeclare(
		c.config.Exchange,        // name
		config.ExchangeTypeTopic, // type
		true,                     // durable
		false,                    // auto-deleted
		false,                    // internal
		false,                    // no-wait
		nil,                      // arguments
	)
	if err != nil {
		ch.Close()
		conn.Close()
		return fmt.Errorf("failed to declare an exchange: %w", err)
	}

	c.mu.Lock()
	c.conn = conn
	c.channel = ch
	c.mu.Unlock()

	go c.handleReconnect(conn)

	return nil
}

// handleReconnect attempts to reconnect to RabbitMQ when the connection is lost
func (c *RabbitMQClient) handleReconnect(conn *amqp.Connection) {
	err, ok := <-conn.NotifyClose(make(chan *amqp.Error, 1))
	if !ok {
		// Closed on purpose
		return
	}

	c.log.WithFields(logrus.Fields{
		"component": "messaging",
		"error":     err,
	}).Warn("RabbitMQ connection closed, attempting to reconnect")

	for i := 0; i < c.config.ReconnectRetries; i++ {
		time.Sleep(time.Duration(c.config.ReconnectTimeout) * time.Millisecond)

		if c.isClosed() {
			return
		}

		if err := c.connect(); err == nil {
			c.log.WithField("component", "messaging").Info("Successfully reconnected to RabbitMQ")
			return
		}

		c.log.WithFields(logrus.Fields{
			"component": "messaging",
			"attempt":   fmt.Sprintf("%d/%d", i+1, c.config.ReconnectRetries),
		}).Warn("Failed to reconnect to RabbitMQ")
	}

	c.log.WithField("component", "messaging").Error("Failed to reconnect to RabbitMQ after multiple attempts")
}

func (c *RabbitMQClient) currentChannel() *amqp.Channel {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.channel
}

// PublishJSON publishes a JSON message to the exchange with the given routing key
func (c *RabbitMQClient) PublishJSON(ctx context.Context, routingKey string, data interface{}) error {
	body, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON message: %w", err)
	}

	return c.currentChannel().PublishWithContext(
		ctx,
		c.config.Exchange, // exchange
		routingKey,        // routing key
		false,             // mandatory
		false,             // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Body:         body,
			Timestamp:    time.Now(),
		},
	)
}

// DeclareQueue declares a queue with the given name
func (c *RabbitMQClient) DeclareQueue(name string) error {
	_, err := c.currentChannel().QueueDeclare(
		name,  // name
		true,  // durable
		false, // delete when unused
		false, // exclusive
		false, // no-wait
		nil,   // arguments
	)

	return err
}

// BindQueue binds a queue to the exchange with the given routing key
func (c *RabbitMQClient) BindQueue(queueName, routingKey string) error {
	return c.currentChannel().QueueBind(
		queueName,         // queue name
		routingKey,        // routing key
		c.config.Exchange, // exchange
		false,             // no-wait
		nil,               // arguments
	)
}

// PurgeQueue drops every pending message of a queue
func (c *RabbitMQClient) PurgeQueue(name string) error {
	_, err := c.currentChannel().QueuePurge(name, false)
	return err
}

// Consume consumes messages from the given queue until ctx is done. When the
// broker drops the channel the consumer subscribes again on the channel that
// handleReconnect puts in place.
func (c *RabbitMQClient) Consume(ctx context.Context, queueName string, handler Handler) error {
	msgs, err := c.subscribe(queueName)
	if err != nil {
		return err
	}

	go c.consumeLoop(ctx, queueName, msgs, func() (<-chan amqp.Delivery, error) {
		return c.subscribe(queueName)
	}, handler)

	return nil
}

// subscribe registers a consumer for queueName on the current channel
func (c *RabbitMQClient) subscribe(queueName string) (<-chan amqp.Delivery, error) {
	// Ensure queue exists
	if err := c.DeclareQueue(queueName); err != nil {
		return nil, fmt.Errorf("failed to declare queue: %w", err)
	}

	msgs, err := c.currentChannel().Consume(
		queueName, // queue
		"",        // consumer
		false,     // auto-ack
		false,     // exclusive
		false,     // no-local
		false,     // no-wait
		nil,       // args
	)
	if err != nil {
		return nil, fmt.Errorf("failed to register a consumer: %w", err)
	}
	return msgs, nil
}

// consumeLoop hands deliveries to handler and resubscribes whenever the
// delivery channel closes, until ctx is done or the client is closed
func (c *RabbitMQClient) consumeLoop(ctx context.Context, queueName string, msgs <-chan amqp.Delivery,
	resubscribe func() (<-chan amqp.Delivery, error), handler Handler) {
	for {
		if !c.deliver(ctx, queueName, msgs, handler) {
			return
		}

		c.log.WithField("queue", queueName).Warn("Consumer channel closed, resubscribing")

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(c.retryDelay()):
			}

			if c.isClosed() {
				c.log.WithField("queue", queueName).Debug("Client closed, consumer stopped")
				return
			}

			next, err := resubscribe()
			if err == nil {
				msgs = next
				c.log.WithField("queue", queueName).Info("Consumer resubscribed")
				break
			}
			c.log.WithField("queue", queueName).WithError(err).Warn("Failed to resubscribe, retrying")
		}
	}
}

// deliver drains msgs. It returns false when ctx is done and true when the
// delivery channel was closed underneath it.
func (c *RabbitMQClient) deliver(ctx context.Context, queueName string, msgs <-chan amqp.Delivery, handler Handler) bool {
	for {
		select {
		case <-ctx.Done():
			c.log.WithField("queue", queueName).Debug("Consumer stopped due to context cancellation")
			return false
		case msg, ok := <-msgs:
			if !ok {
				return true
			}

			if err := handler(msg.Body, msg.RoutingKey); err != nil {
				c.log.WithFields(logrus.Fields{
					"queue":       queueName,
					"routing_key": msg.RoutingKey,
				}).WithError(err).Error("Error processing message")
				// Negative acknowledgement, message will be requeued
				msg.Nack(false, true)
			} else {
				msg.Ack(false)
			}
		}
	}
}

func (c *RabbitMQClient) retryDelay() time.Duration {
	if c.config.ReconnectTimeout <= 0 {
		return time.Second
	}
	return time.Duration(c.config.ReconnectTimeout) * time.Millisecond
}

func (c *RabbitMQClient) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close closes the connection and channel
func (c *RabbitMQClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.closed = true
	if c.channel != nil {
		c.channel.Close()
	}

	if c.conn != nil {
		return c.conn.Close()
	}

	return nil
}
