// Package amqp carries report export requests from the web server to the
// export worker over RabbitMQ.
package amqp

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rabbitmq/amqp091-go"

	"insights/internal/log"
)

const (
	publishTimeout = 5 * time.Second
	prefetch       = 1
)

// Topology names the exchange and work queue. Rejected requests are
// dead-lettered through "<exchange>.dlx" into "<queue>.failed".
type Topology struct {
	Exchange string
	Queue    string
}

func (t Topology) deadLetterExchange() string { return t.Exchange + ".dlx" }
func (t Topology) failedQueue() string        { return t.Queue + ".failed" }

// Client publishes and consumes export requests on one channel in publisher
// confirm mode.
type Client struct {
	conn     *amqp091.Connection
	channel  *amqp091.Channel
	topology Topology
	logger   *log.Logger
}

// NewClient dials the broker and declares the topology. A nil logger uses
// the default.
func NewClient(url, exchangeName, queueName string, logger *log.Logger) (*Client, error) {
	if logger == nil {
		logger = log.FromContext(context.Background())
	}

	conn, err := amqp091.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("dial AMQP: %w", err)
	}

	channel, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}

	client := &Client{
		conn:     conn,
		channel:  channel,
		topology: Topology{Exchange: exchangeName, Queue: queueName},
		logger:   logger.WithComponent(log.ComponentAMQP),
	}

	if err := client.declare(); err != nil {
		client.Close()
		return nil, fmt.Errorf("declare topology: %w", err)
	}
	if err := channel.Confirm(false); err != nil {
		client.Close()
		return nil, fmt.Errorf("enable publisher confirms: %w", err)
	}

	return client, nil
}

func (c *Client) declare() error {
	t := c.topology

	// durable, not auto-deleted, not internal, wait for the broker
	if err := c.channel.ExchangeDeclare(t.Exchange, amqp091.ExchangeDirect, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.Exchange, err)
	}
	if err := c.channel.ExchangeDeclare(t.deadLetterExchange(), amqp091.ExchangeFanout, true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare exchange %s: %w", t.deadLetterExchange(), err)
	}

	if _, err := c.channel.QueueDeclare(t.failedQueue(), true, false, false, false, nil); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.failedQueue(), err)
	}
	if err := c.channel.QueueBind(t.failedQueue(), "", t.deadLetterExchange(), false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.failedQueue(), err)
	}

	args := amqp091.Table{"x-dead-letter-exchange": t.deadLetterExchange()}
	if _, err := c.channel.QueueDeclare(t.Queue, true, false, false, false, args); err != nil {
		return fmt.Errorf("declare queue %s: %w", t.Queue, err)
	}
	// Routing key is the queue name on the direct exchange.
	if err := c.channel.QueueBind(t.Queue, t.Queue, t.Exchange, false, nil); err != nil {
		return fmt.Errorf("bind queue %s: %w", t.Queue, err)
	}
	return nil
}

// PublishExportRequest publishes a persistent export request and waits for
// the broker to confirm it.
func (c *Client) PublishExportRequest(ctx context.Context, msg *ExportRequestMessage) error {
	body, err := msg.ToJSON()
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()

	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(ctx,
		c.topology.Exchange,
		c.topology.Queue,
		false, // mandatory
		false, // immediate
		amqp091.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp091.Persistent,
			MessageId:    msg.ID.String(),
			Timestamp:    msg.RequestedAt,
			Type:         "export_request",
			Headers:      amqp091.Table{"report": msg.Report},
			Body:         body,
		},
	)
	if err != nil {
		return fmt.Errorf("publish message: %w", err)
	}
	acked, err := confirm.WaitContext(ctx)
	if err != nil {
		return fmt.Errorf("await confirm: %w", err)
	}
	if !acked {
		return errors.New("broker rejected export request")
	}

	c.logger.InfoContext(ctx, "Published export request",
		log.FieldExportID, msg.ID,
		log.FieldReport, msg.Report,
		log.FieldFilters, msg.Filters.String(),
		"queue", c.topology.Queue)
	return nil
}

// ConsumeExportRequests delivers export requests to handler one at a time
// until ctx is done. A nil error acks the message and any other error
// requeues it, except a PermanentError or an undecodable body, which are
// rejected into the failed queue.
func (c *Client) ConsumeExportRequests(ctx context.Context, handler func(context.Context, *ExportRequestMessage) error) error {
	if err := c.channel.Qos(prefetch, 0, false); err != nil {
		return fmt.Errorf("set prefetch: %w", err)
	}

	// manual ack, shared queue
	msgs, err := c.channel.Consume(c.topology.Queue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("start consuming: %w", err)
	}

	c.logger.InfoContext(ctx, "Started consuming export requests", "queue", c.topology.Queue)

	for {
		select {
		case <-ctx.Done():
			c.logger.InfoContext(ctx, "Stopping message consumption", "reason", ctx.Err())
			return ctx.Err()
		case delivery, ok := <-msgs:
			if !ok {
				return errors.New("message channel closed")
			}
			settleBody(ctx, c.logger, delivery.Body, &delivery, handler)
		}
	}
}

// acknowledger is the part of amqp091.Delivery settleBody needs.
type acknowledger interface {
	Ack(multiple bool) error
	Nack(multiple, requeue bool) error
}

func settleBody(ctx context.Context, logger *log.Logger, body []byte, ack acknowledger, handler func(context.Context, *ExportRequestMessage) error) {
	if logger == nil {
		logger = log.FromContext(ctx)
	}

	msg, err := ExportRequestFromJSON(body)
	if err != nil {
		logger.ErrorContext(ctx, "Rejecting undecodable export request", log.FieldError, err)
		_ = ack.Nack(false, false)
		return
	}

	err = handler(ctx, msg)
	switch {
	case err == nil:
		_ = ack.Ack(false)
	case IsPermanent(err):
		_ = ack.Nack(false, false)
		logger.ErrorContext(ctx, "Export request dead-lettered",
			log.FieldExportID, msg.ID, log.FieldReport, msg.Report, log.FieldError, err)
	default:
		_ = ack.Nack(false, true)
		logger.WarnContext(ctx, "Export request requeued",
			log.FieldExportID, msg.ID, log.FieldReport, msg.Report, log.FieldError, err)
	}
}

func (c *Client) Close() error {
	if c.channel != nil {
		c.channel.Close()
	}
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}
