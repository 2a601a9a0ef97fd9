package queue

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/mahirjain10/convertkit/internal/types"
	"github.com/mahirjain10/convertkit/internal/utils"
)

// Client is an encoder.Encoder that sends each request to the worker queue and
// waits for the reply carrying the same correlation id.
type Client struct {
	url       string
	queueName string
	timeout   time.Duration
	logger    *slog.Logger

	mu         sync.Mutex
	conn       *amqp.Connection
	ch         *amqp.Channel
	pub        publisher
	replyQueue string
	pending    map[string]chan types.StatusData
}

func NewClient(url, queueName string, timeout time.Duration, logger *slog.Logger) *Client {
	return &Client{
		url:       url,
		queueName: queueName,
		timeout:   timeout,
		logger:    logger,
		pending:   make(map[string]chan types.StatusData),
	}
}

// Connect opens the channel, declares the request queue and starts listening on
// a private reply queue. Encode calls it lazily when the channel is gone.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connectLocked()
}

func (c *Client) connectLocked() error {
	if c.pub != nil {
		return nil
	}
	if c.conn == nil || c.conn.IsClosed() {
		conn, err := NewRabbitMQClient(c.url)
		if err != nil {
			return err
		}
		c.conn = conn
	}
	ch, err := NewChannel(c.conn)
	if err != nil {
		return err
	}
	if _, err := NewQueue(ch, c.queueName); err != nil {
		ch.Close()
		return err
	}
	replyQueue, err := NewReplyQueue(ch)
	if err != nil {
		ch.Close()
		return err
	}
	msgs, err := NewReplyConsumer(ch, replyQueue.Name)
	if err != nil {
		ch.Close()
		return err
	}

	c.ch = ch
	c.pub = ch
	c.replyQueue = replyQueue.Name
	c.logger.Debug("[queue] reply queue ready", "queue", replyQueue.Name)
	go c.readReplies(msgs)
	return nil
}

func (c *Client) readReplies(msgs <-chan amqp.Delivery) {
	for d := range msgs {
		c.dispatchReply(d)
	}
	c.logger.Warn("[queue] reply channel closed, will reconnect on next request")
	c.mu.Lock()
	c.ch = nil
	c.pub = nil
	c.replyQueue = ""
	c.mu.Unlock()
}

// dispatchReply routes a reply to the waiting Encode call. Replies for
// requests that already gave up are dropped.
func (c *Client) dispatchReply(d amqp.Delivery) {
	var message types.StatusMessage
	if err := utils.ParseJSON(d.Body, &message); err != nil {
		c.logger.Warn("[queue] discarding malformed reply", "error", err)
		return
	}
	id := d.CorrelationId
	if id == "" {
		id = message.Data.ID
	}

	c.mu.Lock()
	waiter, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("[queue] dropping reply for unknown request", "id", id)
		return
	}
	waiter <- message.Data
}

func (c *Client) Encode(ctx context.Context, req types.ConversionRequest) types.ConversionResult {
	body, err := utils.SerializeJSON(&types.RabbitMQMessage{Pattern: types.ConvertPattern, Data: req})
	if err != nil {
		return types.Failure(err.Error())
	}

	c.mu.Lock()
	if err := c.connectLocked(); err != nil {
		c.mu.Unlock()
		c.logger.Error("[queue] encoder unavailable", "error", err)
		return types.Failure(fmt.Sprintf("Encoder unavailable: %v", err))
	}
	pub, replyQueue := c.pub, c.replyQueue
	waiter := make(chan types.StatusData, 1)
	c.pending[req.ID] = waiter
	c.mu.Unlock()

	defer c.forget(req.ID)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err = pub.PublishWithContext(ctx, "", c.queueName, false, false, amqp.Publishing{
		ContentType:   "application/json",
		DeliveryMode:  amqp.Persistent,
		CorrelationId: req.ID,
		ReplyTo:       replyQueue,
		Body:          body,
	})
	if err != nil {
		c.logger.Error("[queue] failed to publish request", "id", req.ID, "error", err)
		return types.Failure(fmt.Sprintf("Failed to send conversion request: %v", err))
	}

	select {
	case status := <-waiter:
		return utils.ResultFromStatus(status)
	case <-ctx.Done():
		c.logger.Warn("[queue] no reply", "id", req.ID, "error", ctx.Err())
		return types.Failure("Conversion timed out")
	}
}

func (c *Client) forget(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ch != nil {
		c.ch.Close()
		c.ch = nil
	}
	c.pub = nil
	if c.conn != nil {
		err := c.conn.Close()
		c.conn = nil
		return err
	}
	return nil
}
