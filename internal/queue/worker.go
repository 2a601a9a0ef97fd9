package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/mahirjain10/convertkit/internal/apperrors"
	"github.com/mahirjain10/convertkit/internal/encoder"
	"github.com/mahirjain10/convertkit/internal/types"
	"github.com/mahirjain10/convertkit/internal/utils"
)

const (
	retryDelay   = 5 * time.Second
	replyTimeout = 5 * time.Second
)

// Worker serves conversion requests from a durable queue and answers each on
// the caller's reply queue.
type Worker struct {
	url       string
	queueName string
	workers   int
	encoder   encoder.Encoder
	logger    *slog.Logger

	mu   sync.Mutex
	conn *amqp.Connection
}

func NewWorker(url, queueName string, workers int, enc encoder.Encoder, logger *slog.Logger) *Worker {
	if workers <= 0 {
		workers = 1
	}
	return &Worker{
		url:       url,
		queueName: queueName,
		workers:   workers,
		encoder:   enc,
		logger:    logger,
	}
}

// ProcessMessage decodes one delivery, runs the conversion and publishes the
// status envelope to d.ReplyTo.
func (w *Worker) ProcessMessage(ctx context.Context, pub publisher, d amqp.Delivery) error {
	var message types.RabbitMQMessage
	if err := utils.ParseJSON(d.Body, &message); err != nil {
		return ProcessingError{Err: fmt.Errorf("failed to parse message: %w", err), Requeue: false}
	}
	if message.Pattern != types.ConvertPattern {
		return ProcessingError{Err: fmt.Errorf("unexpected pattern %q", message.Pattern), Requeue: false}
	}
	if d.ReplyTo == "" {
		return ProcessingError{Err: fmt.Errorf("request %s has no reply queue", message.Data.ID), Requeue: false}
	}

	w.logger.Info("[worker] processing", "id", message.Data.ID, "format", message.Data.Format,
		"width", message.Data.Width, "height", message.Data.Height)

	result := w.encoder.Encode(ctx, message.Data)
	status := utils.StatusFromResult(message.Data.ID, result)
	if result.Failed() {
		w.logger.Warn("[worker] conversion failed", "id", message.Data.ID, "error", result.Err())
	}

	body, err := utils.SerializeJSON(utils.InitStatusMessage(status))
	if err != nil {
		return ProcessingError{Err: err, Requeue: false}
	}

	publishCtx, cancel := context.WithTimeout(ctx, replyTimeout)
	defer cancel()

	correlationID := d.CorrelationId
	if correlationID == "" {
		correlationID = message.Data.ID
	}
	err = pub.PublishWithContext(publishCtx, "", d.ReplyTo, false, false, amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: correlationID,
		Body:          body,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.KindTransport, "queue.ProcessMessage", "failed to publish reply", err)
	}
	return nil
}

// handleDelivery processes d and settles it with Ack or Nack. A fatal error
// requeues the delivery and is returned so the worker stops.
func (w *Worker) handleDelivery(ctx context.Context, pub publisher, d amqp.Delivery) error {
	err := w.ProcessMessage(ctx, pub, d)
	if err == nil {
		if ackErr := d.Ack(false); ackErr != nil {
			w.logger.Error("[worker] ack failed", "error", ackErr)
		}
		return nil
	}

	fatal := IsFatalError(err)
	requeue := fatal || requeueFor(err)
	w.logger.Error("[worker] error processing message", "error", err, "requeue", requeue, "fatal", fatal)
	if nackErr := d.Nack(false, requeue); nackErr != nil {
		w.logger.Error("[worker] nack failed", "error", nackErr)
	}
	if fatal {
		return fmt.Errorf("fatal: stopping worker: %w", err)
	}
	return nil
}

// Start runs the consumers until ctx is cancelled or one of them hits a fatal
// error, which cancels the others and is returned.
func (w *Worker) Start(ctx context.Context) error {
	if _, err := w.connection(); err != nil {
		return err
	}
	defer w.closeConnection()

	g, ctx := errgroup.WithContext(ctx)
	for i := range w.workers {
		id := i + 1
		w.logger.Info("[worker] started", "queue", w.queueName, "worker", id)
		g.Go(func() error {
			return w.consume(ctx, id)
		})
	}

	err := g.Wait()
	w.logger.Info("[worker] shutting down all consumers gracefully")
	return err
}

func (w *Worker) consume(ctx context.Context, id int) error {
	var ch *amqp.Channel
	defer func() {
		if ch != nil {
			ch.Close()
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if ch == nil || ch.IsClosed() {
			newCh, err := w.openChannel()
			if err != nil {
				w.logger.Warn("[worker] failed to create channel", "worker", id, "error", err)
				if !sleep(ctx, retryDelay) {
					return nil
				}
				continue
			}
			ch = newCh
		}

		msgs, err := NewQueueConsumer(ch, w.queueName)
		if err != nil {
			w.logger.Warn("[worker] failed to start consumer", "worker", id, "error", err)
			ch.Close()
			ch = nil
			if !sleep(ctx, retryDelay) {
				return nil
			}
			continue
		}

		w.logger.Debug("[worker] waiting for messages", "worker", id)
		reopen, err := w.drain(ctx, ch, msgs)
		if err != nil {
			return err
		}
		if !reopen {
			return nil
		}
		w.logger.Warn("[worker] channel closed, will recreate", "worker", id)
		ch = nil
	}
}

// drain handles deliveries until msgs closes, which asks for a new channel.
// It stops without reopening once ctx is done or a delivery fails fatally.
func (w *Worker) drain(ctx context.Context, pub publisher, msgs <-chan amqp.Delivery) (bool, error) {
	for {
		select {
		case <-ctx.Done():
			return false, nil
		case d, ok := <-msgs:
			if !ok {
				return true, nil
			}
			if err := w.handleDelivery(ctx, pub, d); err != nil {
				return false, err
			}
		}
	}
}

func (w *Worker) openChannel() (*amqp.Channel, error) {
	conn, err := w.connection()
	if err != nil {
		return nil, err
	}
	ch, err := NewChannel(conn)
	if err != nil {
		return nil, err
	}
	if err := ch.Qos(1, 0, false); err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to set prefetch: %w", err)
	}
	if _, err := NewQueue(ch, w.queueName); err != nil {
		ch.Close()
		return nil, err
	}
	return ch, nil
}

// connection returns the shared connection, dialling again if it closed.
func (w *Worker) connection() (*amqp.Connection, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil && !w.conn.IsClosed() {
		return w.conn, nil
	}
	conn, err := NewRabbitMQClient(w.url)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindTransport, "queue.Worker", "failed to connect to RabbitMQ", err)
	}
	w.conn = conn
	return conn, nil
}

func (w *Worker) closeConnection() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.conn != nil {
		if err := w.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			w.logger.Warn("[worker] error closing RabbitMQ connection", "error", err)
		}
		w.conn = nil
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
