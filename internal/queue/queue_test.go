package queue

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/png"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mahirjain10/convertkit/internal/apperrors"
	"github.com/mahirjain10/convertkit/internal/encoder"
	"github.com/mahirjain10/convertkit/internal/transformation"
	"github.com/mahirjain10/convertkit/internal/types"
	"github.com/mahirjain10/convertkit/internal/utils"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type published struct {
	exchange string
	key      string
	msg      amqp.Publishing
}

type fakePublisher struct {
	mu    sync.Mutex
	sent  []published
	err   error
	onPub func(amqp.Publishing)
}

func (p *fakePublisher) PublishWithContext(_ context.Context, exchange, key string, _, _ bool, msg amqp.Publishing) error {
	p.mu.Lock()
	p.sent = append(p.sent, published{exchange: exchange, key: key, msg: msg})
	hook, err := p.onPub, p.err
	p.mu.Unlock()
	if err != nil {
		return err
	}
	if hook != nil {
		hook(msg)
	}
	return nil
}

func (p *fakePublisher) last(t *testing.T) published {
	t.Helper()
	p.mu.Lock()
	defer p.mu.Unlock()
	require.NotEmpty(t, p.sent)
	return p.sent[len(p.sent)-1]
}

type fakeAck struct {
	acked   bool
	nacked  bool
	requeue bool
}

func (a *fakeAck) Ack(uint64, bool) error { a.acked = true; return nil }
func (a *fakeAck) Nack(_ uint64, _ bool, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}
func (a *fakeAck) Reject(_ uint64, requeue bool) error {
	a.nacked = true
	a.requeue = requeue
	return nil
}

func requestBody(t *testing.T, req types.ConversionRequest) []byte {
	t.Helper()
	body, err := utils.SerializeJSON(&types.RabbitMQMessage{Pattern: types.ConvertPattern, Data: req})
	require.NoError(t, err)
	return body
}

func newTestWorker(enc encoder.Encoder) *Worker {
	return NewWorker("amqp://unused/", "convert_queue", 1, enc, discardLogger())
}

func TestWorker_HandleDelivery_Success(t *testing.T) {
	var got types.ConversionRequest
	w := newTestWorker(encoder.EncoderFunc(func(_ context.Context, req types.ConversionRequest) types.ConversionResult {
		got = req
		return types.Success("data:image/png;base64,AAAA", "image/png")
	}))
	pub := &fakePublisher{}
	ack := &fakeAck{}
	req := types.ConversionRequest{ID: "req-1", Payload: "data:image/jpeg;base64,xx", Width: 40, Height: 30, Format: types.PNG}

	require.NoError(t, w.handleDelivery(context.Background(), pub, amqp.Delivery{
		Acknowledger:  ack,
		DeliveryTag:   1,
		ReplyTo:       "amq.gen-reply",
		CorrelationId: "req-1",
		Body:          requestBody(t, req),
	}))

	assert.True(t, ack.acked)
	assert.False(t, ack.nacked)
	assert.Equal(t, req, got)

	reply := pub.last(t)
	assert.Equal(t, "", reply.exchange)
	assert.Equal(t, "amq.gen-reply", reply.key)
	assert.Equal(t, "req-1", reply.msg.CorrelationId)

	var status types.StatusMessage
	require.NoError(t, utils.ParseJSON(reply.msg.Body, &status))
	assert.Equal(t, types.StatusPattern, status.Pattern)
	assert.Equal(t, types.PROCESSED, status.Data.Status)
	assert.Equal(t, "image/png", status.Data.MimeType)
	assert.Equal(t, "data:image/png;base64,AAAA", status.Data.Payload)
}

func TestWorker_HandleDelivery_EncoderFailureIsAcked(t *testing.T) {
	w := newTestWorker(encoder.EncoderFunc(func(context.Context, types.ConversionRequest) types.ConversionResult {
		return types.Failure("Unsupported format")
	}))
	pub := &fakePublisher{}
	ack := &fakeAck{}

	require.NoError(t, w.handleDelivery(context.Background(), pub, amqp.Delivery{
		Acknowledger: ack,
		ReplyTo:      "reply",
		Body:         requestBody(t, types.ConversionRequest{ID: "req-2", Format: "tiff"}),
	}))

	assert.True(t, ack.acked)
	var status types.StatusMessage
	require.NoError(t, utils.ParseJSON(pub.last(t).msg.Body, &status))
	assert.Equal(t, types.FAILED, status.Data.Status)
	assert.Equal(t, "Unsupported format", status.Data.ErrorMsg)
	assert.Equal(t, "req-2", pub.last(t).msg.CorrelationId, "falls back to the request id")
}

func TestWorker_HandleDelivery_Rejections(t *testing.T) {
	never := encoder.EncoderFunc(func(context.Context, types.ConversionRequest) types.ConversionResult {
		t.Fatal("encoder must not run")
		return types.ConversionResult{}
	})

	tests := []struct {
		name    string
		d       amqp.Delivery
		requeue bool
	}{
		{"malformed body", amqp.Delivery{ReplyTo: "r", Body: []byte("{not json")}, false},
		{"wrong pattern", amqp.Delivery{ReplyTo: "r", Body: []byte(`{"pattern":"resize","data":{}}`)}, false},
		{"no reply queue", amqp.Delivery{Body: requestBody(t, types.ConversionRequest{ID: "x"})}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ack := &fakeAck{}
			tt.d.Acknowledger = ack
			require.NoError(t, newTestWorker(never).handleDelivery(context.Background(), &fakePublisher{}, tt.d))
			assert.True(t, ack.nacked)
			assert.False(t, ack.acked)
			assert.Equal(t, tt.requeue, ack.requeue)
		})
	}
}

func TestWorker_HandleDelivery_PublishTimeoutRequeues(t *testing.T) {
	w := newTestWorker(encoder.EncoderFunc(func(context.Context, types.ConversionRequest) types.ConversionResult {
		return types.Success("data:,", "image/png")
	}))
	ack := &fakeAck{}
	pub := &fakePublisher{err: context.DeadlineExceeded}

	require.NoError(t, w.handleDelivery(context.Background(), pub, amqp.Delivery{
		Acknowledger: ack,
		ReplyTo:      "reply",
		Body:         requestBody(t, types.ConversionRequest{ID: "req-3"}),
	}))

	assert.True(t, ack.nacked)
	assert.True(t, ack.requeue)
}

func TestWorker_Drain(t *testing.T) {
	w := newTestWorker(encoder.EncoderFunc(func(context.Context, types.ConversionRequest) types.ConversionResult {
		return types.Success("data:,", "image/png")
	}))
	msgs := make(chan amqp.Delivery, 2)
	acks := []*fakeAck{{}, {}}
	for i, ack := range acks {
		msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: uint64(i), ReplyTo: "r",
			Body: requestBody(t, types.ConversionRequest{ID: "d"})}
	}
	close(msgs)

	reopen, err := w.drain(context.Background(), &fakePublisher{}, msgs)
	require.NoError(t, err)
	assert.True(t, reopen, "closed channel asks for a new one")
	for _, ack := range acks {
		assert.True(t, ack.acked)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reopen, err = w.drain(ctx, &fakePublisher{}, make(chan amqp.Delivery))
	require.NoError(t, err)
	assert.False(t, reopen)
}

func TestWorker_FatalErrorStopsDrain(t *testing.T) {
	w := newTestWorker(encoder.EncoderFunc(func(context.Context, types.ConversionRequest) types.ConversionResult {
		return types.Success("data:,", "image/png")
	}))
	first, second := &fakeAck{}, &fakeAck{}
	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{Acknowledger: first, ReplyTo: "r", Body: requestBody(t, types.ConversionRequest{ID: "a"})}
	msgs <- amqp.Delivery{Acknowledger: second, ReplyTo: "r", Body: requestBody(t, types.ConversionRequest{ID: "b"})}

	reopen, err := w.drain(context.Background(), &fakePublisher{err: amqp.ErrClosed}, msgs)
	require.Error(t, err)
	assert.ErrorIs(t, err, amqp.ErrClosed)
	assert.False(t, reopen)

	assert.True(t, first.nacked)
	assert.True(t, first.requeue, "the request is kept for another worker")
	assert.False(t, second.acked || second.nacked, "nothing is consumed after a fatal error")
	assert.Len(t, msgs, 1)
}

func TestWorker_HandleDelivery_FatalIsReturned(t *testing.T) {
	w := newTestWorker(encoder.EncoderFunc(func(context.Context, types.ConversionRequest) types.ConversionResult {
		return types.Success("data:,", "image/png")
	}))
	ack := &fakeAck{}

	err := w.handleDelivery(context.Background(), &fakePublisher{err: errors.New("Exception (403) Reason: \"ACCESS_REFUSED - access denied\"")},
		amqp.Delivery{Acknowledger: ack, ReplyTo: "r", Body: requestBody(t, types.ConversionRequest{ID: "c"})})
	require.Error(t, err)
	assert.True(t, IsFatalError(err))
	assert.True(t, ack.requeue)
}

func TestWorker_OversizedRequestIsAnswered(t *testing.T) {
	w := newTestWorker(encoder.NewLocal(1, transformation.DefaultOptions(), discardLogger()))
	pub := &fakePublisher{}
	ack := &fakeAck{}

	buf := new(bytes.Buffer)
	require.NoError(t, png.Encode(buf, image.NewGray(image.Rect(0, 0, 4, 4))))
	req := types.ConversionRequest{
		ID:      "huge",
		Payload: utils.EncodeDataURI("image/png", buf.Bytes()),
		Width:   3037000500,
		Height:  3037000500,
		Format:  types.PNG,
	}

	require.NoError(t, w.handleDelivery(context.Background(), pub, amqp.Delivery{
		Acknowledger: ack,
		ReplyTo:      "r",
		Body:         requestBody(t, req),
	}))

	assert.True(t, ack.acked)
	var status types.StatusMessage
	require.NoError(t, utils.ParseJSON(pub.last(t).msg.Body, &status))
	assert.Equal(t, types.FAILED, status.Data.Status)
	assert.True(t, strings.HasPrefix(status.Data.ErrorMsg, "Failed to write output:"), status.Data.ErrorMsg)
}

func newTestClient(pub *fakePublisher, timeout time.Duration) *Client {
	c := NewClient("amqp://unused/", "convert_queue", timeout, discardLogger())
	c.pub = pub
	c.replyQueue = "amq.gen-client"
	return c
}

func replyFor(t *testing.T, correlationID string, data *types.StatusData) amqp.Delivery {
	t.Helper()
	body, err := utils.SerializeJSON(utils.InitStatusMessage(data))
	require.NoError(t, err)
	return amqp.Delivery{CorrelationId: correlationID, Body: body}
}

func TestClient_Encode_RoundTrip(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestClient(pub, time.Second)
	pub.onPub = func(msg amqp.Publishing) {
		go c.dispatchReply(replyFor(t, msg.CorrelationId,
			utils.InitStatusData(msg.CorrelationId, types.PROCESSED, "data:image/webp;base64,UklG", "image/webp", "")))
	}

	req := encoder.NewRequest("data:image/png;base64,iVBO", 10, 5, types.WEBP)
	result := c.Encode(context.Background(), req)

	assert.False(t, result.Failed())
	assert.Equal(t, "data:image/webp;base64,UklG", result.Payload)
	assert.Equal(t, "image/webp", result.MimeType)

	sent := pub.last(t)
	assert.Equal(t, "convert_queue", sent.key)
	assert.Equal(t, req.ID, sent.msg.CorrelationId)
	assert.Equal(t, "amq.gen-client", sent.msg.ReplyTo)

	var message types.RabbitMQMessage
	require.NoError(t, utils.ParseJSON(sent.msg.Body, &message))
	assert.Equal(t, req, message.Data)
	assert.Empty(t, c.pending)
}

func TestClient_Encode_RemoteFailure(t *testing.T) {
	pub := &fakePublisher{}
	c := newTestClient(pub, time.Second)
	pub.onPub = func(msg amqp.Publishing) {
		go c.dispatchReply(replyFor(t, msg.CorrelationId,
			utils.InitStatusData(msg.CorrelationId, types.FAILED, "", "", "Unsupported format")))
	}

	result := c.Encode(context.Background(), encoder.NewRequest("data:,", 1, 1, "tiff"))
	assert.True(t, result.Failed())
	assert.Equal(t, "Unsupported format", result.Message)
}

func TestClient_Encode_Timeout(t *testing.T) {
	c := newTestClient(&fakePublisher{}, 20*time.Millisecond)

	result := c.Encode(context.Background(), encoder.NewRequest("data:,", 1, 1, types.PNG))
	assert.True(t, result.Failed())
	assert.Equal(t, "Conversion timed out", result.Message)
	assert.Empty(t, c.pending)
}

func TestClient_Encode_PublishError(t *testing.T) {
	c := newTestClient(&fakePublisher{err: errors.New("channel closed")}, time.Second)

	result := c.Encode(context.Background(), encoder.NewRequest("data:,", 1, 1, types.PNG))
	assert.True(t, result.Failed())
	assert.Contains(t, result.Message, "Failed to send conversion request")
}

func TestClient_DispatchReply_Unknown(t *testing.T) {
	c := newTestClient(&fakePublisher{}, time.Second)
	waiter := make(chan types.StatusData, 1)
	c.pending["known"] = waiter

	c.dispatchReply(replyFor(t, "stale", utils.InitStatusData("stale", types.PROCESSED, "", "", "")))
	c.dispatchReply(amqp.Delivery{CorrelationId: "known", Body: []byte("garbage")})
	assert.Empty(t, waiter)

	c.dispatchReply(replyFor(t, "", utils.InitStatusData("known", types.PROCESSED, "p", "image/png", "")))
	require.Len(t, waiter, 1)
	assert.Equal(t, "p", (<-waiter).Payload)
}

func TestErrorClassification(t *testing.T) {
	assert.True(t, IsTransientError(context.DeadlineExceeded))
	assert.True(t, IsTransientError(errors.New("read: connection reset by peer")))
	assert.True(t, IsTransientError(&amqp.Error{Code: 320, Reason: "CONNECTION_FORCED", Recover: true}))
	assert.False(t, IsTransientError(errors.New("bad payload")))
	assert.False(t, IsTransientError(nil))

	assert.True(t, IsFatalError(amqp.ErrClosed))
	assert.True(t, IsFatalError(errors.New("Access Denied")))
	assert.True(t, IsFatalError(apperrors.New(apperrors.KindConfig, "op", "missing url")))
	assert.False(t, IsFatalError(errors.New("bad payload")))

	assert.True(t, requeueFor(ProcessingError{Err: errors.New("x"), Requeue: true}))
	assert.False(t, requeueFor(ProcessingError{Err: errors.New("timeout"), Requeue: false}))
	assert.True(t, requeueFor(errors.New("i/o timeout")))
}
