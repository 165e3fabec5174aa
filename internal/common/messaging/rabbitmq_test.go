package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rizkirmdhn/filmscraper/internal/common/config"
	"github.com/rizkirmdhn/filmscraper/internal/common/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAcknowledger struct {
	mu     sync.Mutex
	acked  []uint64
	nacked []uint64
}

func (f *fakeAcknowledger) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, tag)
	return nil
}

func (f *fakeAcknowledger) Nack(tag uint64, multiple bool, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = append(f.nacked, tag)
	return nil
}

func (f *fakeAcknowledger) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

func (f *fakeAcknowledger) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.acked), len(f.nacked)
}

func newTestClient() *RabbitMQClient {
	return &RabbitMQClient{
		config: &config.RabbitMQConfig{ReconnectTimeout: 5},
		log:    logger.Discard(),
	}
}

type handled struct {
	mu     sync.Mutex
	bodies []string
}

func (h *handled) handler(fail string) Handler {
	return func(body []byte, routingKey string) error {
		h.mu.Lock()
		defer h.mu.Unlock()
		h.bodies = append(h.bodies, string(body))
		if string(body) == fail {
			return errors.New("handler failed")
		}
		return nil
	}
}

func (h *handled) snapshot() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.bodies...)
}

func TestConsumeLoop_ResubscribesAfterChannelClose(t *testing.T) {
	client := newTestClient()
	ack := &fakeAcknowledger{}

	first := make(chan amqp.Delivery, 1)
	first <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("before"), RoutingKey: "command.scraper"}
	close(first)

	second := make(chan amqp.Delivery, 1)
	second <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("after"), RoutingKey: "command.scraper"}

	var resubscribes int
	var mu sync.Mutex
	resubscribe := func() (<-chan amqp.Delivery, error) {
		mu.Lock()
		defer mu.Unlock()
		resubscribes++
		if resubscribes == 1 {
			return nil, errors.New("channel not ready")
		}
		return second, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &handled{}
	done := make(chan struct{})
	go func() {
		client.consumeLoop(ctx, "scraper_queue", first, resubscribe, h.handler(""))
		close(done)
	}()

	assert.Eventually(t, func() bool {
		return len(h.snapshot()) == 2
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"before", "after"}, h.snapshot())

	acked, nacked := ack.counts()
	assert.Equal(t, 2, acked)
	assert.Equal(t, 0, nacked)

	mu.Lock()
	assert.Equal(t, 2, resubscribes)
	mu.Unlock()

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume loop did not stop after cancellation")
	}
}

func TestConsumeLoop_NacksFailedDeliveries(t *testing.T) {
	client := newTestClient()
	ack := &fakeAcknowledger{}

	msgs := make(chan amqp.Delivery, 2)
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 1, Body: []byte("bad")}
	msgs <- amqp.Delivery{Acknowledger: ack, DeliveryTag: 2, Body: []byte("good")}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := &handled{}
	go client.consumeLoop(ctx, "scraper_queue", msgs, func() (<-chan amqp.Delivery, error) {
		return nil, errors.New("unused")
	}, h.handler("bad"))

	require.Eventually(t, func() bool {
		a, n := ack.counts()
		return a == 1 && n == 1
	}, time.Second, 5*time.Millisecond)

	ack.mu.Lock()
	assert.Equal(t, []uint64{1}, ack.nacked)
	assert.Equal(t, []uint64{2}, ack.acked)
	ack.mu.Unlock()
}

func TestConsumeLoop_StopsWhenClientClosed(t *testing.T) {
	client := newTestClient()
	client.closed = true

	msgs := make(chan amqp.Delivery)
	close(msgs)

	called := false
	done := make(chan struct{})
	go func() {
		client.consumeLoop(context.Background(), "scraper_queue", msgs, func() (<-chan amqp.Delivery, error) {
			called = true
			return nil, errors.New("closed")
		}, (&handled{}).handler(""))
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("consume loop kept running on a closed client")
	}
	assert.False(t, called)
}

func TestRetryDelay_DefaultsToOneSecond(t *testing.T) {
	client := &RabbitMQClient{config: &config.RabbitMQConfig{}}
	assert.Equal(t, time.Second, client.retryDelay())

	client.config.ReconnectTimeout = 250
	assert.Equal(t, 250*time.Millisecond, client.retryDelay())
}
