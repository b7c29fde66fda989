package cartsync

import (
	"context"
	"fmt"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/curiomarket/storefront/pkg/logger"
	pkgredis "github.com/curiomarket/storefront/pkg/redis"
)

// RedisSignal turns a redis pub/sub channel into a SignalSource. Message
// payloads are ignored; a message only means "re-read the cart".
type RedisSignal struct {
	client  *pkgredis.Client
	channel string
	logg    *logger.Logger
	events  chan struct{}
	cancel  context.CancelFunc
	done    chan struct{}
}

// NewRedisSignal subscribes to the given channel and starts forwarding.
// Dropped connections are re-subscribed with capped exponential backoff.
func NewRedisSignal(ctx context.Context, client *pkgredis.Client, channel string, logg *logger.Logger) (*RedisSignal, error) {
	if client == nil {
		return nil, fmt.Errorf("redis client required")
	}
	if channel == "" {
		return nil, fmt.Errorf("sync channel name required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}

	runCtx, cancel := context.WithCancel(ctx)
	s := &RedisSignal{
		client:  client,
		channel: channel,
		logg:    logg,
		events:  make(chan struct{}, 1),
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run(runCtx)
	return s, nil
}

// Events implements SignalSource.
func (s *RedisSignal) Events() <-chan struct{} {
	return s.events
}

// Close stops the forwarder and closes the events channel.
func (s *RedisSignal) Close() error {
	s.cancel()
	<-s.done
	return nil
}

func (s *RedisSignal) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.events)

	backoff := retry.WithCappedDuration(30*time.Second, retry.NewExponential(time.Second))
	for {
		err := s.forward(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "cart sync subscription dropped")
		}
		delay, ok := backoff.Next()
		if !ok {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
	}
}

func (s *RedisSignal) forward(ctx context.Context) error {
	pubsub, err := s.client.Subscribe(ctx, s.channel)
	if err != nil {
		return err
	}
	defer pubsub.Close()

	messages := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-messages:
			if !ok {
				return fmt.Errorf("pubsub channel closed")
			}
			select {
			case s.events <- struct{}{}:
			default:
			}
		}
	}
}

// Announcer publishes a change signal other contexts subscribe to. Use it as
// the cart service's announce hook.
func Announcer(client *pkgredis.Client, channel string, logg *logger.Logger) func(ctx context.Context) {
	return func(ctx context.Context) {
		if err := client.Publish(ctx, channel, "changed"); err != nil {
			logg.Warn(logg.WithField(ctx, "error", err.Error()), "cart change announcement failed")
		}
	}
}
