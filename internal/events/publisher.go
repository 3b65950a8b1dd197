package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

const (
	// Initial retry backoff.
	initialBackoff = 1 * time.Second

	// Backoff multiplier.
	backoffMultiplier = 2

	// Default cap on a single backoff interval.
	defaultBackoffCap = 30 * time.Second

	// Default bound on delivery attempts.
	defaultMaxAttempts = 5

	// Default wall-clock budget for one envelope, retries included.
	defaultPublishBudget = 60 * time.Second
)

// Publisher delivers envelopes to the event bus. Delivery is
// fire-and-forget: Publish never blocks the caller on bus I/O and never
// returns a delivery error.
type Publisher interface {
	Publish(ctx context.Context, env *Envelope)
	Degraded() bool
	Ping(ctx context.Context) error
	Close() error
}

// PublisherConfig holds retry tuning for the bus publisher.
type PublisherConfig struct {
	// MaxAttempts bounds delivery attempts per envelope.
	MaxAttempts int

	// BackoffCap caps a single backoff interval.
	BackoffCap time.Duration

	// PublishBudget is the overall wall-clock budget per envelope.
	PublishBudget time.Duration
}

// DefaultPublisherConfig returns a PublisherConfig with the standard
// retry schedule.
func DefaultPublisherConfig() PublisherConfig {
	return PublisherConfig{
		MaxAttempts:   defaultMaxAttempts,
		BackoffCap:    defaultBackoffCap,
		PublishBudget: defaultPublishBudget,
	}
}

// RedisPublisher publishes envelopes on redis Pub/Sub channels named after
// the envelope subject. A circuit breaker sits in front of the client so a
// dead bus fails fast instead of burning the retry budget on every call.
type RedisPublisher struct {
	client  *redis.Client
	config  PublisherConfig
	logger  *zap.Logger
	breaker *gobreaker.CircuitBreaker

	degraded atomic.Bool
	wg       sync.WaitGroup
}

// ParseBusURL converts a bus connection string into redis options.
// Accepts both the native redis:// scheme and the generic bus://host:port
// form.
func ParseBusURL(url string) (*redis.Options, error) {
	if strings.HasPrefix(url, "bus://") {
		return &redis.Options{Addr: strings.TrimPrefix(url, "bus://")}, nil
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid bus URL %q: %w", url, err)
	}
	return opts, nil
}

// NewRedisPublisher connects to the bus and returns a publisher.
// Connectivity is not verified here; a down bus at startup only degrades
// event delivery, never the service.
func NewRedisPublisher(opts *redis.Options, config PublisherConfig, logger *zap.Logger) *RedisPublisher {
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = defaultMaxAttempts
	}
	if config.BackoffCap <= 0 {
		config.BackoffCap = defaultBackoffCap
	}
	if config.PublishBudget <= 0 {
		config.PublishBudget = defaultPublishBudget
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "event-bus",
		Timeout: 15 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
	})

	return &RedisPublisher{
		client:  redis.NewClient(opts),
		config:  config,
		logger:  logger,
		breaker: breaker,
	}
}

// Publish hands the envelope to a background delivery goroutine and
// returns immediately. The caller's context is not used for delivery;
// the publisher budget governs instead, so a cancelled request cannot
// abort an event for state that already committed.
func (p *RedisPublisher) Publish(ctx context.Context, env *Envelope) {
	payload, err := json.Marshal(env)
	if err != nil {
		p.logger.Error("Failed to encode event envelope",
			zap.String("event_type", env.EventType),
			zap.Error(err))
		return
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.deliver(env, payload)
	}()
}

func (p *RedisPublisher) deliver(env *Envelope, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), p.config.PublishBudget)
	defer cancel()

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ExponentialBackOff{
		InitialInterval:     initialBackoff,
		RandomizationFactor: backoff.DefaultRandomizationFactor,
		Multiplier:          backoffMultiplier,
		MaxInterval:         p.config.BackoffCap,
		MaxElapsedTime:      p.config.PublishBudget,
		Clock:               backoff.SystemClock,
		Stop:                backoff.Stop,
	}, uint64(p.config.MaxAttempts-1)), ctx)
	policy.Reset()

	subject := env.Subject()
	attempts := 0

	err := backoff.Retry(func() error {
		attempts++
		_, err := p.breaker.Execute(func() (interface{}, error) {
			return nil, p.client.Publish(ctx, subject, payload).Err()
		})
		return err
	}, policy)

	if err != nil {
		eventsDropped.Inc()
		p.logger.Error("Event dropped after exhausting retry budget",
			zap.String("subject", subject),
			zap.String("event_id", env.EventID),
			zap.Int("attempts", attempts),
			zap.Error(err))
		if p.degraded.CompareAndSwap(false, true) {
			p.logger.Warn("Event bus degraded, delivery suspended until next success")
		}
		return
	}

	eventsPublished.Inc()
	if p.degraded.CompareAndSwap(true, false) {
		p.logger.Info("Event bus recovered")
		p.announceRecovery(ctx)
	}
}

// announceRecovery publishes a health.recovered envelope. Best effort;
// a failure here just leaves the transition in the logs.
func (p *RedisPublisher) announceRecovery(ctx context.Context) {
	env := NewEnvelope(TypeHealthRecovered, nil)
	payload, err := json.Marshal(env)
	if err != nil {
		return
	}
	if err := p.client.Publish(ctx, env.Subject(), payload).Err(); err != nil {
		p.logger.Debug("Failed to announce bus recovery", zap.Error(err))
	}
}

// Degraded reports whether the last delivery attempt exhausted its retry
// budget. Surfaced on /health/detailed.
func (p *RedisPublisher) Degraded() bool {
	return p.degraded.Load()
}

// Ping verifies bus connectivity.
func (p *RedisPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

// Flush blocks until all in-flight deliveries have settled.
func (p *RedisPublisher) Flush() {
	p.wg.Wait()
}

// Close waits for in-flight deliveries and releases the client.
func (p *RedisPublisher) Close() error {
	p.wg.Wait()
	return p.client.Close()
}

// NopPublisher discards all envelopes. Used in tests and when no bus is
// configured.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, env *Envelope) {}
func (NopPublisher) Degraded() bool                             { return false }
func (NopPublisher) Ping(ctx context.Context) error             { return nil }
func (NopPublisher) Close() error                               { return nil }
