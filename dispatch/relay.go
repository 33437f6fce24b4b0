/*
Package dispatch delivers committed setting changes to downstream jobs.

PURPOSE:
  The cascade engine enqueues an effect row in the same transaction as the
  mutation. This package polls that outbox after commit and hands each
  effect to the handler registered for its domain. Delivery is best-effort,
  at-least-once: a failing handler is retried with exponential backoff, and
  an effect that exhausts its retry budget is parked as failed for manual
  inspection.

GUARANTEES:
  - An effect exists iff its mutation committed (outbox pattern).
  - Handler failures never affect the committed mutation.
  - Handlers must be idempotent; a crash between handling and marking
    dispatched redelivers the effect.

USAGE:
  relay := dispatch.NewRelay(store, logger, dispatch.Config{})
  relay.Register(policy.DomainTask, &task.Handler{...})
  go relay.Start(ctx)
  defer relay.Stop()
*/
package dispatch

import (
	"context"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/engagekit/policy-engine/policy"
)

// Handler consumes one committed change. Called outside any transaction.
type Handler interface {
	HandleEffect(ctx context.Context, ch policy.Change) error
}

// Config tunes the relay loop. Zero values fall back to defaults.
type Config struct {
	Interval    time.Duration // poll cadence, default 2s
	BatchSize   int           // effects per poll, default 50
	MaxBackoff  time.Duration // retry delay ceiling, default 5m
	MaxAttempts int           // delivery attempts before parking, default 10
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = 2 * time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 50
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 5 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	return c
}

// Relay polls the effects outbox and routes each effect to its domain handler.
type Relay struct {
	queue policy.EffectQueue
	log   *logrus.Logger
	cfg   Config

	mu       sync.RWMutex
	handlers map[policy.Domain]Handler

	now  func() time.Time
	rand *rand.Rand

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewRelay(queue policy.EffectQueue, log *logrus.Logger, cfg Config) *Relay {
	return &Relay{
		queue:    queue,
		log:      log,
		cfg:      cfg.withDefaults(),
		handlers: make(map[policy.Domain]Handler),
		now:      time.Now,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Register installs the handler for a domain. Effects for domains without a
// handler are delivered as no-ops and marked dispatched.
func (r *Relay) Register(d policy.Domain, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[d] = h
}

// Start runs the poll loop until Stop is called or ctx is canceled.
func (r *Relay) Start(ctx context.Context) {
	r.started.Store(true)
	defer close(r.done)

	ticker := time.NewTicker(r.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.log.WithError(err).Error("effect relay poll failed")
			}
		}
	}
}

// Stop signals the loop to exit and waits for the in-flight poll to finish.
// Stopping a relay that was never started returns immediately.
func (r *Relay) Stop() {
	r.stopOnce.Do(func() { close(r.stop) })
	if !r.started.Load() {
		return
	}
	<-r.done
}

// RunOnce drains one batch of due effects. Exported for tests and for
// callers that drive the relay on their own schedule.
func (r *Relay) RunOnce(ctx context.Context) error {
	now := r.now()
	effects, err := r.queue.DueEffects(ctx, now, r.cfg.BatchSize)
	if err != nil {
		return err
	}

	for _, eff := range effects {
		r.deliver(ctx, eff)
	}
	return nil
}

func (r *Relay) deliver(ctx context.Context, eff policy.Effect) {
	log := r.log.WithFields(logrus.Fields{
		"effect":  eff.ID,
		"domain":  eff.Change.Domain,
		"company": eff.Change.CompanyID,
		"attempt": eff.Attempts + 1,
	})

	r.mu.RLock()
	handler, ok := r.handlers[eff.Change.Domain]
	r.mu.RUnlock()

	var handleErr error
	if ok {
		handleErr = handler.HandleEffect(ctx, eff.Change)
	} else {
		log.Debug("no handler for domain, dropping effect")
	}

	if handleErr == nil {
		if err := r.queue.MarkDispatched(ctx, eff.ID, r.now()); err != nil {
			log.WithError(err).Error("failed to mark effect dispatched")
			return
		}
		effectsDispatched.WithLabelValues(string(eff.Change.Domain)).Inc()
		log.Debug("effect dispatched")
		return
	}

	attempts := eff.Attempts + 1
	if attempts >= r.cfg.MaxAttempts {
		if err := r.queue.MarkFailed(ctx, eff.ID, handleErr.Error()); err != nil {
			log.WithError(err).Error("failed to park effect")
			return
		}
		effectsDead.WithLabelValues(string(eff.Change.Domain)).Inc()
		log.WithError(handleErr).Error("effect exhausted retries, parked as failed")
		return
	}

	delay := backoff(attempts, r.cfg.MaxBackoff) + jitter(r.rand, time.Second)
	next := r.now().Add(delay)
	if err := r.queue.RescheduleEffect(ctx, eff.ID, attempts, next, handleErr.Error()); err != nil {
		log.WithError(err).Error("failed to reschedule effect")
		return
	}
	effectsRetried.WithLabelValues(string(eff.Change.Domain)).Inc()
	log.WithError(handleErr).WithField("retry_in", delay).Warn("effect delivery failed, rescheduled")
}
