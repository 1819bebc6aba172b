// Package player schedules media playback for chat rooms.
//
// Each room owns a durable queue (QueueStore) and a playback controller.
// All decisions for a room run on that room's worker goroutine; slow work
// such as downloading or joining voice runs elsewhere and reports back as
// a message, tagged with the attempt it belongs to.
package player

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/rudebot/rudebot/internal/config"
	"github.com/rudebot/rudebot/internal/metrics"
)

const (
	DefaultCapacity = 10
	defaultTimeout  = 30 * time.Second
)

type Options struct {
	Capacity       int
	ResolveTimeout time.Duration
	ConnectTimeout time.Duration
	Locator        VoiceLocator
	Notifier       Notifier
	Metrics        *metrics.Metrics
}

// OptionsFromConfig fills Options from the loaded configuration.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Capacity:       cfg.QueueCapacity,
		ResolveTimeout: cfg.ResolveTimeout,
		ConnectTimeout: cfg.ConnectTimeout,
	}
}

type Scheduler struct {
	store     QueueStore
	resolver  Resolver
	transport Transport
	locator   VoiceLocator
	notifier  Notifier
	metrics   *metrics.Metrics

	capacity       int
	resolveTimeout time.Duration
	connectTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	log    zerolog.Logger

	mu     sync.Mutex
	rooms  map[string]*room
	closed bool
	wg     sync.WaitGroup
}

func NewScheduler(store QueueStore, res Resolver, transport Transport, opts Options) *Scheduler {
	if opts.Capacity <= 0 {
		opts.Capacity = DefaultCapacity
	}
	if opts.ResolveTimeout <= 0 {
		opts.ResolveTimeout = defaultTimeout
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = defaultTimeout
	}
	if opts.Locator == nil {
		opts.Locator = noLocator{}
	}
	if opts.Notifier == nil {
		opts.Notifier = noNotifier{}
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		store:          store,
		resolver:       res,
		transport:      transport,
		locator:        opts.Locator,
		notifier:       opts.Notifier,
		metrics:        opts.Metrics,
		capacity:       opts.Capacity,
		resolveTimeout: opts.ResolveTimeout,
		connectTimeout: opts.ConnectTimeout,
		ctx:            ctx,
		cancel:         cancel,
		log:            zlog.With().Str("component", "scheduler").Logger(),
		rooms:          make(map[string]*room),
	}
}

func (s *Scheduler) roomLog(roomID string) *zerolog.Logger {
	l := s.log.With().Str("room", roomID).Logger()
	return &l
}

// Close disconnects every room and waits for the workers to exit.
// Queues are durable and survive.
func (s *Scheduler) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for _, r := range s.rooms {
		r.refs++
		r.push(func(r *room) {
			if err := r.ctrl.Stop(); err != nil {
				s.roomLog(r.id).Warn().Err(err).Msg("disconnect on shutdown")
			}
		})
	}
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return errors.Wrap(ctx.Err(), "waiting for room workers")
	}
}

// ActiveRooms is the number of rooms with a live worker.
func (s *Scheduler) ActiveRooms() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rooms)
}
