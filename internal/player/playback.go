package player

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/rudebot/rudebot/internal/repository"
	"github.com/rudebot/rudebot/internal/resolver"
)

// prepared is the outcome of resolving and connecting for one attempt.
type prepared struct {
	attempt uuid.UUID
	item    repository.QueueItem
	path    string
	conn    Connection
	err     error
}

// advance starts the head of the queue if the room is Idle. It is the only
// place an attempt begins, which keeps at most one play per room.
func (s *Scheduler) advance(r *room) {
	if r.ctrl.State() != StateIdle {
		return
	}
	log := s.roomLog(r.id)

	items, err := s.store.ListItems(s.ctx, r.id)
	if err != nil {
		log.Error().Err(err).Msg("list queue")
		return
	}
	if len(items) == 0 {
		if r.ctrl.Connected() {
			log.Info().Msg("queue finished, leaving voice")
			if err := r.ctrl.Release(); err != nil {
				log.Warn().Err(err).Msg("disconnect")
			}
		}
		return
	}

	head := items[0]
	channelID := s.voiceChannelFor(r, head)
	if channelID == "" && !r.ctrl.Connected() {
		log.Info().Int64("item", head.ID).Msg("no voice channel to play in, waiting")
		return
	}

	attempt, err := r.ctrl.Begin(head.ID)
	if err != nil {
		return
	}
	log.Debug().Int64("item", head.ID).Str("attempt", attempt.String()).Msg("preparing")
	go s.prepare(r.id, attempt, head, channelID, !r.ctrl.Connected())
}

// voiceChannelFor picks where to play: the requester's current channel, else the last one seen.
func (s *Scheduler) voiceChannelFor(r *room, item repository.QueueItem) string {
	if ch, ok := s.locator.VoiceChannel(r.id, item.RequesterID); ok && ch != "" {
		r.lastChannel = ch
		return ch
	}
	return r.lastChannel
}

// prepare runs off the worker: it may take as long as a download.
func (s *Scheduler) prepare(roomID string, attempt uuid.UUID, item repository.QueueItem, channelID string, connect bool) {
	res := prepared{attempt: attempt, item: item}

	rctx, cancel := context.WithTimeout(s.ctx, s.resolveTimeout)
	res.path, res.err = s.resolver.Resolve(rctx, item.ID, item.PlaybackRef())
	cancel()

	if res.err == nil && connect {
		cctx, cancel := context.WithTimeout(s.ctx, s.connectTimeout)
		conn, err := s.transport.Connect(cctx, roomID, channelID)
		cancel()
		if err != nil {
			res.err = errors.Mark(errors.Wrap(err, "connect"), ErrTransport)
		} else {
			res.conn = conn
		}
	}

	if !s.post(roomID, func(r *room) { s.onPrepared(r, res) }) && res.conn != nil {
		_ = res.conn.Disconnect()
	}
}

func (s *Scheduler) onPrepared(r *room, res prepared) {
	log := s.roomLog(r.id).With().Int64("item", res.item.ID).Logger()

	if !r.ctrl.Current(res.attempt) {
		log.Debug().Msg("discarding stale preparation")
		if res.conn != nil {
			s.adopt(r, res.conn)
		}
		s.advance(r)
		return
	}
	if res.err != nil {
		s.drop(r, res.item, res.err)
		return
	}
	if res.conn != nil {
		r.ctrl.Attach(res.conn)
	}
	if res.path != res.item.LocalResourcePath {
		if err := s.store.SetResourcePath(s.ctx, res.item.ID, res.path); err != nil {
			log.Error().Err(err).Msg("record resource path")
		}
	}

	attempt, itemID, roomID := res.attempt, res.item.ID, r.id
	err := r.ctrl.Start(attempt, res.path, func(err error) {
		s.post(roomID, func(r *room) { s.onComplete(r, attempt, itemID, err) })
	})
	if err != nil {
		s.drop(r, res.item, errors.Mark(err, ErrTransport))
		return
	}

	s.metrics.PlayStarted()
	log.Info().Str("title", res.item.Title).Msg("now playing")
	s.notifier.Notify(r.id, "Now playing: "+res.item.Title)
}

// adopt keeps a connection that arrived for a discarded attempt if the room
// has none; otherwise the extra connection is closed.
func (s *Scheduler) adopt(r *room, conn Connection) {
	switch {
	case r.ctrl.conn == conn:
	case r.ctrl.conn == nil:
		r.ctrl.Attach(conn)
	default:
		_ = conn.Disconnect()
	}
}

// drop removes an item that cannot be played and moves on.
func (s *Scheduler) drop(r *room, item repository.QueueItem, cause error) {
	r.ctrl.Abort()

	reason := "transport"
	if !errors.Is(cause, ErrTransport) {
		reason = resolver.KindOf(cause)
	}
	log := s.roomLog(r.id)
	log.Warn().Err(cause).Int64("item", item.ID).Str("reason", reason).Msg("dropping unplayable item")

	if _, err := s.store.RemoveItem(s.ctx, item.ID); err != nil {
		log.Error().Err(err).Int64("item", item.ID).Msg("remove unplayable item")
		return
	}
	s.metrics.ItemDropped(reason)
	s.notifier.Notify(r.id, "Failed to play "+item.Title+".")
	s.advance(r)
}

// onComplete handles the end of a play, natural or interrupted.
func (s *Scheduler) onComplete(r *room, attempt uuid.UUID, itemID int64, playErr error) {
	log := s.roomLog(r.id).With().Int64("item", itemID).Logger()
	if playErr != nil {
		log.Warn().Err(playErr).Msg("playback ended with error")
	}
	s.metrics.PlayCompleted()

	if _, err := s.store.RemoveItem(s.ctx, itemID); err != nil {
		log.Error().Err(err).Msg("remove finished item")
	}
	if r.ctrl.Finish(attempt) {
		s.advance(r)
	}
}
