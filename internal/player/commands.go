package player

import (
	"context"
	"fmt"
	"strings"

	"github.com/cockroachdb/errors"

	"github.com/rudebot/rudebot/internal/resolver"
)

// Add looks up sourceRef and appends it to the room's queue. Playback starts
// right away when the room is idle and has a voice channel to play in.
func (s *Scheduler) Add(ctx context.Context, roomID, requesterID, sourceRef string) (Reply, error) {
	ref := strings.TrimSpace(sourceRef)
	if ref == "" {
		return invalidReply("Tell me what to play."), nil
	}

	// Cheap early refusal; the worker checks again before inserting.
	reply, err := s.do(ctx, roomID, s.checkCapacity)
	if err != nil || reply.Outcome != OutcomeOK {
		return reply, err
	}

	lctx, cancel := context.WithTimeout(ctx, s.resolveTimeout)
	meta, err := s.resolver.Lookup(lctx, ref)
	cancel()
	if err != nil {
		s.roomLog(roomID).Warn().Err(err).Str("ref", ref).Msg("lookup failed")
		return Reply{Outcome: OutcomeFailed, Text: "Failed to add song."}, nil
	}

	channelID, _ := s.locator.VoiceChannel(roomID, requesterID)
	return s.do(ctx, roomID, func(r *room) (Reply, error) {
		return s.add(r, requesterID, meta, ref, channelID)
	})
}

func (s *Scheduler) checkCapacity(r *room) (Reply, error) {
	n, err := s.store.CountItems(s.ctx, r.id)
	if err != nil {
		return Reply{}, storageErr(err, "count queue")
	}
	if n >= s.capacity {
		return Reply{Outcome: OutcomeCapacity, Text: fmt.Sprintf("Queue is full (%d songs max).", s.capacity)}, nil
	}
	return okReply(""), nil
}

func (s *Scheduler) add(r *room, requesterID string, meta resolver.Metadata, ref, channelID string) (Reply, error) {
	if reply, err := s.checkCapacity(r); err != nil || reply.Outcome != OutcomeOK {
		return reply, err
	}
	item, err := s.store.AddItem(s.ctx, r.id, requesterID, meta.Title, ref, meta.URL)
	if err != nil {
		return Reply{}, storageErr(err, "add item")
	}
	s.metrics.ItemAdded()
	s.roomLog(r.id).Info().Int64("item", item.ID).Str("title", item.Title).Msg("added")

	if channelID != "" {
		r.lastChannel = channelID
	}
	text := "Added: " + item.Title
	if channelID == "" && r.lastChannel == "" && !r.ctrl.Connected() {
		text += "\nJoin a voice channel so I can play it."
	}
	s.advance(r)
	return okReply(text), nil
}

// Remove deletes the item at a 1-based position, counting the current item as 1.
// Removing the current item skips it.
func (s *Scheduler) Remove(ctx context.Context, roomID string, index int) (Reply, error) {
	return s.do(ctx, roomID, func(r *room) (Reply, error) {
		items, err := s.store.ListItems(s.ctx, r.id)
		if err != nil {
			return Reply{}, storageErr(err, "list queue")
		}
		if index < 1 || index > len(items) {
			return invalidReply("Invalid song number."), nil
		}
		item := items[index-1]

		if r.ctrl.State() != StateIdle && r.ctrl.Active() == item.ID {
			if r.ctrl.Interrupting() {
				return okReply("Removed: " + item.Title), nil
			}
			if _, err := s.skip(r); err != nil {
				return Reply{}, err
			}
		} else if _, err := s.store.RemoveItem(s.ctx, item.ID); err != nil {
			return Reply{}, storageErr(err, "remove item")
		}
		return okReply("Removed: " + item.Title), nil
	})
}

func (s *Scheduler) Skip(ctx context.Context, roomID string) (Reply, error) {
	return s.do(ctx, roomID, s.skip)
}

func (s *Scheduler) skip(r *room) (Reply, error) {
	switch r.ctrl.State() {
	case StateIdle:
		return invalidReply("Nothing is playing."), nil
	case StateConnecting:
		// The preparation still finishes, but its result is now stale.
		if _, err := s.store.RemoveItem(s.ctx, r.ctrl.Active()); err != nil {
			return Reply{}, storageErr(err, "remove item")
		}
		r.ctrl.Abort()
		s.advance(r)
	default:
		if r.ctrl.Interrupting() {
			return s.skipNext(r)
		}
		if err := r.ctrl.Interrupt(); err != nil {
			s.roomLog(r.id).Warn().Err(err).Msg("stop current play")
		}
	}
	return okReply("Skipped."), nil
}

// skipNext handles a skip that arrives while the current play is already
// stopping: it takes out the item that would have played next.
func (s *Scheduler) skipNext(r *room) (Reply, error) {
	items, err := s.store.ListItems(s.ctx, r.id)
	if err != nil {
		return Reply{}, storageErr(err, "list queue")
	}
	for _, it := range items {
		if it.ID == r.ctrl.Active() {
			continue
		}
		if _, err := s.store.RemoveItem(s.ctx, it.ID); err != nil {
			return Reply{}, storageErr(err, "remove item")
		}
		return okReply("Skipped."), nil
	}
	return invalidReply("Nothing is playing."), nil
}

func (s *Scheduler) Pause(ctx context.Context, roomID string) (Reply, error) {
	return s.do(ctx, roomID, func(r *room) (Reply, error) {
		switch err := r.ctrl.Pause(); {
		case err == nil:
			return okReply("Paused."), nil
		case errors.Is(err, ErrNothingPlaying):
			return invalidReply("Nothing is playing."), nil
		default:
			s.roomLog(r.id).Warn().Err(err).Msg("pause")
			return Reply{Outcome: OutcomeFailed, Text: "Could not pause playback."}, nil
		}
	})
}

func (s *Scheduler) Resume(ctx context.Context, roomID string) (Reply, error) {
	return s.do(ctx, roomID, func(r *room) (Reply, error) {
		switch err := r.ctrl.Resume(); {
		case err == nil:
			return okReply("Resumed."), nil
		case errors.Is(err, ErrNothingPaused):
			return invalidReply("Nothing is paused."), nil
		default:
			s.roomLog(r.id).Warn().Err(err).Msg("resume")
			return Reply{Outcome: OutcomeFailed, Text: "Could not resume playback."}, nil
		}
	})
}

// Stop clears the room's queue and leaves voice, whatever the current state.
func (s *Scheduler) Stop(ctx context.Context, roomID string) (Reply, error) {
	return s.do(ctx, roomID, func(r *room) (Reply, error) {
		n, err := s.store.PurgeRoom(s.ctx, r.id)
		if err != nil {
			return Reply{}, storageErr(err, "purge queue")
		}
		if err := r.ctrl.Stop(); err != nil {
			s.roomLog(r.id).Warn().Err(err).Msg("disconnect")
		}
		s.roomLog(r.id).Info().Int64("purged", n).Msg("stopped")
		return okReply("Music stopped and queue cleared."), nil
	})
}

func (s *Scheduler) ListQueue(ctx context.Context, roomID string) (Reply, error) {
	view, err := s.Snapshot(ctx, roomID)
	if err != nil {
		return Reply{}, err
	}
	return okReply(view.Text()), nil
}

// Snapshot returns the room's queue split into the current item and the rest.
func (s *Scheduler) Snapshot(ctx context.Context, roomID string) (QueueView, error) {
	var view QueueView
	_, err := s.do(ctx, roomID, func(r *room) (Reply, error) {
		items, err := s.store.ListItems(s.ctx, r.id)
		if err != nil {
			return Reply{}, storageErr(err, "list queue")
		}
		view = buildView(items, r.ctrl.State(), r.ctrl.Active())
		return Reply{}, nil
	})
	if err != nil {
		return QueueView{}, err
	}
	return view, nil
}

// State reports the room's controller state.
func (s *Scheduler) State(ctx context.Context, roomID string) (State, error) {
	var st State
	_, err := s.do(ctx, roomID, func(r *room) (Reply, error) {
		st = r.ctrl.State()
		return Reply{}, nil
	})
	if err != nil {
		return StateIdle, err
	}
	return st, nil
}
