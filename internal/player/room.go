package player

import (
	"context"
	"sync"
)

// room is the per-room worker. Messages run one at a time in arrival order,
// so the controller and queue decisions for a room never interleave.
type room struct {
	id          string
	ctrl        Controller
	lastChannel string

	refs int // pending messages; guarded by Scheduler.mu

	mu    sync.Mutex
	inbox []func(*room)
	wake  chan struct{}
}

func newRoom(id string) *room {
	return &room{id: id, wake: make(chan struct{}, 1)}
}

// push never blocks, so callbacks fired from inside the worker cannot deadlock it.
func (r *room) push(fn func(*room)) {
	r.mu.Lock()
	r.inbox = append(r.inbox, fn)
	r.mu.Unlock()
	select {
	case r.wake <- struct{}{}:
	default:
	}
}

func (r *room) pop() func(*room) {
	for {
		r.mu.Lock()
		if len(r.inbox) > 0 {
			fn := r.inbox[0]
			r.inbox[0] = nil
			r.inbox = r.inbox[1:]
			r.mu.Unlock()
			return fn
		}
		r.mu.Unlock()
		<-r.wake
	}
}

func (r *room) dormant() bool {
	return r.ctrl.State() == StateIdle && !r.ctrl.Connected()
}

// post queues fn on the room's worker, starting one if needed.
func (s *Scheduler) post(roomID string, fn func(*room)) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	r, ok := s.rooms[roomID]
	if !ok {
		r = newRoom(roomID)
		s.rooms[roomID] = r
		s.wg.Add(1)
		s.metrics.RoomOpened()
		go s.run(r)
	}
	r.refs++
	s.mu.Unlock()

	r.push(fn)
	return true
}

// do runs fn on the room worker and waits for its reply.
func (s *Scheduler) do(ctx context.Context, roomID string, fn func(*room) (Reply, error)) (Reply, error) {
	type result struct {
		reply Reply
		err   error
	}
	done := make(chan result, 1)
	if !s.post(roomID, func(r *room) {
		reply, err := fn(r)
		done <- result{reply, err}
	}) {
		return Reply{}, ErrClosed
	}
	select {
	case res := <-done:
		return res.reply, res.err
	case <-ctx.Done():
		return Reply{}, ctx.Err()
	}
}

func (s *Scheduler) run(r *room) {
	defer s.wg.Done()
	for {
		fn := r.pop()
		fn(r)
		if s.release(r) {
			return
		}
	}
}

// release retires the worker when no message is pending and the room holds
// no playback session. Its queue, if any, stays in the store.
func (s *Scheduler) release(r *room) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r.refs--
	if r.refs > 0 || !r.dormant() {
		return false
	}
	delete(s.rooms, r.id)
	s.metrics.RoomClosed()
	return true
}
