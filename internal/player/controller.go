package player

import (
	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

// Controller is one room's playback state machine:
//
//	Idle -> Connecting -> Playing <-> Paused -> Idle
//
// It is owned by the room worker and never touched concurrently. Every
// attempt to play an item gets a fresh token; results carrying an older
// token are stale and must be ignored by the caller.
type Controller struct {
	state   State
	conn    Connection
	active  int64
	attempt uuid.UUID

	interrupting bool // Stop sent, completion not yet seen
}

func (c *Controller) State() State { return c.state }

// Active is the queue item being prepared or played, or 0.
func (c *Controller) Active() int64 { return c.active }

func (c *Controller) Connected() bool { return c.conn != nil }

// Interrupting reports whether the current play was already told to stop.
func (c *Controller) Interrupting() bool { return c.interrupting }

func (c *Controller) ChannelID() string {
	if c.conn == nil {
		return ""
	}
	return c.conn.ChannelID()
}

// Current reports whether token identifies the attempt in flight.
func (c *Controller) Current(token uuid.UUID) bool {
	return c.state != StateIdle && c.attempt == token
}

// Begin moves Idle to Connecting for itemID. Only one attempt may be in flight.
func (c *Controller) Begin(itemID int64) (uuid.UUID, error) {
	if c.state != StateIdle {
		return uuid.Nil, ErrAttemptInFlight
	}
	c.state = StateConnecting
	c.active = itemID
	c.attempt = uuid.New()
	return c.attempt, nil
}

// Attach takes ownership of conn, dropping a different previous connection.
func (c *Controller) Attach(conn Connection) {
	if c.conn != nil && c.conn != conn {
		_ = c.conn.Disconnect()
	}
	c.conn = conn
}

// Start hands path to the connection. On error the controller is back to Idle.
func (c *Controller) Start(token uuid.UUID, path string, onComplete func(error)) error {
	if !c.Current(token) || c.state != StateConnecting {
		return ErrStaleAttempt
	}
	if c.conn == nil {
		c.reset()
		return ErrNotConnected
	}
	if err := c.conn.Play(path, onComplete); err != nil {
		c.reset()
		return errors.Wrap(err, "start playback")
	}
	c.state = StatePlaying
	return nil
}

func (c *Controller) Pause() error {
	if c.state != StatePlaying {
		return ErrNothingPlaying
	}
	if err := c.conn.Pause(); err != nil {
		return errors.Mark(errors.Wrap(err, "pause"), ErrTransport)
	}
	c.state = StatePaused
	return nil
}

func (c *Controller) Resume() error {
	if c.state != StatePaused {
		return ErrNothingPaused
	}
	if err := c.conn.Resume(); err != nil {
		return errors.Mark(errors.Wrap(err, "resume"), ErrTransport)
	}
	c.state = StatePlaying
	return nil
}

// Interrupt stops the current play; its completion callback reports the end.
// Interrupting twice before that completion is a no-op.
func (c *Controller) Interrupt() error {
	if c.state != StatePlaying && c.state != StatePaused {
		return ErrNothingPlaying
	}
	if c.interrupting {
		return nil
	}
	if err := c.conn.Stop(); err != nil {
		return errors.Mark(err, ErrTransport)
	}
	c.interrupting = true
	return nil
}

// Finish ends the attempt identified by token after its completion arrived.
// The connection stays open for the next item.
func (c *Controller) Finish(token uuid.UUID) bool {
	if !c.Current(token) {
		return false
	}
	c.reset()
	return true
}

// Abort abandons the in-flight attempt and returns the item it was for.
func (c *Controller) Abort() int64 {
	item := c.active
	c.reset()
	return item
}

// Stop returns to Idle from any state and disconnects synchronously.
func (c *Controller) Stop() error {
	c.reset()
	return c.Release()
}

// Release drops the connection once nothing is left to play.
func (c *Controller) Release() error {
	conn := c.conn
	c.conn = nil
	if conn == nil {
		return nil
	}
	return errors.Mark(conn.Disconnect(), ErrTransport)
}

func (c *Controller) reset() {
	c.state = StateIdle
	c.active = 0
	c.attempt = uuid.Nil
	c.interrupting = false
}
