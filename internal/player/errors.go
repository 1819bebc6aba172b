package player

import "github.com/cockroachdb/errors"

var (
	ErrNothingPlaying   = errors.New("nothing is playing")
	ErrNothingPaused    = errors.New("nothing is paused")
	ErrCapacityExceeded = errors.New("queue is full")
	ErrInvalidIndex     = errors.New("invalid queue position")

	ErrAttemptInFlight = errors.New("playback attempt already in flight")
	ErrStaleAttempt    = errors.New("playback attempt is no longer current")
	ErrNotConnected    = errors.New("no voice connection")

	// ErrStorage marks queue store failures; the command made no change.
	ErrStorage = errors.New("queue storage failure")
	// ErrTransport marks voice connect and playback failures.
	ErrTransport = errors.New("voice transport failure")
	ErrClosed    = errors.New("scheduler closed")
)

func storageErr(err error, op string) error {
	return errors.Mark(errors.Wrap(err, op), ErrStorage)
}
