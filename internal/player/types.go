package player

import (
	"context"

	"github.com/rudebot/rudebot/internal/repository"
	"github.com/rudebot/rudebot/internal/resolver"
)

// State is where a room's playback controller currently is.
type State int

const (
	StateIdle State = iota
	StateConnecting
	StatePlaying
	StatePaused
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StatePlaying:
		return "playing"
	case StatePaused:
		return "paused"
	default:
		return "unknown"
	}
}

// Outcome classifies a command result for callers that branch on it.
type Outcome int

const (
	OutcomeOK       Outcome = iota
	OutcomeInvalid          // wrong state or bad argument
	OutcomeCapacity         // queue full
	OutcomeFailed           // the request could not be carried out
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInvalid:
		return "invalid"
	case OutcomeCapacity:
		return "capacity"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Reply is the user-facing answer to a command.
type Reply struct {
	Outcome Outcome
	Text    string
}

func okReply(text string) Reply      { return Reply{Outcome: OutcomeOK, Text: text} }
func invalidReply(text string) Reply { return Reply{Outcome: OutcomeInvalid, Text: text} }

type QueueStore interface {
	AddItem(ctx context.Context, roomID, requesterID, title, sourceRef, resolvedRef string) (repository.QueueItem, error)
	RemoveItem(ctx context.Context, id int64) (bool, error)
	ListItems(ctx context.Context, roomID string) ([]repository.QueueItem, error)
	CountItems(ctx context.Context, roomID string) (int, error)
	SetResourcePath(ctx context.Context, id int64, path string) error
	PurgeRoom(ctx context.Context, roomID string) (int64, error)
}

type Resolver interface {
	Lookup(ctx context.Context, sourceRef string) (resolver.Metadata, error)
	Resolve(ctx context.Context, itemID int64, sourceRef string) (string, error)
}

type Transport interface {
	Connect(ctx context.Context, roomID, channelID string) (Connection, error)
}

// Connection is a joined voice channel. Play's onComplete must fire exactly
// once per successful Play, including after Stop or Disconnect.
type Connection interface {
	ChannelID() string
	Play(path string, onComplete func(error)) error
	Pause() error
	Resume() error
	Stop() error
	Disconnect() error
}

// VoiceLocator finds the voice channel a user currently sits in.
type VoiceLocator interface {
	VoiceChannel(roomID, userID string) (channelID string, ok bool)
}

// Notifier delivers unsolicited messages such as "Now playing".
type Notifier interface {
	Notify(roomID, text string)
}

type noLocator struct{}

func (noLocator) VoiceChannel(string, string) (string, bool) { return "", false }

type noNotifier struct{}

func (noNotifier) Notify(string, string) {}
