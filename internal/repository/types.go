package repository

import (
	"database/sql"
	"time"
)

type Repo struct {
	db  *sql.DB
	now func() time.Time
}

// QueueItem is one requested song waiting in, or at the head of, a room's queue.
type QueueItem struct {
	ID                int64
	RoomID            string
	RequesterID       string
	Title             string
	SourceRef         string // as the requester typed it
	ResolvedRef       string // page of the match Title came from, if known
	LocalResourcePath string // empty until resolved
	AddedAt           time.Time
}

// PlaybackRef is what to download: the match found when the item was added,
// so the audio is the song whose title was announced.
func (it QueueItem) PlaybackRef() string {
	if it.ResolvedRef != "" {
		return it.ResolvedRef
	}
	return it.SourceRef
}

// ResourceRef ties a queue item to the file it may own on disk.
type ResourceRef struct {
	ItemID int64
	Path   string
}
