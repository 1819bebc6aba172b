package player

import (
	"strconv"
	"strings"

	"github.com/rudebot/rudebot/internal/repository"
)

// QueueView is a read-only picture of a room's queue.
type QueueView struct {
	State      State
	NowPlaying *repository.QueueItem
	UpNext     []repository.QueueItem
}

func buildView(items []repository.QueueItem, st State, active int64) QueueView {
	v := QueueView{State: st}
	for i := range items {
		if st != StateIdle && items[i].ID == active && v.NowPlaying == nil {
			it := items[i]
			v.NowPlaying = &it
			continue
		}
		v.UpNext = append(v.UpNext, items[i])
	}
	return v
}

func (v QueueView) Empty() bool {
	return v.NowPlaying == nil && len(v.UpNext) == 0
}

// Text renders the view the way the chat replies show it.
func (v QueueView) Text() string {
	if v.Empty() {
		return "Queue is empty."
	}
	var lines []string
	if v.NowPlaying != nil {
		line := "Now Playing: " + v.NowPlaying.Title
		if v.State == StatePaused {
			line += " (paused)"
		}
		lines = append(lines, line)
	}
	if len(v.UpNext) > 0 {
		lines = append(lines, "Up Next:")
		for i, it := range v.UpNext {
			lines = append(lines, strconv.Itoa(i+1)+". "+it.Title)
		}
	}
	return strings.Join(lines, "\n")
}
