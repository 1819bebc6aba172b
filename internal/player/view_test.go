package player

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/rudebot/rudebot/internal/repository"
)

func TestQueueView_Text(t *testing.T) {
	items := []repository.QueueItem{
		{ID: 1, Title: "x"},
		{ID: 2, Title: "y"},
		{ID: 3, Title: "z"},
	}

	tests := []struct {
		name   string
		items  []repository.QueueItem
		state  State
		active int64
		want   string
	}{
		{name: "empty", state: StateIdle, want: "Queue is empty."},
		{name: "playing", items: items[:2], state: StatePlaying, active: 1, want: "Now Playing: x\nUp Next:\n1. y"},
		{name: "paused", items: items[:1], state: StatePaused, active: 1, want: "Now Playing: x (paused)"},
		{name: "idle lists everything", items: items, state: StateIdle, active: 0, want: "Up Next:\n1. x\n2. y\n3. z"},
		{name: "active item gone", items: items[1:], state: StatePlaying, active: 1, want: "Up Next:\n1. y\n2. z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := buildView(tt.items, tt.state, tt.active)
			assert.Equal(t, tt.want, v.Text())
		})
	}
}
