package ui

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/rudebot/rudebot/internal/player"
	"github.com/rudebot/rudebot/internal/repository"
	"github.com/rudebot/rudebot/internal/utils"
)

const (
	colorPlaying = 0x006400
	colorPaused  = 0x8B0000
	colorIdle    = 0x992222
)

func songLink(it repository.QueueItem) string {
	title := utils.EscapeMd(it.Title)
	if strings.HasPrefix(it.SourceRef, "http://") || strings.HasPrefix(it.SourceRef, "https://") {
		return fmt.Sprintf("[%s](%s)", title, it.SourceRef)
	}
	return title
}

func requestedBy(it repository.QueueItem) string {
	if it.RequesterID == "" {
		return ""
	}
	return fmt.Sprintf("\nRequested by: <@%s>", it.RequesterID)
}

// BuildPlayingEmbed shows the current item of view, or a "Nothing Playing" card.
func BuildPlayingEmbed(view player.QueueView) *discordgo.MessageEmbed {
	cur := view.NowPlaying
	if cur == nil {
		return &discordgo.MessageEmbed{
			Title:       "Nothing Playing",
			Description: "Nothing is playing.",
			Color:       colorIdle,
		}
	}

	title, color, button := "Now Playing", colorPlaying, "▶️"
	if view.State == player.StatePaused {
		title, color, button = "Paused", colorPaused, "⏸️"
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: fmt.Sprintf("%s **%s**%s", button, songLink(*cur), requestedBy(*cur)),
		Color:       color,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d up next", len(view.UpNext)),
		},
	}
}

// BuildQueueEmbed renders the queue listing. Up Next numbering starts at 1.
func BuildQueueEmbed(view player.QueueView) (*discordgo.MessageEmbed, error) {
	if view.Empty() {
		return nil, fmt.Errorf("queue is empty")
	}

	var desc strings.Builder
	color := colorIdle
	title := "Queue"
	if cur := view.NowPlaying; cur != nil {
		title = "Now Playing"
		color = colorPlaying
		if view.State == player.StatePaused {
			title = "Paused"
			color = colorPaused
		}
		fmt.Fprintf(&desc, "**%s**%s\n\n", songLink(*cur), requestedBy(*cur))
	}
	if len(view.UpNext) > 0 {
		desc.WriteString("**Up next:**\n")
		for i, it := range view.UpNext {
			fmt.Fprintf(&desc, "`%d.` %s\n", i+1, songLink(it))
		}
	}

	total := len(view.UpNext)
	if view.NowPlaying != nil {
		total++
	}
	return &discordgo.MessageEmbed{
		Title:       title,
		Description: desc.String(),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "In queue", Value: queueInfo(total), Inline: true},
		},
	}, nil
}

func queueInfo(n int) string {
	if n == 1 {
		return "1 song"
	}
	return fmt.Sprintf("%d songs", n)
}
