package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/rudebot/rudebot/internal/player"
	"github.com/rudebot/rudebot/internal/ui"
	"github.com/rudebot/rudebot/internal/utils"
)

const helpText = `**DJ Music Commands:**

` + "`!dj`" + ` - Show the current queue
` + "`!dj <song>`" + ` - Add a song to the queue and play it
` + "`!dj add <song>`" + ` - Explicitly add a song (use if song name conflicts with commands)
` + "`!dj queue`" + ` - Show the current queue
` + "`!dj np`" + ` - Show the song that is playing
` + "`!dj skip`" + ` or ` + "`!dj next`" + ` - Skip to the next song (if available)
` + "`!dj pause`" + ` - Pause the current song
` + "`!dj resume`" + ` - Resume a paused song
` + "`!dj remove <number>`" + ` - Remove a song from the queue by position
` + "`!dj stop`" + ` - Stop music and clear the entire queue
` + "`!dj help`" + ` - Show this help message

**Notes:**
- Queue limit: %d songs maximum
- You must be in a voice channel to play songs`

const errorText = "Something went wrong, try again."

// Player is the part of the scheduler the chat commands drive.
type Player interface {
	Add(ctx context.Context, roomID, requesterID, sourceRef string) (player.Reply, error)
	Remove(ctx context.Context, roomID string, index int) (player.Reply, error)
	Skip(ctx context.Context, roomID string) (player.Reply, error)
	Pause(ctx context.Context, roomID string) (player.Reply, error)
	Resume(ctx context.Context, roomID string) (player.Reply, error)
	Stop(ctx context.Context, roomID string) (player.Reply, error)
	Snapshot(ctx context.Context, roomID string) (player.QueueView, error)
}

type messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	ChannelMessageSendEmbed(channelID string, embed *discordgo.MessageEmbed, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

type command struct {
	name string
	arg  string
}

// parseDJ splits "<prefix>dj [sub] [arg]". Anything that is not a known
// subcommand is a search query to add.
func parseDJ(content, prefix string) (command, bool) {
	content = strings.TrimSpace(content)
	trigger := prefix + "dj"
	if !strings.HasPrefix(strings.ToLower(content), strings.ToLower(trigger)) {
		return command{}, false
	}
	rest := content[len(trigger):]
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' && rest[0] != '\n' {
		return command{}, false
	}
	rest = strings.TrimSpace(rest)
	if rest == "" {
		return command{name: "queue"}, true
	}

	sub, arg := rest, ""
	if i := strings.IndexAny(rest, " \t\n"); i >= 0 {
		sub, arg = rest[:i], strings.TrimSpace(rest[i+1:])
	}
	switch strings.ToLower(sub) {
	case "add":
		return command{name: "add", arg: arg}, true
	case "queue", "q":
		return command{name: "queue"}, true
	case "np", "now-playing":
		return command{name: "np"}, true
	case "skip", "next":
		return command{name: "skip"}, true
	case "pause":
		return command{name: "pause"}, true
	case "resume":
		return command{name: "resume"}, true
	case "remove":
		return command{name: "remove", arg: arg}, true
	case "stop":
		return command{name: "stop"}, true
	case "help":
		return command{name: "help"}, true
	}
	return command{name: "add", arg: rest}, true
}

type CommandHandler struct {
	prefix   string
	capacity int
	player   Player
	rooms    *announcer
}

func NewCommandHandler(prefix string, capacity int, p Player, rooms *announcer) *CommandHandler {
	return &CommandHandler{prefix: prefix, capacity: capacity, player: p, rooms: rooms}
}

// HandleMessage is the discordgo MessageCreate handler.
func (h *CommandHandler) HandleMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.Bot || m.GuildID == "" {
		return
	}
	cmd, ok := parseDJ(m.Content, h.prefix)
	if !ok {
		return
	}
	h.rooms.remember(m.GuildID, m.ChannelID)
	h.execute(context.Background(), s, m.GuildID, m.ChannelID, m.Author.ID, cmd)
}

func (h *CommandHandler) execute(ctx context.Context, out messenger, guildID, channelID, userID string, cmd command) {
	log := zlog.With().Str("guildID", guildID).Str("userID", userID).Str("cmd", cmd.name).Logger()
	log.Debug().Str("arg", cmd.arg).Msg("dj command")

	var (
		reply player.Reply
		err   error
	)
	switch cmd.name {
	case "help":
		h.send(out, channelID, strings.ReplaceAll(fmt.Sprintf(helpText, h.capacity), "`!", "`"+h.prefix))
		return
	case "queue", "np":
		h.showQueue(ctx, out, guildID, channelID, cmd.name == "np")
		return
	case "add":
		reply, err = h.player.Add(ctx, guildID, userID, cmd.arg)
	case "remove":
		reply, err = h.player.Remove(ctx, guildID, utils.Atoi(cmd.arg))
	case "skip":
		reply, err = h.player.Skip(ctx, guildID)
	case "pause":
		reply, err = h.player.Pause(ctx, guildID)
	case "resume":
		reply, err = h.player.Resume(ctx, guildID)
	case "stop":
		reply, err = h.player.Stop(ctx, guildID)
	default:
		return
	}
	if err != nil {
		log.Error().Err(err).Bool("storage", errors.Is(err, player.ErrStorage)).Msg("command failed")
		h.send(out, channelID, errorText)
		return
	}
	log.Debug().Stringer("outcome", reply.Outcome).Msg("command done")
	h.send(out, channelID, reply.Text)
}

func (h *CommandHandler) showQueue(ctx context.Context, out messenger, guildID, channelID string, playingOnly bool) {
	view, err := h.player.Snapshot(ctx, guildID)
	if err != nil {
		zlog.Error().Err(err).Str("guildID", guildID).Msg("queue snapshot failed")
		h.send(out, channelID, errorText)
		return
	}
	if playingOnly {
		h.sendEmbed(out, channelID, ui.BuildPlayingEmbed(view))
		return
	}
	embed, err := ui.BuildQueueEmbed(view)
	if err != nil {
		h.send(out, channelID, view.Text())
		return
	}
	h.sendEmbed(out, channelID, embed)
}

func (h *CommandHandler) send(out messenger, channelID, content string) {
	if content == "" {
		return
	}
	if _, err := out.ChannelMessageSend(channelID, content); err != nil {
		zlog.Warn().Err(err).Str("channelID", channelID).Msg("send message failed")
	}
}

func (h *CommandHandler) sendEmbed(out messenger, channelID string, embed *discordgo.MessageEmbed) {
	if _, err := out.ChannelMessageSendEmbed(channelID, embed); err != nil {
		zlog.Warn().Err(err).Str("channelID", channelID).Msg("send embed failed")
	}
}
