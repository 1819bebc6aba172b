package handlers

import (
	"context"
	"sync"

	"github.com/bwmarrin/discordgo"
	zlog "github.com/rs/zerolog/log"

	"github.com/rudebot/rudebot/internal/player"
	"github.com/rudebot/rudebot/internal/stream"
)

// voiceLocator finds a member's voice channel from the gateway state cache,
// asking the REST api only for guilds the cache does not know.
type voiceLocator struct {
	s *discordgo.Session
}

func (l voiceLocator) VoiceChannel(guildID, userID string) (string, bool) {
	if vs, err := l.s.State.VoiceState(guildID, userID); err == nil {
		return vs.ChannelID, vs.ChannelID != ""
	}
	if g, _ := l.s.State.Guild(guildID); g != nil {
		return "", false
	}
	g, err := l.s.Guild(guildID)
	if err != nil || g == nil {
		return "", false
	}
	for _, vs := range g.VoiceStates {
		if vs.UserID == userID && vs.ChannelID != "" {
			return vs.ChannelID, true
		}
	}
	return "", false
}

// voiceTransport adapts stream.VoiceTransport to the scheduler.
type voiceTransport struct {
	vt *stream.VoiceTransport
}

func (t voiceTransport) Connect(ctx context.Context, guildID, channelID string) (player.Connection, error) {
	conn, err := t.vt.Connect(ctx, guildID, channelID)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type notice struct {
	channelID string
	text      string
}

// announcer delivers scheduler notices to the text channel a room last
// used. Sends happen on one goroutine so room workers never wait on discord.
type announcer struct {
	out messenger

	mu       sync.Mutex
	channels map[string]string

	notices chan notice
}

const noticeBacklog = 64

func newAnnouncer(out messenger) *announcer {
	return &announcer{
		out:      out,
		channels: make(map[string]string),
		notices:  make(chan notice, noticeBacklog),
	}
}

func (a *announcer) remember(roomID, channelID string) {
	a.mu.Lock()
	a.channels[roomID] = channelID
	a.mu.Unlock()
}

func (a *announcer) channelFor(roomID string) (string, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	ch, ok := a.channels[roomID]
	return ch, ok
}

func (a *announcer) Notify(roomID, text string) {
	ch, ok := a.channelFor(roomID)
	if !ok {
		zlog.Debug().Str("guildID", roomID).Str("text", text).Msg("no channel for notice")
		return
	}
	select {
	case a.notices <- notice{channelID: ch, text: text}:
	default:
		zlog.Warn().Str("guildID", roomID).Str("text", text).Msg("notice backlog full, dropping")
	}
}

// run sends queued notices until ctx is done.
func (a *announcer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case n := <-a.notices:
			if _, err := a.out.ChannelMessageSend(n.channelID, n.text); err != nil {
				zlog.Warn().Err(err).Str("channelID", n.channelID).Msg("send notice failed")
			}
		}
	}
}
