package handlers

import (
	"context"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/rudebot/rudebot/internal/cache"
	"github.com/rudebot/rudebot/internal/config"
	"github.com/rudebot/rudebot/internal/metrics"
	"github.com/rudebot/rudebot/internal/player"
	"github.com/rudebot/rudebot/internal/repository"
	"github.com/rudebot/rudebot/internal/resolver"
	"github.com/rudebot/rudebot/internal/spotify"
	"github.com/rudebot/rudebot/internal/stream"
)

const shutdownTimeout = 10 * time.Second

type Bot struct {
	cfg     *config.Config
	repo    *repository.Repo
	dir     *cache.ResourceDir
	metrics *metrics.Metrics
}

func NewBot(cfg *config.Config, repo *repository.Repo, dir *cache.ResourceDir, m *metrics.Metrics) *Bot {
	return &Bot{cfg: cfg, repo: repo, dir: dir, metrics: m}
}

func (b *Bot) trackSource() resolver.TrackSource {
	if !b.cfg.SpotifyEnabled() {
		return nil
	}
	return spotify.NewClientCredentials(b.cfg.SpotifyClientID, b.cfg.SpotifyClientSecret)
}

// Run connects to discord and serves "!dj" commands until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return errors.Wrap(err, "discord session")
	}
	dg.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent

	res := resolver.New(b.cfg, b.dir, &stream.YtdlpFetcher{CookiesPath: b.cfg.YouTubeCookiesPath}, b.trackSource(), b.metrics)
	rooms := newAnnouncer(dg)

	opts := player.OptionsFromConfig(b.cfg)
	opts.Locator = voiceLocator{s: dg}
	opts.Notifier = rooms
	opts.Metrics = b.metrics
	sched := player.NewScheduler(b.repo, res, voiceTransport{vt: stream.NewVoiceTransport(dg)}, opts)

	cmd := NewCommandHandler(b.cfg.CommandPrefix, b.cfg.QueueCapacity, sched, rooms)

	dg.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		zlog.Info().Str("user", s.State.User.Username).Int("guilds", len(r.Guilds)).Msg("connected")
	})
	dg.AddHandler(cmd.HandleMessage)

	if err := dg.Open(); err != nil {
		return errors.Wrap(err, "open discord gateway")
	}
	defer dg.Close()

	go rooms.run(ctx)

	<-ctx.Done()
	zlog.Info().Msg("shutting down scheduler")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return sched.Close(shutdownCtx)
}
