// Package resolver turns user-submitted source references into titles and
// local audio files.
package resolver

import (
	"context"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/rudebot/rudebot/internal/cache"
	"github.com/rudebot/rudebot/internal/config"
	"github.com/rudebot/rudebot/internal/metrics"
	"github.com/rudebot/rudebot/internal/spotify"
	"github.com/rudebot/rudebot/internal/stream"
)

const searchPrefix = "ytsearch1:"

// Fetcher talks to the media site. stream.YtdlpFetcher is the production implementation.
type Fetcher interface {
	Info(ctx context.Context, ref string) (*stream.YTDLPInfo, error)
	Download(ctx context.Context, ref, dst string) error
}

// TrackSource looks up spotify tracks.
type TrackSource interface {
	GetTrack(ctx context.Context, id spotify.ID) (spotify.Track, error)
}

type Metadata struct {
	Title string
	URL   string // canonical page, when known
}

type Resolver struct {
	fetch   Fetcher
	tracks  TrackSource // nil when spotify is not configured
	dir     *cache.ResourceDir
	limiter *rate.Limiter
	metrics *metrics.Metrics
	log     zerolog.Logger
}

func New(cfg *config.Config, dir *cache.ResourceDir, fetch Fetcher, tracks TrackSource, m *metrics.Metrics) *Resolver {
	return &Resolver{
		fetch:   fetch,
		tracks:  tracks,
		dir:     dir,
		limiter: rate.NewLimiter(rate.Limit(cfg.ResolveRate), cfg.ResolveBurst),
		metrics: m,
		log:     zlog.With().Str("component", "resolver").Logger(),
	}
}

// Lookup finds the first match for sourceRef and returns its title.
func (r *Resolver) Lookup(ctx context.Context, sourceRef string) (Metadata, error) {
	ref, err := r.normalize(ctx, sourceRef)
	if err != nil {
		return Metadata{}, err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return Metadata{}, errors.Mark(errors.Wrap(err, "rate limit"), ErrNetworkFailure)
	}

	info, err := r.fetch.Info(ctx, ref)
	if err != nil {
		return Metadata{}, classify(ctx, sourceRef, err)
	}
	if info == nil || (info.Id == "" && info.WebpageUrl == "") {
		return Metadata{}, errors.Mark(errors.Newf("no match for %q", sourceRef), ErrNotFound)
	}
	if info.IsLive {
		return Metadata{}, errors.Mark(errors.Newf("%q is a live stream", sourceRef), ErrUnsupportedSource)
	}

	title := strings.TrimSpace(info.Title)
	if title == "" {
		title = "Unknown"
	}
	return Metadata{Title: title, URL: info.WebpageUrl}, nil
}

// Resolve makes sure a local audio file exists for the item and returns its path.
// Retrying after a failure is safe: temp files never become visible under the final name.
func (r *Resolver) Resolve(ctx context.Context, itemID int64, sourceRef string) (string, error) {
	final := r.dir.PathFor(itemID)
	if r.dir.Exists(final) {
		return final, nil
	}

	ref, err := r.normalize(ctx, sourceRef)
	if err != nil {
		return "", err
	}
	if err := r.limiter.Wait(ctx); err != nil {
		return "", errors.Mark(errors.Wrap(err, "rate limit"), ErrNetworkFailure)
	}

	start := time.Now()
	tmp := r.dir.TempPath(itemID)
	if err := r.fetch.Download(ctx, ref, tmp); err != nil {
		_ = os.Remove(tmp)
		return "", classify(ctx, sourceRef, err)
	}
	if err := r.dir.Commit(tmp, final); err != nil {
		return "", errors.Mark(errors.Wrapf(err, "resolve %q", sourceRef), ErrNotFound)
	}
	r.metrics.ObserveResolve(time.Since(start))
	r.log.Debug().Int64("item", itemID).Dur("took", time.Since(start)).Msg("resolved")
	return final, nil
}

// normalize converts a user reference into something yt-dlp accepts.
func (r *Resolver) normalize(ctx context.Context, sourceRef string) (string, error) {
	ref := strings.TrimSpace(sourceRef)
	if ref == "" {
		return "", errors.Mark(errors.New("empty source reference"), ErrNotFound)
	}

	if spotify.IsReference(ref) {
		return r.spotifySearch(ctx, ref)
	}

	if u, err := url.Parse(ref); err == nil && u.Scheme != "" && u.Host != "" {
		switch strings.ToLower(u.Scheme) {
		case "http", "https":
			return ref, nil
		default:
			return "", errors.Mark(errors.Newf("scheme %q", u.Scheme), ErrUnsupportedSource)
		}
	}
	return searchPrefix + ref, nil
}

func (r *Resolver) spotifySearch(ctx context.Context, ref string) (string, error) {
	if r.tracks == nil {
		return "", errors.Mark(errors.Newf("spotify is not configured for %q", ref), ErrUnsupportedSource)
	}
	typ, id, err := spotify.ParseID(ref)
	if err != nil {
		return "", errors.Mark(err, ErrUnsupportedSource)
	}
	if typ != "track" {
		return "", errors.Mark(errors.Newf("spotify %s links are not playable", typ), ErrUnsupportedSource)
	}
	t, err := r.tracks.GetTrack(ctx, id)
	if err != nil {
		return "", classify(ctx, ref, err)
	}
	return searchPrefix + t.SearchQuery(), nil
}
