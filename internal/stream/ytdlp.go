package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	ytdlp "github.com/lrstanley/go-ytdlp"
	zlog "github.com/rs/zerolog/log"
)

// YTDLPInfo is the part of yt-dlp's metadata the bot keeps.
type YTDLPInfo struct {
	Id         string
	Title      string
	Uploader   string
	Duration   float64
	IsLive     bool
	WebpageUrl string
}

// RunError carries yt-dlp's stderr so callers can classify the failure.
type RunError struct {
	Stderr string
	Err    error
}

func (e *RunError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" {
		return e.Err.Error()
	}
	if i := strings.LastIndex(msg, "\n"); i >= 0 {
		msg = msg[i+1:]
	}
	return e.Err.Error() + ": " + msg
}

func (e *RunError) Unwrap() error { return e.Err }

var installOnce sync.Once

// YtdlpFetcher drives the yt-dlp binary, installing it on first use.
type YtdlpFetcher struct {
	CookiesPath string
}

func (y *YtdlpFetcher) install(ctx context.Context) {
	installOnce.Do(func() {
		if _, err := ytdlp.Install(ctx, nil); err != nil {
			zlog.Warn().Err(err).Msg("yt-dlp install failed; relying on PATH")
		}
	})
}

func (y *YtdlpFetcher) command() *ytdlp.Command {
	cmd := ytdlp.New().
		NoWarnings().
		IgnoreConfig().
		NoCheckCertificates()
	if y.CookiesPath != "" {
		cmd = cmd.Cookies(y.CookiesPath)
	}
	return cmd
}

// Info returns metadata for a URL or the first match of a "ytsearch1:" query.
func (y *YtdlpFetcher) Info(ctx context.Context, ref string) (*YTDLPInfo, error) {
	y.install(ctx)

	res, err := y.command().
		Format("bestaudio/best").
		NoPlaylist().
		DumpJSON().
		Run(ctx, ref)
	if err != nil {
		return nil, wrapRun(err, res)
	}

	infos, err := res.GetExtractedInfo()
	if err != nil {
		return nil, errors.Wrap(err, "parse yt-dlp json")
	}
	for _, ext := range infos {
		if ext == nil {
			continue
		}
		// Search results arrive as a container whose first entry is the match.
		if len(ext.Entries) > 0 {
			for _, e := range ext.Entries {
				if e != nil {
					return infoFrom(e), nil
				}
			}
			continue
		}
		return infoFrom(ext), nil
	}
	return nil, nil
}

// Download writes the best audio-only rendition of ref to dst.
func (y *YtdlpFetcher) Download(ctx context.Context, ref, dst string) error {
	y.install(ctx)

	res, err := y.command().
		Format("ba[acodec^=opus]/ba[ext=m4a]/bestaudio/best").
		NoPlaylist().
		NoPart().
		NoProgress().
		Output(dst).
		Run(ctx, ref)
	if err != nil {
		return wrapRun(err, res)
	}
	return nil
}

func wrapRun(err error, res *ytdlp.Result) error {
	re := &RunError{Err: err}
	if res != nil {
		re.Stderr = res.Stderr
	}
	return re
}

func infoFrom(ext *ytdlp.ExtractedInfo) *YTDLPInfo {
	return &YTDLPInfo{
		Id:         ext.ID,
		Title:      str(ext.Title),
		Uploader:   str(ext.Uploader),
		Duration:   num(ext.Duration),
		IsLive:     flag(ext.IsLive),
		WebpageUrl: str(ext.WebpageURL),
	}
}

func str(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}

func num(ptr *float64) float64 {
	if ptr == nil {
		return 0
	}
	return *ptr
}

func flag(ptr *bool) bool {
	if ptr == nil {
		return false
	}
	return *ptr
}
