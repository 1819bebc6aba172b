package spotify

import (
	"context"
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/zmb3/spotify/v2"
	spotifyauth "github.com/zmb3/spotify/v2/auth"
	"golang.org/x/oauth2/clientcredentials"
)

var (
	// ErrNotSpotify means the reference is not a spotify link at all.
	ErrNotSpotify = errors.New("not a spotify reference")
	ErrMalformed  = errors.New("malformed spotify reference")
)

// ID is a spotify object id.
type ID = spotify.ID

type Track struct {
	Name   string
	Artist string
}

// SearchQuery is the free-text search used to find a playable copy of the track.
func (t Track) SearchQuery() string {
	if t.Artist == "" {
		return t.Name
	}
	return t.Artist + " - " + t.Name
}

type Client struct {
	raw *spotify.Client
}

func NewClientCredentials(clientID, clientSecret string) *Client {
	cfg := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     spotifyauth.TokenURL,
	}
	httpClient := cfg.Client(context.Background())
	return &Client{raw: spotify.New(httpClient, spotify.WithRetry(true))}
}

// IsReference reports whether raw looks like a spotify URI or open.spotify.com link.
func IsReference(raw string) bool {
	if strings.HasPrefix(raw, "spotify:") {
		return true
	}
	u, err := url.Parse(raw)
	return err == nil && isSpotifyHost(u.Host)
}

func isSpotifyHost(host string) bool {
	return host == "open.spotify.com" || host == "www.open.spotify.com"
}

// ParseID splits a spotify URI or link into its type ("track", "album", ...) and id.
func ParseID(raw string) (typ string, id ID, err error) {
	if strings.HasPrefix(raw, "spotify:") {
		parts := strings.Split(raw, ":")
		if len(parts) == 3 && parts[2] != "" {
			return parts[1], spotify.ID(parts[2]), nil
		}
		return "", "", errors.Wrapf(ErrMalformed, "uri %q", raw)
	}
	u, err := url.Parse(raw)
	if err != nil || !isSpotifyHost(u.Host) {
		return "", "", ErrNotSpotify
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Localised links look like /intl-de/track/<id>.
	if len(parts) > 0 && strings.HasPrefix(parts[0], "intl-") {
		parts = parts[1:]
	}
	if len(parts) < 2 || parts[1] == "" {
		return "", "", errors.Wrapf(ErrMalformed, "path %q", u.Path)
	}
	switch parts[0] {
	case "album", "playlist", "track", "artist":
		return parts[0], spotify.ID(parts[1]), nil
	}
	return "", "", errors.Wrapf(ErrMalformed, "type %q", parts[0])
}

func (c *Client) GetTrack(ctx context.Context, id ID) (Track, error) {
	t, err := c.raw.GetTrack(ctx, id)
	if err != nil {
		return Track{}, errors.Wrapf(err, "spotify track %s", id)
	}
	artist := ""
	if len(t.Artists) > 0 {
		artist = t.Artists[0].Name
	}
	return Track{Name: t.Name, Artist: artist}, nil
}
