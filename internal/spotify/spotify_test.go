package spotify

import (
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseID(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		typ     string
		id      string
		wantErr error
	}{
		{name: "track link", raw: "https://open.spotify.com/track/4uLU6hMCjMI75M1A2tKUQC", typ: "track", id: "4uLU6hMCjMI75M1A2tKUQC"},
		{name: "track link with query", raw: "https://open.spotify.com/track/abc?si=123", typ: "track", id: "abc"},
		{name: "localised link", raw: "https://open.spotify.com/intl-de/track/abc", typ: "track", id: "abc"},
		{name: "uri", raw: "spotify:album:xyz", typ: "album", id: "xyz"},
		{name: "playlist", raw: "https://open.spotify.com/playlist/pl1", typ: "playlist", id: "pl1"},
		{name: "bad uri", raw: "spotify:track", wantErr: ErrMalformed},
		{name: "unknown type", raw: "https://open.spotify.com/show/abc", wantErr: ErrMalformed},
		{name: "other host", raw: "https://youtube.com/watch?v=1", wantErr: ErrNotSpotify},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			typ, id, err := ParseID(tt.raw)
			if tt.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tt.wantErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.typ, typ)
			assert.Equal(t, tt.id, string(id))
		})
	}
}

func TestIsReference(t *testing.T) {
	assert.True(t, IsReference("spotify:track:1"))
	assert.True(t, IsReference("https://open.spotify.com/track/1"))
	assert.False(t, IsReference("https://www.youtube.com/watch?v=1"))
	assert.False(t, IsReference("never gonna give you up"))
}

func TestTrack_SearchQuery(t *testing.T) {
	assert.Equal(t, "Artist - Song", Track{Name: "Song", Artist: "Artist"}.SearchQuery())
	assert.Equal(t, "Song", Track{Name: "Song"}.SearchQuery())
}
