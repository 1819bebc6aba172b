package config

import "time"

type Config struct {
	DiscordToken        string `validate:"required"`
	CommandPrefix       string `default:"!" validate:"required"`
	SpotifyClientID     string
	SpotifyClientSecret string `validate:"required_with=SpotifyClientID"`
	YouTubeCookiesPath  string
	DataDir             string `default:"./data" validate:"required"`
	ResourceDir         string // defaults to DataDir/audio
	QueueCapacity       int    `default:"10" validate:"gte=1,lte=100"`

	ResolveTimeout time.Duration `default:"30s" validate:"gt=0"`
	ConnectTimeout time.Duration `default:"30s" validate:"gt=0"`
	ResolveRate    float64       `default:"2" validate:"gt=0"`
	ResolveBurst   int           `default:"4" validate:"gte=1"`

	SweepInterval  time.Duration `default:"10m" validate:"gte=0"`
	SweepGrace     time.Duration `default:"1m" validate:"gte=0"`
	StaleTempAfter time.Duration `default:"1h" validate:"gt=0"`

	MetricsAddr string
}

// SpotifyEnabled reports whether spotify links can be turned into searches.
func (c *Config) SpotifyEnabled() bool {
	return c.SpotifyClientID != "" && c.SpotifyClientSecret != ""
}
