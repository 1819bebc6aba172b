package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
)

// ErrConfig marks every configuration failure.
var ErrConfig = errors.New("invalid configuration")

type lookupFunc func(key string) string

func LoadConfig() (*Config, error) {
	cfg, err := load(os.Getenv)
	if err != nil {
		return nil, err
	}
	for _, dir := range []string{cfg.DataDir, cfg.ResourceDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrapf(err, "create %s", dir)
		}
	}
	return cfg, nil
}

func load(getenv lookupFunc) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, errors.Wrap(err, "set config defaults")
	}

	e := envReader{getenv: getenv}
	e.str("DISCORD_TOKEN", &cfg.DiscordToken)
	e.str("COMMAND_PREFIX", &cfg.CommandPrefix)
	e.str("SPOTIFY_CLIENT_ID", &cfg.SpotifyClientID)
	e.str("SPOTIFY_CLIENT_SECRET", &cfg.SpotifyClientSecret)
	e.str("YOUTUBE_COOKIES_PATH", &cfg.YouTubeCookiesPath)
	e.str("DATA_DIR", &cfg.DataDir)
	e.str("RESOURCE_DIR", &cfg.ResourceDir)
	e.integer("QUEUE_CAPACITY", &cfg.QueueCapacity)
	e.duration("RESOLVE_TIMEOUT", &cfg.ResolveTimeout)
	e.duration("CONNECT_TIMEOUT", &cfg.ConnectTimeout)
	e.float("RESOLVE_RATE", &cfg.ResolveRate)
	e.integer("RESOLVE_BURST", &cfg.ResolveBurst)
	e.duration("SWEEP_INTERVAL", &cfg.SweepInterval)
	e.duration("SWEEP_GRACE", &cfg.SweepGrace)
	e.duration("STALE_TEMP_AFTER", &cfg.StaleTempAfter)
	e.str("METRICS_ADDR", &cfg.MetricsAddr)
	if e.err != nil {
		return nil, e.err
	}

	if cfg.ResourceDir == "" {
		cfg.ResourceDir = filepath.Join(cfg.DataDir, "audio")
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, errors.Mark(errors.Wrap(err, "validate config"), ErrConfig)
	}
	if err := checkResourceDir(cfg.DataDir, cfg.ResourceDir); err != nil {
		return nil, errors.Mark(err, ErrConfig)
	}
	return cfg, nil
}

// checkResourceDir rejects a RESOURCE_DIR that is DATA_DIR or one of its
// parents: the sweeper deletes unreferenced files there and the database
// lives in DATA_DIR.
func checkResourceDir(dataDir, resourceDir string) error {
	data, err := filepath.Abs(dataDir)
	if err != nil {
		return errors.Wrapf(err, "DATA_DIR %q", dataDir)
	}
	res, err := filepath.Abs(resourceDir)
	if err != nil {
		return errors.Wrapf(err, "RESOURCE_DIR %q", resourceDir)
	}
	rel, err := filepath.Rel(res, data)
	if err != nil {
		return nil
	}
	if rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))) {
		return errors.Newf("RESOURCE_DIR %q must not be DATA_DIR %q or contain it", resourceDir, dataDir)
	}
	return nil
}

// envReader keeps the first parse failure so callers check once.
type envReader struct {
	getenv lookupFunc
	err    error
}

func (e *envReader) str(key string, dst *string) {
	if v := e.getenv(key); v != "" {
		*dst = v
	}
}

func (e *envReader) integer(key string, dst *int) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		e.err = errors.Mark(errors.Wrapf(err, "parse %s", key), ErrConfig)
		return
	}
	*dst = i
}

func (e *envReader) float(key string, dst *float64) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		e.err = errors.Mark(errors.Wrapf(err, "parse %s", key), ErrConfig)
		return
	}
	*dst = f
}

func (e *envReader) duration(key string, dst *time.Duration) {
	v := e.getenv(key)
	if v == "" || e.err != nil {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		e.err = errors.Mark(errors.Wrapf(err, "parse %s", key), ErrConfig)
		return
	}
	*dst = d
}
