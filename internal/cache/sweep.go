package cache

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/rudebot/rudebot/internal/metrics"
	"github.com/rudebot/rudebot/internal/repository"
)

// RefSource lists the files queue rows may still own.
type RefSource interface {
	ResourceRefs(ctx context.Context) ([]repository.ResourceRef, error)
}

type Sweeper struct {
	dir      *ResourceDir
	refs     RefSource
	grace    time.Duration
	staleTmp time.Duration
	metrics  *metrics.Metrics
	now      func() time.Time
	log      zerolog.Logger
}

type SweepResult struct {
	Removed []string
	Kept    int
}

func NewSweeper(dir *ResourceDir, refs RefSource, grace, staleTmp time.Duration, m *metrics.Metrics) *Sweeper {
	return &Sweeper{
		dir:      dir,
		refs:     refs,
		grace:    grace,
		staleTmp: staleTmp,
		metrics:  m,
		now:      time.Now,
		log:      zlog.With().Str("component", "sweeper").Logger(),
	}
}

// Sweep deletes audio files in the resource dir that no queue row references.
// Only id-addressed files are candidates; anything else in the directory is
// left alone. Rows are read before the directory, and files touched after the
// snapshot (minus grace) belong to downloads still in flight.
func (s *Sweeper) Sweep(ctx context.Context) (SweepResult, error) {
	var res SweepResult

	snapshotAt := s.now()
	refs, err := s.refs.ResourceRefs(ctx)
	if err != nil {
		return res, errors.Wrap(err, "snapshot rows")
	}
	ownedIDs := make(map[int64]struct{}, len(refs))
	ownedPaths := make(map[string]struct{}, len(refs))
	for _, ref := range refs {
		ownedIDs[ref.ItemID] = struct{}{}
		if ref.Path != "" {
			ownedPaths[filepath.Clean(ref.Path)] = struct{}{}
		}
	}

	entries, err := os.ReadDir(s.dir.root)
	if err != nil {
		return res, errors.Wrap(err, "list resource dir")
	}
	cutoff := snapshotAt.Add(-s.grace)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := s.dir.ItemIDFor(e.Name())
		if !ok {
			continue
		}
		p := filepath.Join(s.dir.root, e.Name())
		_, rowLive := ownedIDs[id]
		_, pathLive := ownedPaths[p]
		if rowLive || pathLive {
			res.Kept++
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if !info.ModTime().Before(cutoff) {
			res.Kept++
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.log.Warn().Err(err).Str("path", p).Msg("remove orphan")
			continue
		}
		res.Removed = append(res.Removed, p)
	}

	res.Removed = append(res.Removed, s.sweepTemp(snapshotAt)...)
	s.metrics.FilesSwept(len(res.Removed))
	if len(res.Removed) > 0 {
		s.log.Info().Int("removed", len(res.Removed)).Int("kept", res.Kept).Msg("sweep finished")
	}
	return res, nil
}

// sweepTemp reclaims partial downloads abandoned by a crash.
func (s *Sweeper) sweepTemp(now time.Time) []string {
	entries, err := os.ReadDir(s.dir.tmp)
	if err != nil {
		return nil
	}
	var removed []string
	for _, e := range entries {
		info, err := e.Info()
		if err != nil || e.IsDir() {
			continue
		}
		if now.Sub(info.ModTime()) < s.staleTmp {
			continue
		}
		p := filepath.Join(s.dir.tmp, e.Name())
		if err := os.Remove(p); err == nil {
			removed = append(removed, p)
		}
	}
	return removed
}

// Run sweeps once immediately and then every interval until ctx is done.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if _, err := s.Sweep(ctx); err != nil {
		s.log.Error().Err(err).Msg("sweep failed")
	}
	if interval <= 0 {
		return
	}
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			if _, err := s.Sweep(ctx); err != nil {
				s.log.Error().Err(err).Msg("sweep failed")
			}
		}
	}
}
