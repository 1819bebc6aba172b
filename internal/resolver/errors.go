package resolver

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Resolution failure classes. Every error returned by Lookup or Resolve is marked with exactly one.
var (
	ErrNotFound          = errors.New("source not found")
	ErrNetworkFailure    = errors.New("network failure")
	ErrUnsupportedSource = errors.New("unsupported source")
)

// KindOf labels a resolution error for logs and metrics.
func KindOf(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnsupportedSource):
		return "unsupported"
	default:
		return "network"
	}
}

var notFoundHints = []string{
	"video unavailable",
	"is not available",
	"private video",
	"has been removed",
	"does not exist",
	"http error 404",
	"non existing id",
	"invalid id",
	"no video formats",
	"no results",
	"requested format is not available",
}

// classify maps a fetcher failure onto the resolution error classes.
func classify(ctx context.Context, ref string, err error) error {
	wrapped := errors.Wrapf(err, "resolve %q", ref)
	if ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errors.Mark(wrapped, ErrNetworkFailure)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unsupported url") {
		return errors.Mark(wrapped, ErrUnsupportedSource)
	}
	for _, hint := range notFoundHints {
		if strings.Contains(msg, hint) {
			return errors.Mark(wrapped, ErrNotFound)
		}
	}
	return errors.Mark(wrapped, ErrNetworkFailure)
}
