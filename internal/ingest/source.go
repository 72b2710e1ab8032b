// internal/ingest/source.go
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/OmkarPadhy/AQI-Dashboard/internal/data"
)

// ErrIngestionUnavailable is wrapped by every error returned once a backend has been
// given up on.
var ErrIngestionUnavailable = errors.New("ingestion backend unavailable")

// Unsubscribe releases a subscription. Calling it more than once is safe.
type Unsubscribe func()

// Source pushes new readings to a callback as they arrive.
type Source interface {
	Name() string
	Subscribe(ctx context.Context, onInsert func(data.Reading)) (Unsubscribe, error)
}

// WindowFetcher loads readings in the closed interval [from, to], oldest first.
type WindowFetcher interface {
	FetchWindow(ctx context.Context, from, to time.Time) ([]data.Reading, error)
}

// Unavailable stands in for a backend that could not be reached at startup.
// Subscribe always fails, so the caller takes its fallback path.
type Unavailable struct {
	name string
	err  error
}

func NewUnavailable(name string, err error) *Unavailable {
	return &Unavailable{name: name, err: err}
}

func (u *Unavailable) Name() string { return u.name }

func (u *Unavailable) Subscribe(context.Context, func(data.Reading)) (Unsubscribe, error) {
	return nil, fmt.Errorf("%w: %s: %w", ErrIngestionUnavailable, u.name, u.err)
}
