// Package poller implements the client-side polling loop for asynchronous
// transcription jobs: an immediate first read, then a fixed cadence until
// the job is terminal, the context is canceled, or a read fails. A failed
// read is terminal; the caller decides whether to start a new poll.
package poller

import (
	"context"
	"time"

	"github.com/lecturanotes/kalam/internal/transcription"
)

// Update is one observed state of the polled job.
type Update struct {
	Status      transcription.JobStatus
	Text        string
	Confidence  *float64
	Language    string
	ErrorDetail string
}

// ResolveFunc performs one status read.
type ResolveFunc func(ctx context.Context) (Update, error)

type Poller struct {
	interval time.Duration
}

func New(interval time.Duration) *Poller {
	return &Poller{interval: interval}
}

// Poll drives resolve until the job is terminal. The first read happens
// immediately; later reads run strictly sequentially on the fixed
// interval, so a slow read delays the next tick instead of overlapping
// it. onUpdate, when non-nil, sees every successful read including the
// terminal one.
//
// Returns the terminal update, or the first resolve error, or ctx.Err()
// on cancellation.
func (p *Poller) Poll(ctx context.Context, resolve ResolveFunc, onUpdate func(Update)) (Update, error) {
	for {
		upd, err := resolve(ctx)
		if err != nil {
			return Update{}, err
		}
		if onUpdate != nil {
			onUpdate(upd)
		}
		if upd.Status.Terminal() {
			return upd, nil
		}

		select {
		case <-time.After(p.interval):
		case <-ctx.Done():
			return Update{}, ctx.Err()
		}
	}
}
