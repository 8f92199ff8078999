package app

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/plgd-dev/cinfo/internal/mote"
)

// probeAll issues one GET per uri, at most MaxParallel at a time, and returns
// the readings in the order of uris. The first failure cancels the rest.
func (a *App) probeAll(ctx context.Context, uris []string) ([]mote.Reading, error) {
	runID := uuid.NewString()
	readings := make([]mote.Reading, len(uris))
	sem := semaphore.NewWeighted(int64(a.cfg.MaxParallel))
	g, gctx := errgroup.WithContext(ctx)
	for i := range uris {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		i := i
		g.Go(func() error {
			defer sem.Release(1)
			r, err := a.probe(gctx, a.cfg.Motes[i], uris[i])
			if err != nil {
				return err
			}
			r.RunID = runID
			readings[i] = r
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return readings, nil
}

func (a *App) probe(ctx context.Context, moteAddr, uri string) (mote.Reading, error) {
	if a.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.RequestTimeout)
		defer cancel()
	}
	start := time.Now()
	payload, err := a.client.Get(ctx, uri)
	if err != nil {
		a.log.Errorw("request failed", "mote", moteAddr, "uri", uri, "error", err)
		return mote.Reading{}, err
	}
	a.log.Debugw("response received", "mote", moteAddr, "uri", uri, "bytes", len(payload), "rtt", time.Since(start))
	return mote.Reading{
		Mote:       moteAddr,
		URI:        uri,
		Payload:    payload,
		Text:       mote.DecodePayload(payload),
		ReceivedAt: time.Now(),
	}, nil
}
