package rate

import (
	"context"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

type Source interface {
	Fetch(ctx context.Context) (decimal.Decimal, error)
}

// Refresher pulls a fresh rate and writes it to the cache.
type Refresher struct {
	source Source
	store  Writer
	log    *logrus.Entry
}

func NewRefresher(source Source, store Writer, log *logrus.Entry) *Refresher {
	return &Refresher{source: source, store: store, log: log.WithField("component", "rate")}
}

func (r *Refresher) Refresh(ctx context.Context) (decimal.Decimal, error) {
	d, err := r.source.Fetch(ctx)
	if err != nil {
		r.log.WithError(err).Warn("[rate] fetch failed, keeping cached value")
		return decimal.Zero, err
	}
	if err := r.store.Store(ctx, d); err != nil {
		return decimal.Zero, err
	}
	r.log.WithField("rate", d.String()).Info("[rate] refreshed")
	return d, nil
}
