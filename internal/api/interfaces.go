package api

import (
	"context"

	"github.com/neexbeast/previsao/internal/forecast"
)

// ForecastAggregator defines the forecast pipeline needed by handlers.
type ForecastAggregator interface {
	Aggregate(ctx context.Context, q forecast.Query) (*forecast.Result, error)
}

type dbPinger interface {
	Ping(ctx context.Context) error
}
