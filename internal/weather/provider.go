package weather

import (
	"context"
)

// Source abstracts the remote forecast provider.
// Fetch blocks until the provider answers or ctx is done; it has no side
// effects beyond the network call.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) (ForecastResult, error)
}
