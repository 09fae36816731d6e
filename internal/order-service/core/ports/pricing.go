package ports

import (
	"context"
	"time"

	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
)

// Quote is a priced route from the maps oracle.
type Quote struct {
	DistanceKm float64
	Duration   time.Duration
	Price      int
}

type IPricingOracle interface {
	Route(ctx context.Context, from, to model.Coords, fare model.FareType) (Quote, error)
	// Travel estimates driver-to-client travel time without pricing.
	Travel(ctx context.Context, from, to model.Coords) (time.Duration, error)
}
