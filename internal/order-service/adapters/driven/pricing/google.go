package pricing

import (
	"context"
	"fmt"
	"time"

	"googlemaps.github.io/maps"

	"github.com/Joletx42/trans-aggregator-bot/internal/config"
	"github.com/Joletx42/trans-aggregator-bot/internal/mylogger"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/domain/model"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/myerrors"
	"github.com/Joletx42/trans-aggregator-bot/internal/order-service/core/ports"
)

// Per-km rates by fare type. Preorders price the same as their base
// fare, the surcharge lives in the base component.
const (
	baseFare     = 200
	ratePerKm    = 100
	ratePerMin   = 15
	preorderBase = 300
)

// Oracle prices point-to-point routes with the Google Maps Directions
// API.
type Oracle struct {
	mylog  mylogger.Logger
	client *maps.Client
}

func New(cfg config.Mapsconfig, mylog mylogger.Logger) (ports.IPricingOracle, error) {
	client, err := maps.NewClient(maps.WithAPIKey(cfg.APIKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create maps client: %w", err)
	}
	return &Oracle{mylog: mylog, client: client}, nil
}

func (o *Oracle) Route(ctx context.Context, from, to model.Coords, fare model.FareType) (ports.Quote, error) {
	log := o.mylog.Action("Route")

	dur, km, err := o.directions(ctx, from, to)
	if err != nil {
		log.Error("directions request failed", err)
		return ports.Quote{}, myerrors.ErrOracleDown
	}

	base := baseFare
	if fare.IsPreorder() {
		base = preorderBase
	}
	price := base + int(km*ratePerKm) + int(dur.Minutes()*ratePerMin)

	return ports.Quote{DistanceKm: km, Duration: dur, Price: price}, nil
}

func (o *Oracle) Travel(ctx context.Context, from, to model.Coords) (time.Duration, error) {
	dur, _, err := o.directions(ctx, from, to)
	if err != nil {
		return 0, myerrors.ErrOracleDown
	}
	return dur, nil
}

func (o *Oracle) directions(ctx context.Context, from, to model.Coords) (time.Duration, float64, error) {
	r := &maps.DirectionsRequest{
		Origin:      fmt.Sprintf("%f,%f", from.Latitude, from.Longitude),
		Destination: fmt.Sprintf("%f,%f", to.Latitude, to.Longitude),
		Mode:        maps.TravelModeDriving,
	}
	routes, _, err := o.client.Directions(ctx, r)
	if err != nil {
		return 0, 0, fmt.Errorf("maps api error: %w", err)
	}
	if len(routes) == 0 || len(routes[0].Legs) == 0 {
		return 0, 0, fmt.Errorf("no route found")
	}

	var (
		dur    time.Duration
		meters int
	)
	for _, leg := range routes[0].Legs {
		dur += leg.Duration
		meters += leg.Distance.Meters
	}
	return dur, float64(meters) / 1000, nil
}
