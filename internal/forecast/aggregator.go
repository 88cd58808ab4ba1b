package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
)

// placeResolver is the interface satisfied by GeocoderClient.
type placeResolver interface {
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

// cityDirectory is the interface satisfied by DirectoryClient.
type cityDirectory interface {
	Lookup(ctx context.Context, name string) (City, error)
}

// forecastFeed is the interface satisfied by ForecastClient.
type forecastFeed interface {
	Fetch(ctx context.Context, code, days int) (*Forecast, error)
}

// conditionsFeed is the interface satisfied by ConditionsClient.
type conditionsFeed interface {
	Fetch(ctx context.Context, station string) (*CurrentConditions, error)
}

// Options configures the upstream endpoints of NewAggregator. Empty fields
// fall back to the public services.
type Options struct {
	NominatimURL string
	CPTECURL     string
	UserAgent    string
	HTTPClient   *http.Client
}

// Aggregator resolves a Query into a forecast and current conditions.
type Aggregator struct {
	geocoder   placeResolver
	directory  cityDirectory
	forecasts  forecastFeed
	conditions conditionsFeed
	stations   *Stations
	log        *slog.Logger
}

// NewAggregator constructs an Aggregator with production clients sharing one HTTP client.
func NewAggregator(opts Options, stations *Stations, log *slog.Logger) *Aggregator {
	client := opts.HTTPClient
	if client == nil {
		client = newHTTPClient()
	}
	nominatimURL := opts.NominatimURL
	if nominatimURL == "" {
		nominatimURL = nominatimDefaultURL
	}
	cptecURL := opts.CPTECURL
	if cptecURL == "" {
		cptecURL = cptecDefaultURL
	}

	return NewAggregatorWithClients(
		NewGeocoderClientWithURL(nominatimURL, opts.UserAgent, client),
		NewDirectoryClientWithURL(cptecURL, client),
		NewForecastClientWithURL(cptecURL, client),
		NewConditionsClientWithURL(cptecURL, client),
		stations,
		log,
	)
}

// NewAggregatorWithClients constructs an Aggregator with injectable clients (used in tests).
func NewAggregatorWithClients(g placeResolver, d cityDirectory, f forecastFeed, c conditionsFeed, stations *Stations, log *slog.Logger) *Aggregator {
	if stations == nil {
		stations = DefaultStations()
	}
	if log == nil {
		log = slog.Default()
	}
	return &Aggregator{
		geocoder:   g,
		directory:  d,
		forecasts:  f,
		conditions: c,
		stations:   stations,
		log:        log,
	}
}

// Validate checks that exactly one of name or a full coordinate pair is set.
func (q Query) Validate() error {
	hasName := strings.TrimSpace(q.Name) != ""
	hasCoords := q.Lat != nil || q.Lon != nil

	switch {
	case !hasName && !hasCoords:
		return InvalidInput("neither name nor coordinates given")
	case hasName && hasCoords:
		return InvalidInput("name and coordinates are mutually exclusive")
	case hasCoords && (q.Lat == nil || q.Lon == nil):
		return InvalidInput("lat and lon must be given together")
	}

	if hasCoords {
		if math.IsNaN(*q.Lat) || *q.Lat < -90 || *q.Lat > 90 {
			return InvalidInput("lat %v out of range", *q.Lat)
		}
		if math.IsNaN(*q.Lon) || *q.Lon < -180 || *q.Lon > 180 {
			return InvalidInput("lon %v out of range", *q.Lon)
		}
	}

	if q.Days != 0 && q.Days != 4 && q.Days != ExtendedDays {
		return InvalidInput("days must be 4 or %d, got %d", ExtendedDays, q.Days)
	}

	return nil
}

// Resolve returns the place name of q. Names pass through unchanged;
// coordinates are reverse geocoded.
func (a *Aggregator) Resolve(ctx context.Context, q Query) (Place, error) {
	if err := q.Validate(); err != nil {
		return Place{}, err
	}
	if q.Lat == nil {
		return Place{DisplayName: q.Name}, nil
	}

	place, err := a.geocoder.Reverse(ctx, *q.Lat, *q.Lon)
	if err != nil {
		return Place{}, classifyAs(KindLocationNotFound, err)
	}
	return place, nil
}

// Aggregate resolves q, looks up its city and fetches the forecast and the
// current conditions in parallel.
//
// A forecast failure fails the whole call. Current conditions are best
// effort: any failure yields UnavailableConditions.
func (a *Aggregator) Aggregate(ctx context.Context, q Query) (*Result, error) {
	started := time.Now().UTC()

	place, err := a.Resolve(ctx, q)
	if err != nil {
		return nil, err
	}

	city, err := a.directory.Lookup(ctx, place.DisplayName)
	if err != nil {
		return nil, classifyAs(KindCityNotFound, err)
	}

	// Both fetches are always awaited; neither cancels the other.
	var g errgroup.Group

	var forecast *Forecast
	var conditions *CurrentConditions

	g.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("forecast fetch panicked", "recover", r)
				err = newError(KindForecastUnavailable, fmt.Errorf("forecast fetch panicked: %v", r))
			}
		}()
		f, fetchErr := a.forecasts.Fetch(ctx, city.Code, q.Days)
		if fetchErr != nil {
			return classifyAs(KindForecastUnavailable, fetchErr)
		}
		if f == nil || len(f.Days) == 0 {
			return newError(KindForecastUnavailable, fmt.Errorf("forecast for city %d has no days", city.Code))
		}
		forecast = f
		return nil
	})

	g.Go(func() error {
		defer func() {
			if r := recover(); r != nil {
				a.log.Error("current conditions fetch panicked", "recover", r)
				conditions = nil
			}
		}()
		conditions = a.currentConditions(ctx, city.Region)
		return nil
	})

	if err := g.Wait(); err != nil {
		a.log.Warn("forecast fetch failed", "city", city.Name, "code", city.Code, "err", err)
		return nil, err
	}

	current := UnavailableConditions()
	if conditions != nil {
		current = *conditions
	}

	generatedAt := forecast.UpdatedAt
	if generatedAt.IsZero() {
		generatedAt = started
	}

	return &Result{
		LocationLabel:     city.Label(),
		GeneratedAt:       generatedAt,
		Forecast:          forecast.Days,
		CurrentConditions: current,
	}, nil
}

// currentConditions returns the observation of the station mapped to
// region, or nil. Regions without a station skip the request.
func (a *Aggregator) currentConditions(ctx context.Context, region string) *CurrentConditions {
	station, ok := a.stations.Lookup(region)
	if !ok {
		a.log.Info("no station mapped for region", "region", region)
		return nil
	}

	cc, err := a.conditions.Fetch(ctx, station)
	if err != nil {
		a.log.Warn("current conditions fetch failed", "region", region, "station", station, "err", err)
		return nil
	}
	return cc
}

// classifyAs keeps an already classified error and classifies anything else as kind.
func classifyAs(kind Kind, err error) error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(kind, err)
}
