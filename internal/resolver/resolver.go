package resolver

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/lox/showcase/internal/metrics"
	"github.com/lox/showcase/internal/models"
	"github.com/lox/showcase/internal/sources"
)

const (
	TierSensor    = "device sensor"
	TierPrimary   = "primary ip geolocation"
	TierSecondary = "secondary ip geolocation"

	DefaultPrimaryTimeout = 3 * time.Second
)

// Result holds each independently fetched slot. A nil slot is absent.
type Result struct {
	Locality *models.LocalityInfo    `json:"locality"`
	Fix      *models.GeoFix          `json:"fix"`
	Weather  *models.WeatherSnapshot `json:"weather"`
}

// State is delivered to update callbacks while a resolution progresses.
type State struct {
	Result
	Loading bool `json:"loading"`
}

// Config wires the resolver to its sources. Nil sources are treated as
// unavailable.
type Config struct {
	Sensor        sources.Sensor
	SensorOptions sources.SensorOptions
	Geocoder      sources.ReverseGeocoder
	PublicIP      sources.IPLookup
	Primary       sources.IPGeolocator
	Secondary     sources.IPGeolocator
	Weather       sources.WeatherService

	// PrimaryTimeout bounds the primary IP tier; defaults to 3s.
	PrimaryTimeout time.Duration
	// SecondaryTimeout bounds the secondary IP tier; zero leaves the HTTP
	// client timeout in charge.
	SecondaryTimeout time.Duration
}

// Resolver acquires a best-effort location, locality and weather through a
// prioritized chain: device sensor, then primary, then secondary IP
// geolocation.
type Resolver struct {
	cfg Config
}

func New(cfg Config) *Resolver {
	if cfg.Sensor == nil {
		cfg.Sensor = sources.NoSensor{}
	}
	if cfg.SensorOptions == (sources.SensorOptions{}) {
		cfg.SensorOptions = sources.DefaultSensorOptions
	}
	if cfg.PrimaryTimeout == 0 {
		cfg.PrimaryTimeout = DefaultPrimaryTimeout
	}
	return &Resolver{cfg: cfg}
}

// Providers returns the tiers in evaluation order.
func (r *Resolver) Providers() []Provider {
	providers := []Provider{{
		Name:    TierSensor,
		Timeout: r.cfg.SensorOptions.Timeout,
		Locate:  r.locateSensor,
		Enrich:  r.enrichSensor,
	}}
	if r.cfg.Primary != nil {
		providers = append(providers, Provider{
			Name:    TierPrimary,
			Timeout: r.cfg.PrimaryTimeout,
			Locate:  ipTier(r.cfg.Primary),
		})
	}
	if r.cfg.Secondary != nil {
		providers = append(providers, Provider{
			Name:    TierSecondary,
			Timeout: r.cfg.SecondaryTimeout,
			Locate:  ipTier(r.cfg.Secondary),
		})
	}
	return providers
}

func (r *Resolver) locateSensor(ctx context.Context) (Candidate, error) {
	pos, err := r.cfg.Sensor.Position(ctx, r.cfg.SensorOptions)
	if err != nil {
		return Candidate{}, err
	}
	return Candidate{Fix: models.GeoFix{
		Latitude:  pos.Latitude,
		Longitude: pos.Longitude,
		Source:    models.SourceGPS,
	}}, nil
}

// enrichSensor adds locality from reverse geocoding and the public address,
// which the sensor cannot provide. Neither failure unwinds the fix.
func (r *Resolver) enrichSensor(ctx context.Context, c *Candidate) {
	var wg sync.WaitGroup

	if r.cfg.Geocoder != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			place, err := r.cfg.Geocoder.Reverse(ctx, c.Fix.Latitude, c.Fix.Longitude)
			if err != nil {
				log.Printf("resolver: reverse geocode failed: %v", err)
				return
			}
			c.City, c.Country = place.City, place.Country
		}()
	}

	ip := models.IPHidden
	if r.cfg.PublicIP != nil {
		if addr, err := r.cfg.PublicIP.PublicIP(ctx); err != nil {
			log.Printf("resolver: public ip lookup failed: %v", err)
		} else {
			ip = addr
		}
	}

	wg.Wait()
	c.IP = ip
}

func ipTier(g sources.IPGeolocator) func(ctx context.Context) (Candidate, error) {
	return func(ctx context.Context) (Candidate, error) {
		loc, err := g.Locate(ctx)
		if err != nil {
			return Candidate{}, err
		}
		return Candidate{
			Fix: models.GeoFix{
				Latitude:  loc.Latitude,
				Longitude: loc.Longitude,
				Source:    models.SourceIP,
			},
			City:    loc.City,
			Country: loc.Country,
			IP:      loc.IP,
		}, nil
	}
}

// Resolve runs the chain once and returns whatever slots were filled.
func (r *Resolver) Resolve(ctx context.Context) Result {
	return r.ResolveWithUpdates(ctx, nil)
}

// ResolveWithUpdates is Resolve with a callback invoked on every state
// change. The last call always has Loading false.
func (r *Resolver) ResolveWithUpdates(ctx context.Context, onUpdate func(State)) Result {
	var res Result
	emit := func(loading bool) {
		if onUpdate != nil {
			onUpdate(State{Result: res, Loading: loading})
		}
	}
	emit(true)

	c, tier, ok := First(ctx, r.Providers())
	if !ok {
		log.Printf("resolver: all location sources unavailable")
		metrics.ResolverOutcomes.WithLabelValues("none").Inc()
		emit(false)
		return res
	}
	log.Printf("resolver: located via %s", tier)

	if c.City != "" && c.Country != "" {
		ip := c.IP
		if ip == "" {
			ip = models.IPUnknown
		}
		res.Locality = &models.LocalityInfo{City: c.City, Country: c.Country, IPAddress: ip}
	}

	if !c.HasCoordinates() {
		metrics.ResolverOutcomes.WithLabelValues("none").Inc()
	} else {
		metrics.ResolverOutcomes.WithLabelValues(string(c.Fix.Source)).Inc()
		fix := c.Fix
		res.Fix = &fix
		emit(true)

		if r.cfg.Weather != nil {
			w, err := r.cfg.Weather.Current(ctx, fix.Latitude, fix.Longitude)
			if err != nil {
				log.Printf("resolver: weather fetch failed: %v", err)
			} else {
				res.Weather = &w
			}
		}
	}

	emit(false)
	return res
}

// Start resolves on a new goroutine, reporting progress through onUpdate.
// It returns immediately.
func (r *Resolver) Start(ctx context.Context, onUpdate func(State)) {
	go r.ResolveWithUpdates(ctx, onUpdate)
}
