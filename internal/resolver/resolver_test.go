package resolver

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lox/showcase/internal/metrics"
	"github.com/lox/showcase/internal/models"
	"github.com/lox/showcase/internal/sources"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

type fakeSensor struct {
	pos   sources.Position
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeSensor) Position(ctx context.Context, _ sources.SensorOptions) (sources.Position, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return sources.Position{}, ctx.Err()
	}
	return f.pos, f.err
}

type fakeGeo struct {
	loc   sources.IPLocation
	err   error
	block bool
	calls atomic.Int32
}

func (f *fakeGeo) Locate(ctx context.Context) (sources.IPLocation, error) {
	f.calls.Add(1)
	if f.block {
		<-ctx.Done()
		return sources.IPLocation{}, ctx.Err()
	}
	return f.loc, f.err
}

type fakeGeocoder struct {
	place sources.Place
	err   error
	calls atomic.Int32
}

func (f *fakeGeocoder) Reverse(context.Context, float64, float64) (sources.Place, error) {
	f.calls.Add(1)
	return f.place, f.err
}

type fakeIP struct {
	ip    string
	err   error
	calls atomic.Int32
}

func (f *fakeIP) PublicIP(context.Context) (string, error) {
	f.calls.Add(1)
	return f.ip, f.err
}

type fakeWeather struct {
	snap     models.WeatherSnapshot
	err      error
	calls    atomic.Int32
	lat, lon float64
}

func (f *fakeWeather) Current(_ context.Context, lat, lon float64) (models.WeatherSnapshot, error) {
	f.calls.Add(1)
	f.lat, f.lon = lat, lon
	return f.snap, f.err
}

var errDown = errors.New("down")

type fixture struct {
	sensor    *fakeSensor
	geocoder  *fakeGeocoder
	publicIP  *fakeIP
	primary   *fakeGeo
	secondary *fakeGeo
	weather   *fakeWeather
}

func newFixture() *fixture {
	return &fixture{
		sensor:    &fakeSensor{err: sources.ErrPermissionDenied},
		geocoder:  &fakeGeocoder{place: sources.Place{City: "Wandiligong", Country: "Australia"}},
		publicIP:  &fakeIP{ip: "203.0.113.1"},
		primary:   &fakeGeo{err: errDown},
		secondary: &fakeGeo{err: errDown},
		weather:   &fakeWeather{snap: models.WeatherSnapshot{TemperatureCelsius: 21.5, WindSpeedKph: 8}},
	}
}

func (f *fixture) resolver() *Resolver {
	return New(Config{
		Sensor:         f.sensor,
		Geocoder:       f.geocoder,
		PublicIP:       f.publicIP,
		Primary:        f.primary,
		Secondary:      f.secondary,
		Weather:        f.weather,
		PrimaryTimeout: 200 * time.Millisecond,
	})
}

func TestResolve_AllTiersFail(t *testing.T) {
	t.Parallel()
	f := newFixture()

	res := f.resolver().Resolve(context.Background())

	if res.Fix != nil || res.Locality != nil || res.Weather != nil {
		t.Fatalf("expected empty result, got %+v", res)
	}
	if f.primary.calls.Load() != 1 || f.secondary.calls.Load() != 1 {
		t.Errorf("each IP tier should be tried exactly once: primary=%d secondary=%d",
			f.primary.calls.Load(), f.secondary.calls.Load())
	}
	if f.weather.calls.Load() != 0 {
		t.Error("weather must not be fetched without a fix")
	}
}

func TestResolve_SensorWins(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sensor.err = nil
	f.sensor.pos = sources.Position{Latitude: -36.794, Longitude: 146.977}
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{Latitude: 1, Longitude: 1, City: "X", Country: "Y"}

	res := f.resolver().Resolve(context.Background())

	if res.Fix == nil || res.Fix.Source != models.SourceGPS {
		t.Fatalf("fix = %+v, want GPS", res.Fix)
	}
	if res.Fix.Latitude != -36.794 || res.Fix.Longitude != 146.977 {
		t.Errorf("coords = %v,%v", res.Fix.Latitude, res.Fix.Longitude)
	}
	if f.primary.calls.Load() != 0 || f.secondary.calls.Load() != 0 {
		t.Error("fallback tiers must not run once the sensor succeeds")
	}
	want := models.LocalityInfo{City: "Wandiligong", Country: "Australia", IPAddress: "203.0.113.1"}
	if res.Locality == nil || *res.Locality != want {
		t.Errorf("locality = %+v, want %+v", res.Locality, want)
	}
	if res.Weather == nil || res.Weather.TemperatureCelsius != 21.5 {
		t.Errorf("weather = %+v", res.Weather)
	}
	if f.weather.lat != -36.794 || f.weather.lon != 146.977 {
		t.Errorf("weather keyed on %v,%v", f.weather.lat, f.weather.lon)
	}
}

func TestResolve_SensorPublicIPFailureIsSoft(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sensor.err = nil
	f.sensor.pos = sources.Position{Latitude: 10, Longitude: 20}
	f.publicIP.err = errDown

	res := f.resolver().Resolve(context.Background())

	if res.Locality == nil || res.Locality.IPAddress != models.IPHidden {
		t.Fatalf("locality = %+v, want hidden ip", res.Locality)
	}
	if f.primary.calls.Load() != 0 {
		t.Error("public ip failure must not fall through to the ip tiers")
	}
}

func TestResolve_SensorGeocodeFailureKeepsFix(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sensor.err = nil
	f.sensor.pos = sources.Position{Latitude: 10, Longitude: 20}
	f.geocoder.err = errDown

	res := f.resolver().Resolve(context.Background())

	if res.Fix == nil || res.Fix.Source != models.SourceGPS {
		t.Fatalf("fix = %+v", res.Fix)
	}
	if res.Locality != nil {
		t.Errorf("locality = %+v, want absent", res.Locality)
	}
	if res.Weather == nil {
		t.Error("weather should be fetched for the sensor fix")
	}
}

func TestResolve_PrimaryWins(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{Latitude: -36.73, Longitude: 146.96, City: "Bright", Country: "Australia", IP: "198.51.100.4"}

	res := f.resolver().Resolve(context.Background())

	if res.Fix == nil || res.Fix.Source != models.SourceIP {
		t.Fatalf("fix = %+v, want IP", res.Fix)
	}
	if f.secondary.calls.Load() != 0 {
		t.Error("secondary tier must not run when primary succeeds")
	}
	if f.publicIP.calls.Load() != 0 || f.geocoder.calls.Load() != 0 {
		t.Error("sensor sub-fetches must not run for ip tiers")
	}
	if res.Locality == nil || res.Locality.IPAddress != "198.51.100.4" {
		t.Errorf("locality = %+v", res.Locality)
	}
}

func TestResolve_SecondaryWins(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.secondary.err = nil
	f.secondary.loc = sources.IPLocation{Latitude: 48.85, Longitude: 2.35, City: "Paris", Country: "France"}

	res := f.resolver().Resolve(context.Background())

	if res.Fix == nil || res.Fix.Source != models.SourceIP {
		t.Fatalf("fix = %+v", res.Fix)
	}
	if res.Locality == nil || res.Locality.IPAddress != models.IPUnknown {
		t.Errorf("locality = %+v, want unknown ip", res.Locality)
	}
}

func TestResolve_WeatherWithoutLocality(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{Latitude: 5, Longitude: 6, Country: "Nowhere"}

	res := f.resolver().Resolve(context.Background())

	if res.Locality != nil {
		t.Errorf("locality = %+v, want absent without city", res.Locality)
	}
	if res.Fix == nil {
		t.Fatal("expected fix")
	}
	if f.weather.calls.Load() != 1 || res.Weather == nil {
		t.Error("weather must be fetched whenever coordinates exist")
	}
}

func TestResolve_WeatherFailureKeepsOtherSlots(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{Latitude: 5, Longitude: 6, City: "A", Country: "B"}
	f.weather.err = errDown

	res := f.resolver().Resolve(context.Background())

	if res.Weather != nil {
		t.Errorf("weather = %+v, want absent", res.Weather)
	}
	if res.Fix == nil || res.Locality == nil {
		t.Errorf("fix and locality must survive a weather failure: %+v", res)
	}
}

func TestResolve_SlowSensorTimesOut(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.sensor.err = nil
	f.sensor.block = true
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{Latitude: 5, Longitude: 6, City: "A", Country: "B"}

	r := New(Config{
		Sensor:        f.sensor,
		SensorOptions: sources.SensorOptions{HighAccuracy: true, Timeout: 50 * time.Millisecond},
		Primary:       f.primary,
		Secondary:     f.secondary,
		Weather:       f.weather,
	})

	start := time.Now()
	res := r.Resolve(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("resolve took %v", elapsed)
	}
	if res.Fix == nil || res.Fix.Source != models.SourceIP {
		t.Fatalf("fix = %+v, want IP after sensor timeout", res.Fix)
	}
}

func TestResolve_HungPrimaryFallsToSecondary(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.primary.block = true
	f.secondary.err = nil
	f.secondary.loc = sources.IPLocation{Latitude: -37.8, Longitude: 144.9, City: "Melbourne", Country: "Australia", IP: "203.0.113.9"}

	start := time.Now()
	res := f.resolver().Resolve(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("resolve took %v, primary timeout not applied", elapsed)
	}
	if res.Fix == nil || res.Fix.Latitude != -37.8 || res.Fix.Source != models.SourceIP {
		t.Fatalf("fix = %+v, want secondary fix", res.Fix)
	}
	if res.Locality == nil || res.Locality.City != "Melbourne" {
		t.Errorf("locality = %+v", res.Locality)
	}
	if f.primary.calls.Load() != 1 || f.secondary.calls.Load() != 1 {
		t.Errorf("calls: primary=%d secondary=%d", f.primary.calls.Load(), f.secondary.calls.Load())
	}
}

func TestNew_DefaultTimeouts(t *testing.T) {
	providers := New(Config{Primary: &fakeGeo{}, Secondary: &fakeGeo{}}).Providers()
	if len(providers) != 3 {
		t.Fatalf("len(providers) = %d, want 3", len(providers))
	}
	if got := providers[0].Timeout; got != sources.DefaultSensorOptions.Timeout {
		t.Errorf("sensor timeout = %v, want %v", got, sources.DefaultSensorOptions.Timeout)
	}
	if got := providers[1].Timeout; got != DefaultPrimaryTimeout || got != 3*time.Second {
		t.Errorf("primary timeout = %v, want 3s", got)
	}
	if got := providers[2].Timeout; got != 0 {
		t.Errorf("secondary timeout = %v, want none", got)
	}
}

func TestResolveWithUpdates_EndsNotLoading(t *testing.T) {
	t.Parallel()
	f := newFixture()
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{Latitude: 5, Longitude: 6, City: "A", Country: "B"}

	var states []State
	f.resolver().ResolveWithUpdates(context.Background(), func(s State) {
		states = append(states, s)
	})

	if len(states) < 2 {
		t.Fatalf("got %d states, want at least 2", len(states))
	}
	if !states[0].Loading {
		t.Error("first state should be loading")
	}
	last := states[len(states)-1]
	if last.Loading {
		t.Error("last state should not be loading")
	}
	if last.Weather == nil || last.Fix == nil || last.Locality == nil {
		t.Errorf("last state incomplete: %+v", last)
	}
}

func TestStart_DeliversTerminalState(t *testing.T) {
	t.Parallel()
	f := newFixture()

	done := make(chan State, 8)
	f.resolver().Start(context.Background(), func(s State) {
		if !s.Loading {
			done <- s
		}
	})

	select {
	case s := <-done:
		if s.Fix != nil {
			t.Errorf("fix = %+v, want absent", s.Fix)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for terminal state")
	}
}

func TestFirst_StopsAtFirstSuccess(t *testing.T) {
	t.Parallel()
	var order []string
	mk := func(name string, ok bool) Provider {
		return Provider{Name: name, Locate: func(context.Context) (Candidate, error) {
			order = append(order, name)
			if !ok {
				return Candidate{}, errDown
			}
			return Candidate{City: name}, nil
		}}
	}

	c, tier, ok := First(context.Background(), []Provider{mk("a", false), mk("b", true), mk("c", true)})
	if !ok || tier != "b" || c.City != "b" {
		t.Fatalf("First = %+v, %q, %v", c, tier, ok)
	}
	if len(order) != 2 || order[0] != "a" || order[1] != "b" {
		t.Errorf("order = %v, want [a b]", order)
	}
}

func TestFirst_RecoversPanickingProvider(t *testing.T) {
	t.Parallel()
	providers := []Provider{
		{Name: "boom", Locate: func(context.Context) (Candidate, error) { panic("bad payload") }},
		{Name: "ok", Locate: func(context.Context) (Candidate, error) { return Candidate{City: "ok"}, nil }},
	}

	_, tier, ok := First(context.Background(), providers)
	if !ok || tier != "ok" {
		t.Fatalf("tier = %q ok = %v", tier, ok)
	}
}

func TestCandidate_HasCoordinates(t *testing.T) {
	tests := []struct {
		lat, lon float64
		want     bool
	}{
		{0, 0, false},
		{0, 10, true},
		{-36.7, 0, true},
		{1, 2, true},
	}
	for _, tt := range tests {
		c := Candidate{Fix: models.GeoFix{Latitude: tt.lat, Longitude: tt.lon}}
		if got := c.HasCoordinates(); got != tt.want {
			t.Errorf("HasCoordinates(%v,%v) = %v, want %v", tt.lat, tt.lon, got, tt.want)
		}
	}
}

// Not parallel: counters are process-wide.
func TestResolve_ZeroFixCountsAsNone(t *testing.T) {
	f := newFixture()
	f.primary.err = nil
	f.primary.loc = sources.IPLocation{City: "Null Island", Country: "Nowhere"}

	none := metrics.ResolverOutcomes.WithLabelValues("none")
	ip := metrics.ResolverOutcomes.WithLabelValues(string(models.SourceIP))
	noneBefore, ipBefore := testutil.ToFloat64(none), testutil.ToFloat64(ip)

	res := f.resolver().Resolve(context.Background())

	if res.Fix != nil || res.Weather != nil {
		t.Fatalf("(0,0) must not produce a fix or weather: %+v", res)
	}
	if got := testutil.ToFloat64(none) - noneBefore; got != 1 {
		t.Errorf("none delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(ip) - ipBefore; got != 0 {
		t.Errorf("IP delta = %v, want 0", got)
	}
}
