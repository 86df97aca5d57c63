package sources

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/showcase/internal/httputil"
	"github.com/lox/showcase/internal/models"
)

const (
	OpenMeteoURL  = "https://api.open-meteo.com/v1/forecast"
	openMeteoName = "openmeteo"
)

// WeatherService returns current conditions at a coordinate.
type WeatherService interface {
	Current(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error)
}

type OpenMeteo struct {
	fetcher *httputil.Fetcher
	baseURL string
}

func NewOpenMeteo(f *httputil.Fetcher, baseURL string) *OpenMeteo {
	if baseURL == "" {
		baseURL = OpenMeteoURL
	}
	return &OpenMeteo{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

type openMeteoResponse struct {
	CurrentWeather *struct {
		Temperature float64 `json:"temperature"`
		WindSpeed   float64 `json:"windspeed"` // km/h by default
	} `json:"current_weather"`
}

func (c *OpenMeteo) Current(ctx context.Context, lat, lon float64) (models.WeatherSnapshot, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("current_weather", "true")

	var data openMeteoResponse
	if err := c.fetcher.GetJSON(ctx, openMeteoName, c.baseURL+"?"+q.Encode(), &data); err != nil {
		return models.WeatherSnapshot{}, err
	}
	if data.CurrentWeather == nil {
		return models.WeatherSnapshot{}, errors.New("openmeteo: no current_weather in response")
	}

	return models.WeatherSnapshot{
		TemperatureCelsius: data.CurrentWeather.Temperature,
		WindSpeedKph:       data.CurrentWeather.WindSpeed,
	}, nil
}
