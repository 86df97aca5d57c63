package sources

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/lox/showcase/internal/httputil"
)

const (
	BigDataCloudURL  = "https://api.bigdatacloud.net/data/reverse-geocode-client"
	bigDataCloudName = "bigdatacloud"
)

type Place struct {
	City    string
	Country string
}

// ReverseGeocoder resolves coordinates to a locality.
type ReverseGeocoder interface {
	Reverse(ctx context.Context, lat, lon float64) (Place, error)
}

// BigDataCloud is the free client-side reverse geocoder.
type BigDataCloud struct {
	fetcher  *httputil.Fetcher
	baseURL  string
	language string
}

func NewBigDataCloud(f *httputil.Fetcher, baseURL string) *BigDataCloud {
	if baseURL == "" {
		baseURL = BigDataCloudURL
	}
	return &BigDataCloud{fetcher: f, baseURL: strings.TrimRight(baseURL, "/"), language: "en"}
}

type bigDataCloudResponse struct {
	City                 string `json:"city"`
	Locality             string `json:"locality"`
	PrincipalSubdivision string `json:"principalSubdivision"`
	CountryName          string `json:"countryName"`
}

func (c *BigDataCloud) Reverse(ctx context.Context, lat, lon float64) (Place, error) {
	q := url.Values{}
	q.Set("latitude", strconv.FormatFloat(lat, 'f', -1, 64))
	q.Set("longitude", strconv.FormatFloat(lon, 'f', -1, 64))
	q.Set("localityLanguage", c.language)

	var data bigDataCloudResponse
	if err := c.fetcher.GetJSON(ctx, bigDataCloudName, c.baseURL+"?"+q.Encode(), &data); err != nil {
		return Place{}, fmt.Errorf("reverse geocode: %w", err)
	}

	return Place{
		City:    firstNonEmpty(data.City, data.Locality, data.PrincipalSubdivision),
		Country: data.CountryName,
	}, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
