package sources

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/lox/showcase/internal/httputil"
)

const (
	IpifyURL  = "https://api.ipify.org"
	IPAPIURL  = "https://ipapi.co"
	IPWhoURL  = "https://ipwho.is"
	ipifyName = "ipify"
	ipapiName = "ipapi"
	ipwhoName = "ipwho"
)

var (
	ErrEmbeddedError = errors.New("service reported an error")
	ErrNotSuccessful = errors.New("service reported failure")
)

// IPLocation is the common shape of both IP-geolocation providers.
type IPLocation struct {
	Latitude  float64
	Longitude float64
	City      string
	Country   string
	IP        string
}

// IPGeolocator locates an address, or the caller's own address.
type IPGeolocator interface {
	Locate(ctx context.Context) (IPLocation, error)
}

// IPLookup resolves the public IP address as seen from outside.
type IPLookup interface {
	PublicIP(ctx context.Context) (string, error)
}

// StaticIP is an address already known, such as the remote address of an
// HTTP request.
type StaticIP string

func (s StaticIP) PublicIP(context.Context) (string, error) {
	if s == "" {
		return "", errors.New("no address")
	}
	return string(s), nil
}

// PublicAddr returns ip in canonical form if it is a routable public address,
// or "" for loopback, private, link-local and malformed input.
func PublicAddr(ip string) string {
	addr, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return ""
	}
	addr = addr.Unmap()
	if addr.IsLoopback() || addr.IsPrivate() || addr.IsUnspecified() ||
		addr.IsLinkLocalUnicast() || addr.IsLinkLocalMulticast() || addr.IsMulticast() {
		return ""
	}
	return addr.String()
}

// Ipify looks up the public address via api.ipify.org.
type Ipify struct {
	fetcher *httputil.Fetcher
	baseURL string
}

func NewIpify(f *httputil.Fetcher, baseURL string) *Ipify {
	if baseURL == "" {
		baseURL = IpifyURL
	}
	return &Ipify{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *Ipify) PublicIP(ctx context.Context) (string, error) {
	var data struct {
		IP string `json:"ip"`
	}
	if err := c.fetcher.GetJSON(ctx, ipifyName, c.baseURL+"/?format=json", &data); err != nil {
		return "", err
	}
	if data.IP == "" {
		return "", fmt.Errorf("%s: empty address", ipifyName)
	}
	return data.IP, nil
}

// IPAPI is the primary IP-geolocation provider (ipapi.co). Failures are
// reported in-band through an "error" field alongside a 2xx status.
type IPAPI struct {
	fetcher *httputil.Fetcher
	baseURL string
	target  string
}

func NewIPAPI(f *httputil.Fetcher, baseURL string) *IPAPI {
	if baseURL == "" {
		baseURL = IPAPIURL
	}
	return &IPAPI{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

// For returns a copy that locates ip instead of the caller. Non-public
// addresses keep the caller form.
func (c *IPAPI) For(ip string) *IPAPI {
	cp := *c
	cp.target = PublicAddr(ip)
	return &cp
}

type ipapiResponse struct {
	Error       bool    `json:"error"`
	Reason      string  `json:"reason"`
	IP          string  `json:"ip"`
	City        string  `json:"city"`
	CountryName string  `json:"country_name"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

func (c *IPAPI) Locate(ctx context.Context) (IPLocation, error) {
	url := c.baseURL + "/json/"
	if c.target != "" {
		url = c.baseURL + "/" + c.target + "/json/"
	}

	var data ipapiResponse
	if err := c.fetcher.GetJSON(ctx, ipapiName, url, &data); err != nil {
		return IPLocation{}, err
	}
	if data.Error {
		reason := data.Reason
		if reason == "" {
			reason = "API Error"
		}
		return IPLocation{}, fmt.Errorf("%s: %w: %s", ipapiName, ErrEmbeddedError, reason)
	}

	return IPLocation{
		Latitude:  data.Latitude,
		Longitude: data.Longitude,
		City:      data.City,
		Country:   data.CountryName,
		IP:        data.IP,
	}, nil
}

// IPWho is the secondary IP-geolocation provider (ipwho.is). Responses carry
// an explicit success flag.
type IPWho struct {
	fetcher *httputil.Fetcher
	baseURL string
	target  string
}

func NewIPWho(f *httputil.Fetcher, baseURL string) *IPWho {
	if baseURL == "" {
		baseURL = IPWhoURL
	}
	return &IPWho{fetcher: f, baseURL: strings.TrimRight(baseURL, "/")}
}

func (c *IPWho) For(ip string) *IPWho {
	cp := *c
	cp.target = PublicAddr(ip)
	return &cp
}

type ipwhoResponse struct {
	Success   bool    `json:"success"`
	Message   string  `json:"message"`
	IP        string  `json:"ip"`
	City      string  `json:"city"`
	Country   string  `json:"country"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (c *IPWho) Locate(ctx context.Context) (IPLocation, error) {
	url := c.baseURL + "/" + c.target

	var data ipwhoResponse
	if err := c.fetcher.GetJSON(ctx, ipwhoName, url, &data); err != nil {
		return IPLocation{}, err
	}
	if !data.Success {
		return IPLocation{}, fmt.Errorf("%s: %w: %s", ipwhoName, ErrNotSuccessful, data.Message)
	}

	return IPLocation{
		Latitude:  data.Latitude,
		Longitude: data.Longitude,
		City:      data.City,
		Country:   data.Country,
		IP:        data.IP,
	}, nil
}
