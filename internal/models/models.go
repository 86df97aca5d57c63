package models

import "time"

// Source identifies which tier produced a GeoFix.
type Source string

const (
	SourceGPS Source = "GPS"
	SourceIP  Source = "IP"
)

// GeoFix is a committed coordinate pair tagged with its originating tier.
type GeoFix struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Source    Source  `json:"source"`
}

// IsGPS reports whether the fix came from the device sensor.
func (f *GeoFix) IsGPS() bool {
	return f != nil && f.Source == SourceGPS
}

const (
	// IPUnknown is used when a tier produced a locality but no address.
	IPUnknown = "Unknown"
	// IPHidden is used when the public-IP lookup after a sensor fix failed.
	IPHidden = "Secured / Hidden"
)

type LocalityInfo struct {
	City      string `json:"city"`
	Country   string `json:"country"`
	IPAddress string `json:"ip"`
}

type WeatherSnapshot struct {
	TemperatureCelsius float64 `json:"temperatureCelsius"`
	WindSpeedKph       float64 `json:"windSpeedKph"`
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"createdAt"`
}

// Battery is the device power reading shown alongside the environment panel.
type Battery struct {
	Level    int  `json:"level"` // percent, 0-100
	Charging bool `json:"charging"`
}
