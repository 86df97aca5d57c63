package sources

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

var (
	ErrSensorUnavailable = errors.New("geolocation not supported")
	ErrPermissionDenied  = errors.New("geolocation permission denied")
)

// SensorOptions mirrors the platform location-service request options.
type SensorOptions struct {
	HighAccuracy bool
	Timeout      time.Duration
	MaxAge       time.Duration // 0 forces a fresh fix
}

// DefaultSensorOptions requests a fresh high-accuracy fix within 5s.
var DefaultSensorOptions = SensorOptions{
	HighAccuracy: true,
	Timeout:      5 * time.Second,
	MaxAge:       0,
}

type Position struct {
	Latitude  float64 `json:"latitude" validate:"latitude"`
	Longitude float64 `json:"longitude" validate:"longitude"`
	Accuracy  float64 `json:"accuracy" validate:"gte=0"` // metres, 0 if unknown
}

// Sensor is a platform location service.
type Sensor interface {
	Position(ctx context.Context, opts SensorOptions) (Position, error)
}

// NoSensor is a platform without a location service.
type NoSensor struct{}

func (NoSensor) Position(context.Context, SensorOptions) (Position, error) {
	return Position{}, ErrSensorUnavailable
}

// StaticSensor always reports the same fix.
type StaticSensor struct {
	Fix Position
}

func (s StaticSensor) Position(ctx context.Context, _ SensorOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	return s.Fix, nil
}

var validate = validator.New()

// ReportedSensor is a fix reported by a remote client (the browser), or the
// reason it has none. A zero ReportedSensor behaves as a denied permission.
type ReportedSensor struct {
	fix Position
	err error
}

// NewReportedSensor parses the client-reported coordinates. Blank latitude
// and longitude mean the client denied or lacked geolocation.
func NewReportedSensor(lat, lon, accuracy string) ReportedSensor {
	lat, lon = strings.TrimSpace(lat), strings.TrimSpace(lon)
	if lat == "" && lon == "" {
		return ReportedSensor{err: ErrPermissionDenied}
	}

	var p Position
	var err error
	if p.Latitude, err = strconv.ParseFloat(lat, 64); err != nil {
		return ReportedSensor{err: fmt.Errorf("parse latitude: %w", err)}
	}
	if p.Longitude, err = strconv.ParseFloat(lon, 64); err != nil {
		return ReportedSensor{err: fmt.Errorf("parse longitude: %w", err)}
	}
	if accuracy = strings.TrimSpace(accuracy); accuracy != "" {
		if p.Accuracy, err = strconv.ParseFloat(accuracy, 64); err != nil {
			return ReportedSensor{err: fmt.Errorf("parse accuracy: %w", err)}
		}
	}
	if err := validate.Struct(p); err != nil {
		return ReportedSensor{err: fmt.Errorf("invalid reported position: %w", err)}
	}
	return ReportedSensor{fix: p}
}

func (s ReportedSensor) Position(ctx context.Context, _ SensorOptions) (Position, error) {
	if err := ctx.Err(); err != nil {
		return Position{}, err
	}
	if s.err != nil {
		return Position{}, s.err
	}
	if s.fix == (Position{}) {
		return Position{}, ErrPermissionDenied
	}
	return s.fix, nil
}
